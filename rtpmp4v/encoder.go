package rtpmp4v

import (
	"github.com/pion/randutil"
	"github.com/pion/rtp"
	"github.com/pkg/errors"
)

const (
	rtpVersion            = 2
	defaultPayloadMaxSize = 1450 // 1500 (UDP MTU) - 20 (IP header) - 8 (UDP header) - 12 (RTP header) - 10 (SRTP overhead)
)

// Encoder is a RTP/MPEG-4 Visual encoder.
type Encoder struct {
	// payload type of packets.
	PayloadType uint8

	// SSRC of packets (optional).
	// It defaults to a random value.
	SSRC *uint32

	// initial sequence number of packets (optional).
	// It defaults to a random value.
	InitialSequenceNumber *uint16

	// maximum size of packet payloads (optional).
	// It defaults to 1450.
	PayloadMaxSize int

	sequencer rtp.Sequencer
	ssrc      uint32
}

// Init initializes the encoder.
func (e *Encoder) Init() error {
	if e.SSRC == nil {
		e.ssrc = randutil.NewMathRandomGenerator().Uint32()
	} else {
		e.ssrc = *e.SSRC
	}

	if e.InitialSequenceNumber == nil {
		e.sequencer = rtp.NewRandomSequencer()
	} else {
		e.sequencer = rtp.NewFixedSequencer(*e.InitialSequenceNumber)
	}

	if e.PayloadMaxSize == 0 {
		e.PayloadMaxSize = defaultPayloadMaxSize
	}

	return nil
}

// Encode encodes an access unit into RTP packets.
// The marker bit is set on the last packet; the caller sets the timestamp.
func (e *Encoder) Encode(au []byte) ([]*rtp.Packet, error) {
	if len(au) == 0 {
		return nil, errors.New("empty access unit")
	}
	if e.sequencer == nil {
		return nil, errors.New("encoder not initialized")
	}

	n := (len(au) + e.PayloadMaxSize - 1) / e.PayloadMaxSize
	ret := make([]*rtp.Packet, n)

	for i := range ret {
		end := (i + 1) * e.PayloadMaxSize
		if end > len(au) {
			end = len(au)
		}

		ret[i] = &rtp.Packet{
			Header: rtp.Header{
				Version:        rtpVersion,
				PayloadType:    e.PayloadType,
				SequenceNumber: e.sequencer.NextSequenceNumber(),
				SSRC:           e.ssrc,
				Marker:         i == n-1,
			},
			Payload: au[i*e.PayloadMaxSize : end],
		}
	}

	return ret, nil
}
