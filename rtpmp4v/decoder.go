// Package rtpmp4v contains a RTP/MPEG-4 Visual (MP4V-ES) decoder and encoder.
// See RFC 6416: https://datatracker.ietf.org/doc/html/rfc6416
package rtpmp4v

import (
	"github.com/pion/rtp"
	"github.com/pkg/errors"
)

const (
	maxFrameSize = 1 * 1024 * 1024
)

// ErrMorePacketsNeeded is returned when more packets are needed.
var ErrMorePacketsNeeded = errors.New("need more packets")

// ErrNonStartingPacketAndNoPrevious is returned when we received a non-starting
// packet of a fragmented frame and we didn't received anything before.
// It's normal to receive this when decoding a stream that has been already
// running for some time.
var ErrNonStartingPacketAndNoPrevious = errors.New(
	"received a non-starting fragment without any previous starting fragment")

// ErrMissingPacket is returned when a RTP packet of a fragmented frame is missing.
var ErrMissingPacket = errors.New("discarding frame since a RTP packet is missing")

func joinFragments(fragments [][]byte, size int) []byte {
	ret := make([]byte, size)
	n := 0
	for _, p := range fragments {
		n += copy(ret[n:], p)
	}
	return ret
}

// Decoder is a RTP/MPEG-4 Visual decoder.
// The payload carries the elementary stream without a payload header. The marker bit
// is set on the last packet of a VOP.
type Decoder struct {
	fragments          [][]byte
	fragmentsSize      int
	fragmentNextSeqNum uint16

	// a packet with the marker bit set was the last one received
	frameEnded bool
}

// Init initializes the decoder.
func (d *Decoder) Init() error {
	d.frameEnded = true
	return nil
}

func (d *Decoder) resetFragments() {
	d.fragments = d.fragments[:0]
	d.fragmentsSize = 0
}

// Decode decodes an access unit from a RTP packet.
// The returned data starts with the start codes of the VOP and the headers in front of it.
func (d *Decoder) Decode(pkt *rtp.Packet) ([]byte, error) {
	starting := d.frameEnded
	d.frameEnded = pkt.Marker

	if d.fragmentsSize == 0 {
		if !starting || !hasStartCode(pkt.Payload) {
			return nil, ErrNonStartingPacketAndNoPrevious
		}
	} else if pkt.SequenceNumber != d.fragmentNextSeqNum {
		d.resetFragments()
		return nil, ErrMissingPacket
	}

	if (d.fragmentsSize + len(pkt.Payload)) > maxFrameSize {
		errSize := d.fragmentsSize + len(pkt.Payload)
		d.resetFragments()
		return nil, errors.Errorf("frame size (%d) is too big, maximum is %d",
			errSize, maxFrameSize)
	}

	d.fragments = append(d.fragments, pkt.Payload)
	d.fragmentsSize += len(pkt.Payload)
	d.fragmentNextSeqNum = pkt.SequenceNumber + 1

	if !pkt.Marker {
		return nil, ErrMorePacketsNeeded
	}

	au := joinFragments(d.fragments, d.fragmentsSize)
	d.resetFragments()

	return au, nil
}

func hasStartCode(payload []byte) bool {
	return len(payload) >= 4 && payload[0] == 0 && payload[1] == 0 && payload[2] == 1
}
