// Package mpeg4 implements an MPEG-4 Part 2 (ISO/IEC 14496-2) video decoder and an elementary stream splitter.
//
// The Decoder follows the push/pull contract shared with other codecs: open it with CodecParameters,
// push compressed packets with SendPacket and pull frames in presentation order with ReceiveFrame.
// It handles I-, P-, B- and S(GMC)-VOPs, H.263 and MPEG quantisation, quarter-pel motion,
// video packets with resync markers and the packed bitstreams written by DivX.
//
// A high-level MPEG4 API combines the Stream splitter and the Decoder in an easy-to-use wrapper
// for raw .m4v/.cmp files. With the high-level interface you have two options to decode video:
//
// 1. Decode() and just hand over the delta time since the last call.
// It will decode everything needed and call your callback (specified through
// SetVideoCallback()) any number of times.
//
// 2. Use DecodeVideo() to decode exactly one frame at a time.
//
// Video data is decoded into a struct with all 3 planes (Y, Cb, Cr) stored in separate buffers,
// you can get image.YCbCr via YCbCr() function. You can either convert to image.RGBA on the CPU (slow)
// via the RGBA() function or do it on the GPU with the following matrix:
//
//	mat4 bt601 = mat4(
//	    1.16438,  0.00000,  1.59603, -0.87079,
//	    1.16438, -0.39176, -0.81297,  0.52959,
//	    1.16438,  2.01723,  0.00000, -1.08139,
//	    0, 0, 0, 1
//	);
//
//	gl_FragColor = vec4(y, cb, cr, 1.0) * bt601;
//
// If you get MPEG-4 video from a container or from RTP (see package rtpmp4v), feed the packets to
// a Decoder directly.
package mpeg4

import (
	"bytes"
	"io"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// VideoFunc callback function.
type VideoFunc func(m *MPEG4, frame *Frame)

// ErrInvalidMPEG4 is the error returned when the reader does not start with an MPEG-4 Visual start code.
var ErrInvalidMPEG4 = errors.New("mpeg4: invalid MPEG-4 Visual stream")

// MPEG4 is high-level interface implementation.
type MPEG4 struct {
	stream  *Stream
	decoder *Decoder

	time     float64
	nextTime float64

	loop     bool
	hasEnded bool

	done chan bool

	videoCallback VideoFunc
}

// New creates a new MPEG4 instance.
func New(r io.Reader) (*MPEG4, error) {
	m := &MPEG4{}

	buf, err := NewBuffer(r)
	if err != nil {
		return nil, err
	}

	buf.SetLoadCallback(buf.LoadReaderCallback)

	if !buf.has(32) {
		return nil, ErrInvalidMPEG4
	}
	if !bytes.Equal([]byte{0x00, 0x00, 0x01}, buf.Bytes()[0:3]) {
		return nil, ErrInvalidMPEG4
	}
	buf.Rewind()

	m.stream, err = NewStream(buf)
	if err != nil {
		return nil, err
	}

	m.decoder = NewDecoder()
	err = m.decoder.Open(&CodecParameters{
		CodecID:   CodecMPEG4,
		ExtraData: m.stream.ExtraData(),
	})
	if err != nil {
		return nil, err
	}

	m.done = make(chan bool, 1)

	return m, nil
}

// Done returns done channel.
func (m *MPEG4) Done() chan bool {
	return m.done
}

// Decoder returns video decoder.
func (m *MPEG4) Decoder() *Decoder {
	return m.decoder
}

// Stream returns the stream splitter.
func (m *MPEG4) Stream() *Stream {
	return m.stream
}

// SetLogger sets the decoder logger.
func (m *MPEG4) SetLogger(log *zap.Logger) {
	m.decoder.SetLogger(log)
}

// SetVideoCallback sets a video callback.
func (m *MPEG4) SetVideoCallback(callback VideoFunc) {
	m.videoCallback = callback
}

// Width returns the width of the video stream.
func (m *MPEG4) Width() int {
	return m.decoder.Width()
}

// Height returns the height of the video stream.
func (m *MPEG4) Height() int {
	return m.decoder.Height()
}

// Framerate returns the framerate of the video stream in frames per second.
// It is 0 unless the stream signals a fixed VOP rate.
func (m *MPEG4) Framerate() float64 {
	vol := m.decoder.Config()
	if vol == nil || !vol.FixedVopRate || vol.FixedVopTimeIncrement == 0 {
		return 0
	}

	return float64(vol.TimeIncrementResolution) / float64(vol.FixedVopTimeIncrement)
}

// Time returns the current internal time.
func (m *MPEG4) Time() time.Duration {
	return time.Duration(m.time * float64(time.Second))
}

// Rewind rewinds all buffers back to the beginning.
func (m *MPEG4) Rewind() {
	m.stream.Rewind()
	m.decoder.Flush()
	m.time = 0
	m.nextTime = 0
	m.hasEnded = false
}

// Loop returns looping.
func (m *MPEG4) Loop() bool {
	return m.loop
}

// SetLoop sets looping.
func (m *MPEG4) SetLoop(loop bool) {
	m.loop = loop
}

// HasEnded checks whether the file has ended.
// If looping is enabled, this will always return false.
func (m *MPEG4) HasEnded() bool {
	return m.hasEnded
}

// Decode advances the internal timer by tick and decodes video up to this time.
// This will call the video callback any number of times.
// A frame-skip is not implemented, i.e. everything up to current time will be decoded.
func (m *MPEG4) Decode(tick time.Duration) {
	if m.videoCallback == nil {
		return
	}

	target := m.time + tick.Seconds()
	for m.nextTime < target {
		frame, ended := m.next()
		if frame == nil {
			if ended {
				m.handleEnd()

				return
			}

			break
		}

		m.videoCallback(m, frame)

		m.nextTime = frame.Time
		if rate := m.Framerate(); rate > 0 {
			m.nextTime += 1 / rate
		}
	}

	m.time = target
}

// DecodeVideo decodes and returns one video frame. Returns nil if no frame could be decoded
// (either because the source ended or data is corrupt).
func (m *MPEG4) DecodeVideo() *Frame {
	frame, ended := m.next()
	if frame != nil {
		m.time = frame.Time
	} else if ended {
		m.handleEnd()
	}

	return frame
}

// next pulls the next frame, feeding packets to the decoder as needed.
// ended is set once the decoder is drained at the end of the stream.
func (m *MPEG4) next() (frame *Frame, ended bool) {
	for {
		frame, err := m.decoder.ReceiveFrame()
		if err == nil {
			return frame, false
		}
		if errors.Is(err, ErrEOF) {
			return nil, true
		}

		packet := m.stream.Decode()
		if packet == nil {
			if !m.stream.HasEnded() {
				return nil, false
			}

			packet = &Packet{}
		}

		if err := m.decoder.SendPacket(packet); err != nil {
			m.decoder.log.Warn("packet not decoded", zap.Error(err))
		}
	}
}

func (m *MPEG4) handleEnd() {
	if m.loop {
		m.Rewind()

		return
	}

	m.hasEnded = true
	select {
	case m.done <- true:
	default:
	}
}
