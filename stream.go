package mpeg4

import (
	"github.com/pkg/errors"
)

// ErrInvalidHeader is the error returned when no video object layer precedes the first VOP.
var ErrInvalidHeader = errors.New("mpeg4: no video object layer header")

// Stream splits an MPEG-4 Visual elementary stream (.m4v, .cmp) into packets of one VOP each.
// Headers in front of the first VOP are collected as extra data for the decoder, GOV headers
// and user data later in the stream travel in the packet of the VOP they precede.
type Stream struct {
	buf *Buffer

	hasHeaders bool
	hasVOL     bool
	extraData  []byte

	// start code read ahead of its payload, -1 for none
	startCode int

	unit   []byte
	data   []byte
	packet Packet
}

// NewStream creates a stream splitter with buffer as a source.
func NewStream(buf *Buffer) (*Stream, error) {
	s := &Stream{
		buf:       buf,
		startCode: -1,
	}

	if !s.HasHeaders() {
		return nil, ErrInvalidHeader
	}

	return s, nil
}

// Buffer returns stream buffer.
func (s *Stream) Buffer() *Buffer {
	return s.buf
}

// ExtraData returns the headers found in front of the first VOP.
func (s *Stream) ExtraData() []byte {
	return s.extraData
}

// HasHeaders checks whether the sequence headers up to the first VOP have been read.
// This will attempt to read them if they are not there yet.
func (s *Stream) HasHeaders() bool {
	if s.hasHeaders {
		return true
	}

	for {
		code := s.startCode
		if code < 0 {
			code = s.buf.nextStartCode()
			if code < 0 {
				return false
			}
			s.startCode = code
		}

		if code == startVop || code == startGov {
			s.hasHeaders = s.hasVOL

			return s.hasHeaders
		}

		var next int
		s.unit, next = s.buf.scanUnit(s.unit)
		if next == -2 {
			return false
		}

		s.extraData = append(s.extraData, 0x00, 0x00, 0x01, byte(code))
		s.extraData = append(s.extraData, s.unit...)
		s.unit = s.unit[:0]
		if code >= startVolFirst && code <= startVolLast {
			s.hasVOL = true
		}

		s.startCode = next
		if next < 0 {
			return false
		}
	}
}

// Rewind rewinds the internal buffer. Headers are read again.
func (s *Stream) Rewind() {
	s.buf.Rewind()
	s.startCode = -1
	s.hasHeaders = false
	s.hasVOL = false
	s.extraData = nil
	s.unit = s.unit[:0]
	s.data = nil
}

// HasEnded checks whether the stream has ended. This will be cleared on rewind.
func (s *Stream) HasEnded() bool {
	return s.hasHeaders && s.startCode < 0 && s.buf.HasEnded()
}

// Decode returns the next packet, or nil at the end of the stream or when more data has to be
// written to the buffer. The packet data is not reused by later calls.
func (s *Stream) Decode() *Packet {
	if !s.HasHeaders() {
		return nil
	}

	for s.startCode >= 0 {
		code := s.startCode

		var next int
		s.unit, next = s.buf.scanUnit(s.unit)
		if next == -2 {
			return nil
		}

		if code != startVosEnd {
			s.data = append(s.data, 0x00, 0x00, 0x01, byte(code))
			s.data = append(s.data, s.unit...)
		}
		keyFrame := code == startVop && len(s.unit) > 0 && s.unit[0]>>6 == pictureTypeIntra
		s.unit = s.unit[:0]
		s.startCode = next

		if code == startVop {
			s.packet = Packet{
				Data:     s.data,
				Pts:      NoPTS,
				Dts:      NoPTS,
				KeyFrame: keyFrame,
			}
			s.data = nil

			return &s.packet
		}
	}

	return nil
}
