package mpeg4

import (
	"strconv"
	"sync"

	"github.com/pkg/errors"
)

// CodecID identifies a codec in the registry.
type CodecID int

// Known codec ids.
const (
	CodecNone CodecID = iota
	CodecMPEG4
	CodecH263
	CodecH264
)

// String implements fmt.Stringer.
func (c CodecID) String() string {
	switch c {
	case CodecMPEG4:
		return "mpeg4"
	case CodecH263:
		return "h263"
	case CodecH264:
		return "h264"
	}

	return "codec(" + strconv.Itoa(int(c)) + ")"
}

// PixelFormat of decoded frames.
type PixelFormat int

// Pixel formats.
const (
	PixelFormatNone PixelFormat = iota
	PixelFormatYUV420P
)

// NoPTS marks a packet or frame without a timestamp.
const NoPTS int64 = -1 << 63

// Rational is a fraction, used for time bases, frame rates and aspect ratios.
type Rational struct {
	Num int
	Den int
}

// Float returns the rational as float64, zero if the denominator is zero.
func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}

	return float64(r.Num) / float64(r.Den)
}

// Packet is one compressed access unit, as delivered by a demuxer.
// An empty Data signals the end of the stream.
type Packet struct {
	Data     []byte
	Pts      int64
	Dts      int64
	Duration int64
	TimeBase Rational
	KeyFrame bool
}

// VideoParameters are the open-time video properties of a stream.
type VideoParameters struct {
	Width             int
	Height            int
	PixelFormat       PixelFormat
	FrameRate         Rational
	SampleAspectRatio Rational
}

// CodecParameters configures a decoder at open time.
// ExtraData may contain the VOS/VO/VOL headers and user data of the stream.
type CodecParameters struct {
	CodecID   CodecID
	ExtraData []byte
	Video     VideoParameters
}

// VideoDecoder is the push/pull contract shared by video decoders.
type VideoDecoder interface {
	Open(params *CodecParameters) error
	SendPacket(packet *Packet) error
	ReceiveFrame() (*Frame, error)
	Flush()
}

// DecoderFactory creates a decoder instance.
type DecoderFactory func() VideoDecoder

type registry struct {
	factories map[CodecID]DecoderFactory
	mu        sync.RWMutex
}

var globalRegistry = &registry{
	factories: map[CodecID]DecoderFactory{
		CodecMPEG4: func() VideoDecoder { return NewDecoder() },
		CodecH263:  func() VideoDecoder { return NewDecoder() },
	},
}

// RegisterDecoder registers a decoder factory for codec, replacing any previous one.
func RegisterDecoder(codec CodecID, factory DecoderFactory) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.factories[codec] = factory
}

// NewVideoDecoder creates and opens a decoder for params.CodecID.
func NewVideoDecoder(params *CodecParameters) (VideoDecoder, error) {
	globalRegistry.mu.RLock()
	factory, ok := globalRegistry.factories[params.CodecID]
	globalRegistry.mu.RUnlock()

	if !ok {
		return nil, errors.Wrapf(ErrUnsupported, "no decoder for %v", params.CodecID)
	}

	dec := factory()
	if err := dec.Open(params); err != nil {
		return nil, err
	}

	return dec, nil
}
