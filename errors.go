package mpeg4

import (
	"io"

	"github.com/pkg/errors"
)

// Error kinds returned by the decoder. Every error from the public API wraps exactly one of them,
// use errors.Is to classify.
var (
	// ErrInvalidData is returned for malformed or desynchronized bitstreams.
	ErrInvalidData = errors.New("mpeg4: invalid data")

	// ErrUnsupported is returned for valid streams that use a tool this decoder does not implement.
	ErrUnsupported = errors.New("mpeg4: unsupported")

	// ErrNeedMoreData is returned by ReceiveFrame when SendPacket must be called first.
	ErrNeedMoreData = errors.New("mpeg4: need more data")

	// ErrEOF is returned by ReceiveFrame once the decoder was flushed and drained.
	ErrEOF = io.EOF
)

func invalidf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidData, format, args...)
}

func unsupportedf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrUnsupported, format, args...)
}
