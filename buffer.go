package mpeg4

import (
	"io"

	"github.com/pkg/errors"
)

var (
	// BufferSize is the default size for buffer.
	BufferSize = 128 * 1024
)

// LoadFunc callback function.
type LoadFunc func(buffer *Buffer)

// Buffer provides the data source for all other interfaces.
// It is also the MSB-first bit reader used by the decoder. Reads past the end of the data
// return zero bits and set a sticky overrun flag instead of failing.
type Buffer struct {
	reader io.Reader
	bytes  []byte

	bitIndex  int
	totalSize int

	hasEnded    bool
	discardRead bool
	static      bool
	overrun     bool

	available    []byte
	loadCallback LoadFunc
}

// NewBuffer creates a buffer instance.
func NewBuffer(r io.Reader) (*Buffer, error) {
	buf := &Buffer{}

	if r != nil {
		seeker, ok := r.(io.Seeker)
		if ok {
			cur, err := seeker.Seek(0, io.SeekCurrent)
			if err != nil {
				return nil, err
			}
			off, err := seeker.Seek(0, io.SeekEnd)
			if err != nil {
				return nil, err
			}
			buf.totalSize = int(off)
			_, err = seeker.Seek(cur, io.SeekStart)
			if err != nil {
				return nil, err
			}
		}
	}

	buf.reader = r
	buf.bytes = make([]byte, 0, BufferSize)
	buf.available = make([]byte, BufferSize)

	buf.discardRead = true

	return buf, nil
}

// NewBufferBytes creates a read-only buffer over data. The data is not copied and never modified.
func NewBufferBytes(data []byte) *Buffer {
	return &Buffer{
		bytes:     data,
		totalSize: len(data),
		static:    true,
	}
}

// Bytes returns a slice holding the unread portion of the buffer.
func (b *Buffer) Bytes() []byte {
	return b.bytes
}

// Index returns byte index.
func (b *Buffer) Index() int {
	return b.bitIndex >> 3
}

// Seekable returns true if reader is seekable.
func (b *Buffer) Seekable() bool {
	return b.reader != nil && b.totalSize > 0
}

// Write appends the contents of p to the buffer.
func (b *Buffer) Write(p []byte) int {
	if b.static {
		return 0
	}

	if b.discardRead {
		b.discardReadBytes()
	}

	b.bytes = append(b.bytes, p...)

	b.hasEnded = false

	return len(p)
}

// SignalEnd marks the current byte length as the end of this buffer and signal that no
// more data is expected to be written to it. This function should be called
// just after the last Write().
func (b *Buffer) SignalEnd() {
	b.totalSize = len(b.bytes)
}

// SetLoadCallback sets a callback that is called whenever the buffer needs more data.
func (b *Buffer) SetLoadCallback(callback LoadFunc) {
	b.loadCallback = callback
}

// Rewind the buffer back to the beginning. When loading from io.ReadSeeker,
// this also seeks to the beginning.
func (b *Buffer) Rewind() {
	b.seek(0)
}

// Size returns the total size. For io.ReadSeeker, this returns the total size. For all other
// types it returns the number of bytes currently in the buffer.
func (b *Buffer) Size() int {
	if b.totalSize > 0 {
		return b.totalSize
	}

	return len(b.bytes)
}

// Remaining returns the number of remaining (yet unread) bytes in the buffer.
// This can be useful to throttle writing.
func (b *Buffer) Remaining() int {
	return len(b.bytes) - (b.bitIndex >> 3)
}

// HasEnded checks whether the read position of the buffer is at the end and no more data is expected.
func (b *Buffer) HasEnded() bool {
	return b.hasEnded
}

// LoadReaderCallback is a callback that is called whenever the buffer needs more data.
func (b *Buffer) LoadReaderCallback(buffer *Buffer) {
	if b.hasEnded {
		return
	}

	p := b.available

	n, err := io.ReadFull(b.reader, p)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			p = p[:n]
		} else if err == io.EOF {
			b.hasEnded = true

			return
		}
	}

	if n == 0 {
		b.hasEnded = true

		return
	}

	b.Write(p)
}

func (b *Buffer) seek(pos int) {
	b.hasEnded = false
	b.overrun = false

	switch {
	case b.static:
		b.bitIndex = pos << 3
	case b.reader != nil && b.totalSize > 0:
		seeker := b.reader.(io.Seeker)
		_, _ = seeker.Seek(int64(pos), io.SeekStart)
		b.bytes = b.bytes[:0]

		b.bitIndex = 0
	case b.reader == nil:
		if pos != 0 {
			return
		}

		b.bytes = b.bytes[:0]

		b.bitIndex = 0
	}
}

func (b *Buffer) discardReadBytes() {
	bytePos := b.bitIndex >> 3
	if bytePos == len(b.bytes) {
		b.bytes = b.bytes[:0]

		b.bitIndex = 0
	} else if bytePos > 0 {
		copy(b.bytes, b.bytes[bytePos:])
		b.bytes = b.bytes[:len(b.bytes)-bytePos]

		b.bitIndex -= bytePos << 3
	}
}

func (b *Buffer) has(count int) bool {
	if ((len(b.bytes) << 3) - b.bitIndex) >= count {
		return true
	}

	if b.loadCallback != nil {
		b.loadCallback(b)

		if ((len(b.bytes) << 3) - b.bitIndex) >= count {
			return true
		}
	}

	if b.totalSize != 0 && len(b.bytes) == b.totalSize {
		b.hasEnded = true
	}

	return false
}

// bitsLeft returns the number of unread bits currently held.
func (b *Buffer) bitsLeft() int {
	return (len(b.bytes) << 3) - b.bitIndex
}

func (b *Buffer) read(count int) int {
	if !b.has(count) {
		b.overrun = true
		b.bitIndex = len(b.bytes) << 3

		return 0
	}

	value := 0
	for count != 0 {
		currentByte := int(b.bytes[b.bitIndex>>3])

		remaining := 8 - (b.bitIndex & 7) // Remaining bits in byte
		read := count
		if remaining < count { // Bits in self run
			read = remaining
		}

		shift := remaining - read
		mask := 0xff >> (8 - read)

		value = (value << read) | ((currentByte & (mask << shift)) >> shift)

		b.bitIndex += read
		count -= read
	}

	return value
}

func (b *Buffer) read1() int {
	if !b.has(1) {
		b.overrun = true

		return 0
	}

	currentByte := int(b.bytes[b.bitIndex>>3])

	shift := 7 - (b.bitIndex & 7)
	value := (currentByte & (1 << shift)) >> shift

	b.bitIndex += 1

	return value
}

// peek returns the next count bits without consuming them. Missing bits read as zero.
func (b *Buffer) peek(count int) int {
	left := b.bitsLeft()
	if left >= count {
		pos := b.bitIndex
		value := b.read(count)
		b.bitIndex = pos

		return value
	}

	if left <= 0 {
		return 0
	}

	pos := b.bitIndex
	value := b.read(left)
	b.bitIndex = pos

	return value << (count - left)
}

func (b *Buffer) align() {
	b.bitIndex = ((b.bitIndex + 7) >> 3) << 3 // Align to next byte
}

func (b *Buffer) skip(count int) {
	if b.has(count) {
		b.bitIndex += count
	} else {
		b.overrun = true
		b.bitIndex = len(b.bytes) << 3
	}
}

func (b *Buffer) nextStartCode() int {
	b.align()

	for b.has(5 << 3) {
		data := b.bytes
		byteIndex := b.bitIndex >> 3
		if data[byteIndex] == 0x00 &&
			data[byteIndex+1] == 0x00 &&
			data[byteIndex+2] == 0x01 {
			b.bitIndex = (byteIndex + 4) << 3

			return int(data[byteIndex+3])
		}

		b.bitIndex += 8
	}

	// The last start code of a finite buffer may have fewer than 5 bytes after it.
	if b.static || b.hasEnded {
		data := b.bytes
		for byteIndex := b.bitIndex >> 3; byteIndex+3 < len(data); byteIndex++ {
			if data[byteIndex] == 0x00 && data[byteIndex+1] == 0x00 && data[byteIndex+2] == 0x01 {
				b.bitIndex = (byteIndex + 4) << 3

				return int(data[byteIndex+3])
			}
		}
		b.bitIndex = len(data) << 3
	}

	return -1
}

// scanUnit appends the bytes from the current position up to the next start code to dst and
// returns them together with that start code, which is consumed. At the end of the data the
// remaining bytes are appended and the code is -1. The code is -2 when more data has to be
// written to the buffer first.
func (b *Buffer) scanUnit(dst []byte) ([]byte, int) {
	b.align()

	for {
		if !b.has(4<<3) && !b.reload(4<<3) {
			if !b.static && !b.hasEnded {
				return dst, -2
			}

			if i := b.bitIndex >> 3; i < len(b.bytes) {
				dst = append(dst, b.bytes[i:]...)
			}
			b.bitIndex = len(b.bytes) << 3

			return dst, -1
		}

		data := b.bytes
		i := b.bitIndex >> 3
		if data[i] == 0x00 && data[i+1] == 0x00 && data[i+2] == 0x01 {
			b.bitIndex = (i + 4) << 3

			return dst, int(data[i+3])
		}

		dst = append(dst, data[i])
		b.bitIndex += 8
	}
}

// reload retries has once more through the load callback, a reader may return a short read
// before it reports the end.
func (b *Buffer) reload(count int) bool {
	if b.static || b.hasEnded || b.loadCallback == nil {
		return false
	}

	return b.has(count)
}

// readVlcOk walks a table built by newVlcTable and reports whether a valid code was found.
func (b *Buffer) readVlcOk(table []vlc) (int, bool) {
	var state vlc

	for {
		state = table[int(state.Index)+b.read1()]
		if state.Index <= 0 {
			break
		}
	}

	return int(state.Value), state.Index == 0 && !b.overrun
}

// FindStartCode returns the offset just past the first 00 00 01 <code> in data, or -1.
func FindStartCode(data []byte, code byte) int {
	for i := 0; i+3 < len(data); i++ {
		if data[i] == 0x00 && data[i+1] == 0x00 && data[i+2] == 0x01 && data[i+3] == code {
			return i + 4
		}
	}

	return -1
}

// FindStartCodeRange returns the offset just past the first start code with a code in [lo, hi]
// together with the code, or -1 if there is none.
func FindStartCodeRange(data []byte, lo, hi byte) (int, byte) {
	for i := 0; i+3 < len(data); i++ {
		if data[i] == 0x00 && data[i+1] == 0x00 && data[i+2] == 0x01 && data[i+3] >= lo && data[i+3] <= hi {
			return i + 4, data[i+3]
		}
	}

	return -1, 0
}

type vlc struct {
	Index int16
	Value int16
}

// vlcCode is one codeword of a prefix code, MSB-first in the low Len bits of Code.
type vlcCode struct {
	Code  uint32
	Len   int
	Value int16
}

// newVlcTable builds a binary decoding tree in the layout read by readVlcOk.
// A node occupies two consecutive entries, one per bit. Inner entries hold the offset of their child node,
// leaves have Index 0 and unused branches Index -1.
func newVlcTable(codes []vlcCode) []vlc {
	table := []vlc{{-1, 0}, {-1, 0}}

	for _, c := range codes {
		node := 0
		for i := c.Len - 1; i >= 0; i-- {
			entry := node + int((c.Code>>uint(i))&1)
			if i == 0 {
				table[entry] = vlc{0, c.Value}

				break
			}

			if table[entry].Index <= 0 {
				child := len(table)
				table = append(table, vlc{-1, 0}, vlc{-1, 0})
				table[entry] = vlc{int16(child), 0}
			}
			node = int(table[entry].Index)
		}
	}

	return table
}
