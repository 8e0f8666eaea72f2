package mpeg4

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBufferRead(t *testing.T) {
	b := NewBufferBytes([]byte{0xa5, 0x0f, 0x80})

	if v := b.read(4); v != 0xa {
		t.Errorf("read(4): got %x, want %x", v, 0xa)
	}
	if v := b.peek(8); v != 0x50 {
		t.Errorf("peek(8): got %x, want %x", v, 0x50)
	}
	if v := b.read(12); v != 0x50f {
		t.Errorf("read(12): got %x, want %x", v, 0x50f)
	}
	if v := b.read1(); v != 1 {
		t.Errorf("read1: got %d, want %d", v, 1)
	}
	if b.overrun {
		t.Error("overrun: set before the end")
	}

	// Missing bits read as zero.
	if v := b.peek(10); v != 0 {
		t.Errorf("peek(10): got %x, want %x", v, 0)
	}
	if v := b.read(10); v != 0 || !b.overrun {
		t.Errorf("read(10): got %x, overrun %v", v, b.overrun)
	}
}

func TestBufferNextStartCode(t *testing.T) {
	b := NewBufferBytes([]byte{0xff, 0x00, 0x00, 0x01, 0xb6, 0x12, 0x00, 0x00, 0x01, 0xb1})

	if code := b.nextStartCode(); code != 0xb6 {
		t.Errorf("nextStartCode: got %x, want %x", code, 0xb6)
	}

	// The last code has no payload.
	if code := b.nextStartCode(); code != 0xb1 {
		t.Errorf("nextStartCode: got %x, want %x", code, 0xb1)
	}
	if code := b.nextStartCode(); code != -1 {
		t.Errorf("nextStartCode: got %x, want %d", code, -1)
	}
}

func TestBufferScanUnit(t *testing.T) {
	data := []byte{0x00, 0x00, 0x01, 0x20, 0x11, 0x22, 0x00, 0x00, 0x01, 0xb6, 0x33, 0x00}
	b := NewBufferBytes(data)

	if code := b.nextStartCode(); code != 0x20 {
		t.Fatalf("nextStartCode: got %x, want %x", code, 0x20)
	}

	unit, code := b.scanUnit(nil)
	if code != 0xb6 {
		t.Errorf("scanUnit: got code %x, want %x", code, 0xb6)
	}
	if diff := cmp.Diff([]byte{0x11, 0x22}, unit); diff != "" {
		t.Errorf("scanUnit mismatch (-want +got):\n%s", diff)
	}

	unit, code = b.scanUnit(unit[:0])
	if code != -1 {
		t.Errorf("scanUnit: got code %x, want %d", code, -1)
	}
	if diff := cmp.Diff([]byte{0x33, 0x00}, unit); diff != "" {
		t.Errorf("scanUnit mismatch (-want +got):\n%s", diff)
	}
}

func TestBufferScanUnitPartial(t *testing.T) {
	b, err := NewBuffer(nil)
	if err != nil {
		t.Fatal(err)
	}

	b.Write([]byte{0x11, 0x22, 0x00, 0x00})

	unit, code := b.scanUnit(nil)
	if code != -2 {
		t.Errorf("scanUnit: got code %d, want %d", code, -2)
	}

	b.Write([]byte{0x01, 0xb6})

	unit, code = b.scanUnit(unit)
	if code != 0xb6 {
		t.Errorf("scanUnit: got code %x, want %x", code, 0xb6)
	}
	if diff := cmp.Diff([]byte{0x11, 0x22}, unit); diff != "" {
		t.Errorf("scanUnit mismatch (-want +got):\n%s", diff)
	}
}

func TestFindStartCode(t *testing.T) {
	data := []byte{0x00, 0x00, 0x00, 0x01, 0xb0, 0x01, 0x00, 0x00, 0x01, 0xb6}

	if pos := FindStartCode(data, 0xb6); pos != 10 {
		t.Errorf("FindStartCode: got %d, want %d", pos, 10)
	}
	if pos := FindStartCode(data, 0xb3); pos != -1 {
		t.Errorf("FindStartCode: got %d, want %d", pos, -1)
	}

	pos, code := FindStartCodeRange(data, 0xb0, 0xbf)
	if pos != 5 || code != 0xb0 {
		t.Errorf("FindStartCodeRange: got %d %x, want %d %x", pos, code, 5, 0xb0)
	}
}

func TestVlcTable(t *testing.T) {
	table := newVlcTable([]vlcCode{
		{Code: 0x1, Len: 1, Value: 7},
		{Code: 0x1, Len: 2, Value: 8},
		{Code: 0x1, Len: 3, Value: 9},
	})

	// 1 01 001 000
	b := NewBufferBytes([]byte{0xa4, 0x00})

	var got []int
	for i := 0; i < 3; i++ {
		v, ok := b.readVlcOk(table)
		if !ok {
			t.Fatalf("readVlcOk %d: no code", i)
		}
		got = append(got, v)
	}

	if diff := cmp.Diff([]int{7, 8, 9}, got); diff != "" {
		t.Errorf("readVlcOk mismatch (-want +got):\n%s", diff)
	}

	if _, ok := b.readVlcOk(table); ok {
		t.Error("readVlcOk: unused code accepted")
	}
}

func TestBufferReader(t *testing.T) {
	data := []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xaa}

	b, err := NewBuffer(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	b.SetLoadCallback(b.LoadReaderCallback)

	if !b.Seekable() {
		t.Error("bytes.Reader not seekable")
	}
	if b.Size() != len(data) {
		t.Errorf("Size: got %d, want %d", b.Size(), len(data))
	}

	if v := b.read(8); v != 0x11 {
		t.Errorf("read(8): got %x, want %x", v, 0x11)
	}
	if b.Index() != 1 {
		t.Errorf("Index: got %d, want %d", b.Index(), 1)
	}
	if b.Remaining() != len(data)-1 {
		t.Errorf("Remaining: got %d, want %d", b.Remaining(), len(data)-1)
	}

	b.Rewind()
	if v := b.read(16); v != 0x1122 {
		t.Errorf("read(16) after rewind: got %x, want %x", v, 0x1122)
	}
}
