package mpeg4

import (
	"math/bits"
	"testing"
)

func TestCBPY(t *testing.T) {
	tables := loadVlcTables()

	tests := []struct {
		data  byte
		intra bool
		want  int
	}{
		{0xc0, true, 15},
		{0xc0, false, 0},
		{0x30, true, 0},
		{0x30, false, 15},
		{0x90, true, 3},
	}

	for _, tt := range tests {
		v, ok := tables.readCBPY(NewBufferBytes([]byte{tt.data}), tt.intra)
		if !ok {
			t.Errorf("readCBPY(%08b, %v): no code", tt.data, tt.intra)
			continue
		}
		if v != tt.want {
			t.Errorf("readCBPY(%08b, %v): got %d, want %d", tt.data, tt.intra, v, tt.want)
		}
	}
}

func TestCBPYIntraInter(t *testing.T) {
	tables := loadVlcTables()

	for data := 0; data < 256; data++ {
		intra, ok := tables.readCBPY(NewBufferBytes([]byte{byte(data)}), true)
		if !ok {
			continue
		}
		inter, _ := tables.readCBPY(NewBufferBytes([]byte{byte(data)}), false)

		if intra+inter != 15 {
			t.Errorf("%08b: intra %d + inter %d != 15", data, intra, inter)
		}
	}
}

func TestMCBPC(t *testing.T) {
	tables := loadVlcTables()

	tests := []struct {
		code     int
		length   int
		intraVop bool
		mbType   int
		cbpc     int
	}{
		{0x1, 1, true, mbIntra, 0},
		{0x3, 3, true, mbIntra, 3},
		{0x1, 4, true, mbIntraQ, 0},
		{0x1, 9, true, mbStuffing, 0},
		{0x1, 1, false, mbInter, 0},
		{0x3, 3, false, mbInterQ, 0},
		{0x2, 3, false, mbInter4V, 0},
		{0x3, 5, false, mbIntra, 0},
		{0x4, 6, false, mbIntraQ, 0},
		{0x1, 9, false, mbStuffing, 0},
	}

	for _, tt := range tests {
		w := &BitWriter{}
		w.Write(tt.code, tt.length)
		w.Write(0, 16)

		mbType, cbpc, ok := tables.readMCBPC(NewBufferBytes(w.Bytes()), tt.intraVop)
		if !ok {
			t.Errorf("readMCBPC(%d/%d): no code", tt.code, tt.length)
			continue
		}
		if mbType != tt.mbType || cbpc != tt.cbpc {
			t.Errorf("readMCBPC(%d/%d): got %d/%d, want %d/%d", tt.code, tt.length, mbType, cbpc, tt.mbType, tt.cbpc)
		}
	}
}

func TestMVD(t *testing.T) {
	tables := loadVlcTables()

	w := &BitWriter{}
	w.Write(0x1, 1) // 0
	w.Write(0x1, 2) // 1
	w.Write(0, 1)
	w.Write(0x3, 6) // 4
	w.Write(1, 1)
	w.Write(0x2, 12) // 32
	w.Write(0, 1)

	b := NewBufferBytes(w.Bytes())
	for _, want := range []int{0, 1, -4, 32} {
		v, ok := tables.readMVD(b)
		if !ok {
			t.Fatalf("readMVD: no code for %d", want)
		}
		if v != want {
			t.Errorf("readMVD: got %d, want %d", v, want)
		}
	}
}

func TestIntraDC(t *testing.T) {
	tables := loadVlcTables()

	w := &BitWriter{}
	w.Write(0x3, 3) // luma size 0
	w.Write(0x2, 3) // luma size 3
	w.Write(0x4, 3) // 4
	w.Write(0x1, 2) // chroma size 2
	w.Write(0x0, 2) // -3
	w.Write(0, 8)

	b := NewBufferBytes(w.Bytes())
	for _, tt := range []struct {
		luma bool
		want int
	}{{true, 0}, {true, 4}, {false, -3}} {
		v, ok := tables.readIntraDC(b, tt.luma)
		if !ok {
			t.Fatalf("readIntraDC: no code for %d", tt.want)
		}
		if v != tt.want {
			t.Errorf("readIntraDC: got %d, want %d", v, tt.want)
		}
	}
}

func TestACEvent(t *testing.T) {
	tables := loadVlcTables()

	w := &BitWriter{}
	w.Write(0x2, 2) // last 0, run 0, level 1
	w.Write(1, 1)   // negative
	w.Write(0x7, 4) // last 1, run 0, level 1 (inter)
	w.Write(0, 1)
	w.Write(0x3, 7) // escape
	w.Write(0x3, 2) // fixed length
	w.Write(1, 1)   // last
	w.Write(5, 6)   // run
	w.Write(1, 1)
	w.Write(4096-100, 12)
	w.Write(1, 1)
	w.Write(0, 8)

	b := NewBufferBytes(w.Bytes())
	want := [][3]int{{0, 0, -1}, {1, 0, 1}, {1, 5, -100}}
	for _, e := range want {
		last, run, level, ok := tables.readACEvent(b, false)
		if !ok {
			t.Fatalf("readACEvent: no event for %v", e)
		}
		if got := [3]int{last, run, level}; got != e {
			t.Errorf("readACEvent: got %v, want %v", got, e)
		}
	}
}

func TestACEscapeLevel(t *testing.T) {
	tables := loadVlcTables()

	// Escape with a level offset: run 0, level 1 plus the maximum level 12 of run 0.
	w := &BitWriter{}
	w.Write(0x3, 7)
	w.Write(0, 1)
	w.Write(0x2, 2)
	w.Write(0, 1)
	w.Write(0, 8)

	last, run, level, ok := tables.readACEvent(NewBufferBytes(w.Bytes()), false)
	if !ok {
		t.Fatal("readACEvent: no event")
	}
	if last != 0 || run != 0 || level != 13 {
		t.Errorf("readACEvent: got %d %d %d, want %d %d %d", last, run, level, 0, 0, 13)
	}
}

func writeTrajectory(w *BitWriter, v int) {
	a := v
	if a < 0 {
		a = -a
	}
	n := bits.Len(uint(a))

	w.Write(1, n+1)
	if n == 0 {
		return
	}
	if v < 0 {
		v += 1<<n - 1
	}
	w.Write(v, n)
}

func TestTrajectory(t *testing.T) {
	values := []int{0, 1, -1, 2, -3, 5, -5, 17, -100, 1000, -2047, 2047}

	w := &BitWriter{}
	for _, v := range values {
		writeTrajectory(w, v)
	}
	w.Write(0, 8)

	b := NewBufferBytes(w.Bytes())
	for _, want := range values {
		v, ok := readTrajectory(b)
		if !ok {
			t.Fatalf("readTrajectory: no code for %d", want)
		}
		if v != want {
			t.Errorf("readTrajectory: got %d, want %d", v, want)
		}
	}
}

func TestTrajectoryCodes(t *testing.T) {
	tests := []struct {
		data []byte
		want int
		ok   bool
	}{
		{[]byte{0x80}, 0, true},             // 1
		{[]byte{0x1a}, 5, true},             // 0001 101
		{[]byte{0x14}, -5, true},            // 0001 010
		{[]byte{0x60}, 1, true},             // 01 1
		{[]byte{0x40}, -1, true},            // 01 0
		{[]byte{0x00, 0x10, 0x00}, -2047, true}, // 11 zeros, 1, 11 zero bits
		{[]byte{0x00, 0x08, 0xff}, 0, false},
	}

	for i, tt := range tests {
		v, ok := readTrajectory(NewBufferBytes(tt.data))
		if ok != tt.ok {
			t.Errorf("%d: readTrajectory ok: got %v, want %v", i, ok, tt.ok)
			continue
		}
		if ok && v != tt.want {
			t.Errorf("%d: readTrajectory: got %d, want %d", i, v, tt.want)
		}
	}
}
