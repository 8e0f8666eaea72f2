package mpeg4

// BitWriter assembles bitstreams MSB-first for tests.
type BitWriter struct {
	data []byte
	bits int
}

// Write appends the low n bits of v.
func (w *BitWriter) Write(v int, n int) {
	for i := n - 1; i >= 0; i-- {
		if w.bits&7 == 0 {
			w.data = append(w.data, 0)
		}
		if (v>>uint(i))&1 != 0 {
			w.data[len(w.data)-1] |= 0x80 >> uint(w.bits&7)
		}
		w.bits++
	}
}

// Stuff writes a zero bit followed by ones up to the next byte boundary.
func (w *BitWriter) Stuff() {
	w.Write(0, 1)
	for w.bits&7 != 0 {
		w.Write(1, 1)
	}
}

// StartCode appends 00 00 01 code, stuffing first when not byte aligned.
func (w *BitWriter) StartCode(code byte) {
	if w.bits&7 != 0 {
		w.Stuff()
	}
	w.data = append(w.data, 0x00, 0x00, 0x01, code)
	w.bits += 32
}

// Bytes returns the written data.
func (w *BitWriter) Bytes() []byte {
	return w.data
}

// Align writes zero bits up to the next byte boundary.
func (w *BitWriter) Align() {
	for w.bits&7 != 0 {
		w.Write(0, 1)
	}
}
