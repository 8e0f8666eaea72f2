package mpeg4_test

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/gen2brain/mpeg4"
)

const objectAdvancedSimple = 17

func newDecoderOptions(t *testing.T, o volOptions) *mpeg4.Decoder {
	t.Helper()

	w := &mpeg4.BitWriter{}
	writeVOLOptions(w, o)

	d := mpeg4.NewDecoder()
	if err := d.Open(&mpeg4.CodecParameters{CodecID: mpeg4.CodecMPEG4, ExtraData: w.Bytes()}); err != nil {
		t.Fatal(err)
	}
	d.SetReorderDepth(0)

	return d
}

// writeIntraDCs writes the differential DC of the four luma blocks, each 0 or +-4, and of the
// two chroma blocks as 0.
func writeIntraDCs(w *mpeg4.BitWriter, dc [4]int) {
	for _, v := range dc {
		switch v {
		case 0:
			w.Write(0x3, 3) // size 0
		case 4:
			w.Write(0x2, 3) // size 3
			w.Write(0x4, 3)
		case -4:
			w.Write(0x2, 3)
			w.Write(0x3, 3)
		}
	}
	w.Write(0x3, 2)
	w.Write(0x3, 2)
}

func writeIntraMBDC(w *mpeg4.BitWriter, o volOptions, dc [4]int, fieldDCT bool) {
	w.Write(1, 1)   // mcbpc: intra, cbpc 0
	w.Write(0, 1)   // ac_pred_flag
	w.Write(0x3, 4) // cbpy 0
	if o.interlaced {
		w.Write(bit(fieldDCT), 1)
	}
	writeIntraDCs(w, dc)
}

// twoLevelIntraVOP codes a 32x16 I-VOP with a left macroblock of 132 and a right one of 128.
func twoLevelIntraVOP(o volOptions) []byte {
	w := &mpeg4.BitWriter{}
	writeVOPHeaderOptions(w, o, vopI, 0, true)
	writeIntraMBDC(w, o, [4]int{4, 0, 0, 0}, false)
	writeIntraMBDC(w, o, [4]int{-4, 0, 0, 0}, false)
	w.Stuff()

	return w.Bytes()
}

// checkLuma compares every luma sample with want and reports the first difference.
func checkLuma(t *testing.T, p mpeg4.Plane, want func(x, y int) byte) {
	t.Helper()

	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			if v := p.Data[y*p.Width+x]; v != want(x, y) {
				t.Errorf("Y(%d,%d): got %d, want %d", x, y, v, want(x, y))
				return
			}
		}
	}
}

// shiftedColumn is the second macroblock of a two level VOP moved one sample to the right.
func shiftedColumn(x, y int) byte {
	if x <= 16 {
		return 132
	}

	return 128
}

func TestDecoderGMC(t *testing.T) {
	// Half sample accuracy: the warping point moves 16 samples to the left.
	o := volOptions{objectType: objectAdvancedSimple, width: 32, height: 16, gmc: true, trajectory: [2]int{-32, 0}}
	d := newDecoderOptions(t, o)

	send(t, d, twoLevelIntraVOP(o))
	intra := receive(t, d)
	checkFlat(t, "I mb 1", intra.Y, 16, 0, 16, 128)

	w := &mpeg4.BitWriter{}
	writeVOPHeaderOptions(w, o, vopS, 1, true)
	w.Write(0, 1)   // not_coded
	w.Write(1, 1)   // mcbpc: inter, cbpc 0
	w.Write(1, 1)   // mcsel
	w.Write(0x3, 2) // cbpy 0
	w.Write(1, 1)   // not_coded, also predicted by global motion
	w.Stuff()

	send(t, d, w.Bytes())
	frame := receive(t, d)

	if frame.PictureType != mpeg4.PictureS {
		t.Errorf("PictureType: got %v, want %v", frame.PictureType, mpeg4.PictureS)
	}
	checkFlat(t, "Y mb 0", frame.Y, 0, 0, 16, 132)
	checkFlat(t, "Y mb 1", frame.Y, 16, 0, 16, 132)
	checkFlat(t, "Cb", frame.Cb, 0, 0, 8, 128)
}

func TestDecoderInter4V(t *testing.T) {
	o := volOptions{objectType: objectSimple, width: 32, height: 16}
	d := newDecoderOptions(t, o)

	send(t, d, twoLevelIntraVOP(o))
	receive(t, d)

	w := &mpeg4.BitWriter{}
	writeVOPHeaderOptions(w, o, vopP, 1, true)
	w.Write(1, 1) // not_coded

	w.Write(0, 1)   // coded
	w.Write(0x2, 3) // mcbpc: inter4v, cbpc 0
	w.Write(0x3, 2) // cbpy 0

	// The left blocks point one sample to the left, the right ones do not move.
	for _, mvd := range []int{
		0x3, // block 0: -2 from (0,0)
		0x2, // block 1: +2 from (-2,0)
		0x3, // block 2: -2 from the median (0,0)
		0x2, // block 3: +2 from the median (-2,0)
	} {
		w.Write(mvd, 4)
		w.Write(1, 1) // vertical 0
	}
	w.Stuff()

	send(t, d, w.Bytes())
	frame := receive(t, d)

	checkLuma(t, frame.Y, shiftedColumn)
	checkFlat(t, "Cb", frame.Cb, 8, 0, 8, 128)
}

func TestDecoderQuarterPel(t *testing.T) {
	o := volOptions{objectType: objectAdvancedSimple, width: 32, height: 16, quarterPel: true}
	d := newDecoderOptions(t, o)

	send(t, d, twoLevelIntraVOP(o))
	receive(t, d)

	w := &mpeg4.BitWriter{}
	writeVOPHeaderOptions(w, o, vopP, 1, true)
	w.Write(1, 1) // not_coded

	w.Write(0, 1)   // coded
	w.Write(1, 1)   // mcbpc: inter, cbpc 0
	w.Write(0x3, 2) // cbpy 0
	w.Write(0x3, 6) // horizontal 4
	w.Write(1, 1)   // negative, one full sample to the left
	w.Write(1, 1)   // vertical 0
	w.Stuff()

	send(t, d, w.Bytes())
	frame := receive(t, d)

	checkLuma(t, frame.Y, shiftedColumn)
}

func TestDecoderQuantType(t *testing.T) {
	tests := []struct {
		name        string
		interMatrix int
		want        byte
	}{
		{"h263", 0, 138},
		{"mpeg", 8, 135},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := volOptions{objectType: objectSimple, width: 16, height: 16, interMatrix: tt.interMatrix}
			d := newDecoderOptions(t, o)

			send(t, d, intraVOP(0, 4))
			receive(t, d)

			w := &mpeg4.BitWriter{}
			writeVOPHeaderOptions(w, o, vopP, 1, true)
			w.Write(0, 1)   // coded
			w.Write(1, 1)   // mcbpc: inter, cbpc 0
			w.Write(0xb, 4) // cbpy: block 0
			w.Write(1, 1)   // mvd 0
			w.Write(1, 1)

			// DC level 12 through the third escape.
			w.Write(0x3, 7)
			w.Write(0x3, 2)
			w.Write(1, 1) // last
			w.Write(0, 6)
			w.Write(1, 1)
			w.Write(12, 12)
			w.Write(1, 1)
			w.Stuff()

			send(t, d, w.Bytes())
			frame := receive(t, d)

			checkFlat(t, "Y block 0", frame.Y, 0, 0, 8, tt.want)
			checkFlat(t, "Y block 3", frame.Y, 8, 8, 8, 132)
		})
	}
}

func TestDecoderInterlaced(t *testing.T) {
	tests := []struct {
		name     string
		fieldDCT bool
		want     func(x, y int) byte
	}{
		{"frame", false, func(x, y int) byte {
			if y < 8 {
				return 132
			}
			return 128
		}},
		{"field", true, func(x, y int) byte {
			if y&1 == 0 {
				return 132
			}
			return 128
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := volOptions{objectType: objectAdvancedSimple, width: 16, height: 16, interlaced: true}
			d := newDecoderOptions(t, o)

			w := &mpeg4.BitWriter{}
			writeVOPHeaderOptions(w, o, vopI, 0, true)
			writeIntraMBDC(w, o, [4]int{4, 0, -4, 0}, tt.fieldDCT)
			w.Stuff()

			send(t, d, w.Bytes())
			frame := receive(t, d)

			if !d.Config().Interlaced {
				t.Error("Interlaced: not set")
			}
			checkLuma(t, frame.Y, tt.want)
		})
	}
}

func TestDecoderPartitioned(t *testing.T) {
	o := volOptions{objectType: objectSimple, width: 32, height: 16, resync: true, partitioned: true}
	d := newDecoderOptions(t, o)

	w := &mpeg4.BitWriter{}
	writeVOPHeaderOptions(w, o, vopI, 0, true)
	w.Write(1, 1) // mcbpc: intra, cbpc 0
	writeIntraDCs(w, [4]int{4, 0, 0, 0})
	w.Write(1, 1)
	writeIntraDCs(w, [4]int{-4, 0, 0, 0})
	w.Write(0x6b001, 19) // dc_marker
	for i := 0; i < 2; i++ {
		w.Write(0, 1)   // ac_pred_flag
		w.Write(0x3, 4) // cbpy 0
	}
	w.Stuff()

	send(t, d, w.Bytes())
	intra := receive(t, d)

	checkFlat(t, "I mb 0", intra.Y, 0, 0, 16, 132)
	checkFlat(t, "I mb 1", intra.Y, 16, 0, 16, 128)

	w = &mpeg4.BitWriter{}
	writeVOPHeaderOptions(w, o, vopP, 1, true)
	w.Write(1, 1)        // not_coded
	w.Write(0, 1)        // coded
	w.Write(1, 1)        // mcbpc: inter, cbpc 0
	w.Write(0x3, 4)      // mvd -2
	w.Write(1, 1)        // mvd 0
	w.Write(0x1f001, 17) // motion_marker
	w.Write(0x3, 2)      // cbpy 0
	w.Stuff()

	send(t, d, w.Bytes())
	frame := receive(t, d)

	checkLuma(t, frame.Y, shiftedColumn)
}

func TestDecoderPartitionedPackets(t *testing.T) {
	o := volOptions{objectType: objectSimple, width: 32, height: 16, resync: true, partitioned: true}
	d := newDecoderOptions(t, o)

	w := &mpeg4.BitWriter{}
	writeVOPHeaderOptions(w, o, vopI, 0, true)
	for mb := 0; mb < 2; mb++ {
		if mb > 0 {
			writeVideoPacket(w, mb, 1)
		}
		w.Write(1, 1)
		writeIntraDCs(w, [4]int{4, 0, 0, 0})
		w.Write(0x6b001, 19)
		w.Write(0, 1)
		w.Write(0x3, 4)
	}
	w.Stuff()

	send(t, d, w.Bytes())
	frame := receive(t, d)

	// The second packet predicts its DC from the default again.
	checkFlat(t, "Y mb 0", frame.Y, 0, 0, 16, 132)
	checkFlat(t, "Y mb 1", frame.Y, 16, 0, 16, 132)
}

func TestDecoderPartitionedUnsupported(t *testing.T) {
	tests := []struct {
		name string
		o    volOptions
	}{
		{"reversible", volOptions{objectType: objectAdvancedSimple, width: 16, height: 16, resync: true, partitioned: true, reversible: true}},
		{"interlaced", volOptions{objectType: objectAdvancedSimple, width: 16, height: 16, resync: true, partitioned: true, interlaced: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDecoderOptions(t, tt.o)

			w := &mpeg4.BitWriter{}
			writeVOPHeaderOptions(w, tt.o, vopI, 0, true)
			w.Stuff()

			err := d.SendPacket(&mpeg4.Packet{Data: w.Bytes(), Pts: mpeg4.NoPTS})
			if !errors.Is(err, mpeg4.ErrUnsupported) {
				t.Errorf("SendPacket: got %v, want %v", err, mpeg4.ErrUnsupported)
			}
		})
	}
}

func writeShortHeader(w *mpeg4.BitWriter, tr, typ, quant int) {
	w.Write(0x20, 22) // picture_start_code
	w.Write(tr, 8)
	w.Write(1, 1) // marker
	w.Write(0, 1) // zero_bit
	w.Write(0, 3)
	w.Write(1, 3) // source_format: sub-QCIF
	w.Write(typ, 1)
	w.Write(0, 4)
	w.Write(quant, 5)
	w.Write(0, 1) // zero_bit
	w.Write(0, 1) // pei
}

func writeShortIntraMB(w *mpeg4.BitWriter, luma, chroma int) {
	w.Write(1, 1)   // mcbpc: intra, cbpc 0
	w.Write(0x3, 4) // cbpy 0
	for n := 0; n < 6; n++ {
		if n < 4 {
			w.Write(luma, 8)
		} else {
			w.Write(chroma, 8)
		}
	}
}

func writeGOBHeader(w *mpeg4.BitWriter, gn, quant int) {
	w.Write(1, 17) // gob_start_code
	w.Write(gn, 5)
	w.Write(0, 2) // gob_frame_id
	w.Write(quant, 5)
}

func newShortHeaderDecoder(t *testing.T) *mpeg4.Decoder {
	t.Helper()

	d := mpeg4.NewDecoder()
	if err := d.Open(&mpeg4.CodecParameters{CodecID: mpeg4.CodecH263}); err != nil {
		t.Fatal(err)
	}

	return d
}

func TestDecoderShortHeader(t *testing.T) {
	d := newShortHeaderDecoder(t)

	w := &mpeg4.BitWriter{}
	writeShortHeader(w, 0, 0, 8)
	for mb := 0; mb < 48; mb++ {
		if mb == 8 {
			writeGOBHeader(w, 1, 12)
		}
		writeShortIntraMB(w, 100, 60)
	}
	w.Align()

	send(t, d, w.Bytes())
	frame := receive(t, d)

	if d.Width() != 128 || d.Height() != 96 {
		t.Errorf("Size: got %dx%d, want %dx%d", d.Width(), d.Height(), 128, 96)
	}
	if v, ok := flat(frame.Y, 0, 0, 128, 96); !ok || v != 100 {
		t.Errorf("Y: got %d (flat %v), want %d", v, ok, 100)
	}
	if v, ok := flat(frame.Cr, 0, 0, 64, 48); !ok || v != 60 {
		t.Errorf("Cr: got %d (flat %v), want %d", v, ok, 60)
	}
	if frame.PictureType != mpeg4.PictureI {
		t.Errorf("PictureType: got %v, want %v", frame.PictureType, mpeg4.PictureI)
	}
	if frame.TimeBase != (mpeg4.Rational{Num: 1, Den: 30000}) {
		t.Errorf("TimeBase: got %v, want %v", frame.TimeBase, mpeg4.Rational{Num: 1, Den: 30000})
	}
	if frame.Duration != 1001 {
		t.Errorf("Duration: got %d, want %d", frame.Duration, 1001)
	}

	w = &mpeg4.BitWriter{}
	writeShortHeader(w, 1, 1, 8)
	for mb := 0; mb < 48; mb++ {
		w.Write(1, 1) // cod
	}
	w.Align()

	send(t, d, w.Bytes())
	frame = receive(t, d)

	if frame.PictureType != mpeg4.PictureP {
		t.Errorf("PictureType: got %v, want %v", frame.PictureType, mpeg4.PictureP)
	}
	if frame.Pts != 1001 {
		t.Errorf("Pts: got %d, want %d", frame.Pts, 1001)
	}
	if v, ok := flat(frame.Y, 0, 0, 128, 96); !ok || v != 100 {
		t.Errorf("Y: got %d (flat %v), want %d", v, ok, 100)
	}

	// One picture is skipped, the first macroblock is intra coded.
	w = &mpeg4.BitWriter{}
	writeShortHeader(w, 3, 1, 8)
	w.Write(0, 1)   // cod
	w.Write(0x3, 5) // mcbpc: intra, cbpc 0
	w.Write(0x3, 4) // cbpy 0
	for n := 0; n < 6; n++ {
		w.Write(200, 8)
	}
	for mb := 1; mb < 48; mb++ {
		w.Write(1, 1)
	}
	w.Align()

	send(t, d, w.Bytes())
	frame = receive(t, d)

	if frame.Pts != 3003 {
		t.Errorf("Pts: got %d, want %d", frame.Pts, 3003)
	}
	checkFlat(t, "Y mb 0", frame.Y, 0, 0, 16, 200)
	checkFlat(t, "Y mb 1", frame.Y, 16, 0, 16, 100)
	checkFlat(t, "Cb mb 0", frame.Cb, 0, 0, 8, 200)
	checkFlat(t, "Cb mb 1", frame.Cb, 8, 0, 8, 60)
}

func TestDecoderShortHeaderConceal(t *testing.T) {
	d := newShortHeaderDecoder(t)

	w := &mpeg4.BitWriter{}
	writeShortHeader(w, 0, 0, 8)
	for mb := 0; mb < 16; mb++ {
		writeShortIntraMB(w, 100, 60)
	}

	// The first macroblock of GOB 2 has an invalid DC, decoding resumes at GOB 3.
	w.Write(1, 1)
	w.Write(0x3, 4)
	w.Write(0, 8)
	w.Align()
	writeGOBHeader(w, 3, 8)
	for mb := 24; mb < 48; mb++ {
		writeShortIntraMB(w, 100, 60)
	}
	w.Align()

	send(t, d, w.Bytes())
	frame := receive(t, d)

	for _, tt := range []struct {
		y, h int
		want byte
	}{
		{0, 32, 100},
		{32, 16, 128},
		{48, 48, 100},
	} {
		if v, ok := flat(frame.Y, 0, tt.y, 128, tt.h); !ok || v != tt.want {
			t.Errorf("Y rows %d-%d: got %d (flat %v), want %d", tt.y, tt.y+tt.h-1, v, ok, tt.want)
		}
	}
}

func TestDecoderShortHeaderPacket(t *testing.T) {
	d := newShortHeaderDecoder(t)

	var data []byte
	for tr := 0; tr < 2; tr++ {
		w := &mpeg4.BitWriter{}
		writeShortHeader(w, tr, tr, 8)
		for mb := 0; mb < 48; mb++ {
			if tr == 0 {
				writeShortIntraMB(w, 100, 60)
			} else {
				w.Write(1, 1)
			}
		}
		w.Align()
		data = append(data, w.Bytes()...)
	}

	send(t, d, data)

	var pts []int64
	for {
		frame, err := d.ReceiveFrame()
		if err != nil {
			break
		}
		pts = append(pts, frame.Pts)
	}

	if len(pts) != 2 || pts[0] != 0 || pts[1] != 1001 {
		t.Errorf("Pts: got %v, want %v", pts, []int64{0, 1001})
	}
}
