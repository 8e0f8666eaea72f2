package mpeg4

import (
	"testing"
)

func newIntraDecoder(width, height int, vop *VopHeader) *Decoder {
	d := NewDecoder()
	d.vol = &VolConfig{Width: width, Height: height}
	d.allocate(d.vol)
	for i := range d.predictors {
		d.predictors[i] = predictorDefault
	}
	d.vop = vop

	return d
}

func TestIntraDCRange(t *testing.T) {
	tests := []struct {
		diff int
		want int
		ok   bool
	}{
		{0, 1024, true},
		{-70, 0, true},
		{-64, 0, true},
		{70, 2047, true},
		{191, 2047, true},
		{192, 0, false},
	}

	for _, tt := range tests {
		d := newIntraDecoder(16, 16, &VopHeader{})
		d.blockData[0] = tt.diff

		// quant 8, luma scaler 16 and a predicted DC of 64
		err := d.reconstructIntraBlock(0, 0, 0, 8, 1, false, false)
		if (err == nil) != tt.ok {
			t.Errorf("diff %d: got error %v, want ok %v", tt.diff, err, tt.ok)
			continue
		}
		if !tt.ok {
			continue
		}

		if dc := d.predictor(0, 0, 0).dc; dc != tt.want {
			t.Errorf("diff %d: predictor dc: got %d, want %d", tt.diff, dc, tt.want)
		}
		if d.blockData[0] != tt.want {
			t.Errorf("diff %d: block dc: got %d, want %d", tt.diff, d.blockData[0], tt.want)
		}
	}
}

func TestIntraScanOrder(t *testing.T) {
	tests := []struct {
		alternate bool
		acPred    bool
		row, col  int
	}{
		{false, false, 1, 0},
		{false, true, 1, 0}, // horizontal scan for vertical prediction
		{true, false, 0, 1},
		{true, true, 0, 1},
	}

	for _, tt := range tests {
		d := newIntraDecoder(32, 32, &VopHeader{AlternateVerticalScan: tt.alternate})

		// Block 0 of macroblock (1,1) predicts from above: C differs from B, A equals B.
		d.predictor(1, 0, 2).dc = 500

		w := &BitWriter{}
		w.Write(0x7, 4) // last 1, run 0, level 1
		w.Write(0, 1)
		w.Write(0, 8)
		d.buf = NewBufferBytes(w.Bytes())

		if err := d.reconstructIntraBlock(1, 1, 0, 2, 1, true, tt.acPred); err != nil {
			t.Fatal(err)
		}

		p := d.predictor(1, 1, 0)
		if p.row[0] != tt.row || p.col[0] != tt.col {
			t.Errorf("alternate %v acpred %v: got row %d col %d, want row %d col %d",
				tt.alternate, tt.acPred, p.row[0], p.col[0], tt.row, tt.col)
		}
		if p.dc != 504 {
			t.Errorf("alternate %v acpred %v: dc: got %d, want %d", tt.alternate, tt.acPred, p.dc, 504)
		}
	}
}
