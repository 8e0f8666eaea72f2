package mpeg4

import (
	"math"
	"testing"
)

func TestIDCTDC(t *testing.T) {
	block := make([]int, 64)
	block[0] = 1024

	idct(block)

	for i, v := range block {
		if v != 128 {
			t.Fatalf("block[%d]: got %d, want %d", i, v, 128)
		}
	}
}

func TestIDCTZero(t *testing.T) {
	block := make([]int, 64)

	idct(block)

	for i, v := range block {
		if v != 0 {
			t.Fatalf("block[%d]: got %d, want %d", i, v, 0)
		}
	}
}

func referenceIDCT(in []int) [64]float64 {
	var out [64]float64

	c := func(u int) float64 {
		if u == 0 {
			return math.Sqrt(0.5)
		}
		return 1
	}

	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			sum := 0.0
			for v := 0; v < 8; v++ {
				for u := 0; u < 8; u++ {
					sum += c(u) * c(v) * float64(in[v*8+u]) *
						math.Cos(float64(2*x+1)*float64(u)*math.Pi/16) *
						math.Cos(float64(2*y+1)*float64(v)*math.Pi/16)
				}
			}
			out[y*8+x] = sum / 4
		}
	}

	return out
}

func TestIDCTReference(t *testing.T) {
	block := make([]int, 64)
	block[0] = 400
	block[1] = -60
	block[2] = 25
	block[8] = 80
	block[9] = -12
	block[17] = 7
	block[36] = 30
	block[63] = -9

	want := referenceIDCT(block)
	idct(block)

	for i, v := range block {
		if math.Abs(float64(v)-want[i]) > 1.5 {
			t.Errorf("block[%d]: got %d, want %.2f", i, v, want[i])
		}
	}
}

func TestAddBlockToDest(t *testing.T) {
	dest := make([]byte, 16*8)
	for i := range dest {
		dest[i] = 250
	}

	block := make([]int, 64)
	for i := range block {
		block[i] = 10
	}
	block[7] = -300

	addBlockToDest(block, dest, 8, 8)

	if dest[8] != 255 {
		t.Errorf("dest[8]: got %d, want %d", dest[8], 255)
	}
	if dest[15] != 0 {
		t.Errorf("dest[15]: got %d, want %d", dest[15], 0)
	}
	if dest[0] != 250 {
		t.Errorf("dest[0]: got %d, want %d", dest[0], 250)
	}
	if dest[16+8] != 255 {
		t.Errorf("dest[24]: got %d, want %d", dest[16+8], 255)
	}
}
