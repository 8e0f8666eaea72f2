package mpeg4

// dequantH263 applies the H.263 inverse quantisation to the quantised levels in block (raster order).
// The DC of intra blocks is left untouched.
func dequantH263(block []int, q int, intra bool) {
	qmul := q << 1
	qadd := (q - 1) | 1

	i := 0
	if intra {
		i = 1
	}

	for ; i < 64; i++ {
		level := block[i]
		if level == 0 {
			continue
		}

		if level < 0 {
			level = -(qmul*(-level) + qadd)
		} else {
			level = qmul*level + qadd
		}

		block[i] = clampCoeff(level)
	}
}

// dequantMPEG applies the matrix based inverse quantisation. Inter blocks get mismatch control:
// when the sum of all coefficients is even the LSB of the last coefficient is toggled.
func dequantMPEG(block []int, q int, matrix *[64]int, intra bool) {
	if intra {
		for i := 1; i < 64; i++ {
			level := block[i]
			if level == 0 {
				continue
			}

			if level < 0 {
				level = -((-level * q * matrix[i]) >> 4)
			} else {
				level = (level * q * matrix[i]) >> 4
			}

			block[i] = clampCoeff(level)
		}

		return
	}

	sum := 0
	for i := 0; i < 64; i++ {
		level := block[i]
		if level != 0 {
			if level < 0 {
				level = -(((-2*level + 1) * matrix[i] * q) >> 4)
			} else {
				level = ((2*level + 1) * matrix[i] * q) >> 4
			}

			level = clampCoeff(level)
			block[i] = level
		}

		sum ^= level
	}

	if sum&1 == 0 {
		block[63] ^= 1
	}
}

func clampCoeff(v int) int {
	if v > 2047 {
		return 2047
	} else if v < -2048 {
		return -2048
	}

	return v
}
