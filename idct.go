package mpeg4

const (
	idctW1 = 22725
	idctW2 = 21407
	idctW3 = 19266
	idctW4 = 16383
	idctW5 = 12873
	idctW6 = 8867
	idctW7 = 4520

	idctRowShift = 11
	idctColShift = 20
)

// idct performs the separable 8x8 integer inverse DCT in place, rows first.
func idct(block []int) {
	ac := 0
	for i := 1; i < 64; i++ {
		ac |= block[i]
	}

	if ac == 0 {
		value := (idctW4 * ((block[0] << 3) + (1<<(idctColShift-1))/idctW4)) >> idctColShift
		for i := range block[:64] {
			block[i] = value
		}

		return
	}

	for i := 0; i < 64; i += 8 {
		idctRow(block[i : i+8])
	}

	for i := 0; i < 8; i++ {
		idctCol(block, i)
	}
}

func idctRow(row []int) {
	if row[1]|row[2]|row[3]|row[4]|row[5]|row[6]|row[7] == 0 {
		dc := row[0] << 3
		for i := range row {
			row[i] = dc
		}

		return
	}

	a0 := idctW4*row[0] + (1 << (idctRowShift - 1))
	a1, a2, a3 := a0, a0, a0

	a0 += idctW2 * row[2]
	a1 += idctW6 * row[2]
	a2 -= idctW6 * row[2]
	a3 -= idctW2 * row[2]

	b0 := idctW1*row[1] + idctW3*row[3]
	b1 := idctW3*row[1] - idctW7*row[3]
	b2 := idctW5*row[1] - idctW1*row[3]
	b3 := idctW7*row[1] - idctW5*row[3]

	if row[4]|row[5]|row[6]|row[7] != 0 {
		a0 += idctW4*row[4] + idctW6*row[6]
		a1 += -idctW4*row[4] - idctW2*row[6]
		a2 += -idctW4*row[4] + idctW2*row[6]
		a3 += idctW4*row[4] - idctW6*row[6]

		b0 += idctW5*row[5] + idctW7*row[7]
		b1 += -idctW1*row[5] - idctW5*row[7]
		b2 += idctW7*row[5] + idctW3*row[7]
		b3 += idctW3*row[5] - idctW1*row[7]
	}

	row[0] = (a0 + b0) >> idctRowShift
	row[7] = (a0 - b0) >> idctRowShift
	row[1] = (a1 + b1) >> idctRowShift
	row[6] = (a1 - b1) >> idctRowShift
	row[2] = (a2 + b2) >> idctRowShift
	row[5] = (a2 - b2) >> idctRowShift
	row[3] = (a3 + b3) >> idctRowShift
	row[4] = (a3 - b3) >> idctRowShift
}

func idctCol(block []int, i int) {
	a0 := idctW4 * (block[i] + (1<<(idctColShift-1))/idctW4)
	a1, a2, a3 := a0, a0, a0

	a0 += idctW2 * block[16+i]
	a1 += idctW6 * block[16+i]
	a2 -= idctW6 * block[16+i]
	a3 -= idctW2 * block[16+i]

	b0 := idctW1*block[8+i] + idctW3*block[24+i]
	b1 := idctW3*block[8+i] - idctW7*block[24+i]
	b2 := idctW5*block[8+i] - idctW1*block[24+i]
	b3 := idctW7*block[8+i] - idctW5*block[24+i]

	if v := block[32+i]; v != 0 {
		a0 += idctW4 * v
		a1 -= idctW4 * v
		a2 -= idctW4 * v
		a3 += idctW4 * v
	}
	if v := block[40+i]; v != 0 {
		b0 += idctW5 * v
		b1 -= idctW1 * v
		b2 += idctW7 * v
		b3 += idctW3 * v
	}
	if v := block[48+i]; v != 0 {
		a0 += idctW6 * v
		a1 -= idctW2 * v
		a2 += idctW2 * v
		a3 -= idctW6 * v
	}
	if v := block[56+i]; v != 0 {
		b0 += idctW7 * v
		b1 -= idctW5 * v
		b2 += idctW3 * v
		b3 -= idctW1 * v
	}

	block[i] = (a0 + b0) >> idctColShift
	block[8+i] = (a1 + b1) >> idctColShift
	block[16+i] = (a2 + b2) >> idctColShift
	block[24+i] = (a3 + b3) >> idctColShift
	block[32+i] = (a3 - b3) >> idctColShift
	block[40+i] = (a2 - b2) >> idctColShift
	block[48+i] = (a1 - b1) >> idctColShift
	block[56+i] = (a0 - b0) >> idctColShift
}

func copyBlockToDest(block []int, dest []byte, index, scan int) {
	for n := 0; n < 64; n += 8 {
		dest[index+0] = clamp(block[n+0])
		dest[index+1] = clamp(block[n+1])
		dest[index+2] = clamp(block[n+2])
		dest[index+3] = clamp(block[n+3])
		dest[index+4] = clamp(block[n+4])
		dest[index+5] = clamp(block[n+5])
		dest[index+6] = clamp(block[n+6])
		dest[index+7] = clamp(block[n+7])

		index += scan + 8
	}
}

func addBlockToDest(block []int, dest []byte, index, scan int) {
	for n := 0; n < 64; n += 8 {
		dest[index+0] = clamp(int(dest[index+0]) + block[n+0])
		dest[index+1] = clamp(int(dest[index+1]) + block[n+1])
		dest[index+2] = clamp(int(dest[index+2]) + block[n+2])
		dest[index+3] = clamp(int(dest[index+3]) + block[n+3])
		dest[index+4] = clamp(int(dest[index+4]) + block[n+4])
		dest[index+5] = clamp(int(dest[index+5]) + block[n+5])
		dest[index+6] = clamp(int(dest[index+6]) + block[n+6])
		dest[index+7] = clamp(int(dest[index+7]) + block[n+7])

		index += scan + 8
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func clamp(n int) byte {
	if n > 255 {
		n = 255
	} else if n < 0 {
		n = 0
	}

	return byte(n)
}
