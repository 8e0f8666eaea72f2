package mpeg4

type motionVector struct {
	X int
	Y int
}

// fetchBlock copies the w x h area at (x, y) of p into dst, replicating edge samples for
// positions outside the plane.
func fetchBlock(dst []int, p *Plane, x, y, w, h int) {
	if x >= 0 && y >= 0 && x+w <= p.Width && y+h <= p.Height {
		for j := 0; j < h; j++ {
			row := p.Data[(y+j)*p.Width+x:]
			for i := 0; i < w; i++ {
				dst[j*w+i] = int(row[i])
			}
		}

		return
	}

	for j := 0; j < h; j++ {
		sy := clampInt(y+j, 0, p.Height-1) * p.Width
		for i := 0; i < w; i++ {
			dst[j*w+i] = int(p.Data[sy+clampInt(x+i, 0, p.Width-1)])
		}
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	} else if v > hi {
		return hi
	}

	return v
}

// motionBlock writes the w x h prediction for the block at (x, y) of dst, taken from ref displaced by
// (mvx, mvy). Vectors are in half-pel units (shift 1) or quarter-pel units (shift 2).
// With average set the prediction is averaged into dst instead of replacing it.
func motionBlock(dst, ref *Plane, x, y, w, h, mvx, mvy, shift, rounding int, average bool) {
	mask := 1<<shift - 1
	fx, fy := mvx&mask, mvy&mask
	sx, sy := x+mvx>>shift, y+mvy>>shift

	var src [17 * 17]int
	sw := w + 1
	fetchBlock(src[:], ref, sx, sy, sw, h+1)

	for j := 0; j < h; j++ {
		di := (y+j)*dst.Width + x
		for i := 0; i < w; i++ {
			a := src[j*sw+i]
			b := src[j*sw+i+1]
			c := src[(j+1)*sw+i]
			d := src[(j+1)*sw+i+1]

			var v int
			if shift == 2 {
				v = ((4-fx)*(4-fy)*a + fx*(4-fy)*b + (4-fx)*fy*c + fx*fy*d + 8 - rounding) >> 4
			} else {
				switch fy<<1 | fx {
				case 0:
					v = a
				case 1:
					v = (a + b + 1 - rounding) >> 1
				case 2:
					v = (a + c + 1 - rounding) >> 1
				default:
					v = (a + b + c + d + 2 - rounding) >> 2
				}
			}

			if average {
				v = (int(dst.Data[di+i]) + v + 1) >> 1
			}
			dst.Data[di+i] = byte(v)
		}
	}
}

// chromaVector derives the half-pel chroma vector of a 16x16 luma vector.
func chromaVector(v int, qpel bool) int {
	if qpel {
		v /= 2
	}

	return v>>1 + videoRoundTab79[v&3]
}

// chromaVector4 derives the half-pel chroma vector from the sum of the four luma block vectors.
func chromaVector4(sum int) int {
	return sum>>3 + videoRoundTab76[sum&0xf]
}

// predictMacroblock writes the motion compensated prediction of macroblock (mbx, mby) into dst.
// With four set every luma block uses its own vector.
func predictMacroblock(dst, ref *Frame, mbx, mby int, mv *[4]motionVector, four, qpel bool, rounding int, average bool) {
	shift := 1
	if qpel {
		shift = 2
	}

	x, y := mbx<<4, mby<<4

	var cx, cy int
	if four {
		sumX, sumY := 0, 0
		for k := 0; k < 4; k++ {
			bx, by := x+(k&1)<<3, y+(k>>1)<<3
			motionBlock(&dst.Y, &ref.Y, bx, by, 8, 8, mv[k].X, mv[k].Y, shift, rounding, average)

			if qpel {
				sumX += mv[k].X / 2
				sumY += mv[k].Y / 2
			} else {
				sumX += mv[k].X
				sumY += mv[k].Y
			}
		}
		cx, cy = chromaVector4(sumX), chromaVector4(sumY)
	} else {
		motionBlock(&dst.Y, &ref.Y, x, y, 16, 16, mv[0].X, mv[0].Y, shift, rounding, average)
		cx, cy = chromaVector(mv[0].X, qpel), chromaVector(mv[0].Y, qpel)
	}

	motionBlock(&dst.Cb, &ref.Cb, x>>1, y>>1, 8, 8, cx, cy, 1, rounding, average)
	motionBlock(&dst.Cr, &ref.Cr, x>>1, y>>1, 8, 8, cx, cy, 1, rounding, average)
}

// copyMacroblock copies macroblock (mbx, mby) of src into dst without displacement.
func copyMacroblock(dst, src *Frame, mbx, mby int) {
	copyArea(&dst.Y, &src.Y, mbx<<4, mby<<4, 16)
	copyArea(&dst.Cb, &src.Cb, mbx<<3, mby<<3, 8)
	copyArea(&dst.Cr, &src.Cr, mbx<<3, mby<<3, 8)
}

func copyArea(dst, src *Plane, x, y, size int) {
	for j := 0; j < size; j++ {
		i := (y+j)*dst.Width + x
		copy(dst.Data[i:i+size], src.Data[i:i+size])
	}
}

// fillMacroblock sets macroblock (mbx, mby) to a flat value.
func fillMacroblock(dst *Frame, mbx, mby int, value byte) {
	for _, a := range []struct {
		p    *Plane
		x, y int
		size int
	}{
		{&dst.Y, mbx << 4, mby << 4, 16},
		{&dst.Cb, mbx << 3, mby << 3, 8},
		{&dst.Cr, mbx << 3, mby << 3, 8},
	} {
		for j := 0; j < a.size; j++ {
			i := (a.y+j)*a.p.Width + a.x
			for k := i; k < i+a.size; k++ {
				a.p.Data[k] = value
			}
		}
	}
}
