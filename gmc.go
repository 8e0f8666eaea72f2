package mpeg4

// gmcParams is the global motion of an S(GMC)-VOP, derived once per VOP.
// Offsets are in 1/16 sample units of their plane.
type gmcParams struct {
	lumaX, lumaY     int
	chromaX, chromaY int

	// vector stored for neighbouring macroblocks, in the VOP's motion vector units
	mv motionVector
}

// newGMC derives the translation of the first warping point. Two and three point
// trajectories are approximated by that translation.
func newGMC(vol *VolConfig, vop *VopHeader) gmcParams {
	var g gmcParams
	if vol.SpriteWarpingPoints == 0 {
		return g
	}

	acc := vol.SpriteWarpingAccuracy
	du, dv := vop.Trajectory[0][0], vop.Trajectory[0][1]

	g.lumaX = du << (3 - acc)
	g.lumaY = dv << (3 - acc)
	g.chromaX = (du>>1 | du&1) << (3 - acc)
	g.chromaY = (dv>>1 | dv&1) << (3 - acc)

	qpel := 0
	if vol.QuarterPel {
		qpel = 1
	}
	g.mv = motionVector{roundShift(du<<qpel, acc), roundShift(dv<<qpel, acc)}

	return g
}

// roundShift divides by 2^n rounding half away from zero.
func roundShift(a, n int) int {
	if n == 0 {
		return a
	}
	if a > 0 {
		return (a + 1<<(n-1)) >> n
	}

	return (a + 1<<(n-1) - 1) >> n
}

// gmcMacroblock predicts macroblock (mbx, mby) of the current frame by global motion.
func (d *Decoder) gmcMacroblock(mbx, mby int) {
	g := &d.gmc
	rounding := d.vop.RoundingType
	cur, ref := d.frameCurrent, d.frameForward

	gmcBlock(&cur.Y, &ref.Y, mbx<<4, mby<<4, 16, g.lumaX, g.lumaY, rounding)
	gmcBlock(&cur.Cb, &ref.Cb, mbx<<3, mby<<3, 8, g.chromaX, g.chromaY, rounding)
	gmcBlock(&cur.Cr, &ref.Cr, mbx<<3, mby<<3, 8, g.chromaX, g.chromaY, rounding)
}

// gmcBlock writes the size x size area at (x, y) of dst, sampled from ref at an offset of
// (ox, oy) sixteenths of a sample with bilinear interpolation.
func gmcBlock(dst, ref *Plane, x, y, size, ox, oy, rounding int) {
	fx, fy := ox&15, oy&15

	var src [17 * 17]int
	sw := size + 1
	fetchBlock(src[:], ref, x+ox>>4, y+oy>>4, sw, size+1)

	for j := 0; j < size; j++ {
		di := (y+j)*dst.Width + x
		for i := 0; i < size; i++ {
			a := src[j*sw+i]
			b := src[j*sw+i+1]
			c := src[(j+1)*sw+i]
			e := src[(j+1)*sw+i+1]

			v := (16-fx)*(16-fy)*a + fx*(16-fy)*b + (16-fx)*fy*c + fx*fy*e
			dst.Data[di+i] = byte((v + 128 - rounding) >> 8)
		}
	}
}
