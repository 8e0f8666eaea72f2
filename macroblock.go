package mpeg4

// macroblockInfo is what a decoded macroblock leaves behind for motion vector prediction and for
// B-VOPs that use the VOP as their backward reference.
type macroblockInfo struct {
	mode     int
	intra    bool
	notCoded bool
	gmc      bool
	quant    int
	mv       [4]motionVector
}

// Candidate predictors of luma block n as {dx, dy, block} for the left (A), above (B)
// and above right (C) positions.
var mvCandidates = [4][3][3]int{
	{{-1, 0, 1}, {0, -1, 2}, {1, -1, 2}},
	{{0, 0, 0}, {0, -1, 3}, {1, -1, 2}},
	{{-1, 0, 3}, {0, 0, 0}, {0, 0, 1}},
	{{0, 0, 2}, {0, 0, 0}, {0, 0, 1}},
}

// blockDest returns the plane data, start index and scan of block n of macroblock (mbx, mby), as
// used by copyBlockToDest and addBlockToDest. Field DCT interleaves the luma blocks line by line.
func blockDest(f *Frame, mbx, mby, n int, fieldDCT bool) ([]byte, int, int) {
	if n >= 4 {
		p := &f.Cb
		if n == 5 {
			p = &f.Cr
		}

		return p.Data, (mby<<3)*p.Width + mbx<<3, p.Width - 8
	}

	w := f.Y.Width
	if fieldDCT {
		return f.Y.Data, (mby<<4+n>>1)*w + mbx<<4 + (n&1)<<3, 2*w - 8
	}

	return f.Y.Data, (mby<<4+(n>>1)<<3)*w + mbx<<4 + (n&1)<<3, w - 8
}

func (d *Decoder) setQuant(q int) {
	hi := 1<<d.vol.QuantPrecision - 1
	if q < 1 {
		q = 1
	} else if q > hi {
		q = hi
	}

	d.quant = q
}

// decodeMacroblock decodes one macroblock of an I-, P- or S-VOP.
func (d *Decoder) decodeMacroblock(mbx, mby int) error {
	b := d.buf
	vop := d.vop
	info := &d.mbInfo[mby*d.mbWidth+mbx]
	*info = macroblockInfo{}

	intraVop := vop.Type == pictureTypeIntra

	var mbType, cbpc int
	for {
		if !intraVop && b.read1() != 0 {
			d.skipMacroblock(mbx, mby)
			return nil
		}

		var ok bool
		mbType, cbpc, ok = d.tables.readMCBPC(b, intraVop)
		if !ok {
			return invalidf("mcbpc at mb %d,%d", mbx, mby)
		}
		if mbType != mbStuffing {
			break
		}
	}

	if intraVop && mbType != mbIntra && mbType != mbIntraQ {
		return invalidf("inter macroblock %d in I-VOP", mbType)
	}

	intra := mbType == mbIntra || mbType == mbIntraQ

	mcsel := false
	if vop.IsSprite() && (mbType == mbInter || mbType == mbInterQ) {
		mcsel = b.read1() != 0
	}

	acPred := false
	if intra {
		acPred = b.read1() != 0
	}

	cbpy, ok := d.tables.readCBPY(b, intra)
	if !ok {
		return invalidf("cbpy at mb %d,%d", mbx, mby)
	}
	cbp := cbpy<<2 | cbpc

	if mbType == mbInterQ || mbType == mbIntraQ {
		d.setQuant(d.quant + videoDquant[b.read(2)])
	}

	fieldDCT, fieldPred := false, false
	if d.vol.Interlaced {
		if intra || cbp != 0 {
			fieldDCT = b.read1() != 0
		}
		if (mbType == mbInter || mbType == mbInterQ) && !mcsel {
			fieldPred = b.read1() != 0
			if fieldPred {
				b.skip(2) // forward top and bottom field reference
			}
		}
	}

	info.mode = mbType
	info.intra = intra
	info.quant = d.quant

	switch {
	case intra:
	case mcsel:
		info.gmc = true
		for k := range info.mv {
			info.mv[k] = d.gmc.mv
		}
		d.gmcMacroblock(mbx, mby)

	case mbType == mbInter4V:
		for k := 0; k < 4; k++ {
			mv, err := d.readMV(d.predictMV(mbx, mby, k), vop.FcodeForward)
			if err != nil {
				return err
			}
			info.mv[k] = mv
		}

	case fieldPred:
		pred := d.predictMV(mbx, mby, 0)
		pred.Y /= 2

		top, err := d.readMV(pred, vop.FcodeForward)
		if err != nil {
			return err
		}
		if _, err := d.readMV(pred, vop.FcodeForward); err != nil {
			return err
		}

		// Predicted as a frame vector from the top field vector.
		mv := motionVector{top.X, top.Y * 2}
		info.mv = [4]motionVector{mv, mv, mv, mv}

	default:
		mv, err := d.readMV(d.predictMV(mbx, mby, 0), vop.FcodeForward)
		if err != nil {
			return err
		}
		info.mv = [4]motionVector{mv, mv, mv, mv}
	}

	if !intra && !mcsel {
		predictMacroblock(d.frameCurrent, d.frameForward, mbx, mby, &info.mv, mbType == mbInter4V,
			d.vol.QuarterPel, vop.RoundingType, false)
	}

	dcVlc := d.quant < vop.IntraDcThreshold
	for n := 0; n < 6; n++ {
		coded := cbp&(32>>n) != 0
		dest, index, scan := blockDest(d.frameCurrent, mbx, mby, n, fieldDCT)

		if intra {
			if err := d.decodeIntraBlock(mbx, mby, n, d.quant, coded, acPred, dcVlc); err != nil {
				return err
			}
			idct(d.blockData)
			copyBlockToDest(d.blockData, dest, index, scan)
		} else if coded {
			if err := d.decodeInterBlock(d.quant); err != nil {
				return err
			}
			idct(d.blockData)
			addBlockToDest(d.blockData, dest, index, scan)
		}
	}

	if !intra {
		d.resetPredictors(mbx, mby)
	}

	return nil
}

// skipMacroblock handles a not_coded macroblock of a P- or S-VOP. In S-VOPs it is predicted
// by global motion compensation, otherwise it is a copy of the reference.
func (d *Decoder) skipMacroblock(mbx, mby int) {
	info := &d.mbInfo[mby*d.mbWidth+mbx]
	info.notCoded = true
	info.mode = mbInter
	info.quant = d.quant

	if d.vop.IsSprite() {
		info.gmc = true
		for k := range info.mv {
			info.mv[k] = d.gmc.mv
		}
		d.gmcMacroblock(mbx, mby)
	} else {
		copyMacroblock(d.frameCurrent, d.frameForward, mbx, mby)
	}

	d.resetPredictors(mbx, mby)
}

// predictMV returns the median prediction for the vector of luma block n.
func (d *Decoder) predictMV(mbx, mby, n int) motionVector {
	var (
		cand  [3]motionVector
		last  motionVector
		valid int
	)

	for i, c := range mvCandidates[n] {
		x, y := mbx+c[0], mby+c[1]
		if !d.available(x, y) {
			continue
		}

		cand[i] = d.mbInfo[y*d.mbWidth+x].mv[c[2]]
		last = cand[i]
		valid++
	}

	switch valid {
	case 0:
		return motionVector{}
	case 1:
		return last
	}

	return motionVector{
		X: median(cand[0].X, cand[1].X, cand[2].X),
		Y: median(cand[0].Y, cand[1].Y, cand[2].Y),
	}
}

// readMV reads a motion vector difference and adds it to pred.
func (d *Decoder) readMV(pred motionVector, fcode int) (motionVector, error) {
	x, ok := d.readMVComponent(pred.X, fcode)
	if !ok {
		return motionVector{}, invalidf("motion vector")
	}

	y, ok := d.readMVComponent(pred.Y, fcode)
	if !ok {
		return motionVector{}, invalidf("motion vector")
	}

	return motionVector{x, y}, nil
}

func (d *Decoder) readMVComponent(pred, fcode int) (int, bool) {
	code, ok := d.tables.readMVD(d.buf)
	if !ok {
		return 0, false
	}
	if code == 0 {
		return pred, true
	}

	shift := fcode - 1
	val := abs(code)
	if shift > 0 {
		val = (val-1)<<shift | d.buf.read(shift)
		val++
	}
	if code < 0 {
		val = -val
	}
	val += pred

	// Wrap into the 5+fcode bit range.
	n := 64 - (5 + fcode)

	return int(int64(val) << n >> n), !d.buf.overrun
}

func median(a, b, c int) int {
	if a > b {
		a, b = b, a
	}
	if b > c {
		b = c
	}
	if a > b {
		b = a
	}

	return b
}
