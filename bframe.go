package mpeg4

// decodeBMacroblock decodes one macroblock of a B-VOP. Forward prediction comes from
// d.frameForward, backward prediction from d.frameBackward.
func (d *Decoder) decodeBMacroblock(mbx, mby int) error {
	b := d.buf
	vop := d.vop
	addr := mby*d.mbWidth + mbx
	info := &d.mbInfo[addr]
	*info = macroblockInfo{quant: d.quant}

	if mbx == 0 {
		d.lastMV = [2]motionVector{}
	}

	// The co-located macroblock was skipped in the backward reference, so is this one.
	if co := &d.refInfo[addr]; co.notCoded && !d.refIsSprite {
		info.notCoded = true
		copyMacroblock(d.frameCurrent, d.frameForward, mbx, mby)
		return nil
	}

	mbType, cbp := mbDirect, 0
	skipped := b.read1() != 0 // modb
	if !skipped {
		hasCBP := b.read1() == 0

		var ok bool
		mbType, ok = d.tables.readBType(b)
		if !ok {
			return invalidf("B macroblock type at mb %d,%d", mbx, mby)
		}
		if hasCBP {
			cbp = b.read(6)
		}
	}

	if mbType != mbDirect && cbp != 0 {
		if b.read1() != 0 {
			d.setQuant(d.quant + (b.read1()<<2 - 2))
		}
	}

	fieldDCT, fieldPred := false, false
	if d.vol.Interlaced {
		if cbp != 0 {
			fieldDCT = b.read1() != 0
		}
		if mbType != mbDirect {
			fieldPred = b.read1() != 0
		}
		if fieldPred {
			// one bit of reference field per field and direction
			if mbType != mbBackward {
				b.skip(2)
			}
			if mbType != mbForward {
				b.skip(2)
			}
		}
	}

	info.mode = mbType
	info.quant = d.quant

	var fwd, bwd [4]motionVector
	four := false

	if mbType == mbForward || mbType == mbInterpolate {
		mv, err := d.readBVector(0, vop.FcodeForward, fieldPred)
		if err != nil {
			return err
		}
		fwd = [4]motionVector{mv, mv, mv, mv}
	}

	if mbType == mbBackward || mbType == mbInterpolate {
		mv, err := d.readBVector(1, vop.FcodeBackward, fieldPred)
		if err != nil {
			return err
		}
		bwd = [4]motionVector{mv, mv, mv, mv}
	}

	if mbType == mbDirect {
		var delta motionVector
		if !skipped {
			var err error
			if delta, err = d.readMV(motionVector{}, 1); err != nil {
				return err
			}
		}

		co := &d.refInfo[addr]
		four = co.mode == mbInter4V && !co.intra
		for k := 0; k < 4; k++ {
			fwd[k], bwd[k] = directVectors(co.mv[k], delta, d.pbTime, d.ppTime)
		}
	}

	qpel := d.vol.QuarterPel
	switch mbType {
	case mbForward:
		predictMacroblock(d.frameCurrent, d.frameForward, mbx, mby, &fwd, false, qpel, 0, false)
	case mbBackward:
		predictMacroblock(d.frameCurrent, d.frameBackward, mbx, mby, &bwd, false, qpel, 0, false)
	default:
		predictMacroblock(d.frameCurrent, d.frameForward, mbx, mby, &fwd, four, qpel, 0, false)
		predictMacroblock(d.frameCurrent, d.frameBackward, mbx, mby, &bwd, four, qpel, 0, true)
	}

	info.mv = fwd

	for n := 0; n < 6; n++ {
		if cbp&(32>>n) == 0 {
			continue
		}

		if err := d.decodeInterBlock(d.quant); err != nil {
			return err
		}

		dest, index, scan := blockDest(d.frameCurrent, mbx, mby, n, fieldDCT)
		idct(d.blockData)
		addBlockToDest(d.blockData, dest, index, scan)
	}

	return nil
}

// readBVector reads the vector of direction dir (0 forward, 1 backward) predicted from the last
// one of the row. Field predicted macroblocks carry a top and a bottom field vector, predicted
// with half the vertical component, the top one is used as the frame vector.
func (d *Decoder) readBVector(dir, fcode int, field bool) (motionVector, error) {
	pred := d.lastMV[dir]
	if !field {
		mv, err := d.readMV(pred, fcode)
		if err != nil {
			return motionVector{}, err
		}
		d.lastMV[dir] = mv

		return mv, nil
	}

	pred.Y /= 2
	top, err := d.readMV(pred, fcode)
	if err != nil {
		return motionVector{}, err
	}
	if _, err := d.readMV(pred, fcode); err != nil {
		return motionVector{}, err
	}

	mv := motionVector{top.X, top.Y * 2}
	d.lastMV[dir] = mv

	return mv, nil
}

// directVectors scales the co-located vector of the backward reference by the temporal
// distances trb (past reference to B-VOP) and trd (between the references) and applies
// the coded delta.
func directVectors(co, delta motionVector, trb, trd int64) (fwd, bwd motionVector) {
	if trd < 1 {
		trd = 1
	}

	fwd.X, bwd.X = directComponent(int64(co.X), int64(delta.X), trb, trd)
	fwd.Y, bwd.Y = directComponent(int64(co.Y), int64(delta.Y), trb, trd)

	return fwd, bwd
}

func directComponent(co, delta, trb, trd int64) (int, int) {
	f := co*trb/trd + delta
	if delta == 0 {
		return int(f), int(co * (trb - trd) / trd)
	}

	return int(f), int(f - co)
}
