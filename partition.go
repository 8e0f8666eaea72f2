package mpeg4

import (
	"go.uber.org/zap"
)

// Markers closing the first partition of a data partitioned video packet.
const (
	motionMarker     = 0x1f001
	motionMarkerBits = 17
	dcMarker         = 0x6b001
	dcMarkerBits     = 19
)

// partitionedMB carries what the first two partitions of a video packet say about a macroblock
// until its texture is read from the third.
type partitionedMB struct {
	skipped bool
	intra   bool
	mcsel   bool
	fourMV  bool
	dquant  bool
	acPred  bool
	dcVlc   bool
	cbp     int
	quant   int
	dc      [6]int
}

// decodePartitioned decodes the macroblocks of a data partitioned I-, P- or S-VOP one video packet
// at a time and returns the number of concealed macroblocks.
func (d *Decoder) decodePartitioned() int {
	extra := resyncExtra(d.vop)
	d.packetStart = 0

	lost := 0
	for mb := 0; mb < d.mbSize; {
		done, err := d.decodePacketPartitions(mb)
		if err == nil && d.buf.overrun {
			err = invalidf("video packet at mb %d runs past the end of the VOP", mb)
		}
		mb += done

		if err != nil {
			d.log.Debug("video packet", zap.Int("mb", mb), zap.Error(err))
			if !seekResync(d.buf, extra) {
				lost += d.conceal(mb, d.mbSize)
				break
			}
		}

		if mb >= d.mbSize {
			break
		}

		if !resyncMarkerAhead(d.buf, extra) {
			lost += d.conceal(mb, d.mbSize)
			break
		}

		next, err := d.readVideoPacketHeader(extra)
		if err == nil && next < mb {
			err = invalidf("video packet at mb %d goes back from mb %d", next, mb)
		}
		if err != nil {
			d.log.Warn("video packet header", zap.Error(err))
			lost += d.conceal(mb, d.mbSize)
			break
		}

		lost += d.conceal(mb, next)
		mb = next
		d.packetStart = next
	}

	return lost
}

// decodePacketPartitions reads the motion (or DC) partition up to its marker, then the second
// partition and the textures for the same macroblocks. It returns how many macroblocks from first
// on were reconstructed.
func (d *Decoder) decodePacketPartitions(first int) (int, error) {
	intraVop := d.vop.Type == pictureTypeIntra
	marker, markerBits := motionMarker, motionMarkerBits
	if intraVop {
		marker, markerBits = dcMarker, dcMarkerBits
	}

	end := first
	for end < d.mbSize && d.buf.peek(markerBits) != marker {
		if err := d.decodeFirstPartition(end, intraVop); err != nil {
			return 0, err
		}
		if d.buf.overrun {
			return 0, invalidf("first partition at mb %d runs past the end of the VOP", end)
		}
		end++
	}

	if d.buf.bitsLeft() < markerBits || d.buf.peek(markerBits) != marker {
		return 0, invalidf("no partition marker after mb %d", end)
	}
	d.buf.skip(markerBits)

	for mb := first; mb < end; mb++ {
		if err := d.decodeSecondPartition(mb, intraVop); err != nil {
			return 0, err
		}
	}

	for mb := first; mb < end; mb++ {
		if err := d.decodeTexture(mb); err != nil {
			return mb - first, err
		}
	}

	return end - first, nil
}

// decodeFirstPartition reads the macroblock type and, in I-VOPs, the quantiser change and the DC
// coefficients, in P- and S-VOPs the motion vectors. Skipped macroblocks are predicted here.
func (d *Decoder) decodeFirstPartition(mb int, intraVop bool) error {
	b := d.buf
	vop := d.vop
	mbx, mby := mb%d.mbWidth, mb/d.mbWidth

	p := &d.partitions[mb]
	*p = partitionedMB{}
	info := &d.mbInfo[mb]
	*info = macroblockInfo{}

	var mbType, cbpc int
	for {
		if !intraVop && b.read1() != 0 {
			p.skipped = true
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

	p.intra = mbType == mbIntra || mbType == mbIntraQ
	p.dquant = mbType == mbInterQ || mbType == mbIntraQ
	p.cbp = cbpc
	info.mode = mbType
	info.intra = p.intra

	if intraVop {
		if p.dquant {
			d.setQuant(d.quant + videoDquant[b.read(2)])
		}
		p.quant = d.quant
		info.quant = d.quant

		return d.readPartitionDC(p, mbx, mby)
	}

	if p.intra {
		return nil
	}

	if vop.IsSprite() && mbType != mbInter4V {
		p.mcsel = b.read1() != 0
	}

	switch {
	case p.mcsel:
		info.gmc = true
		for k := range info.mv {
			info.mv[k] = d.gmc.mv
		}

	case mbType == mbInter4V:
		p.fourMV = true
		for k := 0; k < 4; k++ {
			mv, err := d.readMV(d.predictMV(mbx, mby, k), vop.FcodeForward)
			if err != nil {
				return err
			}
			info.mv[k] = mv
		}

	default:
		mv, err := d.readMV(d.predictMV(mbx, mby, 0), vop.FcodeForward)
		if err != nil {
			return err
		}
		info.mv = [4]motionVector{mv, mv, mv, mv}
	}

	return nil
}

// decodeSecondPartition reads the AC prediction flag and luma coded block pattern, and in P- and
// S-VOPs the quantiser change and the DC coefficients of intra macroblocks.
func (d *Decoder) decodeSecondPartition(mb int, intraVop bool) error {
	b := d.buf
	p := &d.partitions[mb]
	if p.skipped {
		return nil
	}

	if p.intra {
		p.acPred = b.read1() != 0
	}

	cbpy, ok := d.tables.readCBPY(b, p.intra)
	if !ok {
		return invalidf("cbpy at mb %d", mb)
	}
	p.cbp |= cbpy << 2

	if intraVop {
		return nil
	}

	if p.dquant {
		d.setQuant(d.quant + videoDquant[b.read(2)])
	}
	p.quant = d.quant
	d.mbInfo[mb].quant = d.quant

	if p.intra {
		return d.readPartitionDC(p, mb%d.mbWidth, mb/d.mbWidth)
	}

	return nil
}

// readPartitionDC reads the differential DC of all six blocks when the quantiser is below the
// VOP's intra DC threshold. Otherwise the DC is coded with the texture.
func (d *Decoder) readPartitionDC(p *partitionedMB, mbx, mby int) error {
	p.dcVlc = p.quant < d.vop.IntraDcThreshold
	if !p.dcVlc {
		return nil
	}

	for n := 0; n < 6; n++ {
		dc, ok := d.tables.readIntraDC(d.buf, n < 4)
		if !ok {
			return invalidf("intra dc at mb %d,%d block %d", mbx, mby, n)
		}
		p.dc[n] = dc
	}

	return nil
}

// decodeTexture reads the coefficients of a macroblock from the last partition and reconstructs it.
func (d *Decoder) decodeTexture(mb int) error {
	p := &d.partitions[mb]
	if p.skipped {
		return nil
	}

	mbx, mby := mb%d.mbWidth, mb/d.mbWidth
	info := &d.mbInfo[mb]

	switch {
	case p.intra:
	case p.mcsel:
		d.gmcMacroblock(mbx, mby)
	default:
		predictMacroblock(d.frameCurrent, d.frameForward, mbx, mby, &info.mv, p.fourMV,
			d.vol.QuarterPel, d.vop.RoundingType, false)
	}

	for n := 0; n < 6; n++ {
		coded := p.cbp&(32>>n) != 0
		dest, index, scan := blockDest(d.frameCurrent, mbx, mby, n, false)

		if p.intra {
			block := d.blockData
			for i := range block {
				block[i] = 0
			}

			i := 0
			if p.dcVlc {
				block[0] = p.dc[n]
				i = 1
			}

			if err := d.reconstructIntraBlock(mbx, mby, n, p.quant, i, coded, p.acPred); err != nil {
				return err
			}
			idct(block)
			copyBlockToDest(block, dest, index, scan)
		} else if coded {
			if err := d.decodeInterBlock(p.quant); err != nil {
				return err
			}
			idct(d.blockData)
			addBlockToDest(d.blockData, dest, index, scan)
		}
	}

	if !p.intra {
		d.resetPredictors(mbx, mby)
	}

	return nil
}
