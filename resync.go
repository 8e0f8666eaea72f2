package mpeg4

import (
	"math/bits"

	"go.uber.org/zap"
)

// resyncExtra returns the number of zero bits a resync marker carries beyond 16 in a VOP.
func resyncExtra(vop *VopHeader) int {
	switch vop.Type {
	case pictureTypeIntra:
		return 0
	case pictureTypeB:
		extra := vop.FcodeForward
		if vop.FcodeBackward > extra {
			extra = vop.FcodeBackward
		}
		if extra < 2 {
			extra = 2
		}

		return extra - 1
	}

	return vop.FcodeForward - 1
}

// resyncMarkerAhead reports whether stuffing up to the next byte boundary, followed by a resync
// marker of 16+extra zero bits and a one, starts at the current position.
func resyncMarkerAhead(b *Buffer, extra int) bool {
	n := 8 - b.bitIndex&7
	total := n + 17 + extra
	if b.bitsLeft() < total {
		return false
	}

	stuffing := 1<<(n-1) - 1

	return b.peek(total) == stuffing<<(17+extra)|1
}

// seekResync moves b to the stuffing in front of the next resync marker.
// It returns false when no marker follows.
func seekResync(b *Buffer, extra int) bool {
	data := b.bytes
	start := (b.bitIndex + 7) >> 3
	if start < 1 {
		start = 1
	}

	for p := start; p+2 < len(data); p++ {
		if data[p] != 0 || data[p+1] != 0 {
			continue
		}

		save := b.bitIndex
		b.bitIndex = p << 3
		marker := b.peek(17+extra) == 1
		b.bitIndex = save
		if !marker {
			continue
		}

		// Stuffing is a zero followed by ones up to the byte boundary.
		n := bits.TrailingZeros8(^data[p-1]) + 1
		if n > 8 {
			continue
		}

		b.bitIndex = p<<3 - n
		b.overrun = false

		return true
	}

	return false
}

// readVideoPacketHeader consumes the stuffing and resync marker at the current position and the
// video packet header after it, returning the number of the packet's first macroblock.
func (d *Decoder) readVideoPacketHeader(extra int) (int, error) {
	b := d.buf
	b.skip(8 - b.bitIndex&7)
	b.skip(17 + extra)

	mb := b.read(bitLength(d.mbSize))
	if mb >= d.mbSize {
		return 0, invalidf("video packet starts at mb %d of %d", mb, d.mbSize)
	}

	if q := b.read(d.vol.QuantPrecision); q != 0 {
		d.setQuant(q)
	}

	if b.read1() != 0 { // header_extension_code
		for b.read1() != 0 {
			if b.overrun {
				return 0, invalidf("truncated video packet header")
			}
		}
		b.skip(1) // marker
		b.skip(d.vol.TimeIncrementBits)
		b.skip(1) // marker

		vopType := b.read(2)
		b.skip(3) // intra_dc_vlc_thr

		if vopType == pictureTypeSprite && d.vol.SpriteEnable == SpriteGMC {
			for i := 0; i < d.vol.SpriteWarpingPoints && i < 4; i++ {
				for k := 0; k < 2; k++ {
					if _, ok := readTrajectory(b); !ok {
						return 0, invalidf("sprite trajectory in video packet header")
					}
					b.skip(1) // marker
				}
			}
		}

		if vopType != pictureTypeIntra {
			b.skip(3) // vop_fcode_forward
		}
		if vopType == pictureTypeB {
			b.skip(3) // vop_fcode_backward
		}
	}

	if b.overrun {
		return 0, invalidf("truncated video packet header")
	}

	return mb, nil
}

// decodeMacroblocks runs decode for every macroblock of the VOP in raster order. Video packet
// headers are consumed between macroblocks, and macroblocks lost to bitstream errors are
// concealed. It returns the number of concealed macroblocks.
func (d *Decoder) decodeMacroblocks(decode func(mbx, mby int) error) int {
	extra := resyncExtra(d.vop)
	resync := !d.vol.ResyncMarkerDisable

	d.packetStart = 0
	d.lastMV = [2]motionVector{}

	lost := 0
	for mb := 0; mb < d.mbSize; {
		if resync && mb > 0 && resyncMarkerAhead(d.buf, extra) {
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
			d.lastMV = [2]motionVector{}
		}

		err := decode(mb%d.mbWidth, mb/d.mbWidth)
		if err == nil && d.buf.overrun {
			err = invalidf("macroblock %d runs past the end of the VOP", mb)
		}

		if err != nil {
			d.log.Debug("macroblock", zap.Int("mb", mb), zap.Error(err))
			if !resync || !seekResync(d.buf, extra) {
				lost += d.conceal(mb, d.mbSize)
				break
			}

			// The next packet header conceals up to its first macroblock.
			d.conceal(mb, mb+1)
			lost++
			mb++
			if mb >= d.mbSize || !resyncMarkerAhead(d.buf, extra) {
				lost += d.conceal(mb, d.mbSize)
				break
			}

			continue
		}

		mb++
	}

	return lost
}

// conceal replaces macroblocks from..to-1 with the co-located area of the previous reference
// frame, or mid gray without one.
func (d *Decoder) conceal(from, to int) int {
	for mb := from; mb < to; mb++ {
		mbx, mby := mb%d.mbWidth, mb/d.mbWidth

		d.mbInfo[mb] = macroblockInfo{mode: mbInter, notCoded: true, quant: d.quant}
		d.resetPredictors(mbx, mby)

		if d.frameForward != nil {
			copyMacroblock(d.frameCurrent, d.frameForward, mbx, mby)
		} else {
			fillMacroblock(d.frameCurrent, mbx, mby, 128)
		}
	}

	if to > from {
		return to - from
	}

	return 0
}
