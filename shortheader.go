package mpeg4

import (
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Short video header pictures tick at 30000/1001 Hz.
const (
	shortHeaderTimeResolution = 30000
	shortHeaderTimeIncrement  = 1001
)

// Source formats as width, height and number of GOBs.
var shortHeaderFormats = [6][3]int{
	{},
	{128, 96, 6},
	{176, 144, 9},
	{352, 288, 18},
	{704, 576, 18},
	{1408, 1152, 18},
}

// ShortHeader holds the picture header of a short video header (H.263 baseline) picture.
type ShortHeader struct {
	TemporalReference int
	Type              int
	SourceFormat      int
	Quant             int
	Width             int
	Height            int
	GOBs              int
}

// isPictureStart reports whether data starts with a short video header picture start code.
func isPictureStart(data []byte) bool {
	return len(data) >= 3 && data[0] == 0 && data[1] == 0 && data[2]&0xfc == 0x80
}

// splitPictures returns the pictures of data, each starting with its picture start code.
// Bytes before the first start code are dropped.
func splitPictures(data []byte) [][]byte {
	var pictures [][]byte

	start := -1
	for i := 0; i+2 < len(data); i++ {
		if !isPictureStart(data[i:]) {
			continue
		}
		if start >= 0 {
			pictures = append(pictures, data[start:i])
		}
		start = i
		i += 2
	}

	if start >= 0 {
		pictures = append(pictures, data[start:])
	}

	return pictures
}

// parseShortHeader reads a video_plane_with_short_header picture header including its
// 22 bit start code.
func parseShortHeader(b *Buffer) (*ShortHeader, error) {
	if b.read(22) != 0x20 {
		return nil, invalidf("no short video header start code")
	}

	h := &ShortHeader{}
	h.TemporalReference = b.read(8)
	b.skip(1 + 1) // marker, zero_bit
	b.skip(3)     // split_screen_indicator, document_camera_indicator, full_picture_freeze_release

	h.SourceFormat = b.read(3)
	if h.SourceFormat == 0 || h.SourceFormat >= len(shortHeaderFormats) {
		return nil, unsupportedf("short video header source format %d", h.SourceFormat)
	}
	f := shortHeaderFormats[h.SourceFormat]
	h.Width, h.Height, h.GOBs = f[0], f[1], f[2]

	h.Type = b.read1()
	if b.read(4) != 0 {
		return nil, unsupportedf("H.263 optional coding modes")
	}

	h.Quant = b.read(5)
	if h.Quant == 0 {
		return nil, invalidf("zero picture quantiser")
	}
	b.skip(1) // zero_bit

	for b.read1() != 0 { // pei
		b.skip(8) // psupp
		if b.overrun {
			break
		}
	}

	if b.overrun {
		return nil, invalidf("truncated short video header")
	}

	return h, nil
}

// shortHeaderVOL is the layer a short video header implies.
func shortHeaderVOL(h *ShortHeader) *VolConfig {
	vol := &VolConfig{
		ObjectType:                  1,
		VerID:                       1,
		AspectRatio:                 2, // 12:11
		LowDelay:                    true,
		TimeIncrementResolution:     shortHeaderTimeResolution,
		TimeIncrementBits:           bitLength(shortHeaderTimeResolution),
		FixedVopRate:                true,
		FixedVopTimeIncrement:       shortHeaderTimeIncrement,
		Width:                       h.Width,
		Height:                      h.Height,
		ObmcDisable:                 true,
		QuantPrecision:              5,
		ComplexityEstimationDisable: true,
		ResyncMarkerDisable:         true,
		ShortVideoHeader:            true,
	}
	copyMatrix(vol.IntraMatrix[:], videoIntraQuantMatrix)
	copyMatrix(vol.InterMatrix[:], videoNonIntraQuantMatrix)

	return vol
}

// sendPictures decodes every short video header picture in data.
func (d *Decoder) sendPictures(data []byte) error {
	pictures := splitPictures(data)
	if len(pictures) == 0 {
		return invalidf("no picture start code in packet")
	}

	var errs error
	for _, p := range pictures {
		errs = multierr.Append(errs, d.decodeShortHeader(p))
	}

	return errs
}

// decodeShortHeader decodes one short video header picture.
func (d *Decoder) decodeShortHeader(data []byte) error {
	d.buf = NewBufferBytes(data)
	h, err := parseShortHeader(d.buf)
	if err != nil {
		return err
	}

	if d.vol == nil || !d.vol.ShortVideoHeader || d.vol.Width != h.Width || d.vol.Height != h.Height {
		vol := shortHeaderVOL(h)
		d.allocate(vol)
		d.vol = vol
		d.trSet = false

		d.log.Debug("short video header",
			zap.Int("width", h.Width),
			zap.Int("height", h.Height),
			zap.Int("gobs", h.GOBs),
		)
	}
	d.gobRows = d.mbHeight / h.GOBs

	vop := &VopHeader{
		Type:             h.Type,
		TimeIncrement:    h.TemporalReference,
		Coded:            true,
		IntraDcThreshold: videoIntraDcThreshold[0],
		Quant:            h.Quant,
		FcodeForward:     1,
		FcodeBackward:    1,
	}
	d.vop = vop
	d.updateShortHeaderTime(h.TemporalReference)

	d.log.Debug("short header picture",
		zap.Stringer("type", PictureType(vop.Type)),
		zap.Int("temporal_reference", h.TemporalReference),
		zap.Int("quant", vop.Quant),
	)

	d.decodePicture(vop)

	return nil
}

// updateShortHeaderTime advances the clock by the 8 bit temporal reference difference.
func (d *Decoder) updateShortHeaderTime(tr int) {
	if !d.trSet {
		d.time = int64(tr) * shortHeaderTimeIncrement
		d.trSet = true
	} else {
		d.time += int64((tr-d.lastTR)&0xff) * shortHeaderTimeIncrement
	}
	d.lastTR = tr

	d.ppTime = d.time - d.lastNonBTime
	d.lastNonBTime = d.time
}

// decodeGOBs decodes the macroblocks of a short video header picture. A GOB header starts a new
// prediction segment. Macroblocks lost to bitstream errors are concealed up to the next GOB
// header. It returns the number of concealed macroblocks.
func (d *Decoder) decodeGOBs() int {
	gobSize := d.gobRows * d.mbWidth
	d.packetStart = 0

	lost := 0
	for mb := 0; mb < d.mbSize; {
		if mb > 0 && mb%gobSize == 0 && d.readGOBHeader(mb/gobSize) {
			d.packetStart = mb
		}

		err := d.decodeShortMacroblock(mb%d.mbWidth, mb/d.mbWidth)
		if err == nil && d.buf.overrun {
			err = invalidf("macroblock %d runs past the end of the picture", mb)
		}

		if err != nil {
			d.log.Debug("macroblock", zap.Int("mb", mb), zap.Error(err))

			gob, ok := seekGOB(d.buf, mb/gobSize+1)
			if !ok {
				lost += d.conceal(mb, d.mbSize)
				break
			}

			next := gob * gobSize
			if next > d.mbSize {
				next = d.mbSize
			}
			lost += d.conceal(mb, next)
			mb = next

			continue
		}

		mb++
	}

	return lost
}

// readGOBHeader consumes the GOB header of GOB gn at the current position, if there is one, and
// applies its quantiser.
func (d *Decoder) readGOBHeader(gn int) bool {
	b := d.buf

	// Stuffing up to the byte boundary is optional.
	for _, n := range []int{(8 - b.bitIndex&7) & 7, 0} {
		if b.bitsLeft() < n+22 {
			continue
		}
		if v := b.peek(n + 22); v>>5 != 1 || v&31 != gn {
			continue
		}

		b.skip(n + 22)
		b.skip(2) // gfid
		d.setQuant(b.read(5))

		return !b.overrun
	}

	return false
}

// seekGOB moves b to the first byte aligned GOB header of GOB from or later and returns its number.
func seekGOB(b *Buffer, from int) (int, bool) {
	data := b.bytes
	for p := (b.bitIndex + 7) >> 3; p+2 < len(data); p++ {
		if data[p] != 0 || data[p+1] != 0 || data[p+2]&0x80 == 0 {
			continue
		}

		gn := int(data[p+2]>>2) & 31
		if gn == 0 || gn == 31 || gn < from {
			continue
		}

		b.bitIndex = p << 3
		b.overrun = false

		return gn, true
	}

	return 0, false
}

// decodeShortMacroblock decodes one macroblock of a short video header picture: no AC or DC
// prediction, a single half sample vector and intra DC coded with 8 bits.
func (d *Decoder) decodeShortMacroblock(mbx, mby int) error {
	b := d.buf
	info := &d.mbInfo[mby*d.mbWidth+mbx]
	*info = macroblockInfo{}

	intraVop := d.vop.Type == pictureTypeIntra

	var mbType, cbpc int
	for {
		if !intraVop && b.read1() != 0 { // cod
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

	if mbType == mbInter4V {
		return invalidf("4MV macroblock in short video header")
	}
	if intraVop && mbType != mbIntra && mbType != mbIntraQ {
		return invalidf("inter macroblock %d in I picture", mbType)
	}

	intra := mbType == mbIntra || mbType == mbIntraQ

	cbpy, ok := d.tables.readCBPY(b, intra)
	if !ok {
		return invalidf("cbpy at mb %d,%d", mbx, mby)
	}
	cbp := cbpy<<2 | cbpc

	if mbType == mbInterQ || mbType == mbIntraQ {
		d.setQuant(d.quant + videoDquant[b.read(2)])
	}

	info.mode = mbType
	info.intra = intra
	info.quant = d.quant

	if !intra {
		mv, err := d.readMV(d.predictMV(mbx, mby, 0), 1)
		if err != nil {
			return err
		}
		info.mv = [4]motionVector{mv, mv, mv, mv}

		predictMacroblock(d.frameCurrent, d.frameForward, mbx, mby, &info.mv, false, false, 0, false)
	}

	for n := 0; n < 6; n++ {
		coded := cbp&(32>>n) != 0
		dest, index, scan := blockDest(d.frameCurrent, mbx, mby, n, false)

		if intra {
			if err := d.decodeShortIntraBlock(coded); err != nil {
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

	return nil
}

// decodeShortIntraBlock reads an intra block with its 8 bit DC into d.blockData.
func (d *Decoder) decodeShortIntraBlock(coded bool) error {
	block := d.blockData
	for i := range block {
		block[i] = 0
	}

	dc := d.buf.read(8)
	switch dc {
	case 0, 128:
		return invalidf("intra dc code %d", dc)
	case 255:
		dc = 128
	}

	if coded {
		if err := d.readCoefficients(block, videoZigZag, 1, false); err != nil {
			return err
		}
	}

	dequantH263(block, d.quant, true)
	block[0] = dc << 3

	return nil
}
