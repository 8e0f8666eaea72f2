package mpeg4

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Decoder decodes MPEG-4 Part 2 (ISO/IEC 14496-2) video packets into frames.
// Packets go in with SendPacket, frames come out in presentation order with ReceiveFrame.
// A Decoder is not safe for concurrent use, decode independent streams with one Decoder each.
type Decoder struct {
	log    *zap.Logger
	tables *vlcTables

	opened  bool
	params  CodecParameters
	vol     *VolConfig
	vop     *VopHeader
	encoder *EncoderInfo

	buf *Buffer

	mbWidth  int
	mbHeight int
	mbSize   int

	frameCurrent  *Frame
	frameForward  *Frame
	frameBackward *Frame

	mbInfo      []macroblockInfo
	refInfo     []macroblockInfo
	refIsSprite bool
	predictors  []blockPredictor
	partitions  []partitionedMB
	blockData   []int

	quant       int
	packetStart int
	lastMV      [2]motionVector
	gmc         gmcParams

	// VOP timing, in seconds (bases) and ticks of the time increment resolution
	secondsBase     int64
	lastSecondsBase int64
	time            int64
	lastNonBTime    int64
	ppTime          int64
	pbTime          int64

	// short video header temporal reference
	lastTR  int
	trSet   bool
	gobRows int

	dpb          reorderBuffer
	ready        []*Frame
	reorderDepth int
	depthSet     bool

	packed    bool
	packedSet bool

	flushing     bool
	waitKeyframe bool

	pktPts      int64
	pktDuration int64
	pktTimeBase Rational
}

// NewDecoder creates a decoder. It has to be opened before use.
func NewDecoder() *Decoder {
	return &Decoder{
		log:       zap.NewNop(),
		tables:    loadVlcTables(),
		blockData: make([]int, 64),
		quant:     1,
		pktPts:    NoPTS,
	}
}

// SetLogger sets the logger, nil disables logging.
func (d *Decoder) SetLogger(log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	d.log = log
}

// SetReorderDepth sets how many frames are held back for reordering.
// By default it is 0 for low delay streams and 1 otherwise.
func (d *Decoder) SetReorderDepth(depth int) {
	if depth < 0 {
		depth = 0
	}
	d.reorderDepth = depth
	d.depthSet = true
}

// SetPackedBitstream forces packed bitstream handling on or off.
// By default it is detected from user data and from packets carrying several VOPs.
func (d *Decoder) SetPackedBitstream(packed bool) {
	d.packed = packed
	d.packedSet = true
}

// Config returns the active video object layer, nil before one was seen.
func (d *Decoder) Config() *VolConfig {
	return d.vol
}

// Encoder returns the encoder detected from user data.
func (d *Decoder) Encoder() EncoderInfo {
	if d.encoder == nil {
		return EncoderInfo{}
	}

	return *d.encoder
}

// Width returns the coded width, or the width given at open time before a VOL was seen.
func (d *Decoder) Width() int {
	if d.vol != nil {
		return d.vol.Width
	}

	return d.params.Video.Width
}

// Height returns the coded height, or the height given at open time before a VOL was seen.
func (d *Decoder) Height() int {
	if d.vol != nil {
		return d.vol.Height
	}

	return d.params.Video.Height
}

// Open prepares the decoder for params. Headers in params.ExtraData are parsed immediately.
func (d *Decoder) Open(params *CodecParameters) error {
	if params == nil {
		return invalidf("nil codec parameters")
	}
	if params.CodecID != CodecMPEG4 && params.CodecID != CodecH263 {
		return unsupportedf("codec %v", params.CodecID)
	}

	d.params = *params
	if len(params.ExtraData) > 0 && params.CodecID == CodecMPEG4 {
		if _, err := d.parseUnits(params.ExtraData); err != nil {
			return errors.Wrap(err, "extra data")
		}
	}

	d.opened = true

	return nil
}

// SendPacket decodes every VOP in packet. An empty or nil packet starts draining: ReceiveFrame
// then returns the held back frames followed by ErrEOF.
// Errors of several VOPs in one packet are combined.
func (d *Decoder) SendPacket(packet *Packet) error {
	if !d.opened {
		return invalidf("decoder is not open")
	}

	if packet == nil || len(packet.Data) == 0 {
		d.flushing = true
		d.ready = append(d.ready, d.dpb.drain()...)

		return nil
	}

	d.flushing = false
	d.pktPts = packet.Pts
	d.pktDuration = packet.Duration
	d.pktTimeBase = packet.TimeBase

	if d.params.CodecID == CodecH263 || isPictureStart(packet.Data) {
		return d.sendPictures(packet.Data)
	}

	vops, err := d.parseUnits(packet.Data)
	if err != nil {
		return err
	}

	if len(vops) > 1 && !d.packed && !d.packedSet {
		d.packed = true
		d.log.Debug("packed bitstream detected", zap.Int("vops", len(vops)))
	}

	var errs error
	for _, vop := range vops {
		errs = multierr.Append(errs, d.decodeVOP(vop))
	}

	return errs
}

// ReceiveFrame returns the next frame in presentation order. It returns ErrNeedMoreData when
// another packet is needed and ErrEOF when the decoder is drained.
func (d *Decoder) ReceiveFrame() (*Frame, error) {
	if len(d.ready) > 0 {
		f := d.ready[0]
		d.ready[0] = nil
		d.ready = d.ready[1:]

		return f, nil
	}

	if d.flushing {
		return nil, ErrEOF
	}

	return nil, ErrNeedMoreData
}

// Flush drops references, pending frames and macroblock state, for example after a seek.
// Decoding resumes at the next I-VOP. The VOP clock restarts at zero until a GOV header sets it.
func (d *Decoder) Flush() {
	d.frameCurrent = nil
	d.frameForward = nil
	d.frameBackward = nil

	for i := range d.refInfo {
		d.refInfo[i] = macroblockInfo{}
	}

	d.dpb.reset()
	d.ready = nil
	d.lastMV = [2]motionVector{}
	d.packetStart = 0

	d.secondsBase, d.lastSecondsBase = 0, 0
	d.time, d.lastNonBTime = 0, 0
	d.ppTime, d.pbTime = 0, 0
	d.trSet = false

	d.flushing = false
	d.waitKeyframe = true
}

// parseUnits walks the start codes in data. Headers are applied right away, the VOP payloads
// are returned in stream order.
func (d *Decoder) parseUnits(data []byte) ([][]byte, error) {
	var vops [][]byte

	found := false
	for pos := 0; pos < len(data); {
		start, code := FindStartCodeRange(data[pos:], 0x00, 0xff)
		if start < 0 {
			break
		}
		found = true
		start += pos

		end := len(data)
		if next, _ := FindStartCodeRange(data[start:], 0x00, 0xff); next >= 0 {
			end = start + next - 4
		}
		payload := data[start:end]
		pos = end

		switch {
		case code == startVop:
			vops = append(vops, payload)
		case code >= startVolFirst && code <= startVolLast:
			if err := d.setVOL(payload); err != nil {
				return vops, err
			}
		case code == startUserData:
			d.setUserData(payload)
		case code == startGov:
			d.secondsBase = int64(parseGOV(NewBufferBytes(payload)))
		}
	}

	if !found {
		return nil, invalidf("no start code in packet")
	}

	return vops, nil
}

func (d *Decoder) setVOL(payload []byte) error {
	vol, err := parseVOL(NewBufferBytes(payload), d.log)
	if err != nil {
		return err
	}

	if d.encoder != nil {
		vol.Encoder = *d.encoder
	}

	if d.vol == nil || vol.Width != d.vol.Width || vol.Height != d.vol.Height {
		d.allocate(vol)
	}
	d.vol = vol

	d.log.Debug("video object layer",
		zap.Int("width", vol.Width),
		zap.Int("height", vol.Height),
		zap.Int("object_type", vol.ObjectType),
		zap.Int("time_resolution", vol.TimeIncrementResolution),
		zap.Bool("interlaced", vol.Interlaced),
		zap.Bool("quarter_pel", vol.QuarterPel),
		zap.Int("quant_type", vol.QuantType),
		zap.Int("sprite", vol.SpriteEnable),
		zap.Bool("low_delay", vol.LowDelay),
	)

	return nil
}

// allocate sizes the per-macroblock state for vol. Frames of the previous size are flushed out.
func (d *Decoder) allocate(vol *VolConfig) {
	d.mbWidth = (vol.Width + 15) >> 4
	d.mbHeight = (vol.Height + 15) >> 4
	d.mbSize = d.mbWidth * d.mbHeight

	d.mbInfo = make([]macroblockInfo, d.mbSize)
	d.refInfo = make([]macroblockInfo, d.mbSize)
	d.predictors = make([]blockPredictor, d.mbSize*6)
	d.partitions = make([]partitionedMB, d.mbSize)

	d.frameCurrent = nil
	d.frameForward = nil
	d.frameBackward = nil

	d.ready = append(d.ready, d.dpb.drain()...)
}

func (d *Decoder) setUserData(payload []byte) {
	info, ok := parseUserData(payload)
	if !ok {
		return
	}

	d.encoder = &info
	if d.vol != nil {
		d.vol.Encoder = info
	}
	if info.Packed && !d.packedSet {
		d.packed = true
	}

	d.log.Debug("encoder detected",
		zap.Stringer("type", info.Type),
		zap.Int("version", info.Version),
		zap.Int("build", info.Build),
		zap.Bool("packed", info.Packed),
	)
}

func (d *Decoder) decodeVOP(data []byte) error {
	if d.vol == nil || d.vol.ShortVideoHeader {
		return invalidf("video object plane before video object layer")
	}
	if d.vol.DataPartitioned && d.vol.ReversibleVLC {
		return unsupportedf("reversible VLC")
	}
	if d.vol.DataPartitioned && d.vol.Interlaced {
		return unsupportedf("interlaced data partitioning")
	}
	if d.vol.Not8Bit {
		return unsupportedf("not 8 bit video")
	}

	d.buf = NewBufferBytes(data)
	vop, err := parseVOP(d.buf, d.vol, d.quant)
	if err != nil {
		if errors.Is(err, ErrUnsupported) || len(data) == 0 {
			return err
		}

		return d.recoverVOP(int(data[0]>>6), err)
	}

	d.vop = vop
	d.updateTime(vop)

	d.log.Debug("video object plane",
		zap.Stringer("type", PictureType(vop.Type)),
		zap.Int64("time", d.time),
		zap.Bool("coded", vop.Coded),
		zap.Int("quant", vop.Quant),
	)

	d.decodePicture(vop)

	return nil
}

// decodePicture decodes the macroblocks of vop after its header was read.
func (d *Decoder) decodePicture(vop *VopHeader) {
	if d.waitKeyframe {
		if vop.Type != pictureTypeIntra {
			d.log.Warn("waiting for key frame, VOP dropped", zap.Stringer("type", PictureType(vop.Type)))
			return
		}
		d.waitKeyframe = false
	}

	if !vop.Coded {
		d.notCoded(vop)
		return
	}

	if vop.Type == pictureTypeB {
		d.decodeB()
		return
	}

	d.decodeReference()
}

// updateTime advances the VOP clock and the temporal distances used by direct mode.
func (d *Decoder) updateTime(vop *VopHeader) {
	res := int64(d.vol.TimeIncrementResolution)

	if vop.Type != pictureTypeB {
		d.lastSecondsBase = d.secondsBase
		d.secondsBase += int64(vop.ModuloTime)
		d.time = d.secondsBase*res + int64(vop.TimeIncrement)
		d.ppTime = d.time - d.lastNonBTime
		d.lastNonBTime = d.time

		return
	}

	d.time = (d.lastSecondsBase+int64(vop.ModuloTime))*res + int64(vop.TimeIncrement)
	d.pbTime = d.ppTime - (d.lastNonBTime - d.time)
}

// decodeReference decodes an I-, P- or S-VOP, which becomes the new backward reference.
func (d *Decoder) decodeReference() {
	vop := d.vop

	d.frameForward = d.frameBackward
	if vop.Type != pictureTypeIntra && d.frameForward == nil {
		d.log.Warn("predicted VOP without reference, using gray", zap.Stringer("type", PictureType(vop.Type)))
		d.frameForward = newFrame(d.vol.Width, d.vol.Height)
		d.frameForward.fill(128)
	}

	if vop.IsSprite() {
		d.gmc = newGMC(d.vol, vop)
	}

	cur := newFrame(d.vol.Width, d.vol.Height)
	d.frameCurrent = cur
	d.quant = vop.Quant

	var lost int
	switch {
	case d.vol.ShortVideoHeader:
		lost = d.decodeGOBs()
	case d.vol.DataPartitioned:
		lost = d.decodePartitioned()
	default:
		lost = d.decodeMacroblocks(d.decodeMacroblock)
	}
	if lost > 0 {
		d.log.Warn("macroblocks concealed",
			zap.Stringer("type", PictureType(vop.Type)),
			zap.Int("lost", lost),
			zap.Int("total", d.mbSize),
		)
	}

	copy(d.refInfo, d.mbInfo)
	d.refIsSprite = vop.IsSprite()
	d.frameBackward = cur

	out := cur.Clone()
	d.stamp(out, vop.Type)
	d.output(out)
}

// decodeB decodes a B-VOP between the two most recent references.
func (d *Decoder) decodeB() {
	if d.frameForward == nil || d.frameBackward == nil {
		d.log.Warn("B-VOP without both references, skipped")
		return
	}

	if d.ppTime <= 0 || d.pbTime <= 0 || d.pbTime >= d.ppTime {
		d.log.Warn("B-VOP out of order, skipped",
			zap.Int64("pp_time", d.ppTime),
			zap.Int64("pb_time", d.pbTime),
		)
		return
	}

	cur := newFrame(d.vol.Width, d.vol.Height)
	d.frameCurrent = cur
	d.quant = d.vop.Quant

	if lost := d.decodeMacroblocks(d.decodeBMacroblock); lost > 0 {
		d.log.Warn("macroblocks concealed",
			zap.Stringer("type", PictureB),
			zap.Int("lost", lost),
			zap.Int("total", d.mbSize),
		)
	}

	d.stamp(cur, pictureTypeB)
	d.output(cur)
}

// recoverVOP repeats a reference in place of a VOP whose header could not be parsed.
func (d *Decoder) recoverVOP(typ int, err error) error {
	var ref *Frame
	switch typ {
	case pictureTypePredictive, pictureTypeSprite:
		ref, typ = d.frameBackward, pictureTypePredictive
	case pictureTypeB:
		ref = d.frameForward
	default:
		return err
	}

	if ref == nil {
		if typ == pictureTypeB {
			d.log.Warn("B-VOP lost, skipped", zap.Error(err))
			return nil
		}

		return err
	}

	d.log.Warn("VOP lost, repeating reference", zap.Stringer("type", PictureType(typ)), zap.Error(err))

	f := ref.Clone()
	d.stamp(f, typ)
	d.output(f)

	return nil
}

// notCoded handles a VOP with vop_coded 0. Packed streams use them as placeholders for frames
// already sent, otherwise the latest reference is repeated.
func (d *Decoder) notCoded(vop *VopHeader) {
	if d.packed {
		d.log.Debug("packed placeholder VOP dropped")
		return
	}

	if d.frameBackward == nil {
		return
	}

	f := d.frameBackward.Clone()
	d.stamp(f, vop.Type)
	d.output(f)
}

// stamp sets the picture type and timing of a frame about to be output.
func (d *Decoder) stamp(f *Frame, typ int) {
	res := int64(d.vol.TimeIncrementResolution)

	f.PictureType = PictureType(typ)
	f.KeyFrame = typ == pictureTypeIntra
	f.poc = d.time
	f.Time = float64(d.time) / float64(res)

	if d.pktPts != NoPTS {
		f.Pts = d.pktPts
		f.TimeBase = d.pktTimeBase
		f.Duration = d.pktDuration
		d.pktPts = NoPTS

		return
	}

	f.Pts = d.time
	f.TimeBase = Rational{1, int(res)}
	f.Duration = 0
	if d.vol.FixedVopRate {
		f.Duration = int64(d.vol.FixedVopTimeIncrement)
	}
}

// output queues f for reordering and releases the frames it no longer has to hold.
func (d *Decoder) output(f *Frame) {
	depth := d.reorderDepth
	if !d.depthSet {
		depth = 1
		if d.vol.LowDelay {
			depth = 0
		}
	}

	d.dpb.push(f)
	for d.dpb.len() > depth {
		d.ready = append(d.ready, d.dpb.pop())
	}
}
