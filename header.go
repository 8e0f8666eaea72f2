package mpeg4

import (
	"math/bits"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Sprite usage signalled in the VOL.
const (
	SpriteNone   = 0
	SpriteStatic = 1
	SpriteGMC    = 2
)

// Quantisation methods.
const (
	QuantH263 = 0
	QuantMPEG = 1
)

const shapeRectangular = 0

// EncoderType identifies the encoder that produced a stream, detected from user data.
type EncoderType int

// Known encoders.
const (
	EncoderUnknown EncoderType = iota
	EncoderDivX
	EncoderXviD
	EncoderLavc
)

// String implements fmt.Stringer.
func (e EncoderType) String() string {
	switch e {
	case EncoderDivX:
		return "DivX"
	case EncoderXviD:
		return "XviD"
	case EncoderLavc:
		return "Lavc"
	}

	return "unknown"
}

// EncoderInfo describes the detected encoder.
// Version is major*10000 + minor*100 + micro for Lavc and the plain version number for DivX.
type EncoderInfo struct {
	Type    EncoderType
	Version int
	Build   int
	Packed  bool
}

// VolConfig holds the Video Object Layer (sequence) parameters.
type VolConfig struct {
	ObjectType  int
	VerID       int
	AspectRatio int
	ParWidth    int
	ParHeight   int
	LowDelay    bool
	Shape       int

	TimeIncrementResolution int
	TimeIncrementBits       int
	FixedVopRate            bool
	FixedVopTimeIncrement   int

	Width  int
	Height int

	Interlaced  bool
	ObmcDisable bool

	SpriteEnable           int
	SpriteWarpingPoints    int
	SpriteWarpingAccuracy  int
	SpriteBrightnessChange bool

	Not8Bit        bool
	QuantPrecision int
	QuantType      int

	// Raster order.
	IntraMatrix [64]int
	InterMatrix [64]int

	QuarterPel bool

	ComplexityEstimationDisable bool
	ResyncMarkerDisable         bool
	DataPartitioned             bool
	ReversibleVLC               bool
	NewPredEnable               bool
	ReducedResolutionEnable     bool
	Scalability                 bool

	// Set for the layer implied by short video header (H.263 baseline) pictures.
	ShortVideoHeader bool

	Encoder EncoderInfo

	// bits of complexity estimation data carried by I, P and B VOP headers
	estimationBits [3]int
}

// VopHeader holds the Video Object Plane (frame) parameters.
type VopHeader struct {
	Type          int
	ModuloTime    int
	TimeIncrement int
	Coded         bool

	RoundingType     int
	IntraDcThreshold int
	Quant            int
	FcodeForward     int
	FcodeBackward    int

	TopFieldFirst         bool
	AlternateVerticalScan bool

	// sprite trajectory displacements (du, dv) per warping point
	Trajectory [4][2]int
}

// IsSprite reports whether the VOP is an S-VOP.
func (h *VopHeader) IsSprite() bool {
	return h.Type == pictureTypeSprite
}

// bitLength returns the number of bits needed for values 0..n-1, at least 1.
func bitLength(n int) int {
	n = bits.Len(uint(n - 1))
	if n < 1 {
		n = 1
	}

	return n
}

// parseVOL reads a video_object_layer after its 0x20..0x2F start code.
func parseVOL(b *Buffer, log *zap.Logger) (*VolConfig, error) {
	vol := &VolConfig{VerID: 1, QuantPrecision: 5}

	b.skip(1) // random_accessible_vol
	vol.ObjectType = b.read(8)

	if b.read1() != 0 {
		vol.VerID = b.read(4)
		b.skip(3) // priority
	}

	vol.AspectRatio = b.read(4)
	if vol.AspectRatio == 15 {
		vol.ParWidth = b.read(8)
		vol.ParHeight = b.read(8)
	}

	// Simple profile streams carry no B-VOPs.
	vol.LowDelay = vol.ObjectType == 1
	if b.read1() != 0 { // vol_control_parameters
		b.skip(2) // chroma_format
		vol.LowDelay = b.read1() != 0
		if b.read1() != 0 { // vbv_parameters
			b.skip(15 + 1 + 15 + 1 + 15 + 1 + 3 + 11 + 1 + 15 + 1)
		}
	}

	vol.Shape = b.read(2)
	if vol.Shape != shapeRectangular {
		return nil, unsupportedf("video object layer shape %d", vol.Shape)
	}

	b.skip(1) // marker
	vol.TimeIncrementResolution = b.read(16)
	if vol.TimeIncrementResolution == 0 {
		return nil, invalidf("zero vop_time_increment_resolution")
	}
	vol.TimeIncrementBits = bitLength(vol.TimeIncrementResolution)
	b.skip(1) // marker

	vol.FixedVopRate = b.read1() != 0
	if vol.FixedVopRate {
		vol.FixedVopTimeIncrement = b.read(vol.TimeIncrementBits)
	}

	b.skip(1) // marker
	vol.Width = b.read(13)
	b.skip(1) // marker
	vol.Height = b.read(13)
	b.skip(1) // marker

	vol.Interlaced = b.read1() != 0
	vol.ObmcDisable = b.read1() != 0

	if vol.VerID == 1 {
		vol.SpriteEnable = b.read1()
	} else {
		vol.SpriteEnable = b.read(2)
	}

	if vol.SpriteEnable == SpriteStatic || vol.SpriteEnable == SpriteGMC {
		if vol.SpriteEnable != SpriteGMC {
			b.skip(4 * (13 + 1)) // sprite width, height, left, top
		}
		vol.SpriteWarpingPoints = b.read(6)
		vol.SpriteWarpingAccuracy = b.read(2)
		vol.SpriteBrightnessChange = b.read1() != 0
		if vol.SpriteEnable != SpriteGMC {
			b.skip(1) // low_latency_sprite_enable
		}
	}

	vol.Not8Bit = b.read1() != 0
	if vol.Not8Bit {
		vol.QuantPrecision = b.read(4)
		b.skip(4) // bits_per_pixel
	}

	vol.QuantType = b.read1()
	copyMatrix(vol.IntraMatrix[:], videoIntraQuantMatrix)
	copyMatrix(vol.InterMatrix[:], videoNonIntraQuantMatrix)
	if vol.QuantType == QuantMPEG {
		if b.read1() != 0 {
			readQuantMatrix(b, vol.IntraMatrix[:])
		}
		if b.read1() != 0 {
			readQuantMatrix(b, vol.InterMatrix[:])
		}
	}

	if vol.VerID != 1 {
		vol.QuarterPel = b.read1() != 0
	}

	vol.ComplexityEstimationDisable = b.read1() != 0
	if !vol.ComplexityEstimationDisable {
		parseComplexityEstimation(b, vol, log)
	}

	vol.ResyncMarkerDisable = b.read1() != 0
	vol.DataPartitioned = b.read1() != 0
	if vol.DataPartitioned {
		vol.ReversibleVLC = b.read1() != 0
	}

	if vol.VerID != 1 {
		vol.NewPredEnable = b.read1() != 0
		if vol.NewPredEnable {
			b.skip(2 + 1) // requested_upstream_message_type, newpred_segment_type
		}
		vol.ReducedResolutionEnable = b.read1() != 0
	}

	vol.Scalability = b.read1() != 0

	if b.overrun {
		return nil, invalidf("truncated video object layer")
	}

	if vol.Width == 0 || vol.Height == 0 {
		return nil, invalidf("video object layer size %dx%d", vol.Width, vol.Height)
	}

	return vol, nil
}

func copyMatrix(dst []int, src []byte) {
	for i, v := range src {
		dst[i] = int(v)
	}
}

// readQuantMatrix reads up to 64 zigzag ordered values, a zero ends the list and repeats the last value.
func readQuantMatrix(b *Buffer, m []int) {
	last := 0
	i := 0
	for ; i < 64; i++ {
		v := b.read(8)
		if v == 0 {
			break
		}
		last = v
		m[videoZigZag[i]] = v
	}

	for ; i < 64; i++ {
		m[videoZigZag[i]] = last
	}
}

// parseComplexityEstimation reads define_vop_complexity_estimation_header and records how many bits
// each VOP type has to skip. Unknown methods are ignored with a warning: the layer is parsed on
// from the method bits, as if no estimation header was present.
func parseComplexityEstimation(b *Buffer, vol *VolConfig, log *zap.Logger) {
	method := b.read(2)
	if method >= 2 {
		log.Warn("unsupported complexity estimation method, ignored", zap.Int("method", method))
		b.bitIndex -= 2
		return
	}

	const i, p, bb = 0, 1, 2
	flags := func(dst ...int) {
		for _, d := range dst {
			vol.estimationBits[d] += 8 * b.read1()
		}
	}

	if b.read1() == 0 { // shape_complexity_estimation_disable
		flags(i, i, i, i, i, i)
	}
	if b.read1() == 0 { // texture_complexity_estimation_set_1_disable
		flags(i, p, p, i)
	}
	b.skip(1) // marker
	if b.read1() == 0 { // texture_complexity_estimation_set_2_disable
		flags(i, i, i)
		vol.estimationBits[i] += 4 * b.read1() // vlc_bits
	}
	if b.read1() == 0 { // motion_compensation_complexity_disable
		flags(p, p, bb, p, p, p)
	}
	b.skip(1) // marker
	if method == 1 && b.read1() == 0 { // version2_complexity_estimation_disable
		flags(i, p)
	}
}

// parseVOP reads a video_object_plane after its 0xB6 start code.
// prevQuant is used when the coded quant is zero.
func parseVOP(b *Buffer, vol *VolConfig, prevQuant int) (*VopHeader, error) {
	h := &VopHeader{Quant: prevQuant, FcodeForward: 1, FcodeBackward: 1}
	h.IntraDcThreshold = videoIntraDcThreshold[0]

	h.Type = b.read(2)
	for b.read1() != 0 {
		h.ModuloTime++
		if b.overrun {
			return nil, invalidf("truncated modulo_time_base")
		}
	}
	b.skip(1) // marker
	h.TimeIncrement = b.read(vol.TimeIncrementBits)
	b.skip(1) // marker

	h.Coded = b.read1() != 0
	if !h.Coded {
		return h, nil
	}

	if vol.NewPredEnable {
		idBits := vol.TimeIncrementBits + 3
		if idBits > 15 {
			idBits = 15
		}
		b.skip(idBits)
		if b.read1() != 0 {
			b.skip(idBits)
		}
		b.skip(1) // marker
	}

	if h.Type == pictureTypePredictive || (h.Type == pictureTypeSprite && vol.SpriteEnable == SpriteGMC) {
		h.RoundingType = b.read1()
	}

	if vol.ReducedResolutionEnable && (h.Type == pictureTypeIntra || h.Type == pictureTypePredictive) {
		if b.read1() != 0 {
			return nil, unsupportedf("reduced resolution VOP")
		}
	}

	if !vol.ComplexityEstimationDisable {
		b.skip(vol.estimationBits[0])
		if h.Type != pictureTypeIntra {
			b.skip(vol.estimationBits[1])
		}
		if h.Type == pictureTypeB {
			b.skip(vol.estimationBits[2])
		}
	}

	if h.Type != pictureTypeB {
		h.IntraDcThreshold = videoIntraDcThreshold[b.read(3)]
	}

	if vol.Interlaced {
		h.TopFieldFirst = b.read1() != 0
		h.AlternateVerticalScan = b.read1() != 0
	}

	if h.Type == pictureTypeSprite {
		switch vol.SpriteEnable {
		case SpriteGMC:
		case SpriteStatic:
			return nil, unsupportedf("static sprite")
		default:
			return nil, invalidf("S-VOP without sprite enabled")
		}

		for i := 0; i < vol.SpriteWarpingPoints && i < 4; i++ {
			du, ok := readTrajectory(b)
			if !ok {
				return nil, invalidf("sprite trajectory")
			}
			b.skip(1) // marker
			dv, ok := readTrajectory(b)
			if !ok {
				return nil, invalidf("sprite trajectory")
			}
			b.skip(1) // marker
			h.Trajectory[i] = [2]int{du, dv}
		}

		if vol.SpriteBrightnessChange {
			return nil, unsupportedf("sprite brightness change")
		}
	}

	if q := b.read(vol.QuantPrecision); q != 0 {
		h.Quant = q
	}
	if h.Quant < 1 {
		h.Quant = 1
	}

	if h.Type != pictureTypeIntra {
		h.FcodeForward = b.read(3)
		if h.FcodeForward == 0 {
			return nil, invalidf("zero vop_fcode_forward")
		}
	}
	if h.Type == pictureTypeB {
		h.FcodeBackward = b.read(3)
		if h.FcodeBackward == 0 {
			return nil, invalidf("zero vop_fcode_backward")
		}
	}

	if b.overrun {
		return nil, invalidf("truncated video object plane header")
	}

	return h, nil
}

// parseGOV reads a group_of_vop header and returns its time code in seconds.
func parseGOV(b *Buffer) int {
	hours := b.read(5)
	minutes := b.read(6)
	b.skip(1) // marker
	seconds := b.read(6)
	b.skip(2) // closed_gov, broken_link

	return hours*3600 + minutes*60 + seconds
}

// parseUserData identifies the encoder from a user_data payload (the bytes after 00 00 01 B2).
// It returns false when the encoder is not recognised.
func parseUserData(data []byte) (EncoderInfo, bool) {
	if end, _ := FindStartCodeRange(data, 0, 0xff); end >= 0 {
		data = data[:end-4]
	}
	if n := strings.IndexByte(string(data), 0); n >= 0 {
		data = data[:n]
	}
	text := string(data)

	if pos := strings.Index(text, "DivX"); pos >= 0 {
		version, build, packed := parseDivXVersion(text[pos+4:])

		return EncoderInfo{Type: EncoderDivX, Version: version, Build: build, Packed: packed}, true
	}

	if pos := indexAny(text, "XviD", "xvid", "Xvid"); pos >= 0 {
		info := EncoderInfo{Type: EncoderXviD}
		rest := data[pos+4:]
		if n := leadingDigits(string(rest)); n > 0 {
			info.Build, _ = strconv.Atoi(string(rest[:n]))
		} else if len(rest) >= 4 {
			info.Build = int(rest[0]) | int(rest[1])<<8 | int(rest[2])<<16 | int(rest[3])<<24
		}

		return info, true
	}

	if strings.HasPrefix(text, "Lavc") || strings.HasPrefix(text, "FFmpeg") {
		return EncoderInfo{Type: EncoderLavc, Version: parseLavcVersion(text)}, true
	}

	return EncoderInfo{}, false
}

// parseDivXVersion parses strings like "503b1393p" or "501Build1018".
func parseDivXVersion(s string) (version, build int, packed bool) {
	packed = strings.HasSuffix(s, "p")

	n := leadingDigits(s)
	version, _ = strconv.Atoi(s[:n])
	s = s[n:]

	switch {
	case strings.HasPrefix(s, "Build"):
		s = s[5:]
	case strings.HasPrefix(s, "b"), strings.HasPrefix(s, "B"):
		s = s[1:]
	default:
		return version, 0, packed
	}

	n = leadingDigits(s)
	build, _ = strconv.Atoi(s[:n])

	return version, build, packed
}

// parseLavcVersion turns "Lavc57.48.101" into 574901.
func parseLavcVersion(s string) int {
	switch {
	case strings.HasPrefix(s, "Lavc"):
		s = s[4:]
	case strings.HasPrefix(s, "FFmpeg"):
		s = strings.TrimLeftFunc(s[6:], func(r rune) bool { return r < '0' || r > '9' })
	}

	version := 0
	scale := 10000
	for i, part := range strings.SplitN(s, ".", 3) {
		n := leadingDigits(part)
		if n == 0 {
			break
		}
		v, _ := strconv.Atoi(part[:n])
		version += v * scale
		scale /= 100
		if i == 2 || n < len(part) {
			break
		}
	}

	return version
}

func indexAny(s string, subs ...string) int {
	for _, sub := range subs {
		if pos := strings.Index(s, sub); pos >= 0 {
			return pos
		}
	}

	return -1
}

func leadingDigits(s string) int {
	n := 0
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}

	return n
}
