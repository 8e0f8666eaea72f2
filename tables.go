package mpeg4

const (
	startVideoObjectFirst = 0x00
	startVideoObjectLast  = 0x1F
	startVolFirst         = 0x20
	startVolLast          = 0x2F
	startVosEnd           = 0xB1
	startUserData         = 0xB2
	startGov              = 0xB3
	startVos              = 0xB0
	startVisualObject     = 0xB5
	startVop              = 0xB6
)

// Picture coding types in vop_coding_type order.
const (
	pictureTypeIntra      = 0
	pictureTypePredictive = 1
	pictureTypeB          = 2
	pictureTypeSprite     = 3
)

// PictureType is the coding type of a decoded frame.
type PictureType int

// Picture types.
const (
	PictureI PictureType = iota
	PictureP
	PictureB
	PictureS
)

// String implements fmt.Stringer.
func (p PictureType) String() string {
	switch p {
	case PictureI:
		return "I"
	case PictureP:
		return "P"
	case PictureB:
		return "B"
	case PictureS:
		return "S"
	}

	return "?"
}

var videoZigZag = []byte{
	0, 1, 8, 16, 9, 2, 3, 10,
	17, 24, 32, 25, 18, 11, 4, 5,
	12, 19, 26, 33, 40, 48, 41, 34,
	27, 20, 13, 6, 7, 14, 21, 28,
	35, 42, 49, 56, 57, 50, 43, 36,
	29, 22, 15, 23, 30, 37, 44, 51,
	58, 59, 52, 45, 38, 31, 39, 46,
	53, 60, 61, 54, 47, 55, 62, 63,
}

// Used for intra blocks predicted from the block above.
var videoAlternateHorizontalScan = []byte{
	0, 1, 2, 3, 8, 9, 16, 17,
	10, 11, 4, 5, 6, 7, 15, 14,
	13, 12, 19, 18, 24, 25, 32, 33,
	26, 27, 20, 21, 22, 23, 28, 29,
	30, 31, 34, 35, 40, 41, 48, 49,
	42, 43, 36, 37, 38, 39, 44, 45,
	46, 47, 50, 51, 56, 57, 58, 59,
	52, 53, 54, 55, 60, 61, 62, 63,
}

// Used for intra blocks predicted from the left block and for alternate_vertical_scan VOPs.
var videoAlternateVerticalScan = []byte{
	0, 8, 16, 24, 1, 9, 2, 10,
	17, 25, 32, 40, 48, 56, 57, 49,
	41, 33, 26, 18, 3, 11, 4, 12,
	19, 27, 34, 42, 50, 58, 35, 43,
	51, 59, 20, 28, 5, 13, 6, 14,
	21, 29, 36, 44, 52, 60, 37, 45,
	53, 61, 22, 30, 7, 15, 23, 31,
	38, 46, 54, 62, 39, 47, 55, 63,
}

var videoIntraQuantMatrix = []byte{
	8, 17, 18, 19, 21, 23, 25, 27,
	17, 18, 19, 21, 23, 25, 27, 28,
	20, 21, 22, 23, 24, 26, 28, 30,
	21, 22, 23, 24, 26, 28, 30, 32,
	22, 23, 24, 26, 28, 30, 32, 35,
	23, 24, 26, 28, 30, 32, 35, 38,
	25, 26, 28, 30, 32, 35, 38, 41,
	27, 28, 30, 32, 35, 38, 41, 45,
}

var videoNonIntraQuantMatrix = []byte{
	16, 17, 18, 19, 20, 21, 22, 23,
	17, 18, 19, 20, 21, 22, 23, 24,
	18, 19, 20, 21, 22, 23, 24, 25,
	19, 20, 21, 22, 23, 24, 26, 27,
	20, 21, 22, 23, 25, 26, 27, 28,
	21, 22, 23, 24, 26, 27, 28, 30,
	22, 23, 24, 26, 27, 28, 30, 31,
	23, 24, 25, 27, 28, 30, 31, 33,
}

// dquant offsets indexed by the 2-bit dquant field.
var videoDquant = []int{-1, -2, 1, 2}

// intra_dc_vlc_thr: intra DC is coded with the DC size VLC while quant is below the threshold.
var videoIntraDcThreshold = []int{32, 13, 15, 17, 19, 21, 23, 0}

// Chroma MV rounding for the sum of two (qpel) and of four (4MV) luma vectors.
var videoRoundTab79 = []int{0, 1, 0, 0}
var videoRoundTab76 = []int{0, 0, 0, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 1, 1}

// dcScaler returns the DC scaler for quant q.
func dcScaler(q int, luma bool) int {
	if q < 1 {
		q = 1
	} else if q > 31 {
		q = 31
	}

	if luma {
		switch {
		case q <= 4:
			return 8
		case q <= 8:
			return 2 * q
		case q <= 24:
			return q + 8
		default:
			return 2*q - 16
		}
	}

	switch {
	case q <= 4:
		return 8
	case q <= 24:
		return (q + 13) >> 1
	default:
		return q - 6
	}
}
