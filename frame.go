package mpeg4

import (
	"image"
	"image/color"
	"image/draw"
	"unsafe"
)

// Frame represents decoded video frame.
type Frame struct {
	// Time is the presentation time in seconds.
	Time float64

	Width  int
	Height int

	Y  Plane
	Cb Plane
	Cr Plane

	PixelFormat PixelFormat
	PictureType PictureType
	KeyFrame    bool

	// Pts is in TimeBase units. It is the packet pts when the packet carried one,
	// otherwise the VOP time with a TimeBase of 1/vop_time_increment_resolution.
	Pts      int64
	TimeBase Rational
	Duration int64

	// poc orders frames for output, in VOP time ticks
	poc int64

	imYCbCr image.YCbCr
	imRGBA  image.RGBA
}

// YCbCr returns frame as image.YCbCr.
func (f *Frame) YCbCr() *image.YCbCr {
	return &f.imYCbCr
}

// RGBA returns frame as image.RGBA.
func (f *Frame) RGBA() *image.RGBA {
	if f.imRGBA.Pix == nil {
		f.imRGBA = image.RGBA{
			Pix:    make([]byte, f.Width*f.Height*4),
			Stride: 4 * f.Width,
			Rect:   image.Rect(0, 0, f.Width, f.Height),
		}
	}

	b := f.imYCbCr.Bounds()
	draw.Draw(&f.imRGBA, b.Bounds(), &f.imYCbCr, b.Min, draw.Src)
	return &f.imRGBA
}

// Pixels returns frame as slice of color.RGBA.
func (f *Frame) Pixels() []color.RGBA {
	img := f.RGBA()
	return unsafe.Slice((*color.RGBA)(unsafe.Pointer(&img.Pix[0])), len(img.Pix)/4)
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	c := newFrame(f.Width, f.Height)
	copy(c.Y.Data, f.Y.Data)
	copy(c.Cb.Data, f.Cb.Data)
	copy(c.Cr.Data, f.Cr.Data)

	c.Time = f.Time
	c.PixelFormat = f.PixelFormat
	c.PictureType = f.PictureType
	c.KeyFrame = f.KeyFrame
	c.Pts = f.Pts
	c.TimeBase = f.TimeBase
	c.Duration = f.Duration
	c.poc = f.poc

	return c
}

// Plane represents decoded video plane.
// The byte length of the data is width * height. Note that different planes have different sizes:
// the Luma plane (Y) is double the size of each of the two Chroma planes (Cr, Cb) - i.e. 4 times the byte length.
// Also note that the size of the plane does *not* denote the size of the displayed frame.
// The sizes of planes are always rounded up to the nearest macroblock (16px).
type Plane struct {
	Width  int
	Height int
	Data   []byte
}

func newFrame(width, height int) *Frame {
	frame := &Frame{}

	mbWidth := (width + 15) >> 4
	mbHeight := (height + 15) >> 4

	lumaWidth := mbWidth << 4
	lumaHeight := mbHeight << 4
	chromaWidth := mbWidth << 3
	chromaHeight := mbHeight << 3

	lumaSize := lumaWidth * lumaHeight
	chromaSize := chromaWidth * chromaHeight
	frameSize := lumaSize + 2*chromaSize

	base := make([]byte, frameSize)

	frame.Width = width
	frame.Height = height
	frame.PixelFormat = PixelFormatYUV420P

	frame.Y.Width = lumaWidth
	frame.Y.Height = lumaHeight
	frame.Y.Data = base[0:lumaSize:lumaSize]

	frame.Cb.Width = chromaWidth
	frame.Cb.Height = chromaHeight
	frame.Cb.Data = base[lumaSize : lumaSize+chromaSize : lumaSize+chromaSize]

	frame.Cr.Width = chromaWidth
	frame.Cr.Height = chromaHeight
	frame.Cr.Data = base[lumaSize+chromaSize : frameSize : frameSize]

	frame.imYCbCr = image.YCbCr{
		Y:              frame.Y.Data,
		Cb:             frame.Cb.Data,
		Cr:             frame.Cr.Data,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		YStride:        lumaWidth,
		CStride:        chromaWidth,
		Rect:           image.Rect(0, 0, width, height),
	}

	return frame
}

// fill sets every sample of the frame to value.
func (f *Frame) fill(value byte) {
	for _, p := range []*Plane{&f.Y, &f.Cb, &f.Cr} {
		for i := range p.Data {
			p.Data[i] = value
		}
	}
}
