package main

import (
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/wippyai/filter-bridge/buffer"
	"github.com/wippyai/filter-bridge/errors"
)

// frame is an 8-bit interleaved image owned by Go.
type frame struct {
	pix                     []uint8
	width, height, channels int
	order                   buffer.AxisOrder
}

// strides returns the element step per x, y and channel of b.
func strides(b *buffer.Buffer) (sx, sy, sc int) {
	sc = 1
	for _, a := range []buffer.Axis{buffer.X, buffer.Y, buffer.C} {
		i, ok := b.Index(a)
		if !ok {
			continue
		}
		s := int(b.Dim(i).Stride)
		switch a {
		case buffer.X:
			sx = s
		case buffer.Y:
			sy = s
		case buffer.C:
			sc = s
		}
	}
	return sx, sy, sc
}

func (f *frame) wrap(readOnly bool) *buffer.Buffer {
	if readOnly {
		return buffer.WrapReadOnly(f.width, f.height, f.channels, f.pix, buffer.WithAxisOrder(f.order))
	}
	return buffer.Wrap(f.width, f.height, f.channels, f.pix, buffer.WithAxisOrder(f.order))
}

// blank returns a zeroed frame with the same geometry.
func (f *frame) blank() *frame {
	return &frame{
		pix:      make([]uint8, len(f.pix)),
		width:    f.width,
		height:   f.height,
		channels: f.channels,
		order:    f.order,
	}
}

type opaquer interface {
	Opaque() bool
}

// frameFromImage converts img to 8-bit RGB when it is fully opaque and RGBA
// otherwise. Color values are not premultiplied.
func frameFromImage(img image.Image, order buffer.AxisOrder) *frame {
	bounds := img.Bounds()
	channels := 4
	if o, ok := img.(opaquer); ok && o.Opaque() {
		channels = 3
	}

	f := &frame{
		pix:      make([]uint8, bounds.Dx()*bounds.Dy()*channels),
		width:    bounds.Dx(),
		height:   bounds.Dy(),
		channels: channels,
		order:    order,
	}
	b := f.wrap(true)
	sx, sy, sc := strides(b)
	b.Free()

	for y := 0; y < f.height; y++ {
		for x := 0; x < f.width; x++ {
			c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			px := [4]uint8{c.R, c.G, c.B, c.A}
			base := x*sx + y*sy
			for ch := 0; ch < channels; ch++ {
				f.pix[base+ch*sc] = px[ch]
			}
		}
	}
	return f
}

// image converts f back to an NRGBA image. Frames with three channels are opaque.
func (f *frame) image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, f.width, f.height))
	b := f.wrap(true)
	sx, sy, sc := strides(b)
	b.Free()

	for y := 0; y < f.height; y++ {
		for x := 0; x < f.width; x++ {
			base := x*sx + y*sy
			px := color.NRGBA{A: 0xff}
			px.R = f.pix[base]
			px.G = f.pix[base+sc]
			px.B = f.pix[base+2*sc]
			if f.channels == 4 {
				px.A = f.pix[base+3*sc]
			}
			img.SetNRGBA(x, y, px)
		}
	}
	return img
}

func readPNG(path string, order buffer.AxisOrder) (*frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLayout, errors.KindNotFound, err, "open image")
	}
	defer file.Close()

	img, err := png.Decode(file)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLayout, errors.KindInvalidInput, err, "decode "+path)
	}
	return frameFromImage(img, order), nil
}

func writePNG(path string, f *frame) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(errors.PhaseLayout, errors.KindInvalidInput, err, "create "+path)
	}
	if err := png.Encode(file, f.image()); err != nil {
		file.Close()
		return errors.Wrap(errors.PhaseLayout, errors.KindInvalidInput, err, "encode "+path)
	}
	return file.Close()
}
