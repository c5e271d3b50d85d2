package main

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/wippyai/filter-bridge/buffer"
)

func TestFrameFromImage(t *testing.T) {
	opaque := image.NewRGBA(image.Rect(0, 0, 3, 2))
	translucent := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			opaque.Set(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 10), B: 7, A: 0xff})
			translucent.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 10), G: uint8(y * 10), B: 7, A: 0x80})
		}
	}

	tests := []struct {
		name     string
		img      image.Image
		order    buffer.AxisOrder
		channels int
	}{
		{"opaque rgb", opaque, buffer.ChannelLast, 3},
		{"translucent rgba", translucent, buffer.ChannelLast, 4},
		{"channel first", opaque, buffer.ChannelFirst, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := frameFromImage(tt.img, tt.order)
			if f.channels != tt.channels {
				t.Fatalf("Expected %d channels, got %d", tt.channels, f.channels)
			}
			if len(f.pix) != 3*2*tt.channels {
				t.Fatalf("Expected %d bytes, got %d", 3*2*tt.channels, len(f.pix))
			}

			// pixel (2, 1) is interleaved at (1*3+2)*channels
			base := (1*3 + 2) * tt.channels
			if f.pix[base] != 20 || f.pix[base+1] != 10 || f.pix[base+2] != 7 {
				t.Errorf("Unexpected pixel %v", f.pix[base:base+tt.channels])
			}

			out := f.image()
			want := color.NRGBAModel.Convert(tt.img.At(2, 1)).(color.NRGBA)
			if got := out.NRGBAAt(2, 1); got != want {
				t.Errorf("Round trip: expected %v, got %v", want, got)
			}
		})
	}
}

func TestPNGFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.png")

	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	f := frameFromImage(img, buffer.ChannelLast)
	if err := writePNG(path, f); err != nil {
		t.Fatalf("writePNG: %v", err)
	}

	back, err := readPNG(path, buffer.ChannelLast)
	if err != nil {
		t.Fatalf("readPNG: %v", err)
	}
	if back.width != 4 || back.height != 4 || back.channels != 3 {
		t.Errorf("Expected opaque 4x4x3, got %dx%dx%d", back.width, back.height, back.channels)
	}

	if _, err := readPNG(filepath.Join(dir, "missing.png"), buffer.ChannelLast); err == nil {
		t.Error("Expected error for missing file")
	}
}
