// Package imgcodec decodes a raster image file into the RGBA8 byte layout
// the pipeline façade's Open operation needs. It is the external image
// decoder collaborator the core consults once per pipeline; decoding
// algorithms themselves are out of scope for the core.
package imgcodec

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Image is a decoded source image in channel-last RGBA8 layout, the shape
// the pipeline's intermediate buffers and preprocessing chain operate on.
type Image struct {
	Width  int
	Height int
	Pix    []byte // len == Width*Height*4, no row padding
}

// Decode reads an image from r, auto-detecting its format from content.
func Decode(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("imgcodec: reading input: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("imgcodec: decode failed: %w", err)
	}

	return toRGBA(img), nil
}

// Open decodes the image file at path.
func Open(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("imgcodec: opening %s: %w", path, err)
	}
	defer f.Close()

	img, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("imgcodec: %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// toRGBA normalizes any decoded image.Image into tightly-packed RGBA8.
func toRGBA(src image.Image) *Image {
	if rgba, ok := src.(*image.RGBA); ok && rgba.Stride == rgba.Rect.Dx()*4 && rgba.Rect.Min == (image.Point{}) {
		return &Image{Width: rgba.Rect.Dx(), Height: rgba.Rect.Dy(), Pix: rgba.Pix}
	}

	bounds := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)
	return &Image{Width: dst.Rect.Dx(), Height: dst.Rect.Dy(), Pix: dst.Pix}
}

// png and jpeg self-register with the image package via their own
// package init(); only bmp and tiff need registering here.
func init() {
	image.RegisterFormat("bmp", "BM", bmp.Decode, bmp.DecodeConfig)
	image.RegisterFormat("tiff", "II*\x00", tiff.Decode, tiff.DecodeConfig)
	image.RegisterFormat("tiff", "MM\x00*", tiff.Decode, tiff.DecodeConfig)
}
