// Package imageio turns images into flat RGB byte arrays and back.
package imageio

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
)

var ErrShape = errors.New("pixel data does not match the image shape")

// Shape is the height x width x channels layout of a flat pixel array.
type Shape struct {
	Height   int
	Width    int
	Channels int
}

func (s Shape) Size() int {
	return s.Height * s.Width * s.Channels
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d, %d)", s.Height, s.Width, s.Channels)
}

func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// Flatten returns the pixels of img row by row as R, G, B bytes.
// Alpha is dropped; colours are un-premultiplied first.
func Flatten(img image.Image) ([]byte, Shape) {
	b := img.Bounds()
	shape := Shape{Height: b.Dy(), Width: b.Dx(), Channels: 3}
	pixels := make([]byte, 0, shape.Size())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			pixels = append(pixels, c.R, c.G, c.B)
		}
	}
	return pixels, shape
}

// Reshape builds an opaque RGB image from a flat array produced by Flatten.
func Reshape(pixels []byte, shape Shape) (*image.NRGBA, error) {
	if shape.Channels != 3 || len(pixels) != shape.Size() {
		return nil, fmt.Errorf("%d bytes for shape %v: %w", len(pixels), shape, ErrShape)
	}
	img := image.NewNRGBA(image.Rect(0, 0, shape.Width, shape.Height))
	for i := 0; i < shape.Height*shape.Width; i++ {
		img.Pix[4*i] = pixels[3*i]
		img.Pix[4*i+1] = pixels[3*i+1]
		img.Pix[4*i+2] = pixels[3*i+2]
		img.Pix[4*i+3] = 0xff
	}
	return img, nil
}

// SavePNG writes img to path, creating the parent directory if needed.
func SavePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
