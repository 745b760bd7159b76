package raster

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedFormat is returned by Save for file extensions it cannot encode.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// encoder writes an 8-bit image.
type encoder func(w io.Writer, img image.Image) error

func encoderFor(path string) (encoder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return png.Encode, nil
	case ".tif", ".tiff":
		return func(w io.Writer, img image.Image) error {
			return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
		}, nil
	}
	return nil, fmt.Errorf("%s: %w (want .png, .tif or .tiff)", path, ErrUnsupportedFormat)
}

// CheckWritable reports an error if Save could not encode to path.
// It does not touch the filesystem.
func CheckWritable(path string) error {
	_, err := encoderFor(path)
	return err
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding image %s: %w", path, err)
	}
	return img, nil
}

// Load decodes an image file into a 4-channel buffer of un-premultiplied
// samples in [0,1].
func Load(path string) (*Buffer, error) {
	img, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	return FromImage(img), nil
}

// LoadGray decodes an image file into a single-channel luminance buffer.
func LoadGray(path string) (*Buffer, error) {
	img, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	return FromImageGray(img), nil
}

// FromImage converts img to a 4-channel buffer.
func FromImage(img image.Image) *Buffer {
	bounds := img.Bounds()
	nrgba, ok := img.(*image.NRGBA)
	if !ok || bounds.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		xdraw.Draw(nrgba, nrgba.Bounds(), img, bounds.Min, xdraw.Src)
	}

	b := MustNew(bounds.Dx(), bounds.Dy(), RGBA)
	for y := 0; y < b.H; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+b.W*4]
		for i, v := range row {
			b.Pix[y*b.W*4+i] = float64(v) / 255
		}
	}
	return b
}

// FromImageGray converts img to a single-channel luminance buffer.
func FromImageGray(img image.Image) *Buffer {
	bounds := img.Bounds()
	gray, ok := img.(*image.Gray)
	if !ok || bounds.Min != (image.Point{}) {
		gray = image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		xdraw.Draw(gray, gray.Bounds(), img, bounds.Min, xdraw.Src)
	}

	b := MustNew(bounds.Dx(), bounds.Dy(), Gray)
	for y := 0; y < b.H; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+b.W]
		for x, v := range row {
			b.Pix[y*b.W+x] = float64(v) / 255
		}
	}
	return b
}

// Quantize clamps v to [0,1] and rounds it to 8 bits.
func Quantize(v float64) uint8 {
	return uint8(math.Round(Clamp01(v) * 255))
}

// ToImage converts b to an 8-bit image: Gray for one channel, NRGBA for four.
func (b *Buffer) ToImage() image.Image {
	rect := image.Rect(0, 0, b.W, b.H)
	if b.C == Gray {
		img := image.NewGray(rect)
		for y := 0; y < b.H; y++ {
			for x := 0; x < b.W; x++ {
				img.SetGray(x, y, color.Gray{Y: Quantize(b.Pix[y*b.W+x])})
			}
		}
		return img
	}
	img := image.NewNRGBA(rect)
	for y := 0; y < b.H; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+b.W*4]
		for i := range row {
			row[i] = Quantize(b.Pix[y*b.W*4+i])
		}
	}
	return img
}

// Save writes b to path, choosing the encoder from the extension.
// The image is encoded into a temporary file in the destination directory
// and renamed into place, so path never holds a partial image.
func Save(path string, b *Buffer) (err error) {
	enc, err := encoderFor(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err := enc(tmp, b.ToImage()); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
