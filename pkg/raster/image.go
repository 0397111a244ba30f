// Package raster holds decoded layer images as flat pixel buffers and
// converts them to and from PNG files.
//
// Every decoded image is normalized to non-premultiplied RGBA, four bytes
// per pixel in row-major order, so that compositing can compare buffers
// byte for byte regardless of the source PNG's color model.
package raster

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/png"
	"io"
	"os"

	"github.com/disintegration/imaging"

	"github.com/matzehuels/nftgen/internal/fsx"
	"github.com/matzehuels/nftgen/pkg/errors"
)

// BytesPerPixel is the layout every decoded image uses (R, G, B, A).
const BytesPerPixel = 4

// Image is a decoded raster: Width x Height pixels of BytesPerPixel bytes.
// len(Pix) is always Width*Height*BytesPerPixel.
type Image struct {
	Width         int
	Height        int
	BytesPerPixel int
	Pix           []byte
}

// New returns a zeroed (fully transparent) image.
func New(width, height, bpp int) *Image {
	return &Image{
		Width:         width,
		Height:        height,
		BytesPerPixel: bpp,
		Pix:           make([]byte, width*height*bpp),
	}
}

// FromPix wraps pix without copying. It fails when the buffer length does
// not match the declared shape.
func FromPix(width, height, bpp int, pix []byte) (*Image, error) {
	if width < 0 || height < 0 || bpp <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "invalid image shape %dx%dx%d", width, height, bpp)
	}
	if len(pix) != width*height*bpp {
		return nil, errors.New(errors.ErrCodeInvalidInput,
			"pixel buffer has %d bytes, want %d for %dx%dx%d", len(pix), width*height*bpp, width, height, bpp)
	}
	return &Image{Width: width, Height: height, BytesPerPixel: bpp, Pix: pix}, nil
}

// Clone returns a deep copy.
func (img *Image) Clone() *Image {
	pix := make([]byte, len(img.Pix))
	copy(pix, img.Pix)
	return &Image{Width: img.Width, Height: img.Height, BytesPerPixel: img.BytesPerPixel, Pix: pix}
}

// SameShape reports whether two images have equal dimensions and pixel size.
func (img *Image) SameShape(o *Image) bool {
	return img.Width == o.Width && img.Height == o.Height && img.BytesPerPixel == o.BytesPerPixel
}

// NRGBA exposes the buffer as an image.NRGBA sharing the same pixels.
// Only valid for 4-byte pixels.
func (img *Image) NRGBA() *image.NRGBA {
	return &image.NRGBA{
		Pix:    img.Pix,
		Stride: img.Width * BytesPerPixel,
		Rect:   image.Rect(0, 0, img.Width, img.Height),
	}
}

// Decode reads a PNG (or any format imaging understands) and normalizes it
// to 4-byte RGBA.
func Decode(r io.Reader) (*Image, error) {
	src, err := imaging.Decode(r)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDecode, err, "decode image")
	}
	return fromImage(src), nil
}

// Read decodes the image file at path.
func Read(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "open layer %s", path)
	}
	defer f.Close()

	img, err := Decode(f)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDecode, err, "decode layer %s", path)
	}
	return img, nil
}

// withAlpha makes the PNG encoder keep the alpha channel of fully opaque
// images.
type withAlpha struct{ *image.NRGBA }

func (withAlpha) Opaque() bool { return false }

var encoder = png.Encoder{CompressionLevel: png.DefaultCompression}

// Encode writes img as an 8-bit RGBA PNG (color type 6), whatever its
// opacity.
func (img *Image) Encode(w io.Writer) error {
	if img.BytesPerPixel != BytesPerPixel {
		return errors.New(errors.ErrCodeEncode, "cannot encode %d-byte pixels as PNG", img.BytesPerPixel)
	}
	if err := encoder.Encode(w, withAlpha{img.NRGBA()}); err != nil {
		return errors.Wrap(errors.ErrCodeEncode, err, "encode png")
	}
	return nil
}

// Write encodes img as PNG into dir/name atomically.
func Write(dir, name string, img *Image) error {
	var buf bytes.Buffer
	if err := img.Encode(&buf); err != nil {
		return err
	}
	if err := fsx.WriteFileAtomic(dir, name, buf.Bytes()); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "write image %s", name)
	}
	return nil
}

// fromImage converts any decoded image to a tightly packed NRGBA buffer.
// Sources without an alpha channel become fully opaque, so their black
// pixels are [0 0 0 255] rather than all-zero. 16-bit sources keep only
// the high byte of each sample.
func fromImage(src image.Image) *Image {
	n := imaging.Clone(src)
	b := n.Bounds()
	return &Image{Width: b.Dx(), Height: b.Dy(), BytesPerPixel: BytesPerPixel, Pix: n.Pix}
}

// =============================================================================
// Cache serialization
// =============================================================================

// headerLen is width, height and bpp as big-endian uint32s.
const headerLen = 12

// MarshalBinary serializes the image for caching.
func (img *Image) MarshalBinary() ([]byte, error) {
	buf := make([]byte, headerLen+len(img.Pix))
	binary.BigEndian.PutUint32(buf[0:4], uint32(img.Width))
	binary.BigEndian.PutUint32(buf[4:8], uint32(img.Height))
	binary.BigEndian.PutUint32(buf[8:12], uint32(img.BytesPerPixel))
	copy(buf[headerLen:], img.Pix)
	return buf, nil
}

// UnmarshalBinary restores an image produced by MarshalBinary. The pixel
// buffer aliases data.
func (img *Image) UnmarshalBinary(data []byte) error {
	if len(data) < headerLen {
		return errors.New(errors.ErrCodeDecode, "cached image truncated")
	}
	w := int(binary.BigEndian.Uint32(data[0:4]))
	h := int(binary.BigEndian.Uint32(data[4:8]))
	bpp := int(binary.BigEndian.Uint32(data[8:12]))
	decoded, err := FromPix(w, h, bpp, data[headerLen:])
	if err != nil {
		return errors.Wrap(errors.ErrCodeDecode, err, "cached image corrupt")
	}
	*img = *decoded
	return nil
}
