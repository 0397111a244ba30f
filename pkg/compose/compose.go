// Package compose flattens an item's layer draws into one image.
//
// Compositing is painter's-algorithm replacement, not alpha blending: for
// each pixel the topmost layer whose pixel has any non-zero byte wins and
// its whole pixel is copied. A pixel with zero alpha but non-zero color
// bytes therefore still counts as opaque. Existing layer sets depend on
// this exact rule.
package compose

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/nftgen/pkg/errors"
	"github.com/matzehuels/nftgen/pkg/layer"
	"github.com/matzehuels/nftgen/pkg/raster"
)

// Loader resolves a variant path to its decoded image.
// *raster.Store satisfies it.
type Loader interface {
	Load(ctx context.Context, path string) (*raster.Image, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, path string) (*raster.Image, error)

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context, path string) (*raster.Image, error) {
	return f(ctx, path)
}

// Composite is a flattened image plus the draws that produced it, in
// declared stacking order.
type Composite struct {
	Image *raster.Image
	Draws []layer.Draw
}

// Stack returns a copy of base with overlays applied. overlays are ordered
// bottom to top; for each pixel they are scanned from the top down and the
// first pixel with a non-zero byte replaces the base pixel. Pixels where no
// overlay is opaque keep the base value. All images must share base's shape.
func Stack(base *raster.Image, overlays []*raster.Image) (*raster.Image, error) {
	for i, o := range overlays {
		if !o.SameShape(base) {
			return nil, errors.New(errors.ErrCodeDimensionMismatch,
				"overlay %d is %dx%dx%d, base is %dx%dx%d", i,
				o.Width, o.Height, o.BytesPerPixel, base.Width, base.Height, base.BytesPerPixel)
		}
	}

	out := base.Clone()
	bpp := base.BytesPerPixel
	for off := 0; off < len(out.Pix); off += bpp {
		for j := len(overlays) - 1; j >= 0; j-- {
			px := overlays[j].Pix[off : off+bpp]
			if opaque(px) {
				copy(out.Pix[off:off+bpp], px)
				break
			}
		}
	}
	return out, nil
}

// opaque reports whether any byte of the pixel is non-zero.
func opaque(px []byte) bool {
	for _, b := range px {
		if b != 0 {
			return true
		}
	}
	return false
}

// Build loads every draw and stacks them. The first draw supplies the
// canvas dimensions and default pixels, and every draw (including the
// first) takes part in the overlay scan. A draw whose image does not match
// the canvas fails with DIMENSION_MISMATCH naming the variant path.
func Build(ctx context.Context, loader Loader, draws []layer.Draw, logger *log.Logger) (*Composite, error) {
	if len(draws) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no layers to compose")
	}
	if logger == nil {
		logger = log.Default()
	}

	images := make([]*raster.Image, len(draws))
	for i, d := range draws {
		img, err := loader.Load(ctx, d.Variant.Path)
		if err != nil {
			return nil, err
		}
		images[i] = img
	}

	base := images[0]
	logger.Debug("base canvas", "width", base.Width, "height", base.Height,
		"bytes_per_pixel", base.BytesPerPixel, "layer", draws[0].Variant.Path)

	for i, img := range images[1:] {
		if !img.SameShape(base) {
			d := draws[i+1]
			return nil, errors.New(errors.ErrCodeDimensionMismatch,
				"layer %s (%s) is %dx%d, canvas from %s is %dx%d",
				d.Variant.Path, d.Category, img.Width, img.Height,
				draws[0].Variant.Path, base.Width, base.Height)
		}
	}

	flat, err := Stack(base, images)
	if err != nil {
		return nil, err
	}
	return &Composite{Image: flat, Draws: draws}, nil
}
