// Package colortrait computes an optional "Dominant Color" trait from a
// composited image, so collections can be filtered by overall hue without
// an extra layer category.
package colortrait

import (
	"context"
	"image"
	"math"
	"slices"
	"time"

	"github.com/cenkalti/dominantcolor"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"

	"github.com/matzehuels/nftgen/pkg/cache"
	"github.com/matzehuels/nftgen/pkg/errors"
	"github.com/matzehuels/nftgen/pkg/observability"
	"github.com/matzehuels/nftgen/pkg/raster"
)

// TraitType is the attribute name added to metadata records.
const TraitType = "Dominant Color"

// Method selects the color extraction algorithm.
type Method string

const (
	// MethodNone disables the trait.
	MethodNone Method = ""
	// MethodDominant uses dominantcolor's weighted candidate search.
	MethodDominant Method = "dominantcolor"
	// MethodKMeans clusters opaque pixels and takes the most populated center.
	MethodKMeans Method = "kmeans"
)

// transparentHex is reported for images with no opaque pixels.
const transparentHex = "#000000"

// maxSamples bounds the kmeans dataset size.
const maxSamples = 12000

// ParseMethod validates a method name from flags or config.
func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case MethodNone, MethodDominant, MethodKMeans:
		return m, nil
	default:
		return "", errors.New(errors.ErrCodeInvalidInput, "unknown color trait %q (want dominantcolor or kmeans)", s)
	}
}

// Extractor computes dominant colors, caching results by image content.
type Extractor struct {
	method Method
	cache  cache.Cache
	keyer  cache.Keyer
	ttl    time.Duration
}

// NewExtractor creates an extractor. A nil cache disables caching.
func NewExtractor(method Method, c cache.Cache, keyer cache.Keyer, ttl time.Duration) *Extractor {
	if c == nil {
		c = cache.NewNullCache()
	}
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	return &Extractor{method: method, cache: c, keyer: keyer, ttl: ttl}
}

// Method returns the configured method.
func (e *Extractor) Method() Method {
	return e.method
}

// Hex returns the dominant color of img as "#rrggbb".
func (e *Extractor) Hex(ctx context.Context, img *raster.Image) (string, error) {
	if img.BytesPerPixel != raster.BytesPerPixel {
		return "", errors.New(errors.ErrCodeInvalidInput, "color trait needs RGBA pixels, got %d bytes per pixel", img.BytesPerPixel)
	}

	key := e.keyer.PaletteKey(cache.Hash(img.Pix)+":"+string(e.method), 1)
	if data, hit, err := e.cache.Get(ctx, key); err == nil && hit {
		observability.Cache().OnCacheHit(ctx, "palette")
		return string(data), nil
	}
	observability.Cache().OnCacheMiss(ctx, "palette")

	var hex string
	switch e.method {
	case MethodDominant:
		hex = dominantHex(img.NRGBA())
	case MethodKMeans:
		var err error
		if hex, err = kmeansHex(img.NRGBA()); err != nil {
			return "", err
		}
	default:
		return "", errors.New(errors.ErrCodeInvalidInput, "color trait disabled")
	}

	if err := e.cache.Set(ctx, key, []byte(hex), e.ttl); err == nil {
		observability.Cache().OnCacheSet(ctx, "palette", len(hex))
	}
	return hex, nil
}

// dominantHex picks the heaviest candidate from dominantcolor.
func dominantHex(img image.Image) string {
	candidates := dominantcolor.FindWeight(img, 8)
	if len(candidates) == 0 {
		return transparentHex
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Weight > best.Weight {
			best = c
		}
	}
	col, _ := colorful.MakeColor(best.RGBA)
	return col.Clamped().Hex()
}

// kmeansHex clusters opaque pixels in RGB space and returns the center of
// the most populated cluster.
func kmeansHex(img *image.NRGBA) (string, error) {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width == 0 || height == 0 {
		return transparentHex, nil
	}

	step := 1
	if width*height > maxSamples {
		step = int(math.Sqrt(float64(width*height)/float64(maxSamples))) + 1
	}

	dataset := make(clusters.Observations, 0, min(width*height, maxSamples))
	distinct := make(map[[3]uint8]struct{})
	for y := b.Min.Y; y < b.Max.Y; y += step {
		for x := b.Min.X; x < b.Max.X; x += step {
			c := img.NRGBAAt(x, y)
			if c.A == 0 {
				continue
			}
			distinct[[3]uint8{c.R, c.G, c.B}] = struct{}{}
			dataset = append(dataset, clusters.Coordinates{
				float64(c.R) / 255.0,
				float64(c.G) / 255.0,
				float64(c.B) / 255.0,
			})
		}
	}
	if len(dataset) == 0 {
		return transparentHex, nil
	}

	k := min(3, len(distinct))
	cc, err := kmeans.New().Partition(dataset, k)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "kmeans partition")
	}
	if len(cc) == 0 {
		return "", errors.New(errors.ErrCodeInternal, "kmeans returned no clusters")
	}

	// Partition can stop before recentering, so the reported centers may
	// not match the members. Average the largest cluster's members instead.
	largest := slices.MaxFunc(cc, func(a, b clusters.Cluster) int {
		return len(a.Observations) - len(b.Observations)
	})
	if len(largest.Observations) == 0 {
		return "", errors.New(errors.ErrCodeInternal, "kmeans returned only empty clusters")
	}
	var sum [3]float64
	for _, o := range largest.Observations {
		c := o.Coordinates()
		sum[0] += c[0]
		sum[1] += c[1]
		sum[2] += c[2]
	}
	n := float64(len(largest.Observations))
	return colorful.Color{R: sum[0] / n, G: sum[1] / n, B: sum[2] / n}.Clamped().Hex(), nil
}

// String implements fmt.Stringer.
func (m Method) String() string {
	if m == MethodNone {
		return "none"
	}
	return string(m)
}
