package layer

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/matzehuels/nftgen/pkg/errors"
)

// Category holds one trait slot's variants (e.g. "background") together with
// its position in the declared layers order. Position 0 is the bottom of the
// visual stack and the first metadata attribute.
//
// A Category is read-only after construction and safe to share across
// goroutines; Pick takes the caller's private random source.
type Category struct {
	Name     string
	Order    int
	Variants []Variant

	weights []float64
}

// NewCategory reads every PNG in dir into a Variant and resolves the
// directory name against order. The directory name must appear in order
// (UNKNOWN_LAYER) and the directory must hold at least one PNG (EMPTY_LAYER).
func NewCategory(dir string, order []string, logger *log.Logger) (*Category, error) {
	if logger == nil {
		logger = log.Default()
	}

	name := filepath.Base(dir)
	if !utf8.ValidString(name) {
		return nil, errors.New(errors.ErrCodeInvalidLayerPath, "layer directory name is not valid UTF-8: %q", dir)
	}
	pos, err := position(name, order)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "read layer directory %s", dir)
	}

	c := &Category{Name: name, Order: pos}
	for _, entry := range entries {
		if entry.IsDir() || !isLayerFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		logger.Debug("loading layer", "path", path)

		v, ok, err := ParseVariant(path)
		if err != nil {
			return nil, err
		}
		if !ok {
			logger.Warn("invalid weight for layer, using default weight",
				"path", path, "weight", DefaultWeight)
		}
		c.Variants = append(c.Variants, v)
		c.weights = append(c.weights, float64(v.Weight))
	}

	if len(c.Variants) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyLayer, "layer directory %s contains no PNG files", dir)
	}
	return c, nil
}

// Pick draws one variant with probability proportional to its weight.
// Draws are independent: sampling is with replacement.
func (c *Category) Pick(rng *rand.Rand) Variant {
	if len(c.Variants) == 1 {
		return c.Variants[0]
	}
	dist := distuv.NewCategorical(c.weights, rng)
	return c.Variants[int(dist.Rand())]
}

// TotalWeight returns the sum of all variant weights.
func (c *Category) TotalWeight() int {
	total := 0
	for _, v := range c.Variants {
		total += v.Weight
	}
	return total
}

// position resolves name against the declared order.
func position(name string, order []string) (int, error) {
	for i, o := range order {
		if o == name {
			return i, nil
		}
	}
	return 0, errors.New(errors.ErrCodeUnknownLayer, "layer %q not found in layers order [%s]", name, strings.Join(order, ", "))
}
