// Package layer discovers trait categories and their weighted variants on
// disk and draws one variant per category for each generated item.
//
// A layers root contains one subdirectory per category. Each category
// directory holds PNG files named "<name>#<weight>.png":
//
//	layers/
//	  background/   blue#3.png  red#1.png
//	  eyes/         open#5.png  closed#1.png
//
// The declared layers order decides stacking (first = bottom) and the order
// of metadata attributes. Every category directory must be declared, and
// every declared name must have a directory.
package layer

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/nftgen/pkg/errors"
)

// Draw is one category's selection for a single item. Carrying the category
// name alongside the variant keeps image layers and metadata attributes
// paired by construction.
type Draw struct {
	Category string
	Variant  Variant
}

// Catalog is the full set of categories discovered under a layers root,
// sorted by declared order.
type Catalog struct {
	Root       string
	categories []*Category
}

// Load builds a Catalog from root. The declared order is validated first
// (non-empty, no duplicates), then each subdirectory of root becomes a
// Category. Hidden entries and plain files at the root are ignored.
func Load(root string, order []string, logger *log.Logger) (*Catalog, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := errors.ValidateLayerOrder(order); err != nil {
		return nil, err
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidDirectory, err, "layers path %s", root)
	}
	if !info.IsDir() {
		return nil, errors.New(errors.ErrCodeInvalidDirectory, "layers path %s is not a directory", root)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidDirectory, err, "read layers path %s", root)
	}

	cat := &Catalog{Root: root}
	found := make(map[string]bool, len(order))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		// Stat follows symlinked category directories.
		fi, err := os.Stat(dir)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeIO, err, "stat %s", dir)
		}
		if !fi.IsDir() {
			continue
		}

		logger.Debug("loading layer directory", "path", dir)
		c, err := NewCategory(dir, order, logger)
		if err != nil {
			return nil, err
		}
		cat.categories = append(cat.categories, c)
		found[c.Name] = true
	}

	for _, name := range order {
		if !found[name] {
			return nil, errors.New(errors.ErrCodeUnknownLayer, "declared layer %q has no directory under %s", name, root)
		}
	}

	sort.Slice(cat.categories, func(i, j int) bool {
		return cat.categories[i].Order < cat.categories[j].Order
	})
	return cat, nil
}

// Categories returns the categories in declared order.
func (c *Catalog) Categories() []*Category {
	return c.categories
}

// Len returns the number of categories.
func (c *Catalog) Len() int {
	return len(c.categories)
}

// Draw picks one variant per category, in declared order, using rng.
func (c *Catalog) Draw(rng *rand.Rand) []Draw {
	draws := make([]Draw, len(c.categories))
	for i, cat := range c.categories {
		draws[i] = Draw{Category: cat.Name, Variant: cat.Pick(rng)}
	}
	return draws
}

// Combinations returns the number of distinct items the catalog can
// produce, saturating at the max int.
func (c *Catalog) Combinations() int {
	const maxInt = int(^uint(0) >> 1)
	total := 1
	for _, cat := range c.categories {
		n := len(cat.Variants)
		if total > maxInt/n {
			return maxInt
		}
		total *= n
	}
	return total
}
