// Package pipeline drives batch generation: for every item index it draws
// one variant per category, composites the image, assembles the metadata
// record from the same draws, and writes both to the output directory.
//
// # Architecture
//
// A run has three stages:
//
//  1. Load: discover the layer catalog (fails before any output is written)
//  2. Generate: a bounded worker pool runs one task per index
//  3. Report: per-index outcomes are collected into report.json
//
// Tasks share only the read-only catalog, the cached layer store, and an
// atomic progress counter. Each task draws from its own PCG source.
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	report, err := runner.Generate(ctx, pipeline.Options{
//	    Count:          100,
//	    LayersPath:     "./layers",
//	    OutputPath:     "./out",
//	    LayersOrder:    []string{"background", "face", "eyes"},
//	    CollectionName: "Punks",
//	    Description:    "A collection",
//	})
//
// Output layout:
//
//	{output}/images/{i}.png
//	{output}/metadata/{i}
//	{output}/report.json
package pipeline

import (
	"os"
	"path/filepath"
	"runtime"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/nftgen/pkg/colortrait"
	"github.com/matzehuels/nftgen/pkg/errors"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and config
// =============================================================================

const (
	// DefaultLayersPath is where layer category directories are read from.
	DefaultLayersPath = "./layers"

	// DefaultOutputPath is the output root.
	DefaultOutputPath = "./nftgen-output"

	// ImagesDir and MetadataDir are the output subdirectories.
	ImagesDir   = "images"
	MetadataDir = "metadata"
)

// DefaultWorkers returns the default pool size.
func DefaultWorkers() int {
	return runtime.GOMAXPROCS(0)
}

// =============================================================================
// Options - Run Configuration
// =============================================================================

// Options configures one generation run.
type Options struct {
	Count          int      `json:"count"`
	LayersPath     string   `json:"layers_path"`
	OutputPath     string   `json:"output_path"`
	LayersOrder    []string `json:"layers_order"`
	CollectionName string   `json:"collection_name"`
	Description    string   `json:"description"`

	Workers   int               `json:"workers,omitempty"`
	Seed      *uint64           `json:"seed,omitempty"`       // nil draws a random base seed
	KeepGoing bool              `json:"keep_going,omitempty"` // run every index even after failures
	Indices   []int             `json:"indices,omitempty"`    // explicit subset of [0, Count)
	Resume    bool              `json:"resume,omitempty"`     // redo failed/skipped items of the previous report
	Color     colortrait.Method `json:"color_trait,omitempty"`

	// Runtime options (not serialized)
	Logger   *log.Logger  `json:"-"`
	Progress ProgressFunc `json:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
	// previous is the report loaded by LoadPrevious.
	previous *Report
	loaded   bool
}

// ProgressFunc is called after every finished item. Calls come from worker
// goroutines; done is the atomic completion count.
type ProgressFunc func(done, total int, item ItemResult)

// ValidateAndSetDefaults checks required fields and applies defaults.
// This method is idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if o.LayersPath == "" {
		o.LayersPath = DefaultLayersPath
	}
	if o.OutputPath == "" {
		o.OutputPath = DefaultOutputPath
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers()
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}

	if !o.Resume && o.Count <= 0 {
		return errors.New(errors.ErrCodeInvalidInput, "number of items must be positive, got %d", o.Count)
	}
	if o.Resume && len(o.Indices) > 0 {
		return errors.New(errors.ErrCodeInvalidInput, "--resume and --indices cannot be combined")
	}
	if err := errors.ValidateCollectionName(o.CollectionName); err != nil {
		return err
	}
	if err := errors.ValidateLayerOrder(o.LayersOrder); err != nil {
		return err
	}
	if _, err := colortrait.ParseMethod(string(o.Color)); err != nil {
		return err
	}
	if !o.Resume {
		if err := validateIndices(o.Indices, o.Count); err != nil {
			return err
		}
	}

	o.validated = true
	return nil
}

// LoadPrevious reads the report of the previous run in OutputPath for
// --resume and --indices runs. Collection settings left unset are taken
// from it; settings that differ from it are rejected, since one output
// directory holds exactly one collection. A resume run needs the report;
// a subset run without one starts a fresh report. Other runs return nil.
// This method is idempotent.
func (o *Options) LoadPrevious() (*Report, error) {
	if o.loaded {
		return o.previous, nil
	}
	if !o.Resume && len(o.Indices) == 0 {
		o.loaded = true
		return nil, nil
	}
	if o.OutputPath == "" {
		o.OutputPath = DefaultOutputPath
	}

	if _, err := os.Stat(filepath.Join(o.OutputPath, ReportFile)); os.IsNotExist(err) && !o.Resume {
		o.loaded = true
		return nil, nil
	}
	prev, err := ReadReport(o.OutputPath)
	if err != nil {
		return nil, err
	}
	if err := o.inherit(prev); err != nil {
		return nil, err
	}
	o.previous, o.loaded = prev, true
	return prev, nil
}

// inherit fills unset collection settings from prev and rejects differing
// ones. Reports written before these settings were recorded only carry
// the collection name and count.
func (o *Options) inherit(prev *Report) error {
	mismatch := func(what string, got, want any) error {
		return errors.New(errors.ErrCodeInvalidInput,
			"%s %v differs from %v used for the collection in %s; use a new output path for a different collection",
			what, got, want, o.OutputPath)
	}

	if o.Count == 0 {
		o.Count = prev.Count
	} else if o.Count != prev.Count {
		return mismatch("count", o.Count, prev.Count)
	}
	if o.CollectionName == "" {
		o.CollectionName = prev.Collection
	} else if prev.Collection != "" && o.CollectionName != prev.Collection {
		return mismatch("collection name", quote(o.CollectionName), quote(prev.Collection))
	}

	if len(prev.LayersOrder) == 0 {
		return nil
	}
	if len(o.LayersOrder) == 0 {
		o.LayersOrder = slices.Clone(prev.LayersOrder)
	} else if !slices.Equal(o.LayersOrder, prev.LayersOrder) {
		return mismatch("layers order", o.LayersOrder, prev.LayersOrder)
	}
	if o.LayersPath == "" {
		o.LayersPath = prev.LayersPath
	} else if filepath.Clean(o.LayersPath) != filepath.Clean(prev.LayersPath) {
		return mismatch("layers path", quote(o.LayersPath), quote(prev.LayersPath))
	}
	if o.Description == "" {
		o.Description = prev.Description
	} else if o.Description != prev.Description {
		return mismatch("description", quote(o.Description), quote(prev.Description))
	}
	if o.Color == colortrait.MethodNone {
		o.Color = prev.ColorTrait
	} else if o.Color != prev.ColorTrait {
		return mismatch("color trait", o.Color, prev.ColorTrait)
	}
	return nil
}

func quote(s string) string {
	return `"` + s + `"`
}

// validateIndices checks that every index lies in [0, count).
func validateIndices(indices []int, count int) error {
	for _, i := range indices {
		if i < 0 || i >= count {
			return errors.New(errors.ErrCodeInvalidInput, "index %d out of range [0, %d)", i, count)
		}
	}
	return nil
}

// targets returns the indices a fresh (non-resume) run generates.
func (o *Options) targets() []int {
	if len(o.Indices) > 0 {
		out := slices.Clone(o.Indices)
		slices.Sort(out)
		return slices.Compact(out)
	}
	out := make([]int, o.Count)
	for i := range out {
		out[i] = i
	}
	return out
}
