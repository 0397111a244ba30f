package pipeline

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/nftgen/pkg/cache"
	"github.com/matzehuels/nftgen/pkg/colortrait"
	"github.com/matzehuels/nftgen/pkg/compose"
	"github.com/matzehuels/nftgen/pkg/errors"
	"github.com/matzehuels/nftgen/pkg/layer"
	"github.com/matzehuels/nftgen/pkg/metadata"
	"github.com/matzehuels/nftgen/pkg/observability"
	"github.com/matzehuels/nftgen/pkg/raster"
)

// Publisher receives every successfully written record, e.g. to mirror the
// collection into a database. Implementations must be safe for concurrent
// use.
type Publisher interface {
	Publish(ctx context.Context, index int, rec metadata.Record) error
}

// Runner executes generation runs. It holds only shared, read-mostly state
// (cache, layer store, logger), so one Runner can serve several runs.
type Runner struct {
	Cache     cache.Cache
	Keyer     cache.Keyer
	Logger    *log.Logger
	Store     *raster.Store
	Publisher Publisher // optional
	CacheTTL  time.Duration
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a MemoryCache is used so each layer is decoded once per run.
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewMemoryCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
		Store:  raster.NewStore(c, keyer, 0),
	}
}

// SetCacheTTL sets the expiry of cached layer buffers and color traits.
func (r *Runner) SetCacheTTL(ttl time.Duration) {
	r.CacheTTL = ttl
	r.Store = raster.NewStore(r.Cache, r.Keyer, ttl)
}

// task is the immutable per-run state shared by all item tasks.
type task struct {
	opts     Options
	catalog  *layer.Catalog
	seed     uint64
	images   string
	meta     *metadata.Writer
	colors   *colortrait.Extractor
	total    int
	done     atomic.Int64
	logger   *log.Logger
	loader   compose.Loader
	publish  Publisher
	stopping atomic.Bool
}

// Generate runs one batch and returns its report. The catalog is loaded
// before any output is written, so catalog errors leave the output
// directory untouched.
//
// By default the run is fail-fast: after the first item failure no new
// items are started, in-flight items finish, and never-started items are
// reported as skipped. With KeepGoing every item runs. Cancelling ctx
// stops dispatch the same way. The report is written even when items fail;
// the returned error then describes the lowest-index failure.
func (r *Runner) Generate(ctx context.Context, opts Options) (*Report, error) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
	prev, err := opts.LoadPrevious()
	if err != nil {
		return nil, err
	}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	logger := opts.Logger

	logger.Info("loading layers", "path", opts.LayersPath)
	catalog, err := layer.Load(opts.LayersPath, opts.LayersOrder, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded layers", "categories", catalog.Len(), "combinations", catalog.Combinations())

	report, indices := r.plan(opts, prev)

	imagesDir := filepath.Join(opts.OutputPath, ImagesDir)
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "create %s", imagesDir)
	}
	meta, err := metadata.NewWriter(filepath.Join(opts.OutputPath, MetadataDir))
	if err != nil {
		return nil, err
	}

	t := &task{
		opts:    opts,
		catalog: catalog,
		seed:    report.Seed,
		images:  imagesDir,
		meta:    meta,
		total:   len(indices),
		logger:  logger,
		loader:  r.Store,
		publish: r.Publisher,
	}
	if opts.Color != colortrait.MethodNone {
		t.colors = colortrait.NewExtractor(opts.Color, r.Cache, r.Keyer, r.CacheTTL)
	}

	observability.Pipeline().OnRunStart(ctx, report.RunID, len(indices))
	logger.Info("generating", "run", report.RunID, "items", len(indices), "workers", opts.Workers)
	start := time.Now()

	results := r.run(ctx, t, indices)

	report.merge(results)
	report.FinishedAt = time.Now()
	report.Finalize()
	if err := WriteReport(opts.OutputPath, report); err != nil {
		return report, err
	}

	observability.Pipeline().OnRunComplete(ctx, report.RunID, report.Summary.OK, report.Summary.Failed, time.Since(start))
	logger.Info("run finished", "run", report.RunID, "ok", report.Summary.OK,
		"failed", report.Summary.Failed, "skipped", report.Summary.Skipped, "duration", time.Since(start))

	if err := report.Err(); err != nil {
		return report, err
	}
	if ctx.Err() != nil && report.Summary.Skipped > 0 {
		return report, ctx.Err()
	}
	return report, nil
}

// plan builds the report skeleton and the list of indices to generate.
// prev is the previous run's report, if LoadPrevious found one.
func (r *Runner) plan(opts Options, prev *Report) (*Report, []int) {
	now := time.Now()
	if opts.Resume {
		prev.RunID = uuid.NewString()
		prev.StartedAt = now
		prev.Workers = opts.Workers
		prev.setCollection(opts)
		pending := prev.Pending()
		opts.Logger.Info("resuming previous run", "count", prev.Count, "pending", len(pending))
		return prev, pending
	}

	report := &Report{
		RunID:     uuid.NewString(),
		Count:     opts.Count,
		Workers:   opts.Workers,
		StartedAt: now,
	}
	report.setCollection(opts)
	if opts.Seed != nil {
		report.Seed, report.Seeded = *opts.Seed, true
	} else {
		report.Seed = rand.Uint64()
	}

	// A subset run keeps the outcomes of indices it does not touch.
	if prev != nil {
		report.Items = prev.Items
		if opts.Seed == nil {
			report.Seed, report.Seeded = prev.Seed, prev.Seeded
		}
	}
	return report, opts.targets()
}

// setCollection records the collection settings of opts.
func (r *Report) setCollection(opts Options) {
	r.Collection = opts.CollectionName
	r.LayersPath = opts.LayersPath
	r.LayersOrder = slices.Clone(opts.LayersOrder)
	r.Description = opts.Description
	r.ColorTrait = opts.Color
}

// run dispatches indices onto a bounded pool. Results are stored by slot,
// so no locking is needed; indices never dispatched stay skipped.
func (r *Runner) run(ctx context.Context, t *task, indices []int) []ItemResult {
	results := make([]ItemResult, len(indices))
	for i, idx := range indices {
		results[i] = ItemResult{Index: idx, Status: StatusSkipped}
	}

	g := new(errgroup.Group)
	g.SetLimit(t.opts.Workers)
	for slot, idx := range indices {
		if t.stopping.Load() || ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if t.stopping.Load() || ctx.Err() != nil {
				return nil
			}
			res := t.generate(ctx, idx)
			results[slot] = res
			if res.Status == StatusFailed && !t.opts.KeepGoing {
				t.stopping.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// generate produces item idx and never panics the pool on error.
func (t *task) generate(ctx context.Context, idx int) ItemResult {
	start := time.Now()
	observability.Pipeline().OnItemStart(ctx, idx)

	err := t.generateItem(ctx, idx)
	dur := time.Since(start)
	observability.Pipeline().OnItemComplete(ctx, idx, dur, err)

	res := ItemResult{Index: idx, Status: StatusOK, DurationMS: dur.Milliseconds()}
	if err != nil {
		res.Status = StatusFailed
		res.ErrorCode = string(errors.GetCode(err))
		res.Error = err.Error()
		t.logger.Error("item failed", "index", idx, "err", err)
	}

	done := int(t.done.Add(1))
	if err == nil {
		t.logger.Info("saved", "item", idx, "progress", strconv.Itoa(done)+" / "+strconv.Itoa(t.total))
	}
	if t.opts.Progress != nil {
		t.opts.Progress(done, t.total, res)
	}
	return res
}

// generateItem draws, composites and writes one image/metadata pair. The
// same draws feed the image and the record.
func (t *task) generateItem(ctx context.Context, idx int) error {
	rng := ItemRand(t.seed, idx)
	draws := t.catalog.Draw(rng)

	comp, err := compose.Build(ctx, t.loader, draws, t.logger)
	if err != nil {
		return err
	}
	if err := raster.Write(t.images, strconv.Itoa(idx)+".png", comp.Image); err != nil {
		return err
	}

	rec, err := metadata.Build(idx, t.opts.Description, t.opts.CollectionName, comp.Draws)
	if err != nil {
		return err
	}
	if t.colors != nil {
		hex, err := t.colors.Hex(ctx, comp.Image)
		if err != nil {
			return err
		}
		rec.AddTrait(colortrait.TraitType, hex)
	}
	if err := t.meta.Write(idx, rec); err != nil {
		return err
	}

	if t.publish != nil {
		if err := t.publish.Publish(ctx, idx, rec); err != nil {
			return errors.Wrap(errors.ErrCodeIO, err, "publish metadata %d", idx)
		}
	}
	return nil
}

// ItemRand returns item idx's private random source. Sources for distinct
// indices are independent, and the same (seed, idx) always yields the same
// draws.
func ItemRand(seed uint64, idx int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(idx)))
}
