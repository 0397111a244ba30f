package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/nftgen/internal/config"
	"github.com/matzehuels/nftgen/pkg/colortrait"
	"github.com/matzehuels/nftgen/pkg/pipeline"
	"github.com/matzehuels/nftgen/pkg/store/mongostore"
)

// generateFlags holds flags for the generate command.
type generateFlags struct {
	num            int
	layersPath     string
	outputPath     string
	layersOrder    []string
	collectionName string
	description    string
	workers        int
	seed           uint64
	keepGoing      bool
	indices        []int
	resume         bool
	colorTrait     string
	noCache        bool
	tui            bool
}

// generateCommand creates the generate command.
func (c *CLI) generateCommand() *cobra.Command {
	flags := generateFlags{
		layersPath: pipeline.DefaultLayersPath,
		outputPath: pipeline.DefaultOutputPath,
		workers:    pipeline.DefaultWorkers(),
	}

	cmd := &cobra.Command{
		Use:     "generate",
		Aliases: []string{"g"},
		Short:   "Generate images and metadata from layer directories",
		Long: `Generate composites one image per item from randomly drawn layer variants
and writes a matching metadata record next to it.

Layers live in {layers-path}/{category}/{name}[#{weight}].png. Categories are
stacked in --layers-order (first = bottom), which is also the attribute order.

Output:
  {output-path}/images/{i}.png
  {output-path}/metadata/{i}
  {output-path}/report.json`,
		Example: `  nftgen generate -n 100 --layers-order background,face,eyes \
      --collection-name JustGreat --description "A generated collection"

  # Redo failed and skipped items of the last run
  nftgen generate --resume

  # Regenerate a subset with the same seed
  nftgen generate -n 100 --layers-order background,face,eyes \
      --collection-name JustGreat --indices 3,17`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			opts, err := flags.options(cmd, cfg)
			if err != nil {
				return err
			}
			return c.runGenerate(cmd.Context(), cfg, opts, flags)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&flags.num, config.FlagNum, "n", 0, "number of items to generate")
	f.StringVar(&flags.layersPath, config.FlagLayersPath, flags.layersPath, "directory containing one subdirectory per category")
	f.StringVarP(&flags.outputPath, config.FlagOutputPath, "o", flags.outputPath, "output directory")
	f.StringSliceVar(&flags.layersOrder, config.FlagLayersOrder, nil, "categories from bottom to top (comma-separated)")
	f.StringVar(&flags.collectionName, config.FlagCollectionName, "", "collection name used in item names")
	f.StringVar(&flags.description, config.FlagDescription, "", "description shared by all items")
	f.IntVarP(&flags.workers, config.FlagWorkers, "j", flags.workers, "parallel workers")
	f.Uint64Var(&flags.seed, config.FlagSeed, 0, "base seed for reproducible draws")
	f.BoolVar(&flags.keepGoing, config.FlagKeepGoing, false, "keep generating after an item fails")
	f.IntSliceVar(&flags.indices, "indices", nil, "regenerate only these item indices")
	f.BoolVar(&flags.resume, "resume", false, "regenerate failed and skipped items of the previous run")
	f.StringVar(&flags.colorTrait, config.FlagColorTrait, "", "add a computed color trait (dominantcolor|kmeans)")
	f.BoolVar(&flags.noCache, "no-cache", false, "disable the layer cache")
	f.BoolVar(&flags.tui, "tui", false, "show an interactive progress view")

	return cmd
}

// options merges flags with the config file. Explicitly set flags win.
func (f generateFlags) options(cmd *cobra.Command, cfg *config.File) (pipeline.Options, error) {
	method, err := colortrait.ParseMethod(f.colorTrait)
	if err != nil {
		return pipeline.Options{}, err
	}
	opts := pipeline.Options{
		Count:          f.num,
		LayersPath:     f.layersPath,
		OutputPath:     f.outputPath,
		LayersOrder:    f.layersOrder,
		CollectionName: f.collectionName,
		Description:    f.description,
		Workers:        f.workers,
		KeepGoing:      f.keepGoing,
		Indices:        f.indices,
		Resume:         f.resume,
		Color:          method,
	}
	if cmd.Flags().Changed(config.FlagSeed) {
		seed := f.seed
		opts.Seed = &seed
	}
	if err := cfg.ApplyGenerate(&opts, cmd.Flags().Changed); err != nil {
		return pipeline.Options{}, err
	}
	// Leave the layers path unset so resume and subset runs can take it
	// from the previous report.
	if !cmd.Flags().Changed(config.FlagLayersPath) && cfg.LayersPath == "" {
		opts.LayersPath = ""
	}
	return opts, nil
}

func (c *CLI) runGenerate(ctx context.Context, cfg *config.File, opts pipeline.Options, flags generateFlags) error {
	logger := loggerFromContext(ctx)
	if flags.tui {
		logger = log.New(io.Discard)
	}
	opts.Logger = logger
	if _, err := opts.LoadPrevious(); err != nil {
		return err
	}

	runner, err := c.newRunner(ctx, cfg, flags.noCache, logger)
	if err != nil {
		return err
	}
	defer runner.Cache.Close()

	if mc, ok := cfg.MongoConfig(); ok {
		store, err := mongostore.Open(ctx, mc, opts.CollectionName)
		if err != nil {
			return err
		}
		defer store.Close(context.Background())
		runner.Publisher = store
		logger.Info("mirroring metadata to mongo", "database", mc.Database)
	}

	prog := newProgress(logger)
	var report *pipeline.Report
	if flags.tui {
		report, err = runWithTUI(ctx, runner, opts)
	} else {
		report, err = runner.Generate(ctx, opts)
	}
	if report == nil {
		return err
	}
	prog.done(fmt.Sprintf("Generated %d of %d items", report.Summary.OK, len(report.Items)))

	if err != nil {
		printError("Run %s finished with errors", report.RunID)
	} else {
		printSuccess("Run %s complete", report.RunID)
	}
	printSummary(report)
	printFailures(report)
	printFile(filepath.Join(opts.OutputPath, pipeline.ImagesDir))
	printFile(filepath.Join(opts.OutputPath, pipeline.MetadataDir))
	printFile(filepath.Join(opts.OutputPath, pipeline.ReportFile))

	if report.Summary.Skipped > 0 {
		printWarning("%d items were not started", report.Summary.Skipped)
	}
	if report.Summary.Failed > 0 || report.Summary.Skipped > 0 {
		printNewline()
		printNextStep("Retry the remaining items", "nftgen generate --resume -o "+opts.OutputPath)
	}
	return err
}
