package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/nftgen/internal/config"
	"github.com/matzehuels/nftgen/pkg/integrations/ipfs"
	"github.com/matzehuels/nftgen/pkg/integrations/nftstorage"
	"github.com/matzehuels/nftgen/pkg/metadata"
	"github.com/matzehuels/nftgen/pkg/pipeline"
	"github.com/matzehuels/nftgen/pkg/store/mongostore"
)

// CAR archive names written next to the collection.
const (
	imagesCAR   = "images.car"
	metadataCAR = "metadata.car"
)

// contentAdder is the subset of the IPFS CLI the upload flow needs.
type contentAdder interface {
	Init(ctx context.Context) error
	Add(ctx context.Context, path string) (string, error)
	DagExport(ctx context.Context, cid, carPath string) error
}

// carUploader pins a CAR archive.
type carUploader interface {
	UploadCAR(ctx context.Context, path string) (*nftstorage.UploadResult, error)
}

// metadataPublisher republishes rewritten records.
type metadataPublisher interface {
	PublishAll(ctx context.Context, entries []metadata.Entry) error
}

// uploadResult holds the content ids produced by one upload.
type uploadResult struct {
	ImagesCID   string
	MetadataCID string
	Rewritten   int
}

// uploadFlags holds flags for the upload command.
type uploadFlags struct {
	outputPath string
	apiKey     string
	endpoint   string
	ipfsBinary string
}

// uploadCommand creates the upload command.
func (c *CLI) uploadCommand() *cobra.Command {
	flags := uploadFlags{
		outputPath: pipeline.DefaultOutputPath,
		endpoint:   nftstorage.DefaultEndpoint,
		ipfsBinary: ipfs.DefaultBinary,
	}

	cmd := &cobra.Command{
		Use:     "upload",
		Aliases: []string{"u"},
		Short:   "Add a generated collection to IPFS and pin it on NFT.Storage",
		Long: `Upload adds the images directory to IPFS, rewrites every metadata image URI to
ipfs://{images-cid}/, adds the metadata directory, exports both as CAR
archives and uploads them to NFT.Storage.

Requires the ipfs binary on PATH.`,
		Example: `  nftgen upload -o ./nftgen-output --api-key $NFT_STORAGE_KEY`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed(config.FlagOutputPath) && cfg.OutputPath != "" {
				flags.outputPath = cfg.OutputPath
			}
			cfg.ApplyUpload(&flags.apiKey, &flags.endpoint, cmd.Flags().Changed)

			client, err := nftstorage.NewClient(flags.apiKey,
				nftstorage.WithEndpoint(flags.endpoint),
				nftstorage.WithLogger(logger))
			if err != nil {
				return err
			}

			var pub metadataPublisher
			if mc, ok := cfg.MongoConfig(); ok {
				store, err := mongostore.Open(ctx, mc, cfg.CollectionName)
				if err != nil {
					return err
				}
				defer store.Close(context.Background())
				pub = store
			}

			prog := newProgress(logger)
			res, err := uploadCollection(ctx, flags.outputPath, ipfs.New(flags.ipfsBinary, logger), client, pub, logger)
			if err != nil {
				return err
			}
			prog.done("Upload complete")

			printSuccess("Collection pinned")
			printKeyValue("images", StyleHighlight.Render("ipfs://"+res.ImagesCID+"/"))
			printKeyValue("metadata", StyleHighlight.Render("ipfs://"+res.MetadataCID+"/"))
			printDetail("%d metadata records rewritten", res.Rewritten)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.outputPath, config.FlagOutputPath, "o", flags.outputPath, "collection directory produced by generate")
	f.StringVar(&flags.apiKey, config.FlagAPIKey, "", "NFT.Storage API key")
	f.StringVar(&flags.endpoint, config.FlagEndpoint, flags.endpoint, "NFT.Storage API endpoint")
	f.StringVar(&flags.ipfsBinary, "ipfs", flags.ipfsBinary, "path to the ipfs binary")

	return cmd
}

// uploadCollection runs the full IPFS + pinning flow for dir.
func uploadCollection(ctx context.Context, dir string, node contentAdder, pinner carUploader, pub metadataPublisher, logger *log.Logger) (*uploadResult, error) {
	imagesDir := filepath.Join(dir, pipeline.ImagesDir)
	metaDir := filepath.Join(dir, pipeline.MetadataDir)
	res := &uploadResult{}

	if err := node.Init(ctx); err != nil {
		return nil, err
	}

	spin := newSpinnerWithContext(ctx, "Adding images to IPFS...")
	spin.Start()
	cid, err := node.Add(ctx, imagesDir)
	if err != nil {
		spin.StopWithError("Adding images failed")
		return nil, err
	}
	spin.StopWithSuccess("Added images")
	res.ImagesCID = cid
	logger.Info("added images", "cid", cid)

	base, err := metadata.NormalizeBase(cid)
	if err != nil {
		return nil, err
	}
	if res.Rewritten, err = metadata.UpdateBaseURIForAll(metaDir, base, logger); err != nil {
		return nil, err
	}

	if res.MetadataCID, err = node.Add(ctx, metaDir); err != nil {
		return nil, err
	}
	logger.Info("added metadata", "cid", res.MetadataCID)

	archives := []struct{ cid, path string }{
		{res.ImagesCID, filepath.Join(dir, imagesCAR)},
		{res.MetadataCID, filepath.Join(dir, metadataCAR)},
	}
	for _, a := range archives {
		if err := node.DagExport(ctx, a.cid, a.path); err != nil {
			return nil, err
		}
	}
	spin = newSpinnerWithContext(ctx, "Uploading archives...")
	spin.Start()
	for i, a := range archives {
		spin.Update(fmt.Sprintf("Uploading %s (%d/%d)...", filepath.Base(a.path), i+1, len(archives)))
		if _, err := pinner.UploadCAR(ctx, a.path); err != nil {
			spin.StopWithError("Upload of " + filepath.Base(a.path) + " failed")
			return nil, err
		}
	}
	spin.StopWithSuccess("Uploaded archives")

	if pub != nil {
		entries, err := metadata.ReadAll(metaDir)
		if err != nil {
			return nil, err
		}
		if err := pub.PublishAll(ctx, entries); err != nil {
			return nil, err
		}
		logger.Info("republished metadata to mongo", "records", len(entries))
	}
	return res, nil
}
