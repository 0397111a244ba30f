package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/nftgen/internal/config"
	"github.com/matzehuels/nftgen/pkg/metadata"
	"github.com/matzehuels/nftgen/pkg/pipeline"
)

// rebaseCommand creates the rebase command.
func (c *CLI) rebaseCommand() *cobra.Command {
	var outputPath, base string

	cmd := &cobra.Command{
		Use:   "rebase",
		Short: "Rewrite the image URI base of every metadata record",
		Long: `Rebase points every metadata record's image at a new base, keeping the
file name: ipfs://placeholder/3.png becomes {base}3.png.

A bare content id is expanded to ipfs://{cid}/. Running rebase twice with
the same base leaves the files unchanged.`,
		Example: `  nftgen rebase -o ./nftgen-output --base bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi
  nftgen rebase --base https://gateway.example.com/ipfs/bafy.../`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed(config.FlagOutputPath) && cfg.OutputPath != "" {
				outputPath = cfg.OutputPath
			}

			normalized, err := metadata.NormalizeBase(base)
			if err != nil {
				return err
			}
			n, err := metadata.UpdateBaseURIForAll(filepath.Join(outputPath, pipeline.MetadataDir), normalized, logger)
			if err != nil {
				return err
			}
			printSuccess("Rewrote %d metadata records", n)
			printDetail("base: %s", normalized)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, config.FlagOutputPath, "o", pipeline.DefaultOutputPath, "collection directory produced by generate")
	cmd.Flags().StringVar(&base, "base", "", "content id or base URI for image references")
	_ = cmd.MarkFlagRequired("base")

	return cmd
}
