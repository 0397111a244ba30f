package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/matzehuels/nftgen/internal/config"
	"github.com/matzehuels/nftgen/pkg/pipeline"
	"github.com/matzehuels/nftgen/pkg/server"
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var outputPath, addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a generated collection over HTTP",
		Long: `Serve exposes the images, metadata and run report of a collection:

  GET /healthz
  GET /metadata
  GET /metadata/{id}
  GET /images/{id}.png
  GET /report`,
		Example: `  nftgen serve -o ./nftgen-output --addr :8080`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed(config.FlagOutputPath) && cfg.OutputPath != "" {
				outputPath = cfg.OutputPath
			}

			printInfo("Serving %s on %s", outputPath, addr)
			err = server.New(outputPath, logger).ListenAndServe(cmd.Context(), addr)
			if errors.Is(err, context.Canceled) {
				printSuccess("Server stopped")
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&outputPath, config.FlagOutputPath, "o", pipeline.DefaultOutputPath, "collection directory produced by generate")
	cmd.Flags().StringVar(&addr, "addr", server.DefaultAddr, "listen address")

	return cmd
}
