package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/nftgen/internal/config"
	"github.com/matzehuels/nftgen/pkg/cache"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the decoded layer cache",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached layers and color traits",
		Long: `Clear empties the configured cache backend. Without a config file this is
the on-disk cache under the XDG cache directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			cc, where, err := clearableCache(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if cc == nil {
				printInfo("Cache backend %q keeps nothing between runs", cfg.Cache.Backend)
				return nil
			}
			defer cc.Close()

			if err := cc.(cache.Clearer).Clear(cmd.Context()); err != nil {
				return err
			}
			printSuccess("Cache cleared")
			printDetail("%s", where)
			return nil
		},
	}
}

// clearableCache opens the configured persistent backend, defaulting to the
// file cache. Process-local backends yield a nil cache.
func clearableCache(ctx context.Context, cfg *config.File) (cache.Cache, string, error) {
	dir, err := cacheDir()
	if err != nil {
		return nil, "", fmt.Errorf("get cache dir: %w", err)
	}
	opts := cfg.CacheOptions(dir)
	switch opts.Backend {
	case "", cache.BackendFile:
		fc, err := cache.NewFileCache(opts.Dir)
		if err != nil {
			return nil, "", err
		}
		return fc, "Directory: " + opts.Dir, nil
	case cache.BackendRedis:
		rc, err := cache.NewRedisCache(ctx, opts.RedisAddr, opts.Prefix)
		if err != nil {
			return nil, "", err
		}
		return rc, "Redis: " + opts.RedisAddr, nil
	default:
		return nil, "", nil
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			dir, err := cacheDir()
			if err != nil {
				return fmt.Errorf("get cache dir: %w", err)
			}
			fmt.Println(cfg.CacheOptions(dir).Dir)
			return nil
		},
	}
}
