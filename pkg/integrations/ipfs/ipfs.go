// Package ipfs wraps the ipfs command-line tool for content-addressing an
// output directory and exporting it as a CAR archive.
package ipfs

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/nftgen/internal/fsx"
	"github.com/matzehuels/nftgen/pkg/errors"
)

// DefaultBinary is looked up on PATH.
const DefaultBinary = "ipfs"

// CLI runs ipfs subcommands.
type CLI struct {
	Binary string
	Logger *log.Logger
}

// New returns a CLI for binary (DefaultBinary if empty).
func New(binary string, logger *log.Logger) *CLI {
	if binary == "" {
		binary = DefaultBinary
	}
	if logger == nil {
		logger = log.Default()
	}
	return &CLI{Binary: binary, Logger: logger}
}

// Init runs `ipfs init`. An already initialized repository is not an error.
func (c *CLI) Init(ctx context.Context) error {
	c.Logger.Info("running ipfs init")
	out, err := c.output(ctx, "init")
	if err != nil {
		if strings.Contains(string(out), "already") || strings.Contains(err.Error(), "already") {
			c.Logger.Debug("ipfs repository already initialized")
			return nil
		}
		return err
	}
	return nil
}

// Add runs `ipfs add -r path` and returns the root content id.
func (c *CLI) Add(ctx context.Context, path string) (string, error) {
	c.Logger.Info("running ipfs add", "path", path)
	out, err := c.output(ctx, "add", "-r", path)
	if err != nil {
		return "", err
	}
	cid, err := ParseAddOutput(out)
	if err != nil {
		return "", err
	}
	c.Logger.Info("added to ipfs", "path", path, "cid", cid)
	return cid, nil
}

// DagExport runs `ipfs dag export cid` and writes the CAR stream to carPath.
// The file only appears once the export has succeeded.
func (c *CLI) DagExport(ctx context.Context, cid, carPath string) error {
	c.Logger.Info("running ipfs dag export", "cid", cid, "car", carPath)
	err := fsx.WriteAtomic(filepath.Dir(carPath), filepath.Base(carPath), func(w io.Writer) error {
		var stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, c.Binary, "dag", "export", cid)
		cmd.Stdout = w
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return commandError(err, stderr.Bytes(), "dag", "export", cid)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errors.ErrCodeUpstreamTransfer) {
			return err
		}
		return errors.Wrap(errors.ErrCodeIO, err, "write car file %s", carPath)
	}
	return nil
}

// output runs a subcommand and returns its stdout.
func (c *CLI) output(ctx context.Context, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return append(stdout.Bytes(), stderr.Bytes()...), commandError(err, stderr.Bytes(), args...)
	}
	return stdout.Bytes(), nil
}

func commandError(err error, stderr []byte, args ...string) error {
	msg := strings.TrimSpace(string(stderr))
	if msg != "" {
		return errors.Wrap(errors.ErrCodeUpstreamTransfer, err, "ipfs %s: %s", strings.Join(args, " "), msg)
	}
	return errors.Wrap(errors.ErrCodeUpstreamTransfer, err, "ipfs %s", strings.Join(args, " "))
}

// ParseAddOutput extracts the root content id from `ipfs add -r` output:
// the second field of the last non-empty line ("added <cid> <name>").
func ParseAddOutput(out []byte) (string, error) {
	var last string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			last = line
		}
	}
	fields := strings.Fields(last)
	if len(fields) < 2 {
		return "", errors.New(errors.ErrCodeUpstreamTransfer, "failed to parse cid from ipfs add output %q", last)
	}
	return fields[1], nil
}
