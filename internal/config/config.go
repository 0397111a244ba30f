// Package config loads the optional TOML run configuration.
//
// A config file supplies defaults for the generate and upload flags:
//
//	num = 100
//	layers_path = "./layers"
//	layers_order = ["background", "face", "eyes"]
//	collection_name = "JustGreat"
//	description = "A generated collection"
//	color_trait = "kmeans"
//
//	[cache]
//	backend = "file"
//	ttl = "720h"
//
//	[mongo]
//	uri = "mongodb://localhost:27017"
//
//	[upload]
//	api_key = "..."
//
// Flags set explicitly on the command line always win over file values.
// Unknown keys are rejected so that typos do not silently fall back to
// defaults.
package config

import (
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/nftgen/pkg/cache"
	"github.com/matzehuels/nftgen/pkg/colortrait"
	"github.com/matzehuels/nftgen/pkg/errors"
	"github.com/matzehuels/nftgen/pkg/pipeline"
	"github.com/matzehuels/nftgen/pkg/store/mongostore"
)

// EnvPath names the environment variable consulted when --config is unset.
const EnvPath = "NFTGEN_CONFIG_PATH"

// File mirrors the config file layout.
type File struct {
	Num            int      `toml:"num"`
	LayersPath     string   `toml:"layers_path"`
	OutputPath     string   `toml:"output_path"`
	LayersOrder    []string `toml:"layers_order"`
	CollectionName string   `toml:"collection_name"`
	Description    string   `toml:"description"`
	Workers        int      `toml:"workers"`
	Seed           *uint64  `toml:"seed"`
	KeepGoing      bool     `toml:"keep_going"`
	ColorTrait     string   `toml:"color_trait"`

	Cache  Cache  `toml:"cache"`
	Mongo  Mongo  `toml:"mongo"`
	Upload Upload `toml:"upload"`
}

// Cache is the [cache] table.
type Cache struct {
	Backend   string   `toml:"backend"`
	Dir       string   `toml:"dir"`
	RedisAddr string   `toml:"redis_addr"`
	TTL       Duration `toml:"ttl"`
}

// Mongo is the [mongo] table. An empty URI disables the mirror.
type Mongo struct {
	URI        string `toml:"uri"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
}

// Upload is the [upload] table.
type Upload struct {
	APIKey   string `toml:"api_key"`
	Endpoint string `toml:"endpoint"`
}

// Duration decodes TOML strings such as "24h" into a time.Duration.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Path resolves the config file path: flagValue if set, else $NFTGEN_CONFIG_PATH.
// An empty result means no config file.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(EnvPath)
}

// Load reads and validates the file at path. An empty path yields an empty
// File.
func Load(path string) (*File, error) {
	f := &File{}
	if path == "" {
		return f, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "read config %s", path)
	}
	md, err := toml.Decode(string(data), f)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, errors.New(errors.ErrCodeInvalidInput, "unknown keys in config %s: %s", path, strings.Join(keys, ", "))
	}
	if err := f.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "config %s", path)
	}
	return f, nil
}

// Validate checks enumerated and URL values.
func (f *File) Validate() error {
	if f.Num < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "num must be positive, got %d", f.Num)
	}
	if f.Workers < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "workers must be positive, got %d", f.Workers)
	}
	if _, err := colortrait.ParseMethod(f.ColorTrait); err != nil {
		return err
	}
	switch f.Cache.Backend {
	case "", cache.BackendMemory, cache.BackendFile, cache.BackendRedis, cache.BackendNone:
	default:
		return errors.New(errors.ErrCodeInvalidInput, "unknown cache backend %q", f.Cache.Backend)
	}
	if f.Cache.Backend == cache.BackendRedis && f.Cache.RedisAddr == "" {
		return errors.New(errors.ErrCodeInvalidInput, "cache backend redis requires redis_addr")
	}
	if f.Upload.Endpoint != "" {
		if err := errors.ValidateURL(f.Upload.Endpoint); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// Merging
// =============================================================================

// Changed reports whether a flag was set explicitly on the command line.
type Changed func(flag string) bool

// Flag names shared between the CLI and ApplyGenerate.
const (
	FlagNum            = "num"
	FlagLayersPath     = "layers-path"
	FlagOutputPath     = "output-path"
	FlagLayersOrder    = "layers-order"
	FlagCollectionName = "collection-name"
	FlagDescription    = "description"
	FlagWorkers        = "workers"
	FlagSeed           = "seed"
	FlagKeepGoing      = "keep-going"
	FlagColorTrait     = "color-trait"
	FlagAPIKey         = "api-key"
	FlagEndpoint       = "endpoint"
)

// ApplyGenerate fills opts from the file wherever the matching flag was not
// set explicitly and the file provides a value.
func (f *File) ApplyGenerate(opts *pipeline.Options, changed Changed) error {
	if !changed(FlagNum) && f.Num > 0 {
		opts.Count = f.Num
	}
	if !changed(FlagLayersPath) && f.LayersPath != "" {
		opts.LayersPath = f.LayersPath
	}
	if !changed(FlagOutputPath) && f.OutputPath != "" {
		opts.OutputPath = f.OutputPath
	}
	if !changed(FlagLayersOrder) && len(f.LayersOrder) > 0 {
		opts.LayersOrder = f.LayersOrder
	}
	if !changed(FlagCollectionName) && f.CollectionName != "" {
		opts.CollectionName = f.CollectionName
	}
	if !changed(FlagDescription) && f.Description != "" {
		opts.Description = f.Description
	}
	if !changed(FlagWorkers) && f.Workers > 0 {
		opts.Workers = f.Workers
	}
	if !changed(FlagSeed) && f.Seed != nil {
		seed := *f.Seed
		opts.Seed = &seed
	}
	if !changed(FlagKeepGoing) && f.KeepGoing {
		opts.KeepGoing = true
	}
	if !changed(FlagColorTrait) && f.ColorTrait != "" {
		m, err := colortrait.ParseMethod(f.ColorTrait)
		if err != nil {
			return err
		}
		opts.Color = m
	}
	return nil
}

// ApplyUpload resolves the upload credentials the same way.
func (f *File) ApplyUpload(apiKey, endpoint *string, changed Changed) {
	if !changed(FlagAPIKey) && f.Upload.APIKey != "" {
		*apiKey = f.Upload.APIKey
	}
	if !changed(FlagEndpoint) && f.Upload.Endpoint != "" {
		*endpoint = f.Upload.Endpoint
	}
}

// CacheOptions returns the cache backend options. defaultDir is used for
// the file backend when the file names none.
func (f *File) CacheOptions(defaultDir string) cache.Options {
	opts := cache.Options{
		Backend:   f.Cache.Backend,
		Dir:       f.Cache.Dir,
		RedisAddr: f.Cache.RedisAddr,
	}
	if opts.Dir == "" {
		opts.Dir = defaultDir
	}
	return opts
}

// MongoConfig returns the mirror configuration and whether it is enabled.
func (f *File) MongoConfig() (mongostore.Config, bool) {
	return mongostore.Config{
		URI:        f.Mongo.URI,
		Database:   f.Mongo.Database,
		Collection: f.Mongo.Collection,
	}, f.Mongo.URI != ""
}
