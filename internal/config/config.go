// Package config loads osmaddr-index settings from an optional osmaddr.yaml,
// OSMADDR_* environment variables and built-in defaults, in that order of
// increasing precedence for the environment.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/eunmann/osm-addr-index/pkg/extract"
	"github.com/eunmann/osm-addr-index/pkg/hnrstore"
	"github.com/eunmann/osm-addr-index/pkg/memdiag"
	"github.com/eunmann/osm-addr-index/pkg/s3fetch"
)

// EnvPrefix prefixes environment overrides, e.g. OSMADDR_STORE_PATH.
const EnvPrefix = "OSMADDR"

// Config is the application configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Store    StoreConfig    `mapstructure:"store"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	S3       S3Config       `mapstructure:"s3"`
	Diag     DiagConfig     `mapstructure:"diag"`
}

type LogConfig struct {
	Debug bool `mapstructure:"debug"`
	Human bool `mapstructure:"human"`
}

type StoreConfig struct {
	Path        string        `mapstructure:"path"`
	Synchronous string        `mapstructure:"synchronous"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

type PipelineConfig struct {
	ChannelCapacity    int           `mapstructure:"channel_capacity"`
	DecoderProcs       int           `mapstructure:"decoder_procs"`
	ProgressInterval   time.Duration `mapstructure:"progress_interval"`
	MemoryWarnFraction float64       `mapstructure:"memory_warn_fraction"`
}

type S3Config struct {
	Concurrency int    `mapstructure:"concurrency"`
	PartSize    int64  `mapstructure:"part_size"`
	TempDir     string `mapstructure:"temp_dir"`
}

type DiagConfig struct {
	Memory      bool          `mapstructure:"memory"`
	PprofAddr   string        `mapstructure:"pprof_addr"`
	LogInterval time.Duration `mapstructure:"log_interval"`
}

// Load reads configuration. If file is empty, osmaddr.yaml is looked up in
// the working directory and may be absent; a named file must exist.
func Load(file string) (*Config, error) {
	v := viper.New()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("osmaddr")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	pipe := extract.DefaultConfig()
	store := hnrstore.DefaultConfig("osmaddr.sqlite")
	v.SetDefault("log.debug", false)
	v.SetDefault("log.human", false)
	v.SetDefault("store.path", store.Path)
	v.SetDefault("store.synchronous", store.Synchronous)
	v.SetDefault("store.busy_timeout", store.BusyTimeout)
	v.SetDefault("pipeline.channel_capacity", pipe.ChannelCapacity)
	v.SetDefault("pipeline.decoder_procs", runtime.GOMAXPROCS(0))
	v.SetDefault("pipeline.progress_interval", pipe.ProgressInterval)
	v.SetDefault("pipeline.memory_warn_fraction", pipe.MemoryWarnFraction)
	v.SetDefault("s3.concurrency", 0)
	v.SetDefault("s3.part_size", 0)
	v.SetDefault("s3.temp_dir", "")
	v.SetDefault("diag.memory", false)
	v.SetDefault("diag.pprof_addr", "")
	v.SetDefault("diag.log_interval", memdiag.DefaultConfig().LogInterval)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	ec := c.ExtractConfig()
	sc := c.StoreConfig()
	dc := c.DownloaderConfig()
	var errs []error
	if err := ec.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("pipeline: %w", err))
	}
	if err := sc.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	if err := dc.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("s3: %w", err))
	}
	if c.Diag.LogInterval < 0 {
		errs = append(errs, fmt.Errorf("diag: log_interval must be non-negative, got %s", c.Diag.LogInterval))
	}
	return errors.Join(errs...)
}

// ExtractConfig returns the pipeline settings.
func (c *Config) ExtractConfig() extract.Config {
	return extract.Config{
		ChannelCapacity:    c.Pipeline.ChannelCapacity,
		DecoderProcs:       c.Pipeline.DecoderProcs,
		ProgressInterval:   c.Pipeline.ProgressInterval,
		MemoryWarnFraction: c.Pipeline.MemoryWarnFraction,
	}
}

// StoreConfig returns the SQLite store settings.
func (c *Config) StoreConfig() hnrstore.Config {
	return hnrstore.Config{
		Path:        c.Store.Path,
		Synchronous: strings.ToUpper(c.Store.Synchronous),
		BusyTimeout: c.Store.BusyTimeout,
	}
}

// DownloaderConfig returns the S3 download settings.
func (c *Config) DownloaderConfig() s3fetch.DownloaderConfig {
	return s3fetch.DownloaderConfig{
		Concurrency: c.S3.Concurrency,
		PartSize:    c.S3.PartSize,
		TempDir:     c.S3.TempDir,
	}
}

// DiagConfig returns the memory diagnostics settings.
func (c *Config) DiagConfig() memdiag.Config {
	return memdiag.Config{
		Enabled:     c.Diag.Memory,
		PprofAddr:   c.Diag.PprofAddr,
		LogInterval: c.Diag.LogInterval,
	}
}
