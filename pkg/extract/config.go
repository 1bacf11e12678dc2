package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/eunmann/osm-addr-index/pkg/memdiag"
	"github.com/eunmann/osm-addr-index/pkg/region"
)

// Config holds tuning for one extraction run.
type Config struct {
	// ChannelCapacity bounds the number of addresses buffered between the
	// producer goroutine and the consumer.
	ChannelCapacity int

	// DecoderProcs is the number of goroutines osmpbf uses to decode blobs.
	DecoderProcs int

	// ProgressInterval is the minimum time between progress log lines.
	// Zero disables progress logging.
	ProgressInterval time.Duration

	// MemoryWarnFraction logs a warning once when the aggregator's estimated
	// size exceeds this fraction of system RAM. Zero disables the check.
	MemoryWarnFraction float64
}

// DefaultConfig returns the default run configuration.
func DefaultConfig() Config {
	return Config{
		ChannelCapacity:    1024,
		DecoderProcs:       1,
		ProgressInterval:   10 * time.Second,
		MemoryWarnFraction: 0.5,
	}
}

// Validate checks configuration values and returns an error for invalid settings.
func (c *Config) Validate() error {
	var errs []error
	if c.ChannelCapacity < 1 {
		errs = append(errs, fmt.Errorf("ChannelCapacity must be at least 1, got %d", c.ChannelCapacity))
	}
	if c.DecoderProcs < 1 {
		errs = append(errs, fmt.Errorf("DecoderProcs must be at least 1, got %d", c.DecoderProcs))
	}
	if c.ProgressInterval < 0 {
		errs = append(errs, fmt.Errorf("ProgressInterval must be non-negative, got %s", c.ProgressInterval))
	}
	if c.MemoryWarnFraction < 0 || c.MemoryWarnFraction > 1 {
		errs = append(errs, fmt.Errorf("MemoryWarnFraction must be within [0, 1], got %g", c.MemoryWarnFraction))
	}
	return errors.Join(errs...)
}

// Opener opens the input named by path.
type Opener func(ctx context.Context, path string) (io.ReadCloser, error)

// OpenFile is the default Opener.
func OpenFile(_ context.Context, path string) (io.ReadCloser, error) {
	return os.Open(path)
}

type options struct {
	cfg      Config
	resolver region.Resolver
	open     Opener
	tracker  *memdiag.Tracker
}

// Option configures AddressesFromPBFFileWithHouseNumbers.
type Option func(*options)

// WithConfig replaces the default Config.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithResolver sets the region resolver. The default is region.Default().
func WithResolver(res region.Resolver) Option {
	return func(o *options) { o.resolver = res }
}

// WithOpener replaces os.Open, e.g. to read extracts fetched from S3.
func WithOpener(open Opener) Option {
	return func(o *options) { o.open = open }
}

// WithTracker reports heap usage against the aggregator estimate to t.
func WithTracker(t *memdiag.Tracker) Option {
	return func(o *options) { o.tracker = t }
}

func buildOptions(opts []Option) options {
	o := options{
		cfg:      DefaultConfig(),
		resolver: region.Default(),
		open:     OpenFile,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.resolver == nil {
		o.resolver = region.Default()
	}
	if o.open == nil {
		o.open = OpenFile
	}
	return o
}
