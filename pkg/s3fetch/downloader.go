package s3fetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/eunmann/osm-addr-index/internal/logctx"
	"github.com/eunmann/osm-addr-index/pkg/logging"
)

const minPartSize = 1 << 20

// DownloaderConfig configures the S3 download manager.
type DownloaderConfig struct {
	// Concurrency is the number of parts fetched in parallel.
	// Default: NumCPU clamped to [4, 16].
	Concurrency int

	// PartSize is the size of each ranged GET in bytes. Default: 16MB.
	PartSize int64

	// TempDir holds downloaded extracts. If empty, os.TempDir() is used.
	TempDir string
}

// DefaultDownloaderConfig returns defaults based on the current machine.
func DefaultDownloaderConfig() DownloaderConfig {
	return DownloaderConfig{
		Concurrency: min(max(runtime.NumCPU(), 4), 16),
		PartSize:    16 * 1024 * 1024,
	}
}

// Validate checks configuration values and returns an error for invalid settings.
func (c *DownloaderConfig) Validate() error {
	if c.Concurrency < 0 {
		return fmt.Errorf("Concurrency must be non-negative, got %d", c.Concurrency)
	}
	if c.PartSize != 0 && c.PartSize < minPartSize {
		return fmt.Errorf("PartSize must be at least %d bytes, got %d", minPartSize, c.PartSize)
	}
	return nil
}

func (c DownloaderConfig) withDefaults() DownloaderConfig {
	def := DefaultDownloaderConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.PartSize <= 0 {
		c.PartSize = def.PartSize
	}
	if c.TempDir == "" {
		c.TempDir = os.TempDir()
	}
	return c
}

// Downloader wraps the AWS S3 download manager for parallel ranged downloads.
type Downloader struct {
	manager *manager.Downloader
	config  DownloaderConfig
}

// NewDownloader creates a Downloader from an existing S3 client. Zero
// config fields take their defaults.
func NewDownloader(s3Client manager.DownloadAPIClient, cfg DownloaderConfig) *Downloader {
	cfg = cfg.withDefaults()
	mgr := manager.NewDownloader(s3Client, func(d *manager.Downloader) {
		d.Concurrency = cfg.Concurrency
		d.PartSize = cfg.PartSize
	})
	return &Downloader{manager: mgr, config: cfg}
}

// Config returns the effective downloader configuration.
func (d *Downloader) Config() DownloaderConfig {
	return d.config
}

// DownloadResult describes a completed download.
type DownloadResult struct {
	BytesDownloaded int64
	Duration        time.Duration
}

// DownloadToTemp downloads an object into a new temp file and returns it
// positioned at the start.
func (d *Downloader) DownloadToTemp(ctx context.Context, bucket, key string) (*TempFile, *DownloadResult, error) {
	start := time.Now()

	f, err := os.CreateTemp(d.config.TempDir, "osmaddr-*.osm.pbf")
	if err != nil {
		return nil, nil, fmt.Errorf("create temp file: %w", err)
	}
	tmp := &TempFile{File: f}

	n, err := d.manager.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		tmp.Close()
		return nil, nil, fmt.Errorf("download s3://%s/%s: %w", bucket, key, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return nil, nil, fmt.Errorf("seek temp file: %w", err)
	}

	res := &DownloadResult{BytesDownloaded: n, Duration: time.Since(start)}
	logging.PhaseComplete(logctx.FromContext(ctx), "download", res.Duration).
		Str("bucket", bucket).
		Str("key", key).
		Bytes("bytes", n).
		Throughput(n).
		Log("extract downloaded")

	return tmp, res, nil
}

// TempFile is a downloaded object that is deleted on Close.
type TempFile struct {
	*os.File
}

// Close closes and removes the file.
func (t *TempFile) Close() error {
	err := t.File.Close()
	if rmErr := os.Remove(t.Name()); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	if err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return nil
}
