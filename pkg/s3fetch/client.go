// Package s3fetch downloads OSM extracts from S3 so they can be scanned
// like local files.
package s3fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// URIScheme prefixes S3 object locations.
const URIScheme = "s3://"

// Client fetches objects from S3.
type Client struct {
	s3Client   *s3.Client
	downloader *Downloader
}

// NewClient creates a client using the default AWS configuration chain.
func NewClient(ctx context.Context, cfg DownloaderConfig) (*Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewClientWithConfig(awsCfg, cfg), nil
}

// NewClientWithConfig creates a client with a custom AWS config.
func NewClientWithConfig(awsCfg aws.Config, cfg DownloaderConfig) *Client {
	s3Client := s3.NewFromConfig(awsCfg)
	return &Client{
		s3Client:   s3Client,
		downloader: NewDownloader(s3Client, cfg),
	}
}

// Open downloads the object at uri to a temp file and returns it positioned
// at the start. Closing the returned file deletes it.
func (c *Client) Open(ctx context.Context, uri string) (*TempFile, error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("invalid S3 URI %q: missing object key", uri)
	}
	f, _, err := c.downloader.DownloadToTemp(ctx, bucket, key)
	return f, err
}

// IsS3URI reports whether path names an S3 object.
func IsS3URI(path string) bool {
	return strings.HasPrefix(path, URIScheme)
}

// ParseS3URI parses an S3 URI (s3://bucket/key) into bucket and key components.
func ParseS3URI(uri string) (bucket, key string, err error) {
	if !IsS3URI(uri) {
		return "", "", errors.New("invalid S3 URI: must start with s3://")
	}
	bucket, key, _ = strings.Cut(strings.TrimPrefix(uri, URIScheme), "/")
	if bucket == "" {
		return "", "", errors.New("invalid S3 URI: missing bucket name")
	}
	return bucket, key, nil
}

// Opener returns a function that opens s3:// URIs through c and anything
// else as a local file. c may be nil if only local paths will be opened.
func Opener(c *Client) func(ctx context.Context, path string) (io.ReadCloser, error) {
	return func(ctx context.Context, path string) (io.ReadCloser, error) {
		if !IsS3URI(path) {
			return os.Open(path)
		}
		if c == nil {
			return nil, fmt.Errorf("no S3 client configured for %s", path)
		}
		f, err := c.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
}
