package extract

import (
	"errors"
	"fmt"

	"github.com/eunmann/osm-addr-index/pkg/region"
)

// Sentinel errors for extraction runs.
var (
	// ErrUnknownRegion is returned synchronously when the region cannot be
	// resolved to a country. It is the same value as region.ErrUnknownRegion.
	ErrUnknownRegion = region.ErrUnknownRegion

	// ErrOpen marks a stream item reporting that the input could not be opened.
	ErrOpen = errors.New("input unavailable")

	// ErrDecode marks a stream item reporting corrupt or non-PBF input.
	ErrDecode = errors.New("corrupt pbf data")
)

// ParseError is the single error item a stream yields before closing when
// the input cannot be read to the end.
type ParseError struct {
	Path string
	Op   string // "open" or "decode"
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func openError(path string, cause error) *ParseError {
	return &ParseError{Path: path, Op: "open", Err: fmt.Errorf("%w: %w", ErrOpen, cause)}
}

func decodeError(path string, cause error) *ParseError {
	return &ParseError{Path: path, Op: "decode", Err: fmt.Errorf("%w: %w", ErrDecode, cause)}
}
