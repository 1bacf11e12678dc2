// Package addrexport writes extracted addresses to Parquet files.
package addrexport

import (
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/eunmann/osm-addr-index/pkg/address"
	"github.com/eunmann/osm-addr-index/pkg/fileutil"
	"github.com/eunmann/osm-addr-index/pkg/logging"
)

// DefaultBatchSize is the number of rows buffered before they are handed to
// the Parquet writer.
const DefaultBatchSize = 4096

// Row is the Parquet schema of one address.
type Row struct {
	Region     string `parquet:"region,dict"`
	City       string `parquet:"city,dict"`
	Street     string `parquet:"street"`
	PostalCode string `parquet:"postal_code,dict"`
}

// RowFromAddress converts an address to its Parquet row.
func RowFromAddress(a address.WorldAddress) Row {
	return Row{
		Region:     a.Region.String(),
		City:       a.City.String(),
		Street:     a.Street.String(),
		PostalCode: a.PostalCode.String(),
	}
}

// Writer streams addresses into a zstd-compressed Parquet file. The file
// appears at its final path only after a successful Close.
type Writer struct {
	file  *fileutil.AtomicFile
	pw    *parquet.GenericWriter[Row]
	batch []Row
	rows  int64
	start time.Time
}

// Create starts a new Parquet file at path.
func Create(path string) (*Writer, error) {
	f, err := fileutil.CreateAtomic(path)
	if err != nil {
		return nil, err
	}
	return &Writer{
		file:  f,
		pw:    parquet.NewGenericWriter[Row](f, parquet.Compression(&parquet.Zstd)),
		batch: make([]Row, 0, DefaultBatchSize),
		start: time.Now(),
	}, nil
}

// Write adds one address.
func (w *Writer) Write(a address.WorldAddress) error {
	w.batch = append(w.batch, RowFromAddress(a))
	if len(w.batch) >= DefaultBatchSize {
		return w.flush()
	}
	return nil
}

func (w *Writer) flush() error {
	if len(w.batch) == 0 {
		return nil
	}
	n, err := w.pw.Write(w.batch)
	w.rows += int64(n)
	w.batch = w.batch[:0]
	if err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	return nil
}

// Rows returns the number of rows written so far, excluding buffered rows.
func (w *Writer) Rows() int64 { return w.rows }

// Close flushes buffered rows, writes the footer and moves the file into place.
func (w *Writer) Close() error {
	if err := w.flush(); err != nil {
		w.file.Abort()
		return err
	}
	if err := w.pw.Close(); err != nil {
		w.file.Abort()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	size, _ := w.file.Seek(0, 1)
	if err := w.file.Commit(); err != nil {
		return err
	}

	logging.FileCreated(logging.WithPhase("export"), "export", time.Since(w.start)).
		Str("path", w.file.FinalPath()).
		Count("rows", w.rows).
		Bytes("file_size", size).
		Log("address parquet written")
	return nil
}

// Abort discards the partially written file.
func (w *Writer) Abort() error {
	return w.file.Abort()
}
