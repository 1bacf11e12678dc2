// Package extract streams postal addresses out of OSM PBF extracts while
// aggregating house number ranges per street, and merges those ranges into
// a persistent store once the scan ends.
//
// One call to AddressesFromPBFFileWithHouseNumbers starts one producer
// goroutine. Addresses reach the caller through a bounded channel in file
// order, so a slow consumer throttles the decoder.
package extract

import (
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"time"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/rs/zerolog"

	"github.com/eunmann/osm-addr-index/internal/logctx"
	"github.com/eunmann/osm-addr-index/pkg/address"
	"github.com/eunmann/osm-addr-index/pkg/hnrstore"
	"github.com/eunmann/osm-addr-index/pkg/humanfmt"
	"github.com/eunmann/osm-addr-index/pkg/logging"
	"github.com/eunmann/osm-addr-index/pkg/region"
	"github.com/eunmann/osm-addr-index/pkg/sysmem"
)

// progressEvery is how many tagged nodes pass between progress and memory checks.
const progressEvery = 4096

// Result is one stream item: an address, or the error that ended the stream.
type Result struct {
	Address address.WorldAddress
	Err     error
}

// Summary holds the counters of one run.
type Summary struct {
	Region            region.WorldRegion
	NodesScanned      int64 // tagged nodes
	AddressesEmitted  int64
	RangesAggregated  int64
	PartialInferences int64
	MalformedTags     int64
	StreetsStored     int
	StreetsFailed     int
	BytesScanned      int64
	Duration          time.Duration

	// Stopped is true when the scan ended early because the consumer went away.
	Stopped bool
}

// Stream is the consumer half of an extraction run.
type Stream struct {
	ch     chan Result
	cancel context.CancelFunc
	done   chan struct{}

	// Written by the producer before done is closed.
	summary Summary
	err     error
}

// AddressesFromPBFFileWithHouseNumbers starts extracting addresses for region
// r from the PBF file at path.
//
// An unknown region or invalid configuration is returned here, before any
// goroutine starts. Failures to open or decode the input arrive as a single
// *ParseError item, after which the stream closes and nothing is stored.
// Otherwise, once the scan ends the aggregated ranges are merged into store
// (if non-nil), and storage errors are reported by Close and Wait.
func AddressesFromPBFFileWithHouseNumbers(ctx context.Context, path string, r region.WorldRegion, store hnrstore.Store, opts ...Option) (*Stream, error) {
	o := buildOptions(opts)
	if err := o.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	agg, err := NewAggregator(r, o.resolver)
	if err != nil {
		return nil, fmt.Errorf("resolve region %q: %w", r, err)
	}

	log := logctx.FromContext(ctx).With().
		Str("region", r.String()).
		Str("path", path).
		Logger()
	agg.log = log

	runCtx, cancel := context.WithCancel(logctx.WithLogger(ctx, log))
	s := &Stream{
		ch:     make(chan Result, o.cfg.ChannelCapacity),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	p := &producer{
		path:  path,
		agg:   agg,
		store: store,
		opts:  o,
		out:   s.ch,
		log:   log,
	}
	go func() {
		defer close(s.done)
		defer close(s.ch)
		s.summary, s.err = p.run(runCtx)
	}()

	return s, nil
}

// Next blocks until the next item is available. ok is false once the
// stream is exhausted.
func (s *Stream) Next() (Result, bool) {
	r, ok := <-s.ch
	return r, ok
}

// All iterates over the stream. Breaking out of the loop closes the stream.
func (s *Stream) All() iter.Seq2[address.WorldAddress, error] {
	return func(yield func(address.WorldAddress, error) bool) {
		for r := range s.ch {
			if !yield(r.Address, r.Err) {
				s.Close()
				return
			}
		}
	}
}

// Close stops the run, discards undelivered items and waits for the
// producer, including its final storage merge. It returns the error that
// ended the run, if any. Close may be called more than once.
func (s *Stream) Close() error {
	s.cancel()
	for range s.ch {
	}
	<-s.done
	return s.err
}

// Wait blocks until the producer finishes. The caller must keep consuming
// the stream concurrently, or have closed it, or Wait may block forever.
func (s *Stream) Wait() (Summary, error) {
	<-s.done
	s.cancel()
	return s.summary, s.err
}

// Summary waits for the producer like Wait and returns the run's counters.
func (s *Stream) Summary() Summary {
	<-s.done
	return s.summary
}

type producer struct {
	path  string
	agg   *Aggregator
	store hnrstore.Store
	opts  options
	out   chan<- Result
	log   zerolog.Logger
}

func (p *producer) run(ctx context.Context) (Summary, error) {
	start := time.Now()
	sum := Summary{Region: p.agg.Region()}

	rc, err := p.opts.open(ctx, p.path)
	if err != nil {
		perr := openError(p.path, err)
		p.log.Error().Err(err).Msg("cannot open input")
		p.fail(ctx, perr)
		return sum, perr
	}
	defer rc.Close()

	if err := p.scan(ctx, rc, inputSize(rc), &sum); err != nil {
		perr := decodeError(p.path, err)
		p.log.Error().Err(err).Int64("nodes_scanned", sum.NodesScanned).Msg("pbf decode failed")
		p.fail(ctx, perr)
		sum.Duration = time.Since(start)
		return sum, perr
	}

	sum.RangesAggregated = int64(p.agg.RangeCount())
	sum.MalformedTags = p.agg.MalformedTags()

	var storeErr error
	if p.store != nil {
		p.opts.tracker.SetPhase("store")
		// Merge what was aggregated even if the consumer left early.
		report, err := p.agg.StoreResults(context.WithoutCancel(ctx), p.store)
		sum.StreetsStored = report.Stored
		sum.StreetsFailed = report.Failed
		storeErr = err
	} else {
		p.log.Debug().Msg("no store configured; discarding house number ranges")
	}
	sum.Duration = time.Since(start)

	ev := logging.PhaseComplete(p.log, "extract", sum.Duration).
		Count("nodes_scanned", sum.NodesScanned).
		Count("addresses", sum.AddressesEmitted).
		Count("ranges", sum.RangesAggregated).
		Count("partial_inferences", sum.PartialInferences).
		Count("malformed_tags", sum.MalformedTags).
		Int("streets_stored", sum.StreetsStored).
		Bytes("bytes_scanned", sum.BytesScanned).
		Throughput(sum.BytesScanned)
	if sum.Stopped {
		ev.Str("stopped", "consumer went away")
	}
	ev.Log("extraction finished")

	return sum, storeErr
}

// scan drives the decoder. It returns a non-nil error only for decoder
// failures, not for cancellation or an early stop.
func (p *producer) scan(ctx context.Context, r io.Reader, size int64, sum *Summary) error {
	scanner := osmpbf.New(ctx, r, p.opts.cfg.DecoderProcs)
	defer scanner.Close()
	scanner.SkipWays = true
	scanner.SkipRelations = true
	scanner.FilterNode = func(n *osm.Node) bool { return len(n.Tags) > 0 }

	p.opts.tracker.SetPhase("scan")
	progress := logging.NewByteProgress("scan", size, p.opts.cfg.ProgressInterval, p.log)
	guard := sysmem.NewGuard(sysmem.Total(), p.opts.cfg.MemoryWarnFraction)

	emit := func(a address.WorldAddress) bool {
		if ctx.Err() != nil {
			return false
		}
		select {
		case p.out <- Result{Address: a}:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for scanner.Scan() {
		node, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		sum.NodesScanned++

		switch p.agg.ProcessTags(node.Tags, emit) {
		case OutcomeAddress, OutcomeAddressWithRange:
			sum.AddressesEmitted++
		case OutcomePartialRange:
			sum.PartialInferences++
		case OutcomeUndelivered:
			sum.Stopped = true
		}
		if sum.Stopped {
			p.log.Debug().Int64("node_id", int64(node.ID)).Msg("consumer gone; stopping scan")
			break
		}

		if sum.NodesScanned%progressEvery == 0 {
			p.checkpoint(scanner.FullyScannedBytes(), progress, guard, sum)
		}
	}
	sum.BytesScanned = scanner.FullyScannedBytes()

	if sum.Stopped || ctx.Err() != nil {
		sum.Stopped = true
		return nil
	}
	return scanner.Err()
}

func (p *producer) checkpoint(scanned int64, progress *logging.ByteProgress, guard *sysmem.Guard, sum *Summary) {
	progress.Update(scanned, func(e *zerolog.Event) {
		e.Int64("nodes_scanned", sum.NodesScanned).
			Int64("addresses", sum.AddressesEmitted).
			Int("streets", p.agg.StreetCount())
	})

	used := p.agg.EstimatedMemoryUsage()
	p.opts.tracker.LogWithEstimate("checkpoint", used)
	if guard.Check(used) {
		ev := p.log.Warn().
			Int64("aggregator_bytes", used).
			Uint64("limit_bytes", guard.Limit()).
			Int("streets", p.agg.StreetCount())
		if logging.IsPrettyMode() {
			ev = ev.Str("aggregator_h", humanfmt.Bytes(used))
		}
		ev.Msg("house number aggregation exceeds memory warning threshold")
	}
}

// fail delivers the terminal error item unless the consumer is already gone.
func (p *producer) fail(ctx context.Context, err error) {
	select {
	case p.out <- Result{Err: err}:
	case <-ctx.Done():
	}
}

func inputSize(r io.Reader) int64 {
	if st, ok := r.(interface{ Stat() (os.FileInfo, error) }); ok {
		if fi, err := st.Stat(); err == nil {
			return fi.Size()
		}
	}
	return 0
}
