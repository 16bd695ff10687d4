// Package windowstore assembles a persistent windowed key-value store
// from its building blocks: the segmented core, the changelog overlay,
// the write-behind cache, and instrumentation.
//
// The layers are fixed at construction. Open composes them inside-out
// according to the Options, so a caller holds a single store.Store and
// the decorator chain never changes underneath it.
package windowstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dray-io/windowkv/internal/cache"
	"github.com/dray-io/windowkv/internal/changelog"
	"github.com/dray-io/windowkv/internal/metrics"
	"github.com/dray-io/windowkv/internal/segment"
	"github.com/dray-io/windowkv/internal/store"
	"github.com/dray-io/windowkv/internal/substrate"
)

// MinSegments is the minimum number of segments a store may be divided
// into. With fewer than two, retention and the segment interval collapse.
const MinSegments = 2

var (
	// ErrNoName is returned by Open when Options.Name is empty.
	ErrNoName = errors.New("windowstore: store name required")

	// ErrNonPositiveRetention is returned when the retention period is
	// zero or negative.
	ErrNonPositiveRetention = errors.New("windowstore: retention period must be positive")

	// ErrNonPositiveWindow is returned when the window size is zero or
	// negative.
	ErrNonPositiveWindow = errors.New("windowstore: window size must be positive")

	// ErrTooFewSegments is returned when NumSegments is below MinSegments.
	ErrTooFewSegments = fmt.Errorf("windowstore: at least %d segments required", MinSegments)

	// ErrWindowExceedsRetention is returned when the window size is larger
	// than the retention period, which would expire windows before they
	// could ever be read.
	ErrWindowExceedsRetention = errors.New("windowstore: window size exceeds retention period")

	// ErrNilSink is returned when changelogging is enabled without a sink.
	ErrNilSink = errors.New("windowstore: changelog enabled but no sink provided")
)

// Options configures a windowed store.
type Options struct {
	// Name identifies the store. Segment identifiers and metric labels
	// derive from it.
	Name string

	// RetentionPeriod is how long records remain fetchable, measured
	// against the store's high-water mark rather than wall-clock time.
	RetentionPeriod time.Duration

	// WindowSize is the span of each window. It does not affect the
	// storage layout, but callers use it to derive window end times and
	// Open validates it against the retention period.
	WindowSize time.Duration

	// NumSegments is how many segments the retention period is divided
	// into. More segments mean finer-grained expiry at the cost of more
	// underlying stores. Minimum MinSegments.
	NumSegments int

	// RetainDuplicates keeps every put for the same (key, windowStart)
	// instead of overwriting. Used for windowed joins.
	RetainDuplicates bool

	// EnableChangeLog wires every write through ChangeLog before it is
	// applied, so the store can be rebuilt from the log.
	EnableChangeLog bool

	// ChangeLog receives each write when EnableChangeLog is set.
	ChangeLog changelog.Sink

	// EnableCaching places a write-behind cache in front of the store.
	EnableCaching bool

	// CacheMaxBytes caps the cache size. Zero means the cache default.
	CacheMaxBytes int64

	// CacheFlushThresholdBytes triggers a cache flush once dirty bytes
	// exceed it. Zero means the cache default.
	CacheFlushThresholdBytes int64

	// Metrics instruments the composed store. Nil disables recording.
	Metrics *metrics.StoreMetrics

	// Logger receives structured diagnostics. Nil means zap.NewNop().
	Logger *zap.Logger
}

func (o Options) validate() error {
	if o.Name == "" {
		return ErrNoName
	}
	if o.RetentionPeriod <= 0 {
		return ErrNonPositiveRetention
	}
	if o.WindowSize <= 0 {
		return ErrNonPositiveWindow
	}
	if o.WindowSize > o.RetentionPeriod {
		return ErrWindowExceedsRetention
	}
	if o.NumSegments < MinSegments {
		return ErrTooFewSegments
	}
	if o.EnableChangeLog && o.ChangeLog == nil {
		return ErrNilSink
	}
	return nil
}

// SegmentInterval computes the time span covered by one segment, in
// milliseconds. The retention period is divided across numSegments-1
// intervals so that the live window plus the retained history always fit.
func SegmentInterval(retention time.Duration, numSegments int) int64 {
	interval := retention.Milliseconds() / int64(numSegments-1)
	if interval < 1 {
		interval = 1
	}
	return interval
}

// Open builds the store described by opts on top of sub. The decorator
// chain, innermost first, is: segmented core, changelog, cache,
// instrumentation. Closing the returned store closes the substrate; the
// changelog sink stays open and remains the caller's to close.
func Open(ctx context.Context, sub substrate.Substrate, opts Options) (store.Store, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("store", opts.Name))

	retention := opts.RetentionPeriod.Milliseconds()
	interval := SegmentInterval(opts.RetentionPeriod, opts.NumSegments)

	var segRec segment.Recorder
	if opts.Metrics != nil {
		segRec = opts.Metrics
	}

	var s store.Store
	core, err := store.NewSegmented(sub, opts.Name, retention, interval, opts.RetainDuplicates, segRec, logger)
	if err != nil {
		return nil, err
	}
	s = core

	if opts.EnableChangeLog {
		s = changelog.NewLogging(ctx, s, opts.ChangeLog, opts.RetainDuplicates)
	}

	if opts.EnableCaching {
		var cacheRec cache.Recorder
		if opts.Metrics != nil {
			cacheRec = opts.Metrics
		}
		s = cache.New(s, cache.Config{
			MaxBytes:            opts.CacheMaxBytes,
			FlushThresholdBytes: opts.CacheFlushThresholdBytes,
			SegmentIntervalMs:   interval,
			RetentionMs:         retention,
		}, opts.RetainDuplicates, cacheRec, logger)
	}

	if opts.Metrics != nil {
		s = store.NewInstrumented(s, opts.Metrics)
	}

	logger.Info("opened window store",
		zap.Int64("retention_ms", retention),
		zap.Int64("segment_interval_ms", interval),
		zap.Int("num_segments", opts.NumSegments),
		zap.Bool("retain_duplicates", opts.RetainDuplicates),
		zap.Bool("changelog", opts.EnableChangeLog),
		zap.Bool("caching", opts.EnableCaching),
	)
	return s, nil
}
