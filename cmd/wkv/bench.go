package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dray-io/windowkv/internal/config"
	"github.com/dray-io/windowkv/internal/metrics"
	"github.com/dray-io/windowkv/internal/store"
	"github.com/dray-io/windowkv/internal/substrate"
	"github.com/dray-io/windowkv/internal/substrate/leveldb"
	"github.com/dray-io/windowkv/internal/windowstore"
)

type benchResult struct {
	Puts          int
	Fetches       int
	FetchedRows   int
	Elapsed       time.Duration
	PutsPerSec    float64
	FetchesPerSec float64
}

func runBench(args []string) {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	dir := fs.String("dir", "", "Override store data directory (empty with -mem for in-memory)")
	mem := fs.Bool("mem", false, "Use an in-memory substrate instead of disk")
	keys := fs.Int("keys", 1000, "Number of distinct keys")
	writes := fs.Int("writes", 100000, "Number of writes")
	valueSize := fs.Int("value-size", 100, "Value size in bytes")
	fetchEvery := fs.Int("fetch-every", 100, "Issue one fetch per this many writes")
	seed := fs.Int64("seed", 1, "Workload random seed")

	fs.Usage = func() {
		fmt.Println(`Usage: wkv bench [options]

Run a synthetic windowed workload and report throughput. Stream time
advances with the writes, so segment rotation and expiry are exercised.
Metrics are served on the configured metrics address for the duration
of the run.

Options:`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromPath(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *dir != "" {
		cfg.Store.Dir = *dir
	}

	logger, err := newLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	runID := uuid.New().String()
	logger = logger.With(zap.String("run_id", runID))

	var sub substrate.Substrate
	if *mem {
		sub = substrate.NewMemory()
	} else {
		sub, err = leveldb.Open(cfg.Store.Dir)
		if err != nil {
			logger.Fatal("open substrate", zap.Error(err))
		}
	}

	m := metrics.NewStoreMetrics(cfg.Store.Name)
	srv := metrics.NewServer(cfg.Observability.MetricsAddr, logger)
	if err := srv.Start(); err != nil {
		logger.Fatal("start metrics server", zap.Error(err))
	}
	defer srv.Close()
	logger.Info("metrics server listening", zap.String("addr", srv.Addr()))

	opts := windowstore.Options{
		Name:             cfg.Store.Name,
		RetentionPeriod:  time.Duration(cfg.Store.RetentionMs) * time.Millisecond,
		WindowSize:       time.Duration(cfg.Store.WindowSizeMs) * time.Millisecond,
		NumSegments:      cfg.Store.NumSegments,
		RetainDuplicates: cfg.Store.RetainDuplicates,
		EnableCaching:    cfg.Cache.Enabled,
		CacheMaxBytes:    cfg.Cache.MaxBytes,
		Metrics:          m,
		Logger:           logger,
	}
	opts.CacheFlushThresholdBytes = cfg.Cache.FlushThresholdBytes

	s, err := windowstore.Open(context.Background(), sub, opts)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer s.Close()

	res, err := bench(s, benchParams{
		Keys:        *keys,
		Writes:      *writes,
		ValueSize:   *valueSize,
		FetchEvery:  *fetchEvery,
		WindowMs:    cfg.Store.WindowSizeMs,
		RetentionMs: cfg.Store.RetentionMs,
		Seed:        *seed,
	})
	if err != nil {
		logger.Fatal("bench", zap.Error(err))
	}

	logger.Info("bench complete",
		zap.Int("puts", res.Puts),
		zap.Int("fetches", res.Fetches),
		zap.Int("fetched_rows", res.FetchedRows),
		zap.Duration("elapsed", res.Elapsed),
		zap.Float64("puts_per_sec", res.PutsPerSec),
		zap.Float64("fetches_per_sec", res.FetchesPerSec),
	)
	fmt.Printf("puts: %d (%.0f/s)\nfetches: %d (%.0f/s, %d rows)\nelapsed: %s\n",
		res.Puts, res.PutsPerSec, res.Fetches, res.FetchesPerSec, res.FetchedRows, res.Elapsed)
}

type benchParams struct {
	Keys        int
	Writes      int
	ValueSize   int
	FetchEvery  int
	WindowMs    int64
	RetentionMs int64
	Seed        int64
}

// bench drives the synthetic workload. Stream time advances one window
// per Keys writes, so long runs rotate segments and expire old ones.
func bench(s store.Store, p benchParams) (benchResult, error) {
	rng := rand.New(rand.NewSource(p.Seed))
	value := make([]byte, p.ValueSize)
	rng.Read(value)

	start := time.Now()
	var res benchResult
	for i := 0; i < p.Writes; i++ {
		key := benchKey(rng.Intn(p.Keys))
		windowStart := (int64(i) / int64(p.Keys)) * p.WindowMs
		if err := s.Put(key, value, windowStart); err != nil {
			return res, fmt.Errorf("put %d: %w", i, err)
		}
		res.Puts++

		if p.FetchEvery > 0 && i%p.FetchEvery == p.FetchEvery-1 {
			from := windowStart - p.RetentionMs
			if from < 0 {
				from = 0
			}
			it, err := s.Fetch(key, from, windowStart)
			if err != nil {
				return res, fmt.Errorf("fetch %d: %w", i, err)
			}
			for it.Next() {
				res.FetchedRows++
			}
			if err := it.Err(); err != nil {
				it.Close()
				return res, fmt.Errorf("fetch iterate %d: %w", i, err)
			}
			it.Close()
			res.Fetches++
		}
	}
	if err := s.Flush(); err != nil {
		return res, fmt.Errorf("flush: %w", err)
	}

	res.Elapsed = time.Since(start)
	secs := res.Elapsed.Seconds()
	if secs > 0 {
		res.PutsPerSec = float64(res.Puts) / secs
		res.FetchesPerSec = float64(res.Fetches) / secs
	}
	return res, nil
}

func benchKey(n int) []byte {
	return []byte(fmt.Sprintf("key-%06d", n))
}
