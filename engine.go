package mapper

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bcongdon/mapper/internal/pkg/mapfs"
	humanize "github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ErrorPolicy decides what happens when a record cannot be tokenized.
type ErrorPolicy int

const (
	// Strict aborts the run on the first tokenizer error.
	Strict ErrorPolicy = iota
	// Lenient skips records that fail to tokenize.
	Lenient
)

func (p ErrorPolicy) String() string {
	if p == Lenient {
		return "lenient"
	}
	return "strict"
}

// DefaultBatchSize is the number of records dispatched to a worker at once
// when no batch size is configured.
const DefaultBatchSize = 10

// RunStats describes what a run delivered before it returned.
type RunStats struct {
	Records int           // results handed to the consumer
	Read    int           // records read from the input, delivered or not
	Skipped int           // records dropped under the Lenient policy
	Batches int           // batches delivered
	Bytes   int64         // input bytes covered by delivered batches
	Workers int           // size of the worker pool
	Elapsed time.Duration // wall time of the run
	Aborted bool          // the run hit its timeout
}

type engineConfig struct {
	workers   int
	batchSize int
	timeout   time.Duration
	policy    ErrorPolicy
	ordered   bool
	logger    *log.Entry
	onBatch   func(records int, size int64)
}

// EngineOption configures an Engine.
type EngineOption func(*engineConfig)

// WithPoolSize sets the number of batches processed concurrently.
// Values below one select GOMAXPROCS.
func WithPoolSize(n int) EngineOption {
	return func(c *engineConfig) {
		c.workers = n
	}
}

// WithBatchSize sets the number of records per batch.
func WithBatchSize(n int) EngineOption {
	return func(c *engineConfig) {
		c.batchSize = n
	}
}

// WithDrainTimeout bounds the whole run. Zero disables the timeout.
func WithDrainTimeout(d time.Duration) EngineOption {
	return func(c *engineConfig) {
		c.timeout = d
	}
}

// WithErrorPolicy sets how tokenizer errors are handled.
func WithErrorPolicy(p ErrorPolicy) EngineOption {
	return func(c *engineConfig) {
		c.policy = p
	}
}

// WithOrderedResults controls whether results are delivered in input order.
func WithOrderedResults(ordered bool) EngineOption {
	return func(c *engineConfig) {
		c.ordered = ordered
	}
}

// WithLogger sets the log entry the engine reports through.
func WithLogger(entry *log.Entry) EngineOption {
	return func(c *engineConfig) {
		c.logger = entry
	}
}

// WithBatchObserver registers fn to be called on the consumer goroutine
// after each batch has been delivered.
func WithBatchObserver(fn func(records int, size int64)) EngineOption {
	return func(c *engineConfig) {
		c.onBatch = fn
	}
}

// Engine applies a Tokenizer to every record of an input using a bounded
// pool of workers.
type Engine[T any] struct {
	tokenize Tokenizer[T]
	config   engineConfig
}

// NewEngine creates an Engine for tokenize with the provided options.
func NewEngine[T any](tokenize Tokenizer[T], options ...EngineOption) *Engine[T] {
	c := engineConfig{
		batchSize: DefaultBatchSize,
		ordered:   true,
	}
	for _, f := range options {
		f(&c)
	}
	if c.workers < 1 {
		c.workers = runtime.GOMAXPROCS(0)
	}
	if c.batchSize < 1 {
		c.batchSize = DefaultBatchSize
	}
	if c.logger == nil {
		c.logger = log.NewEntry(log.StandardLogger())
	}
	return &Engine[T]{tokenize: tokenize, config: c}
}

// Workers returns the size of the engine's worker pool.
func (e *Engine[T]) Workers() int {
	return e.config.workers
}

// RunFile opens filePath on fs and runs the engine over it.
// The file is closed before RunFile returns. It is also closed as soon as
// the run is cancelled or times out, which releases a Read stalled on it.
func (e *Engine[T]) RunFile(ctx context.Context, fs mapfs.FileSystem, filePath string, yield func(T)) (RunStats, error) {
	reader, err := fs.OpenReader(filePath, 0)
	if err != nil {
		return RunStats{Workers: e.config.workers}, fmt.Errorf("%w: %s: %w", ErrFileNotFound, filePath, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var closeOnce sync.Once
	closeReader := func() {
		closeOnce.Do(func() { reader.Close() })
	}
	stop := context.AfterFunc(ctx, closeReader)
	defer stop()
	defer closeReader()

	return e.run(ctx, cancel, reader, yield)
}

// Run tokenizes every line of r and passes each result to yield on the
// calling goroutine. When ordered results are enabled (the default) yield
// sees results in input order.
//
// If the run outlives its timeout, outstanding work is cancelled and Run
// returns ErrAbortedTimeout. Everything yielded before that point is valid.
// All worker goroutines have exited by the time Run returns. A Read that is
// blocked on r is not waited for: the goroutine reading r exits when that
// Read returns. Use RunFile to have the input closed on abort.
func (e *Engine[T]) Run(ctx context.Context, r io.Reader, yield func(T)) (RunStats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	return e.run(ctx, cancel, r, yield)
}

func (e *Engine[T]) run(ctx context.Context, cancel context.CancelFunc, r io.Reader, yield func(T)) (RunStats, error) {
	start := time.Now()
	stats := RunStats{Workers: e.config.workers}

	var deadline <-chan time.Time
	if e.config.timeout > 0 {
		timer := time.NewTimer(e.config.timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	g, gctx := errgroup.WithContext(ctx)
	batches := make(chan batch, e.config.workers)
	results := make(chan batchResult[T], e.config.workers)

	// A slot is held from dispatch until its batch is delivered, so at most
	// workers batches are tokenized or waiting in pending at any time.
	sem := semaphore.NewWeighted(int64(e.config.workers))

	// The reader stays outside the group: g.Wait must not depend on a Read returning.
	var read atomic.Int64
	readErr := make(chan error, 1)
	go func() {
		readErr <- readBatches(gctx, r, e.config.batchSize, batches, &read)
	}()
	g.Go(func() error {
		return e.dispatch(gctx, g, sem, batches, readErr, results)
	})

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
		close(results)
	}()

	deliver := func(res batchResult[T]) {
		for _, item := range res.items {
			yield(item)
		}
		stats.Records += len(res.items)
		stats.Skipped += res.skipped
		stats.Batches++
		stats.Bytes += res.size
		sem.Release(1)
		if e.config.onBatch != nil {
			e.config.onBatch(len(res.items)+res.skipped, res.size)
		}
	}

	pending := make(map[int]batchResult[T])
	next := 0
	for {
		select {
		case res, ok := <-results:
			if !ok {
				err := <-done
				stats.Elapsed = time.Since(start)
				stats.Read = int(read.Load())
				if err != nil {
					return stats, err
				}
				e.config.logger.Debugf("Mapped %d records (%s) in %d batches in %s",
					stats.Records, humanize.Bytes(uint64(stats.Bytes)), stats.Batches, stats.Elapsed)
				return stats, nil
			}
			if !e.config.ordered {
				deliver(res)
				continue
			}
			pending[res.seq] = res
			for {
				ready, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				deliver(ready)
				next++
			}
		case <-deadline:
			cancel()
			<-done
			stats.Elapsed = time.Since(start)
			stats.Read = int(read.Load())
			stats.Aborted = true
			e.config.logger.Warnf("Took too long: aborted after %s with %d of %d records read delivered",
				e.config.timeout, stats.Records, stats.Read)
			return stats, ErrAbortedTimeout
		}
	}
}

// dispatch hands each batch to a new task once a pool slot is free. The slot
// is released by the consumer when the batch is delivered.
func (e *Engine[T]) dispatch(ctx context.Context, g *errgroup.Group, sem *semaphore.Weighted, batches <-chan batch, readErr <-chan error, results chan<- batchResult[T]) error {
	for {
		var b batch
		select {
		case next, ok := <-batches:
			if !ok {
				if err := <-readErr; err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					return err
				}
				return nil
			}
			b = next
		case <-ctx.Done():
			return ctx.Err()
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		g.Go(func() error {
			res, err := e.mapBatch(ctx, b)
			if err != nil {
				return err
			}
			select {
			case results <- res:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
}

// mapBatch tokenizes every record of b. Panics raised by the tokenizer are
// converted into ErrWorkerPanic.
func (e *Engine[T]) mapBatch(ctx context.Context, b batch) (res batchResult[T], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: batch %d: %v", ErrWorkerPanic, b.seq, r)
		}
	}()

	res = batchResult[T]{
		seq:   b.seq,
		items: make([]T, 0, len(b.records)),
		size:  b.size,
	}
	for i, record := range b.records {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}

		item, tokErr := e.tokenize(record)
		if tokErr != nil {
			recordNum := b.first + i
			if e.config.policy == Lenient {
				res.skipped++
				e.config.logger.Debugf("Skipping record %d: %s", recordNum, tokErr)
				continue
			}
			return res, fmt.Errorf("record %d: %w", recordNum, tokErr)
		}
		res.items = append(res.items, item)
	}
	return res, nil
}
