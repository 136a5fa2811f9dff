package mapper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bcongdon/mapper/internal/pkg/mapfs"
	humanize "github.com/dustin/go-humanize"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	pb "gopkg.in/cheggaaa/pb.v1"
)

// Driver sizes, runs and aggregates mapper runs over input files.
// File sizes are cached per driver until the file is next opened for a run.
type Driver struct {
	config *config

	mut         sync.Mutex
	filesystems map[mapfs.FileSystemType]mapfs.FileSystem
}

// config configures a Driver's runs
type config struct {
	NodeCapacityMB float64
	MapsPerNode    int
	Timeout        time.Duration
	Workers        int
	MaxConcurrency int
	Lenient        bool
	Delimiter      rune
	Output         string
	Progress       bool
	Verbose        bool
	StatCacheSize  int

	stdout io.Writer
	stderr io.Writer
}

func newConfig() *config {
	loadConfig() // Load viper config from settings file(s) and environment
	return &config{
		NodeCapacityMB: viper.GetFloat64("node_capacity_mb"),
		MapsPerNode:    viper.GetInt("maps_per_node"),
		Timeout:        viper.GetDuration("timeout"),
		Workers:        viper.GetInt("workers"),
		MaxConcurrency: viper.GetInt("max_concurrency"),
		Lenient:        viper.GetBool("lenient"),
		Delimiter:      parseDelimiter(viper.GetString("delimiter")),
		Output:         viper.GetString("output"),
		Progress:       viper.GetBool("progress"),
		Verbose:        viper.GetBool("verbose"),
		StatCacheSize:  viper.GetInt("stat_cache_size"),
		stdout:         os.Stdout,
		stderr:         os.Stderr,
	}
}

// parseDelimiter reads the first rune of s. "\t" and "tab" select a tab.
func parseDelimiter(s string) rune {
	switch s {
	case "":
		return ','
	case `\t`, "tab":
		return '\t'
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r
}

// Option allows configuration of a Driver
type Option func(*config)

// NewDriver creates a new Driver with optional configuration
func NewDriver(options ...Option) *Driver {
	c := newConfig()
	for _, f := range options {
		f(c)
	}

	if c.Verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
	log.Debugf("Loaded config: %#v", c)

	return &Driver{
		config:      c,
		filesystems: make(map[mapfs.FileSystemType]mapfs.FileSystem),
	}
}

// WithNodeCapacity sets the capacity of one node, in megabytes, used to size the worker pool
func WithNodeCapacity(mb float64) Option {
	return func(c *config) {
		c.NodeCapacityMB = mb
	}
}

// WithMapsPerNode sets the number of maps per node. It is also the number of
// records dispatched to a worker at a time.
func WithMapsPerNode(n int) Option {
	return func(c *config) {
		c.MapsPerNode = n
	}
}

// WithTimeout bounds how long a run may take to drain its results. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.Timeout = d
	}
}

// WithWorkers overrides the estimated worker count
func WithWorkers(n int) Option {
	return func(c *config) {
		c.Workers = n
	}
}

// WithMaxConcurrency caps the worker count
func WithMaxConcurrency(n int) Option {
	return func(c *config) {
		c.MaxConcurrency = n
	}
}

// WithLenient makes runs skip records that cannot be tokenized instead of failing
func WithLenient(lenient bool) Option {
	return func(c *config) {
		c.Lenient = lenient
	}
}

// WithDelimiter sets the field delimiter used in count mode
func WithDelimiter(delimiter rune) Option {
	return func(c *config) {
		c.Delimiter = delimiter
	}
}

// WithOutput sets the location results are written to. Empty means stdout.
func WithOutput(location string) Option {
	return func(c *config) {
		c.Output = location
	}
}

// WithProgress enables a progress bar on stderr
func WithProgress(progress bool) Option {
	return func(c *config) {
		c.Progress = progress
	}
}

// WithVerbose enables debug logging
func WithVerbose(verbose bool) Option {
	return func(c *config) {
		c.Verbose = verbose
	}
}

// WithStdout sets the writer results go to when no output location is configured
func WithStdout(w io.Writer) Option {
	return func(c *config) {
		c.stdout = w
	}
}

func (d *Driver) policy() ErrorPolicy {
	if d.config.Lenient {
		return Lenient
	}
	return Strict
}

// filesystem returns the (stat-cached) filesystem for location, initializing it on first use
func (d *Driver) filesystem(location string) (mapfs.FileSystem, error) {
	d.mut.Lock()
	defer d.mut.Unlock()

	fsType := mapfs.InferFilesystemType(location)
	if fs, ok := d.filesystems[fsType]; ok {
		return fs, nil
	}

	inner, err := mapfs.InitFilesystem(fsType)
	if err != nil {
		return nil, err
	}
	fs, err := mapfs.NewCachedFileSystem(inner, d.config.StatCacheSize)
	if err != nil {
		return nil, err
	}
	d.filesystems[fsType] = fs
	return fs, nil
}

func checkIndex(name string, index int) error {
	if index < 0 {
		return fmt.Errorf("%w: %s index %d is negative", ErrFieldIndexOutOfRange, name, index)
	}
	return nil
}

// Pairs extracts a key and value from every whitespace separated record of
// input. Pairs are returned in input order.
//
// When err is ErrAbortedTimeout the collector holds every pair delivered
// before the abort.
func (d *Driver) Pairs(ctx context.Context, input string, keyIndex, valueIndex int) (*PairCollector, RunStats, error) {
	collector := NewPairCollector()
	if err := checkIndex("key", keyIndex); err != nil {
		return collector, RunStats{}, err
	}
	if err := checkIndex("value", valueIndex); err != nil {
		return collector, RunStats{}, err
	}

	stats, err := runInput(ctx, d, "pairs", input, PairTokenizer(keyIndex, valueIndex), true, collector.Add)
	return collector, stats, err
}

// Count counts how many records of the delimited input carry each key.
func (d *Driver) Count(ctx context.Context, input string, keyIndex int) (*KeyCounter, RunStats, error) {
	counter := NewKeyCounter()
	if err := checkIndex("key", keyIndex); err != nil {
		return counter, RunStats{}, err
	}

	stats, err := runInput(ctx, d, "count", input, KeyTokenizer(keyIndex, d.config.Delimiter), false, counter.Add)
	return counter, stats, err
}

// runInput sizes the worker pool for input and drains an engine over it into yield
func runInput[T any](ctx context.Context, d *Driver, mode, input string, tokenize Tokenizer[T], ordered bool, yield func(T)) (RunStats, error) {
	runLog := log.WithFields(log.Fields{
		"run":  uuid.New().String(),
		"mode": mode,
	})

	fs, err := d.filesystem(input)
	if err != nil {
		return RunStats{}, err
	}

	estimate, fInfo, err := EstimateFileWorkers(fs, input, d.config.NodeCapacityMB, d.config.MapsPerNode)
	if err != nil {
		return RunStats{}, err
	}
	if d.config.Workers > 0 {
		estimate = WorkerCount(d.config.Workers)
	}
	workers := estimate.Resolve(d.config.MaxConcurrency)
	runLog.Infof("Mapping %s (%s) with %d workers (requested %s), %d records per batch",
		input, humanize.Bytes(uint64(fInfo.Size)), workers, estimate, d.config.MapsPerNode)

	options := []EngineOption{
		WithPoolSize(workers),
		WithBatchSize(d.config.MapsPerNode),
		WithDrainTimeout(d.config.Timeout),
		WithErrorPolicy(d.policy()),
		WithOrderedResults(ordered),
		WithLogger(runLog),
	}
	if d.config.Progress {
		bar := pb.New64(fInfo.Size).SetUnits(pb.U_BYTES).Prefix(mode)
		bar.Output = d.config.stderr
		bar.Start()
		defer bar.Finish()
		options = append(options, WithBatchObserver(func(_ int, size int64) {
			bar.Add64(size)
		}))
	}

	stats, err := NewEngine(tokenize, options...).RunFile(ctx, fs, input, yield)
	if stats.Skipped > 0 {
		runLog.Warnf("Skipped %d records that could not be tokenized", stats.Skipped)
	}
	switch {
	case errors.Is(err, ErrAbortedTimeout):
		runLog.Warnf("Returning %d partial results of %d records read", stats.Records, stats.Read)
	case err != nil:
		runLog.Errorf("Run failed after %d records: %s", stats.Records, err)
	default:
		runLog.Infof("Mapped %d records in %s", stats.Records, stats.Elapsed)
	}
	return stats, err
}

// WritePairs writes pairs, one "(key, value)" per line, to the configured output
func (d *Driver) WritePairs(pairs *PairCollector) error {
	return d.write(pairLineFormat, func(e Emitter) error {
		return EmitPairs(e, pairs)
	})
}

// WriteCounts writes counts, one "key, count" per line, to the configured output
func (d *Driver) WriteCounts(counts *KeyCounter) error {
	return d.write(countLineFormat, func(e Emitter) error {
		return EmitCounts(e, counts)
	})
}

func (d *Driver) openOutput() (io.WriteCloser, error) {
	if d.config.Output == "" {
		return nopWriteCloser{d.config.stdout}, nil
	}
	fs, err := d.filesystem(d.config.Output)
	if err != nil {
		return nil, err
	}
	return fs.OpenWriter(d.config.Output)
}

func (d *Driver) write(format string, emit func(Emitter) error) error {
	writer, err := d.openOutput()
	if err != nil {
		return err
	}

	emitter := newLineEmitter(writer, format)
	if err := emit(emitter); err != nil {
		emitter.Close()
		return err
	}
	if err := emitter.Close(); err != nil {
		return err
	}

	if d.config.Output != "" {
		log.Infof("Wrote %s of results to %s", humanize.Bytes(uint64(emitter.BytesWritten())), d.config.Output)
	}
	return nil
}
