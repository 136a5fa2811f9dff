package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/bcongdon/mapper"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	exitOK      = 0
	exitError   = 1
	exitTimeout = 2
)

const usage = `Usage:
  mapper pairs <filename> <keyIndex> <valueIndex> <nodeCapacityMB> [mapsPerNode=10]
  mapper count <filename> <keyIndex> <nodeCapacityMB> [mapsPerNode=10]
`

func newFlagSet(mode string, stderr io.Writer) *pflag.FlagSet {
	flags := pflag.NewFlagSet("mapper "+mode, pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Duration("timeout", time.Second, "bound on the whole run, 0 disables it")
	flags.Int("workers", 0, "worker count, overrides the size estimate")
	flags.Int("max-concurrency", 500, "maximum number of concurrent workers")
	flags.Bool("lenient", false, "skip records that cannot be tokenized")
	flags.String("delimiter", ",", "field delimiter for count mode")
	flags.StringP("out", "o", "", "output location (local path or s3://bucket/key)")
	flags.Bool("progress", false, "show a progress bar")
	flags.BoolP("verbose", "v", false, "debug logging")
	return flags
}

func bindFlags(flags *pflag.FlagSet) {
	bindings := map[string]string{
		"timeout":         "timeout",
		"workers":         "workers",
		"max_concurrency": "max-concurrency",
		"lenient":         "lenient",
		"delimiter":       "delimiter",
		"output":          "out",
		"progress":        "progress",
		"verbose":         "verbose",
	}
	for key, flag := range bindings {
		viper.BindPFlag(key, flags.Lookup(flag))
	}
}

// positional holds the parsed positional arguments of either mode.
type positional struct {
	filename    string
	keyIndex    int
	valueIndex  int
	capacityMB  float64
	mapsPerNode int
}

func parsePositional(mode string, args []string) (positional, error) {
	p := positional{mapsPerNode: 10}

	required := 3
	if mode == "pairs" {
		required = 4
	}
	if len(args) < required || len(args) > required+1 {
		return p, fmt.Errorf("%s expects %d or %d arguments, got %d", mode, required, required+1, len(args))
	}

	var err error
	p.filename = args[0]
	if p.keyIndex, err = strconv.Atoi(args[1]); err != nil {
		return p, fmt.Errorf("keyIndex: %w", err)
	}
	rest := args[2:]
	if mode == "pairs" {
		if p.valueIndex, err = strconv.Atoi(rest[0]); err != nil {
			return p, fmt.Errorf("valueIndex: %w", err)
		}
		rest = rest[1:]
	}
	if p.capacityMB, err = strconv.ParseFloat(rest[0], 64); err != nil {
		return p, fmt.Errorf("nodeCapacityMB: %w", err)
	}
	if len(rest) > 1 {
		if p.mapsPerNode, err = strconv.Atoi(rest[1]); err != nil {
			return p, fmt.Errorf("mapsPerNode: %w", err)
		}
	}
	return p, nil
}

// exitCode maps the result of a run to the process exit code
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, mapper.ErrAbortedTimeout):
		return exitTimeout
	}
	return exitError
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 || (args[0] != "pairs" && args[0] != "count") {
		fmt.Fprint(stderr, usage)
		return exitError
	}
	mode := args[0]

	flags := newFlagSet(mode, stderr)
	if err := flags.Parse(args[1:]); err != nil {
		fmt.Fprint(stderr, usage)
		return exitError
	}
	bindFlags(flags)

	p, err := parsePositional(mode, flags.Args())
	if err != nil {
		fmt.Fprintf(stderr, "%s\n%s", err, usage)
		return exitError
	}

	driver := mapper.NewDriver(
		mapper.WithNodeCapacity(p.capacityMB),
		mapper.WithMapsPerNode(p.mapsPerNode),
		mapper.WithStdout(stdout),
	)

	start := time.Now()
	var runErr error
	if mode == "pairs" {
		var pairs *mapper.PairCollector
		pairs, _, runErr = driver.Pairs(ctx, p.filename, p.keyIndex, p.valueIndex)
		if exitCode(runErr) != exitError {
			err = driver.WritePairs(pairs)
		}
	} else {
		var counts *mapper.KeyCounter
		counts, _, runErr = driver.Count(ctx, p.filename, p.keyIndex)
		if exitCode(runErr) != exitError {
			err = driver.WriteCounts(counts)
		}
	}
	log.Debugf("Execution Time: %s", time.Since(start))

	if err != nil {
		log.Errorf("Could not write results: %s", err)
		return exitError
	}
	if errors.Is(runErr, mapper.ErrAbortedTimeout) {
		fmt.Fprintln(stderr, "Took too long")
	} else if runErr != nil {
		log.Error(runErr)
	}
	return exitCode(runErr)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
