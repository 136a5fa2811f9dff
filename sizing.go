package mapper

import (
	"fmt"
	"math"
	"runtime"

	"github.com/bcongdon/mapper/internal/pkg/mapfs"
	humanize "github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
)

// WorkerCount is the number of concurrent workers a run requests.
// AutoWorkers means "use the host's default parallelism".
type WorkerCount int

// AutoWorkers is the sentinel WorkerCount used when the estimate is not positive.
const AutoWorkers WorkerCount = 0

const bytesPerMB = 1024 * 1024

// Resolve converts a WorkerCount into a concrete pool size. AutoWorkers
// resolves to GOMAXPROCS. When maxConcurrency is positive the result is
// clamped to it.
func (w WorkerCount) Resolve(maxConcurrency int) int {
	n := int(w)
	if w <= AutoWorkers {
		n = runtime.GOMAXPROCS(0)
	}
	if maxConcurrency > 0 && n > maxConcurrency {
		n = maxConcurrency
	}
	return n
}

func (w WorkerCount) String() string {
	if w <= AutoWorkers {
		return "auto"
	}
	return fmt.Sprint(int(w))
}

func validateSizing(nodeCapacityMB float64, mapsPerNode int) error {
	// !(x > 0) also rejects NaN
	if !(nodeCapacityMB > 0) || math.IsInf(nodeCapacityMB, 1) {
		return fmt.Errorf("%w: node capacity must be positive, got %v", ErrInvalidSizingInput, nodeCapacityMB)
	}
	if mapsPerNode <= 0 {
		return fmt.Errorf("%w: maps per node must be positive, got %d", ErrInvalidSizingInput, mapsPerNode)
	}
	return nil
}

// EstimateWorkers computes how many workers to request for an input of
// fileSizeBytes: ceil(sizeMB / nodeCapacityMB / mapsPerNode). A result that
// is not positive collapses to AutoWorkers.
func EstimateWorkers(fileSizeBytes int64, nodeCapacityMB float64, mapsPerNode int) (WorkerCount, error) {
	if err := validateSizing(nodeCapacityMB, mapsPerNode); err != nil {
		return AutoWorkers, err
	}
	if fileSizeBytes < 0 {
		return AutoWorkers, fmt.Errorf("%w: negative file size %d", ErrInvalidSizingInput, fileSizeBytes)
	}

	sizeMB := float64(fileSizeBytes) / bytesPerMB
	nodes := sizeMB / nodeCapacityMB
	workers := math.Ceil(nodes / float64(mapsPerNode))
	if workers <= 0 {
		return AutoWorkers, nil
	}
	if workers > math.MaxInt32 {
		workers = math.MaxInt32
	}
	return WorkerCount(workers), nil
}

// EstimateFileWorkers stats filePath on fs and estimates the worker count for it.
// The stat'ed FileInfo is returned so callers can reuse the size.
func EstimateFileWorkers(fs mapfs.FileSystem, filePath string, nodeCapacityMB float64, mapsPerNode int) (WorkerCount, mapfs.FileInfo, error) {
	if err := validateSizing(nodeCapacityMB, mapsPerNode); err != nil {
		return AutoWorkers, mapfs.FileInfo{}, err
	}

	fInfo, err := fs.Stat(filePath)
	if err != nil {
		return AutoWorkers, mapfs.FileInfo{}, fmt.Errorf("%w: %s: %w", ErrFileNotFound, filePath, err)
	}

	workers, err := EstimateWorkers(fInfo.Size, nodeCapacityMB, mapsPerNode)
	if err != nil {
		return AutoWorkers, fInfo, err
	}
	log.Debugf("Input %s is %s, estimated %s workers (%.1fMB nodes, %d maps per node)",
		filePath, humanize.Bytes(uint64(fInfo.Size)), workers, nodeCapacityMB, mapsPerNode)
	return workers, fInfo, nil
}
