package mapper

import (
	"bufio"
	"context"
	"io"
	"sync/atomic"
)

// maxRecordSize bounds the length of a single input line.
const maxRecordSize = 1024 * 1024

// batch is a contiguous run of records handed to one worker.
type batch struct {
	seq     int      // position of the batch in the input, starting at 0
	first   int      // 1-based record number of records[0]
	records []string // raw records, without line terminators
	size    int64    // number of input bytes the batch spans
}

// batchResult holds the tokenized output of one batch.
type batchResult[T any] struct {
	seq     int
	items   []T
	skipped int
	size    int64
}

// countingSplitFunc wraps a bufio.SplitFunc and keeps track of the number of bytes advanced.
// Upon each scan, the value of *bytesRead will be incremented by the number of bytes
// that the SplitFunc advances.
func countingSplitFunc(split bufio.SplitFunc, bytesRead *int64) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (advance int, token []byte, err error) {
		adv, tok, err := split(data, atEOF)
		(*bytesRead) += int64(adv)
		return adv, tok, err
	}
}

// readBatches scans r line by line and sends runs of batchSize consecutive
// records to out, adding every record it scans to read. out is closed when
// reading stops for any reason.
func readBatches(ctx context.Context, r io.Reader, batchSize int, out chan<- batch, read *atomic.Int64) error {
	defer close(out)

	var bytesRead, mark int64
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	scanner.Split(countingSplitFunc(bufio.ScanLines, &bytesRead))

	send := func(b batch) error {
		b.size = bytesRead - mark
		mark = bytesRead
		select {
		case out <- b:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	current := batch{first: 1, records: make([]string, 0, batchSize)}
	for scanner.Scan() {
		current.records = append(current.records, scanner.Text())
		read.Add(1)
		if len(current.records) < batchSize {
			continue
		}
		if err := send(current); err != nil {
			return err
		}
		current = batch{
			seq:     current.seq + 1,
			first:   current.first + len(current.records),
			records: make([]string, 0, batchSize),
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if len(current.records) > 0 {
		return send(current)
	}
	return nil
}
