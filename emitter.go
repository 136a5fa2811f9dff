package mapper

import (
	"fmt"
	"io"
	"strconv"
	"sync"
)

const (
	pairLineFormat  = "(%s, %s)\n"
	countLineFormat = "%s, %s\n"
)

// Emitter writes key-value results as lines of output.
type Emitter interface {
	Emit(key, value string) error
	Close() error
	BytesWritten() int64
}

// lineEmitter is a threadsafe emitter that formats each key-value pair as one line.
type lineEmitter struct {
	writer       io.WriteCloser
	format       string
	mut          *sync.Mutex
	writtenBytes int64
}

// newLineEmitter initializes and returns a new lineEmitter writing with format,
// which must consume exactly a key and a value.
func newLineEmitter(writer io.WriteCloser, format string) *lineEmitter {
	return &lineEmitter{
		writer: writer,
		format: format,
		mut:    &sync.Mutex{},
	}
}

// Emit writes one formatted line for key and value.
func (e *lineEmitter) Emit(key, value string) error {
	e.mut.Lock()
	defer e.mut.Unlock()

	n, err := fmt.Fprintf(e.writer, e.format, key, value)
	e.writtenBytes += int64(n)
	return err
}

// Close closes the underlying writer. Close must not be called more than once
func (e *lineEmitter) Close() error {
	return e.writer.Close()
}

func (e *lineEmitter) BytesWritten() int64 {
	e.mut.Lock()
	defer e.mut.Unlock()
	return e.writtenBytes
}

// EmitPairs writes every collected pair to emitter in order.
func EmitPairs(emitter Emitter, pairs *PairCollector) error {
	for _, pair := range pairs.Pairs() {
		if err := emitter.Emit(pair.Key, pair.Value); err != nil {
			return err
		}
	}
	return nil
}

// EmitCounts writes every key and its count to emitter, in key order.
func EmitCounts(emitter Emitter, counts *KeyCounter) error {
	for _, key := range counts.Keys() {
		if err := emitter.Emit(key, strconv.Itoa(counts.Count(key))); err != nil {
			return err
		}
	}
	return nil
}

// nopWriteCloser adapts a writer that must not be closed, such as stdout.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
