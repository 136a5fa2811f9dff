package mapper

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type testWriteCloser struct {
	*bytes.Buffer
	closed bool
}

func (t *testWriteCloser) Close() error {
	t.closed = true
	return nil
}

func TestLineEmitter(t *testing.T) {
	writer := &testWriteCloser{Buffer: new(bytes.Buffer)}
	emitter := newLineEmitter(writer, pairLineFormat)

	err := emitter.Emit("key", "value")
	assert.Nil(t, err)

	written, err := io.ReadAll(writer)
	assert.Nil(t, err)
	assert.Equal(t, "(key, value)\n", string(written))
	assert.Equal(t, int64(len("(key, value)\n")), emitter.BytesWritten())

	err = emitter.Close()
	assert.Nil(t, err)
	assert.True(t, writer.closed)
}

func TestLineEmitterThreadSafety(t *testing.T) {
	writer := &testWriteCloser{Buffer: new(bytes.Buffer)}
	emitter := newLineEmitter(writer, countLineFormat)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(key int) {
			defer wg.Done()
			err := emitter.Emit(fmt.Sprint(key), "1")
			assert.Nil(t, err)
		}(i)
	}
	wg.Wait()

	written, err := io.ReadAll(writer)
	assert.Nil(t, err)

	records := strings.Split(string(written), "\n")
	assert.Len(t, records, 11)
	for i := 0; i < 10; i++ {
		assert.Contains(t, records, fmt.Sprintf("%d, 1", i))
	}

	err = emitter.Close()
	assert.Nil(t, err)
}

func TestEmitPairs(t *testing.T) {
	writer := &testWriteCloser{Buffer: new(bytes.Buffer)}
	emitter := newLineEmitter(writer, pairLineFormat)

	pairs := NewPairCollector()
	pairs.Add(Pair{"a", "1"})
	pairs.Add(Pair{"b", "2"})
	pairs.Add(Pair{"a", "3"})

	assert.Nil(t, EmitPairs(emitter, pairs))
	assert.Equal(t, "(a, 1)\n(b, 2)\n(a, 3)\n", writer.String())
}

func TestEmitCounts(t *testing.T) {
	writer := &testWriteCloser{Buffer: new(bytes.Buffer)}
	emitter := newLineEmitter(writer, countLineFormat)

	counts := NewKeyCounter()
	for _, key := range []string{"b", "a", "b"} {
		counts.Add(key)
	}

	assert.Nil(t, EmitCounts(emitter, counts))
	assert.Equal(t, "a, 1\nb, 2\n", writer.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestEmitPairsWriteError(t *testing.T) {
	emitter := newLineEmitter(nopWriteCloser{failingWriter{}}, pairLineFormat)

	pairs := NewPairCollector()
	pairs.Add(Pair{"a", "1"})

	assert.EqualError(t, EmitPairs(emitter, pairs), "disk full")
	assert.Nil(t, emitter.Close())
}
