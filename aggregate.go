package mapper

import (
	"context"
	"io"
	"sort"
)

// PairCollector accumulates pairs in the order they are added.
type PairCollector struct {
	pairs []Pair
}

// NewPairCollector returns an empty PairCollector.
func NewPairCollector() *PairCollector {
	return &PairCollector{pairs: make([]Pair, 0)}
}

// Add appends p. Duplicates are kept.
func (c *PairCollector) Add(p Pair) {
	c.pairs = append(c.pairs, p)
}

// Pairs returns the collected pairs in arrival order.
func (c *PairCollector) Pairs() []Pair {
	return c.pairs
}

// Len returns the number of collected pairs.
func (c *PairCollector) Len() int {
	return len(c.pairs)
}

// KeyCounter counts occurrences of keys. The first occurrence of a key
// counts as one.
type KeyCounter struct {
	counts map[string]int
	total  int
}

// NewKeyCounter returns an empty KeyCounter.
func NewKeyCounter() *KeyCounter {
	return &KeyCounter{counts: make(map[string]int)}
}

// Add records one occurrence of key.
func (c *KeyCounter) Add(key string) {
	c.counts[key]++
	c.total++
}

// Counts returns the key to count mapping.
func (c *KeyCounter) Counts() map[string]int {
	return c.counts
}

// Count returns the number of times key was added.
func (c *KeyCounter) Count(key string) int {
	return c.counts[key]
}

// Total returns the sum of all counts.
func (c *KeyCounter) Total() int {
	return c.total
}

// Len returns the number of distinct keys.
func (c *KeyCounter) Len() int {
	return len(c.counts)
}

// Keys returns the distinct keys in lexical order.
func (c *KeyCounter) Keys() []string {
	keys := make([]string, 0, len(c.counts))
	for key := range c.counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// CollectPairs drains engine over r into a PairCollector. The collector is
// returned even when err is non-nil; after ErrAbortedTimeout it holds the
// pairs delivered before the abort.
func CollectPairs(ctx context.Context, engine *Engine[Pair], r io.Reader) (*PairCollector, RunStats, error) {
	collector := NewPairCollector()
	stats, err := engine.Run(ctx, r, collector.Add)
	return collector, stats, err
}

// CountKeys drains engine over r into a KeyCounter, with the same partial
// result semantics as CollectPairs.
func CountKeys(ctx context.Context, engine *Engine[string], r io.Reader) (*KeyCounter, RunStats, error) {
	counter := NewKeyCounter()
	stats, err := engine.Run(ctx, r, counter.Add)
	return counter, stats, err
}
