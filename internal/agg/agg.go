// Package agg implements the count/sum statistic folded per grouping key.
//
// Fold and Merge are associative and commutative, so values may be folded in
// any order and partial results (for example from a map-side combiner) can be
// merged without changing the outcome. Totals are tracked exactly beyond the
// int64 range so that overflow is detected regardless of folding order.
package agg

import (
	"math/bits"
	"sort"

	"github.com/zeebo/errs"
)

// ErrOverflow marks a group whose total does not fit in an int64.
var ErrOverflow = errs.Class("overflow")

// Stat is the composite statistic of one group: how many values it saw and
// their total.
type Stat struct {
	Count int64
	Sum   int64

	// excess holds the bits of the exact 128-bit total above Sum, minus the
	// sign extension of Sum. It is zero whenever the total fits in an int64,
	// so in-range statistics compare equal to plain {Count, Sum} literals.
	excess int64
}

// Overflowed reports whether the exact total lies outside the int64 range,
// in which case Sum holds only its low 64 bits.
func (s Stat) Overflowed() bool {
	return s.excess != 0
}

// Check returns an ErrOverflow error if s overflowed.
func (s Stat) Check() error {
	if s.Overflowed() {
		return ErrOverflow.New("sum of %d values exceeds the int64 range", s.Count)
	}

	return nil
}

func signExt(v int64) int64 {
	return v >> 63
}

// add128 adds two totals held as (lo, hi) pairs with hi the upper 64 bits.
func add128(alo, ahi, blo, bhi int64) Stat {
	lo, carry := bits.Add64(uint64(alo), uint64(blo), 0)
	hi := ahi + bhi + int64(carry)

	return Stat{Sum: int64(lo), excess: hi - signExt(int64(lo))}
}

// Identity returns the empty statistic.
func Identity() Stat {
	return Stat{}
}

// Fold adds a single value to acc.
func Fold(acc Stat, v int64) Stat {
	s := add128(acc.Sum, acc.excess+signExt(acc.Sum), v, signExt(v))
	s.Count = acc.Count + 1

	return s
}

// Merge combines two independently folded statistics.
func Merge(a, b Stat) Stat {
	s := add128(a.Sum, a.excess+signExt(a.Sum), b.Sum, b.excess+signExt(b.Sum))
	s.Count = a.Count + b.Count

	return s
}

// FoldAll folds every value starting from the identity.
func FoldAll(values []int64) Stat {
	acc := Identity()
	for _, v := range values {
		acc = Fold(acc, v)
	}

	return acc
}

// Table maps keys to their running statistic.
//
// A Table is owned by exactly one goroutine (a map task's combiner or a reduce
// partition) and is not safe for concurrent use.
type Table struct {
	stats map[string]Stat
}

func NewTable() *Table {
	return &Table{stats: make(map[string]Stat)}
}

// Fold adds v to the statistic of key.
func (t *Table) Fold(key string, v int64) {
	t.stats[key] = Fold(t.stats[key], v)
}

// Merge combines s into the statistic of key.
func (t *Table) Merge(key string, s Stat) {
	t.stats[key] = Merge(t.stats[key], s)
}

// Get returns the statistic of key and whether key has been seen.
func (t *Table) Get(key string) (Stat, bool) {
	s, ok := t.stats[key]
	return s, ok
}

func (t *Table) Len() int {
	return len(t.stats)
}

// Keys returns every key in ascending order.
func (t *Table) Keys() []string {
	keys := make([]string, 0, len(t.stats))
	for k := range t.stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}
