// Package hash assigns grouping keys to reduce partitions.
package hash

import (
	"hash/fnv"

	"github.com/zeebo/errs"

	"github.com/prxssh/groupby/api"
)

// ErrPartition marks a partition assignment that fell outside [0, n). It can
// only happen with a broken PartitionFunc and is never retried.
var ErrPartition = errs.Class("partition")

// FNV is the default api.PartitionFunc: FNV-1a of the key modulo n.
func FNV(key string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(key))

	// mask with 0x7fffffff to ensure non-negative number before mod
	return int(h.Sum32()&0x7fffffff) % n
}

// Assign routes key with fn (FNV when nil) and checks the result is a valid
// partition index.
func Assign(fn api.PartitionFunc, key string, n int) (int, error) {
	if n <= 0 {
		return 0, ErrPartition.New("partition count must be positive, got %d", n)
	}
	if fn == nil {
		fn = FNV
	}

	p := fn(key, n)
	if p < 0 || p >= n {
		return 0, ErrPartition.New("key %q assigned to partition %d, want [0, %d)", key, p, n)
	}

	return p, nil
}
