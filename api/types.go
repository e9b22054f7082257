package api

// KeyValue is a single pair emitted by the map stage: the grouping key and the
// numeric measure that contributes to it.
type KeyValue struct {
	Key   string
	Value int64
}

// PartitionFunc maps a key onto one of n reduce partitions. Implementations
// must be pure: the same key and n always yield the same partition in [0, n).
type PartitionFunc func(key string, n int) int

// MalformedPolicy decides what happens to a line that fails to parse. There is
// no default: the zero value is invalid, because skipping and aborting give
// different totals.
type MalformedPolicy string

const (
	// PolicySkip drops malformed lines and counts them as discarded.
	PolicySkip MalformedPolicy = "skip"

	// PolicyAbort fails the whole job on the first malformed line.
	PolicyAbort MalformedPolicy = "abort"
)

// Valid reports whether p is one of the known policies.
func (p MalformedPolicy) Valid() bool {
	return p == PolicySkip || p == PolicyAbort
}
