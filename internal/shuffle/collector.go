package shuffle

import (
	"github.com/prxssh/groupby/api"
	"github.com/prxssh/groupby/internal/agg"
	"github.com/prxssh/groupby/pkg/hash"
)

// Collector buffers the output of a single map task, bucketed by reduce
// partition. It is owned by the goroutine running that task.
type Collector struct {
	partitions  int
	partitioner api.PartitionFunc
	combine     bool

	// raw holds emitted values per partition and key when not combining.
	raw []map[string][]int64

	// partial holds pre-folded statistics per partition when combining.
	partial []*agg.Table

	parsed    int64
	discarded int64
}

// NewCollector returns a Collector for the given partition count. A nil fn
// selects hash.FNV. With combine set, values sharing a key are folded locally
// and only the partial statistic is shuffled.
func NewCollector(partitions int, fn api.PartitionFunc, combine bool) *Collector {
	c := &Collector{
		partitions:  partitions,
		partitioner: fn,
		combine:     combine,
	}

	if combine {
		c.partial = make([]*agg.Table, partitions)
		for i := range c.partial {
			c.partial[i] = agg.NewTable()
		}
	} else {
		c.raw = make([]map[string][]int64, partitions)
		for i := range c.raw {
			c.raw[i] = make(map[string][]int64)
		}
	}

	return c
}

// Collect routes kv to its partition. The only possible error is a
// hash.ErrPartition from a misbehaving partitioner.
func (c *Collector) Collect(kv api.KeyValue) error {
	p, err := hash.Assign(c.partitioner, kv.Key, c.partitions)
	if err != nil {
		return err
	}

	if c.combine {
		c.partial[p].Fold(kv.Key, kv.Value)
	} else {
		c.raw[p][kv.Key] = append(c.raw[p][kv.Key], kv.Value)
	}
	c.parsed++

	return nil
}

// Discard records a line that was skipped as malformed.
func (c *Collector) Discard() {
	c.discarded++
}

func (c *Collector) Parsed() int64 {
	return c.parsed
}

func (c *Collector) Discarded() int64 {
	return c.discarded
}
