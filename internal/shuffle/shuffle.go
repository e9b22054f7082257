// Package shuffle groups map output by reduce partition and key.
//
// Map tasks fill a Collector each and Deliver it. Seal is the barrier between
// the emit phase and the fold phase: groups are only exposed after it, so a
// reducer always sees every value of a key.
package shuffle

import (
	"sort"
	"sync"

	"github.com/zeebo/errs"

	"github.com/prxssh/groupby/internal/agg"
)

var Error = errs.Class("shuffle")

// Group is every value emitted for one key. Values are raw map outputs and
// Partials are combiner pre-aggregates; both must be folded to get the
// statistic of the key. Order within either slice is not significant.
type Group struct {
	Key      string
	Values   []int64
	Partials []agg.Stat
}

// Stat folds the raw values and merges the partials.
func (g *Group) Stat() agg.Stat {
	acc := agg.FoldAll(g.Values)
	for _, p := range g.Partials {
		acc = agg.Merge(acc, p)
	}

	return acc
}

// Shuffle holds delivered map outputs until every reduce partition has
// consumed them.
type Shuffle struct {
	partitions int

	mu      sync.RWMutex
	sealed  bool
	outputs map[int64]*Collector
}

func New(partitions int) *Shuffle {
	return &Shuffle{
		partitions: partitions,
		outputs:    make(map[int64]*Collector),
	}
}

// Deliver publishes the output of map task taskID. Delivering again for the
// same task replaces the earlier output, so a re-executed task never counts
// twice.
func (s *Shuffle) Deliver(taskID int64, c *Collector) error {
	if c.partitions != s.partitions {
		return Error.New("task %d collected %d partitions, want %d", taskID, c.partitions, s.partitions)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return Error.New("task %d delivered after seal", taskID)
	}
	s.outputs[taskID] = c

	return nil
}

// Seal closes the emit phase. It is idempotent.
func (s *Shuffle) Seal() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sealed = true
}

func (s *Shuffle) Sealed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sealed
}

// Groups materializes the groups of one partition, sorted by key. It fails
// until Seal has been called.
func (s *Shuffle) Groups(partition int) ([]Group, error) {
	if partition < 0 || partition >= s.partitions {
		return nil, Error.New("partition %d out of range [0, %d)", partition, s.partitions)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.sealed {
		return nil, Error.New("partition %d requested before seal", partition)
	}

	byKey := make(map[string]*Group)
	group := func(key string) *Group {
		g, ok := byKey[key]
		if !ok {
			g = &Group{Key: key}
			byKey[key] = g
		}
		return g
	}

	for _, id := range s.taskIDs() {
		c := s.outputs[id]
		if c.combine {
			tbl := c.partial[partition]
			for _, key := range tbl.Keys() {
				st, _ := tbl.Get(key)
				g := group(key)
				g.Partials = append(g.Partials, st)
			}
			continue
		}

		for key, values := range c.raw[partition] {
			g := group(key)
			g.Values = append(g.Values, values...)
		}
	}

	groups := make([]Group, 0, len(byKey))
	for _, g := range byKey {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })

	return groups, nil
}

// Counts sums parsed and discarded lines over every delivered task.
func (s *Shuffle) Counts() (parsed, discarded int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.outputs {
		parsed += c.parsed
		discarded += c.discarded
	}

	return parsed, discarded
}

func (s *Shuffle) taskIDs() []int64 {
	ids := make([]int64, 0, len(s.outputs))
	for id := range s.outputs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}
