package shuffle

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/prxssh/groupby/api"
	"github.com/prxssh/groupby/internal/agg"
	"github.com/prxssh/groupby/pkg/hash"
)

func collect(t *testing.T, partitions int, combine bool, kvs ...api.KeyValue) *Collector {
	t.Helper()

	c := NewCollector(partitions, nil, combine)
	for _, kv := range kvs {
		require.NoError(t, c.Collect(kv))
	}

	return c
}

// stats folds every partition of s into a single key -> Stat map.
func stats(t *testing.T, s *Shuffle, partitions int) map[string]agg.Stat {
	t.Helper()

	out := make(map[string]agg.Stat)
	for p := 0; p < partitions; p++ {
		groups, err := s.Groups(p)
		require.NoError(t, err)

		for _, g := range groups {
			_, dup := out[g.Key]
			require.False(t, dup, "key %q exposed by more than one partition", g.Key)
			require.Equal(t, p, hash.FNV(g.Key, partitions))
			out[g.Key] = g.Stat()
		}
	}

	return out
}

func TestGroupsRequireSeal(t *testing.T) {
	s := New(2)
	require.NoError(t, s.Deliver(1, collect(t, 2, false, api.KeyValue{Key: "AR", Value: 1})))

	_, err := s.Groups(0)
	require.Error(t, err)
	require.True(t, Error.Has(err))

	s.Seal()
	require.True(t, s.Sealed())

	_, err = s.Groups(0)
	require.NoError(t, err)

	err = s.Deliver(2, collect(t, 2, false))
	require.Error(t, err)
}

func TestGroupsOutOfRange(t *testing.T) {
	s := New(2)
	s.Seal()

	_, err := s.Groups(2)
	require.Error(t, err)

	_, err = s.Groups(-1)
	require.Error(t, err)
}

func TestDeliverRejectsPartitionMismatch(t *testing.T) {
	s := New(3)
	require.Error(t, s.Deliver(1, collect(t, 2, false)))
}

func TestGroupsCollectEveryValue(t *testing.T) {
	s := New(3)
	require.NoError(t, s.Deliver(1, collect(t, 3, false,
		api.KeyValue{Key: "AR", Value: 100},
		api.KeyValue{Key: "AU", Value: 300},
	)))
	require.NoError(t, s.Deliver(2, collect(t, 3, false,
		api.KeyValue{Key: "AR", Value: 1100},
	)))
	s.Seal()

	require.Equal(t, map[string]agg.Stat{
		"AR": {Count: 2, Sum: 1200},
		"AU": {Count: 1, Sum: 300},
	}, stats(t, s, 3))

	parsed, discarded := s.Counts()
	require.Equal(t, int64(3), parsed)
	require.Equal(t, int64(0), discarded)
}

func TestRedeliveryReplaces(t *testing.T) {
	s := New(1)

	first := collect(t, 1, false, api.KeyValue{Key: "AR", Value: 100})
	first.Discard()
	require.NoError(t, s.Deliver(7, first))

	retry := collect(t, 1, false, api.KeyValue{Key: "AR", Value: 100})
	retry.Discard()
	require.NoError(t, s.Deliver(7, retry))
	s.Seal()

	require.Equal(t, map[string]agg.Stat{"AR": {Count: 1, Sum: 100}}, stats(t, s, 1))

	parsed, discarded := s.Counts()
	require.Equal(t, int64(1), parsed)
	require.Equal(t, int64(1), discarded)
}

func TestCombinerDoesNotChangeResult(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	var tasks [][]api.KeyValue
	for i := 0; i < 5; i++ {
		var kvs []api.KeyValue
		for j := 0; j < 200; j++ {
			kvs = append(kvs, api.KeyValue{
				Key:   fmt.Sprintf("country-%d", rng.Intn(20)),
				Value: rng.Int63n(5000),
			})
		}
		tasks = append(tasks, kvs)
	}

	run := func(partitions int, combine func(task int) bool) map[string]agg.Stat {
		s := New(partitions)
		for i, kvs := range tasks {
			require.NoError(t, s.Deliver(int64(i), collect(t, partitions, combine(i), kvs...)))
		}
		s.Seal()
		return stats(t, s, partitions)
	}

	want := run(1, func(int) bool { return false })
	require.Len(t, want, 20)

	for _, partitions := range []int{1, 2, 5, 16} {
		require.Equal(t, want, run(partitions, func(int) bool { return true }))
		require.Equal(t, want, run(partitions, func(i int) bool { return i%2 == 0 }))
	}
}

func TestCollectorPartitionError(t *testing.T) {
	c := NewCollector(2, func(string, int) int { return 5 }, false)

	err := c.Collect(api.KeyValue{Key: "AR", Value: 1})
	require.Error(t, err)
	require.True(t, hash.ErrPartition.Has(err))
	require.Equal(t, int64(0), c.Parsed())
}
