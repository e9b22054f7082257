package agg

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFold(t *testing.T) {
	tests := []struct {
		name   string
		values []int64
		want   Stat
	}{
		{
			name: "empty",
			want: Stat{},
		},
		{
			name:   "single value",
			values: []int64{1200},
			want:   Stat{Count: 1, Sum: 1200},
		},
		{
			name:   "duplicates count once each",
			values: []int64{100, 100, 100},
			want:   Stat{Count: 3, Sum: 300},
		},
		{
			name:   "negative values",
			values: []int64{-50, 20, 30},
			want:   Stat{Count: 3, Sum: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, FoldAll(tt.values))
		})
	}
}

func TestMergeMatchesFoldForEverySplit(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for round := 0; round < 200; round++ {
		values := make([]int64, rng.Intn(30))
		for i := range values {
			values[i] = rng.Int63n(10000) - 5000
		}

		var a, b []int64
		for _, v := range values {
			if rng.Intn(2) == 0 {
				a = append(a, v)
			} else {
				b = append(b, v)
			}
		}

		whole := FoldAll(values)
		require.Equal(t, whole, Merge(FoldAll(a), FoldAll(b)))
		require.Equal(t, whole, Merge(FoldAll(b), FoldAll(a)))
		require.Equal(t, whole, Merge(whole, Identity()))
	}
}

func TestFoldOrderDoesNotMatter(t *testing.T) {
	values := []int64{5, 17, -3, 42, 8, 8}
	want := FoldAll(values)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		shuffled := append([]int64(nil), values...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		require.Equal(t, want, FoldAll(shuffled))
	}
}

func TestTable(t *testing.T) {
	tbl := NewTable()
	tbl.Fold("AU", 300)
	tbl.Fold("AR", 100)
	tbl.Merge("AR", Stat{Count: 1, Sum: 1100})

	require.Equal(t, 2, tbl.Len())
	require.Equal(t, []string{"AR", "AU"}, tbl.Keys())

	ar, ok := tbl.Get("AR")
	require.True(t, ok)
	require.Equal(t, Stat{Count: 2, Sum: 1200}, ar)

	_, ok = tbl.Get("BR")
	require.False(t, ok)
}

func TestOverflow(t *testing.T) {
	s := FoldAll([]int64{math.MaxInt64, 1})
	require.True(t, s.Overflowed())
	require.Equal(t, int64(2), s.Count)
	require.True(t, ErrOverflow.Has(s.Check()))

	// Folding back into range clears the overflow.
	s = Fold(s, -1)
	require.False(t, s.Overflowed())
	require.NoError(t, s.Check())
	require.Equal(t, Stat{Count: 3, Sum: math.MaxInt64}, s)

	neg := FoldAll([]int64{math.MinInt64, -1})
	require.True(t, neg.Overflowed())
	require.Error(t, neg.Check())
}

func TestOverflowIndependentOfGrouping(t *testing.T) {
	values := []int64{math.MaxInt64, math.MaxInt64, math.MinInt64, math.MinInt64, 7}
	whole := FoldAll(values)
	require.False(t, whole.Overflowed())
	require.Equal(t, Stat{Count: 5, Sum: 5}, whole)

	// Each partial overflows on its own, the merged total does not.
	a := FoldAll(values[:2])
	b := FoldAll(values[2:])
	require.True(t, a.Overflowed())
	require.True(t, b.Overflowed())
	require.Equal(t, whole, Merge(a, b))
	require.Equal(t, whole, Merge(b, a))

	tbl := NewTable()
	tbl.Merge("big", a)
	tbl.Merge("big", b)
	got, _ := tbl.Get("big")
	require.Equal(t, whole, got)
}
