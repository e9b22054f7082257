package hash

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFNVIsStable(t *testing.T) {
	keys := []string{"", "Argentina", "Australia", "United States", "Österreich"}

	for _, n := range []int{1, 2, 7, 64} {
		for _, key := range keys {
			first := FNV(key, n)
			require.GreaterOrEqual(t, first, 0)
			require.Less(t, first, n)

			for i := 0; i < 10; i++ {
				require.Equal(t, first, FNV(key, n), "key %q n %d", key, n)
			}
		}
	}
}

func TestFNVSpreadsKeys(t *testing.T) {
	const n = 8
	seen := make(map[int]bool)

	for i := 0; i < 1000; i++ {
		seen[FNV(fmt.Sprintf("key-%d", i), n)] = true
	}

	require.Len(t, seen, n)
}

func TestAssign(t *testing.T) {
	tests := []struct {
		name    string
		fn      func(string, int) int
		n       int
		want    int
		wantErr bool
	}{
		{
			name: "default partitioner",
			n:    4,
			want: FNV("AR", 4),
		},
		{
			name: "custom partitioner",
			fn:   func(string, int) int { return 2 },
			n:    3,
			want: 2,
		},
		{
			name:    "out of range",
			fn:      func(string, int) int { return 3 },
			n:       3,
			wantErr: true,
		},
		{
			name:    "negative",
			fn:      func(string, int) int { return -1 },
			n:       3,
			wantErr: true,
		},
		{
			name:    "zero partitions",
			n:       0,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Assign(tt.fn, "AR", tt.n)
			if tt.wantErr {
				require.Error(t, err)
				require.True(t, ErrPartition.Has(err))
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
