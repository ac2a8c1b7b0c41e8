package lookup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreWindow_KeepsTopNDescending(t *testing.T) {
	a := accountSet(5)
	t1 := newSetTable('1', a[0])                         // score 1
	t2 := newSetTable('2', a[0], a[1], a[2])              // score 3
	t3 := newSetTable('3', a[0], a[1])                    // score 2
	t4 := newSetTable('4', a[0], a[1], a[2], a[3], a[4])  // score 5

	buf := scoreWindow([]LookupTable{t1, t2, t3, t4}, a, 2, 0)
	require.Len(t, buf, 2)
	assert.Equal(t, uint32(5), buf[0].Score)
	assert.Equal(t, t4, buf[0].Table)
	assert.Equal(t, uint32(3), buf[1].Score)
	assert.Equal(t, t2, buf[1].Table)
}

func TestScoreWindow_RejectsAtOrBelowMinScore(t *testing.T) {
	a := accountSet(3)
	t1 := newSetTable('1', a[0])

	buf := scoreWindow([]LookupTable{t1}, a, 4, 1)
	assert.Empty(t, buf, "score 1 must be rejected when minScore is 1")

	buf = scoreWindow([]LookupTable{t1}, a, 4, 0)
	assert.Len(t, buf, 1)
}

func TestScoreAllTables_SplitsIntoWindowsAndMerges(t *testing.T) {
	a := accountSet(4)
	tables := []LookupTable{
		newSetTable('1', a[0]),
		newSetTable('2', a[0], a[1]),
		newSetTable('3', a[0], a[1], a[2]),
		newSetTable('4', a[0], a[1], a[2], a[3]),
	}

	merged, err := scoreAllTables(context.Background(), tables, a, 2, 4, 0)
	require.NoError(t, err)
	require.Len(t, merged, 4)
	for i := 1; i < len(merged); i++ {
		assert.GreaterOrEqual(t, merged[i-1].Score, merged[i].Score)
	}
	assert.Equal(t, uint32(4), merged[0].Score)
}
