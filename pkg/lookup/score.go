package lookup

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"
)

// scoreWindow computes the top `limit` tables in tables by score against
// accounts, rejecting any table scoring at or below minScore. It maintains
// a descending-sorted bounded buffer: insertion shifts lower entries down,
// and the buffer's last (lowest) score gives an O(1) reject threshold once
// full. This mirrors the distilled algorithm exactly; a general-purpose
// heap would not preserve the stable "insertion order among equal scores"
// tie-break the merge step relies on.
func scoreWindow(tables []LookupTable, accounts []Address, limit int, minScore uint32) []ScoredTable {
	if limit <= 0 {
		return nil
	}
	buf := make([]ScoredTable, 0, limit)
	for _, t := range tables {
		var score uint32
		for _, a := range accounts {
			if t.Contains(a) {
				score++
			}
		}
		if score <= minScore {
			continue
		}
		if len(buf) == limit && score <= buf[len(buf)-1].Score {
			continue
		}
		insertAt := len(buf)
		for i, st := range buf {
			if score > st.Score {
				insertAt = i
				break
			}
		}
		buf = append(buf, ScoredTable{})
		copy(buf[insertAt+1:], buf[insertAt:])
		buf[insertAt] = ScoredTable{Score: score, Table: t}
		if len(buf) > limit {
			buf = buf[:limit]
		}
	}
	return buf
}

// scoreAllTables partitions tables into up to numWindows roughly equal
// contiguous windows and scores each in parallel, per Step 1 of the
// distilled algorithm.
func scoreAllTables(ctx context.Context, tables []LookupTable, accounts []Address, numWindows int, limitPerWindow int, minScore uint32) ([]ScoredTable, error) {
	if len(tables) == 0 {
		return nil, nil
	}
	if numWindows <= 0 {
		numWindows = 1
	}
	if numWindows > len(tables) {
		numWindows = len(tables)
	}

	windowSize := (len(tables) + numWindows - 1) / numWindows
	results := make([][]ScoredTable, numWindows)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < numWindows; w++ {
		w := w
		start := w * windowSize
		if start >= len(tables) {
			continue
		}
		end := start + windowSize
		if end > len(tables) {
			end = len(tables)
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[w] = scoreWindow(tables[start:end], accounts, limitPerWindow, minScore)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []ScoredTable
	for _, r := range results {
		merged = append(merged, r...)
	}
	// Step 2: concatenate per-window results and stable-sort by score
	// descending, so equal scores preserve the window-concatenation order.
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	return merged, nil
}
