package lookup

// MaxAccounts is the hard cap on a single query's account set, imposed by
// the 64-bit cover bitmask.
const MaxAccounts = 64

// maxSelections bounds the number of tables the greedy cover will return,
// per the distilled algorithm's MAX_ACCOUNTS/2 selection ceiling.
const maxSelections = MaxAccounts / 2

// greedyCover walks merged in score order, greedily selecting tables that
// cover at least two previously-uncovered accounts, until either every
// account but at most one is covered or maxSelections tables have been
// chosen. A table that would cover only one new account is skipped — it is
// never worth a lookup reference on its own.
//
// The totalAccountsFound bookkeeping (incremented per matched bit as the
// table is scanned, rolled back by one when the table turns out to cover
// only a single new account) mirrors the reference routine's internal
// bitmask accounting exactly, including the early-return short-circuit
// that can fire mid-scan. TestGreedyCover_ScenarioS5 exercises the
// mid-scan early return; TestGreedyCover_EmptyWhenNoTablesCoverMoreThanOne
// exercises the single-new-account skip and its rollback.
func greedyCover(merged []ScoredTable, accounts []Address) []LookupTable {
	n := len(accounts)
	if n == 0 || n > MaxAccounts {
		return nil
	}

	mask := uint64(1)<<uint(n) - 1
	totalAccountsFound := 0
	var selected []LookupTable

	for _, st := range merged {
		if len(selected) >= maxSelections {
			break
		}
		if mask == 0 {
			break
		}

		table := st.Table
		numRemoved := 0
		firstBit := -1

		for a := 0; a < n; a++ {
			bit := uint64(1) << uint(a)
			if mask&bit == 0 {
				continue
			}
			if !table.Contains(accounts[a]) {
				continue
			}

			if numRemoved == 0 {
				firstBit = a
			} else {
				mask &^= bit
			}
			numRemoved++
			totalAccountsFound++

			if totalAccountsFound == n-1 {
				selected = append(selected, table)
				return selected
			}
		}

		switch {
		case numRemoved > 1:
			mask &^= uint64(1) << uint(firstBit)
			selected = append(selected, table)
		case numRemoved == 1:
			totalAccountsFound--
		}
	}

	return selected
}
