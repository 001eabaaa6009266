// Package region derives the per-bank Region Table from a Symbol Map
// (spec §4.2): symbols are grouped by bank and widened into
// contiguous, gap-filling address ranges.
package region

import (
	"sort"

	"gbflame/internal/debug"
	"gbflame/internal/symbols"
)

// Region is a contiguous address range within one bank, attributed to
// the Symbol at symbols.Index.
type Region struct {
	Symbol symbols.Index
	Name   string
	Addr   uint16
	Bank   uint8
	End    uint16
}

// Contains reports whether pc falls within [Addr, End], inclusive.
func (r Region) Contains(pc uint16) bool {
	return pc >= r.Addr && pc <= r.End
}

// Table is the built Region Table, indexed by bank for lookup.
type Table struct {
	byBank map[uint8][]Region
}

const bank0Max = 0x3FFF
const bankedMax = 0x7FFF

// bankMax returns the highest address a bank's regions may tile to.
func bankMax(bank uint8) uint16 {
	if bank == 0 {
		return bank0Max
	}
	return bankedMax
}

// Build groups m's symbols by bank, sorts each bank's symbols by
// address, and widens each into a Region whose End runs up to the
// next symbol's Addr-1 (or the bank's max address for the last symbol
// in the bank). log may be nil, in which case no build summary is
// logged.
func Build(m *symbols.Map, log *debug.Logger) *Table {
	grouped := make(map[uint8][]int) // bank -> symbol indices
	for i, s := range m.Symbols {
		grouped[s.Bank] = append(grouped[s.Bank], i)
	}

	t := &Table{byBank: make(map[uint8][]Region, len(grouped))}
	for bank, indices := range grouped {
		sort.Slice(indices, func(a, b int) bool {
			return m.Symbols[indices[a]].Addr < m.Symbols[indices[b]].Addr
		})

		max := bankMax(bank)
		regions := make([]Region, len(indices))
		for pos, idx := range indices {
			s := m.Symbols[idx]
			end := max
			if pos+1 < len(indices) {
				end = m.Symbols[indices[pos+1]].Addr - 1
			}
			regions[pos] = Region{
				Symbol: symbols.Index(idx),
				Name:   s.Name,
				Addr:   s.Addr,
				Bank:   s.Bank,
				End:    end,
			}
		}
		t.byBank[bank] = regions
		if log != nil {
			log.LogRegionf(debug.LogLevelDebug, "bank %d: %d regions built from %d symbols", bank, len(regions), len(indices))
		}
	}
	if log != nil {
		log.LogRegionf(debug.LogLevelInfo, "region table built: %d banks, %d symbols total", len(t.byBank), len(m.Symbols))
	}
	return t
}

// Lookup returns the unique Region in bank containing pc, or false if
// none covers it. A linear scan is acceptable at the symbol-table
// sizes this profiler targets; Regions within a bank are sorted by
// Addr so a binary search would also be correct here.
func (t *Table) Lookup(bank uint8, pc uint16) (Region, bool) {
	for _, r := range t.byBank[bank] {
		if r.Contains(pc) {
			return r, true
		}
	}
	return Region{}, false
}

// Bank returns the sorted Region slice for one bank (for tooling and
// tests; the profiling core should use Lookup).
func (t *Table) Bank(bank uint8) []Region {
	return t.byBank[bank]
}
