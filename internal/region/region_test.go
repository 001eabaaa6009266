package region

import (
	"testing"

	"gbflame/internal/symbols"
)

func mapOf(syms ...symbols.Symbol) *symbols.Map {
	return &symbols.Map{Symbols: syms}
}

func TestBuildSingleBankTiles(t *testing.T) {
	m := mapOf(
		symbols.Symbol{Name: "_a", Addr: 0x0100, Bank: 0},
		symbols.Symbol{Name: "_b", Addr: 0x0200, Bank: 0},
	)
	tab := Build(m, nil)
	regions := tab.Bank(0)
	if len(regions) != 2 {
		t.Fatalf("expected 2 regions, got %d", len(regions))
	}
	if regions[0].Addr != 0x0100 || regions[0].End != 0x01FF {
		t.Errorf("region 0 = %+v, want Addr=0x0100 End=0x01FF", regions[0])
	}
	if regions[1].Addr != 0x0200 || regions[1].End != bank0Max {
		t.Errorf("region 1 = %+v, want Addr=0x0200 End=0x%04X", regions[1], bank0Max)
	}
}

func TestBuildBankedRegionEndsAt7FFF(t *testing.T) {
	m := mapOf(symbols.Symbol{Name: "_x", Addr: 0x4100, Bank: 1})
	tab := Build(m, nil)
	regions := tab.Bank(1)
	if len(regions) != 1 || regions[0].End != bankedMax {
		t.Fatalf("got %+v, want single region ending at 0x%04X", regions, bankedMax)
	}
}

func TestLookupBoundaries(t *testing.T) {
	m := mapOf(
		symbols.Symbol{Name: "_a", Addr: 0x0100, Bank: 0},
		symbols.Symbol{Name: "_b", Addr: 0x0200, Bank: 0},
	)
	tab := Build(m, nil)

	if r, ok := tab.Lookup(0, 0x01FF); !ok || r.Name != "_a" {
		t.Errorf("pc at region end should resolve to that region, got %+v ok=%v", r, ok)
	}
	if r, ok := tab.Lookup(0, 0x0200); !ok || r.Name != "_b" {
		t.Errorf("pc at next region's Addr should resolve to next region, got %+v ok=%v", r, ok)
	}
	if _, ok := tab.Lookup(0, 0x0099); ok {
		t.Errorf("pc before any region should not resolve")
	}
}

func TestLookupDistinctBanksDoNotCollide(t *testing.T) {
	m := mapOf(
		symbols.Symbol{Name: "_boot", Addr: 0x0100, Bank: 0},
		symbols.Symbol{Name: "_x", Addr: 0x4100, Bank: 1},
	)
	tab := Build(m, nil)

	if r, ok := tab.Lookup(0, 0x0100); !ok || r.Name != "_boot" {
		t.Errorf("bank 0 lookup = %+v ok=%v, want _boot", r, ok)
	}
	if r, ok := tab.Lookup(1, 0x4100); !ok || r.Name != "_x" {
		t.Errorf("bank 1 lookup = %+v ok=%v, want _x", r, ok)
	}
	if _, ok := tab.Lookup(1, 0x0100); ok {
		t.Errorf("bank 1 should not see bank 0's region")
	}
}
