package callstack

import (
	"testing"

	"gbflame/internal/region"
	"gbflame/internal/resolver"
	"gbflame/internal/symbols"
	"gbflame/internal/trace"
)

func newEngine(syms ...symbols.Symbol) (*Engine, *trace.Emitter, *resolver.Resolver) {
	m := &symbols.Map{Symbols: syms}
	tab := region.Build(m, nil)
	r := resolver.New(tab, nil)
	names := make([]string, len(syms))
	for i, s := range syms {
		names[i] = s.Name
	}
	em := trace.New(names, nil)
	return New(r, em, m, nil), em, r
}

func TestSimpleCallPushesAndCloses(t *testing.T) {
	e, em, _ := newEngine(
		symbols.Symbol{Name: "_main", Addr: 0x0100, Bank: 0},
		symbols.Symbol{Name: "_helper", Addr: 0x0200, Bank: 0},
	)
	e.OnInstruction(0x00, 0x0100, 0, 0) // enter _main
	e.OnInstruction(0x00, 0x0200, 0, 10) // call into _helper's entry point
	if e.Depth() != 2 {
		t.Fatalf("depth = %d, want 2", e.Depth())
	}
	e.Shutdown(20)
	doc := em.Finalize(0)
	if len(doc.Events) != 4 {
		t.Fatalf("expected 4 events (2 opens, 2 closes), got %d: %+v", len(doc.Events), doc.Events)
	}
}

func TestTailCallPopsToAncestorNotIncluding(t *testing.T) {
	e, em, _ := newEngine(
		symbols.Symbol{Name: "_a", Addr: 0x0100, Bank: 1},
		symbols.Symbol{Name: "_b", Addr: 0x4100, Bank: 1},
		symbols.Symbol{Name: "_c", Addr: 0x4200, Bank: 1},
	)
	e.OnInstruction(0x00, 0x4100, 1, 0)   // enter _b
	e.OnInstruction(0x00, 0x4200, 1, 10)  // enter _c
	if e.Depth() != 2 {
		t.Fatalf("depth after two pushes = %d, want 2", e.Depth())
	}
	// Mid-region landing back inside _b (already on the stack): pop _c,
	// leave _b on top, without pushing a duplicate _b frame.
	e.OnInstruction(0x00, 0x4150, 1, 20)
	if e.Depth() != 1 {
		t.Fatalf("depth after tail-call back to _b = %d, want 1", e.Depth())
	}
	e.Shutdown(30)
	doc := em.Finalize(0)
	// opens: _b, _c ; closes: _c (tail-call pop), _b (shutdown)
	if len(doc.Events) != 4 {
		t.Fatalf("expected 4 events, got %d: %+v", len(doc.Events), doc.Events)
	}
}

func TestMidFunctionBank0LandingOutsideInterruptIsIgnored(t *testing.T) {
	e, _, _ := newEngine(
		symbols.Symbol{Name: "_x", Addr: 0x0100, Bank: 0},
		symbols.Symbol{Name: "_y", Addr: 0x0200, Bank: 0},
	)
	e.OnInstruction(0x00, 0x0250, 0, 0) // land mid-_y, never entered at _y's Addr
	if e.Depth() != 0 {
		t.Fatalf("expected spurious bank-0 mid-function landing to be ignored, depth = %d", e.Depth())
	}
}

func TestInterruptDuringFunctionPushesOverIt(t *testing.T) {
	e, em, _ := newEngine(
		symbols.Symbol{Name: "_main", Addr: 0x0100, Bank: 0},
	)
	e.OnInstruction(0x00, 0x0100, 0, 0) // enter _main
	e.OnInterrupt(0, 100)               // VBL fires mid-_main
	if e.Depth() != 2 {
		t.Fatalf("depth during interrupt = %d, want 2", e.Depth())
	}
	e.onRETI(150)
	if e.Depth() != 1 {
		t.Fatalf("depth after RETI = %d, want 1 (back to _main)", e.Depth())
	}
	e.Shutdown(200)
	doc := em.Finalize(0)
	if len(doc.Events) != 4 {
		t.Fatalf("expected 4 events, got %d: %+v", len(doc.Events), doc.Events)
	}
}

func TestRETIWithEmptyInterruptStackIsNoOp(t *testing.T) {
	e, em, _ := newEngine(symbols.Symbol{Name: "_main", Addr: 0x0100, Bank: 0})
	e.OnInstruction(0x00, 0x0100, 0, 0)
	e.onRETI(50) // spurious: no interrupt was ever dispatched
	if e.Depth() != 1 {
		t.Fatalf("spurious RETI must not touch the call stack, depth = %d", e.Depth())
	}
	e.Shutdown(60)
	doc := em.Finalize(0)
	if len(doc.Events) != 2 {
		t.Fatalf("expected 2 events (the untouched _main open/close), got %d: %+v", len(doc.Events), doc.Events)
	}
}

func TestDefensiveResetClosesStaleInterruptOnNewDispatch(t *testing.T) {
	e, em, _ := newEngine(symbols.Symbol{Name: "_main", Addr: 0x0100, Bank: 0})
	e.OnInstruction(0x00, 0x0100, 0, 0)
	e.OnInterrupt(0, 10) // VBL, never explicitly RETI'd
	if e.Depth() != 2 {
		t.Fatalf("depth after first interrupt = %d, want 2", e.Depth())
	}
	e.OnInterrupt(1, 20) // LCD dispatches before VBL returned: defensive reset
	if e.Depth() != 2 {
		t.Fatalf("depth after defensive reset + new dispatch = %d, want 2", e.Depth())
	}
	e.Shutdown(30)
	doc := em.Finalize(0)
	// opens: _main, VBL, LCD ; closes: VBL (reset), _main+LCD at shutdown... order matters less than count.
	if len(doc.Events) != 6 {
		t.Fatalf("expected 6 events, got %d: %+v", len(doc.Events), doc.Events)
	}
}

func TestAlwaysIgnoredSymbolLeavesCacheUntouched(t *testing.T) {
	e, em, r := newEngine(
		symbols.Symbol{Name: "_main", Addr: 0x0100, Bank: 0},
		symbols.Symbol{Name: ".add_VBL", Addr: 0x0200, Bank: 0},
	)
	e.OnInstruction(0x00, 0x0100, 0, 0) // enter _main, commits sticky cache
	cur, _ := r.Current()
	e.OnInstruction(0x00, 0x0200, 0, 10) // lands on the always-ignore helper
	if e.Depth() != 1 {
		t.Fatalf("ignored symbol must not push a frame, depth = %d", e.Depth())
	}
	after, ok := r.Current()
	if !ok || after != cur {
		t.Fatalf("sticky cache must be untouched by an always-ignore hit, got %+v", after)
	}
	e.Shutdown(20)
	doc := em.Finalize(0)
	if len(doc.Events) != 2 {
		t.Fatalf("expected only _main's open/close, got %d: %+v", len(doc.Events), doc.Events)
	}
}

func TestBankSwitchDoesNotFalselyMergeDistinctRegions(t *testing.T) {
	e, em, _ := newEngine(
		symbols.Symbol{Name: "_boot", Addr: 0x0100, Bank: 0},
		symbols.Symbol{Name: "_bank1fn", Addr: 0x4100, Bank: 1},
		symbols.Symbol{Name: "_bank2fn", Addr: 0x4100, Bank: 2},
	)
	e.OnInstruction(0x00, 0x0100, 0, 0)
	e.OnInstruction(0x00, 0x4100, 1, 10) // enter bank 1's function at the same offset
	if e.Depth() != 2 {
		t.Fatalf("depth = %d, want 2", e.Depth())
	}
	e.OnInstruction(0x00, 0x4100, 2, 20) // switch to bank 2: same offset, different symbol
	if e.Depth() != 3 {
		t.Fatalf("bank switch to a same-offset different symbol must push, depth = %d, want 3", e.Depth())
	}
	e.Shutdown(30)
	doc := em.Finalize(0)
	if len(doc.Events) != 6 {
		t.Fatalf("expected 6 events, got %d: %+v", len(doc.Events), doc.Events)
	}
}

func TestShutdownClosesRemainingFramesLIFO(t *testing.T) {
	e, em, _ := newEngine(
		symbols.Symbol{Name: "_a", Addr: 0x0100, Bank: 0},
		symbols.Symbol{Name: "_b", Addr: 0x0200, Bank: 0},
	)
	e.OnInstruction(0x00, 0x0100, 0, 0)
	e.OnInstruction(0x00, 0x0200, 0, 10)
	e.Shutdown(50)
	doc := em.Finalize(0)
	if len(doc.Events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(doc.Events))
	}
	// Last two events must be closes, innermost (_b) before outermost (_a).
	last := doc.Events[len(doc.Events)-1]
	secondLast := doc.Events[len(doc.Events)-2]
	if last.Type != trace.Close || secondLast.Type != trace.Close {
		t.Fatalf("expected the final two events to be closes, got %+v then %+v", secondLast, last)
	}
	if secondLast.Frame != 1 || last.Frame != 0 {
		t.Errorf("expected _b (frame 1) to close before _a (frame 0), got %+v then %+v", secondLast, last)
	}
}

func TestMaxDepthTracksDeepestNesting(t *testing.T) {
	e, _, _ := newEngine(
		symbols.Symbol{Name: "_a", Addr: 0x0100, Bank: 0},
		symbols.Symbol{Name: "_b", Addr: 0x0200, Bank: 0},
	)
	e.OnInstruction(0x00, 0x0100, 0, 0)
	e.OnInstruction(0x00, 0x0200, 0, 10)
	e.Shutdown(20)
	if e.MaxDepth() != 2 {
		t.Errorf("MaxDepth() = %d, want 2", e.MaxDepth())
	}
}
