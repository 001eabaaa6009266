// Package callstack implements the Call-Stack Engine (spec §4.4): a
// shadow call stack plus a parallel interrupt stack, fed one CPU
// instruction at a time, that decides whether to push a new frame,
// pop back to an ancestor already on the stack, or ignore the
// instruction entirely. It is the profiling core's busiest package —
// every push and pop is mirrored into the trace.Emitter as an open or
// close event.
//
// Grounded on the teacher's Debugger.PushCallFrame/PopCallFrame/
// GetCallStack (append/truncate on a plain slice, no pointers between
// frames) and CPU's handleInterrupt/executeRET save-and-restore shape,
// generalized from a single return-address stack into the stack of
// symbol-attributed frames the profiler needs.
package callstack

import (
	"gbflame/internal/debug"
	"gbflame/internal/region"
	"gbflame/internal/resolver"
	"gbflame/internal/symbols"
	"gbflame/internal/trace"
)

// RETI is the Game Boy's "return from interrupt" opcode. It is the
// only control-transfer opcode the engine tracks explicitly; every
// other CALL/RET/JP is inferred from PC movement through the Region
// Table instead.
const RETI = 0xD9

// Frame is one entry in the shadow call stack, matching the data
// model spec §3 assigns it: a stable symbol index, the global cycle
// it was pushed at, and its depth at push time.
type Frame struct {
	SymbolIndex symbols.Index
	EntryCycle  uint64
	Indent      int
}

// alwaysIgnore names resolve to regions the engine treats as if
// nothing had been found: helper routines whose bodies are entered
// and left constantly enough (ISR trampolines, busy-wait tails) that
// tracking them would just add call-stack noise.
var alwaysIgnore = map[string]bool{
	".add_VBL":     true,
	".add_int":     true,
	"_display_off": true,
}

// Engine is the Call-Stack Engine. It is not safe for concurrent use;
// the profiling core drives it from a single instruction loop.
type Engine struct {
	resolver *resolver.Resolver
	trace    *trace.Emitter

	stack      []Frame
	interrupts []int // stack indices where each open interrupt frame lives, oldest first

	ignored map[symbols.Index]bool

	maxDepth int

	log *debug.Logger
}

// New returns an Engine that resolves PCs via r and emits open/close
// events into em. syms is used once, at construction, to pre-resolve
// the always-ignore symbol names into stable indices. log may be nil,
// in which case the Engine logs nothing.
func New(r *resolver.Resolver, em *trace.Emitter, syms *symbols.Map, log *debug.Logger) *Engine {
	ignored := make(map[symbols.Index]bool, len(alwaysIgnore))
	for i, s := range syms.Symbols {
		if alwaysIgnore[s.Name] {
			ignored[symbols.Index(i)] = true
		}
	}
	return &Engine{resolver: r, trace: em, ignored: ignored, log: log}
}

// Depth returns the current call-stack depth (interrupt frames
// included; they live on the same stack).
func (e *Engine) Depth() int {
	return len(e.stack)
}

// MaxDepth returns the deepest the call stack has reached over the
// engine's lifetime, for the shutdown summary report.
func (e *Engine) MaxDepth() int {
	return e.maxDepth
}

// OnInstruction feeds one executed instruction to the engine. opcode
// is examined only for RETI; pc and bank locate the instruction in
// the Region Table; cycle is the global cycle count at execution.
func (e *Engine) OnInstruction(opcode byte, pc uint16, bank uint8, cycle uint64) {
	if opcode == RETI {
		e.onRETI(cycle)
		return
	}

	found, ok := e.resolver.Lookup(pc, bank)
	if !ok {
		return
	}
	if e.ignored[found.Symbol] {
		// An ignored hit must NOT touch the resolver's sticky cache,
		// per spec §4.4 — there is nothing further to do either way.
		if e.log != nil {
			e.log.LogCallStackf(debug.LogLevelTrace, "ignored symbol %q at pc=0x%04X", found.Name, pc)
		}
		return
	}

	cur, hasCur := e.resolver.Current()
	if hasCur && cur == found {
		return
	}

	if pc == found.Addr {
		e.push(found, cycle)
		e.resolver.Commit(found)
		return
	}

	// Mid-region landing.
	if idx, onStack := e.indexOf(found.Symbol); onStack {
		e.popToButNotIncluding(idx, cycle)
		e.resolver.Commit(found)
		return
	}
	if len(e.interrupts) > 0 {
		// Unknown interrupt context: don't synthesize a frame for it.
		return
	}
	if pc >= 0x4000 {
		e.push(found, cycle)
		e.resolver.Commit(found)
		return
	}
	// Mid-function landing in bank 0 outside any interrupt: spurious.
}

// OnInterrupt feeds an interrupt dispatch to the engine. vector is the
// dispatched interrupt's symbol index — one of the five fixed
// interrupt-vector symbols the Symbol Map prepends, so it is also a
// valid index into trace.Emitter's frame list.
func (e *Engine) OnInterrupt(vector symbols.Index, cycle uint64) {
	// Defensive reset: close out any interrupts already in flight, as
	// if each had received its own RETI, before starting the new one.
	if len(e.interrupts) > 0 && e.log != nil {
		e.log.LogCallStackf(debug.LogLevelWarning, "interrupt dispatch with %d already in flight; defensively unwinding", len(e.interrupts))
	}
	for len(e.interrupts) > 0 {
		e.unwindOneInterrupt(cycle)
	}

	if e.log != nil {
		e.log.LogCallStackf(debug.LogLevelDebug, "dispatch interrupt vector=%d cycle=%d", vector, cycle)
	}
	frame := Frame{SymbolIndex: vector, EntryCycle: cycle, Indent: len(e.stack)}
	e.stack = append(e.stack, frame)
	e.interrupts = append(e.interrupts, len(e.stack)-1)
	e.trace.OpenFrame(int(vector), cycle)
	e.trackDepth()
}

// onRETI unwinds exactly one interrupt level, per the decided
// interpretation of the open RETI-scope question (spec §9): hardware
// returns from exactly one interrupt per RETI, so the engine does not
// cascade through the whole interrupt stack the way the reference
// implementation does.
func (e *Engine) onRETI(cycle uint64) {
	if len(e.interrupts) == 0 {
		// Spurious RETI: silently ignored, stacks unchanged (spec §7/§8).
		return
	}
	e.unwindOneInterrupt(cycle)
}

// unwindOneInterrupt closes every frame above the topmost open
// interrupt, then closes that interrupt frame itself and drops it
// from the interrupt stack.
func (e *Engine) unwindOneInterrupt(cycle uint64) {
	topPos := e.interrupts[len(e.interrupts)-1]
	for len(e.stack)-1 > topPos {
		e.pop(cycle)
	}
	e.pop(cycle)
	e.interrupts = e.interrupts[:len(e.interrupts)-1]
}

// Shutdown closes every remaining frame in LIFO order. Callers should
// do this once, after the last instruction of the profiled run.
func (e *Engine) Shutdown(cycle uint64) {
	for len(e.stack) > 0 {
		e.pop(cycle)
	}
}

func (e *Engine) push(r region.Region, cycle uint64) {
	frame := Frame{SymbolIndex: r.Symbol, EntryCycle: cycle, Indent: len(e.stack)}
	e.stack = append(e.stack, frame)
	e.trace.OpenFrame(int(r.Symbol), cycle)
	e.trackDepth()
	if e.log != nil {
		e.log.LogCallStackf(debug.LogLevelDebug, "push %q depth=%d cycle=%d", r.Name, len(e.stack), cycle)
	}
}

// pop closes the top frame. Callers must not call it on an empty
// stack; every call site here is already guarded by a length check.
func (e *Engine) pop(cycle uint64) {
	top := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	e.trace.CloseFrame(int(top.SymbolIndex), cycle, top.EntryCycle)
	if e.log != nil {
		e.log.LogCallStackf(debug.LogLevelDebug, "pop symbol=%d depth=%d cycle=%d", top.SymbolIndex, len(e.stack), cycle)
	}
}

// popToButNotIncluding closes every frame above idx, leaving the
// frame at idx on top of the stack. Any open interrupt frame among
// those popped is dropped from the interrupt stack too, so a later
// RETI doesn't unwind a frame that's already gone.
func (e *Engine) popToButNotIncluding(idx int, cycle uint64) {
	for len(e.stack)-1 > idx {
		e.pop(cycle)
	}
	e.dropInterruptsAbove(idx)
}

// dropInterruptsAbove removes every recorded interrupt-frame position
// above idx, keeping relative order among the survivors.
func (e *Engine) dropInterruptsAbove(idx int) {
	kept := e.interrupts[:0]
	for _, pos := range e.interrupts {
		if pos <= idx {
			kept = append(kept, pos)
		}
	}
	e.interrupts = kept
}

// indexOf returns the stack position of the topmost frame for symbol,
// searching from the top down since a tail-call target is almost
// always the nearest ancestor with that symbol.
func (e *Engine) indexOf(symbol symbols.Index) (int, bool) {
	for i := len(e.stack) - 1; i >= 0; i-- {
		if e.stack[i].SymbolIndex == symbol {
			return i, true
		}
	}
	return 0, false
}

func (e *Engine) trackDepth() {
	if len(e.stack) > e.maxDepth {
		e.maxDepth = len(e.stack)
	}
}
