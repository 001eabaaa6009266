// Package resolver implements the PC Resolver (spec §4.3): a
// sticky-cached (pc, bank) -> region lookup that gives the Call-Stack
// Engine both common-case speed and hysteresis across bank switches.
package resolver

import (
	"gbflame/internal/debug"
	"gbflame/internal/region"
)

// Resolver wraps a Region Table with a one-entry sticky cache, mirroring
// the defensive PBR/PCBank re-sync idiom in the teacher's
// cpu.FetchInstruction: trust the cached value until the cheap check
// fails, then re-derive it.
type Resolver struct {
	table   *region.Table
	current region.Region
	hasCur  bool

	log *debug.Logger
}

// New returns a Resolver over table. log may be nil, in which case the
// Resolver logs nothing.
func New(table *region.Table, log *debug.Logger) *Resolver {
	return &Resolver{table: table, log: log}
}

// Resolve returns the Region containing pc given the CPU's currently
// mapped ROM bank, or false if none covers it, and commits the hit to
// the sticky cache. A nil/zero table (e.g. when the symbol map failed
// to load) always misses, per spec §7.
//
// Most callers want Lookup instead: the Call-Stack Engine must decide
// whether a hit is an always-ignore symbol before the sticky cache is
// allowed to see it, so it calls Lookup and only Commits on the hits
// it actually uses.
func (r *Resolver) Resolve(pc uint16, currentROMBank uint8) (region.Region, bool) {
	found, ok := r.Lookup(pc, currentROMBank)
	if !ok {
		return region.Region{}, false
	}
	r.Commit(found)
	return found, true
}

// Lookup behaves like Resolve but never commits a hit to the sticky
// cache: a miss still clears it (per spec §7, a failed resolution drops the
// cache regardless of what the call stack does with the result), but
// a hit is left uncommitted for the caller to accept or discard.
func (r *Resolver) Lookup(pc uint16, currentROMBank uint8) (region.Region, bool) {
	if r.hasCur && r.current.Contains(pc) && (pc < 0x4000 || r.current.Bank == currentROMBank) {
		if r.log != nil {
			r.log.LogResolverf(debug.LogLevelTrace, "sticky hit pc=0x%04X bank=%d -> %s", pc, currentROMBank, r.current.Name)
		}
		return r.current, true
	}

	targetBank := currentROMBank
	if pc < 0x4000 {
		targetBank = 0
	}

	if r.table == nil {
		if r.log != nil {
			r.log.LogResolverf(debug.LogLevelDebug, "miss pc=0x%04X bank=%d: no region table", pc, targetBank)
		}
		r.Clear()
		return region.Region{}, false
	}

	found, ok := r.table.Lookup(targetBank, pc)
	if !ok {
		if r.log != nil {
			r.log.LogResolverf(debug.LogLevelDebug, "miss pc=0x%04X bank=%d: unmapped", pc, targetBank)
		}
		r.Clear()
		return region.Region{}, false
	}
	if r.log != nil {
		r.log.LogResolverf(debug.LogLevelTrace, "re-derived pc=0x%04X bank=%d -> %s", pc, targetBank, found.Name)
	}
	return found, true
}

// Current returns the sticky cached region, if any.
func (r *Resolver) Current() (region.Region, bool) {
	return r.current, r.hasCur
}

// Commit sets the sticky cache to reg, used by the Call-Stack Engine
// once it decides a resolved region is actually the new current one
// (a push, or a pop-to that lands on a region the resolver didn't
// itself return).
func (r *Resolver) Commit(reg region.Region) {
	r.current = reg
	r.hasCur = true
}

// Clear drops the sticky cache, per spec §7 ("resolver returns
// nothing... current region cache is cleared"). An always-ignore hit
// does not call Clear: the Call-Stack Engine leaves the cache as it was.
func (r *Resolver) Clear() {
	r.current = region.Region{}
	r.hasCur = false
	if r.log != nil {
		r.log.LogResolverf(debug.LogLevelTrace, "sticky cache cleared")
	}
}
