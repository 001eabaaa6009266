// Package symbols builds the profiler's Symbol Map from an SDCC-style
// .noi linker map: one DEF/DEFL line per symbol, "DEF name = $hex".
package symbols

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"gbflame/internal/debug"
)

// Symbol is one entry in the Symbol Map. Addr is the 16-bit CPU
// address; Bank is 0 for addresses below 0x4000 regardless of the
// bank encoded in the source line.
type Symbol struct {
	Name string
	Addr uint16
	Bank uint8
}

// Index is the stable position of a Symbol within a Map; it is the
// value every other profiling-core package uses to refer to a symbol.
type Index int

// Map is the deduplicated, filtered, ordered list of Symbols produced
// by Parse. Position in Symbols is the symbol's Index.
type Map struct {
	Symbols []Symbol
}

// interruptVectors are prepended to every Map so their indices are
// stable and low, matching spec §3/§4.1.
var interruptVectors = []Symbol{
	{Name: "[INTERRUPT] VBL", Addr: 0x40, Bank: 0},
	{Name: "[INTERRUPT] LCD", Addr: 0x48, Bank: 0},
	{Name: "[INTERRUPT] TIM", Addr: 0x50, Bank: 0},
	{Name: "[INTERRUPT] SIO", Addr: 0x58, Bank: 0},
	{Name: "[INTERRUPT] JOY", Addr: 0x60, Bank: 0},
}

// acceptPatterns and rejectPatterns are glob-style filters (the only
// metacharacter is '*'), matched against the raw symbol name before
// canonicalization.
var acceptPatterns = []string{
	"_*", "F*", ".*ISR", ".remove_*", ".add_*", ".mod", ".div",
}

var rejectPatterns = []string{
	"*_REG*", "*_rRAM*", "*_rROM*", "*_rMBC*",
	"*__start_save*", "*___bank_*", "*___func_*", "*___mute_mask_*",
}

var defLineRE = regexp.MustCompile(`^DEFL?\s+(\S+)\s*=\s*\$([0-9A-Fa-f]+)\s*$`)

// Parse reads a linker map file and returns its Symbol Map. Parse
// never returns an error for malformed or missing input — per spec
// §7, a missing or invalid symbol table is non-fatal and leaves the
// engine to run with interrupt-vector-only resolution; callers that
// want to surface that to the host should inspect len(Map.Symbols).
// log may be nil, in which case parsing proceeds silently.
func Parse(r io.Reader, log *debug.Logger) (*Map, error) {
	m := &Map{Symbols: append([]Symbol(nil), interruptVectors...)}
	seen := make(map[bankAddr]bool, len(interruptVectors))
	for _, s := range interruptVectors {
		seen[bankAddr{s.Bank, s.Addr}] = true
	}

	var lines, rejected, duplicates int
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines++
		name, hexAddr, ok := parseDefLine(line)
		if !ok {
			rejected++
			continue
		}
		sym, ok := decode(name, hexAddr)
		if !ok {
			rejected++
			continue
		}
		key := bankAddr{sym.Bank, sym.Addr}
		if seen[key] {
			duplicates++
			if log != nil {
				log.LogSymbolsf(debug.LogLevelTrace, "dropping duplicate symbol %q at bank=%d addr=0x%04X", sym.Name, sym.Bank, sym.Addr)
			}
			continue
		}
		seen[key] = true
		m.Symbols = append(m.Symbols, sym)
	}
	if err := scanner.Err(); err != nil {
		if log != nil {
			log.LogSymbolsf(debug.LogLevelError, "reading linker map: %v", err)
		}
		return m, fmt.Errorf("symbols: reading linker map: %w", err)
	}
	if log != nil {
		log.LogSymbolsf(debug.LogLevelInfo, "parsed %d symbols from %d lines (%d rejected, %d duplicate, %d interrupt vectors)",
			len(m.Symbols), lines, rejected, duplicates, len(interruptVectors))
	}
	return m, nil
}

type bankAddr struct {
	bank uint8
	addr uint16
}

func parseDefLine(line string) (name string, hexAddr uint32, ok bool) {
	match := defLineRE.FindStringSubmatch(line)
	if match == nil {
		return "", 0, false
	}
	v, err := strconv.ParseUint(match[2], 16, 32)
	if err != nil {
		return "", 0, false
	}
	return match[1], uint32(v), true
}

// decode applies the accept/reject glob rules to the raw symbol name,
// then canonicalizes it and splits the raw hex address into (addr,
// bank) per spec §4.1. Filtering runs against the raw name: the F…$
// mangling prefix is part of what "F*" matches.
func decode(raw string, hexAddr uint32) (Symbol, bool) {
	if !acceptName(raw) {
		return Symbol{}, false
	}
	name := canonicalize(raw)

	addr := uint16(hexAddr & 0xFFFF)
	var bank uint8
	if addr >= 0x4000 {
		bank = uint8((hexAddr >> 16) & 0xFF)
	}
	return Symbol{Name: name, Addr: addr, Bank: bank}, true
}

// canonicalize strips a leading "F...$" prefix and any suffix starting
// at the first '$', matching SDCC's habit of mangling local labels as
// "F<function>$<label>$<n>".
func canonicalize(raw string) string {
	name := raw
	if strings.HasPrefix(name, "F") {
		if dollar := strings.IndexByte(name, '$'); dollar >= 0 {
			name = name[dollar+1:]
		}
	}
	if dollar := strings.IndexByte(name, '$'); dollar >= 0 {
		name = name[:dollar]
	}
	return name
}

func acceptName(name string) bool {
	accepted := false
	for _, p := range acceptPatterns {
		if globMatch(p, name) {
			accepted = true
			break
		}
	}
	if !accepted {
		return false
	}
	for _, p := range rejectPatterns {
		if globMatch(p, name) {
			return false
		}
	}
	return true
}

// globMatch reports whether name matches pattern, where '*' is the
// only wildcard (matches any run of characters, including none).
func globMatch(pattern, name string) bool {
	var b strings.Builder
	b.WriteByte('^')
	parts := strings.Split(pattern, "*")
	for i, part := range parts {
		if i > 0 {
			b.WriteString(".*")
		}
		b.WriteString(regexp.QuoteMeta(part))
	}
	b.WriteByte('$')
	re := regexp.MustCompile(b.String())
	return re.MatchString(name)
}
