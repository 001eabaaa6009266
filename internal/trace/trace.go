// Package trace implements the Trace Emitter (spec §4.5): an
// append-only open/close/capture event log that is sorted and
// filtered once, at shutdown, into a Speedscope-compatible evented
// trace.
package trace

import (
	"sort"

	"gbflame/internal/debug"
)

// EventType is the Speedscope evented-format event kind.
type EventType byte

const (
	Open  EventType = 'O'
	Close EventType = 'C'
)

// Event is one open or close event. OpenAt is only meaningful on a
// Close event; it records the cycle its paired Open fired at.
type Event struct {
	Type   EventType `json:"type"`
	At     uint64    `json:"at"`
	Frame  int       `json:"frame"`
	OpenAt uint64    `json:"-"`
}

// Capture is a framebuffer snapshot reference recorded alongside the
// cycle and frame index it was taken at.
type Capture struct {
	Src         string `json:"src"`
	At          uint64 `json:"at"`
	FrameNumber int    `json:"frameNumber"`
}

// Frame is one entry in shared.frames; its position is the symbol
// index events refer to.
type Frame struct {
	Name string `json:"name"`
}

// Emitter accumulates events and captures across a profiling run and
// produces the final Document on Finalize. It owns no goroutines and
// is not safe for concurrent use — the profiling core is strictly
// single-threaded per spec §5.
type Emitter struct {
	frames   []Frame
	events   []Event
	captures []Capture

	log *debug.Logger
}

// New returns an Emitter whose shared.frames is built from names, one
// Frame per Symbol Map entry, in symbol-index order. log may be nil,
// in which case the Emitter logs nothing.
func New(names []string, log *debug.Logger) *Emitter {
	frames := make([]Frame, len(names))
	for i, n := range names {
		frames[i] = Frame{Name: n}
	}
	return &Emitter{frames: frames, log: log}
}

// OpenFrame appends an open event for symbolIndex at cycle at.
func (e *Emitter) OpenFrame(symbolIndex int, at uint64) {
	e.events = append(e.events, Event{Type: Open, At: at, Frame: symbolIndex})
	if e.log != nil {
		e.log.LogTracef(debug.LogLevelTrace, "open frame=%d at=%d", symbolIndex, at)
	}
}

// CloseFrame appends a close event for symbolIndex. Per spec §4.5 the
// recorded timestamp is clamped to never precede the paired open.
func (e *Emitter) CloseFrame(symbolIndex int, at uint64, openAt uint64) {
	if at < openAt {
		at = openAt
	}
	e.events = append(e.events, Event{Type: Close, At: at, Frame: symbolIndex, OpenAt: openAt})
	if e.log != nil {
		e.log.LogTracef(debug.LogLevelTrace, "close frame=%d at=%d openAt=%d", symbolIndex, at, openAt)
	}
}

// CaptureFrame appends a framebuffer-capture reference.
func (e *Emitter) CaptureFrame(src string, at uint64, frameNumber int) {
	e.captures = append(e.captures, Capture{Src: src, At: at, FrameNumber: frameNumber})
	if e.log != nil {
		e.log.LogTracef(debug.LogLevelDebug, "captured %q at=%d frame=%d", src, at, frameNumber)
	}
}

// Document is the finalized, Speedscope-shaped trace.
type Document struct {
	Frames   []Frame
	Events   []Event
	Captures []Capture
	EndValue uint64
}

// Finalize sorts the accumulated events (ties broken Open-before-Close),
// drops (Open, Close) pairs that both closed before captureStart, keeps
// any pairs that straddle or start after it, keeps unmatched trailing
// opens for debugging, and computes EndValue. Finalize does not mutate
// the Emitter, so calling it again (e.g. on an already-finalized trace)
// reproduces the same Document.
func (e *Emitter) Finalize(captureStart uint64) Document {
	sorted := append([]Event(nil), e.events...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].At != sorted[j].At {
			return sorted[i].At < sorted[j].At
		}
		return sorted[i].Type == Open && sorted[j].Type == Close
	})

	retain := make([]bool, len(sorted))
	openStack := make(map[int][]int) // symbol index -> indices into sorted, outstanding opens

	for i, ev := range sorted {
		switch ev.Type {
		case Open:
			openStack[ev.Frame] = append(openStack[ev.Frame], i)
		case Close:
			stack := openStack[ev.Frame]
			if len(stack) == 0 {
				// Unmatched close; spec's invariant rules this out in a
				// well-formed stream, so drop it defensively rather than
				// corrupt the filter.
				continue
			}
			openIdx := stack[len(stack)-1]
			openStack[ev.Frame] = stack[:len(stack)-1]
			if ev.At >= captureStart {
				retain[openIdx] = true
				retain[i] = true
			}
		}
	}
	// Still-open frames at filter end are kept for debugging.
	for _, stack := range openStack {
		for _, idx := range stack {
			retain[idx] = true
		}
	}

	doc := Document{
		Frames:   e.frames,
		Captures: append([]Capture(nil), e.captures...),
	}
	var endValue uint64
	for i, keep := range retain {
		if !keep {
			continue
		}
		doc.Events = append(doc.Events, sorted[i])
		if sorted[i].At > endValue {
			endValue = sorted[i].At
		}
	}
	doc.EndValue = endValue
	if e.log != nil {
		e.log.LogTracef(debug.LogLevelInfo, "finalized: %d of %d events retained, endValue=%d", len(doc.Events), len(sorted), endValue)
	}
	return doc
}
