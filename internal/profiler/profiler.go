// Package profiler implements the Frame Driver (spec §4.6) and its
// configuration (spec §6): it wires the Symbol Map, Region Table, PC
// Resolver, Call-Stack Engine, and Trace Emitter together and drives
// them across a configured range of emulated video frames.
//
// Grounded on the teacher's internal/emulator/emulator.go RunFrame
// loop (cycle budget per frame, progress reporting, Start/Reset
// lifecycle) and internal/clock/scheduler.go's cycle-accumulation
// shape, generalized into the global cycle clock spec §4.6 defines.
package profiler

import (
	"fmt"

	"gbflame/internal/callstack"
	"gbflame/internal/debug"
	"gbflame/internal/region"
	"gbflame/internal/resolver"
	"gbflame/internal/symbols"
	"gbflame/internal/trace"
)

// CyclesPerFrame is the number of machine cycles in one Game Boy
// video frame (spec glossary).
const CyclesPerFrame = 70256

// CaptureMode selects when the Frame Driver requests a framebuffer
// capture from the host.
type CaptureMode string

const (
	CaptureAll  CaptureMode = "all"
	CaptureExit CaptureMode = "exit"
	CaptureNone CaptureMode = "none"
)

// Config is the Frame Driver's configuration, populated by the
// cmd/gbflame CLI.
type Config struct {
	StartFrame         int
	Frames             int
	CaptureMode        CaptureMode
	DisabledInterrupts map[int]bool
	Verbose            bool
}

// Emulator is the collaborator contract spec §6 requires of the host:
// advance one instruction, and report where PC and the cycle clock
// currently stand. Advancing a whole video frame is not part of this
// interface; the host passes that as the advanceFrame closure to Run.
type Emulator interface {
	StepInstruction()
	CycleCounter() uint64
	PC() uint16
	ROMBank() uint8
}

// FramebufferCapturer is the host-provided, possibly-asynchronous
// screenshot hook.
type FramebufferCapturer interface {
	CaptureFramebuffer() (src string, err error)
}

// InputEvent is a normalized `{frame, press, release}` replay entry;
// the profiling core only needs the frame number to schedule it —
// applying press/release to the emulator's joypad is the host's job.
type InputEvent struct {
	Frame int
	Apply func()
}

// ProgressFunc reports frame i+1 of total as it completes.
type ProgressFunc func(completed, total int)

// Driver is the Frame Driver. It owns the Call-Stack Engine and Trace
// Emitter for one profiling run.
type Driver struct {
	cfg      Config
	emu      Emulator
	capturer FramebufferCapturer
	engine   *callstack.Engine
	emitter  *trace.Emitter
	resolver *resolver.Resolver
	log      *debug.Logger

	inputs []InputEvent

	framesElapsed     int
	captureStartCycle uint64
	haveCaptureStart  bool
}

// New builds a Driver over a parsed Symbol Map, ready to run against
// emu. log may be nil, in which case driver-stage logging is skipped.
func New(cfg Config, syms *symbols.Map, emu Emulator, capturer FramebufferCapturer, inputs []InputEvent, log *debug.Logger) *Driver {
	table := region.Build(syms, log)
	r := resolver.New(table, log)
	names := make([]string, len(syms.Symbols))
	for i, s := range syms.Symbols {
		names[i] = s.Name
	}
	em := trace.New(names, log)
	engine := callstack.New(r, em, syms, log)

	return &Driver{
		cfg:      cfg,
		emu:      emu,
		capturer: capturer,
		engine:   engine,
		emitter:  em,
		resolver: r,
		log:      log,
		inputs:   inputs,
	}
}

// Engine exposes the driven Call-Stack Engine, for hosts that want to
// wire OnInstruction/OnInterrupt hooks directly off of emu rather than
// have Driver poll it (see Run).
func (d *Driver) Engine() *callstack.Engine {
	return d.engine
}

// Run iterates frames [0, startFrame+frames), per spec §4.6, calling
// advanceFrame once per frame to drive emu exactly one video frame.
// advanceFrame is the host's responsibility because only it knows how
// to run its own CPU loop; the Driver supplies the surrounding
// bookkeeping (input replay, cycle snapshot, capture requests,
// progress, and final trace assembly).
func (d *Driver) Run(advanceFrame func(), progress ProgressFunc) (trace.Document, error) {
	total := d.cfg.StartFrame + d.cfg.Frames
	eventsByFrame := make(map[int][]InputEvent, len(d.inputs))
	for _, ev := range d.inputs {
		eventsByFrame[ev.Frame] = append(eventsByFrame[ev.Frame], ev)
	}

	if d.log != nil {
		d.log.LogSystemf(debug.LogLevelInfo, "profiling run starting: %d frames (start=%d, capture=%s)", total, d.cfg.StartFrame, d.cfg.CaptureMode)
	}

	for i := 0; i < total; i++ {
		for _, ev := range eventsByFrame[i] {
			if ev.Apply != nil {
				ev.Apply()
			}
		}

		frameStartCycle := d.GlobalCycle()

		advanceFrame()
		d.framesElapsed++

		if progress != nil {
			progress(i+1, total)
		}

		if i >= d.cfg.StartFrame && d.cfg.CaptureMode != CaptureNone {
			if !d.haveCaptureStart {
				d.captureStartCycle = frameStartCycle
				d.haveCaptureStart = true
			}
			wantCapture := d.cfg.CaptureMode == CaptureAll || (d.cfg.CaptureMode == CaptureExit && i == total-1)
			if wantCapture && d.capturer != nil {
				src, err := d.capturer.CaptureFramebuffer()
				if err != nil {
					return trace.Document{}, fmt.Errorf("profiler: capturing frame %d: %w", i, err)
				}
				if d.cfg.CaptureMode == CaptureAll {
					d.emitter.CaptureFrame(src, frameStartCycle, i)
				}
				if d.log != nil {
					d.log.LogDriverf(debug.LogLevelDebug, "captured frame %d at cycle %d", i, frameStartCycle)
				}
			}
		}
	}

	d.engine.Shutdown(d.GlobalCycle())
	doc := d.emitter.Finalize(d.captureStartCycle)
	if d.log != nil {
		d.log.LogSystemf(debug.LogLevelInfo, "profiling run finished: max depth %d, %d events", d.engine.MaxDepth(), len(doc.Events))
	}
	return doc, nil
}

// GlobalCycle is global_cycle = per_frame_cycle_counter +
// frames_elapsed*CyclesPerFrame (spec §4.6), matching the teacher's
// MasterClock cycle-accumulation shape generalized from a single
// running counter to frame-relative deltas. Exported so the host can
// compute the cycle to pass into Engine().OnInstruction/OnInterrupt
// from its own per-instruction hook, since only the host's Emulator
// wires those calls.
func (d *Driver) GlobalCycle() uint64 {
	return d.emu.CycleCounter() + uint64(d.framesElapsed)*CyclesPerFrame
}
