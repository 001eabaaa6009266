// Command gbflame profiles a Game Boy ROM across a range of frames
// and writes a Speedscope-compatible flamegraph trace.
//
// Grounded on the teacher's cmd/emulator/main.go (ROM loading, logger
// wiring, os.Exit as the sole exit point) and
// cmd/trace_cpu_execution/main.go (a narrow single-purpose binary
// built from the same internal packages); the flag surface is
// upgraded from bare `flag` to cobra, the one pack file
// (other_examples' minzc mze) that reaches for a CLI framework for a
// multi-flag, multi-subcommand emulator tool.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"gbflame/internal/debug"
	"gbflame/internal/gbcore"
	"gbflame/internal/profiler"
	"gbflame/internal/symbols"
)

var (
	romPath     string
	symbolsPath string
	outPath     string
	startFrame  int
	frames      int
	captureMode string
	disableInt  []int
	verbose     bool
	logStages   []string
)

func main() {
	root := &cobra.Command{
		Use:   "gbflame",
		Short: "Game Boy ROM profiler and flamegraph generator",
	}
	root.AddCommand(newRunCmd(), newSymbolsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "gbflame: %v\n", err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Profile a ROM and write a Speedscope flamegraph trace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfile()
		},
	}
	cmd.Flags().StringVar(&romPath, "rom", "", "path to the ROM file")
	cmd.Flags().StringVar(&symbolsPath, "symbols", "", "path to the linker memory-map file")
	cmd.Flags().StringVar(&outPath, "out", "trace.json", "path to write the Speedscope trace")
	cmd.Flags().IntVar(&startFrame, "start-frame", 0, "first frame to capture from")
	cmd.Flags().IntVar(&frames, "frames", 60, "number of frames to run from start-frame")
	cmd.Flags().StringVar(&captureMode, "capture-mode", "exit", "framebuffer capture mode: all, exit, or none")
	cmd.Flags().IntSliceVar(&disableInt, "disable-interrupt", nil, "interrupt indices (0=VBL,1=LCD,2=Timer,3=Serial,4=Joypad) to mask")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "enable debug logging for every profiling-core stage")
	cmd.Flags().StringSliceVar(&logStages, "log", nil, "profiling-core stages to log at debug level: symbols,region,resolver,callstack,trace,driver")
	cmd.MarkFlagRequired("rom")
	return cmd
}

func newSymbolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "symbols",
		Short: "Parse a linker memory-map file and print the resulting Symbol Map",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printSymbols()
		},
	}
	cmd.Flags().StringVar(&symbolsPath, "symbols", "", "path to the linker memory-map file")
	cmd.MarkFlagRequired("symbols")
	return cmd
}

func printSymbols() error {
	f, err := os.Open(symbolsPath)
	if err != nil {
		return fmt.Errorf("gbflame: opening symbol map: %w", err)
	}
	defer f.Close()

	m, err := symbols.Parse(f, nil)
	if err != nil {
		return fmt.Errorf("gbflame: parsing symbol map: %w", err)
	}
	for i, s := range m.Symbols {
		fmt.Printf("%4d  bank=%-3d addr=0x%04X  %s\n", i, s.Bank, s.Addr, s.Name)
	}
	return nil
}

func newLogger() *debug.Logger {
	logger := debug.NewLogger(10000)
	stages := map[string]debug.Component{
		"symbols":   debug.ComponentSymbols,
		"region":    debug.ComponentRegion,
		"resolver":  debug.ComponentResolver,
		"callstack": debug.ComponentCallStack,
		"trace":     debug.ComponentTrace,
		"driver":    debug.ComponentDriver,
	}
	if verbose {
		for _, c := range stages {
			logger.SetComponentEnabled(c, true)
		}
		logger.SetComponentEnabled(debug.ComponentSystem, true)
		logger.SetMinLevel(debug.LogLevelDebug)
		return logger
	}
	for _, name := range logStages {
		if c, ok := stages[name]; ok {
			logger.SetComponentEnabled(c, true)
		}
	}
	if len(logStages) > 0 {
		logger.SetMinLevel(debug.LogLevelDebug)
	}
	return logger
}

func runProfile() error {
	romData, err := os.ReadFile(romPath)
	if err != nil {
		return fmt.Errorf("gbflame: reading ROM: %w", err)
	}

	logger := newLogger()
	defer logger.Shutdown()

	var symMap *symbols.Map
	if symbolsPath != "" {
		f, err := os.Open(symbolsPath)
		if err != nil {
			return fmt.Errorf("gbflame: opening symbol map: %w", err)
		}
		symMap, err = symbols.Parse(f, logger)
		f.Close()
		if err != nil {
			return fmt.Errorf("gbflame: parsing symbol map: %w", err)
		}
	} else {
		// No symbol table: per spec §7 the engine still runs with
		// interrupt-vector-only resolution. Parse an empty map so the
		// 5 fixed interrupt vectors are still prepended.
		symMap, _ = symbols.Parse(strings.NewReader(""), logger)
	}

	cart, err := gbcore.NewCartridge(romData)
	if err != nil {
		return fmt.Errorf("gbflame: loading ROM: %w", err)
	}
	cpu := gbcore.NewCPU(cart)
	cpu.SetEntryPoint(0x0100)
	cpu.IME = true

	disabled := make(map[int]bool, len(disableInt))
	for _, i := range disableInt {
		disabled[i] = true
	}

	cfg := profiler.Config{
		StartFrame:         startFrame,
		Frames:             frames,
		CaptureMode:        profiler.CaptureMode(captureMode),
		DisabledInterrupts: disabled,
		Verbose:            verbose,
	}

	emu := &cpuEmulator{cpu: cpu, cart: cart}
	driver := profiler.New(cfg, symMap, emu, nil, nil, logger)

	engine := driver.Engine()
	cpu.OnAfterInstruction = func(opcode uint8, pc uint16, bank uint8) {
		engine.OnInstruction(opcode, pc, bank, driver.GlobalCycle())
	}
	cpu.OnInterrupt = func(index int) {
		if !disabled[index] {
			engine.OnInterrupt(toSymbolIndex(index), driver.GlobalCycle())
		}
	}

	progress := func(completed, total int) {
		if verbose {
			fmt.Fprintf(os.Stderr, "gbflame: frame %d/%d\n", completed, total)
		}
	}

	doc, err := driver.Run(func() { emu.runOneFrame() }, progress)
	if err != nil {
		return fmt.Errorf("gbflame: profiling run: %w", err)
	}

	fmt.Fprintf(os.Stderr, "gbflame: call stack reached a maximum depth of %d frames\n", engine.MaxDepth())

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("gbflame: encoding trace: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("gbflame: writing trace: %w", err)
	}
	fmt.Fprintf(os.Stderr, "gbflame: wrote %s\n", outPath)
	return nil
}

// cpuEmulator adapts gbcore.CPU to profiler.Emulator and drives one
// video frame's worth of instructions, mirroring the teacher's own
// RunFrame cycle-budget loop in internal/emulator/emulator.go.
type cpuEmulator struct {
	cpu   *gbcore.CPU
	cart  *gbcore.Cartridge
	cycle uint64
}

func (e *cpuEmulator) StepInstruction()     { e.cpu.Step() }
func (e *cpuEmulator) CycleCounter() uint64 { return e.cycle }
func (e *cpuEmulator) PC() uint16           { return e.cpu.Reg.PC }
func (e *cpuEmulator) ROMBank() uint8       { return e.cart.ROMBank() }

// runOneFrame steps the CPU for exactly one frame's cycle budget. The
// counter is reset at the end rather than the start: profiler.Driver
// snapshots CycleCounter() before calling this closure, and that
// snapshot must read 0 for every frame, not the previous frame's
// leftover end-of-budget value.
func (e *cpuEmulator) runOneFrame() {
	for e.cycle < profiler.CyclesPerFrame {
		e.cpu.Step()
		e.cycle += 4
	}
	e.cycle = 0
}

func toSymbolIndex(interruptIndex int) symbols.Index {
	return symbols.Index(interruptIndex)
}
