package gbcore

// RETI is the Game Boy's return-from-interrupt opcode.
const RETI = 0xD9

// interruptVectors holds the five fixed Game Boy interrupt entry
// points, in the same VBL/LCD/TIM/SIO/JOY order the Symbol Map
// prepends them in, so an interrupt index doubles as a stable symbol
// index for the profiling core.
var interruptVectors = [5]uint16{0x0040, 0x0048, 0x0050, 0x0058, 0x0060}

// instLen is a best-effort instruction length table: 1 for most
// opcodes, 2 for the immediate-byte forms, 3 for the immediate-word
// and absolute-address forms. This demonstration core only needs PC
// to move realistically — it does not simulate register arithmetic —
// so unrecognized opcodes simply fall through to the 1-byte default.
var instLen = buildInstLen()

func buildInstLen() [256]uint8 {
	var t [256]uint8
	for i := range t {
		t[i] = 1
	}
	for _, op := range []uint8{
		0x06, 0x0E, 0x16, 0x1E, 0x26, 0x2E, 0x36, 0x3E, // LD r,d8
		0xC6, 0xCE, 0xD6, 0xDE, 0xE6, 0xEE, 0xF6, 0xFE, // ALU A,d8
		0x18, 0x20, 0x28, 0x30, 0x38, // JR / JR cc
		0xE0, 0xF0, // LDH (a8),A / LDH A,(a8)
	} {
		t[op] = 2
	}
	for _, op := range []uint8{
		0x01, 0x11, 0x21, 0x31, // LD rr,d16
		0xC2, 0xC3, 0xCA, 0xD2, 0xDA, // JP cc,a16 / JP a16
		0xC4, 0xCC, 0xCD, 0xD4, 0xDC, // CALL cc,a16 / CALL a16
		0x08,       // LD (a16),SP
		0xEA, 0xFA, // LD (a16),A / LD A,(a16)
	} {
		t[op] = 3
	}
	return t
}

// Registers is the CPU's user-visible register file.
type Registers struct {
	A, F, B, C, D, E, H, L uint8
	SP, PC                 uint16
}

// CPU is a minimal LR35902 interpreter: it decodes just enough of the
// control-flow opcodes (JP, JR, CALL, RET, RETI, RST) to move PC the
// way real code would, and reports every executed opcode and every
// dispatched interrupt to the profiling core via its two hooks.
type CPU struct {
	Reg  Registers
	IME  bool
	halt bool

	mem *Cartridge

	// OnAfterInstruction and OnInterrupt are the profiling core's
	// hooks. They are called synchronously, once per instruction and
	// once per interrupt dispatch respectively; a nil hook is a no-op.
	OnAfterInstruction func(opcode uint8, pc uint16, bank uint8)
	OnInterrupt        func(index int)
}

// NewCPU returns a CPU reading and writing through mem.
func NewCPU(mem *Cartridge) *CPU {
	return &CPU{mem: mem, Reg: Registers{SP: 0xFFFE}}
}

// SetEntryPoint places PC at the ROM's entry point.
func (c *CPU) SetEntryPoint(pc uint16) {
	c.Reg.PC = pc
}

// Bank returns the ROM bank PC is currently mapped against, the way
// the profiling core's resolver expects: bank 0 below 0x4000,
// regardless of which bank the cartridge has switched in.
func (c *CPU) Bank() uint8 {
	if c.Reg.PC < 0x4000 {
		return 0
	}
	return c.mem.ROMBank()
}

// Step executes one instruction and reports it via OnAfterInstruction.
func (c *CPU) Step() {
	if c.halt {
		return
	}
	pc := c.Reg.PC
	bank := c.Bank()
	opcode := c.mem.Read8(pc)

	switch opcode {
	case RETI:
		c.Reg.PC = c.pop16()
		c.IME = true
	case 0xC9: // RET
		c.Reg.PC = c.pop16()
	case 0xC3: // JP a16
		c.Reg.PC = c.mem.Read16(pc + 1)
	case 0xE9: // JP (HL)
		c.Reg.PC = uint16(c.Reg.H)<<8 | uint16(c.Reg.L)
	case 0xCD: // CALL a16
		target := c.mem.Read16(pc + 1)
		c.push16(pc + 3)
		c.Reg.PC = target
	case 0x18: // JR r8
		c.Reg.PC = pc + 2 + uint16(int8(c.mem.Read8(pc+1)))
	case 0xF3: // DI
		c.IME = false
		c.Reg.PC = pc + 1
	case 0xFB: // EI
		c.IME = true
		c.Reg.PC = pc + 1
	case 0x76: // HALT
		c.halt = true
		c.Reg.PC = pc + 1
	case 0xC7, 0xCF, 0xD7, 0xDF, 0xE7, 0xEF, 0xF7, 0xFF: // RST n
		c.push16(pc + 1)
		c.Reg.PC = uint16(opcode &^ 0xC7)
	default:
		c.Reg.PC = pc + uint16(instLen[opcode])
	}

	if c.OnAfterInstruction != nil {
		c.OnAfterInstruction(opcode, pc, bank)
	}
}

// RequestInterrupt dispatches the interrupt at index (0=VBL, 1=LCD,
// 2=Timer, 3=Serial, 4=Joypad) if interrupts are currently enabled.
// It clears IME, pushes the return address, jumps to the vector, and
// reports the dispatch via OnInterrupt.
func (c *CPU) RequestInterrupt(index int) bool {
	if !c.IME {
		return false
	}
	c.halt = false
	c.IME = false
	c.push16(c.Reg.PC)
	c.Reg.PC = interruptVectors[index]
	if c.OnInterrupt != nil {
		c.OnInterrupt(index)
	}
	return true
}

func (c *CPU) push16(v uint16) {
	c.Reg.SP -= 2
	c.mem.Write16(c.Reg.SP, v)
}

func (c *CPU) pop16() uint16 {
	v := c.mem.Read16(c.Reg.SP)
	c.Reg.SP += 2
	return v
}
