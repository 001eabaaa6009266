// Package gbcore is a demonstration LR35902-shaped CPU/memory/input
// stand-in used to exercise the profiling core end to end. It is not
// itself part of the profiler: cmd/gbflame wraps gbcore's CPU and
// Cartridge in the profiler.Emulator it drives; gbcore provides no
// FramebufferCapturer. It is built the way the teacher builds its own
// cartridge/CPU/clock trio, retargeted to Game Boy addressing and
// interrupts.
package gbcore

import "fmt"

// romBankSize is the size of one switchable ROM bank (0x4000-0x7FFF).
const romBankSize = 0x4000

// Cartridge holds ROM bytes and the currently mapped switchable bank.
// Bank 0 always maps to [0x0000,0x3FFF]; bank N (N>=1) maps to
// [0x4000,0x7FFF] and is selected by the memory-bank-controller write
// a real ROM performs — this demonstration core exposes SetROMBank
// directly instead of decoding MBC register writes.
type Cartridge struct {
	rom      []uint8
	romBank  uint8
	wram     [0x2000]uint8
	hram     [0x7F]uint8
}

// NewCartridge loads rom into a Cartridge. Bank 1 is mapped at
// [0x4000,0x7FFF] initially.
func NewCartridge(rom []uint8) (*Cartridge, error) {
	if len(rom) < romBankSize {
		return nil, fmt.Errorf("gbcore: ROM too small: %d bytes", len(rom))
	}
	return &Cartridge{rom: rom, romBank: 1}, nil
}

// SetROMBank switches the bank mapped at [0x4000,0x7FFF].
func (c *Cartridge) SetROMBank(bank uint8) {
	if bank == 0 {
		bank = 1 // mirrors real MBC1 behavior: bank 0 is never selectable here
	}
	c.romBank = bank
}

// ROMBank returns the currently mapped switchable bank.
func (c *Cartridge) ROMBank() uint8 {
	return c.romBank
}

// Read8 reads one byte from the CPU's 16-bit address space.
func (c *Cartridge) Read8(addr uint16) uint8 {
	switch {
	case addr < 0x4000:
		if int(addr) < len(c.rom) {
			return c.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		off := uint32(c.romBank)*romBankSize + uint32(addr-0x4000)
		if int(off) < len(c.rom) {
			return c.rom[off]
		}
		return 0xFF
	case addr >= 0xC000 && addr < 0xE000:
		return c.wram[addr-0xC000]
	case addr >= 0xFF80 && addr < 0xFFFF:
		return c.hram[addr-0xFF80]
	default:
		return 0xFF
	}
}

// Read16 reads a little-endian 16-bit value.
func (c *Cartridge) Read16(addr uint16) uint16 {
	lo := uint16(c.Read8(addr))
	hi := uint16(c.Read8(addr + 1))
	return lo | hi<<8
}

// Write8 writes one byte. Writes into ROM space are interpreted as
// bank-select requests, mirroring how a real MBC intercepts them.
func (c *Cartridge) Write8(addr uint16, value uint8) {
	switch {
	case addr < 0x8000:
		c.SetROMBank(value)
	case addr >= 0xC000 && addr < 0xE000:
		c.wram[addr-0xC000] = value
	case addr >= 0xFF80 && addr < 0xFFFF:
		c.hram[addr-0xFF80] = value
	}
}

// Write16 writes a little-endian 16-bit value.
func (c *Cartridge) Write16(addr uint16, value uint16) {
	c.Write8(addr, uint8(value))
	c.Write8(addr+1, uint8(value>>8))
}
