package gbcore

import "testing"

func romOf(entry uint16, fill func([]uint8)) []uint8 {
	rom := make([]uint8, romBankSize*2)
	fill(rom)
	_ = entry
	return rom
}

func TestStepJPMovesPC(t *testing.T) {
	rom := romOf(0x0100, func(r []uint8) {
		r[0x0100] = 0xC3 // JP a16
		r[0x0101] = 0x50
		r[0x0102] = 0x01
	})
	cart, err := NewCartridge(rom)
	if err != nil {
		t.Fatalf("NewCartridge: %v", err)
	}
	cpu := NewCPU(cart)
	cpu.SetEntryPoint(0x0100)
	cpu.Step()
	if cpu.Reg.PC != 0x0150 {
		t.Fatalf("PC = %#x, want 0x0150", cpu.Reg.PC)
	}
}

func TestCallPushesReturnAddressAndRETPopsIt(t *testing.T) {
	rom := romOf(0x0100, func(r []uint8) {
		r[0x0100] = 0xCD // CALL a16
		r[0x0101] = 0x00
		r[0x0102] = 0x02
		r[0x0200] = 0xC9 // RET
	})
	cart, _ := NewCartridge(rom)
	cpu := NewCPU(cart)
	cpu.SetEntryPoint(0x0100)
	cpu.Step() // CALL
	if cpu.Reg.PC != 0x0200 {
		t.Fatalf("PC after CALL = %#x, want 0x0200", cpu.Reg.PC)
	}
	cpu.Step() // RET
	if cpu.Reg.PC != 0x0103 {
		t.Fatalf("PC after RET = %#x, want 0x0103", cpu.Reg.PC)
	}
}

func TestRequestInterruptDispatchesAndRETIReturns(t *testing.T) {
	rom := romOf(0x0100, func(r []uint8) {
		r[0x0100] = 0x00 // NOP, sits where execution resumes after RETI
		r[0x0040] = RETI
	})
	cart, _ := NewCartridge(rom)
	cpu := NewCPU(cart)
	cpu.SetEntryPoint(0x0100)
	cpu.IME = true

	var dispatched int = -1
	cpu.OnInterrupt = func(index int) { dispatched = index }

	if !cpu.RequestInterrupt(0) {
		t.Fatalf("RequestInterrupt should succeed when IME is set")
	}
	if dispatched != 0 {
		t.Errorf("OnInterrupt index = %d, want 0", dispatched)
	}
	if cpu.Reg.PC != 0x0040 {
		t.Fatalf("PC after dispatch = %#x, want 0x0040", cpu.Reg.PC)
	}
	if cpu.IME {
		t.Errorf("IME should be cleared on dispatch")
	}
	cpu.Step() // RETI
	if cpu.Reg.PC != 0x0100 {
		t.Fatalf("PC after RETI = %#x, want 0x0100", cpu.Reg.PC)
	}
	if !cpu.IME {
		t.Errorf("IME should be restored by RETI")
	}
}

func TestRequestInterruptIgnoredWhenIMEClear(t *testing.T) {
	rom := romOf(0x0100, func(r []uint8) {})
	cart, _ := NewCartridge(rom)
	cpu := NewCPU(cart)
	cpu.SetEntryPoint(0x0100)
	cpu.IME = false
	if cpu.RequestInterrupt(0) {
		t.Fatalf("RequestInterrupt should no-op when IME is clear")
	}
	if cpu.Reg.PC != 0x0100 {
		t.Fatalf("PC should be untouched, got %#x", cpu.Reg.PC)
	}
}

func TestBankZeroBelow0x4000(t *testing.T) {
	rom := romOf(0x0100, func(r []uint8) {})
	cart, _ := NewCartridge(rom)
	cart.SetROMBank(3)
	cpu := NewCPU(cart)
	cpu.SetEntryPoint(0x0100)
	if cpu.Bank() != 0 {
		t.Errorf("Bank() below 0x4000 = %d, want 0 regardless of mapped bank", cpu.Bank())
	}
	cpu.SetEntryPoint(0x4100)
	if cpu.Bank() != 3 {
		t.Errorf("Bank() above 0x4000 = %d, want 3", cpu.Bank())
	}
}
