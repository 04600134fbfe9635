package cart

import "testing"

// markedROM builds a ROM with the bank number stamped at the start of each bank.
func markedROM(banks int) []byte {
	rom := make([]byte, banks*BankSize)
	for bank := 0; bank < banks; bank++ {
		rom[bank*BankSize] = byte(bank)
	}
	return rom
}

func TestMBC1_ROMBanking(t *testing.T) {
	m := NewMBC1(markedROM(8), 0) // 128 KiB

	if got := m.Read(0x0000); got != 0x00 {
		t.Fatalf("bank0 read got %02X want 00", got)
	}
	// Switchable area defaults to bank 1
	if got := m.Read(0x4000); got != 0x01 {
		t.Fatalf("default bankN read got %02X want 01", got)
	}
	m.Write(0x2000, 0x03)
	if got := m.Read(0x4000); got != 0x03 {
		t.Fatalf("bank3 read got %02X want 03", got)
	}
	// Writing 0 selects bank 1
	m.Write(0x2000, 0x00)
	if got := m.Read(0x4000); got != 0x01 {
		t.Fatalf("bank0->1 coercion failed: got %02X", got)
	}
}

func TestMBC1_UpperBitsExtendROMBank(t *testing.T) {
	m := NewMBC1(markedROM(128), 0) // 2 MiB

	m.Write(0x2000, 0x02) // low bank 2
	m.Write(0x4000, 0x01) // upper bits 01
	// ROM mode: effective bank = 0x02 | 0x01<<5 = 0x22
	if got := m.Read(0x4000); got != 0x22 {
		t.Fatalf("extended bank read got %02X want 22", got)
	}
	// RAM mode drops the upper bits from the switchable area...
	m.Write(0x6000, 0x01)
	if got := m.Read(0x4000); got != 0x02 {
		t.Fatalf("RAM-mode bankN read got %02X want 02", got)
	}
	// ...and applies them to the fixed area instead (bank 0x20)
	if got := m.Read(0x0000); got != 0x20 {
		t.Fatalf("RAM-mode bank0 read got %02X want 20", got)
	}
	// Back to ROM mode: fixed area is bank 0 again
	m.Write(0x6000, 0x00)
	if got := m.Read(0x0000); got != 0x00 {
		t.Fatalf("ROM-mode bank0 read got %02X want 00", got)
	}
}

func TestMBC1_RAMEnableGate(t *testing.T) {
	m := NewMBC1(markedROM(8), 8*1024)

	m.Write(0xA000, 0x55) // disabled: dropped
	if got := m.Read(0xA000); got != 0xFF {
		t.Fatalf("disabled RAM read got %02X want FF", got)
	}
	m.Write(0x0000, 0x0A)
	m.Write(0xA000, 0x55)
	if got := m.Read(0xA000); got != 0x55 {
		t.Fatalf("enabled RAM read got %02X want 55", got)
	}
	// Any low-nibble value other than 0x0A disables again
	m.Write(0x0000, 0x00)
	if got := m.Read(0xA000); got != 0xFF {
		t.Fatalf("re-disabled RAM read got %02X want FF", got)
	}
}

func TestMBC1_RAMBankingMode(t *testing.T) {
	m := NewMBC1(markedROM(8), 32*1024)

	m.Write(0x0000, 0x0A) // enable RAM
	m.Write(0x6000, 0x01) // RAM mode
	m.Write(0x4000, 0x02) // RAM bank 2
	m.Write(0xA000, 0x77)
	if got := m.Read(0xA000); got != 0x77 {
		t.Fatalf("RAM bank2 readback got %02X want 77", got)
	}
	// ROM mode pins external RAM to bank 0
	m.Write(0x6000, 0x00)
	if got := m.Read(0xA000); got == 0x77 {
		t.Fatalf("ROM-mode RAM read hit bank 2, want bank 0")
	}
}

func TestMBC1_ROMWritesDoNotChangeROM(t *testing.T) {
	rom := markedROM(8)
	m := NewMBC1(rom, 0)
	m.Write(0x3000, 0xAA)
	m.Write(0x7FFF, 0xBB)
	if rom[0x3000] != 0x00 || rom[0x7FFF&0x3FFF] != 0x00 {
		t.Fatalf("control writes modified ROM bytes")
	}
}

func TestMBC1_OutOfRangeBankReadsFF(t *testing.T) {
	m := NewMBC1(markedROM(4), 0) // 64 KiB: banks 0-3
	m.Write(0x2000, 0x1F)         // bank 31, beyond the image
	if got := m.Read(0x4000); got != 0xFF {
		t.Fatalf("out-of-range bank read got %02X want FF", got)
	}
}

func TestMBC1_SaveLoadRAM(t *testing.T) {
	m := NewMBC1(markedROM(8), 8*1024)
	m.Write(0x0000, 0x0A)
	m.Write(0xA123, 0x9C)
	data := m.SaveRAM()
	if len(data) != 8*1024 {
		t.Fatalf("SaveRAM length got %d want %d", len(data), 8*1024)
	}

	n := NewMBC1(markedROM(8), 8*1024)
	n.LoadRAM(data)
	n.Write(0x0000, 0x0A)
	if got := n.Read(0xA123); got != 0x9C {
		t.Fatalf("restored RAM read got %02X want 9C", got)
	}
}

func TestMBC1_StateRoundTrip(t *testing.T) {
	m := NewMBC1(markedROM(8), 8*1024)
	m.Write(0x0000, 0x0A)
	m.Write(0x2000, 0x05)
	m.Write(0xA000, 0x42)
	state := m.SaveState()

	n := NewMBC1(markedROM(8), 8*1024)
	n.LoadState(state)
	if got := n.Read(0x4000); got != 0x05 {
		t.Fatalf("restored bank read got %02X want 05", got)
	}
	if got := n.Read(0xA000); got != 0x42 {
		t.Fatalf("restored RAM read got %02X want 42", got)
	}
}
