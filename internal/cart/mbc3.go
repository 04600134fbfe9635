package cart

import (
	"bytes"
	"encoding/gob"
)

// MBC3 implements the 7-bit ROM banking controller used by later titles.
// The real-time clock of the RTC variants is not modeled; selecting an RTC
// register (0x08-0x0C) reads as 0xFF.
type MBC3 struct {
	rom []byte
	ram []byte

	romBank    byte // 7 bits; 0 is coerced to 1
	ramBank    byte // 0-3 selects RAM, 0x08-0x0C would select RTC
	ramEnabled bool
}

func NewMBC3(rom []byte, ramSize int) *MBC3 {
	m := &MBC3{rom: rom, romBank: 1}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	return m
}

func (m *MBC3) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		off := int(m.romBank&0x7F)*BankSize + int(addr&0x3FFF)
		if off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || m.ramBank > 0x03 || len(m.ram) == 0 {
			return 0xFF
		}
		off := int(m.ramBank)*0x2000 + int(addr&0x1FFF)
		if off < len(m.ram) {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC3) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = value&0x0F == 0x0A
	case addr < 0x4000:
		m.romBank = value & 0x7F
		if m.romBank == 0 {
			m.romBank = 1
		}
	case addr < 0x6000:
		m.ramBank = value & 0x0F
	case addr < 0x8000:
		// RTC latch on the real part; nothing to latch here
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || m.ramBank > 0x03 || len(m.ram) == 0 {
			return
		}
		off := int(m.ramBank)*0x2000 + int(addr&0x1FFF)
		if off < len(m.ram) {
			m.ram[off] = value
		}
	}
}

func (m *MBC3) SaveRAM() []byte {
	if len(m.ram) == 0 {
		return nil
	}
	out := make([]byte, len(m.ram))
	copy(out, m.ram)
	return out
}

func (m *MBC3) LoadRAM(data []byte) {
	copy(m.ram, data)
}

type mbc3State struct {
	RomBank    byte
	RamBank    byte
	RamEnabled bool
	RAM        []byte
}

func (m *MBC3) SaveState() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(mbc3State{
		RomBank:    m.romBank,
		RamBank:    m.ramBank,
		RamEnabled: m.ramEnabled,
		RAM:        m.ram,
	})
	return buf.Bytes()
}

func (m *MBC3) LoadState(data []byte) {
	var s mbc3State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	m.romBank = s.RomBank
	if m.romBank == 0 {
		m.romBank = 1
	}
	m.ramBank = s.RamBank
	m.ramEnabled = s.RamEnabled
	copy(m.ram, s.RAM)
}
