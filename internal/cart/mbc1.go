package cart

import (
	"bytes"
	"encoding/gob"
)

// MBC1 implements the first-generation bank controller: a 5-bit low ROM bank
// register, a 2-bit register that serves as RAM bank or ROM bank upper bits,
// and a mode latch that decides which.
type MBC1 struct {
	rom []byte
	ram []byte

	romBankLo    byte // 5 bits; 0 is coerced to 1
	ramBankUpper byte // 2 bits; RAM bank or ROM bank bits 5-6
	bankingMode  bool // false: ROM mode, true: RAM mode
	ramEnabled   bool
}

func NewMBC1(rom []byte, ramSize int) *MBC1 {
	m := &MBC1{rom: rom, romBankLo: 1}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	return m
}

// bank0 returns the effective bank mapped at 0x0000-0x3FFF: bank 0 in ROM
// mode, upper bits << 5 in RAM mode (large-ROM quirk).
func (m *MBC1) bank0() int {
	if m.bankingMode {
		return int(m.ramBankUpper&0x03) << 5
	}
	return 0
}

// bankN returns the effective bank mapped at 0x4000-0x7FFF.
func (m *MBC1) bankN() int {
	bank := int(m.romBankLo & 0x1F)
	if !m.bankingMode {
		bank |= int(m.ramBankUpper&0x03) << 5
	}
	return bank
}

// ramBank returns the effective external RAM bank.
func (m *MBC1) ramBank() int {
	if m.bankingMode {
		return int(m.ramBankUpper & 0x03)
	}
	return 0
}

func (m *MBC1) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		off := m.bank0()*BankSize + int(addr&0x3FFF)
		if off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr < 0x8000:
		off := m.bankN()*BankSize + int(addr&0x3FFF)
		if off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.ram) == 0 {
			return 0xFF
		}
		off := m.ramBank()*0x2000 + int(addr&0x1FFF)
		if off < len(m.ram) {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC1) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = value&0x0F == 0x0A
	case addr < 0x4000:
		m.romBankLo = value & 0x1F
		if m.romBankLo == 0 {
			m.romBankLo = 1
		}
	case addr < 0x6000:
		m.ramBankUpper = value & 0x03
	case addr < 0x8000:
		m.bankingMode = value&0x01 == 1
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.ram) == 0 {
			return
		}
		off := m.ramBank()*0x2000 + int(addr&0x1FFF)
		if off < len(m.ram) {
			m.ram[off] = value
		}
	}
}

func (m *MBC1) SaveRAM() []byte {
	if len(m.ram) == 0 {
		return nil
	}
	out := make([]byte, len(m.ram))
	copy(out, m.ram)
	return out
}

func (m *MBC1) LoadRAM(data []byte) {
	copy(m.ram, data)
}

type mbc1State struct {
	RomBankLo    byte
	RamBankUpper byte
	BankingMode  bool
	RamEnabled   bool
	RAM          []byte
}

func (m *MBC1) SaveState() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(mbc1State{
		RomBankLo:    m.romBankLo,
		RamBankUpper: m.ramBankUpper,
		BankingMode:  m.bankingMode,
		RamEnabled:   m.ramEnabled,
		RAM:          m.ram,
	})
	return buf.Bytes()
}

func (m *MBC1) LoadState(data []byte) {
	var s mbc1State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	m.romBankLo = s.RomBankLo
	if m.romBankLo == 0 {
		m.romBankLo = 1
	}
	m.ramBankUpper = s.RamBankUpper
	m.bankingMode = s.BankingMode
	m.ramEnabled = s.RamEnabled
	copy(m.ram, s.RAM)
}
