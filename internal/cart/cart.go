package cart

import (
	"fmt"
)

// BankSize is the unit of ROM banking: 16 KiB.
const BankSize = 0x4000

// Cartridge is the plug point between the bus and a bank controller.
// Implementations route ROM reads (0x0000-0x7FFF), treat ROM-region writes
// as control registers, and back external RAM (0xA000-0xBFFF).
type Cartridge interface {
	Read(addr uint16) byte
	Write(addr uint16, value byte)
	// SaveState/LoadState serialize banking registers and external RAM.
	SaveState() []byte
	LoadState(data []byte)
}

// BatteryBacked is implemented by cartridges whose external RAM should be
// persisted across sessions (.sav files).
type BatteryBacked interface {
	SaveRAM() []byte
	LoadRAM(data []byte)
}

// New validates the ROM image and picks a controller from the header
// cartridge-type byte. This is the only failure surfaced to the host;
// a running guest never errors.
func New(rom []byte) (Cartridge, error) {
	if len(rom) == 0 {
		return nil, ErrEmptyROM
	}
	if len(rom)%BankSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadROMSize, len(rom))
	}
	h, err := ParseHeader(rom)
	if err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	switch h.CartType {
	case 0x00:
		return NewROMOnly(rom), nil
	case 0x01, 0x02, 0x03: // MBC1, MBC1+RAM, MBC1+RAM+BATTERY
		return NewMBC1(rom, h.RAMSizeBytes), nil
	case 0x0F, 0x10, 0x11, 0x12, 0x13: // MBC3 variants (RTC not modeled)
		return NewMBC3(rom, h.RAMSizeBytes), nil
	default:
		return nil, fmt.Errorf("%w: 0x%02X (%s)", ErrUnsupportedType, h.CartType, h.CartTypeStr)
	}
}
