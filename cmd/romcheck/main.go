// romcheck prints the cartridge header of a ROM image along with a short hex
// dump of the fixed and switchable bank starts. Handy for checking what a
// dubious file actually contains before pointing the emulator at it.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/joshtello/gameboy-emulator/internal/cart"
)

func main() {
	romPath := flag.String("rom", "", "path to ROM (.gb, .zip, .7z, .gz)")
	flag.Parse()

	log := logrus.New()
	log.Formatter = &logrus.TextFormatter{DisableColors: true, DisableTimestamp: true}

	if *romPath == "" {
		log.Fatal("-rom is required")
	}
	rom, err := cart.LoadFile(*romPath)
	if err != nil {
		log.WithError(err).Fatal("load ROM")
	}

	h, err := cart.ParseHeader(rom)
	if err != nil {
		log.WithError(err).Fatal("parse header")
	}

	fmt.Printf("title:           %q\n", h.Title)
	fmt.Printf("cartridge type:  0x%02X (%s)\n", h.CartType, h.CartTypeStr)
	fmt.Printf("ROM size:        %d bytes (%d banks)\n", h.ROMSizeBytes, h.ROMBanks)
	fmt.Printf("RAM size:        %d bytes\n", h.RAMSizeBytes)
	fmt.Printf("ROM version:     %d\n", h.ROMVersion)
	fmt.Printf("image size:      %d bytes\n", len(rom))
	fmt.Printf("header checksum: 0x%02X (%s)\n", h.HeaderChecksum, okString(cart.HeaderChecksumOK(rom)))
	fmt.Printf("global checksum: 0x%04X\n", h.GlobalChecksum)

	dump("bytes at 0x0000", rom, 0x0000, 16)
	dump("bytes at 0x0100", rom, 0x0100, 16)
	dump("bytes at 0x4000", rom, 0x4000, 16)

	if len(rom)%cart.BankSize != 0 {
		log.Warn("image size is not a multiple of the bank size; the emulator will reject it")
		os.Exit(1)
	}
}

func okString(ok bool) string {
	if ok {
		return "ok"
	}
	return "MISMATCH"
}

func dump(label string, rom []byte, off, n int) {
	if off+n > len(rom) {
		return
	}
	fmt.Printf("%s:", label)
	for i := 0; i < n; i++ {
		fmt.Printf(" %02X", rom[off+i])
	}
	fmt.Println()
}
