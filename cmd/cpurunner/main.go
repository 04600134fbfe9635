// cpurunner executes a ROM without a window and streams its serial output,
// which is how the common CPU test ROMs report results. It exits 0 when the
// output contains "Passed" and 1 on a reported failure.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/joshtello/gameboy-emulator/internal/cpu"
	"github.com/joshtello/gameboy-emulator/internal/emu"
)

func main() {
	romPath := flag.String("rom", "", "path to ROM (.gb)")
	steps := flag.Int("steps", 5_000_000, "max CPU steps to run")
	trace := flag.Bool("trace", false, "print PC/opcode/register state per step")
	until := flag.String("until", "Passed", "stop when serial output contains this substring (case-insensitive); empty to disable")
	auto := flag.Bool("auto", false, "detect 'Passed' or 'Failed N tests' in serial output and exit 0/1")
	timeout := flag.Duration("timeout", 0, "optional wall-clock timeout (e.g. 30s); 0 disables")
	flag.Parse()

	log := logrus.New()
	log.Formatter = &logrus.TextFormatter{DisableColors: true, DisableTimestamp: true}

	if *romPath == "" {
		log.Fatal("-rom is required")
	}

	m := emu.New(emu.Config{})
	if err := m.LoadROMFromFile(*romPath); err != nil {
		log.WithError(err).Fatal("load ROM")
	}

	// stream serial to stdout and keep a copy for pattern detection
	var ser bytes.Buffer
	m.SetSerialWriter(io.MultiWriter(os.Stdout, &ser))

	failRe := regexp.MustCompile(`(?i)failed\s+(\d+)\s+tests?`)

	c := m.CPU()
	b := m.Bus()
	start := time.Now()
	var deadline time.Time
	if *timeout > 0 {
		deadline = start.Add(*timeout)
	}

	cycles := 0
	for i := 0; i < *steps; i++ {
		pc := c.PC
		var asm string
		if *trace {
			asm, _ = cpu.Disassemble(b.Read, pc)
		}
		cyc := c.Step()
		cycles += cyc
		if *trace {
			fmt.Printf("PC=%04X %-16s cyc=%d A=%02X F=%02X B=%02X C=%02X D=%02X E=%02X H=%02X L=%02X SP=%04X IME=%t\n",
				pc, asm, cyc, c.A, c.F, c.B, c.C, c.D, c.E, c.H, c.L, c.SP, c.IME)
		}

		if *auto {
			s := ser.String()
			if strings.Contains(strings.ToLower(s), "passed") {
				fmt.Printf("\nDetected PASS in serial output.\n")
				done(i+1, cycles, start)
				os.Exit(0)
			}
			if match := failRe.FindString(s); match != "" {
				fmt.Printf("\nDetected %q in serial output.\n", match)
				done(i+1, cycles, start)
				os.Exit(1)
			}
		} else if *until != "" {
			if strings.Contains(strings.ToLower(ser.String()), strings.ToLower(*until)) {
				fmt.Printf("\nDetected %q in serial output.\n", *until)
				done(i+1, cycles, start)
				return
			}
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			fmt.Printf("\nTimeout after %s.\n", time.Since(start).Truncate(time.Millisecond))
			done(i+1, cycles, start)
			os.Exit(2)
		}
	}
	done(*steps, cycles, start)
}

func done(steps, cycles int, start time.Time) {
	fmt.Printf("\nDone: steps=%d cycles~=%d elapsed=%s\n",
		steps, cycles, time.Since(start).Truncate(time.Millisecond))
}
