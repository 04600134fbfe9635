package main

import (
	"flag"
	"fmt"
	"image"
	"image/png"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/joshtello/gameboy-emulator/internal/emu"
	"github.com/joshtello/gameboy-emulator/internal/statsview"
	"github.com/joshtello/gameboy-emulator/internal/ui"
)

type cliFlags struct {
	ROMPath string
	Scale   int
	Title   string
	Verbose bool
	SaveRAM bool

	// headless
	Headless bool
	Frames   int
	PNGOut   string
	Expect   string // expected framebuffer xxhash64 (hex)

	StatsView bool
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.ROMPath, "rom", "", "path to ROM (.gb, .zip, .7z, .gz)")
	flag.IntVar(&f.Scale, "scale", 3, "window scale")
	flag.StringVar(&f.Title, "title", "gbemu", "window title")
	flag.BoolVar(&f.Verbose, "v", false, "verbose logging")
	flag.BoolVar(&f.SaveRAM, "save", true, "persist battery RAM to ROM.sav on exit and load on start")

	flag.BoolVar(&f.Headless, "headless", false, "run without a window")
	flag.IntVar(&f.Frames, "frames", 300, "frames to run in headless mode")
	flag.StringVar(&f.PNGOut, "outpng", "", "write last framebuffer to PNG at path")
	flag.StringVar(&f.Expect, "expect", "", "assert framebuffer xxhash64 (hex)")

	flag.BoolVar(&f.StatsView, "statsview", false, "serve live runtime statistics over HTTP")
	flag.Parse()
	return f
}

func runHeadless(log *logrus.Logger, m *emu.Machine, frames int, pngPath, expect string) error {
	if frames <= 0 {
		frames = 1
	}
	start := time.Now()
	for i := 0; i < frames; i++ {
		m.RunFrame()
	}
	dur := time.Since(start)

	hash := m.FrameHash()
	log.WithFields(logrus.Fields{
		"frames":  frames,
		"elapsed": dur.Truncate(time.Millisecond).String(),
		"fps":     fmt.Sprintf("%.2f", float64(frames)/dur.Seconds()),
		"fb_hash": fmt.Sprintf("%016x", hash),
	}).Info("headless run complete")

	if pngPath != "" {
		if err := saveFramePNG(m.RGBA(), 160, 144, pngPath); err != nil {
			return fmt.Errorf("write PNG: %w", err)
		}
		log.Infof("wrote %s", pngPath)
	}

	if expect != "" {
		want := strings.TrimPrefix(strings.ToLower(expect), "0x")
		got := fmt.Sprintf("%016x", hash)
		if got != want {
			return fmt.Errorf("framebuffer hash mismatch: got %s, want %s", got, want)
		}
	}
	return nil
}

func saveFramePNG(pix []byte, w, h int, path string) error {
	img := &image.RGBA{
		Pix:    append([]byte(nil), pix...),
		Stride: 4 * w,
		Rect:   image.Rect(0, 0, w, h),
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

// savPath derives the battery file location from the ROM path.
func savPath(romPath string) string {
	for _, ext := range []string{".gb", ".zip", ".7z", ".gz"} {
		if strings.HasSuffix(strings.ToLower(romPath), ext) {
			return romPath[:len(romPath)-len(ext)] + ".sav"
		}
	}
	return romPath + ".sav"
}

func main() {
	f := parseFlags()

	log := logrus.New()
	log.Formatter = &logrus.TextFormatter{DisableColors: true, DisableTimestamp: true}
	if f.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if f.StatsView {
		statsview.Launch(os.Stdout)
	}

	m := emu.New(emu.Config{Verbose: f.Verbose})
	if f.ROMPath != "" {
		if err := m.LoadROMFromFile(f.ROMPath); err != nil {
			log.WithError(err).Fatal("load ROM")
		}
	}

	var sav string
	if f.SaveRAM && f.ROMPath != "" {
		sav = savPath(f.ROMPath)
		if data, err := os.ReadFile(sav); err == nil {
			if m.LoadBattery(data) {
				log.Infof("loaded save RAM: %s (%d bytes)", sav, len(data))
			}
		}
	}
	writeBattery := func() {
		if !f.SaveRAM || sav == "" {
			return
		}
		if data, ok := m.SaveBattery(); ok {
			if err := os.WriteFile(sav, data, 0o644); err != nil {
				log.WithError(err).Warn("write save RAM")
			} else {
				log.Infof("wrote %s", sav)
			}
		}
	}

	if f.Headless {
		if !m.Loaded() {
			log.Fatal("-headless requires -rom")
		}
		if err := runHeadless(log, m, f.Frames, f.PNGOut, f.Expect); err != nil {
			log.Fatal(err)
		}
		writeBattery()
		return
	}

	app := ui.NewApp(ui.Config{Title: f.Title, Scale: f.Scale}, m)
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
	writeBattery()
}
