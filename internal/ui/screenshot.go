package ui

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"strings"
	"time"

	"github.com/sqweek/dialog"
	"golang.design/x/clipboard"
	xdraw "golang.org/x/image/draw"
)

// snapshotImage copies the current frame into an image, upscaled to the
// window scale with nearest-neighbour sampling.
func (a *App) snapshotImage() *image.RGBA {
	src := &image.RGBA{
		Pix:    append([]byte(nil), a.m.RGBA()...),
		Stride: 4 * 160,
		Rect:   image.Rect(0, 0, 160, 144),
	}
	if a.cfg.Scale <= 1 {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, 160*a.cfg.Scale, 144*a.cfg.Scale))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}

// quickScreenshot writes a timestamped PNG next to the binary (F12).
func (a *App) quickScreenshot() error {
	name := fmt.Sprintf("screenshot_%s.png", time.Now().Format("20060102_150405"))
	return writePNG(name, a.snapshotImage())
}

// saveScreenshot asks for a destination via the native file dialog.
func (a *App) saveScreenshot() error {
	name, err := dialog.File().Filter("PNG image", "png").Title("Save screenshot").Save()
	if err != nil {
		return err
	}
	if !strings.HasSuffix(strings.ToLower(name), ".png") {
		name += ".png"
	}
	return writePNG(name, a.snapshotImage())
}

// copyScreenshot places the frame on the system clipboard as a PNG image.
func (a *App) copyScreenshot() error {
	if err := clipboard.Init(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, a.snapshotImage()); err != nil {
		return err
	}
	clipboard.Write(clipboard.FmtImage, buf.Bytes())
	return nil
}

// openROMDialog asks for a ROM file and mounts it.
func (a *App) openROMDialog() error {
	name, err := dialog.File().
		Filter("Game Boy ROM", "gb", "zip", "7z", "gz").
		SetStartDir(a.cfg.ROMsDir).
		Title("Open ROM").
		Load()
	if err != nil {
		return err
	}
	return a.m.LoadROMFromFile(name)
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
