package ui

import (
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

const stateSlotFile = "slot0.savestate"

var menuItems = []string{
	"Resume",
	"Save state (slot 0)",
	"Load state (slot 0)",
	"Open ROM...",
	"Save screenshot...",
	"Copy screenshot",
	"Reset",
}

func (a *App) updateMenu() {
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowUp) && a.menuIdx > 0 {
		a.menuIdx--
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowDown) && a.menuIdx < len(menuItems)-1 {
		a.menuIdx++
	}
	if !inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		return
	}
	switch a.menuIdx {
	case 0:
		a.showMenu = false
	case 1:
		if err := a.m.SaveStateToFile(stateSlotFile); err != nil {
			a.log.WithError(err).Warn("save state failed")
			a.flash("save state failed")
		} else {
			a.flash("state saved")
		}
	case 2:
		if err := a.m.LoadStateFromFile(stateSlotFile); err != nil {
			a.log.WithError(err).Warn("load state failed")
			a.flash("load state failed")
		} else {
			a.flash("state loaded")
		}
	case 3:
		if err := a.openROMDialog(); err != nil {
			a.log.WithError(err).Warn("open ROM failed")
			a.flash("open ROM failed")
		} else {
			a.showMenu = false
		}
	case 4:
		if err := a.saveScreenshot(); err != nil {
			a.log.WithError(err).Warn("screenshot failed")
			a.flash("screenshot failed")
		} else {
			a.flash("screenshot saved")
		}
	case 5:
		if err := a.copyScreenshot(); err != nil {
			a.log.WithError(err).Warn("clipboard copy failed")
			a.flash("clipboard copy failed")
		} else {
			a.flash("copied to clipboard")
		}
	case 6:
		a.m.Reset()
		a.showMenu = false
	}
}

func (a *App) drawMenu(screen *ebiten.Image) {
	overlay := ebiten.NewImage(160, 144)
	overlay.Fill(color.RGBA{0, 0, 0, 160})
	screen.DrawImage(overlay, nil)

	ebitenutil.DebugPrintAt(screen, "Menu:", 10, 8)
	for i, item := range menuItems {
		prefix := "  "
		if i == a.menuIdx {
			prefix = "> "
		}
		ebitenutil.DebugPrintAt(screen, prefix+item, 10, 22+i*14)
	}
}
