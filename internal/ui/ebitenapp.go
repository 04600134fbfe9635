package ui

import (
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/sirupsen/logrus"

	"github.com/joshtello/gameboy-emulator/internal/emu"
)

// App is the ebiten shell: it pumps input into the machine, runs one frame
// per tick, and blits the result.
type App struct {
	cfg Config
	m   *emu.Machine

	tex    *ebiten.Image
	paused bool
	fast   bool

	// skip redundant texture uploads when the frame did not change
	lastHash uint64

	showMenu bool
	menuIdx  int

	status      string
	statusUntil time.Time

	log *logrus.Logger
}

func NewApp(cfg Config, m *emu.Machine) *App {
	cfg.Defaults()
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(160*cfg.Scale, 144*cfg.Scale)
	a := &App{cfg: cfg, m: m}
	a.log = logrus.New()
	a.log.Formatter = &logrus.TextFormatter{DisableColors: true, DisableTimestamp: true}
	return a
}

// Run blocks in the ebiten main loop (~60 Hz) until the window closes.
func (a *App) Run() error { return ebiten.RunGame(a) }

func (a *App) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		a.showMenu = !a.showMenu
	}
	if a.showMenu {
		a.updateMenu()
		return nil
	}

	// keyboard -> joypad matrix
	var btn emu.Buttons
	btn.Right = ebiten.IsKeyPressed(ebiten.KeyRight)
	btn.Left = ebiten.IsKeyPressed(ebiten.KeyLeft)
	btn.Up = ebiten.IsKeyPressed(ebiten.KeyUp)
	btn.Down = ebiten.IsKeyPressed(ebiten.KeyDown)
	btn.A = ebiten.IsKeyPressed(ebiten.KeyZ)
	btn.B = ebiten.IsKeyPressed(ebiten.KeyX)
	btn.Start = ebiten.IsKeyPressed(ebiten.KeyEnter)
	btn.Select = ebiten.IsKeyPressed(ebiten.KeyShiftRight)
	a.m.SetButtons(btn)

	if inpututil.IsKeyJustPressed(ebiten.KeyP) {
		a.paused = !a.paused
	}
	a.fast = ebiten.IsKeyPressed(ebiten.KeyTab)
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		a.m.Reset()
		a.flash("reset")
	}
	// frame-step while paused
	if a.paused && inpututil.IsKeyJustPressed(ebiten.KeyN) {
		a.m.RunFrame()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF12) {
		if err := a.quickScreenshot(); err != nil {
			a.log.WithError(err).Warn("screenshot failed")
			a.flash("screenshot failed")
		} else {
			a.flash("screenshot saved")
		}
	}

	if !a.paused {
		frames := 1
		if a.fast {
			frames = 4
		}
		for i := 0; i < frames; i++ {
			a.m.RunFrame()
		}
	}
	return nil
}

func (a *App) Draw(screen *ebiten.Image) {
	if a.tex == nil {
		a.tex = ebiten.NewImage(160, 144)
	}
	if h := a.m.FrameHash(); h != a.lastHash {
		a.tex.WritePixels(a.m.RGBA())
		a.lastHash = h
	}
	screen.DrawImage(a.tex, nil)

	if a.showMenu {
		a.drawMenu(screen)
	}
	if a.status != "" && time.Now().Before(a.statusUntil) {
		ebitenutil.DebugPrintAt(screen, a.status, 4, 132)
	}
	if a.paused && !a.showMenu {
		ebitenutil.DebugPrintAt(screen, "paused (N steps one frame)", 4, 4)
	}
}

func (a *App) Layout(outW, outH int) (int, int) { return 160, 144 }

// flash shows a short status line at the bottom of the screen.
func (a *App) flash(s string) {
	a.status = s
	a.statusUntil = time.Now().Add(2 * time.Second)
}
