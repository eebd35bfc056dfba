//go:build amd64 && cgo

package device

import (
	"gioui.org/app"
	"gioui.org/io/system"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/paint"
	"gioui.org/unit"
	"gioui.org/widget"
	"github.com/sirupsen/logrus"
)

// SimulationWindow shows the emulated panel in a desktop window.
type SimulationWindow struct {
	emulator *Emulator
	window   *app.Window
}

func StartSimulationWindow(emulator *Emulator) *SimulationWindow {
	logrus.Infof("Start simulation window")

	w := &SimulationWindow{
		emulator: emulator,
		window: app.NewWindow(
			app.Title("tftmirror"),
			app.Size(unit.Px(PANEL_WIDTH), unit.Px(PANEL_HEIGHT)),
			app.MinSize(unit.Px(PANEL_WIDTH/2), unit.Px(PANEL_HEIGHT/2)),
		),
	}
	emulator.SetOnChange(w.window.Invalidate)

	go func() {
		if err := w.gioloop(); err != nil {
			logrus.Errorf("Simulation window closed: %v", err)
		}
	}()
	go app.Main()

	return w
}

func (w *SimulationWindow) Close() {
	w.emulator.SetOnChange(nil)
	w.window.Close()
}

func (w *SimulationWindow) gioloop() error {
	var ops op.Ops
	for {
		e := <-w.window.Events()
		switch e := e.(type) {
		case system.DestroyEvent:
			return e.Err
		case system.FrameEvent:
			gtx := layout.NewContext(&ops, e)

			img := widget.Image{Src: paint.NewImageOp(w.emulator.Snapshot()), Fit: widget.Contain}
			img.Layout(gtx)
			e.Frame(gtx.Ops)
		}
	}
}
