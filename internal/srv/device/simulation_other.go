//go:build !amd64 || !cgo

package device

import "github.com/sirupsen/logrus"

// SimulationWindow has no desktop window on this platform, the emulated panel runs headless.
type SimulationWindow struct{}

func StartSimulationWindow(emulator *Emulator) *SimulationWindow {
	logrus.Infof("No simulation window on this platform, panel is emulated headless")
	return &SimulationWindow{}
}

func (w *SimulationWindow) Close() {
}
