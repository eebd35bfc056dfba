package srv

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/jypelle/tftmirror/apimodel"
	"github.com/jypelle/tftmirror/internal/srv/capture"
	"github.com/jypelle/tftmirror/internal/srv/config"
	"github.com/jypelle/tftmirror/internal/srv/device"
	"github.com/jypelle/tftmirror/internal/srv/mirror"
	"github.com/jypelle/tftmirror/internal/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// FramebufferDevice is a mapped framebuffer the mirror can read from.
type FramebufferDevice interface {
	mirror.FrameSource
	Close() error
}

// Collaborators are the hardware and host dependencies of the server.
type Collaborators struct {
	Transport        device.Transport
	SimulationWindow *device.SimulationWindow
	OpenFramebuffer  func(path string) (FramebufferDevice, error)
	Source           capture.Source
	Console          mirror.Console
	Clock            clockwork.Clock
}

type ServerApp struct {
	*config.ServerConfig
	Collaborators

	addressFlags device.AddressFlags

	displayDevice     *device.Display
	framebufferDevice FramebufferDevice
	apiDevice         *device.Api

	shared   *mirror.Shared
	arbiter  *mirror.Arbiter
	renderer *mirror.Renderer

	cancel context.CancelFunc
	group  *errgroup.Group
}

func NewServerApp(configDir string, debugMode bool, simulationMode bool) (*ServerApp, error) {
	logrus.Debugf("Creation of tftmirror server %s ...", version.AppVersion.String())

	serverConfig, err := config.NewServerConfig(configDir, debugMode, simulationMode)
	if err != nil {
		return nil, err
	}

	fs := afero.NewOsFs()
	collaborators := Collaborators{
		OpenFramebuffer: func(path string) (FramebufferDevice, error) {
			return device.OpenFramebuffer(path, fs)
		},
		Source:  device.NewXCapture(serverConfig.MirrorParam.XDisplay),
		Console: device.NewConsole(fs),
		Clock:   clockwork.NewRealClock(),
	}

	if serverConfig.SimulationMode {
		emulator := device.NewEmulator(serverConfig.PanelParam.MaxTransfer)
		collaborators.Transport = emulator
		collaborators.SimulationWindow = device.StartSimulationWindow(emulator)
	} else {
		collaborators.Transport, err = device.NewSpiTransport(serverConfig.PanelParam, collaborators.Clock)
		if err != nil {
			return nil, err
		}
	}

	app, err := newServerApp(serverConfig, collaborators)
	if err != nil {
		collaborators.Transport.Close()
		return nil, err
	}

	logrus.Debugln("Server created")
	return app, nil
}

func newServerApp(serverConfig *config.ServerConfig, collaborators Collaborators) (*ServerApp, error) {
	addressFlags, err := device.ParseAddressOptions(serverConfig.PanelParam.AddressOptions)
	if err != nil {
		return nil, fmt.Errorf("invalid panel.address_options: %w", err)
	}
	if collaborators.Clock == nil {
		collaborators.Clock = clockwork.NewRealClock()
	}

	app := &ServerApp{
		ServerConfig:  serverConfig,
		Collaborators: collaborators,
		addressFlags:  addressFlags,
	}
	app.displayDevice = device.NewDisplay(collaborators.Transport, collaborators.Clock)
	if serverConfig.ApiParam.Enabled {
		app.apiDevice = device.NewApi(serverConfig, app)
	}
	return app, nil
}

// Start sets the panel up and launches the mirror workers. An error leaves the panel dark.
func (s *ServerApp) Start() error {
	logrus.Printf("Starting tftmirror server ...")

	framebufferDevice, err := s.OpenFramebuffer(s.MirrorParam.Framebuffer)
	if err != nil {
		return fmt.Errorf("unable to map framebuffer: %w", err)
	}
	s.framebufferDevice = framebufferDevice
	s.shared = mirror.NewShared(framebufferDevice)

	logrus.Infof("Start display device")
	s.displayDevice.Lock()
	s.displayDevice.CombinedSetup(device.COLOUR_FORMAT_16_BIT, s.addressFlags)
	s.displayDevice.Unlock()

	// Display startup screen
	s.showSplash()

	s.arbiter = mirror.NewArbiter(s.shared, s.displayDevice, s.Source, s.Console, s.Clock, s.MirrorParam)
	s.renderer = mirror.NewRenderer(s.shared, s.displayDevice, s.Clock, s.MirrorParam)
	if err := s.arbiter.Probe(); err != nil {
		s.powerDown()
		s.framebufferDevice.Close()
		s.framebufferDevice = nil
		return err
	}

	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())
	s.group, ctx = errgroup.WithContext(ctx)
	s.group.Go(func() error { return s.arbiter.Run(ctx) })
	s.group.Go(func() error { return s.renderer.Run(ctx) })

	if s.apiDevice != nil {
		if err := s.apiDevice.Start(); err != nil {
			logrus.Errorf("Api disabled: %v", err)
			s.apiDevice = nil
		}
	}

	logrus.Printf("Server started")
	return nil
}

// Stop joins the workers and powers the panel down.
func (s *ServerApp) Stop() {
	logrus.Printf("Stopping tftmirror server ...")

	if s.apiDevice != nil {
		s.apiDevice.Stop()
	}

	joined := true
	if s.cancel != nil {
		logrus.Infof("Stop mirror workers")
		s.cancel()

		done := make(chan error, 1)
		go func() {
			done <- s.group.Wait()
		}()
		select {
		case err := <-done:
			if err != nil {
				logrus.Warnf("Mirror workers ended with error: %v", err)
			}
		case <-s.Clock.After(s.MirrorParam.StopTimeout):
			logrus.Warnf("Mirror workers still running after %s", s.MirrorParam.StopTimeout)
			joined = false
		}
	}

	// a worker still running may read the mapping
	if joined && s.framebufferDevice != nil {
		if err := s.framebufferDevice.Close(); err != nil {
			logrus.Warnf("Unable to unmap framebuffer: %v", err)
		}
	}

	logrus.Infof("Stop display device")
	s.powerDown()

	if s.SimulationWindow != nil {
		s.SimulationWindow.Close()
	}
	if err := s.Transport.Close(); err != nil {
		logrus.Warnf("Unable to close panel transport: %v", err)
	}

	logrus.Printf("Server stopped")
}

func (s *ServerApp) powerDown() {
	s.displayDevice.Lock()
	defer s.displayDevice.Unlock()
	s.displayDevice.SoftwareReset()
	s.displayDevice.Brightness(0)
}

func (s *ServerApp) Status() apimodel.Status {
	status := apimodel.Status{
		Version:       version.AppVersion.String(),
		ActiveSource:  mirror.FRAMEBUFFER_SOURCE.String(),
		LiveCapture:   apimodel.LIVE_CAPTURE_CLOSED,
		MaxBrightness: device.MAX_BRIGHTNESS,
	}
	if s.shared != nil {
		status.ActiveSource = s.shared.ActiveSource().String()
		switch {
		case s.shared.LiveUnsupported():
			status.LiveCapture = apimodel.LIVE_CAPTURE_UNSUPPORTED
		case s.shared.Session() != nil:
			status.LiveCapture = apimodel.LIVE_CAPTURE_OPEN
		}
	}

	s.displayDevice.Lock()
	defer s.displayDevice.Unlock()
	status.Sleeping = s.displayDevice.Sleeping()
	status.Brightness = s.displayDevice.CurrentBrightness()
	status.PreviousBrightness = s.displayDevice.PreviousBrightness()
	return status
}

func (s *ServerApp) SetBrightness(brightness int) error {
	if brightness < 0 || brightness > device.MAX_BRIGHTNESS {
		return fmt.Errorf("brightness %d out of range 0..%d", brightness, device.MAX_BRIGHTNESS)
	}

	s.displayDevice.Lock()
	defer s.displayDevice.Unlock()
	if s.displayDevice.Sleeping() || (s.shared != nil && s.shared.ActiveSource() == mirror.SLEEPING_SOURCE) {
		return device.ErrPanelSleeping
	}
	s.displayDevice.Brightness(brightness)
	return nil
}

var _ device.MirrorController = (*ServerApp)(nil)
