package mirror

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jypelle/tftmirror/internal/srv/capture"
	"github.com/jypelle/tftmirror/internal/srv/config"
	"github.com/jypelle/tftmirror/internal/srv/device"
	"github.com/sirupsen/logrus"
)

// Console reports the foreground virtual terminal of the host.
type Console interface {
	Active() (int, error)
}

// Arbiter decides once per tick which source the Renderer shows and whether the panel sleeps.
// It is the only owner of the live capture session.
type Arbiter struct {
	shared  *Shared
	display *device.Display
	source  capture.Source
	console Console
	clock   clockwork.Clock

	tickInterval time.Duration
	consoleCheck bool

	session     capture.Session
	unsupported bool
}

func NewArbiter(shared *Shared, display *device.Display, source capture.Source, console Console, clock clockwork.Clock, param config.MirrorParam) *Arbiter {
	return &Arbiter{
		shared:       shared,
		display:      display,
		source:       source,
		console:      console,
		clock:        clock,
		tickInterval: param.TickInterval,
		consoleCheck: param.ConsoleCheck,
	}
}

// Probe makes a first attempt at opening a live session.
// A window system that can never be captured is reported as an error, an absent one is not.
func (a *Arbiter) Probe() error {
	err := a.openSession()
	if errors.Is(err, capture.ErrUnsupported) {
		return err
	}
	return nil
}

func (a *Arbiter) Run(ctx context.Context) error {
	logrus.Infof("Start arbiter")
	defer logrus.Infof("Arbiter stopped")
	defer a.closeSession()

	ticker := a.clock.NewTicker(a.tickInterval)
	defer ticker.Stop()

	a.tick(ctx)
	for loop := true; loop; {
		select {
		case <-ctx.Done():
			loop = false
		case session := <-a.shared.faults:
			a.handleFault(session)
		case <-ticker.Chan():
			a.tick(ctx)
		}
	}
	return nil
}

func (a *Arbiter) tick(ctx context.Context) {
	if a.session == nil && !a.unsupported {
		a.openSession()
	}

	sleeping := false
	if a.session != nil {
		err := capture.Guard(func() error {
			var err error
			sleeping, err = a.session.PowerSaving()
			return err
		})
		if err != nil {
			logrus.Warnf("Unable to query live capture power state: %v", err)
			a.dropSession()
			// keep the panel as it is, a later tick decides with a fresh session
			sleeping = a.shared.ActiveSource() == SLEEPING_SOURCE
		}
	}

	state := a.shared.ActiveSource()
	switch {
	case sleeping && state != SLEEPING_SOURCE:
		a.sleep(ctx)
	case !sleeping && state == SLEEPING_SOURCE:
		a.wake()
	case state == SLEEPING_SOURCE:
		// still asleep
	case a.session != nil:
		a.selectSource()
	default:
		a.setActiveSource(FRAMEBUFFER_SOURCE)
	}
}

// sleep darkens the panel, lets the Renderer notice it must stop drawing, then puts the panel to sleep.
func (a *Arbiter) sleep(ctx context.Context) {
	logrus.Infof("Host output powered down, panel goes to sleep")
	a.setActiveSource(SLEEPING_SOURCE)

	a.display.Lock()
	a.display.Brightness(0)
	a.display.Unlock()

	select {
	case <-ctx.Done():
		return
	case <-a.clock.After(a.tickInterval):
	}

	a.display.Lock()
	a.display.SetSleep(true)
	a.display.Unlock()
}

func (a *Arbiter) wake() {
	logrus.Infof("Host output powered up, panel wakes up")

	a.display.Lock()
	a.display.SetSleep(false)
	a.display.Unlock()

	a.setActiveSource(FRAMEBUFFER_SOURCE)
}

// selectSource shows the live session only when its console is in the foreground.
func (a *Arbiter) selectSource() {
	if !a.consoleCheck {
		a.setActiveSource(LIVE_CAPTURE_SOURCE)
		return
	}

	var sessionConsole int
	err := capture.Guard(func() error {
		var err error
		sessionConsole, err = a.session.Console()
		return err
	})
	if err != nil {
		logrus.Warnf("Unable to query live capture console: %v", err)
		a.dropSession()
		a.setActiveSource(FRAMEBUFFER_SOURCE)
		return
	}

	activeConsole, err := a.console.Active()
	if err != nil {
		logrus.Warnf("Unable to query active console: %v", err)
		a.setActiveSource(FRAMEBUFFER_SOURCE)
		return
	}

	if activeConsole == sessionConsole {
		a.setActiveSource(LIVE_CAPTURE_SOURCE)
	} else {
		a.setActiveSource(FRAMEBUFFER_SOURCE)
	}
}

// handleFault drops the session the Renderer failed on, unless it was already replaced.
func (a *Arbiter) handleFault(session capture.Session) {
	if session == nil || session != a.session {
		return
	}
	logrus.Warnf("Live capture faulted, falling back to framebuffer")
	a.dropSession()
}

func (a *Arbiter) openSession() error {
	var session capture.Session
	err := capture.Guard(func() error {
		var err error
		session, err = a.source.Open()
		return err
	})

	switch {
	case err == nil:
		a.session = session
		a.shared.setSession(session)
	case errors.Is(err, capture.ErrUnsupported):
		logrus.Errorf("Live capture disabled: %v", err)
		a.unsupported = true
		a.shared.liveUnsupported.Store(true)
	default:
		logrus.Debugf("Live capture not available yet: %v", err)
	}
	return err
}

// dropSession stops the Renderer from using the session before closing it.
func (a *Arbiter) dropSession() {
	if a.shared.ActiveSource() == LIVE_CAPTURE_SOURCE {
		a.setActiveSource(FRAMEBUFFER_SOURCE)
	}
	a.closeSession()
}

func (a *Arbiter) closeSession() {
	if a.session == nil {
		return
	}
	session := a.session
	a.session = nil
	a.shared.setSession(nil)

	if err := capture.Guard(session.Close); err != nil {
		logrus.Warnf("Unable to close live capture session: %v", err)
	}
}

func (a *Arbiter) setActiveSource(source ActiveSource) {
	if previous := a.shared.ActiveSource(); previous != source {
		logrus.Infof("Mirror source %s -> %s", previous, source)
		a.shared.setActiveSource(source)
	}
}
