package mirror

import (
	"context"
	"image"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jypelle/tftmirror/internal/srv/capture"
	"github.com/jypelle/tftmirror/internal/srv/config"
	"github.com/jypelle/tftmirror/internal/srv/device"
	"github.com/sirupsen/logrus"
)

// Renderer copies frames from the active source to the panel until its context ends.
type Renderer struct {
	shared  *Shared
	display *device.Display
	clock   clockwork.Clock

	sleepPollInterval time.Duration
	frameInterval     time.Duration

	frame     []byte
	cursor    cursorTracker
	faulted   capture.Session
	lastFrame time.Time
}

func NewRenderer(shared *Shared, display *device.Display, clock clockwork.Clock, param config.MirrorParam) *Renderer {
	return &Renderer{
		shared:            shared,
		display:           display,
		clock:             clock,
		sleepPollInterval: param.SleepPollInterval,
		frameInterval:     param.FrameInterval,
		frame:             make([]byte, device.FRAME_SIZE),
		cursor:            cursorTracker{threshold: param.CursorIdleFrames},
	}
}

func (r *Renderer) Run(ctx context.Context) error {
	logrus.Infof("Start renderer")
	defer logrus.Infof("Renderer stopped")

	for loop := true; loop; {
		select {
		case <-ctx.Done():
			loop = false
		default:
			r.renderOnce(ctx)
		}
	}
	return nil
}

func (r *Renderer) renderOnce(ctx context.Context) {
	switch r.shared.ActiveSource() {
	case SLEEPING_SOURCE:
		r.wait(ctx, r.sleepPollInterval)
		return
	case LIVE_CAPTURE_SOURCE:
		if r.captureLive() {
			r.draw(ctx)
			return
		}
	}

	r.shared.framebuffer.Snapshot(r.frame)
	r.draw(ctx)
}

// captureLive fills the frame from the live session, returning false when the framebuffer must be used instead.
func (r *Renderer) captureLive() bool {
	session := r.shared.Session()
	if session == nil {
		return false
	}
	if session == r.faulted {
		// until the Arbiter replaces it
		r.shared.ReportFault(session)
		return false
	}

	var pointer image.Point
	err := capture.Guard(func() error {
		if err := session.CaptureFrame(r.frame); err != nil {
			return err
		}
		var err error
		pointer, err = session.Pointer()
		return err
	})
	if err != nil {
		logrus.Warnf("Live capture failed, falling back to framebuffer: %v", err)
		r.faulted = session
		r.shared.ReportFault(session)
		return false
	}

	if r.cursor.Update(pointer) {
		drawCursor(r.frame, pointer)
	}
	return true
}

func (r *Renderer) draw(ctx context.Context) {
	if r.frameInterval > 0 {
		r.wait(ctx, r.frameInterval-r.clock.Since(r.lastFrame))
		r.lastFrame = r.clock.Now()
	}

	r.display.Lock()
	defer r.display.Unlock()

	// the Arbiter may have put the panel to sleep since the source was read
	if r.display.Sleeping() || r.shared.ActiveSource() == SLEEPING_SOURCE {
		return
	}
	r.display.Draw(r.frame, 0)
}

func (r *Renderer) wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-r.clock.After(d):
	}
}
