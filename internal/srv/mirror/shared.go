// Package mirror copies the host screen to the panel, choosing between the kernel framebuffer
// and a live window-system capture.
package mirror

import (
	"sync/atomic"

	"github.com/jypelle/tftmirror/internal/srv/capture"
)

type ActiveSource int32

const (
	FRAMEBUFFER_SOURCE ActiveSource = iota
	LIVE_CAPTURE_SOURCE
	SLEEPING_SOURCE
)

func (s ActiveSource) String() string {
	switch s {
	case FRAMEBUFFER_SOURCE:
		return "FRAMEBUFFER"
	case LIVE_CAPTURE_SOURCE:
		return "LIVE_CAPTURE"
	case SLEEPING_SOURCE:
		return "SLEEPING"
	}
	return "UNKNOWN"
}

// FrameSource is a raw 16 bit frame that can be read at any time, tearing included.
type FrameSource interface {
	Snapshot(dst []byte) int
}

// Shared is the mirror context: the Arbiter writes the active source and session,
// the Renderer reads them and reports faults back.
type Shared struct {
	framebuffer FrameSource

	active          atomic.Int32
	session         atomic.Pointer[sessionRef]
	liveUnsupported atomic.Bool
	faults          chan capture.Session
}

type sessionRef struct {
	session capture.Session
}

func NewShared(framebuffer FrameSource) *Shared {
	return &Shared{
		framebuffer: framebuffer,
		faults:      make(chan capture.Session, 1),
	}
}

func (s *Shared) ActiveSource() ActiveSource {
	return ActiveSource(s.active.Load())
}

// Session returns the open live capture session, nil if there is none.
// It may be closed by the Arbiter at any time after being returned.
func (s *Shared) Session() capture.Session {
	ref := s.session.Load()
	if ref == nil {
		return nil
	}
	return ref.session
}

// LiveUnsupported tells whether live capture was disabled for the rest of the run.
func (s *Shared) LiveUnsupported() bool {
	return s.liveUnsupported.Load()
}

// ReportFault tells the Arbiter that session failed. Never blocks, a pending report is enough.
func (s *Shared) ReportFault(session capture.Session) {
	select {
	case s.faults <- session:
	default:
	}
}

func (s *Shared) setActiveSource(source ActiveSource) {
	s.active.Store(int32(source))
}

func (s *Shared) setSession(session capture.Session) {
	if session == nil {
		s.session.Store(nil)
		return
	}
	s.session.Store(&sessionRef{session: session})
}
