// Package capture describes the live window-system capture layer consumed by the mirror.
package capture

import (
	"errors"
	"fmt"
	"image"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

var (
	// ErrUnavailable means no session can be opened right now, try again later.
	ErrUnavailable = errors.New("live capture unavailable")
	// ErrUnsupported means the window system does not match the panel contract and will never do.
	ErrUnsupported = errors.New("live capture unsupported")
	// ErrFault means the capture layer failed while serving an open session.
	ErrFault = errors.New("live capture fault")
)

// Source opens live capture sessions.
type Source interface {
	Open() (Session, error)
}

// Session is an open connection to the window system.
// All methods may fail at any time, including after Close was called from another goroutine.
type Session interface {
	// CaptureFrame copies a full frame of 16-bit pixels into dst.
	CaptureFrame(dst []byte) error
	// PowerSaving reports whether the host has powered down its output.
	PowerSaving() (bool, error)
	// Pointer returns the pointer position in frame coordinates.
	Pointer() (image.Point, error)
	// Console returns the virtual console owning the session.
	Console() (int, error)
	Close() error
}

// Guard runs fn and converts a panic raised inside the capture layer into ErrFault,
// so a single corrupt reply does not terminate the process.
func Guard(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logrus.Debugf("recovered from capture panic: [%v] - stack trace : \n [%s]", rec, debug.Stack())
			err = fmt.Errorf("%w: %v", ErrFault, rec)
		}
	}()
	return fn()
}
