package device

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/dpms"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/jypelle/tftmirror/internal/srv/capture"
	"github.com/sirupsen/logrus"
)

const (
	captureDepth = 16
	// X server property holding the virtual terminal it runs on
	vtPropertyName = "XFree86_VT"
)

// XCapture opens live capture sessions on an X11 display.
type XCapture struct {
	displayName string
}

func NewXCapture(displayName string) *XCapture {
	return &XCapture{displayName: displayName}
}

func (c *XCapture) Open() (capture.Session, error) {
	conn, err := xgb.NewConnDisplay(c.displayName)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to X display %s: %v", capture.ErrUnavailable, c.displayName, err)
	}

	screen := xproto.Setup(conn).DefaultScreen(conn)
	if screen.WidthInPixels != PANEL_WIDTH || screen.HeightInPixels != PANEL_HEIGHT || screen.RootDepth != captureDepth {
		conn.Close()
		return nil, fmt.Errorf("%w: X display %s is %dx%d at depth %d, expected %dx%d at depth %d",
			capture.ErrUnsupported, c.displayName,
			screen.WidthInPixels, screen.HeightInPixels, screen.RootDepth,
			PANEL_WIDTH, PANEL_HEIGHT, captureDepth)
	}

	s := &XSession{
		conn: conn,
		root: screen.Root,
	}
	if err := dpms.Init(conn); err != nil {
		logrus.Infof("X display %s has no DPMS extension, power saving is never reported: %v", c.displayName, err)
	} else {
		s.dpms = true
	}

	logrus.Infof("Live capture session opened on X display %s", c.displayName)
	return s, nil
}

// XSession is an open X11 connection capturing the root window.
type XSession struct {
	lock   sync.Mutex
	conn   *xgb.Conn
	root   xproto.Window
	dpms   bool
	closed bool
}

var errSessionClosed = errors.New("session closed")

func (s *XSession) CaptureFrame(dst []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return errSessionClosed
	}

	reply, err := xproto.GetImage(s.conn, xproto.ImageFormatZPixmap, xproto.Drawable(s.root),
		0, 0, PANEL_WIDTH, PANEL_HEIGHT, 0xffffffff).Reply()
	if err != nil {
		return fmt.Errorf("getting root window image: %w", err)
	}
	if len(reply.Data) < len(dst) {
		return fmt.Errorf("root window image is %d bytes, expected %d", len(reply.Data), len(dst))
	}
	copy(dst, reply.Data)
	return nil
}

func (s *XSession) PowerSaving() (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return false, errSessionClosed
	}
	if !s.dpms {
		return false, nil
	}

	reply, err := dpms.Info(s.conn).Reply()
	if err != nil {
		return false, fmt.Errorf("querying DPMS state: %w", err)
	}
	return reply.State && reply.PowerLevel != dpms.DPMSModeOn, nil
}

func (s *XSession) Pointer() (image.Point, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return image.Point{}, errSessionClosed
	}

	reply, err := xproto.QueryPointer(s.conn, s.root).Reply()
	if err != nil {
		return image.Point{}, fmt.Errorf("querying pointer: %w", err)
	}
	return image.Pt(int(reply.RootX), int(reply.RootY)), nil
}

func (s *XSession) Console() (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return 0, errSessionClosed
	}

	atom, err := xproto.InternAtom(s.conn, true, uint16(len(vtPropertyName)), vtPropertyName).Reply()
	if err != nil {
		return 0, fmt.Errorf("looking up %s atom: %w", vtPropertyName, err)
	}
	if atom.Atom == xproto.AtomNone {
		return 0, fmt.Errorf("X server does not publish %s", vtPropertyName)
	}

	property, err := xproto.GetProperty(s.conn, false, s.root, atom.Atom, xproto.AtomInteger, 0, 1).Reply()
	if err != nil {
		return 0, fmt.Errorf("reading %s property: %w", vtPropertyName, err)
	}
	if property.Format != 32 || len(property.Value) < 4 {
		return 0, fmt.Errorf("unexpected %s property format %d", vtPropertyName, property.Format)
	}
	return int(xgb.Get32(property.Value)), nil
}

func (s *XSession) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.conn.Close()
	logrus.Infof("Live capture session closed")
	return nil
}
