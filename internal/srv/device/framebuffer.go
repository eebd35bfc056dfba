package device

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// FRAME_SIZE is the byte size of a full panel frame in 16 bit colour.
const FRAME_SIZE = PANEL_WIDTH * PANEL_HEIGHT * 2

const graphicsSysfsDir = "/sys/class/graphics"

// Framebuffer is a read-only mapping of a 320x240 16 bit framebuffer device.
type Framebuffer struct {
	lock sync.RWMutex
	path string
	fd   int
	data []byte
}

// OpenFramebuffer validates the framebuffer geometry and maps it.
// Device nodes named fbN are checked through sysfs (read from fs), any other file by its size.
func OpenFramebuffer(path string, fs afero.Fs) (*Framebuffer, error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("opening framebuffer %s: %w", path, err)
	}

	if err := validateFramebuffer(path, fd, fs); err != nil {
		unix.Close(fd)
		return nil, err
	}

	data, err := unix.Mmap(fd, 0, FRAME_SIZE, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("memory-mapping framebuffer %s: %w", path, err)
	}

	logrus.Infof("Framebuffer %s mapped", path)
	return &Framebuffer{path: path, fd: fd, data: data}, nil
}

func validateFramebuffer(path string, fd int, fs afero.Fs) error {
	name := filepath.Base(path)
	if !strings.HasPrefix(name, "fb") {
		var stat unix.Stat_t
		if err := unix.Fstat(fd, &stat); err != nil {
			return fmt.Errorf("stating framebuffer %s: %w", path, err)
		}
		if stat.Size < FRAME_SIZE {
			return fmt.Errorf("framebuffer %s is %d bytes but %d are needed", path, stat.Size, FRAME_SIZE)
		}
		return nil
	}

	sysfsDir := filepath.Join(graphicsSysfsDir, name)
	virtualSize, err := readSysfsValue(fs, filepath.Join(sysfsDir, "virtual_size"))
	if err != nil {
		return err
	}
	bitsPerPixel, err := readSysfsValue(fs, filepath.Join(sysfsDir, "bits_per_pixel"))
	if err != nil {
		return err
	}

	wantSize := fmt.Sprintf("%d,%d", PANEL_WIDTH, PANEL_HEIGHT)
	if virtualSize != wantSize {
		return fmt.Errorf("framebuffer %s is %s, expected %s", path, virtualSize, wantSize)
	}
	if bits, err := strconv.Atoi(bitsPerPixel); err != nil || bits != 16 {
		return fmt.Errorf("framebuffer %s has %s bits per pixel, expected 16", path, bitsPerPixel)
	}
	return nil
}

func readSysfsValue(fs afero.Fs, path string) (string, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// Snapshot copies the current frame into dst and returns the number of bytes copied,
// 0 once the framebuffer is closed.
func (f *Framebuffer) Snapshot(dst []byte) int {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return copy(dst, f.data)
}

func (f *Framebuffer) Close() error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.data == nil {
		return nil
	}

	var errs []error
	if err := unix.Munmap(f.data); err != nil {
		errs = append(errs, fmt.Errorf("unmapping framebuffer: %w", err))
	}
	if err := unix.Close(f.fd); err != nil {
		errs = append(errs, fmt.Errorf("closing framebuffer fd: %w", err))
	}
	f.data = nil
	logrus.Infof("Framebuffer %s unmapped", f.path)
	return errors.Join(errs...)
}
