package device

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

const activeConsoleFile = "/sys/class/tty/tty0/active"

// Console reports the foreground virtual terminal of the host.
type Console struct {
	fs afero.Fs
}

func NewConsole(fs afero.Fs) *Console {
	return &Console{fs: fs}
}

// Active returns the number of the foreground virtual terminal, ttyN giving N.
func (c *Console) Active() (int, error) {
	raw, err := afero.ReadFile(c.fs, activeConsoleFile)
	if err != nil {
		return 0, fmt.Errorf("reading active console: %w", err)
	}

	name := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(name, "tty") {
		return 0, fmt.Errorf("unexpected active console %q", name)
	}
	vt, err := strconv.Atoi(strings.TrimPrefix(name, "tty"))
	if err != nil {
		return 0, fmt.Errorf("unexpected active console %q: %w", name, err)
	}
	return vt, nil
}
