// Package keys reads single key presses from the controlling terminal.
package keys

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/term"
)

// ErrNotTerminal is returned by Open when stdin is not a terminal.
var ErrNotTerminal = errors.New("keys: stdin is not a terminal")

const (
	ctrlC = 0x03
	ctrlD = 0x04
	esc   = 0x1b
)

// Terminal puts stdin in raw mode and delivers key presses on a channel.
type Terminal struct {
	fd     int
	old    *term.State
	keys   chan rune
	stopCh chan struct{}
	once   sync.Once
	logger *slog.Logger
}

// Open switches stdin to raw mode. Close restores it.
func Open(logger *slog.Logger) (*Terminal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, ErrNotTerminal
	}

	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}

	t := &Terminal{
		fd:     fd,
		old:    old,
		keys:   make(chan rune, 16),
		stopCh: make(chan struct{}),
		logger: logger.With("component", "keys"),
	}
	// The read blocks until the next key; the goroutine ends with the process
	// or on the first key after Close.
	go readKeys(os.Stdin, t.keys, t.stopCh)
	return t, nil
}

// Keys returns the key channel. It is closed when stdin ends.
func (t *Terminal) Keys() <-chan rune {
	return t.keys
}

// Close restores the terminal state.
func (t *Terminal) Close() error {
	var err error
	t.once.Do(func() {
		close(t.stopCh)
		err = term.Restore(t.fd, t.old)
	})
	return err
}

// readKeys forwards bytes from r as keys until r ends or stop is closed.
// Raw mode disables signal generation, so Ctrl-C and Ctrl-D become Esc.
func readKeys(r io.Reader, keys chan<- rune, stop <-chan struct{}) {
	defer close(keys)
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			key := rune(buf[0])
			if key == ctrlC || key == ctrlD {
				key = esc
			}
			select {
			case keys <- key:
			case <-stop:
				return
			}
		}
		if err != nil {
			return
		}
	}
}
