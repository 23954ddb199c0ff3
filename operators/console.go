// Package operators holds the operator-facing front ends of a session.
//
// Console is a bubbletea program that turns terminal key presses into
// picar key events and shows the live camera feed with the commanded
// actuator state.
package operators

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/teranos/picar"
)

// DefaultReleaseAfter sits above the usual keyboard autorepeat delay, so a
// held key keeps producing presses before its release is synthesized.
const DefaultReleaseAfter = 600 * time.Millisecond

// ErrConsoleRunning is returned by Start on a console that was already started.
var ErrConsoleRunning = errors.New("console already started")

// DefaultBindings is the stock key map.
func DefaultBindings() map[string]picar.Key {
	return map[string]picar.Key{
		"w":      picar.KeyForward,
		"up":     picar.KeyForward,
		"s":      picar.KeyBackward,
		"down":   picar.KeyBackward,
		"a":      picar.KeyLeft,
		"left":   picar.KeyLeft,
		"d":      picar.KeyRight,
		"right":  picar.KeyRight,
		"q":      picar.KeyQuit,
		"ctrl+c": picar.KeyQuit,
		"esc":    picar.KeyQuit,
	}
}

// Option configures a Console.
type Option func(*Console)

// WithBindings replaces the key map. Names are bubbletea key strings.
func WithBindings(keys map[string]picar.Key) Option {
	return func(c *Console) {
		c.model.keys = make(map[string]picar.Key, len(keys))
		for name, k := range keys {
			c.model.keys[strings.ToLower(name)] = k
		}
	}
}

// WithReleaseAfter sets how long a key may go without a repeat before its
// release is synthesized.
func WithReleaseAfter(d time.Duration) Option {
	return func(c *Console) {
		if d > 0 {
			c.model.releaseAfter = d
		}
	}
}

// WithProgramOptions passes options through to the bubbletea program.
func WithProgramOptions(opts ...tea.ProgramOption) Option {
	return func(c *Console) { c.programOpts = append(c.programOpts, opts...) }
}

// Console is both the keyboard InputSource and the live Display of a session.
type Console struct {
	model       *consoleModel
	program     *tea.Program
	programOpts []tea.ProgramOption

	events chan picar.KeyEvent
	closed chan struct{}
	done   chan struct{}

	started   atomic.Bool
	closeOnce sync.Once
	runErr    error
	samples   atomic.Int64
}

// NewConsole builds a console. Nothing touches the terminal until Start.
func NewConsole(opts ...Option) *Console {
	c := &Console{
		events: make(chan picar.KeyEvent, 64),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	c.model = newConsoleModel(c.emit)
	c.programOpts = []tea.ProgramOption{tea.WithAltScreen()}
	for _, opt := range opts {
		opt(c)
	}
	c.model.samples = c.samples.Load
	return c
}

// Events implements picar.InputSource. The channel is closed when the
// program exits.
func (c *Console) Events() <-chan picar.KeyEvent {
	return c.events
}

// Start runs the program in the background.
func (c *Console) Start() error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrConsoleRunning
	}
	c.program = tea.NewProgram(c.model, c.programOpts...)
	go func() {
		defer close(c.done)
		defer close(c.events)
		_, c.runErr = c.program.Run()
	}()
	return nil
}

// Show implements picar.Display. The frame is rendered right away since
// its pixels are only valid until the next read.
func (c *Console) Show(f picar.Frame, s picar.ActuatorState) error {
	if c.program == nil {
		return nil
	}
	select {
	case <-c.done:
		return nil
	default:
	}

	cols, rows := c.model.frameArea()
	cols, rows = picar.FitCells(f.Image.Bounds(), cols, rows)
	c.program.Send(frameMsg{
		view:  picar.FrameToANSI(f.Image, cols, rows),
		state: s,
	})
	return nil
}

// CountSample bumps the saved sample counter on the status line.
func (c *Console) CountSample() {
	c.samples.Add(1)
}

// Close stops the program, restores the terminal and returns the
// program's error. Safe to call more than once.
func (c *Console) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.program == nil {
			close(c.events)
			close(c.done)
			return
		}
		c.program.Quit()
	})
	<-c.done
	return c.runErr
}

// emit hands an event to the session. It gives up once the console closes.
func (c *Console) emit(ev picar.KeyEvent) {
	select {
	case c.events <- ev:
	case <-c.closed:
	}
}

var (
	_ picar.InputSource = (*Console)(nil)
	_ picar.Display     = (*Console)(nil)
)
