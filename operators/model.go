package operators

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/teranos/picar"
)

type frameMsg struct {
	view  string
	state picar.ActuatorState
}

// releaseCheckMsg asks whether key has gone quiet long enough to count as
// released.
type releaseCheckMsg struct {
	key picar.Key
}

var (
	statusStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	forwardStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	backwardStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	stoppedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Padding(0, 1)
)

// statusRows is the height of the status and help lines under the frame.
const statusRows = 2

type consoleModel struct {
	keys         map[string]picar.Key
	releaseAfter time.Duration
	now          func() time.Time
	emit         func(picar.KeyEvent)
	samples      func() int64

	// held maps keys awaiting a synthesized release to when they were last seen.
	held map[picar.Key]time.Time

	mu     sync.Mutex // guards width and height, read by Show
	width  int
	height int

	view   string
	state  picar.ActuatorState
	frames int
}

func newConsoleModel(emit func(picar.KeyEvent)) *consoleModel {
	return &consoleModel{
		keys:         DefaultBindings(),
		releaseAfter: DefaultReleaseAfter,
		now:          time.Now,
		emit:         emit,
		samples:      func() int64 { return 0 },
		held:         map[picar.Key]time.Time{},
		width:        80,
		height:       24,
		state:        picar.Neutral(),
	}
}

func (m *consoleModel) Init() tea.Cmd {
	return nil
}

func (m *consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.keyPressed(msg)

	case releaseCheckMsg:
		return m, m.checkRelease(msg.key)

	case tea.WindowSizeMsg:
		m.mu.Lock()
		m.width, m.height = msg.Width, msg.Height
		m.mu.Unlock()

	case frameMsg:
		m.view = msg.view
		m.state = msg.state
		m.frames++
	}
	return m, nil
}

// keyPressed emits a press for every key message, including autorepeats.
func (m *consoleModel) keyPressed(msg tea.KeyMsg) tea.Cmd {
	k, ok := m.keys[strings.ToLower(msg.String())]
	if !ok {
		m.emit(picar.PressOf(picar.KeyUnknown))
		return nil
	}

	m.emit(picar.PressOf(k))
	if k == picar.KeyQuit {
		return nil
	}

	_, waiting := m.held[k]
	m.held[k] = m.now()
	if waiting {
		return nil
	}
	return m.scheduleCheck(k, m.releaseAfter)
}

func (m *consoleModel) checkRelease(k picar.Key) tea.Cmd {
	last, ok := m.held[k]
	if !ok {
		return nil
	}
	if quiet := m.now().Sub(last); quiet < m.releaseAfter {
		return m.scheduleCheck(k, m.releaseAfter-quiet)
	}

	delete(m.held, k)
	m.emit(picar.ReleaseOf(k))
	return nil
}

func (m *consoleModel) scheduleCheck(k picar.Key, d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return releaseCheckMsg{key: k}
	})
}

// frameArea returns the cells available to the camera view.
func (m *consoleModel) frameArea() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.width, max(m.height-statusRows, 1)
}

func (m *consoleModel) View() string {
	var b strings.Builder

	if m.view != "" {
		b.WriteString(m.view)
		b.WriteByte('\n')
	} else {
		b.WriteString("waiting for camera...\n")
	}

	dir := stoppedStyle.Render(m.state.Direction.String())
	switch m.state.Direction {
	case picar.Forward:
		dir = forwardStyle.Render(m.state.Direction.String())
	case picar.Backward:
		dir = backwardStyle.Render(m.state.Direction.String())
	}

	b.WriteString(statusStyle.Render(fmt.Sprintf("angle %3d  speed %3d", m.state.SteeringAngle, m.state.Speed)))
	b.WriteString(dir)
	b.WriteString(statusStyle.Render(fmt.Sprintf("frames %d  samples %d", m.frames, m.samples())))
	b.WriteByte('\n')
	b.WriteString(helpStyle.Render("w/s drive  a/d steer  q quit"))

	return b.String()
}
