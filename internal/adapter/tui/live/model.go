package live

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"deckstream/internal/adapter/render"
	"deckstream/internal/domain"
)

// Ensure *Model satisfies tea.Model.
var _ tea.Model = (*Model)(nil)

// Sessions is the slice of the session manager the view needs.
type Sessions interface {
	Snapshot(presentationID string) (domain.Snapshot, error)
	Cancel(presentationID string) error
}

// Deps are the dependencies of the live view.
type Deps struct {
	Sessions       Sessions
	Bus            domain.EventBus
	Renderer       *render.Renderer
	PresentationID string
}

var (
	helpStyle   = lipgloss.NewStyle().Faint(true)
	statusStyle = lipgloss.NewStyle().Faint(true).Italic(true)
)

// Model redraws the session snapshot on every progress or state event and
// maps q / ctrl+c to cancelling the session.
type Model struct {
	deps Deps

	frame      string
	width      int
	height     int
	cancelling bool
	done       bool

	programSend func(tea.Msg)
	unsubscribe []func()
}

// New creates the live view.
func New(deps Deps) *Model {
	return &Model{deps: deps}
}

// SetProgramSender sets the function used to inject messages from the
// EventBus. Must be called before Run().
func (m *Model) SetProgramSender(send func(tea.Msg)) {
	m.programSend = send
}

// Init subscribes to session events and draws the first frame.
func (m *Model) Init() tea.Cmd {
	if m.deps.Bus != nil && m.programSend != nil {
		forward := func(_ context.Context, event domain.Event) {
			m.programSend(EventBusMsg{Event: event})
		}
		m.unsubscribe = append(m.unsubscribe,
			m.deps.Bus.Subscribe(domain.EventSessionProgress, forward),
			m.deps.Bus.Subscribe(domain.EventSessionState, forward),
		)
	}
	m.redraw(context.Background())
	return nil
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.deps.Renderer.SetWidth(msg.Width)
		m.redraw(context.Background())
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.done {
				return m, m.quit()
			}
			if !m.cancelling {
				m.cancelling = true
				_ = m.deps.Sessions.Cancel(m.deps.PresentationID)
			}
		}
		return m, nil

	case EventBusMsg:
		if !m.done {
			m.redraw(context.Background())
		}
		return m, nil

	case DoneMsg:
		m.done = true
		return m, m.quit()
	}
	return m, nil
}

func (m *Model) redraw(ctx context.Context) {
	snap, err := m.deps.Sessions.Snapshot(m.deps.PresentationID)
	if err != nil {
		return
	}
	m.frame = m.deps.Renderer.Snapshot(ctx, snap)
}

func (m *Model) quit() tea.Cmd {
	for _, unsub := range m.unsubscribe {
		unsub()
	}
	m.unsubscribe = nil
	return tea.Quit
}

// View renders the current frame, clipped to the terminal height.
func (m *Model) View() string {
	frame := strings.TrimRight(m.frame, "\n")
	footer := helpStyle.Render("q cancel")
	if m.cancelling {
		footer = statusStyle.Render("cancelling...")
	}

	if m.height > 2 {
		lines := strings.Split(frame, "\n")
		if room := m.height - 2; len(lines) > room {
			lines = lines[len(lines)-room:]
		}
		frame = strings.Join(lines, "\n")
	}
	return frame + "\n\n" + footer
}

// Cancelling reports whether the user asked to cancel the session.
func (m *Model) Cancelling() bool { return m.cancelling }
