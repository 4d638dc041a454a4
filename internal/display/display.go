// Package display provides the terminal UI using Bubble Tea.
//
// The [UI] shows a sensor status bar, a camera preview, the operator log
// line with a short history, and an input prompt for typed commands.
// Log lines reach the event loop as messages, so concurrent writes never
// garble the display.
package display

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hammamikhairi/kinectdrone/internal/camera"
	"github.com/hammamikhairi/kinectdrone/internal/domain"
	"github.com/hammamikhairi/kinectdrone/internal/engine"
	"github.com/hammamikhairi/kinectdrone/internal/storage"
)

// Compile-time interface check.
var _ domain.CommandHandler = (*UI)(nil)

// ── Styles ───────────────────────────────────────────────────────

var (
	barBg = lipgloss.NewStyle().
		Background(lipgloss.Color("#27272a")).
		Foreground(lipgloss.Color("#a1a1aa"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#a1a1aa"))

	sepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#52525b"))

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#94a3b8"))

	connectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bbf7d0"))

	commandStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#fde68a"))

	// BannerStyle is muted slate for the startup banner.
	BannerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#94a3b8"))

	logLineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d4d4d8")).
			Bold(true)

	historyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#71717a"))

	urgentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#fca5a5"))

	userInputEchoStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#a1a1aa"))
)

const (
	historyLines = 4
	previewCols  = 64
	refreshEvery = 200 * time.Millisecond
	promptText   = "drone> "
)

// ── UI ───────────────────────────────────────────────────────────

// UI manages the terminal through Bubble Tea.
//
// Call [NewUI] then [UI.Run] (blocking). Other goroutines may call
// [UI.Printf], [UI.SetStatus], [UI.Handle] and read [UI.Events] at any
// time after [UI.WaitReady] returns.
type UI struct {
	program *tea.Program
	store   *storage.LogStore
	events  chan domain.SpeechEvent
	readyCh chan struct{}
	done    atomic.Bool
	bitmap  atomic.Pointer[camera.Bitmap]
	now     func() time.Time
}

// NewUI creates the display. store may be nil.
func NewUI(store *storage.LogStore) *UI {
	return &UI{
		store:   store,
		events:  make(chan domain.SpeechEvent, 16),
		readyCh: make(chan struct{}),
		now:     time.Now,
	}
}

// Events delivers typed commands as recognition events.
func (u *UI) Events() <-chan domain.SpeechEvent { return u.events }

// TypedEvent turns a typed line into a recognized speech event with full
// confidence, so it passes through the same gates as spoken commands.
func TypedEvent(line string, at time.Time) domain.SpeechEvent {
	return domain.SpeechEvent{
		Kind: domain.SpeechRecognized,
		RecognitionEvent: domain.RecognitionEvent{
			Text:       strings.TrimSpace(line),
			Confidence: 1.0,
			Timestamp:  at,
		},
	}
}

func (u *UI) send(msg tea.Msg) bool {
	if u.program != nil && !u.done.Load() {
		u.program.Send(msg)
		return true
	}
	return false
}

// Printf replaces the log line. Thread-safe. Before the program starts
// the line goes to stdout.
func (u *UI) Printf(format string, a ...interface{}) {
	line := fmt.Sprintf(format, a...)
	if !u.send(logLineMsg(line)) {
		fmt.Println(line)
	}
}

// SetStatus shows a new sensor status.
func (u *UI) SetStatus(status domain.SensorStatus) {
	u.send(statusMsg(status))
}

// SetBitmap selects the surface the camera preview is drawn from.
func (u *UI) SetBitmap(b *camera.Bitmap) {
	u.bitmap.Store(b)
}

// Handle shows cmd as the last accepted command.
func (u *UI) Handle(ctx context.Context, cmd domain.VoiceCommand) error {
	u.send(commandMsg(cmd))
	return nil
}

// WaitReady blocks until the Bubble Tea event loop is running.
func (u *UI) WaitReady() { <-u.readyCh }

// Quit tells Bubble Tea to exit.
func (u *UI) Quit() {
	if u.program != nil {
		u.program.Quit()
	}
}

// Run starts the Bubble Tea event loop. Blocks until quit.
func (u *UI) Run(initial domain.SensorStatus) error {
	m := newModel(u.store, &u.bitmap, initial)
	m.readyCh = u.readyCh
	m.submit = func(line string) {
		select {
		case u.events <- TypedEvent(line, u.now()):
		default:
		}
	}

	u.program = tea.NewProgram(m)
	_, err := u.program.Run()
	u.done.Store(true)
	return err
}

// ── Bubble Tea model ─────────────────────────────────────────────

type model struct {
	store   *storage.LogStore
	bitmap  *atomic.Pointer[camera.Bitmap]
	input   textinput.Model
	readyCh chan struct{}
	submit  func(string)

	status  domain.SensorStatus
	lastCmd domain.VoiceCommand
	hasCmd  bool
	logLine string
	history []storage.Entry
	preview string
	version uint64
	width   int
}

func newModel(store *storage.LogStore, bitmap *atomic.Pointer[camera.Bitmap], status domain.SensorStatus) model {
	ti := textinput.New()
	// Plain-text prompt: styled prompts break textinput width math.
	ti.Prompt = promptText
	ti.PromptStyle = promptStyle
	ti.TextStyle = userInputEchoStyle
	ti.Cursor.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#94a3b8"))
	ti.Placeholder = "Drone Take off"
	ti.Focus()
	ti.CharLimit = 200
	ti.Width = 60 // updated on first WindowSizeMsg

	return model{
		store:   store,
		bitmap:  bitmap,
		input:   ti,
		status:  status,
		logLine: engine.FormatLine(engine.LineWelcome()),
	}
}

// Messages.
type (
	tickMsg    time.Time
	logLineMsg string
	statusMsg  domain.SensorStatus
	commandMsg domain.VoiceCommand
)

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		tickCmd(),
		signalReady(m.readyCh),
		tea.SetWindowTitle("Kinect Drone"),
	)
}

func signalReady(ch chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if ch != nil {
			close(ch)
		}
		return nil
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			v := m.input.Value()
			m.input.Reset()
			if strings.TrimSpace(v) != "" && m.submit != nil {
				m.submit(v)
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		if msg.Width > len(promptText) {
			m.input.Width = msg.Width - len(promptText)
		}
		return m, nil

	case logLineMsg:
		m.logLine = string(msg)
		m.refreshHistory()
		return m, nil

	case statusMsg:
		m.status = domain.SensorStatus(msg)
		return m, nil

	case commandMsg:
		m.lastCmd = domain.VoiceCommand(msg)
		m.hasCmd = true
		return m, nil

	case tickMsg:
		m.refreshHistory()
		m.refreshPreview()
		return m, tickCmd()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) refreshHistory() {
	if m.store == nil {
		return
	}
	// The newest entry is the log line itself.
	recent := m.store.Recent(historyLines + 1)
	if len(recent) > 0 {
		recent = recent[:len(recent)-1]
	}
	m.history = recent
}

func (m *model) refreshPreview() {
	if m.bitmap == nil {
		return
	}
	b := m.bitmap.Load()
	if b == nil {
		return
	}
	if v := b.Version(); v != m.version || m.preview == "" {
		m.version = v
		m.preview = RenderPreview(b, previewCols)
	}
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(m.renderBar())
	b.WriteByte('\n')

	if m.preview != "" {
		b.WriteString(m.preview)
		b.WriteByte('\n')
	}

	for _, e := range m.history {
		style := historyStyle
		if e.Urgent {
			style = urgentStyle
		}
		b.WriteString(style.Render(e.At.Format("15:04:05") + " " + e.Text))
		b.WriteByte('\n')
	}
	b.WriteString(logLineStyle.Render(m.logLine))
	b.WriteByte('\n')

	// Blank line before prompt for visual separation.
	b.WriteByte('\n')
	b.WriteString(m.input.View())
	return b.String()
}

func (m model) renderBar() string {
	status := labelStyle.Render(m.status.String())
	if m.status == domain.StatusConnected {
		status = connectedStyle.Render(m.status.String())
	}

	last := labelStyle.Render("none")
	if m.hasCmd {
		last = commandStyle.Render(domain.Describe(m.lastCmd))
	}

	parts := []string{
		labelStyle.Render("Sensor: ") + status,
		labelStyle.Render("Last command: ") + last,
	}
	content := " " + strings.Join(parts, sepStyle.Render("  │  ")) + " "

	w := m.width
	if w <= 0 {
		w = 80
	}
	return barBg.Width(w).Render(content)
}
