package display

import (
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/kinectdrone/internal/camera"
	"github.com/hammamikhairi/kinectdrone/internal/domain"
	"github.com/hammamikhairi/kinectdrone/internal/logger"
	"github.com/hammamikhairi/kinectdrone/internal/storage"
)

func update(t *testing.T, m model, msg tea.Msg) model {
	t.Helper()
	next, _ := m.Update(msg)
	nm, ok := next.(model)
	require.True(t, ok)
	return nm
}

func TestModelStartsWithWelcome(t *testing.T) {
	m := newModel(nil, nil, domain.StatusConnected)
	view := m.View()
	assert.Contains(t, view, "> Welcome!")
	assert.Contains(t, view, "Connected")
	assert.Contains(t, view, "none")
}

func TestModelStatusAndCommand(t *testing.T) {
	m := newModel(nil, nil, domain.StatusDisconnected)

	m = update(t, m, statusMsg(domain.StatusConnected))
	m = update(t, m, commandMsg(domain.EmergencyLanding))
	m = update(t, m, logLineMsg("> Command 'Emergency Landing' recognized."))

	view := m.View()
	assert.Contains(t, view, "Sensor: Connected")
	assert.Contains(t, view, "Last command: Emergency Landing")
	assert.Contains(t, view, "> Command 'Emergency Landing' recognized.")
	assert.NotContains(t, view, "Welcome!")
}

func TestModelHistory(t *testing.T) {
	store := storage.NewLogStore(10, logger.New(logger.LevelOff, nil))
	for _, line := range []string{"Welcome!", "Unknown command", "Command 'Land' recognized."} {
		store.Append(storage.Entry{Text: line})
	}
	m := newModel(store, nil, domain.StatusConnected)
	m = update(t, m, logLineMsg("> Command 'Land' recognized."))

	require.Len(t, m.history, 2)
	assert.Equal(t, "Welcome!", m.history[0].Text)
	assert.Equal(t, "Unknown command", m.history[1].Text)
	assert.Equal(t, 1, strings.Count(m.View(), "Command 'Land' recognized."))
}

func TestModelSubmitsTypedLines(t *testing.T) {
	var got []string
	m := newModel(nil, nil, domain.StatusConnected)
	m.submit = func(line string) { got = append(got, line) }
	m.input.Focus()

	for _, r := range "Drone Land" {
		m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, []string{"Drone Land"}, got, "blank lines are not submitted")
	assert.Empty(t, m.input.Value())
}

func TestTypedEvent(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := TypedEvent("  Drone Take off \n", at)
	assert.Equal(t, domain.SpeechEvent{
		Kind:             domain.SpeechRecognized,
		RecognitionEvent: domain.RecognitionEvent{Text: "Drone Take off", Confidence: 1.0, Timestamp: at},
	}, ev)
}

func TestModelPreview(t *testing.T) {
	var ptr atomic.Pointer[camera.Bitmap]
	m := newModel(nil, &ptr, domain.StatusConnected)

	m = update(t, m, tickMsg(time.Now()))
	assert.Empty(t, m.preview, "no bitmap yet")

	ptr.Store(camera.NewBitmap(64, 48))
	m = update(t, m, tickMsg(time.Now()))
	assert.NotEmpty(t, m.preview)
	assert.Contains(t, m.View(), "▀")
}

func TestRenderPreview(t *testing.T) {
	b := camera.NewBitmap(640, 480)
	out := RenderPreview(b, 64)
	lines := strings.Split(out, "\n")
	assert.Len(t, lines, 24)
	for _, l := range lines {
		assert.Equal(t, 64, strings.Count(l, "▀"))
	}

	assert.Empty(t, RenderPreview(camera.NewBitmap(0, 0), 64))
	small := RenderPreview(camera.NewBitmap(8, 2), 64)
	assert.Equal(t, 8, strings.Count(small, "▀"))
}

func TestRenderBanner(t *testing.T) {
	out := renderBanner(200, "voice control")
	assert.Contains(t, out, "voice control")
	for _, l := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if l != "" {
			assert.True(t, strings.HasPrefix(l, " "), "line %q is centred", l)
		}
	}
}
