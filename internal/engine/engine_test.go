package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/kinectdrone/internal/command"
	"github.com/hammamikhairi/kinectdrone/internal/domain"
	"github.com/hammamikhairi/kinectdrone/internal/logger"
	"github.com/hammamikhairi/kinectdrone/internal/storage"
)

type recordingNotifier struct {
	mu    sync.Mutex
	lines []string
}

func (n *recordingNotifier) Notify(ctx context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lines = append(n.lines, message)
	return nil
}

func (n *recordingNotifier) NotifyUrgent(ctx context.Context, message string) error {
	return n.Notify(ctx, message)
}

func (n *recordingNotifier) Lines() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.lines...)
}

var start = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func setupEngine(t *testing.T, opts ...Option) (*Engine, *recordingNotifier) {
	t.Helper()
	log := logger.New(logger.LevelOff, nil)
	g, err := command.NewGrammar(command.DefaultPrefix, command.DefaultVocabulary())
	require.NoError(t, err)
	n := &recordingNotifier{}
	opts = append([]Option{WithClock(func() time.Time { return start })}, opts...)
	return New(command.NewInterpreter(g), n, log, opts...), n
}

func recognized(text string, confidence float64, at time.Time) domain.SpeechEvent {
	return domain.SpeechEvent{
		Kind:             domain.SpeechRecognized,
		RecognitionEvent: domain.RecognitionEvent{Text: text, Confidence: confidence, Timestamp: at},
	}
}

func TestEngineAcceptsAfterStartupWindow(t *testing.T) {
	eng, n := setupEngine(t)
	ctx := context.Background()

	assert.Equal(t, start, eng.LastAcceptedAt())

	// Within the startup window.
	got := eng.Handle(ctx, recognized("Drone Take off", 0.95, start.Add(time.Second)))
	assert.Equal(t, domain.Unknown, got)
	assert.Empty(t, n.Lines())

	got = eng.Handle(ctx, recognized("Drone Take off", 0.95, start.Add(5*time.Second)))
	assert.Equal(t, domain.TakeOff, got)
	assert.Equal(t, start.Add(5*time.Second), eng.LastAcceptedAt())
	assert.Equal(t, []string{"Command 'Takeoff' recognized."}, n.Lines())
}

func TestEngineOutcomes(t *testing.T) {
	eng, n := setupEngine(t)
	ctx := context.Background()

	eng.Handle(ctx, recognized("Drone May day", 0.9, start.Add(3*time.Second)))
	eng.Handle(ctx, recognized("Drone May day", 0.9, start.Add(3500*time.Millisecond)))
	eng.Handle(ctx, recognized("Drone Land", 0.5, start.Add(10*time.Second)))
	eng.Handle(ctx, recognized("Drone Fly away", 0.99, start.Add(20*time.Second)))
	eng.Handle(ctx, domain.SpeechEvent{Kind: domain.SpeechRejected})

	assert.Equal(t, []string{
		"Command 'Emergency Landing' recognized.",
		"Unknown command",
		"Unknown command",
	}, n.Lines())
	assert.Equal(t, Stats{Accepted: 1, Rejected: 1, Unknown: 1, RateLimited: 1, LowScore: 1}, eng.Stats())
	assert.Equal(t, start.Add(3*time.Second), eng.LastAcceptedAt())
}

func TestEngineOffVocabularyPhrase(t *testing.T) {
	eng, n := setupEngine(t)

	got := eng.Handle(context.Background(), recognized("Drone Hover", 0.99, start.Add(5*time.Second)))
	assert.Equal(t, domain.Unknown, got)
	assert.Equal(t, []string{LineUnknown()}, n.Lines())
	assert.NotContains(t, n.Lines(), LineRecognized(domain.Unknown))
	assert.Equal(t, start, eng.LastAcceptedAt(), "debounce untouched")
}

func TestEngineUsesClockWhenEventHasNoTimestamp(t *testing.T) {
	now := start
	eng, _ := setupEngine(t, WithClock(func() time.Time { return now }))

	now = start.Add(3 * time.Second)
	got := eng.Handle(context.Background(), recognized("Drone Land", 0.9, time.Time{}))
	assert.Equal(t, domain.Land, got)
	assert.Equal(t, now, eng.LastAcceptedAt())
}

func TestEngineHandlers(t *testing.T) {
	var handled []domain.VoiceCommand
	first := HandlerFunc(func(ctx context.Context, cmd domain.VoiceCommand) error {
		handled = append(handled, cmd)
		return errors.New("flight link not implemented")
	})
	second := HandlerFunc(func(ctx context.Context, cmd domain.VoiceCommand) error {
		handled = append(handled, cmd)
		return nil
	})
	eng, _ := setupEngine(t, WithHandler(first), WithHandler(second))

	eng.Handle(context.Background(), recognized("Drone Land", 0.9, start.Add(time.Minute)))
	// A failing handler does not stop the next one.
	assert.Equal(t, []domain.VoiceCommand{domain.Land, domain.Land}, handled)

	eng.Handle(context.Background(), recognized("Drone Hover", 0.9, start.Add(2*time.Minute)))
	assert.Len(t, handled, 2)
}

func TestEngineRun(t *testing.T) {
	eng, n := setupEngine(t)
	events := make(chan domain.SpeechEvent, 3)
	events <- recognized("Drone Take off", 0.95, start.Add(5*time.Second))
	events <- recognized("Drone Take off", 0.95, start.Add(5500*time.Millisecond))
	events <- recognized("Drone Land", 0.95, start.Add(30*time.Second))
	close(events)

	err := eng.Run(context.Background(), events)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Command 'Takeoff' recognized.",
		"Command 'Land' recognized.",
	}, n.Lines())
}

func TestEngineRunCancelled(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := eng.Run(ctx, make(chan domain.SpeechEvent))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMerge(t *testing.T) {
	a := make(chan domain.SpeechEvent, 2)
	b := make(chan domain.SpeechEvent, 1)
	a <- recognized("Drone Land", 1, start)
	a <- recognized("Drone Land", 1, start)
	b <- recognized("Drone Take off", 1, start)
	close(a)
	close(b)

	var got []string
	for ev := range Merge(context.Background(), a, nil, b) {
		got = append(got, ev.Text)
	}
	assert.ElementsMatch(t, []string{"Drone Land", "Drone Land", "Drone Take off"}, got)
}

func TestLogNotifier(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	store := storage.NewLogStore(10, log)
	var printed []string
	n := NewLogNotifier(log, store, func(format string, a ...interface{}) {
		printed = append(printed, a[0].(string))
	})

	require.NoError(t, n.Notify(context.Background(), LineWelcome()))
	require.NoError(t, n.NotifyUrgent(context.Background(), "There was a problem initializing Speech Recognition."))

	assert.Equal(t, []string{"> Welcome!", "> There was a problem initializing Speech Recognition."}, printed)
	entries := store.Recent(0)
	require.Len(t, entries, 2)
	assert.False(t, entries[0].Urgent)
	assert.True(t, entries[1].Urgent)
}
