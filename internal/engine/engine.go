// Package engine runs the command loop: it consumes speech events,
// interprets them, and hands accepted commands to the registered handlers.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hammamikhairi/kinectdrone/internal/command"
	"github.com/hammamikhairi/kinectdrone/internal/domain"
	"github.com/hammamikhairi/kinectdrone/internal/logger"
)

// Option configures the engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithHandler registers a handler for accepted commands. Handlers run in
// registration order on the engine goroutine.
func WithHandler(h domain.CommandHandler) Option {
	return func(e *Engine) {
		e.handlers = append(e.handlers, h)
	}
}

// HandlerFunc adapts a function to domain.CommandHandler.
type HandlerFunc func(ctx context.Context, cmd domain.VoiceCommand) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, cmd domain.VoiceCommand) error {
	return f(ctx, cmd)
}

// Engine owns the debounce timestamp. Events are handled one at a time,
// fully, in arrival order, so the timestamp has a single writer.
type Engine struct {
	interp   *command.Interpreter
	notifier domain.Notifier
	handlers []domain.CommandHandler
	log      *logger.Logger
	now      func() time.Time

	mu             sync.Mutex
	lastAcceptedAt time.Time
	stats          Stats
}

// Stats counts outcomes since the engine was created.
type Stats struct {
	Accepted    int
	Rejected    int // engine could not match the grammar
	Unknown     int // passed the gates but mapped to no command
	RateLimited int
	LowScore    int
}

// New creates an engine. The debounce window starts at creation time,
// so nothing is accepted during the first window after startup.
func New(interp *command.Interpreter, notifier domain.Notifier, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		interp:   interp,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.lastAcceptedAt = e.now()
	return e
}

// Run consumes events until the channel is closed (returns nil) or ctx
// is cancelled (returns ctx.Err()).
func (e *Engine) Run(ctx context.Context, events <-chan domain.SpeechEvent) error {
	e.log.Info("engine: started (min confidence=%.2f, debounce=%s)", e.interp.MinConfidence(), e.interp.Debounce())
	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine: stopped")
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				e.log.Info("engine: event stream closed")
				return nil
			}
			e.Handle(ctx, ev)
		}
	}
}

// Handle processes one event synchronously and returns the resulting
// command (Unknown when nothing was accepted).
func (e *Engine) Handle(ctx context.Context, ev domain.SpeechEvent) domain.VoiceCommand {
	if ev.Kind == domain.SpeechRejected {
		e.count(func(s *Stats) { s.Rejected++ })
		e.log.Debug("engine: rejected utterance %q", ev.Text)
		e.notify(ctx, LineUnknown())
		return domain.Unknown
	}

	now := ev.Timestamp
	if now.IsZero() {
		now = e.now()
	}

	e.mu.Lock()
	verdict := e.interp.Evaluate(ev.RecognitionEvent, e.lastAcceptedAt, now)
	e.lastAcceptedAt = verdict.LastAcceptedAt
	e.mu.Unlock()

	switch verdict.Reason {
	case command.RateLimited:
		e.count(func(s *Stats) { s.RateLimited++ })
		e.log.Debug("engine: dropped %q (rate limited)", ev.Text)
		return domain.Unknown
	case command.LowConfidence:
		e.count(func(s *Stats) { s.LowScore++ })
		e.log.Debug("engine: dropped %q (confidence %.2f)", ev.Text, ev.Confidence)
		return domain.Unknown
	case command.NoGrammarMatch, command.NotInVocabulary:
		// Reported as "Unknown command", never as a recognized Unknown.
		e.count(func(s *Stats) { s.Unknown++ })
		e.log.Info("engine: %q is not a command (%s)", ev.Text, verdict.Reason)
		e.notify(ctx, LineUnknown())
		return domain.Unknown
	}

	e.count(func(s *Stats) { s.Accepted++ })
	e.log.Info("engine: accepted %s (text=%q, confidence=%.2f)", verdict.Command, ev.Text, ev.Confidence)
	e.notify(ctx, LineRecognized(verdict.Command))

	for _, h := range e.handlers {
		if err := h.Handle(ctx, verdict.Command); err != nil {
			e.log.Error("engine: handler failed for %s: %v", verdict.Command, err)
		}
	}
	return verdict.Command
}

// LastAcceptedAt returns the current debounce timestamp.
func (e *Engine) LastAcceptedAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastAcceptedAt
}

// Stats returns a snapshot of the outcome counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func (e *Engine) count(f func(*Stats)) {
	e.mu.Lock()
	f(&e.stats)
	e.mu.Unlock()
}

func (e *Engine) notify(ctx context.Context, line string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, line); err != nil {
		e.log.Warn("engine: notify: %v", err)
	}
}

// LineRecognized is the log line for an accepted command.
func LineRecognized(cmd domain.VoiceCommand) string {
	return fmt.Sprintf("Command '%s' recognized.", domain.Describe(cmd))
}

// LineUnknown is the log line for anything that is not a command.
func LineUnknown() string {
	return "Unknown command"
}

// LineWelcome is the first log line.
func LineWelcome() string {
	return "Welcome!"
}
