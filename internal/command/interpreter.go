package command

import (
	"time"

	"github.com/hammamikhairi/kinectdrone/internal/domain"
)

// Default gates.
const (
	DefaultMinConfidence = 0.80
	DefaultDebounce      = 2 * time.Second
)

// Reason explains an interpreter verdict.
type Reason int

const (
	Accepted Reason = iota
	RateLimited
	LowConfidence
	NoGrammarMatch
	NotInVocabulary
)

// String returns a human-readable reason.
func (r Reason) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case RateLimited:
		return "rate_limited"
	case LowConfidence:
		return "low_confidence"
	case NoGrammarMatch:
		return "no_grammar_match"
	case NotInVocabulary:
		return "not_in_vocabulary"
	default:
		return "unknown"
	}
}

// Verdict is the outcome of interpreting one recognition event.
type Verdict struct {
	Command        domain.VoiceCommand
	Reason         Reason
	LastAcceptedAt time.Time
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithMinConfidence sets the confidence gate.
func WithMinConfidence(c float64) Option {
	return func(in *Interpreter) { in.minConfidence = c }
}

// WithDebounce sets the minimum time between two accepted commands.
func WithDebounce(d time.Duration) Option {
	return func(in *Interpreter) { in.debounce = d }
}

// Interpreter decides whether a recognition event becomes a command.
// It holds no mutable state: the debounce timestamp is passed in and
// returned, so callers own it.
type Interpreter struct {
	grammar       *Grammar
	minConfidence float64
	debounce      time.Duration
}

// NewInterpreter creates an interpreter over g.
func NewInterpreter(g *Grammar, opts ...Option) *Interpreter {
	in := &Interpreter{
		grammar:       g,
		minConfidence: DefaultMinConfidence,
		debounce:      DefaultDebounce,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// MinConfidence returns the configured confidence gate.
func (in *Interpreter) MinConfidence() float64 { return in.minConfidence }

// Debounce returns the configured rate gate.
func (in *Interpreter) Debounce() time.Duration { return in.debounce }

// Evaluate runs the gates in order: rate, confidence, grammar, vocabulary.
// Only an accepted verdict moves LastAcceptedAt to now.
func (in *Interpreter) Evaluate(ev domain.RecognitionEvent, lastAcceptedAt, now time.Time) Verdict {
	return evaluate(ev, in.grammar.Prefix, in.grammar.vocab, in.minConfidence, in.debounce, lastAcceptedAt, now)
}

// Interpret is Evaluate without the reason.
func (in *Interpreter) Interpret(ev domain.RecognitionEvent, lastAcceptedAt, now time.Time) (domain.VoiceCommand, time.Time) {
	v := in.Evaluate(ev, lastAcceptedAt, now)
	return v.Command, v.LastAcceptedAt
}

// Interpret applies the default prefix and gates to ev using vocab.
func Interpret(ev domain.RecognitionEvent, vocab *Vocabulary, lastAcceptedAt, now time.Time) (domain.VoiceCommand, time.Time) {
	v := evaluate(ev, DefaultPrefix, vocab, DefaultMinConfidence, DefaultDebounce, lastAcceptedAt, now)
	return v.Command, v.LastAcceptedAt
}

func evaluate(ev domain.RecognitionEvent, prefix string, vocab *Vocabulary,
	minConfidence float64, debounce time.Duration, lastAcceptedAt, now time.Time) Verdict {
	reject := func(r Reason) Verdict {
		return Verdict{Command: domain.Unknown, Reason: r, LastAcceptedAt: lastAcceptedAt}
	}

	if now.Sub(lastAcceptedAt) < debounce {
		return reject(RateLimited)
	}
	// Written as a negation so NaN scores are rejected too.
	if !(ev.Confidence >= minConfidence) {
		return reject(LowConfidence)
	}
	phrase, ok := matchPrefix(prefix, ev.Text)
	if !ok {
		return reject(NoGrammarMatch)
	}
	cmd, ok := vocab.Lookup(phrase)
	if !ok {
		return reject(NotInVocabulary)
	}
	return Verdict{Command: cmd, Reason: Accepted, LastAcceptedAt: now}
}
