package domain

import "time"

// RecognitionEvent is one accepted result of the speech engine. It is
// consumed exactly once by the interpreter and then discarded.
type RecognitionEvent struct {
	Text       string
	Confidence float64 // in [0, 1]
	Timestamp  time.Time
}

// SpeechEventKind tells whether the engine matched the grammar.
type SpeechEventKind int

const (
	// SpeechRecognized carries grammar text and a confidence score.
	SpeechRecognized SpeechEventKind = iota
	// SpeechRejected means no grammar rule matched what was heard.
	SpeechRejected
)

// String returns a human-readable event kind.
func (k SpeechEventKind) String() string {
	switch k {
	case SpeechRecognized:
		return "recognized"
	case SpeechRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// SpeechEvent is what a speech engine emits on its output channel.
// For rejected events Text holds the raw transcript, if any.
type SpeechEvent struct {
	Kind SpeechEventKind
	RecognitionEvent
}

// Transcript is the raw output of a transcriber. Confidence is in [0, 1].
type Transcript struct {
	Text       string
	Confidence float64
}
