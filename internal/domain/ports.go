package domain

import (
	"context"
	"io"
)

// SpeechEngine turns a live audio stream into speech events. Delivery is
// asynchronous; the returned channel is closed when ctx is cancelled or
// the audio stream ends.
type SpeechEngine interface {
	RecognizeAsync(ctx context.Context) (<-chan SpeechEvent, error)
}

// CameraSource produces color frames until ctx is cancelled.
type CameraSource interface {
	Frames(ctx context.Context) (<-chan *Frame, error)
}

// AudioSource produces a raw PCM byte stream (16 kHz, 16-bit, mono).
type AudioSource interface {
	Start(ctx context.Context) (io.ReadCloser, error)
}

// CommandHandler acts on an accepted voice command. Flight control
// plugs in here.
type CommandHandler interface {
	Handle(ctx context.Context, cmd VoiceCommand) error
}

// Notifier delivers log lines to the operator.
type Notifier interface {
	Notify(ctx context.Context, message string) error
	NotifyUrgent(ctx context.Context, message string) error
}

// Transcriber converts one utterance (mono float32 samples at 16 kHz in
// [-1, 1]) into text. prompt biases decoding toward expected phrases.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, prompt string) (Transcript, error)
	Close() error
}
