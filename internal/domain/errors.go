package domain

import "errors"

// Sentinel errors used across layers.
var (
	ErrConfiguration         = errors.New("configuration error")
	ErrNoVocabulary          = errors.New("a vocabulary is required")
	ErrDuplicatePhrase       = errors.New("duplicate phrase in vocabulary")
	ErrNoSensor              = errors.New("no connected sensor")
	ErrSensorNotConnected    = errors.New("unable to initialize speech if sensor isn't connected")
	ErrRecognizerUnavailable = errors.New("speech recognizer unavailable")
	ErrNotRunning            = errors.New("not running")
)
