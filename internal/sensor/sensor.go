// Package sensor models the capture device: its lifecycle, its color and
// audio streams, and its connection status.
package sensor

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/hammamikhairi/kinectdrone/internal/domain"
	"github.com/hammamikhairi/kinectdrone/internal/logger"
)

// Sensor is one capture device with an optional color stream and an
// audio stream.
type Sensor struct {
	id     string
	name   string
	audio  domain.AudioSource
	camera domain.CameraSource
	log    *logger.Logger

	mu          sync.Mutex
	status      domain.SensorStatus
	colorFormat *domain.ColorFormat
	running     bool
	cancel      context.CancelFunc
	frames      <-chan *domain.Frame
	audioStream io.ReadCloser
}

// New creates a connected, stopped sensor. camera may be nil.
func New(id, name string, audio domain.AudioSource, camera domain.CameraSource, log *logger.Logger) *Sensor {
	return &Sensor{
		id:     id,
		name:   name,
		audio:  audio,
		camera: camera,
		log:    log,
		status: domain.StatusConnected,
	}
}

// ID identifies the device connection.
func (s *Sensor) ID() string { return s.id }

// Name is the device's display name.
func (s *Sensor) Name() string { return s.name }

// Camera returns the color source, or nil.
func (s *Sensor) Camera() domain.CameraSource { return s.camera }

// AudioSource returns the PCM source.
func (s *Sensor) AudioSource() domain.AudioSource { return s.audio }

// Status returns the current connection status.
func (s *Sensor) Status() domain.SensorStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus records a status reported by the monitor.
func (s *Sensor) SetStatus(status domain.SensorStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// IsRunning reports whether Start has been called without Stop.
func (s *Sensor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// EnableColorStream selects the color format delivered after Start.
func (s *Sensor) EnableColorStream(format domain.ColorFormat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.colorFormat = &format
}

// ColorFormat returns the enabled color format, if any.
func (s *Sensor) ColorFormat() (domain.ColorFormat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.colorFormat == nil {
		return domain.ColorFormat{}, false
	}
	return *s.colorFormat, true
}

// Start begins streaming. The sensor must be connected.
func (s *Sensor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.log.Warn("sensor %s already running", s.id)
		return nil
	}
	if s.status != domain.StatusConnected {
		return fmt.Errorf("starting sensor %s (%s): %w", s.id, s.status, domain.ErrSensorNotConnected)
	}

	childCtx, cancel := context.WithCancel(ctx)
	if s.colorFormat != nil && s.camera != nil {
		frames, err := s.camera.Frames(childCtx)
		if err != nil {
			cancel()
			return fmt.Errorf("starting color stream: %w", err)
		}
		s.frames = frames
	}
	s.cancel = cancel
	s.running = true
	s.log.Info("sensor %s (%s) started", s.id, s.name)
	return nil
}

// ColorFrames returns the color stream, or nil when it is not enabled.
func (s *Sensor) ColorFrames() <-chan *domain.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// StartAudio opens the audio stream. The sensor must be running.
func (s *Sensor) StartAudio(ctx context.Context) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil, fmt.Errorf("sensor %s audio: %w", s.id, domain.ErrNotRunning)
	}
	if s.audioStream != nil {
		return s.audioStream, nil
	}
	stream, err := s.audio.Start(ctx)
	if err != nil {
		return nil, err
	}
	s.audioStream = stream
	return stream, nil
}

// Stop ends all streams. Safe to call when stopped.
func (s *Sensor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	if s.audioStream != nil {
		_ = s.audioStream.Close()
		s.audioStream = nil
	}
	s.cancel()
	s.frames = nil
	s.running = false
	s.log.Info("sensor %s stopped", s.id)
}
