package sensor

import (
	"context"
	"sync"
	"time"

	"github.com/hammamikhairi/kinectdrone/internal/domain"
	"github.com/hammamikhairi/kinectdrone/internal/logger"
)

// MonitorOption configures the monitor.
type MonitorOption func(*Monitor)

// WithPollInterval sets how often device presence is checked.
func WithPollInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithMonitorClock overrides the timestamp source for status changes.
func WithMonitorClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) {
		m.now = now
	}
}

// Monitor polls the device list in the background and reports status
// changes of one sensor. Changes for other devices are ignored.
type Monitor struct {
	sensor       *Sensor
	lister       DeviceLister
	log          *logger.Logger
	pollInterval time.Duration
	now          func() time.Time

	changes chan domain.StatusChange

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// NewMonitor creates a monitor for sensor s.
func NewMonitor(s *Sensor, lister DeviceLister, log *logger.Logger, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		sensor:       s,
		lister:       lister,
		log:          log,
		pollInterval: 2 * time.Second,
		now:          time.Now,
		changes:      make(chan domain.StatusChange, 8),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Changes delivers status changes. The channel is never closed.
func (m *Monitor) Changes() <-chan domain.StatusChange {
	return m.changes
}

// Start begins polling. Non-blocking.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		m.log.Warn("sensor monitor already running")
		return
	}

	childCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	go m.loop(childCtx)

	m.log.Info("sensor monitor started (poll=%s)", m.pollInterval)
}

// Stop ends polling.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	m.cancel()
	m.running = false
	m.log.Info("sensor monitor stopped")
}

func (m *Monitor) loop(ctx context.Context) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Poll(ctx)
		}
	}
}

// Poll runs one presence check and reports whether the status changed.
func (m *Monitor) Poll(ctx context.Context) bool {
	devices, err := m.lister.CaptureDevices()
	if err != nil {
		m.log.Error("sensor monitor: listing devices: %v", err)
		return m.apply(ctx, domain.StatusChange{SensorID: m.sensor.ID(), Status: domain.StatusError, At: m.now()})
	}

	status := domain.StatusDisconnected
	for _, d := range devices {
		if d.ID == m.sensor.ID() {
			status = domain.StatusConnected
			break
		}
	}
	return m.apply(ctx, domain.StatusChange{SensorID: m.sensor.ID(), Status: status, At: m.now()})
}

// apply records change for the monitored sensor. Changes for other
// sensors are ignored.
func (m *Monitor) apply(ctx context.Context, change domain.StatusChange) bool {
	if change.SensorID != m.sensor.ID() {
		m.log.Debug("sensor monitor: ignoring %s for %s", change.Status, change.SensorID)
		return false
	}
	if m.sensor.Status() == change.Status {
		return false
	}

	m.sensor.SetStatus(change.Status)
	m.log.Info("sensor %s is now %s", change.SensorID, change.Status)

	select {
	case m.changes <- change:
	case <-ctx.Done():
	default:
		m.log.Warn("sensor monitor: change queue full, dropping %s", change.Status)
	}
	return true
}

// StaticLister reports a fixed device list. Replay sensors use it so the
// monitor keeps them connected.
type StaticLister []DeviceInfo

// CaptureDevices returns the fixed list.
func (l StaticLister) CaptureDevices() ([]DeviceInfo, error) {
	return l, nil
}
