package sensor

import (
	"fmt"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/hammamikhairi/kinectdrone/internal/domain"
	"github.com/hammamikhairi/kinectdrone/internal/logger"
)

// DeviceInfo describes a capture device.
type DeviceInfo struct {
	ID        string
	Name      string
	IsDefault bool

	malgoID *malgo.DeviceID
}

// DeviceLister enumerates capture devices.
type DeviceLister interface {
	CaptureDevices() ([]DeviceInfo, error)
}

// MalgoLister lists capture devices through miniaudio.
type MalgoLister struct {
	log *logger.Logger
}

// NewMalgoLister creates a lister.
func NewMalgoLister(log *logger.Logger) *MalgoLister {
	return &MalgoLister{log: log}
}

// CaptureDevices returns every capture device the audio backend reports.
func (l *MalgoLister) CaptureDevices() ([]DeviceInfo, error) {
	mCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(_ string) {})
	if err != nil {
		return nil, fmt.Errorf("audio context: %w", err)
	}
	defer func() { _ = mCtx.Uninit(); mCtx.Free() }()

	infos, err := mCtx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("listing capture devices: %w", err)
	}

	out := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		info := infos[i]
		id := info.ID
		out = append(out, DeviceInfo{
			ID:        id.String(),
			Name:      info.Name(),
			IsDefault: info.IsDefault != 0,
			malgoID:   &id,
		})
	}
	l.log.Debug("sensor: %d capture devices", len(out))
	return out, nil
}

// Discover turns every capture device whose name contains match
// (case-insensitive, empty matches all) into a sensor. Each sensor gets
// its own camera from newCamera, which may return nil.
func Discover(lister DeviceLister, match string, newCamera func() domain.CameraSource, log *logger.Logger) ([]*Sensor, error) {
	devices, err := lister.CaptureDevices()
	if err != nil {
		return nil, err
	}

	match = strings.ToLower(match)
	var sensors []*Sensor
	for _, d := range devices {
		if match != "" && !strings.Contains(strings.ToLower(d.Name), match) {
			continue
		}
		var cam domain.CameraSource
		if newCamera != nil {
			cam = newCamera()
		}
		sensors = append(sensors, New(d.ID, d.Name, NewMicSource(d.malgoID, log), cam, log))
	}
	log.Debug("sensor: %d of %d devices match %q", len(sensors), len(devices), match)
	return sensors, nil
}

// FirstConnected returns the first connected sensor, or nil.
func FirstConnected(sensors []*Sensor) *Sensor {
	for _, s := range sensors {
		if s.Status() == domain.StatusConnected {
			return s
		}
	}
	return nil
}

// ReplayID is the sensor ID prefix used for WAV replay.
const ReplayID = "replay:"

// NewReplaySensor wraps a WAV file as an always-connected sensor.
func NewReplaySensor(src *WAVSource, camera domain.CameraSource, log *logger.Logger) *Sensor {
	return New(ReplayID+src.Path(), "WAV replay", src, camera, log)
}
