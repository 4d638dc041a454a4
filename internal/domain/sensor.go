package domain

import "time"

// SensorStatus is the connectivity state of a sensor.
type SensorStatus int

const (
	StatusUndefined SensorStatus = iota
	StatusDisconnected
	StatusConnected
	StatusInitializing
	StatusError
	StatusNotPowered
	StatusNotReady
	StatusDeviceNotSupported
)

// String returns a human-readable sensor status.
func (s SensorStatus) String() string {
	switch s {
	case StatusUndefined:
		return "Undefined"
	case StatusDisconnected:
		return "Disconnected"
	case StatusConnected:
		return "Connected"
	case StatusInitializing:
		return "Initializing"
	case StatusError:
		return "Error"
	case StatusNotPowered:
		return "NotPowered"
	case StatusNotReady:
		return "NotReady"
	case StatusDeviceNotSupported:
		return "DeviceNotSupported"
	default:
		return "Unknown"
	}
}

// StatusChange reports a new status for the sensor with the given ID.
type StatusChange struct {
	SensorID string
	Status   SensorStatus
	At       time.Time
}

// ColorFormat describes the color stream resolution and rate.
type ColorFormat struct {
	Width         int
	Height        int
	FPS           int
	BytesPerPixel int
}

// RgbResolution640x480Fps30 is the only color format the client enables.
var RgbResolution640x480Fps30 = ColorFormat{Width: 640, Height: 480, FPS: 30, BytesPerPixel: 4}

// Frame is one color image in Bgr32 layout.
type Frame struct {
	Width         int
	Height        int
	BytesPerPixel int
	Pix           []byte
	Timestamp     time.Time
}

// PixelDataLength returns the number of bytes a full frame occupies.
func (f *Frame) PixelDataLength() int {
	return f.Width * f.Height * f.BytesPerPixel
}

// CopyPixelDataTo copies the frame's pixels into dst and returns the
// number of bytes copied.
func (f *Frame) CopyPixelDataTo(dst []byte) int {
	return copy(dst, f.Pix)
}
