package sensor

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/kinectdrone/internal/domain"
	"github.com/hammamikhairi/kinectdrone/internal/logger"
)

func testLogger() *logger.Logger { return logger.New(logger.LevelOff, nil) }

func writeWAV(t *testing.T, fs afero.Fs, path string, rate, channels int, samples []int) {
	t.Helper()
	f, err := fs.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           samples,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
}

type fakeCamera struct {
	started int
	frames  chan *domain.Frame
}

func (c *fakeCamera) Frames(ctx context.Context) (<-chan *domain.Frame, error) {
	c.started++
	return c.frames, nil
}

type fakeAudio struct {
	started int
	err     error
}

func (a *fakeAudio) Start(ctx context.Context) (io.ReadCloser, error) {
	a.started++
	if a.err != nil {
		return nil, a.err
	}
	return &emptyStream{}, nil
}

type emptyStream struct{ closed bool }

func (s *emptyStream) Read(p []byte) (int, error) { return 0, io.EOF }
func (s *emptyStream) Close() error               { s.closed = true; return nil }

type fakeLister struct {
	devices []DeviceInfo
	err     error
}

func (l *fakeLister) CaptureDevices() ([]DeviceInfo, error) {
	return l.devices, l.err
}

func TestSensorLifecycle(t *testing.T) {
	cam := &fakeCamera{frames: make(chan *domain.Frame)}
	mic := &fakeAudio{}
	s := New("dev-1", "Xbox NUI Sensor", mic, cam, testLogger())
	ctx := context.Background()

	assert.Equal(t, domain.StatusConnected, s.Status())
	assert.False(t, s.IsRunning())

	_, err := s.StartAudio(ctx)
	assert.ErrorIs(t, err, domain.ErrNotRunning)

	s.EnableColorStream(domain.RgbResolution640x480Fps30)
	require.NoError(t, s.Start(ctx))
	assert.True(t, s.IsRunning())
	assert.Equal(t, 1, cam.started)
	assert.NotNil(t, s.ColorFrames())

	// A second Start is a no-op.
	require.NoError(t, s.Start(ctx))
	assert.Equal(t, 1, cam.started)

	r1, err := s.StartAudio(ctx)
	require.NoError(t, err)
	r2, err := s.StartAudio(ctx)
	require.NoError(t, err)
	assert.Same(t, r1, r2)
	assert.Equal(t, 1, mic.started)

	s.Stop()
	assert.False(t, s.IsRunning())
	assert.Nil(t, s.ColorFrames())
	assert.True(t, r1.(*emptyStream).closed)
	s.Stop()
}

func TestSensorStartRequiresConnection(t *testing.T) {
	s := New("dev-1", "mic", &fakeAudio{}, nil, testLogger())
	s.SetStatus(domain.StatusNotPowered)

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, domain.ErrSensorNotConnected)
	assert.False(t, s.IsRunning())
}

func TestSensorWithoutColorStream(t *testing.T) {
	cam := &fakeCamera{frames: make(chan *domain.Frame)}
	s := New("dev-1", "mic", &fakeAudio{}, cam, testLogger())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	assert.Zero(t, cam.started)
	assert.Nil(t, s.ColorFrames())

	_, ok := s.ColorFormat()
	assert.False(t, ok)
}

func TestDiscover(t *testing.T) {
	lister := &fakeLister{devices: []DeviceInfo{
		{ID: "a", Name: "Built-in Microphone", IsDefault: true},
		{ID: "b", Name: "Xbox NUI Sensor (Kinect USB Audio)"},
	}}
	log := testLogger()

	cams := 0
	newCam := func() domain.CameraSource {
		cams++
		return &fakeCamera{}
	}

	all, err := Discover(lister, "", newCam, log)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 2, cams)

	kinect, err := Discover(lister, "kinect", nil, log)
	require.NoError(t, err)
	require.Len(t, kinect, 1)
	assert.Equal(t, "b", kinect[0].ID())
	assert.Nil(t, kinect[0].Camera())

	none, err := Discover(lister, "webcam", nil, log)
	require.NoError(t, err)
	assert.Nil(t, FirstConnected(none))

	_, err = Discover(&fakeLister{err: errors.New("no backend")}, "", nil, log)
	assert.Error(t, err)
}

func TestFirstConnected(t *testing.T) {
	log := testLogger()
	a := New("a", "a", &fakeAudio{}, nil, log)
	b := New("b", "b", &fakeAudio{}, nil, log)
	a.SetStatus(domain.StatusNotReady)

	assert.Same(t, b, FirstConnected([]*Sensor{a, b}))
	b.SetStatus(domain.StatusDisconnected)
	assert.Nil(t, FirstConnected([]*Sensor{a, b}))
	assert.Nil(t, FirstConnected(nil))
}

func TestMonitorPoll(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	lister := &fakeLister{devices: []DeviceInfo{{ID: "dev-1"}}}
	s := New("dev-1", "kinect", &fakeAudio{}, nil, testLogger())
	m := NewMonitor(s, lister, testLogger(), WithMonitorClock(func() time.Time { return at }))
	ctx := context.Background()

	assert.False(t, m.Poll(ctx), "still connected")

	lister.devices = nil
	assert.True(t, m.Poll(ctx))
	assert.Equal(t, domain.StatusDisconnected, s.Status())
	assert.Equal(t, domain.StatusChange{SensorID: "dev-1", Status: domain.StatusDisconnected, At: at}, <-m.Changes())

	lister.err = errors.New("backend gone")
	assert.True(t, m.Poll(ctx))
	assert.Equal(t, domain.StatusError, s.Status())
	<-m.Changes()

	lister.err = nil
	lister.devices = []DeviceInfo{{ID: "dev-1"}}
	assert.True(t, m.Poll(ctx))
	assert.Equal(t, domain.StatusConnected, s.Status())
}

func TestMonitorIgnoresOtherSensors(t *testing.T) {
	s := New("dev-1", "kinect", &fakeAudio{}, nil, testLogger())
	m := NewMonitor(s, StaticLister{{ID: "dev-1"}}, testLogger())

	changed := m.apply(context.Background(), domain.StatusChange{SensorID: "dev-2", Status: domain.StatusDisconnected})
	assert.False(t, changed)
	assert.Equal(t, domain.StatusConnected, s.Status())
	assert.Empty(t, m.Changes())
}

func TestMonitorStartStop(t *testing.T) {
	lister := &fakeLister{}
	s := New("dev-1", "kinect", &fakeAudio{}, nil, testLogger())
	m := NewMonitor(s, lister, testLogger(), WithPollInterval(5*time.Millisecond))

	m.Start(context.Background())
	m.Start(context.Background())
	defer m.Stop()

	select {
	case change := <-m.Changes():
		assert.Equal(t, domain.StatusDisconnected, change.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not report the missing device")
	}
}

func TestWAVSourceStreamsPCM(t *testing.T) {
	fs := afero.NewMemMapFs()
	samples := []int{0, 1, -1, 32767, -32768, 1234}
	writeWAV(t, fs, "/clip.wav", SampleRate, 1, samples)

	src := NewWAVSource(fs, "/clip.wav", false, testLogger())
	r, err := src.Start(context.Background())
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)

	// File samples followed by one second of silence.
	require.Len(t, data, len(samples)*2+SampleRate*2)
	for i, want := range samples {
		got := int16(binary.LittleEndian.Uint16(data[i*2:]))
		assert.Equal(t, int16(want), got, "sample %d", i)
	}
	for _, b := range data[len(samples)*2:] {
		require.Zero(t, b)
	}
}

func TestWAVSourceRejectsWrongFormat(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeWAV(t, fs, "/cd.wav", 44100, 2, []int{0, 0, 0, 0})
	require.NoError(t, afero.WriteFile(fs, "/junk.wav", []byte("not a wav"), 0o644))
	log := testLogger()

	_, err := NewWAVSource(fs, "/cd.wav", false, log).Start(context.Background())
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = NewWAVSource(fs, "/junk.wav", false, log).Start(context.Background())
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = NewWAVSource(fs, "/missing.wav", false, log).Start(context.Background())
	assert.Error(t, err)
}

func TestWAVSourceCancel(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeWAV(t, fs, "/long.wav", SampleRate, 1, make([]int, SampleRate*5))

	ctx, cancel := context.WithCancel(context.Background())
	r, err := NewWAVSource(fs, "/long.wav", true, testLogger()).Start(ctx)
	require.NoError(t, err)

	buf := make([]byte, 64)
	_, err = r.Read(buf)
	require.NoError(t, err)
	cancel()

	_, err = io.ReadAll(r)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReplaySensor(t *testing.T) {
	src := NewWAVSource(afero.NewMemMapFs(), "/x.wav", false, testLogger())
	s := NewReplaySensor(src, nil, testLogger())
	assert.Equal(t, ReplayID+"/x.wav", s.ID())
	assert.Equal(t, domain.StatusConnected, s.Status())
}
