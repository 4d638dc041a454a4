// Kinectdrone listens to a Kinect microphone array for spoken drone
// commands and shows the color camera feed in the terminal.
//
// Usage:
//
//	kinectdrone [--model models] [--audio-file clip.wav] [--camera pattern|dir|none] [-v] [-q]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"github.com/hammamikhairi/kinectdrone/internal/camera"
	"github.com/hammamikhairi/kinectdrone/internal/command"
	"github.com/hammamikhairi/kinectdrone/internal/config"
	"github.com/hammamikhairi/kinectdrone/internal/display"
	"github.com/hammamikhairi/kinectdrone/internal/domain"
	"github.com/hammamikhairi/kinectdrone/internal/engine"
	"github.com/hammamikhairi/kinectdrone/internal/logger"
	"github.com/hammamikhairi/kinectdrone/internal/sensor"
	"github.com/hammamikhairi/kinectdrone/internal/speech"
	"github.com/hammamikhairi/kinectdrone/internal/speech/stt"
	"github.com/hammamikhairi/kinectdrone/internal/storage"
)

func main() {
	os.Exit(run())
}

func run() int {
	fsys := afero.NewOsFs()

	cfg, err := config.Load(fsys, os.Args[1:], os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "kinectdrone: %v\n", err)
		return 1
	}

	// Direct logs to a file by default so the terminal UI stays clean.
	var logOut io.Writer = os.Stderr
	if cfg.Log.File != "" && cfg.Log.File != "stderr" {
		f, err := logger.NewRotatingFile(cfg.Log.File, cfg.Log.MaxSizeMB)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not open log file %s: %v (falling back to stderr)\n", cfg.Log.File, err)
		} else {
			logOut = f
			defer f.Close()
		}
	}

	// whisper.cpp and malgo report through the standard log package.
	stdlog.SetOutput(logOut)
	stdlog.SetFlags(stdlog.Ltime)

	log := logger.New(cfg.Log.Level, logOut)
	if cfg.File != "" {
		log.Info("config: loaded %s", cfg.File)
	}

	// Cancelled when the UI quits.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Vocabulary problems are fatal before the terminal is taken over.
	vocab, err := cfg.BuildVocabulary()
	if err != nil {
		fmt.Fprintf(os.Stderr, "kinectdrone: %v\n", err)
		return 1
	}
	grammar, err := command.NewGrammar(cfg.Speech.Prefix, vocab)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kinectdrone: %v\n", err)
		return 1
	}
	interp := command.NewInterpreter(grammar,
		command.WithMinConfidence(cfg.Speech.MinConfidence),
		command.WithDebounce(cfg.Speech.Debounce),
	)

	store := storage.NewLogStore(storage.DefaultCapacity, log)
	ui := display.NewUI(store)
	notifier := engine.NewLogNotifier(log, store, ui.Printf)

	handlers := []engine.Option{engine.WithHandler(ui)}
	if cfg.Feedback.Chime {
		chime, err := speech.NewChime(log)
		if err != nil {
			log.Error("audio output init failed, chime disabled: %v", err)
		} else {
			defer chime.Stop()
			handlers = append(handlers, engine.WithHandler(chime))
		}
	}
	eng := engine.New(interp, notifier, log, handlers...)

	sens, lister := pickSensor(cfg, fsys, log)
	status := domain.StatusDisconnected
	if sens != nil {
		status = sens.Status()
		defer sens.Stop()
	}

	session := &app{
		cfg:      cfg,
		fs:       fsys,
		log:      log,
		ui:       ui,
		notifier: notifier,
		engine:   eng,
		grammar:  grammar,
		sensor:   sens,
		lister:   lister,
		fatal:    make(chan error, 1),
	}

	fmt.Println(display.RenderBanner("Commands: "+grammar.Prompt()+" Type one or press Esc to quit."))
	fmt.Println()

	// Run app logic in a background goroutine.
	done := make(chan struct{})
	go func() {
		defer close(done)
		ui.WaitReady()
		session.run(ctx)
	}()

	// Bubble Tea owns the terminal and blocks until quit.
	if err := ui.Run(status); err != nil {
		log.Error("display: %v", err)
	}
	cancel()
	<-done

	select {
	case err := <-session.fatal:
		fmt.Fprintf(os.Stderr, "kinectdrone: %v\n", err)
		return 1
	default:
	}

	st := eng.Stats()
	log.Info("exiting: accepted=%d rejected=%d unknown=%d rate-limited=%d low-confidence=%d",
		st.Accepted, st.Rejected, st.Unknown, st.RateLimited, st.LowScore)
	return 0
}

// pickSensor returns the WAV replay sensor when a file is configured,
// otherwise the first connected capture device matching the configured
// name. The sensor is nil when none is connected.
func pickSensor(cfg *config.Config, fsys afero.Fs, log *logger.Logger) (*sensor.Sensor, sensor.DeviceLister) {
	newCamera := cameraFactory(cfg, fsys, log)

	if cfg.Audio.File != "" {
		src := sensor.NewWAVSource(fsys, cfg.Audio.File, cfg.Audio.Realtime, log)
		s := sensor.NewReplaySensor(src, newCamera(), log)
		return s, sensor.StaticLister{{ID: s.ID(), Name: s.Name(), IsDefault: true}}
	}

	lister := sensor.NewMalgoLister(log)
	sensors, err := sensor.Discover(lister, cfg.Audio.DeviceMatch, newCamera, log)
	if err != nil {
		log.Error("sensor discovery failed: %v", err)
		return nil, lister
	}
	s := sensor.FirstConnected(sensors)
	if s == nil {
		log.Warn("no capture device matching %q", cfg.Audio.DeviceMatch)
	}
	return s, lister
}

func cameraFactory(cfg *config.Config, fsys afero.Fs, log *logger.Logger) func() domain.CameraSource {
	return func() domain.CameraSource {
		switch cfg.Camera.Source {
		case config.CameraPattern:
			return camera.NewPatternSource(cfg.ColorFormat(), log)
		case config.CameraDir:
			src, err := camera.NewDirSource(fsys, cfg.Camera.Dir, cfg.Camera.FPS, log)
			if err != nil {
				log.Error("camera: %v (no video)", err)
				return nil
			}
			return src
		default:
			return nil
		}
	}
}

type app struct {
	cfg      *config.Config
	fs       afero.Fs
	log      *logger.Logger
	ui       *display.UI
	notifier domain.Notifier
	engine   *engine.Engine
	grammar  *command.Grammar
	sensor   *sensor.Sensor // nil when no device is connected
	lister   sensor.DeviceLister
	fatal    chan error
}

func (a *app) run(ctx context.Context) {
	_ = a.notifier.Notify(ctx, engine.LineWelcome())

	var speechEvents <-chan domain.SpeechEvent
	if a.sensor != nil {
		if err := a.startSensor(ctx); err != nil {
			a.fail(ctx, err.Error(), err)
			return
		}
		recognizer, events, err := a.startSpeech(ctx)
		if err != nil {
			a.fail(ctx, speech.StartupMessage(err), err)
			return
		}
		defer recognizer.Close()
		speechEvents = events
	}

	if err := a.engine.Run(ctx, engine.Merge(ctx, speechEvents, a.ui.Events())); err != nil && ctx.Err() == nil {
		a.log.Error("engine: %v", err)
	}
}

// fail reports a startup error to the operator and ends the session.
func (a *app) fail(ctx context.Context, message string, err error) {
	a.log.Error("startup: %v", err)
	_ = a.notifier.NotifyUrgent(ctx, message)
	a.fatal <- err
	a.ui.Quit()
}

func (a *app) startSensor(ctx context.Context) error {
	s := a.sensor
	if s.Camera() != nil {
		s.EnableColorStream(a.cfg.ColorFormat())
	}
	if err := s.Start(ctx); err != nil {
		return err
	}
	a.ui.SetStatus(s.Status())

	if frames := s.ColorFrames(); frames != nil {
		blitter := camera.NewBlitter(a.log, a.ui.SetBitmap)
		go blitter.Run(ctx, frames)
	}

	monitor := sensor.NewMonitor(s, a.lister, a.log, sensor.WithPollInterval(a.cfg.Sensor.Poll))
	monitor.Start(ctx)
	go func() {
		<-ctx.Done()
		monitor.Stop()
	}()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case change := <-monitor.Changes():
				a.ui.SetStatus(change.Status)
			}
		}
	}()
	return nil
}

func (a *app) startSpeech(ctx context.Context) (*speech.Recognizer, <-chan domain.SpeechEvent, error) {
	cfg := a.cfg.Speech

	info, err := speech.FindRecognizer(a.fs, cfg.Model, cfg.Culture)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}
	a.log.Info("speech: using %s (%s)", info.Name, info.Culture)

	transcriber, err := stt.New(info.ModelPath, stt.Options{Language: cfg.Language, Threads: cfg.Threads}, a.log)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}

	var opts []speech.Option
	wake := speech.WakeConfig{
		WakewordModel:  cfg.WakeModel,
		MelspecModel:   cfg.MelspecModel,
		EmbeddingModel: cfg.EmbeddingModel,
		OnnxLib:        cfg.OnnxLib,
	}
	if wake.Enabled() {
		gate, err := speech.NewWakeGate(wake, a.log)
		if err != nil {
			transcriber.Close()
			return nil, nil, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
		}
		go func() {
			<-ctx.Done()
			gate.Close()
		}()
		opts = append(opts, speech.WithWakeGate(gate, cfg.WakeThreshold))
	}

	recognizer := speech.New(info, transcriber, a.log, opts...)
	recognizer.LoadGrammar(a.grammar)

	stream, err := a.sensor.StartAudio(ctx)
	if err != nil {
		recognizer.Close()
		return nil, nil, err
	}
	if err := recognizer.SetInputToAudioStream(stream, speech.SensorFormat); err != nil {
		recognizer.Close()
		return nil, nil, err
	}
	events, err := recognizer.RecognizeAsync(ctx)
	if err != nil {
		recognizer.Close()
		return nil, nil, err
	}
	return recognizer, events, nil
}
