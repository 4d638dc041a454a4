// Package config loads settings from flags, environment variables, an
// optional .env file and an optional kinectdrone.{yaml,json} file.
// Precedence, highest first: flags, environment, config file, defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hammamikhairi/kinectdrone/internal/command"
	"github.com/hammamikhairi/kinectdrone/internal/domain"
	"github.com/hammamikhairi/kinectdrone/internal/logger"
)

// EnvPrefix prefixes every environment variable, e.g.
// KINECTDRONE_SPEECH_MODEL.
const EnvPrefix = "KINECTDRONE"

// Camera sources.
const (
	CameraPattern = "pattern"
	CameraDir     = "dir"
	CameraNone    = "none"
)

// Config is the resolved application configuration.
type Config struct {
	Speech   Speech
	Audio    Audio
	Camera   Camera
	Sensor   Sensor
	Log      Log
	Feedback Feedback
	File     string // config file used, if any
}

// Speech configures recognition and command interpretation.
type Speech struct {
	Prefix        string
	Vocabulary    []command.Entry
	MinConfidence float64
	Debounce      time.Duration
	Model         string
	Language      string
	Culture       string
	Threads       int

	WakeModel      string
	MelspecModel   string
	EmbeddingModel string
	OnnxLib        string
	WakeThreshold  float64
}

// Audio selects the PCM source.
type Audio struct {
	File        string // WAV replay instead of a microphone
	Realtime    bool   // pace replay at the file's own rate
	DeviceMatch string // capture device name filter
}

// Camera selects the color source.
type Camera struct {
	Source string
	Dir    string
	FPS    int
	Width  int
	Height int
}

// Sensor tunes the device status monitor.
type Sensor struct {
	Poll time.Duration
}

// Log configures the application logger.
type Log struct {
	File      string // "stderr" logs to the console
	Level     logger.Level
	MaxSizeMB int
}

// Feedback toggles audible acknowledgements.
type Feedback struct {
	Chime bool
}

type vocabEntry struct {
	Phrase  string `mapstructure:"phrase"`
	Command string `mapstructure:"command"`
}

func defaultVocabulary() []map[string]any {
	out := make([]map[string]any, 0, len(command.DefaultEntries))
	for _, e := range command.DefaultEntries {
		out = append(out, map[string]any{"phrase": e.Phrase, "command": e.Command.String()})
	}
	return out
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("speech.prefix", command.DefaultPrefix)
	v.SetDefault("speech.vocabulary", defaultVocabulary())
	v.SetDefault("speech.min-confidence", command.DefaultMinConfidence)
	v.SetDefault("speech.debounce", command.DefaultDebounce)
	v.SetDefault("speech.model", "models")
	v.SetDefault("speech.language", "en")
	v.SetDefault("speech.culture", "en-US")
	v.SetDefault("speech.threads", 0)
	v.SetDefault("speech.wake-model", "")
	v.SetDefault("speech.melspec-model", "models/melspectrogram.onnx")
	v.SetDefault("speech.embedding-model", "models/embedding_model.onnx")
	v.SetDefault("speech.onnx-lib", "lib/libonnxruntime.so")
	v.SetDefault("speech.wake-threshold", 0.3)
	v.SetDefault("audio.file", "")
	v.SetDefault("audio.realtime", true)
	v.SetDefault("audio.device-match", "Kinect")
	v.SetDefault("camera.source", CameraPattern)
	v.SetDefault("camera.dir", "")
	v.SetDefault("camera.fps", domain.RgbResolution640x480Fps30.FPS)
	v.SetDefault("camera.width", domain.RgbResolution640x480Fps30.Width)
	v.SetDefault("camera.height", domain.RgbResolution640x480Fps30.Height)
	v.SetDefault("sensor.poll", 2*time.Second)
	v.SetDefault("log.file", ".kinectdrone/kinectdrone.log")
	v.SetDefault("log.level", "normal")
	v.SetDefault("log.max-size", 8)
	v.SetDefault("feedback.chime", true)
}

// flagKeys binds flag names to config keys.
var flagKeys = map[string]string{
	"prefix":         "speech.prefix",
	"min-confidence": "speech.min-confidence",
	"debounce":       "speech.debounce",
	"model":          "speech.model",
	"language":       "speech.language",
	"threads":        "speech.threads",
	"wake-model":     "speech.wake-model",
	"wake-threshold": "speech.wake-threshold",
	"audio-file":     "audio.file",
	"device":         "audio.device-match",
	"camera":         "camera.source",
	"camera-dir":     "camera.dir",
	"fps":            "camera.fps",
	"poll":           "sensor.poll",
	"log-file":       "log.file",
	"log-level":      "log.level",
	"chime":          "feedback.chime",
}

func newFlagSet(out io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("kinectdrone", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.String("config", "", "config file (yaml or json); defaults to ./kinectdrone.yaml when present")
	fs.String("env-file", ".env", "dotenv file loaded before reading the environment")
	fs.String("prefix", command.DefaultPrefix, "wake word every command starts with")
	fs.Float64("min-confidence", command.DefaultMinConfidence, "minimum recognition confidence")
	fs.Duration("debounce", command.DefaultDebounce, "minimum time between accepted commands")
	fs.String("model", "models", "whisper model file or directory of ggml-*.bin models")
	fs.String("language", "en", "transcription language")
	fs.Int("threads", 0, "transcription threads (0 = all CPUs)")
	fs.String("wake-model", "", "openWakeWord ONNX model; enables the wake gate")
	fs.Float64("wake-threshold", 0.3, "wake gate score threshold")
	fs.String("audio-file", "", "replay a 16 kHz mono WAV file instead of the microphone")
	fs.String("device", "Kinect", "capture device name filter (empty = any)")
	fs.String("camera", CameraPattern, "camera source: pattern, dir or none")
	fs.String("camera-dir", "", "image directory for --camera=dir")
	fs.Int("fps", 30, "camera frame rate")
	fs.Duration("poll", 2*time.Second, "sensor status poll interval")
	fs.String("log-file", ".kinectdrone/kinectdrone.log", "log file (\"stderr\" logs to the console)")
	fs.String("log-level", "normal", "log level: off, normal or verbose")
	fs.Bool("chime", true, "play a tone when a command is accepted")
	fs.BoolP("verbose", "v", false, "enable verbose/debug logging")
	fs.BoolP("quiet", "q", false, "disable all logging")
	return fs
}

// Load resolves the configuration from args (without the program name).
// It returns pflag.ErrHelp when help was requested. Every other failure
// wraps domain.ErrConfiguration.
func Load(fsys afero.Fs, args []string, usage io.Writer) (*Config, error) {
	flags := newFlagSet(usage)
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}

	if envFile, _ := flags.GetString("env-file"); envFile != "" {
		// A missing .env file is not an error.
		_ = godotenv.Load(envFile)
	}

	v := viper.New()
	v.SetFs(fsys)
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return nil, fmt.Errorf("%w: binding --%s: %v", domain.ErrConfiguration, name, err)
		}
	}

	if path, _ := flags.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", domain.ErrConfiguration, path, err)
		}
	} else {
		v.SetConfigName("kinectdrone")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
			}
		}
	}

	if verbose, _ := flags.GetBool("verbose"); verbose {
		v.Set("log.level", "verbose")
	}
	if quiet, _ := flags.GetBool("quiet"); quiet {
		v.Set("log.level", "off")
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	level, err := logger.ParseLevel(v.GetString("log.level"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}

	var raw []vocabEntry
	if err := v.UnmarshalKey("speech.vocabulary", &raw); err != nil {
		return nil, fmt.Errorf("%w: speech.vocabulary: %v", domain.ErrConfiguration, err)
	}
	vocab := make([]command.Entry, 0, len(raw))
	for _, e := range raw {
		cmd, ok := domain.ParseVoiceCommand(e.Command)
		if !ok {
			return nil, fmt.Errorf("%w: speech.vocabulary: unknown command %q for phrase %q",
				domain.ErrConfiguration, e.Command, e.Phrase)
		}
		vocab = append(vocab, command.Entry{Phrase: e.Phrase, Command: cmd})
	}

	cfg := &Config{
		Speech: Speech{
			Prefix:         v.GetString("speech.prefix"),
			Vocabulary:     vocab,
			MinConfidence:  v.GetFloat64("speech.min-confidence"),
			Debounce:       v.GetDuration("speech.debounce"),
			Model:          v.GetString("speech.model"),
			Language:       v.GetString("speech.language"),
			Culture:        v.GetString("speech.culture"),
			Threads:        v.GetInt("speech.threads"),
			WakeModel:      v.GetString("speech.wake-model"),
			MelspecModel:   v.GetString("speech.melspec-model"),
			EmbeddingModel: v.GetString("speech.embedding-model"),
			OnnxLib:        v.GetString("speech.onnx-lib"),
			WakeThreshold:  v.GetFloat64("speech.wake-threshold"),
		},
		Audio: Audio{
			File:        v.GetString("audio.file"),
			Realtime:    v.GetBool("audio.realtime"),
			DeviceMatch: v.GetString("audio.device-match"),
		},
		Camera: Camera{
			Source: strings.ToLower(v.GetString("camera.source")),
			Dir:    v.GetString("camera.dir"),
			FPS:    v.GetInt("camera.fps"),
			Width:  v.GetInt("camera.width"),
			Height: v.GetInt("camera.height"),
		},
		Sensor:   Sensor{Poll: v.GetDuration("sensor.poll")},
		Log:      Log{File: v.GetString("log.file"), Level: level, MaxSizeMB: v.GetInt("log.max-size")},
		Feedback: Feedback{Chime: v.GetBool("feedback.chime")},
		File:     v.ConfigFileUsed(),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and cross-field requirements.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.Speech.Prefix != "" && !strings.ContainsAny(c.Speech.Prefix, " \t\n"),
		"speech.prefix must be a single word, got %q", c.Speech.Prefix)
	check(len(c.Speech.Vocabulary) > 0, "speech.vocabulary is empty")
	check(c.Speech.MinConfidence >= 0 && c.Speech.MinConfidence <= 1,
		"speech.min-confidence must be within [0, 1], got %v", c.Speech.MinConfidence)
	check(c.Speech.Debounce >= 0, "speech.debounce must not be negative, got %s", c.Speech.Debounce)
	check(c.Speech.Threads >= 0, "speech.threads must not be negative")
	check(c.Speech.WakeThreshold > 0 && c.Speech.WakeThreshold <= 1,
		"speech.wake-threshold must be within (0, 1], got %v", c.Speech.WakeThreshold)

	switch c.Camera.Source {
	case CameraPattern, CameraNone:
	case CameraDir:
		check(c.Camera.Dir != "", "camera.dir is required when camera.source is %q", CameraDir)
	default:
		check(false, "camera.source must be pattern, dir or none, got %q", c.Camera.Source)
	}
	check(c.Camera.FPS > 0, "camera.fps must be positive, got %d", c.Camera.FPS)
	check(c.Camera.Width > 0 && c.Camera.Height > 0,
		"camera size must be positive, got %dx%d", c.Camera.Width, c.Camera.Height)
	check(c.Sensor.Poll > 0, "sensor.poll must be positive, got %s", c.Sensor.Poll)

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// BuildVocabulary creates the command vocabulary.
func (c *Config) BuildVocabulary() (*command.Vocabulary, error) {
	return command.NewVocabulary(c.Speech.Vocabulary...)
}

// ColorFormat returns the camera format to enable.
func (c *Config) ColorFormat() domain.ColorFormat {
	return domain.ColorFormat{
		Width:         c.Camera.Width,
		Height:        c.Camera.Height,
		FPS:           c.Camera.FPS,
		BytesPerPixel: domain.RgbResolution640x480Fps30.BytesPerPixel,
	}
}
