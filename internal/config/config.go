// Package config loads gostt-relay settings from YAML with environment
// overrides. Missing fields keep the values from Default.
package config

import (
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// envPrefix namespaces environment overrides (GOSTT_API_KEY, ...).
const envPrefix = "GOSTT"

// Config holds all application configuration.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // "console" or "json"
	LogFile   string `yaml:"log_file"`

	API      APIConfig      `yaml:"api"`
	Audio    AudioConfig    `yaml:"audio"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Health   HealthConfig   `yaml:"health"`
	Control  ControlConfig  `yaml:"control"`
	Output   OutputConfig   `yaml:"output"`
	Filters  FiltersConfig  `yaml:"filters"`
	Hotkeys  HotkeysConfig  `yaml:"hotkeys"`
	Startup  StartupConfig  `yaml:"startup"`
	Notebook NotebookConfig `yaml:"notebook"`
	Status   StatusConfig   `yaml:"status"`
}

// APIConfig describes the OpenAI-compatible transcription endpoint.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Prompt  string        `yaml:"prompt"`
	Timeout time.Duration `yaml:"timeout"`
}

// AudioConfig holds capture and segmentation settings.
type AudioConfig struct {
	Backend          string        `yaml:"backend"` // "malgo", "pulse" or "stdin"
	Device           string        `yaml:"device"`  // id or name substring, empty for default
	SampleRate       uint32        `yaml:"sample_rate"`
	FrameSize        int           `yaml:"frame_size"`        // samples per frame
	SilenceThreshold int           `yaml:"silence_threshold"` // peak amplitude, 0-32767
	SilenceDuration  float64       `yaml:"silence_duration"`  // seconds
	MaxBuffer        float64       `yaml:"max_buffer"`        // seconds
	ReopenDelay      time.Duration `yaml:"reopen_delay"`
}

// SilenceLimitFrames is the number of quiet frames after speech that ends an
// utterance, rounded down.
func (a AudioConfig) SilenceLimitFrames() int {
	return a.framesIn(a.SilenceDuration)
}

// BufferLimitFrames is the number of frames at which an utterance is cut
// regardless of VAD state, rounded down.
func (a AudioConfig) BufferLimitFrames() int {
	return a.framesIn(a.MaxBuffer)
}

// framesIn converts seconds to whole frames. The product is rounded to a
// millionth of a frame first so 2.3s at 48kHz in 480-sample frames is 230,
// not 229.
func (a AudioConfig) framesIn(seconds float64) int {
	if a.FrameSize <= 0 {
		return 0
	}
	n := seconds * float64(a.SampleRate) / float64(a.FrameSize)
	return int(math.Floor(math.Round(n*1e6) / 1e6))
}

// DeliveryConfig controls the delivery worker.
type DeliveryConfig struct {
	SaveOnly      bool          `yaml:"save_only"`
	MaxRetries    int           `yaml:"max_retries"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	MaxQueueDepth int           `yaml:"max_queue_depth"` // 0 disables the overflow cap
	SalvageDir    string        `yaml:"salvage_dir"`
}

// HealthConfig controls the endpoint health monitor.
type HealthConfig struct {
	Enabled         bool          `yaml:"enabled"`
	InitialDelay    time.Duration `yaml:"initial_delay"`
	HealthyInterval time.Duration `yaml:"healthy_interval"`
	UnhealthyBase   time.Duration `yaml:"unhealthy_base"`
	UnhealthyMax    time.Duration `yaml:"unhealthy_max"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout"`
}

// ControlConfig holds the bounded waits used when recording is paused.
type ControlConfig struct {
	DrainTimeout  time.Duration `yaml:"drain_timeout"`
	OutputTimeout time.Duration `yaml:"output_timeout"`
	DrainPoll     time.Duration `yaml:"drain_poll"`
}

// OutputConfig holds transcript output settings.
type OutputConfig struct {
	TypingEnabled         bool   `yaml:"typing_enabled"`
	Method                string `yaml:"method"` // "type" or "paste"
	LogDir                string `yaml:"log_dir"`
	SaveTranscriptionLogs bool   `yaml:"save_transcription_logs"`
	LogTranscriptionText  bool   `yaml:"log_transcription_text"`
	SaveWAVFiles          bool   `yaml:"save_wav_files"`
	WAVDir                string `yaml:"wav_dir"`
}

// FiltersConfig lists transcripts that are dropped instead of delivered.
type FiltersConfig struct {
	Hallucinations []string `yaml:"hallucinations"`
}

// HotkeysConfig holds global hotkey combos such as "ctrl+shift+f1".
// An empty combo disables that binding.
type HotkeysConfig struct {
	Mode   string `yaml:"mode"` // "toggle" or "hold"
	Toggle string `yaml:"toggle"`
	Stop   string `yaml:"stop"`
	Submit string `yaml:"submit"`
	Clear  string `yaml:"clear"`
}

// StartupConfig holds settings applied once at launch.
type StartupConfig struct {
	StartRecording bool `yaml:"start_recording"`
}

// NotebookConfig holds notebook output settings.
type NotebookConfig struct {
	Enabled  bool   `yaml:"enabled"`
	FilePath string `yaml:"file_path"`
}

// StatusConfig holds the local status server settings.
type StatusConfig struct {
	ListenAddr string `yaml:"listen_addr"` // empty disables the server
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gostt-relay")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "console",
		API: APIConfig{
			BaseURL: "http://127.0.0.1:52625/v1",
			APIKey:  "flm",
			Model:   "whisper-v3",
			Timeout: 60 * time.Second,
		},
		Audio: AudioConfig{
			Backend:          "malgo",
			SampleRate:       16000,
			FrameSize:        2048,
			SilenceThreshold: 700,
			SilenceDuration:  1.5,
			MaxBuffer:        40.0,
			ReopenDelay:      time.Second,
		},
		Delivery: DeliveryConfig{
			MaxRetries:    3,
			BaseDelay:     time.Second,
			MaxDelay:      30 * time.Second,
			MaxQueueDepth: 100,
			SalvageDir:    "temp_audio",
		},
		Health: HealthConfig{
			Enabled:         true,
			InitialDelay:    2 * time.Second,
			HealthyInterval: 30 * time.Second,
			UnhealthyBase:   5 * time.Second,
			UnhealthyMax:    30 * time.Second,
			ProbeTimeout:    5 * time.Second,
		},
		Control: ControlConfig{
			DrainTimeout:  10 * time.Second,
			OutputTimeout: 5 * time.Second,
			DrainPoll:     100 * time.Millisecond,
		},
		Output: OutputConfig{
			TypingEnabled:         true,
			Method:                "type",
			LogDir:                "transcription_logs",
			SaveTranscriptionLogs: true,
			LogTranscriptionText:  true,
			WAVDir:                "audio_recordings",
		},
		Filters: FiltersConfig{
			Hallucinations: []string{"thank you.", "thank you", "stop", "bye.", "thanks for watching."},
		},
		Hotkeys: HotkeysConfig{
			Mode:   "toggle",
			Toggle: "ctrl+shift+f1",
			Stop:   "ctrl+shift+f2",
			Submit: "ctrl+shift+f3",
		},
		Notebook: NotebookConfig{
			FilePath: "notebook.txt",
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in path settings is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.expandPaths()

	return cfg, nil
}

// envOverrides are the settings that may come from the environment. Empty
// values leave the file configuration untouched.
type envOverrides struct {
	APIBaseURL  string `envconfig:"API_BASE_URL"`
	APIKey      string `envconfig:"API_KEY"`
	APIModel    string `envconfig:"API_MODEL"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
	AudioDevice string `envconfig:"AUDIO_DEVICE"`
}

// ApplyEnv overlays GOSTT_* environment variables onto cfg. A .env file in
// the working directory is loaded first if one exists.
func ApplyEnv(cfg *Config) error {
	_ = godotenv.Load()

	var env envOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}

	if env.APIBaseURL != "" {
		cfg.API.BaseURL = env.APIBaseURL
	}
	if env.APIKey != "" {
		cfg.API.APIKey = env.APIKey
	}
	if env.APIModel != "" {
		cfg.API.Model = env.APIModel
	}
	if env.LogLevel != "" {
		cfg.LogLevel = env.LogLevel
	}
	if env.AudioDevice != "" {
		cfg.Audio.Device = env.AudioDevice
	}
	return nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format must be \"console\" or \"json\", got %q", c.LogFormat)
	}

	if !c.Delivery.SaveOnly {
		if c.API.BaseURL == "" {
			return fmt.Errorf("api.base_url must not be empty")
		}
		if _, err := url.ParseRequestURI(c.API.BaseURL); err != nil {
			return fmt.Errorf("api.base_url is not a valid URL: %w", err)
		}
		if c.API.Model == "" {
			return fmt.Errorf("api.model must not be empty")
		}
	}

	switch c.Audio.Backend {
	case "malgo", "pulse", "stdin":
	default:
		return fmt.Errorf("audio.backend must be malgo, pulse, or stdin, got %q", c.Audio.Backend)
	}

	if c.Audio.SampleRate == 0 {
		return fmt.Errorf("audio.sample_rate must be > 0")
	}

	if c.Audio.FrameSize <= 0 {
		return fmt.Errorf("audio.frame_size must be > 0")
	}

	if c.Audio.SilenceThreshold < 0 || c.Audio.SilenceThreshold > 32767 {
		return fmt.Errorf("audio.silence_threshold must be between 0 and 32767, got %d", c.Audio.SilenceThreshold)
	}

	if c.Audio.SilenceDuration <= 0 {
		return fmt.Errorf("audio.silence_duration must be > 0")
	}

	if c.Audio.BufferLimitFrames() < 1 {
		return fmt.Errorf("audio.max_buffer must cover at least one frame")
	}

	if c.Delivery.MaxRetries < 1 {
		return fmt.Errorf("delivery.max_retries must be >= 1")
	}

	if c.Delivery.BaseDelay <= 0 || c.Delivery.MaxDelay < c.Delivery.BaseDelay {
		return fmt.Errorf("delivery.base_delay must be > 0 and <= delivery.max_delay")
	}

	if c.Delivery.MaxQueueDepth < 0 {
		return fmt.Errorf("delivery.max_queue_depth must be >= 0")
	}

	if c.Delivery.SalvageDir == "" {
		return fmt.Errorf("delivery.salvage_dir must not be empty")
	}

	switch c.Output.Method {
	case "type", "paste":
	default:
		return fmt.Errorf("output.method must be \"type\" or \"paste\", got %q", c.Output.Method)
	}

	switch c.Hotkeys.Mode {
	case "hold", "toggle":
	default:
		return fmt.Errorf("hotkeys.mode must be \"hold\" or \"toggle\", got %q", c.Hotkeys.Mode)
	}

	if c.Notebook.Enabled && c.Notebook.FilePath == "" {
		return fmt.Errorf("notebook.file_path must not be empty when notebook is enabled")
	}

	return nil
}

// ParseLogLevel maps a config log level to a zerolog level, defaulting to info.
func ParseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseKeys splits a combo like "ctrl+shift+f1" into lowercase key names.
// An empty combo yields nil.
func ParseKeys(combo string) []string {
	var keys []string
	for _, k := range strings.Split(combo, "+") {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// WriteDefault writes the commented default config to DefaultConfigPath.
// It returns the written path, or "" if a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	if err := os.WriteFile(path, []byte(defaultTemplate), 0644); err != nil {
		return "", fmt.Errorf("writing default config: %w", err)
	}

	return path, nil
}

func (c *Config) expandPaths() {
	c.LogFile = expandTilde(c.LogFile)
	c.Delivery.SalvageDir = expandTilde(c.Delivery.SalvageDir)
	c.Output.LogDir = expandTilde(c.Output.LogDir)
	c.Output.WAVDir = expandTilde(c.Output.WAVDir)
	c.Notebook.FilePath = expandTilde(c.Notebook.FilePath)
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

const defaultTemplate = `# gostt-relay configuration
# Durations use Go syntax ("500ms", "30s").

log_level: info        # debug, info, warn, error
log_format: console    # console or json
log_file: ""           # optional application log file

api:
  base_url: http://127.0.0.1:52625/v1   # OpenAI-compatible endpoint
  api_key: flm
  model: whisper-v3
  prompt: ""
  timeout: 60s

audio:
  backend: malgo          # malgo, pulse (linux), or stdin (raw s16le mono)
  device: ""              # id or name substring; see -list-devices
  sample_rate: 16000
  frame_size: 2048        # samples per frame
  silence_threshold: 700  # peak amplitude 0-32767
  silence_duration: 1.5   # seconds of silence that end an utterance
  max_buffer: 40.0        # seconds before an utterance is cut
  reopen_delay: 1s

delivery:
  save_only: false        # write every utterance to salvage_dir, never call the API
  max_retries: 3          # submit attempts per utterance
  base_delay: 1s
  max_delay: 30s
  max_queue_depth: 100    # backlog at which new work goes straight to disk; 0 = unbounded
  salvage_dir: temp_audio

health:
  enabled: true
  initial_delay: 2s
  healthy_interval: 30s
  unhealthy_base: 5s
  unhealthy_max: 30s
  probe_timeout: 5s

control:
  drain_timeout: 10s
  output_timeout: 5s
  drain_poll: 100ms

output:
  typing_enabled: true
  method: type            # type or paste
  log_dir: transcription_logs
  save_transcription_logs: true
  log_transcription_text: true
  save_wav_files: false
  wav_dir: audio_recordings

filters:
  hallucinations: ["thank you.", "thank you", "stop", "bye.", "thanks for watching."]

hotkeys:
  mode: toggle            # toggle or hold
  toggle: ctrl+shift+f1
  stop: ctrl+shift+f2     # hard stop: discard everything
  submit: ctrl+shift+f3
  clear: ""               # stop recording and clear the queue

startup:
  start_recording: false

notebook:
  enabled: false
  file_path: notebook.txt

status:
  listen_addr: ""         # e.g. 127.0.0.1:9464
`
