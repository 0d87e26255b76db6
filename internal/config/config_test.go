package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.API.BaseURL == "" {
		t.Error("API.BaseURL should not be empty")
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("Audio.SampleRate = %d, want 16000", cfg.Audio.SampleRate)
	}
	if cfg.Audio.FrameSize != 2048 {
		t.Errorf("Audio.FrameSize = %d, want 2048", cfg.Audio.FrameSize)
	}
	if cfg.Audio.SilenceThreshold != 700 {
		t.Errorf("Audio.SilenceThreshold = %d, want 700", cfg.Audio.SilenceThreshold)
	}
	if cfg.Delivery.MaxRetries != 3 {
		t.Errorf("Delivery.MaxRetries = %d, want 3", cfg.Delivery.MaxRetries)
	}
	if cfg.Hotkeys.Mode != "toggle" {
		t.Errorf("Hotkeys.Mode = %q, want %q", cfg.Hotkeys.Mode, "toggle")
	}
	if cfg.Output.Method != "type" {
		t.Errorf("Output.Method = %q, want %q", cfg.Output.Method, "type")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestFrameLimits(t *testing.T) {
	a := Default().Audio

	// 1.5s * 16000 / 2048 = 11.71 -> 11
	if got := a.SilenceLimitFrames(); got != 11 {
		t.Errorf("SilenceLimitFrames() = %d, want 11", got)
	}
	// 40s * 16000 / 2048 = 312.5 -> 312
	if got := a.BufferLimitFrames(); got != 312 {
		t.Errorf("BufferLimitFrames() = %d, want 312", got)
	}

	for _, tt := range []struct {
		seconds float64
		rate    uint32
		frame   int
		want    int
	}{
		{2.3, 48000, 480, 230},
		{0.7, 16000, 160, 70},
		{0.1, 44100, 441, 10},
		{0.025, 16000, 160, 2},
		{0.0299, 16000, 160, 2},
	} {
		b := AudioConfig{SampleRate: tt.rate, FrameSize: tt.frame, SilenceDuration: tt.seconds, MaxBuffer: tt.seconds}
		if got := b.SilenceLimitFrames(); got != tt.want {
			t.Errorf("SilenceLimitFrames(%vs at %d/%d) = %d, want %d", tt.seconds, tt.rate, tt.frame, got, tt.want)
		}
		if got := b.BufferLimitFrames(); got != tt.want {
			t.Errorf("BufferLimitFrames(%vs at %d/%d) = %d, want %d", tt.seconds, tt.rate, tt.frame, got, tt.want)
		}
	}

	a.FrameSize = 0
	if got := a.BufferLimitFrames(); got != 0 {
		t.Errorf("BufferLimitFrames() with zero frame size = %d, want 0", got)
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
api:
  base_url: http://10.0.0.5:8000/v1
  model: whisper-large
  timeout: 15s
audio:
  sample_rate: 44100
  silence_threshold: 1200
delivery:
  max_retries: 5
  base_delay: 250ms
hotkeys:
  mode: hold
output:
  method: paste
log_level: debug
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.BaseURL != "http://10.0.0.5:8000/v1" {
		t.Errorf("API.BaseURL = %q, want %q", cfg.API.BaseURL, "http://10.0.0.5:8000/v1")
	}
	if cfg.API.Model != "whisper-large" {
		t.Errorf("API.Model = %q, want %q", cfg.API.Model, "whisper-large")
	}
	if cfg.API.Timeout != 15*time.Second {
		t.Errorf("API.Timeout = %v, want 15s", cfg.API.Timeout)
	}
	if cfg.Audio.SampleRate != 44100 {
		t.Errorf("Audio.SampleRate = %d, want 44100", cfg.Audio.SampleRate)
	}
	if cfg.Audio.SilenceThreshold != 1200 {
		t.Errorf("Audio.SilenceThreshold = %d, want 1200", cfg.Audio.SilenceThreshold)
	}
	if cfg.Audio.FrameSize != 2048 {
		t.Errorf("Audio.FrameSize = %d, want default 2048", cfg.Audio.FrameSize)
	}
	if cfg.Delivery.MaxRetries != 5 {
		t.Errorf("Delivery.MaxRetries = %d, want 5", cfg.Delivery.MaxRetries)
	}
	if cfg.Delivery.BaseDelay != 250*time.Millisecond {
		t.Errorf("Delivery.BaseDelay = %v, want 250ms", cfg.Delivery.BaseDelay)
	}
	if cfg.Hotkeys.Mode != "hold" {
		t.Errorf("Hotkeys.Mode = %q, want %q", cfg.Hotkeys.Mode, "hold")
	}
	if cfg.Output.Method != "paste" {
		t.Errorf("Output.Method = %q, want %q", cfg.Output.Method, "paste")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}

	yamlContent := `
delivery:
  salvage_dir: ~/gostt/salvage
notebook:
  file_path: ~/notes.txt
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	expected := filepath.Join(home, "gostt/salvage")
	if cfg.Delivery.SalvageDir != expected {
		t.Errorf("Delivery.SalvageDir = %q, want %q", cfg.Delivery.SalvageDir, expected)
	}
	expected = filepath.Join(home, "notes.txt")
	if cfg.Notebook.FilePath != expected {
		t.Errorf("Notebook.FilePath = %q, want %q", cfg.Notebook.FilePath, expected)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("audio: [unterminated"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	if _, err := Load(cfgPath); err == nil {
		t.Error("Load() should return error for invalid YAML")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GOSTT_API_BASE_URL", "http://example.test/v1")
	t.Setenv("GOSTT_API_KEY", "secret")
	t.Setenv("GOSTT_LOG_LEVEL", "warn")

	cfg := Default()
	if err := ApplyEnv(cfg); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}

	if cfg.API.BaseURL != "http://example.test/v1" {
		t.Errorf("API.BaseURL = %q, want %q", cfg.API.BaseURL, "http://example.test/v1")
	}
	if cfg.API.APIKey != "secret" {
		t.Errorf("API.APIKey = %q, want %q", cfg.API.APIKey, "secret")
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "warn")
	}
	if cfg.API.Model != "whisper-v3" {
		t.Errorf("API.Model = %q, want default %q", cfg.API.Model, "whisper-v3")
	}
}

func TestApplyEnvDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("GOSTT_API_MODEL=from-dotenv\n"), 0644); err != nil {
		t.Fatalf("writing .env: %v", err)
	}
	t.Setenv("GOSTT_API_MODEL", "")
	os.Unsetenv("GOSTT_API_MODEL")

	cfg := Default()
	if err := ApplyEnv(cfg); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.API.Model != "from-dotenv" {
		t.Errorf("API.Model = %q, want %q", cfg.API.Model, "from-dotenv")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "default config is valid",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: true,
		},
		{
			name:    "invalid log format",
			modify:  func(c *Config) { c.LogFormat = "xml" },
			wantErr: true,
		},
		{
			name:    "empty base url",
			modify:  func(c *Config) { c.API.BaseURL = "" },
			wantErr: true,
		},
		{
			name:    "malformed base url",
			modify:  func(c *Config) { c.API.BaseURL = "not a url" },
			wantErr: true,
		},
		{
			name: "save only ignores api settings",
			modify: func(c *Config) {
				c.Delivery.SaveOnly = true
				c.API.BaseURL = ""
				c.API.Model = ""
			},
			wantErr: false,
		},
		{
			name:    "unknown audio backend",
			modify:  func(c *Config) { c.Audio.Backend = "alsa" },
			wantErr: true,
		},
		{
			name:    "stdin backend",
			modify:  func(c *Config) { c.Audio.Backend = "stdin" },
			wantErr: false,
		},
		{
			name:    "zero sample rate",
			modify:  func(c *Config) { c.Audio.SampleRate = 0 },
			wantErr: true,
		},
		{
			name:    "threshold out of range",
			modify:  func(c *Config) { c.Audio.SilenceThreshold = 40000 },
			wantErr: true,
		},
		{
			name:    "buffer shorter than one frame",
			modify:  func(c *Config) { c.Audio.MaxBuffer = 0.01 },
			wantErr: true,
		},
		{
			name:    "zero retries",
			modify:  func(c *Config) { c.Delivery.MaxRetries = 0 },
			wantErr: true,
		},
		{
			name:    "max delay below base delay",
			modify:  func(c *Config) { c.Delivery.MaxDelay = 100 * time.Millisecond },
			wantErr: true,
		},
		{
			name:    "invalid output method",
			modify:  func(c *Config) { c.Output.Method = "clipboard" },
			wantErr: true,
		},
		{
			name:    "invalid hotkey mode",
			modify:  func(c *Config) { c.Hotkeys.Mode = "press" },
			wantErr: true,
		},
		{
			name: "notebook without file",
			modify: func(c *Config) {
				c.Notebook.Enabled = true
				c.Notebook.FilePath = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"unknown", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseKeys(t *testing.T) {
	got := ParseKeys(" Ctrl + Shift+F1 ")
	want := []string{"ctrl", "shift", "f1"}
	if len(got) != len(want) {
		t.Fatalf("ParseKeys() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ParseKeys()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if keys := ParseKeys(""); keys != nil {
		t.Errorf("ParseKeys(\"\") = %v, want nil", keys)
	}
}

func TestWriteDefault_CreatesFile(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	expected := filepath.Join(tmpHome, ".config", "gostt-relay", "config.yaml")
	if path != expected {
		t.Errorf("WriteDefault() path = %q, want %q", path, expected)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading default config: %v", err)
	}
	if !strings.HasPrefix(string(data), "# gostt-relay") {
		t.Error("default config should start with a '# gostt-relay' header")
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("default config is not valid YAML: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(default) error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default template does not validate: %v", err)
	}
}

func TestWriteDefault_NoOpIfExists(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	dir := filepath.Join(tmpHome, ".config", "gostt-relay")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	existing := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(existing, []byte("log_level: debug\n"), 0644); err != nil {
		t.Fatal(err)
	}

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != "" {
		t.Errorf("WriteDefault() path = %q, want empty (no-op)", path)
	}

	data, _ := os.ReadFile(existing)
	if string(data) != "log_level: debug\n" {
		t.Error("WriteDefault() should not overwrite an existing config")
	}
}
