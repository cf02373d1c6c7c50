package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const appName = "echoframe"

type Config struct {
	LogLevel    string            `mapstructure:"log_level"`
	OutputDir   string            `mapstructure:"output_dir"`
	Audio       AudioConfig       `mapstructure:"audio"`
	Whisper     WhisperConfig     `mapstructure:"whisper"`
	Live        LiveConfig        `mapstructure:"live"`
	Diarization DiarizationConfig `mapstructure:"diarization"`
}

type AudioConfig struct {
	SampleRateHz     int      `mapstructure:"sample_rate_hz"`
	MicChannels      int      `mapstructure:"mic_channels"`
	SystemChannels   int      `mapstructure:"system_channels"`
	FramesPerBlock   int      `mapstructure:"frames_per_block"`
	MicDevice        string   `mapstructure:"mic_device"`
	SystemDevice     string   `mapstructure:"system_device"`
	PreferredDevices []string `mapstructure:"preferred_devices"` // name fragments tried when no device is given
}

type WhisperConfig struct {
	Model        string `mapstructure:"model"`      // "small", "base.en", etc.
	LiveModel    string `mapstructure:"live_model"` // smaller model for live windows
	Language     string `mapstructure:"language"`   // "" or "auto" lets the model decide
	Threads      int    `mapstructure:"threads"`
	AutoDownload bool   `mapstructure:"auto_download"`
}

type LiveConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	WindowSeconds  float64 `mapstructure:"window_seconds"`
	OverlapSeconds float64 `mapstructure:"overlap_seconds"`
	QueueSize      int     `mapstructure:"queue_size"`
}

type DiarizationConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	Endpoint         string  `mapstructure:"endpoint"`
	Token            string  `mapstructure:"token"`
	SpeakerMap       string  `mapstructure:"speaker_map"` // "SPEAKER_00:Alice,SPEAKER_01:Bob"
	SilenceThreshold float64 `mapstructure:"silence_threshold"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("output_dir", ".")

	v.SetDefault("audio.sample_rate_hz", 44100)
	v.SetDefault("audio.mic_channels", 1)
	v.SetDefault("audio.system_channels", 2)
	v.SetDefault("audio.frames_per_block", 1024)
	v.SetDefault("audio.mic_device", "")
	v.SetDefault("audio.system_device", "")
	v.SetDefault("audio.preferred_devices", []string{"zoom h2", "h2n", "zoom h4", "h4n"})

	v.SetDefault("whisper.model", "small")
	v.SetDefault("whisper.live_model", "tiny")
	v.SetDefault("whisper.language", "")
	v.SetDefault("whisper.threads", 0)
	v.SetDefault("whisper.auto_download", true)

	v.SetDefault("live.enabled", false)
	v.SetDefault("live.window_seconds", 4.0)
	v.SetDefault("live.overlap_seconds", 0.5)
	v.SetDefault("live.queue_size", 50)

	v.SetDefault("diarization.enabled", false)
	v.SetDefault("diarization.endpoint", "")
	v.SetDefault("diarization.token", "")
	v.SetDefault("diarization.speaker_map", "")
	v.SetDefault("diarization.silence_threshold", 0.01)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ECHOFRAME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the YAML config at path (ConfigPath() when empty). A missing
// file is not an error; defaults and ECHOFRAME_* variables still apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	var errs []error
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.Audio.SampleRateHz <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate_hz must be positive, got %d", c.Audio.SampleRateHz))
	}
	if c.Audio.MicChannels < 1 || c.Audio.SystemChannels < 1 {
		errs = append(errs, errors.New("audio channel counts must be at least 1"))
	}
	if c.Live.WindowSeconds <= 0 || c.Live.OverlapSeconds < 0 || c.Live.OverlapSeconds >= c.Live.WindowSeconds {
		errs = append(errs, fmt.Errorf("live window %.2fs must exceed overlap %.2fs", c.Live.WindowSeconds, c.Live.OverlapSeconds))
	}
	if c.Live.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("live.queue_size must be at least 1, got %d", c.Live.QueueSize))
	}
	return errors.Join(errs...)
}

// WriteDefault writes the default config to path. An existing file is left
// untouched and reported as an error.
func WriteDefault(path string) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	v := viper.New()
	setDefaults(v)
	return v.SafeWriteConfigAs(path)
}

// ConfigPath returns the platform-specific config file path
func ConfigPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, appName, "config.yaml")
}

// ModelsPath returns the platform-specific models directory path
func ModelsPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/share"
		}
	}

	return filepath.Join(base, appName, "models")
}
