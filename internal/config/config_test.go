package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 44100, cfg.Audio.SampleRateHz)
	assert.Equal(t, 1, cfg.Audio.MicChannels)
	assert.Equal(t, 2, cfg.Audio.SystemChannels)
	assert.Equal(t, 1024, cfg.Audio.FramesPerBlock)
	assert.Contains(t, cfg.Audio.PreferredDevices, "zoom h2")
	assert.Equal(t, "small", cfg.Whisper.Model)
	assert.Equal(t, "tiny", cfg.Whisper.LiveModel)
	assert.True(t, cfg.Whisper.AutoDownload)
	assert.Equal(t, 4.0, cfg.Live.WindowSeconds)
	assert.Equal(t, 0.5, cfg.Live.OverlapSeconds)
	assert.Equal(t, 50, cfg.Live.QueueSize)
	assert.False(t, cfg.Diarization.Enabled)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
audio:
  sample_rate_hz: 48000
  mic_channels: 4
  mic_device: "H4n"
live:
  enabled: true
  window_seconds: 6
diarization:
  speaker_map: "SPEAKER_00:Alice"
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 48000, cfg.Audio.SampleRateHz)
	assert.Equal(t, 4, cfg.Audio.MicChannels)
	assert.Equal(t, 2, cfg.Audio.SystemChannels)
	assert.Equal(t, "H4n", cfg.Audio.MicDevice)
	assert.True(t, cfg.Live.Enabled)
	assert.Equal(t, 6.0, cfg.Live.WindowSeconds)
	assert.Equal(t, "SPEAKER_00:Alice", cfg.Diarization.SpeakerMap)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("ECHOFRAME_AUDIO_SAMPLE_RATE_HZ", "16000")
	t.Setenv("ECHOFRAME_WHISPER_MODEL", "base.en")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 16000, cfg.Audio.SampleRateHz)
	assert.Equal(t, "base.en", cfg.Whisper.Model)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: loud
live:
  window_seconds: 1
  overlap_seconds: 2
`), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
	assert.Contains(t, err.Error(), "must exceed overlap")
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("audio: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, WriteDefault(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 44100, cfg.Audio.SampleRateHz)

	assert.Error(t, WriteDefault(path), "existing file is not overwritten")
}

func TestPathsUseXDG(t *testing.T) {
	if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
		t.Skip("XDG paths only apply on linux")
	}
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_DATA_HOME", dir)

	assert.Equal(t, filepath.Join(dir, "echoframe", "config.yaml"), ConfigPath())
	assert.Equal(t, filepath.Join(dir, "echoframe", "models"), ModelsPath())
}
