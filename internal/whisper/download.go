package whisper

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const modelBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

// Models that can be fetched on demand.
var modelFiles = map[string]string{
	"tiny":           "ggml-tiny.bin",
	"tiny.en":        "ggml-tiny.en.bin",
	"base":           "ggml-base.bin",
	"base.en":        "ggml-base.en.bin",
	"small":          "ggml-small.bin",
	"small.en":       "ggml-small.en.bin",
	"medium":         "ggml-medium.bin",
	"medium.en":      "ggml-medium.en.bin",
	"large-v3":       "ggml-large-v3.bin",
	"large-v3-turbo": "ggml-large-v3-turbo.bin",
}

// progressWriter logs download progress at most every two seconds.
type progressWriter struct {
	total      int64
	downloaded int64
	lastLog    time.Time
	log        zerolog.Logger
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	pw.downloaded += int64(n)

	now := time.Now()
	if now.Sub(pw.lastLog) >= 2*time.Second || pw.downloaded >= pw.total {
		pw.lastLog = now
		pw.log.Info().
			Float64("percent", float64(pw.downloaded)/float64(pw.total)*100).
			Float64("downloaded_mb", float64(pw.downloaded)/1024/1024).
			Float64("total_mb", float64(pw.total)/1024/1024).
			Msg("Downloading model")
	}

	return n, nil
}

type downloader struct {
	client  *resty.Client
	baseURL string
	log     zerolog.Logger
}

func newDownloader(log zerolog.Logger) *downloader {
	return &downloader{
		client:  resty.New().SetRetryCount(2).SetRetryWaitTime(2 * time.Second),
		baseURL: modelBaseURL,
		log:     log,
	}
}

// downloadModel fetches model into destPath through a temp file so a broken
// transfer never leaves a truncated model behind.
func (d *downloader) downloadModel(model string, destPath string) error {
	file, ok := modelFiles[model]
	if !ok {
		return fmt.Errorf("unknown model: %s", model)
	}
	url := d.baseURL + file

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	tmpPath := destPath + ".tmp"
	defer os.Remove(tmpPath)

	d.log.Info().Str("url", url).Msg("Starting model download")

	resp, err := d.client.R().SetDoNotParseResponse(true).Get(url)
	if err != nil {
		return fmt.Errorf("failed to download model: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("failed to download model: HTTP %d", resp.StatusCode())
	}

	totalSize := resp.RawResponse.ContentLength
	if totalSize <= 0 {
		d.log.Warn().Msg("Content-Length not provided, progress tracking unavailable")
	}

	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer out.Close()

	var writer io.Writer = out
	if totalSize > 0 {
		writer = io.MultiWriter(out, &progressWriter{total: totalSize, lastLog: time.Now(), log: d.log})
	}

	if _, err := io.Copy(writer, body); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to move model file: %w", err)
	}

	d.log.Info().
		Str("path", destPath).
		Float64("size_mb", float64(totalSize)/1024/1024).
		Msg("Model downloaded successfully")

	return nil
}

// TODO: verify the SHA-1 checksums published alongside the ggml models.
