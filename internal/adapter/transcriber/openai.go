package transcriber

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/olakz-ops/export-chat-converter/internal/domain"
	"github.com/olakz-ops/export-chat-converter/internal/observe"
)

const (
	DefaultModel    = "whisper-1"
	DefaultLanguage = "he"
	DefaultTimeout  = 2 * time.Minute
)

// Config configures the OpenAI transcriber.
type Config struct {
	APIKey   string
	BaseURL  string // optional, for proxies and tests
	Model    string
	Language string
	Timeout  time.Duration
	Metrics  *observe.Metrics
}

// OpenAITranscriber transcribes audio files using the OpenAI Whisper API.
type OpenAITranscriber struct {
	client   openai.Client
	model    string
	language string
	metrics  *observe.Metrics
}

func NewOpenAITranscriber(cfg Config) *OpenAITranscriber {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	opts := []option.RequestOption{
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		// A failed transcription is final for the run.
		option.WithMaxRetries(0),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAITranscriber{
		client:   openai.NewClient(opts...),
		model:    cfg.Model,
		language: cfg.Language,
		metrics:  cfg.Metrics,
	}
}

// Transcribe implements domain.Transcriber.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, audio domain.MediaFile) (string, error) {
	data, err := audio.Bytes()
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrMediaUnreadable, audio.Name(), err)
	}

	name, contentType := Relabel(audio.Name(), audio.ContentType())

	start := time.Now()
	transcription, err := t.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model:    openai.AudioModel(t.model),
		File:     openai.File(bytes.NewReader(data), name, contentType),
		Language: openai.String(t.language),
	})
	t.metrics.RecordTranscription(ctx, t.model, time.Since(start), err)
	if err != nil {
		return "", describeError(audio.Name(), err)
	}

	return transcription.Text, nil
}

// Relabel returns the name and content type to upload a file under. Whisper
// rejects .opus, but WhatsApp .opus files are OGG/Opus containers, so they
// are sent as .ogg with the same bytes.
func Relabel(name, contentType string) (string, string) {
	if strings.EqualFold(path.Ext(name), ".opus") {
		return strings.TrimSuffix(name, path.Ext(name)) + ".ogg", "audio/ogg"
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return name, contentType
}

// describeError turns API failures into "API error: <status> - <message>".
func describeError(filename string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return fmt.Errorf("API error: %d - %s", apiErr.StatusCode, msg)
	}
	return fmt.Errorf("transcribing %s: %w", filename, err)
}
