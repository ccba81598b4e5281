package transcriber

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/olakz-ops/export-chat-converter/internal/domain"
	"github.com/olakz-ops/export-chat-converter/internal/observe"
)

type upload struct {
	model       string
	language    string
	filename    string
	contentType string
	body        string
}

// newMockServer answers POST .../audio/transcriptions with responseText and
// records the multipart fields of the last request.
func newMockServer(t *testing.T, responseText string, last *atomic.Pointer[upload]) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		body, _ := io.ReadAll(f)

		last.Store(&upload{
			model:       r.FormValue("model"),
			language:    r.FormValue("language"),
			filename:    hdr.Filename,
			contentType: hdr.Header.Get("Content-Type"),
			body:        string(body),
		})

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	require.NoError(t, err)
	return m
}

func TestOpenAITranscriber_Transcribe(t *testing.T) {
	var last atomic.Pointer[upload]
	srv := newMockServer(t, "שלום לכולם", &last)

	tr := NewOpenAITranscriber(Config{
		APIKey:  "sk-test",
		BaseURL: srv.URL + "/v1/",
		Metrics: testMetrics(t),
	})

	audio := &domain.MemoryFile{FileName: "00000012-AUDIO.opus", Type: "audio/ogg; codecs=opus", Data: []byte("OggS-bytes")}
	text, err := tr.Transcribe(context.Background(), audio)
	require.NoError(t, err)
	assert.Equal(t, "שלום לכולם", text)

	got := last.Load()
	require.NotNil(t, got)
	assert.Equal(t, "whisper-1", got.model)
	assert.Equal(t, "he", got.language)
	assert.Equal(t, "00000012-AUDIO.ogg", got.filename)
	assert.Equal(t, "audio/ogg", got.contentType)
	assert.Equal(t, "OggS-bytes", got.body, "payload must be byte-identical")
}

func TestOpenAITranscriber_CustomModelAndLanguage(t *testing.T) {
	var last atomic.Pointer[upload]
	srv := newMockServer(t, "hello", &last)

	tr := NewOpenAITranscriber(Config{
		APIKey:   "sk-test",
		BaseURL:  srv.URL + "/v1/",
		Model:    "gpt-4o-mini-transcribe",
		Language: "en",
		Metrics:  testMetrics(t),
	})

	_, err := tr.Transcribe(context.Background(), &domain.MemoryFile{FileName: "a.mp3", Type: "audio/mpeg", Data: []byte("ID3")})
	require.NoError(t, err)

	got := last.Load()
	require.NotNil(t, got)
	assert.Equal(t, "gpt-4o-mini-transcribe", got.model)
	assert.Equal(t, "en", got.language)
	assert.Equal(t, "a.mp3", got.filename)
	assert.Equal(t, "audio/mpeg", got.contentType)
}

func TestOpenAITranscriber_APIError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
	}))
	t.Cleanup(srv.Close)

	tr := NewOpenAITranscriber(Config{APIKey: "sk-bad", BaseURL: srv.URL + "/v1/", Metrics: testMetrics(t)})

	_, err := tr.Transcribe(context.Background(), &domain.MemoryFile{FileName: "a.opus", Data: []byte("x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API error: 401")
	assert.Equal(t, int32(1), calls.Load(), "failed requests are not retried")
}

type brokenFile struct{ domain.MemoryFile }

func (b *brokenFile) Bytes() ([]byte, error) { return nil, io.ErrUnexpectedEOF }

func TestOpenAITranscriber_UnreadableFile(t *testing.T) {
	tr := NewOpenAITranscriber(Config{APIKey: "sk-test", BaseURL: "http://127.0.0.1:1/v1/", Metrics: testMetrics(t)})

	_, err := tr.Transcribe(context.Background(), &brokenFile{domain.MemoryFile{FileName: "a.opus"}})
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.ErrorIs(t, err, domain.ErrMediaUnreadable)
}

func TestRelabel(t *testing.T) {
	tests := []struct {
		name, ctype       string
		wantName, wantTyp string
	}{
		{"voice.opus", "audio/ogg; codecs=opus", "voice.ogg", "audio/ogg"},
		{"VOICE.OPUS", "", "VOICE.ogg", "audio/ogg"},
		{"voice.mp3", "audio/mpeg", "voice.mp3", "audio/mpeg"},
		{"voice.m4a", "", "voice.m4a", "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, typ := Relabel(tt.name, tt.ctype)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantTyp, typ)
		})
	}
}
