package renderer

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olakz-ops/export-chat-converter/internal/domain"
)

type unreadableFile struct{ domain.MemoryFile }

func (f *unreadableFile) Bytes() ([]byte, error) { return nil, errors.New("gone") }

func renderHTML(t *testing.T, doc *domain.Document) *goquery.Document {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, (&HTMLRenderer{}).Render(&buf, doc))
	page, err := goquery.NewDocumentFromReader(&buf)
	require.NoError(t, err)
	return page
}

func sampleDocument() *domain.Document {
	voice := &domain.MemoryFile{FileName: "001-AUDIO.opus", Type: "audio/ogg; codecs=opus", Data: bytes.Repeat([]byte{1}, 2048)}
	return &domain.Document{
		Title:       "Family",
		TotalCost:   0.00273,
		GeneratedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Messages: []domain.Message{
			{Timestamp: "1/2/2024, 09:00:00", Sender: "Alice", Text: "Hello\n<b>world</b>"},
			{
				Timestamp:         "1/2/2024, 09:00:05",
				Sender:            "Bob",
				Text:              "שלום לכולם",
				AudioFile:         "001-AUDIO.opus",
				OriginalAudio:     voice,
				TranscriptionCost: 0.00273,
			},
			{Timestamp: "1/2/2024, 09:01:00", Sender: "Carol", Text: "third speaker"},
			{Timestamp: "1/2/2024, 09:02:00", Sender: "Bob", Text: "\u200f<מצורף: 404-AUDIO.opus>", AudioFile: "404-AUDIO.opus"},
		},
	}
}

func TestHTMLRenderer_Document(t *testing.T) {
	page := renderHTML(t, sampleDocument())

	html := page.Find("html")
	assert.Equal(t, "rtl", html.AttrOr("dir", ""))
	assert.Equal(t, "he", html.AttrOr("lang", ""))
	assert.Equal(t, "Family", page.Find("title").Text())
	assert.Equal(t, "0.0027$", page.Find("#totalCost").Text())

	cards := page.Find(".message-card")
	require.Equal(t, 4, cards.Length())
	assert.Equal(t, "Alice", cards.Eq(0).AttrOr("data-sender", ""))
}

func TestHTMLRenderer_SecondSpeakerClass(t *testing.T) {
	page := renderHTML(t, sampleDocument())
	cards := page.Find(".message-card")

	assert.False(t, cards.Eq(0).HasClass("speaker-2"))
	assert.True(t, cards.Eq(1).HasClass("speaker-2"))
	assert.False(t, cards.Eq(2).HasClass("speaker-2"), "only the second distinct sender is coloured")
	assert.True(t, cards.Eq(3).HasClass("speaker-2"))
}

func TestHTMLRenderer_EscapesTextAndKeepsLineBreaks(t *testing.T) {
	page := renderHTML(t, sampleDocument())
	text := page.Find("#text-0")

	assert.Equal(t, 0, text.Find("b").Length(), "message markup must be escaped")
	assert.Equal(t, 1, text.Find("br").Length())
	assert.Contains(t, text.Text(), "<b>world</b>")
}

func TestHTMLRenderer_EmbedsAudio(t *testing.T) {
	doc := sampleDocument()
	page := renderHTML(t, doc)
	card := page.Find("#message-1")

	source := card.Find("audio source")
	require.Equal(t, 1, source.Length())
	assert.Equal(t, "audio/ogg", source.AttrOr("type", ""))

	src := source.AttrOr("src", "")
	require.True(t, strings.HasPrefix(src, "data:audio/ogg;base64,"), src)
	payload, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(src, "data:audio/ogg;base64,"))
	require.NoError(t, err)
	want, _ := doc.Messages[1].OriginalAudio.Bytes()
	assert.Equal(t, want, payload)

	assert.Contains(t, card.Find(".audio-size").Text(), "2.0 KB")
	assert.Equal(t, "$0.0027", card.Find(".cost-badge").Text())
	assert.Equal(t, "שלום לכולם", card.Find("#text-1").Text())
}

func TestHTMLRenderer_UnmatchedReference(t *testing.T) {
	page := renderHTML(t, sampleDocument())
	card := page.Find("#message-3")

	assert.Equal(t, 0, card.Find("audio").Length())
	assert.Equal(t, 1, card.Find(".reference-section").Length())
	assert.Equal(t, 0, card.Find(".cost-badge").Length())
	assert.Contains(t, card.Find("#text-3").Text(), "404-AUDIO.opus")
}

func TestHTMLRenderer_TranscriptionErrorAndBrokenAudio(t *testing.T) {
	doc := &domain.Document{Messages: []domain.Message{{
		Timestamp:          "1/2/2024, 09:00:05",
		Sender:             "Bob",
		Text:               "[שגיאה בתמלול: 001.opus]",
		AudioFile:          "001.opus",
		OriginalAudio:      &unreadableFile{domain.MemoryFile{FileName: "001.opus"}},
		TranscriptionError: "API error: 401 - Incorrect API key provided",
	}}}

	page := renderHTML(t, doc)

	assert.Equal(t, DefaultTitle, page.Find("title").Text())
	assert.Equal(t, 1, page.Find(".badge-error").Length())
	assert.Equal(t, 1, page.Find(".audio-broken").Length())
	assert.Equal(t, "API error: 401 - Incorrect API key provided", strings.TrimSpace(page.Find(".transcription-error").Text()))
	assert.Equal(t, "0.0000$", page.Find("#totalCost").Text())
}

func TestHTMLRenderer_MergedClips(t *testing.T) {
	a := &domain.MemoryFile{FileName: "a.mp3", Type: "audio/mpeg", Data: []byte("ID3a")}
	doc := &domain.Document{Messages: []domain.Message{{
		Timestamp: "1/2/2024, 09:00:05",
		Sender:    "Bob",
		Text:      "one\ntwo",
		Clips: []domain.AudioClip{
			{File: "a.mp3", Cost: 0.001, Original: a},
			{File: "b.opus", Cost: 0.002},
		},
	}}}

	page := renderHTML(t, doc)

	assert.Equal(t, 1, page.Find("audio").Length())
	assert.Equal(t, "audio/mpeg", page.Find("audio source").AttrOr("type", ""))
	assert.Contains(t, page.Find(".audio-missing").Text(), "b.opus")
	assert.Equal(t, "$0.0030", page.Find(".cost-badge").Text())
}

func TestFormatText(t *testing.T) {
	assert.Equal(t, "a<br>&lt;b&gt; &amp;", string(FormatText("a\n<b> &")))
}
