package renderer

import (
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"path"
	"strings"

	"github.com/olakz-ops/export-chat-converter/internal/domain"
)

//go:embed templates/chat.html.tmpl
var templateFS embed.FS

// DefaultTitle is shown when the document has no title of its own.
const DefaultTitle = "שיחת WhatsApp"

var chatTemplate = template.Must(template.New("chat.html.tmpl").
	Funcs(template.FuncMap{
		"cost": func(c float64) string { return fmt.Sprintf("%.4f", c) },
	}).
	ParseFS(templateFS, "templates/chat.html.tmpl"))

// HTMLRenderer renders a chat as a single self-contained HTML page with the
// audio embedded as data URIs.
type HTMLRenderer struct{}

type pageView struct {
	Title       string
	GeneratedAt string
	TotalCost   float64
	Messages    []messageView
}

type messageView struct {
	Index     int
	Timestamp string
	Sender    string
	Speaker2  bool
	Cost      float64
	Text      template.HTML
	Audio     []audioView
	// Reference is set for attachment references without a matched file.
	Reference bool
	Errors    []string
}

type audioView struct {
	File     string
	Src      template.URL
	MimeType string
	SizeKB   string
	Missing  bool
	Broken   bool
}

func (r *HTMLRenderer) Render(w io.Writer, doc *domain.Document) error {
	page := pageView{
		Title:     doc.Title,
		TotalCost: doc.TotalCost,
		Messages:  make([]messageView, 0, len(doc.Messages)),
	}
	if page.Title == "" {
		page.Title = DefaultTitle
	}
	if !doc.GeneratedAt.IsZero() {
		page.GeneratedAt = doc.GeneratedAt.Format("02/01/2006 15:04")
	}

	speakers := speakerOrder(doc.Messages)
	for i := range doc.Messages {
		page.Messages = append(page.Messages, newMessageView(i, &doc.Messages[i], speakers))
	}

	if err := chatTemplate.Execute(w, page); err != nil {
		return fmt.Errorf("rendering html: %w", err)
	}
	return nil
}

// speakerOrder maps each sender to the position of its first message.
func speakerOrder(msgs []domain.Message) map[string]int {
	order := make(map[string]int)
	for i := range msgs {
		if _, ok := order[msgs[i].Sender]; !ok {
			order[msgs[i].Sender] = len(order)
		}
	}
	return order
}

func newMessageView(i int, msg *domain.Message, speakers map[string]int) messageView {
	v := messageView{
		Index:     i,
		Timestamp: msg.Timestamp,
		Sender:    msg.Sender,
		Speaker2:  speakers[msg.Sender] == 1,
		Cost:      msg.Cost(),
		Text:      FormatText(msg.Text),
	}

	clips := msg.AudioClips()
	embedded := false
	for _, c := range clips {
		if c.Original != nil {
			embedded = true
		}
		if c.Error != "" {
			v.Errors = append(v.Errors, c.Error)
		}
	}
	if !embedded {
		// Nothing to play; the reference text is shown as is.
		v.Reference = len(clips) > 0
		return v
	}
	for _, c := range clips {
		v.Audio = append(v.Audio, newAudioView(c))
	}
	return v
}

func newAudioView(c domain.AudioClip) audioView {
	v := audioView{File: c.File}
	if c.Original == nil {
		v.Missing = true
		return v
	}
	data, err := c.Original.Bytes()
	if err != nil {
		v.Broken = true
		return v
	}
	v.MimeType = embedMimeType(c.Original)
	v.Src = template.URL("data:" + v.MimeType + ";base64," + base64.StdEncoding.EncodeToString(data))
	v.SizeKB = fmt.Sprintf("%.1f", float64(c.Original.Size())/1024)
	return v
}

// embedMimeType labels Opus voice notes as OGG, which browsers play.
func embedMimeType(f domain.MediaFile) string {
	switch strings.ToLower(path.Ext(f.Name())) {
	case ".opus", ".ogg":
		return "audio/ogg"
	}
	if t := f.ContentType(); t != "" {
		return t
	}
	return "audio/ogg"
}

// FormatText escapes text for HTML and turns newlines into line breaks.
func FormatText(text string) template.HTML {
	escaped := template.HTMLEscapeString(text)
	return template.HTML(strings.ReplaceAll(escaped, "\n", "<br>")) //nolint:gosec // input is escaped above
}
