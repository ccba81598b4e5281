package renderer

import (
	"fmt"
	"io"
	"strings"

	"github.com/olakz-ops/export-chat-converter/internal/domain"
)

// TextRenderer renders a chat as plain text or markdown.
type TextRenderer struct {
	Markdown bool
}

func (r *TextRenderer) Render(w io.Writer, doc *domain.Document) error {
	if doc.Title != "" {
		title := doc.Title
		if r.Markdown {
			title = "# " + title + "\n"
		}
		if _, err := fmt.Fprintln(w, title); err != nil {
			return err
		}
	}

	for i := range doc.Messages {
		line := r.formatMessage(&doc.Messages[i])
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	if doc.TotalCost > 0 {
		footer := fmt.Sprintf("Transcription cost: $%.4f", doc.TotalCost)
		if r.Markdown {
			footer = "\n---\n\n_" + footer + "_"
		}
		if _, err := fmt.Fprintln(w, footer); err != nil {
			return err
		}
	}
	return nil
}

func (r *TextRenderer) formatMessage(msg *domain.Message) string {
	content := msg.Text
	if clips := msg.AudioClips(); len(clips) > 0 {
		files := make([]string, len(clips))
		for i, c := range clips {
			files[i] = c.File
		}
		content = fmt.Sprintf("[Voice message: %s] %s", strings.Join(files, ", "), content)
	}

	if r.Markdown {
		// Markdown needs two trailing spaces for a hard line break.
		content = strings.ReplaceAll(content, "\n", "  \n")
		return fmt.Sprintf("**[%s] %s:** %s  ", msg.Timestamp, msg.Sender, content)
	}
	return fmt.Sprintf("[%s] %s: %s", msg.Timestamp, msg.Sender, content)
}
