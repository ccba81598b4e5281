package domain

import (
	"context"
	"io"
)

// Bundle is a loaded export: the chat transcript and its media files.
type Bundle struct {
	ChatName string
	ChatText string
	Media    *MediaSet
}

// ExportLoader loads a WhatsApp export (zip, directory, or chat file).
type ExportLoader interface {
	Load(path string) (*Bundle, error)
}

// ChatParser turns the export text into messages.
type ChatParser interface {
	Parse(content string) []Message
}

// Transcriber transcribes an audio file to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio MediaFile) (string, error)
}

// ChatRenderer renders a processed chat to an output writer.
type ChatRenderer interface {
	Render(w io.Writer, doc *Document) error
}
