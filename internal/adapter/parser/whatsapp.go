package parser

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/olakz-ops/export-chat-converter/internal/domain"
)

// WhatsAppParser parses the text of a WhatsApp chat export (_chat.txt).
type WhatsAppParser struct{}

// headerRe matches message start lines:
//
//	[D/M/YYYY, H:MM:SS] Sender: Text
//
// The sender is everything up to the first colon, so senders containing a
// colon are split there and the rest ends up in the body.
var headerRe = regexp.MustCompile(`^\[(\d{1,2}/\d{1,2}/\d{4}), (\d{1,2}:\d{2}:\d{2})\] ([^:]+):(?: (.*))?$`)

// Header is the parsed start line of a message.
type Header struct {
	Timestamp string
	Sender    string
	Text      string
}

// Line renders the header back into export form.
func (h Header) Line() string {
	if h.Text == "" {
		return "[" + h.Timestamp + "] " + h.Sender + ":"
	}
	return "[" + h.Timestamp + "] " + h.Sender + ": " + h.Text
}

// ParseLine parses a message start line. ok is false when the line is not a
// new message (continuation text, attachment line, or noise).
func ParseLine(line string) (Header, bool) {
	line = strings.TrimLeftFunc(cleanLine(line), isInvisible)

	m := headerRe.FindStringSubmatch(line)
	if m == nil {
		return Header{}, false
	}
	return Header{
		Timestamp: m[1] + ", " + m[2],
		Sender:    strings.TrimFunc(m[3], isSpaceOrInvisible),
		Text:      strings.TrimSpace(m[4]),
	}, true
}

// Parse implements domain.ChatParser.
func (p *WhatsAppParser) Parse(content string) []domain.Message {
	return ParseChat(content)
}

// ParseChat reconstructs the ordered message list from the export text.
// Continuation lines are appended to the current message; a line that is
// itself an attachment reference becomes its own message with the sender and
// timestamp of the message it follows.
func ParseChat(content string) []domain.Message {
	var (
		messages []domain.Message
		current  *domain.Message
	)
	flush := func() {
		if current != nil {
			messages = append(messages, *current)
			current = nil
		}
	}

	for _, raw := range splitLines(content) {
		line := cleanLine(raw)

		if h, ok := ParseLine(line); ok {
			flush()
			current = &domain.Message{Timestamp: h.Timestamp, Sender: h.Sender, Text: h.Text}
			continue
		}

		trimmed := strings.TrimSpace(line)
		if current == nil || trimmed == "" {
			continue
		}

		if domain.IsAttachmentLine(trimmed) {
			prev := *current
			flush()
			current = &domain.Message{Timestamp: prev.Timestamp, Sender: prev.Sender, Text: trimmed}
			continue
		}

		current.Text += "\n" + trimmed
	}
	flush()

	return messages
}

// splitLines splits on line feeds. Exports that use bare carriage returns
// as terminators are split on those instead.
func splitLines(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.Contains(content, "\n") {
		content = strings.ReplaceAll(content, "\r", "\n")
	}
	return strings.Split(content, "\n")
}

// cleanLine removes carriage returns and trailing line-ending noise.
func cleanLine(line string) string {
	line = strings.ReplaceAll(line, "\r", "")
	return strings.TrimRight(line, "\u0085\u2028\u2029")
}

// isInvisible matches directional marks, zero-width spaces and the BOM.
func isInvisible(r rune) bool {
	switch r {
	case '\u200e', '\u200f', // LTR / RTL mark
		'\u200b', '\u200c', '\u200d', // zero-width spaces
		'\u202a', '\u202b', '\u202c', '\u202d', '\u202e', // embedding / override
		'\ufeff': // BOM
		return true
	}
	return false
}

func isSpaceOrInvisible(r rune) bool {
	return isInvisible(r) || unicode.IsSpace(r)
}
