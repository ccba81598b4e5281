package app

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/olakz-ops/export-chat-converter/internal/domain"
)

// DefaultSystemPatterns are substrings of messages WhatsApp generates on its
// own (deleted messages, missed calls, the encryption notice).
var DefaultSystemPatterns = []string{
	"הודעה זו נמחקה",
	"הודעה זו לא נמסרה",
	"שיחה קולית שלא נענתה",
	"שיחת וידאו שלא נענתה",
	"הודעות ושיחות בצ'אט זה מאובטחות",
	"הקש כדי לנסות שוב",
	"This message was deleted",
	"You deleted this message",
	"Missed voice call",
	"Missed video call",
	"Messages and calls are end-to-end encrypted",
	"Tap to retry",
}

// CleanOptions selects which filters Clean applies.
type CleanOptions struct {
	RemoveSystemMessages bool
	RemoveEmpty          bool
}

// DefaultCleanOptions enables both filters.
func DefaultCleanOptions() CleanOptions {
	return CleanOptions{RemoveSystemMessages: true, RemoveEmpty: true}
}

// Cleaner drops system-generated and empty messages.
type Cleaner struct {
	patterns []string
}

// NewCleaner returns a Cleaner using the default patterns plus extra.
func NewCleaner(extra ...string) *Cleaner {
	patterns := make([]string, 0, len(DefaultSystemPatterns)+len(extra))
	patterns = append(patterns, DefaultSystemPatterns...)
	for _, p := range extra {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	return &Cleaner{patterns: patterns}
}

// IsSystemMessage reports whether the message text contains a system pattern.
func (c *Cleaner) IsSystemMessage(msg *domain.Message) bool {
	for _, p := range c.patterns {
		if strings.Contains(msg.Text, p) {
			return true
		}
	}
	return false
}

// Clean returns the messages that survive the selected filters, in order.
func (c *Cleaner) Clean(msgs []domain.Message, opts CleanOptions) []domain.Message {
	out := make([]domain.Message, 0, len(msgs))
	for i := range msgs {
		if opts.RemoveSystemMessages && c.IsSystemMessage(&msgs[i]) {
			continue
		}
		if opts.RemoveEmpty && strings.TrimSpace(msgs[i].Text) == "" {
			continue
		}
		out = append(out, msgs[i])
	}
	return out
}

type patternFile struct {
	Patterns []string `yaml:"patterns"`
}

// LoadPatterns reads extra system-message patterns from a YAML document of
// the form:
//
//	patterns:
//	  - "Waiting for this message"
func LoadPatterns(r io.Reader) ([]string, error) {
	var pf patternFile
	if err := yaml.NewDecoder(r).Decode(&pf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decoding patterns: %w", err)
	}
	return pf.Patterns, nil
}
