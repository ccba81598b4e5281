package domain

import (
	"errors"
	"path"
	"regexp"
	"strings"
)

// ErrMediaUnreadable marks failures to read an uploaded file's bytes. Unlike
// transcription failures it aborts the run.
var ErrMediaUnreadable = errors.New("media file unreadable")

// MediaOmittedPlaceholder is the export text for media exported without a file.
const MediaOmittedPlaceholder = "<Media omitted>"

var (
	// The RTL mark precedes the bracket in real exports; it is optional here
	// so re-saved exports that lost it still match.
	attachedRe = regexp.MustCompile(`\x{200F}?<(?:מצורף|Attached|attached): (.*?\.(opus|mp3))>`)

	mediaOmittedRe = regexp.MustCompile(`(?i)<Media omitted>`)
)

// Attachment is an audio reference detected in a message text.
type Attachment struct {
	Filename     string // empty when MediaOmitted
	Extension    string
	MediaOmitted bool
}

// DetectAttachment inspects a message's current text for one of the two
// attachment notations: the named bracket form or the "media omitted"
// placeholder, whose file must be resolved by the caller.
func DetectAttachment(text string) (Attachment, bool) {
	if m := attachedRe.FindStringSubmatch(text); m != nil {
		return Attachment{Filename: m[1], Extension: m[2]}, true
	}
	if mediaOmittedRe.MatchString(text) {
		return Attachment{Extension: "opus", MediaOmitted: true}, true
	}
	return Attachment{}, false
}

// IsAttachmentLine reports whether a line carries the named bracket notation.
func IsAttachmentLine(line string) bool {
	return attachedRe.MatchString(line)
}

// IsMediaOmitted reports whether text carries the "media omitted" placeholder.
func IsMediaOmitted(text string) bool {
	return mediaOmittedRe.MatchString(text)
}

// IsAudioName reports whether a filename has an audio extension.
func IsAudioName(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".opus", ".ogg", ".mp3", ".m4a", ".aac", ".wav":
		return true
	}
	return false
}
