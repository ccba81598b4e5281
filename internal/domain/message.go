package domain

import (
	"strings"
	"time"
)

// timestampLayout matches the display timestamp built by the parser
// ("D/M/YYYY, H:MM:SS").
const timestampLayout = "2/1/2006, 15:04:05"

// Message is one logical chat message. Timestamp is kept verbatim from the
// export; it is only parsed on demand for time filtering.
type Message struct {
	Timestamp string
	Sender    string
	Text      string // Body, transcript, or error placeholder

	AudioFile     string    // Attachment reference, set whenever one was detected
	OriginalAudio MediaFile // Matched upload, nil when no file matched

	// TranscriptionCost is zero when no transcription succeeded. Successful
	// transcriptions are never billed at zero.
	TranscriptionCost  float64
	TranscriptionError string

	// Clips is only filled by merging; it lists the audio of every merged member.
	Clips []AudioClip
}

// AudioClip is one audio attachment belonging to a (possibly merged) message.
type AudioClip struct {
	File     string
	Cost     float64
	Error    string
	Original MediaFile
}

// Time parses the display timestamp. ok is false for timestamps that are not
// valid calendar dates (the parser does not validate them).
func (m *Message) Time() (t time.Time, ok bool) {
	t, err := time.Parse(timestampLayout, strings.TrimSpace(m.Timestamp))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// HasAudio reports whether the message references audio in any form.
func (m *Message) HasAudio() bool {
	return m.AudioFile != "" || m.OriginalAudio != nil || len(m.Clips) > 0
}

// AudioClips returns the merged clips, or a single clip built from the
// message's own attachment fields.
func (m *Message) AudioClips() []AudioClip {
	if len(m.Clips) > 0 {
		return m.Clips
	}
	if m.AudioFile == "" && m.OriginalAudio == nil {
		return nil
	}
	return []AudioClip{m.clip()}
}

// Cost sums the transcription cost of all of the message's clips.
func (m *Message) Cost() float64 {
	var total float64
	for _, c := range m.AudioClips() {
		total += c.Cost
	}
	return total
}

func (m *Message) clip() AudioClip {
	return AudioClip{
		File:     m.AudioFile,
		Cost:     m.TranscriptionCost,
		Error:    m.TranscriptionError,
		Original: m.OriginalAudio,
	}
}
