package app

import "github.com/olakz-ops/export-chat-converter/internal/domain"

// Merge combines runs of consecutive messages from the same sender. Texts are
// joined by a newline, the group takes the timestamp of its last member, and
// the audio of every member is kept as clips in order.
func Merge(msgs []domain.Message) []domain.Message {
	if len(msgs) == 0 {
		return nil
	}

	merged := make([]domain.Message, 0, len(msgs))
	group := startGroup(msgs[0])
	for _, msg := range msgs[1:] {
		if msg.Sender != group.Sender {
			merged = append(merged, group)
			group = startGroup(msg)
			continue
		}
		group.Text += "\n" + msg.Text
		group.Timestamp = msg.Timestamp
		group.Clips = append(group.Clips, msg.AudioClips()...)
	}
	return append(merged, group)
}

// startGroup copies msg, moving its audio fields into Clips so a group
// always describes its audio the same way.
func startGroup(msg domain.Message) domain.Message {
	clips := msg.AudioClips()
	if clips == nil {
		return msg
	}
	group := msg
	group.Clips = append([]domain.AudioClip(nil), clips...)
	group.AudioFile = ""
	group.OriginalAudio = nil
	group.TranscriptionCost = 0
	group.TranscriptionError = ""
	return group
}
