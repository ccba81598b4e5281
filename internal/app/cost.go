package app

import "math"

// Whisper pricing estimate. WhatsApp voice notes are Opus at roughly 16-32
// kbps, so duration is derived from file size at an assumed 24 kbps.
const (
	CostPerMinute      = 0.006
	EstimatedBitrate   = 24000 // bits per second
	MinTranscribedCost = 0.0001
)

// EstimateCost returns the estimated transcription cost in USD for an audio
// file of the given size. It is never below MinTranscribedCost.
func EstimateCost(sizeBytes int64) float64 {
	bytesPerSecond := float64(EstimatedBitrate) / 8
	minutes := float64(sizeBytes) / bytesPerSecond / 60
	return math.Max(MinTranscribedCost, minutes*CostPerMinute)
}
