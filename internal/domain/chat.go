package domain

import "time"

type Chat struct {
	Messages []Message
}

// Filter returns a new Chat containing only messages within the given time range.
// nil values for from/to mean no lower/upper bound. Messages whose timestamp
// is not a valid date are kept.
func (c *Chat) Filter(from, to *time.Time) *Chat {
	within := Within(from, to)
	filtered := &Chat{}
	for _, msg := range c.Messages {
		if within(msg) {
			filtered.Messages = append(filtered.Messages, msg)
		}
	}
	return filtered
}

// Within returns the predicate used by Filter.
func Within(from, to *time.Time) func(Message) bool {
	return func(msg Message) bool {
		ts, ok := msg.Time()
		if !ok {
			return true
		}
		if from != nil && ts.Before(*from) {
			return false
		}
		return to == nil || !ts.After(*to)
	}
}

// Document is the final, render-ready view of a processed chat.
type Document struct {
	Title       string
	Messages    []Message
	TotalCost   float64
	GeneratedAt time.Time
}
