package app

import (
	"sync"

	"github.com/olakz-ops/export-chat-converter/internal/domain"
)

// Event names a session notification.
type Event string

const (
	EventChatParsed    Event = "chat:parsed"    // payload: []domain.Message
	EventChatProcessed Event = "chat:processed" // payload: []domain.Message
	EventProgress      Event = "progress"       // payload: Progress
	EventCostUpdated   Event = "cost:updated"   // payload: float64 running total
	EventStateReset    Event = "state:reset"    // payload: nil
)

// Progress is the payload of EventProgress.
type Progress struct {
	Completed int
	Total     int
}

// Handler receives the payload of an event.
type Handler func(payload any)

type subscription struct {
	id int
	fn Handler
}

// Session holds the state of one conversion and notifies subscribers of
// changes. It is safe for concurrent use. Handlers run synchronously on the
// goroutine that caused the event and must not call back into the Session.
type Session struct {
	mu        sync.Mutex
	nextID    int
	listeners map[Event][]subscription

	messages  []domain.Message
	totalCost float64
}

func NewSession() *Session {
	return &Session{listeners: make(map[Event][]subscription)}
}

// Subscribe registers fn for event and returns a function that removes it.
func (s *Session) Subscribe(event Event, fn Handler) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.listeners[event] = append(s.listeners[event], subscription{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.listeners[event]
		for i, sub := range subs {
			if sub.id == id {
				s.listeners[event] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// emit calls the handlers registered when it starts, outside the lock.
func (s *Session) emit(event Event, payload any) {
	s.mu.Lock()
	subs := append([]subscription(nil), s.listeners[event]...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(payload)
	}
}

// SetParsed announces freshly parsed messages.
func (s *Session) SetParsed(msgs []domain.Message) {
	s.emit(EventChatParsed, msgs)
}

// SetChat stores the processed messages.
func (s *Session) SetChat(msgs []domain.Message) {
	s.mu.Lock()
	s.messages = msgs
	s.mu.Unlock()
	s.emit(EventChatProcessed, msgs)
}

// Chat returns the processed messages, nil before SetChat.
func (s *Session) Chat() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages
}

// ReportProgress announces a finished transcription.
func (s *Session) ReportProgress(completed, total int) {
	s.emit(EventProgress, Progress{Completed: completed, Total: total})
}

// AddCost adds to the running cost and announces the new total.
func (s *Session) AddCost(cost float64) {
	s.mu.Lock()
	s.totalCost += cost
	total := s.totalCost
	s.mu.Unlock()
	s.emit(EventCostUpdated, total)
}

// TotalCost returns the running cost.
func (s *Session) TotalCost() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalCost
}

// Reset clears the session state, emits EventStateReset, and then drops
// every subscriber.
func (s *Session) Reset() {
	s.mu.Lock()
	s.messages = nil
	s.totalCost = 0
	s.mu.Unlock()

	s.emit(EventStateReset, nil)

	s.mu.Lock()
	s.listeners = make(map[Event][]subscription)
	s.mu.Unlock()
}
