// Package notify buffers transient user-facing messages until the UI shell
// drains them.
package notify

import (
	"sync"
	"time"

	"github.com/jurisprep/authd/internal/model"
)

// Level of a notification.
const (
	LevelSuccess = "success"
	LevelError   = "error"
)

// defaultCapacity bounds the buffer; the oldest messages are dropped first.
const defaultCapacity = 32

// Message is one transient notification.
type Message struct {
	Level string    `json:"level"`
	Text  string    `json:"text"`
	At    time.Time `json:"at"`
}

var _ model.Notifier = (*Queue)(nil)

// Queue is a bounded in-memory notification buffer.
type Queue struct {
	mu       sync.Mutex
	messages []Message
	capacity int
}

// NewQueue creates a queue with the default capacity.
func NewQueue() *Queue {
	return &Queue{capacity: defaultCapacity}
}

// Success enqueues a success notification.
func (q *Queue) Success(msg string) {
	q.push(Message{Level: LevelSuccess, Text: msg, At: time.Now()})
}

// Error enqueues an error notification.
func (q *Queue) Error(msg string) {
	q.push(Message{Level: LevelError, Text: msg, At: time.Now()})
}

// Drain returns all buffered messages and empties the queue.
func (q *Queue) Drain() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.messages
	q.messages = nil
	return out
}

func (q *Queue) push(m Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, m)
	if len(q.messages) > q.capacity {
		q.messages = q.messages[len(q.messages)-q.capacity:]
	}
}
