package mq

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Producer publishes messages to a topic. Grading events are fire-and-forget,
// so no consumer side is defined here.
type Producer interface {
	Publish(ctx context.Context, topic string, message *Message) error
	Close() error
}

// Message represents a message in the queue
type Message struct {
	ID string `json:"id"`

	// Key routes the message to a partition; messages with the same key keep their order.
	Key string `json:"key"`

	Body      []byte            `json:"body"`
	Headers   map[string]string `json:"headers"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewMessage creates a message with a fresh id and the current timestamp.
func NewMessage(key string, body []byte) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Key:       key,
		Body:      body,
		Headers:   make(map[string]string),
		Timestamp: time.Now(),
	}
}

// SetHeader sets a header value
func (m *Message) SetHeader(key, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	m.Headers[key] = value
}
