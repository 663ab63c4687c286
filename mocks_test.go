package identity

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockMailer implements Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	args := m.Called(ctx, to, subject, htmlBody)
	return args.Error(0)
}

// capturingMailer records every message it is handed.
type capturingMailer struct {
	mu       sync.Mutex
	messages []capturedMail
	fail     bool
}

type capturedMail struct {
	To      string
	Subject string
	Body    string
}

func (c *capturingMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return context.DeadlineExceeded
	}
	c.messages = append(c.messages, capturedMail{To: to, Subject: subject, Body: htmlBody})
	return nil
}

func (c *capturingMailer) sent() []capturedMail {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]capturedMail, len(c.messages))
	copy(out, c.messages)
	return out
}

// capturingSink records activity events for assertions.
type capturingSink struct {
	mu     sync.Mutex
	events []ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, event ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *capturingSink) byType(eventType ActivityEventType) []ActivityEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []ActivityEvent
	for _, e := range c.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}
