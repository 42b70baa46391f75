// internal/report/sink.go
package report

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Sink accepts named attachments for a scenario's report.
type Sink interface {
	Attach(ctx context.Context, scenario, name, contentType string, body []byte) error
}

// Attachment is one stored attachment.
type Attachment struct {
	Scenario    string    `json:"scenario"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Body        []byte    `json:"-"`
	Path        string    `json:"path,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// MultiSink fans an attachment out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Attach(ctx context.Context, scenario, name, contentType string, body []byte) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Attach(ctx, scenario, name, contentType, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemorySink keeps attachments in memory.
type MemorySink struct {
	mu          sync.Mutex
	attachments []Attachment
}

func (m *MemorySink) Attach(_ context.Context, scenario, name, contentType string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attachments = append(m.attachments, Attachment{
		Scenario:    scenario,
		Name:        name,
		ContentType: contentType,
		Body:        append([]byte(nil), body...),
		CreatedAt:   time.Now(),
	})
	return nil
}

// Attachments returns a copy of everything attached so far.
func (m *MemorySink) Attachments() []Attachment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Attachment(nil), m.attachments...)
}

// Named returns the attachments with the given name, oldest first.
func (m *MemorySink) Named(name string) []Attachment {
	var out []Attachment
	for _, a := range m.Attachments() {
		if a.Name == name {
			out = append(out, a)
		}
	}
	return out
}
