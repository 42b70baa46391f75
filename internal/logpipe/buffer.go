// internal/logpipe/buffer.go
package logpipe

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap/zapcore"
)

// BrowserTag prefixes log text that originated in the browser.
const BrowserTag = "[browser]"

// renderLayout is the timestamp layout used for buffered and polled lines.
const renderLayout = "2006-01-02 15:04:05.000"

// Origin says where a log event came from.
type Origin string

const (
	OriginBrowser     Origin = "BROWSER"
	OriginApplication Origin = "APPLICATION"
)

// Event is one buffered log record.
type Event struct {
	ID      ulid.ULID
	Time    time.Time
	Origin  Origin
	Level   zapcore.Level
	Logger  string
	Message string
}

// Render formats the event as a single display entry. Browser payloads may
// still contain newlines at this point.
func (e Event) Render() string {
	var b strings.Builder
	b.WriteString(e.Time.Format(renderLayout))
	b.WriteByte(' ')
	b.WriteString(e.Level.CapitalString())
	if e.Logger != "" {
		b.WriteString(" [")
		b.WriteString(e.Logger)
		b.WriteByte(']')
	}
	b.WriteByte(' ')
	b.WriteString(e.Message)
	return b.String()
}

type eventStore struct {
	mu     sync.Mutex
	events map[ulid.ULID]Event
}

// Buffer is a zapcore.Core that keeps every record it receives in memory
// until the next Drain. One Buffer is shared by all workers.
type Buffer struct {
	zapcore.LevelEnabler
	store *eventStore
}

// NewBuffer creates an empty buffer that accepts records at or above enab.
func NewBuffer(enab zapcore.LevelEnabler) *Buffer {
	return &Buffer{
		LevelEnabler: enab,
		store:        &eventStore{events: make(map[ulid.ULID]Event)},
	}
}

// With shares the underlying store; fields are not rendered.
func (b *Buffer) With([]zapcore.Field) zapcore.Core {
	return &Buffer{LevelEnabler: b.LevelEnabler, store: b.store}
}

func (b *Buffer) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if b.Enabled(ent.Level) {
		return ce.AddCore(ent, b)
	}
	return ce
}

func (b *Buffer) Write(ent zapcore.Entry, _ []zapcore.Field) error {
	origin := OriginApplication
	if strings.HasPrefix(ent.Message, BrowserTag) {
		origin = OriginBrowser
	}
	ev := Event{
		ID:      ulid.Make(),
		Time:    ent.Time,
		Origin:  origin,
		Level:   ent.Level,
		Logger:  ent.LoggerName,
		Message: ent.Message,
	}

	b.store.mu.Lock()
	b.store.events[ev.ID] = ev
	b.store.mu.Unlock()
	return nil
}

func (b *Buffer) Sync() error { return nil }

// Len is the number of events waiting for the next Drain.
func (b *Buffer) Len() int {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	return len(b.store.events)
}

// Drain takes a snapshot of the buffered events and clears the buffer in one
// critical section. Records written concurrently land either in this snapshot
// or in the next one, never in neither.
func (b *Buffer) Drain() []Event {
	b.store.mu.Lock()
	snapshot := b.store.events
	b.store.events = make(map[ulid.ULID]Event, len(snapshot))
	b.store.mu.Unlock()

	out := make([]Event, 0, len(snapshot))
	for _, ev := range snapshot {
		out = append(out, ev)
	}
	slices.SortFunc(out, func(a, c Event) int { return a.ID.Compare(c.ID) })
	return out
}
