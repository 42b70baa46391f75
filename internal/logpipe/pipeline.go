// internal/logpipe/pipeline.go
package logpipe

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/steadyhand/internal/browser"
	"github.com/xkilldash9x/steadyhand/internal/observability"
	"github.com/xkilldash9x/steadyhand/internal/report"
)

// AttachmentName is the report attachment that carries the merged log.
const AttachmentName = "log"

// ConsoleSource is the part of a session the pipeline reads logs from.
type ConsoleSource interface {
	browser.Console
	Kind() browser.Kind
	EngineName() string
}

// Pipeline merges browser and application logs into one report attachment.
type Pipeline struct {
	logger    *zap.Logger
	browser   *zap.Logger
	buffer    *Buffer
	sink      report.Sink
	allowList []string
}

// New creates a pipeline. logger must be teed into buffer for routed and
// polled browser records to reach the report; allowList names the engines
// whose console buffer may be polled through a remote endpoint.
func New(logger *zap.Logger, buffer *Buffer, sink report.Sink, allowList []string) *Pipeline {
	allow := make([]string, 0, len(allowList))
	for _, a := range allowList {
		allow = append(allow, strings.ToLower(strings.TrimSpace(a)))
	}
	return &Pipeline{
		logger:    logger.Named("logpipe"),
		browser:   logger.Named("browser"),
		buffer:    buffer,
		sink:      sink,
		allowList: allow,
	}
}

// Buffer exposes the correlation buffer the pipeline drains.
func (p *Pipeline) Buffer() *Buffer { return p.buffer }

// Route handles one record from a live console subscription.
func (p *Pipeline) Route(entry browser.ConsoleEntry) {
	p.browser.Log(zapLevel(entry.Level), BrowserTag+" "+Normalize(entry.Text))
}

func zapLevel(l browser.Level) zapcore.Level {
	switch l {
	case browser.LevelError:
		return zapcore.ErrorLevel
	case browser.LevelWarn:
		return zapcore.WarnLevel
	case browser.LevelDebug:
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

// Pollable reports whether the console buffer of src may be read in mode.
func (p *Pipeline) Pollable(src ConsoleSource, mode browser.Mode) bool {
	if !src.ConsolePolling() {
		return false
	}
	if mode == browser.Remote {
		return slices.Contains(p.allowList, strings.ToLower(src.EngineName()))
	}
	return true
}

// Poll drains the browser console buffer, logs it as one info block and
// returns the formatted lines. Engines that cannot be polled yield nothing.
func (p *Pipeline) Poll(ctx context.Context, src ConsoleSource, mode browser.Mode) []string {
	if !p.Pollable(src, mode) {
		p.logger.Debug("Console polling unavailable for this session.",
			zap.String("kind", src.Kind().String()),
			zap.String("engine", src.EngineName()),
			zap.Stringer("mode", mode))
		return nil
	}

	entries, err := src.ConsoleLogs(ctx)
	if err != nil {
		p.logger.Warn("Could not read browser console logs.", zap.Error(err))
		return nil
	}
	if len(entries) == 0 {
		return nil
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s %s %s %s",
			e.Timestamp.Format(renderLayout), BrowserTag, e.Level, Normalize(e.Text)))
	}
	p.browser.Info(strings.Join(lines, "\n"))
	return lines
}

// Collect drains the buffer and returns the display lines: browser entries
// are split one line per message, blanks and duplicates are dropped and the
// result is sorted.
func (p *Pipeline) Collect() []string {
	events := p.buffer.Drain()

	var lines []string
	for _, ev := range events {
		text := ev.Render()
		if ev.Origin != OriginBrowser {
			lines = append(lines, text)
			continue
		}
		text = strings.ReplaceAll(text, "\r", "")
		lines = append(lines, strings.Split(text, "\n")...)
	}

	lines = slices.DeleteFunc(lines, func(s string) bool { return strings.TrimSpace(s) == "" })
	slices.Sort(lines)
	return slices.Compact(lines)
}

// Flush attaches the merged log for scenario and returns what was attached.
// The buffer is empty afterwards, so an immediate second Flush attaches "".
func (p *Pipeline) Flush(ctx context.Context, scenario string) (string, error) {
	lines := p.Collect()
	text := strings.Join(lines, "\n")
	observability.LogLinesFlushed.Add(float64(len(lines)))

	if p.sink == nil {
		return text, nil
	}
	if err := p.sink.Attach(ctx, scenario, AttachmentName, "text/plain", []byte(text)); err != nil {
		return text, fmt.Errorf("failed to attach merged log: %w", err)
	}
	return text, nil
}
