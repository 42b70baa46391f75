// internal/actions/engine.go
package actions

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xkilldash9x/steadyhand/internal/browser"
	"github.com/xkilldash9x/steadyhand/internal/observability"
)

const (
	// DefaultPollInterval is how often a postcondition is re-checked.
	DefaultPollInterval = 100 * time.Millisecond
	// DragPause is held between moving onto the drop target and releasing.
	DragPause = 150 * time.Millisecond
)

// Step is one way of performing an interaction.
type Step func(ctx context.Context) error

// Strategy is a named Step, so logs say which escalation ran.
type Strategy struct {
	Name string
	Do   Step
}

// Attempt describes a single logical interaction: what to do first, what to
// try next, and how to tell that it worked.
type Attempt struct {
	Name      string
	Targets   []browser.Element
	Primary   Strategy
	Fallbacks []Strategy
	// Until is the postcondition. A nil Until means the primary strategy is
	// run once and trusted.
	Until   Condition
	Timeout time.Duration
}

// Engine performs attempts against one driver.
type Engine struct {
	drv       browser.Driver
	logger    *zap.Logger
	interval  time.Duration
	dragPause time.Duration
	clipboard Clipboard
	headless  bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithDragPause overrides DragPause.
func WithDragPause(d time.Duration) Option {
	return func(e *Engine) { e.dragPause = d }
}

// WithClipboard replaces the system clipboard used by Paste.
func WithClipboard(c Clipboard) Option {
	return func(e *Engine) { e.clipboard = c }
}

// WithHeadless tells Paste that no system clipboard reaches the browser.
func WithHeadless(headless bool) Option {
	return func(e *Engine) { e.headless = headless }
}

// New creates an engine for drv.
func New(drv browser.Driver, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		drv:       drv,
		logger:    logger.Named("actions"),
		interval:  DefaultPollInterval,
		dragPause: DragPause,
		clipboard: SystemClipboard{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Driver is the driver the engine acts on.
func (e *Engine) Driver() browser.Driver { return e.drv }

// Run executes a. It scrolls every target into view, runs the primary
// strategy and polls the postcondition, then walks the fallbacks in order,
// polling after each with a fresh Timeout. Strategy errors never escape; the
// result only says whether the postcondition was observed.
func (e *Engine) Run(ctx context.Context, a Attempt) bool {
	ctx, span := observability.StartSpan(ctx, "actions."+a.Name,
		attribute.Int("actions.fallbacks", len(a.Fallbacks)),
		attribute.Int64("actions.timeout_ms", a.Timeout.Milliseconds()),
	)
	defer span.End()
	log := e.logger.With(zap.String("action", a.Name))

	for _, el := range a.Targets {
		e.scrollIntoView(ctx, log, el)
	}

	e.runStrategy(ctx, log, a.Primary)
	if a.Until == nil {
		e.record(span, a.Name, "primary")
		return true
	}
	if e.poll(ctx, a.Until, a.Timeout) {
		e.record(span, a.Name, "primary")
		return true
	}

	for _, fb := range a.Fallbacks {
		log.Debug("Postcondition not met, escalating.", zap.String("strategy", fb.Name))
		e.runStrategy(ctx, log, fb)
		if e.poll(ctx, a.Until, a.Timeout) {
			e.record(span, a.Name, "fallback")
			return true
		}
	}

	log.Warn("Postcondition not met after all fallbacks.", zap.Duration("timeout", a.Timeout))
	e.record(span, a.Name, "unmet")
	return false
}

func (e *Engine) record(span trace.Span, name, outcome string) {
	span.SetAttributes(attribute.String("actions.outcome", outcome))
	observability.ActionOutcomes.WithLabelValues(name, outcome).Inc()
}

func (e *Engine) runStrategy(ctx context.Context, log *zap.Logger, s Strategy) {
	if s.Do == nil {
		return
	}
	if err := s.Do(ctx); err != nil {
		log.Debug("Strategy failed.", zap.String("strategy", s.Name), zap.Error(err))
	}
}

func (e *Engine) scrollIntoView(ctx context.Context, log *zap.Logger, el browser.Element) {
	if el == nil {
		return
	}
	if err := e.drv.ExecuteScript(ctx, scriptScrollIntoView, nil, el); err != nil {
		log.Debug("Scroll into view failed.", zap.String("target", el.Description()), zap.Error(err))
	}
}

// poll evaluates until once per interval until it holds or timeout elapses.
// The first check is immediate and the last one happens at the deadline.
func (e *Engine) poll(ctx context.Context, until Condition, timeout time.Duration) bool {
	if until(ctx, e.drv) {
		return true
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return until(ctx, e.drv)
		case <-ticker.C:
			if until(ctx, e.drv) {
				return true
			}
		}
	}
}
