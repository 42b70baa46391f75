package actions

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/steadyhand/internal/browser"
	"github.com/xkilldash9x/steadyhand/internal/mocks"
)

const (
	testTimeout  = 200 * time.Millisecond
	testInterval = 10 * time.Millisecond
)

func newTestEngine(t *testing.T, drv browser.Driver, opts ...Option) (*Engine, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	opts = append([]Option{WithPollInterval(testInterval), WithDragPause(0)}, opts...)
	return New(drv, zap.New(core), opts...), logs
}

func flagCondition(flag *atomic.Bool) Condition {
	return func(context.Context, browser.Driver) bool { return flag.Load() }
}

func TestRun_PostconditionAlreadyHolds(t *testing.T) {
	drv := mocks.NewFakeDriver(browser.Chrome)
	el := drv.Element("#menu")
	e, logs := newTestEngine(t, drv)

	var fallbackRan atomic.Bool
	ok := e.Run(context.Background(), Attempt{
		Name:      "probe",
		Targets:   []browser.Element{el},
		Primary:   Strategy{Name: "primary", Do: func(context.Context) error { return nil }},
		Fallbacks: []Strategy{{Name: "fallback", Do: func(context.Context) error { fallbackRan.Store(true); return nil }}},
		Until:     Always(),
		Timeout:   testTimeout,
	})

	assert.True(t, ok)
	assert.False(t, fallbackRan.Load(), "No fallback may run when the postcondition already holds")
	assert.Equal(t, []string{scriptScrollIntoView}, drv.ScriptLog())
	assert.Zero(t, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestRun_FallbackSatisfiesWithinBudget(t *testing.T) {
	drv := mocks.NewFakeDriver(browser.Chrome)
	e, logs := newTestEngine(t, drv)

	var done atomic.Bool
	start := time.Now()
	ok := e.Run(context.Background(), Attempt{
		Name:      "probe",
		Primary:   Strategy{Name: "primary", Do: func(context.Context) error { return errors.New("element not interactable") }},
		Fallbacks: []Strategy{{Name: "fallback", Do: func(context.Context) error { done.Store(true); return nil }}},
		Until:     flagCondition(&done),
		Timeout:   testTimeout,
	})
	elapsed := time.Since(start)

	assert.True(t, ok)
	assert.Less(t, elapsed, 2*testTimeout)
	assert.Equal(t, 1, logs.FilterMessage("Strategy failed.").Len(), "Primary errors are logged at debug and swallowed")
	assert.Zero(t, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestRun_UnmetAfterAllFallbacks(t *testing.T) {
	drv := mocks.NewFakeDriver(browser.Chrome)
	e, logs := newTestEngine(t, drv)

	var order []string
	step := func(name string) Strategy {
		return Strategy{Name: name, Do: func(context.Context) error {
			order = append(order, name)
			return errors.New(name + " failed")
		}}
	}

	ok := e.Run(context.Background(), Attempt{
		Name:      "probe",
		Primary:   step("primary"),
		Fallbacks: []Strategy{step("first"), step("second")},
		Until:     func(context.Context, browser.Driver) bool { return false },
		Timeout:   30 * time.Millisecond,
	})

	assert.False(t, ok)
	assert.Equal(t, []string{"primary", "first", "second"}, order)
	warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "Postcondition not met after all fallbacks.", warnings[0].Message)
}

func TestRun_NoPostcondition(t *testing.T) {
	drv := mocks.NewFakeDriver(browser.Chrome)
	e, _ := newTestEngine(t, drv)

	calls := 0
	ok := e.Run(context.Background(), Attempt{
		Name:      "fire_and_forget",
		Primary:   Strategy{Name: "primary", Do: func(context.Context) error { calls++; return nil }},
		Fallbacks: []Strategy{{Name: "never", Do: func(context.Context) error { calls += 10; return nil }}},
	})
	assert.True(t, ok)
	assert.Equal(t, 1, calls)
}

func TestRun_ScrollErrorsAreSwallowed(t *testing.T) {
	drv := mocks.NewFakeDriver(browser.Chrome)
	drv.OnScript = func(string, []any) (any, error) { return nil, errors.New("detached") }
	e, logs := newTestEngine(t, drv)

	ok := e.Run(context.Background(), Attempt{
		Name:    "probe",
		Targets: []browser.Element{drv.Element("a"), nil, drv.Element("b")},
		Until:   Always(),
		Timeout: testTimeout,
	})
	assert.True(t, ok)
	assert.Equal(t, 2, logs.FilterMessage("Scroll into view failed.").Len())
}

func TestPoll(t *testing.T) {
	drv := mocks.NewFakeDriver(browser.Chrome)
	e, _ := newTestEngine(t, drv)

	t.Run("first check is immediate", func(t *testing.T) {
		start := time.Now()
		assert.True(t, e.poll(context.Background(), Always(), time.Second))
		assert.Less(t, time.Since(start), testInterval)
	})

	t.Run("checks repeatedly until the condition holds", func(t *testing.T) {
		var n atomic.Int32
		cond := func(context.Context, browser.Driver) bool { return n.Add(1) >= 4 }
		assert.True(t, e.poll(context.Background(), cond, time.Second))
		assert.EqualValues(t, 4, n.Load())
	})

	t.Run("gives up at the timeout", func(t *testing.T) {
		start := time.Now()
		assert.False(t, e.poll(context.Background(), func(context.Context, browser.Driver) bool { return false }, 50*time.Millisecond))
		elapsed := time.Since(start)
		assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond, "Polling uses the whole budget")
		assert.Less(t, elapsed, 200*time.Millisecond)
	})

	t.Run("stops when the caller cancels", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.False(t, e.poll(ctx, func(context.Context, browser.Driver) bool { return false }, time.Second))
	})
}

// trueAfter holds once d has passed since it was created.
func trueAfter(d time.Duration) (Condition, *atomic.Int32) {
	start := time.Now()
	var checks atomic.Int32
	return func(context.Context, browser.Driver) bool {
		checks.Add(1)
		return time.Since(start) >= d
	}, &checks
}

func TestPoll_ChecksAgainAtTheDeadline(t *testing.T) {
	drv := mocks.NewFakeDriver(browser.Chrome)
	e, _ := newTestEngine(t, drv, WithPollInterval(100*time.Millisecond))

	t.Run("condition holds between the last tick and the timeout", func(t *testing.T) {
		cond, _ := trueAfter(220 * time.Millisecond)
		start := time.Now()
		assert.True(t, e.poll(context.Background(), cond, 290*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 220*time.Millisecond)
	})

	t.Run("timeout shorter than the interval", func(t *testing.T) {
		cond, checks := trueAfter(30 * time.Millisecond)
		start := time.Now()
		assert.True(t, e.poll(context.Background(), cond, 80*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
		assert.EqualValues(t, 2, checks.Load(), "One immediate check and one at the deadline")
	})
}

func TestRun_LateSuccessSkipsFallbacks(t *testing.T) {
	drv := mocks.NewFakeDriver(browser.Chrome)
	e, logs := newTestEngine(t, drv, WithPollInterval(100*time.Millisecond))
	cond, _ := trueAfter(60 * time.Millisecond)

	var fallbackRan atomic.Bool
	ok := e.Run(context.Background(), Attempt{
		Name:    "click",
		Primary: Strategy{Name: "native", Do: func(context.Context) error { return nil }},
		Fallbacks: []Strategy{{Name: "synthetic", Do: func(context.Context) error {
			fallbackRan.Store(true)
			return nil
		}}},
		Until:   cond,
		Timeout: 80 * time.Millisecond,
	})
	assert.True(t, ok)
	assert.False(t, fallbackRan.Load())
	assert.Zero(t, logs.FilterMessage("Postcondition not met, escalating.").Len())
}
