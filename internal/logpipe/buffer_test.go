package logpipe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestBuffer_OriginAndLevel(t *testing.T) {
	buf := NewBuffer(zapcore.InfoLevel)
	logger := zap.New(buf).Named("harness")

	logger.Debug("dropped below the buffer level")
	logger.Info("navigated")
	logger.Warn(BrowserTag + " deprecated API")

	events := buf.Drain()
	require.Len(t, events, 2)
	assert.Equal(t, OriginApplication, events[0].Origin)
	assert.Equal(t, "harness", events[0].Logger)
	assert.Equal(t, OriginBrowser, events[1].Origin)
	assert.Equal(t, zapcore.WarnLevel, events[1].Level)
	assert.Zero(t, buf.Len(), "Drain must leave the buffer empty")
}

func TestBuffer_QuotedBrowserTextStaysApplication(t *testing.T) {
	buf := NewBuffer(zapcore.InfoLevel)
	zap.New(buf).Info("step failed after console said " + BrowserTag + " TypeError")

	events := buf.Drain()
	require.Len(t, events, 1)
	assert.Equal(t, OriginApplication, events[0].Origin)
}

func TestEvent_Render(t *testing.T) {
	ev := Event{
		Time:    time.Date(2026, 3, 4, 5, 6, 7, 89_000_000, time.UTC),
		Level:   zapcore.WarnLevel,
		Logger:  "browser",
		Message: "hello",
	}
	assert.Equal(t, "2026-03-04 05:06:07.089 WARN [browser] hello", ev.Render())

	ev.Logger = ""
	assert.Equal(t, "2026-03-04 05:06:07.089 WARN hello", ev.Render())
}

func TestBuffer_WithSharesStore(t *testing.T) {
	buf := NewBuffer(zapcore.DebugLevel)
	logger := zap.New(buf).With(zap.String("worker", "1"))
	logger.Info("from child")
	assert.Equal(t, 1, buf.Len())
}

func TestBuffer_ConcurrentDrainLosesNothing(t *testing.T) {
	defer goleak.VerifyNone(t)

	buf := NewBuffer(zapcore.DebugLevel)
	logger := zap.New(buf)

	const writers, perWriter = 8, 250
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				logger.Info(fmt.Sprintf("w%d-%d", w, i))
			}
		}(w)
	}

	seen := make(map[string]struct{})
	stop := make(chan struct{})
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for {
			select {
			case <-stop:
				return
			default:
				for _, ev := range buf.Drain() {
					seen[ev.Message] = struct{}{}
				}
			}
		}
	}()

	wg.Wait()
	close(stop)
	<-drained
	for _, ev := range buf.Drain() {
		seen[ev.Message] = struct{}{}
	}

	assert.Len(t, seen, writers*perWriter, "Every record must land in exactly one snapshot")
}

func TestBuffer_DrainIsOrdered(t *testing.T) {
	buf := NewBuffer(zapcore.DebugLevel)
	logger := zap.New(buf)
	for i := 0; i < 50; i++ {
		logger.Info(fmt.Sprintf("%03d", i))
	}
	events := buf.Drain()
	require.Len(t, events, 50)
	for i := 1; i < len(events); i++ {
		assert.Negative(t, events[i-1].ID.Compare(events[i].ID))
	}
}
