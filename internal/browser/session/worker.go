// internal/browser/session/worker.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/xkilldash9x/steadyhand/internal/browser"
	"github.com/xkilldash9x/steadyhand/internal/browser/capabilities"
	"github.com/xkilldash9x/steadyhand/internal/observability"
)

// Worker owns at most one Session and one DriverService at a time. It is
// the per-scenario context object: scenarios running in parallel each get
// their own Worker and never see each other's browser.
type Worker struct {
	id       string
	launcher Launcher
	env      capabilities.Environment
	router   ConsoleRouter
	logger   *zap.Logger
	onClose  func()

	mu      sync.Mutex
	session *Session
	service DriverService
	mode    browser.Mode
}

// ID identifies the worker in logs.
func (w *Worker) ID() string { return w.id }

// Acquire returns the worker's session, starting one if none is bound. An
// empty remoteURL launches a local browser.
func (w *Worker) Acquire(ctx context.Context, kind browser.Kind, remoteURL string) (*Session, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.session != nil {
		return w.session, nil
	}

	mode := browser.Local
	if remoteURL != "" {
		mode = browser.Remote
	}

	ctx, span := observability.StartSpan(ctx, "session.acquire",
		attribute.String("browser.kind", kind.String()),
		attribute.String("browser.mode", mode.String()),
	)
	defer span.End()

	sess, err := w.acquire(ctx, kind, mode, remoteURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.SessionAcquireFailures.WithLabelValues(kind.String(), failureReason(err)).Inc()
		return nil, err
	}
	observability.SessionsAcquired.WithLabelValues(kind.String(), mode.String()).Inc()
	return sess, nil
}

func (w *Worker) acquire(ctx context.Context, kind browser.Kind, mode browser.Mode, remoteURL string) (*Session, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("cannot acquire session: %w: %q", browser.ErrUnsupportedBrowserKind, string(kind))
	}
	if mode == browser.Remote {
		if _, err := validateRemoteURL(remoteURL); err != nil {
			return nil, fmt.Errorf("cannot acquire session: %w", err)
		}
	}

	caps, err := capabilities.Build(kind, mode, w.env)
	if err != nil {
		return nil, fmt.Errorf("cannot acquire session: %w", err)
	}

	var (
		drv browser.Driver
		svc DriverService
	)
	if mode == browser.Remote {
		drv, err = w.launcher.Connect(ctx, remoteURL, caps)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w: %w", remoteURL, browser.ErrRemoteConnection, err)
		}
	} else {
		drv, svc, err = w.launchLocal(ctx, kind, caps)
		if err != nil {
			return nil, err
		}
	}

	sess := &Session{
		ID:        uuid.New().String(),
		Kind:      kind,
		Mode:      mode,
		Caps:      caps,
		Service:   svc,
		Driver:    drv,
		CreatedAt: time.Now(),
	}

	drv.SetTimeouts(DefaultTimeouts)
	w.logWindowSize(ctx, sess)
	w.subscribe(sess)

	w.session = sess
	w.mode = mode
	w.logger.Info("Browser session acquired.",
		zap.String("session_id", sess.ID),
		zap.String("kind", kind.String()),
		zap.Stringer("mode", mode),
		zap.String("engine", drv.EngineName()),
		zap.Bool("service", sess.Service != nil))
	return sess, nil
}

// launchLocal goes through the driver service when it can be started and
// falls back to a direct launch otherwise. The returned service is nil
// unless the browser was launched through it; a service whose launch failed
// stays with the worker until ReleaseService.
func (w *Worker) launchLocal(ctx context.Context, kind browser.Kind, caps capabilities.Set) (browser.Driver, DriverService, error) {
	if w.service == nil || !w.service.Running() {
		svc, err := w.launcher.StartService(ctx, kind, caps)
		switch {
		case err != nil:
			w.logger.Warn("Driver service could not be started, launching directly.",
				zap.String("kind", kind.String()), zap.Error(err))
			w.service = nil
		default:
			w.service = svc
		}
	}

	if w.service != nil && w.service.Running() {
		drv, err := w.launcher.LaunchWithService(ctx, w.service, caps)
		if err == nil {
			return drv, w.service, nil
		}
		w.logger.Warn("Launch through driver service failed, launching directly.",
			zap.String("kind", kind.String()), zap.Error(err))
	}

	observability.ServiceFallbacks.WithLabelValues(kind.String()).Inc()
	drv, err := w.launcher.LaunchDirect(ctx, caps)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to launch %s: %w: %w", kind, browser.ErrLaunchFailure, err)
	}
	return drv, nil, nil
}

func (w *Worker) logWindowSize(ctx context.Context, sess *Session) {
	width, height, err := sess.Driver.WindowSize(ctx)
	if err != nil {
		w.logger.Debug("Could not read window size.", zap.Error(err))
		return
	}
	w.logger.Info("Browser window size.", zap.Int("width", width), zap.Int("height", height))
}

func (w *Worker) subscribe(sess *Session) {
	if sess.Driver.ConsolePolling() || w.router == nil {
		return
	}
	sub, err := sess.Driver.SubscribeConsole(w.router.Route)
	if err != nil {
		w.logger.Debug("Console subscription unavailable.", zap.String("kind", sess.Kind.String()), zap.Error(err))
		return
	}
	sess.setSubscription(sub)
}

// Current returns the bound session, if any.
func (w *Worker) Current() (*Session, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session, w.session != nil
}

// Release closes the console subscription and quits the browser. Failures
// are logged and the binding is cleared regardless.
func (w *Worker) Release(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.release(ctx)
}

func (w *Worker) release(ctx context.Context) {
	sess := w.session
	if sess == nil {
		return
	}
	w.session = nil

	if sub := sess.takeSubscription(); sub != nil {
		if err := sub.Close(); err != nil {
			observability.TeardownErrors.WithLabelValues("subscription").Inc()
			w.logger.Warn("Failed to close console subscription.", zap.Error(err))
		}
	}
	if err := sess.Driver.Quit(ctx); err != nil {
		observability.TeardownErrors.WithLabelValues("quit").Inc()
		w.logger.Warn("Failed to quit browser.", zap.String("session_id", sess.ID), zap.Error(err))
		return
	}
	w.logger.Debug("Browser session released.", zap.String("session_id", sess.ID))
}

// ReleaseService stops the driver service if one is running.
func (w *Worker) ReleaseService() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.releaseService()
}

func (w *Worker) releaseService() {
	svc := w.service
	w.service = nil
	if svc == nil || !svc.Running() {
		return
	}
	if err := svc.Stop(); err != nil {
		observability.TeardownErrors.WithLabelValues("service").Inc()
		w.logger.Warn("Failed to stop driver service.", zap.Error(err))
		return
	}
	w.logger.Info("Driver service stopped.")
}

// ReleaseAll releases the session and then the service. It is safe to call
// any number of times.
func (w *Worker) ReleaseAll(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.release(ctx)
	w.releaseService()
}

// Close releases everything and detaches the worker from its manager.
func (w *Worker) Close(ctx context.Context) {
	w.ReleaseAll(ctx)
	if w.onClose != nil {
		w.onClose()
	}
}

// DownloadDirectory is where files downloaded by the browser show up for the
// test process, for the worker's current (or most recent) mode.
func (w *Worker) DownloadDirectory() string {
	w.mu.Lock()
	mode := w.mode
	if w.session != nil {
		mode = w.session.Mode
	}
	w.mu.Unlock()
	return capabilities.DownloadDirectory(mode, w.env)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, browser.ErrInvalidRemoteURL):
		return "invalid_remote_url"
	case errors.Is(err, browser.ErrUnsupportedBrowserKind):
		return "unsupported_kind"
	case errors.Is(err, browser.ErrRemoteConnection):
		return "remote_connection"
	case errors.Is(err, browser.ErrLaunchFailure):
		return "launch_failure"
	}
	return "other"
}
