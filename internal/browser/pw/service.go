// internal/browser/pw/service.go
package pw

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapio"
)

var (
	errNoDriverDir    = errors.New("no driver directory configured")
	errServiceStopped = errors.New("driver service is not running")
)

// Service is the local Playwright driver process. It talks to this process
// over stdio and binds no port.
type Service struct {
	pw     *playwright.Playwright
	logger *zap.Logger
	out    *zapio.Writer

	mu      sync.Mutex
	stopped bool
}

// await runs a blocking Playwright call so that ctx can abandon it. The call
// itself keeps running until Playwright returns.
func await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func driverOutput(logger *zap.Logger) *zapio.Writer {
	return &zapio.Writer{Log: logger, Level: zapcore.DebugLevel}
}

// StartService runs the Playwright driver installed under driverDir.
// Browsers are not downloaded; the installed channels are used instead.
func StartService(ctx context.Context, driverDir string, logger *zap.Logger) (*Service, error) {
	if driverDir == "" {
		return nil, errNoDriverDir
	}
	if _, err := os.Stat(driverDir); err != nil {
		return nil, fmt.Errorf("driver directory %s: %w", driverDir, err)
	}
	logger = logger.Named("driver_service")
	out := driverOutput(logger)

	pw, err := await(ctx, func() (*playwright.Playwright, error) {
		return playwright.Run(&playwright.RunOptions{
			DriverDirectory:     driverDir,
			SkipInstallBrowsers: true,
			Stdout:              out,
			Stderr:              out,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start driver service: %w", err)
	}
	logger.Debug("Driver service started.", zap.String("dir", driverDir))
	return &Service{pw: pw, logger: logger, out: out}, nil
}

func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped && s.pw != nil
}

// Stop shuts the driver process down. Later calls are no-ops.
func (s *Service) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	defer s.out.Close()
	if err := s.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop driver service: %w", err)
	}
	return nil
}

func (s *Service) instance() (*playwright.Playwright, error) {
	if !s.Running() {
		return nil, errServiceStopped
	}
	return s.pw, nil
}

// privateDriverDir is where a throwaway driver is installed for direct
// Firefox launches.
func privateDriverDir() string {
	return filepath.Join(os.TempDir(), "steadyhand-playwright")
}

// runPrivate installs (when asked) and starts a driver owned by a single
// browser. The caller stops it when that browser quits.
func runPrivate(ctx context.Context, install bool, logger *zap.Logger) (*playwright.Playwright, error) {
	out := driverOutput(logger)
	opts := &playwright.RunOptions{
		DriverDirectory: privateDriverDir(),
		Browsers:        []string{"firefox"},
		Stdout:          out,
		Stderr:          out,
	}
	if install {
		if _, err := await(ctx, func() (struct{}, error) { return struct{}{}, playwright.Install(opts) }); err != nil {
			return nil, fmt.Errorf("failed to install private driver: %w", err)
		}
	}
	opts.SkipInstallBrowsers = true
	return await(ctx, func() (*playwright.Playwright, error) { return playwright.Run(opts) })
}
