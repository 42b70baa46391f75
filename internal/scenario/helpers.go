// internal/scenario/helpers.go
package scenario

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// partialSuffixes mark downloads that are still being written.
var partialSuffixes = []string{".crdownload", ".part", ".download"}

// RobustGet navigates to url, retrying once, then probes document.readyState
// without waiting for subresources.
func (h *Harness) RobustGet(ctx context.Context, url string) error {
	sess, err := h.current()
	if err != nil {
		return err
	}
	drv := sess.Driver

	if err := drv.Navigate(ctx, url); err != nil {
		h.logger.Warn("Navigation failed, retrying once.", zap.String("url", url), zap.Error(err))
		if err := drv.Navigate(ctx, url); err != nil {
			h.logger.Debug("Retry failed.", zap.String("url", url), zap.Error(err))
		}
	}

	var state string
	if err := drv.ExecuteScript(ctx, `return document.readyState;`, &state); err != nil {
		return fmt.Errorf("failed to probe %s: %w", url, err)
	}
	h.logger.Debug("Page ready state.", zap.String("url", url), zap.String("ready_state", state))
	return nil
}

func (h *Harness) probe(ctx context.Context, script string) (string, error) {
	sess, err := h.current()
	if err != nil {
		return "", err
	}
	var out string
	if err := sess.Driver.ExecuteScript(ctx, script, &out); err != nil {
		return "", err
	}
	return out, nil
}

func (h *Harness) UserAgent(ctx context.Context) (string, error) {
	return h.probe(ctx, `return window.navigator.userAgent;`)
}

func (h *Harness) BrowserLanguage(ctx context.Context) (string, error) {
	return h.probe(ctx, `return window.navigator.language;`)
}

// WaitForDownload waits until name is complete in the download directory and
// returns its path.
func (h *Harness) WaitForDownload(ctx context.Context, name string, timeout time.Duration) (string, error) {
	return waitForFile(ctx, h.DownloadDirectory(), name, timeout)
}

func complete(dir, name string) bool {
	info, err := os.Stat(filepath.Join(dir, name))
	if err != nil || info.IsDir() {
		return false
	}
	for _, suffix := range partialSuffixes {
		if _, err := os.Stat(filepath.Join(dir, name+suffix)); err == nil {
			return false
		}
	}
	return true
}

func waitForFile(ctx context.Context, dir, name string, timeout time.Duration) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return "", fmt.Errorf("failed to watch download directory: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return "", fmt.Errorf("failed to watch download directory: %w", err)
	}

	path := filepath.Join(dir, name)
	// The file may have landed before the watch started.
	if complete(dir, name) {
		return path, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	errs := watcher.Errors
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return "", fmt.Errorf("download watcher closed")
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove) {
				if complete(dir, name) {
					return path, nil
				}
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			return "", fmt.Errorf("download watcher: %w", err)
		case <-timer.C:
			return "", fmt.Errorf("download %s not complete after %s: %w", name, timeout, context.DeadlineExceeded)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
