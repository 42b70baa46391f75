// internal/report/dir.go
package report

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const indexFile = "index.json"

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// DirSink writes attachments as files under a root directory, one
// sub-directory per scenario, and keeps an index.json of what it wrote.
type DirSink struct {
	root   string
	logger *zap.Logger

	mu    sync.Mutex
	index []Attachment
}

// NewDirSink creates the root directory if needed.
func NewDirSink(root string, logger *zap.Logger) (*DirSink, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}
	return &DirSink{root: root, logger: logger.Named("report")}, nil
}

// Attach writes body to <root>/<scenario>/<uuid>-<name><ext>.
func (d *DirSink) Attach(_ context.Context, scenario, name, contentType string, body []byte) error {
	dir := filepath.Join(d.root, SafeName(scenario))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create scenario directory: %w", err)
	}

	file := fmt.Sprintf("%s-%s%s", uuid.NewString(), SafeName(name), extensionFor(contentType))
	path := filepath.Join(dir, file)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("failed to write attachment: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.index = append(d.index, Attachment{
		Scenario:    scenario,
		Name:        name,
		ContentType: contentType,
		Path:        path,
		CreatedAt:   time.Now().UTC(),
	})
	raw, err := json.MarshalIndent(d.index, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(d.root, indexFile), raw, 0o644); err != nil {
		return fmt.Errorf("failed to write report index: %w", err)
	}
	d.logger.Debug("Attachment written.", zap.String("path", path), zap.Int("bytes", len(body)))
	return nil
}

// ReadIndex loads the index written by a DirSink rooted at root.
func ReadIndex(root string) ([]Attachment, error) {
	raw, err := os.ReadFile(filepath.Join(root, indexFile))
	if err != nil {
		return nil, err
	}
	var out []Attachment
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode report index: %w", err)
	}
	return out, nil
}

// SafeName replaces anything outside [A-Za-z0-9._-] with an underscore.
func SafeName(s string) string {
	if s == "" {
		return "unnamed"
	}
	return unsafeName.ReplaceAllString(s, "_")
}

func extensionFor(contentType string) string {
	switch contentType {
	case "text/plain":
		return ".txt"
	case "image/png":
		return ".png"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
