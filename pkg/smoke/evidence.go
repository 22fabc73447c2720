package smoke

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/integrail/uismoke/pkg/browser"
)

// Collector writes one PNG per checkpoint into Dir. Capturing a checkpoint
// again replaces the previous file.
type Collector struct {
	Dir string
	log *zap.Logger
}

func NewCollector(dir string, log *zap.Logger) *Collector {
	return &Collector{Dir: dir, log: log}
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func CheckpointFile(checkpoint string) string {
	name := strings.Trim(unsafeFileChars.ReplaceAllString(strings.ToLower(checkpoint), "-"), "-.")
	if name == "" {
		name = "checkpoint"
	}
	return name + ".png"
}

// Sub returns a collector for a subdirectory, used to keep suites apart.
func (c *Collector) Sub(name string) *Collector {
	return &Collector{Dir: filepath.Join(c.Dir, dirName(name)), log: c.log}
}

func dirName(name string) string {
	return strings.TrimSuffix(CheckpointFile(name), ".png")
}

func (c *Collector) Path(checkpoint string) string {
	return filepath.Join(c.Dir, CheckpointFile(checkpoint))
}

func (c *Collector) Capture(ctx context.Context, page browser.Page, checkpoint string, fullPage bool) (string, error) {
	img, err := page.Screenshot(ctx, fullPage)
	if err != nil {
		return "", &EvidenceCaptureError{Checkpoint: checkpoint, Err: err}
	}
	path := c.Path(checkpoint)
	if err := writeFileAtomic(path, img); err != nil {
		return "", &EvidenceCaptureError{Checkpoint: checkpoint, Err: err}
	}
	c.log.Debug("captured evidence", zap.String("checkpoint", checkpoint), zap.String("path", path))
	return path, nil
}

// CaptureFailure is best effort: the page may be half loaded or gone, and the
// failure to capture it is only logged.
func (c *Collector) CaptureFailure(ctx context.Context, page browser.Page, checkpoint string) string {
	if page == nil {
		return ""
	}
	path, err := c.Capture(ctx, page, checkpoint, false)
	if err != nil {
		c.log.Warn("failure screenshot not captured", zap.Error(err))
		return ""
	}
	return path
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create evidence dir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".capture-*")
	if err != nil {
		return errors.Wrapf(err, "failed to create temp file in %s", dir)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "failed to write %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", tmp.Name())
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return errors.Wrapf(err, "failed to chmod %s", tmp.Name())
	}
	return errors.Wrapf(os.Rename(tmp.Name(), path), "failed to move capture to %s", path)
}
