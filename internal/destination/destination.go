// Package destination implements the local completion steps of an export:
// placing the rendered artifact at the user's chosen path or on the
// clipboard, and copying share links as text.
package destination

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/atotto/clipboard"

	"github.com/reelkit/reelkit-agent/internal/logging"
)

// Local performs destination actions on the machine the agent runs on.
type Local struct {
	logger *slog.Logger
}

func NewLocal(logger *slog.Logger) *Local {
	return &Local{logger: logger}
}

// CopyToPath copies the artifact to dest. The bytes land in a temporary
// file next to dest first and are renamed into place, so a crash or a
// full disk never leaves a truncated file at the user's chosen path.
func (l *Local) CopyToPath(ctx context.Context, src, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return fmt.Errorf("create destination file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("copy artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync destination file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close destination file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("set destination permissions: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("move into place: %w", err)
	}

	l.logger.Info("artifact saved", "dest", logging.SanitizePath(dest))
	return nil
}

// CopyToClipboard puts the rendered file on the system clipboard. Platforms
// without a file clipboard fall back to copying the path as text.
func (l *Local) CopyToClipboard(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := copyFileReference(ctx, path); err != nil {
		l.logger.Debug("file clipboard unavailable, copying path as text", "error", err)
		return l.CopyText(path)
	}
	l.logger.Info("artifact copied to clipboard", "path", logging.SanitizePath(path))
	return nil
}

// CopyText puts a plain string (a share URL, a file path) on the clipboard.
func (l *Local) CopyText(text string) error {
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	return nil
}
