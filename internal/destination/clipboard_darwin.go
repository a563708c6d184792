package destination

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// copyFileReference places a file reference on the pasteboard so the user
// can paste the artifact itself, not its path.
func copyFileReference(ctx context.Context, path string) error {
	bin, err := exec.LookPath("osascript")
	if err != nil {
		return fmt.Errorf("osascript not found: %w", err)
	}

	script := fmt.Sprintf("set the clipboard to (POSIX file %q)", path)
	cmd := exec.CommandContext(ctx, bin, "-e", script)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("osascript: %w: %s", err, bytes.TrimSpace(out))
	}
	return nil
}
