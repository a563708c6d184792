//go:build !darwin

package destination

import (
	"context"
	"fmt"
	"runtime"
)

func copyFileReference(ctx context.Context, path string) error {
	return fmt.Errorf("file clipboard not supported on %s", runtime.GOOS)
}
