package destination

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/reelkit/reelkit-agent/internal/export"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestLocal_CopyToPath(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "artifact.mp4")
	dest := filepath.Join(tmp, "saved", "Demo.mp4")
	if err := os.WriteFile(src, []byte("rendered frames"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		t.Fatalf("mkdir dest: %v", err)
	}

	local := NewLocal(testLogger())
	if err := local.CopyToPath(context.Background(), src, dest); err != nil {
		t.Fatalf("CopyToPath() error = %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if string(got) != "rendered frames" {
		t.Errorf("dest content = %q", got)
	}

	// Source artifact remains for the Done surface's player.
	if _, err := os.Stat(src); err != nil {
		t.Errorf("source artifact gone: %v", err)
	}

	// No leftover temp files.
	entries, err := os.ReadDir(filepath.Dir(dest))
	if err != nil {
		t.Fatalf("read dest dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestLocal_CopyToPath_OverwritesExisting(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "artifact.mp4")
	dest := filepath.Join(tmp, "Demo.mp4")
	if err := os.WriteFile(src, []byte("new render"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	if err := os.WriteFile(dest, []byte("previous render"), 0o644); err != nil {
		t.Fatalf("write dest: %v", err)
	}

	local := NewLocal(testLogger())
	if err := local.CopyToPath(context.Background(), src, dest); err != nil {
		t.Fatalf("CopyToPath() error = %v", err)
	}

	got, _ := os.ReadFile(dest)
	if string(got) != "new render" {
		t.Errorf("dest content = %q, want new render", got)
	}
}

func TestLocal_CopyToPath_MissingSource(t *testing.T) {
	tmp := t.TempDir()
	local := NewLocal(testLogger())
	err := local.CopyToPath(context.Background(), filepath.Join(tmp, "missing.mp4"), filepath.Join(tmp, "out.mp4"))
	if err == nil {
		t.Fatal("CopyToPath() with missing source did not error")
	}
}

func TestLocal_CopyToPath_CancelledContext(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "artifact.mp4")
	dest := filepath.Join(tmp, "Demo.mp4")
	if err := os.WriteFile(src, []byte("rendered frames"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	local := NewLocal(testLogger())
	if err := local.CopyToPath(ctx, src, dest); err == nil {
		t.Fatal("CopyToPath() with cancelled context did not error")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("dest file exists after cancelled copy")
	}
}

func TestLocal_ImplementsSinkInterface(t *testing.T) {
	var _ export.Sink = (*Local)(nil)
}
