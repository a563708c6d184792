package cloud

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/reelkit/reelkit-agent/internal/db"
	"github.com/reelkit/reelkit-agent/internal/project"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestRepo(t *testing.T) project.Repository {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return project.NewRepository(database.Conn())
}

func TestCredentialStore_RoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	store := NewCredentialStore(repo, testLogger())

	if store.IsAuthenticated(ctx) {
		t.Fatal("fresh store reports authenticated")
	}

	if err := store.SetToken(ctx, "tok_abc123xyz"); err != nil {
		t.Fatalf("SetToken() error = %v", err)
	}
	if got := store.Token(ctx); got != "tok_abc123xyz" {
		t.Errorf("Token() = %q, want tok_abc123xyz", got)
	}
	if !store.IsAuthenticated(ctx) {
		t.Error("IsAuthenticated() = false after SetToken")
	}

	// A second store over the same repository sees the persisted token.
	reloaded := NewCredentialStore(repo, testLogger())
	if got := reloaded.Token(ctx); got != "tok_abc123xyz" {
		t.Errorf("reloaded Token() = %q, want tok_abc123xyz", got)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if store.IsAuthenticated(ctx) {
		t.Error("IsAuthenticated() = true after Clear")
	}
}

func TestCredentialStore_RejectsEmptyToken(t *testing.T) {
	store := NewCredentialStore(newTestRepo(t), testLogger())
	if err := store.SetToken(context.Background(), ""); err == nil {
		t.Fatal("SetToken(\"\") did not error")
	}
}
