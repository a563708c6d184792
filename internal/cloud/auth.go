package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/reelkit/reelkit-agent/internal/logging"
	"github.com/reelkit/reelkit-agent/internal/project"
)

const accessTokenKey = "cloud_access_token"

// ErrNoCredential is returned when a backend call is attempted while signed
// out. The entitlement gate normally blocks this path first.
var ErrNoCredential = errors.New("no cloud credential stored")

// CredentialStore persists the cloud access token in the agent's config
// table and caches it in memory for per-request reads.
type CredentialStore struct {
	repo   project.Repository
	logger *slog.Logger

	mu     sync.RWMutex
	token  string
	loaded bool
}

func NewCredentialStore(repo project.Repository, logger *slog.Logger) *CredentialStore {
	return &CredentialStore{repo: repo, logger: logger}
}

// Token returns the stored access token, or empty when signed out.
func (s *CredentialStore) Token(ctx context.Context) string {
	s.mu.RLock()
	if s.loaded {
		token := s.token
		s.mu.RUnlock()
		return token
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.token
	}
	token, err := s.repo.GetConfig(ctx, accessTokenKey)
	if err != nil {
		// Not cached: the next read retries the store.
		s.logger.Warn("reading cloud credential failed", "error", err)
		return ""
	}
	s.token = token
	s.loaded = true
	return token
}

// IsAuthenticated reports whether a credential is stored.
func (s *CredentialStore) IsAuthenticated(ctx context.Context) bool {
	return s.Token(ctx) != ""
}

// SetToken stores a new access token, replacing any existing one.
func (s *CredentialStore) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("access token is empty")
	}
	if err := s.repo.SetConfig(ctx, accessTokenKey, token); err != nil {
		return fmt.Errorf("persist cloud credential: %w", err)
	}
	s.mu.Lock()
	s.token = token
	s.loaded = true
	s.mu.Unlock()
	s.logger.Info("cloud credential stored", "token", logging.SanitizeToken(token))
	return nil
}

// Clear signs the agent out.
func (s *CredentialStore) Clear(ctx context.Context) error {
	if err := s.repo.SetConfig(ctx, accessTokenKey, ""); err != nil {
		return fmt.Errorf("clear cloud credential: %w", err)
	}
	s.mu.Lock()
	s.token = ""
	s.loaded = true
	s.mu.Unlock()
	s.logger.Info("cloud credential cleared")
	return nil
}
