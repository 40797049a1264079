package application

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SessionService issues and validates short-lived panel session tokens. The
// store is process memory only: a restart invalidates every session, forcing
// a fresh password login. Sessions are a convenience layer over the durable
// password check, not a security boundary on their own.
type SessionService struct {
	mu     sync.Mutex
	tokens map[string]time.Time
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewSessionService creates a SessionService with the given token lifetime.
func NewSessionService(ttl time.Duration, logger *slog.Logger) *SessionService {
	return &SessionService{
		tokens: make(map[string]time.Time),
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

// Issue generates a cryptographically random token valid for the configured
// TTL from now.
func (s *SessionService) Issue() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	token := hex.EncodeToString(buf)

	s.mu.Lock()
	s.tokens[token] = s.now().Add(s.ttl)
	s.mu.Unlock()

	return token, nil
}

// Validate reports whether token exists and has not expired. Expired entries
// are removed as a side effect of lookup.
func (s *SessionService) Validate(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.tokens[token]
	if !ok {
		return false
	}
	if s.now().After(expiry) {
		delete(s.tokens, token)
		return false
	}
	return true
}

// Run sweeps expired tokens every interval until ctx is cancelled, bounding
// memory growth independent of validation traffic.
func (s *SessionService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.sweep(); removed > 0 {
				s.logger.Debug("expired sessions purged", "count", removed)
			}
		}
	}
}

func (s *SessionService) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for token, expiry := range s.tokens {
		if now.After(expiry) {
			delete(s.tokens, token)
			removed++
		}
	}
	return removed
}
