package services

import (
	"context"
	"sync"

	"github.com/gitpulse/gitpulse/internal/apperrors"
	"github.com/gitpulse/gitpulse/internal/models"
	"github.com/gitpulse/gitpulse/pkg/logger"
	"github.com/google/uuid"
)

// AuthStatus is the state of the session/auth controller for one session.
type AuthStatus string

const (
	StatusUnauthenticated AuthStatus = "unauthenticated"
	StatusAuthenticating  AuthStatus = "authenticating"
	StatusAuthenticated   AuthStatus = "authenticated"
)

// CredentialStore is the session-scoped credential cache. Get returns
// (nil, nil) for an unknown key. Implementations must write the full
// credential+identity pair atomically.
type CredentialStore interface {
	Get(key string) (*models.Credential, error)
	Set(key string, cred *models.Credential) error
	Clear(key string) error
}

// TokenExchanger performs the provider side of the OAuth exchange.
type TokenExchanger interface {
	ExchangeCode(ctx context.Context, code, state string) (string, error)
	GetUserInfo(ctx context.Context, accessToken string) (*models.AuthUser, error)
}

// AuthSessionService is the session/auth controller: it restores cached
// credentials, runs the single-flight OAuth exchange and handles logout.
type AuthSessionService struct {
	store     CredentialStore
	exchanger TokenExchanger

	mu       sync.Mutex
	inFlight bool
}

func NewAuthSessionService(store CredentialStore, exchanger TokenExchanger) *AuthSessionService {
	return &AuthSessionService{
		store:     store,
		exchanger: exchanger,
	}
}

// Restore loads the credential cached under key. The session counts as
// authenticated only when both an access token and an identity login are
// present; partial records are cleared.
func (s *AuthSessionService) Restore(key string) (AuthStatus, *models.Credential) {
	if key == "" {
		return StatusUnauthenticated, nil
	}

	cred, err := s.store.Get(key)
	if err != nil {
		logger.WithError(err).Warnf("failed to restore session")
		return StatusUnauthenticated, nil
	}
	if cred == nil {
		return StatusUnauthenticated, nil
	}
	if cred.AccessToken == "" || cred.User.Login == "" {
		if err := s.store.Clear(key); err != nil {
			logger.WithError(err).Warnf("failed to clear partial session")
		}
		return StatusUnauthenticated, nil
	}

	return StatusAuthenticated, cred
}

// Exchange performs exactly one code-for-token exchange, guarded against
// duplicate concurrent invocation. On success the full credential pair is
// stored under a fresh session key; on failure any credential stored under
// previousKey is cleared.
func (s *AuthSessionService) Exchange(ctx context.Context, previousKey, code, state string) (string, *models.Credential, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return "", nil, apperrors.ErrExchangeInFlight
	}
	s.inFlight = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	accessToken, err := s.exchanger.ExchangeCode(ctx, code, state)
	if err != nil {
		s.clearPrevious(previousKey)
		return "", nil, err
	}

	user, err := s.exchanger.GetUserInfo(ctx, accessToken)
	if err != nil {
		s.clearPrevious(previousKey)
		return "", nil, err
	}

	cred := &models.Credential{
		AccessToken: accessToken,
		User:        *user,
	}

	key := uuid.New().String()
	if err := s.store.Set(key, cred); err != nil {
		return "", nil, err
	}

	return key, cred, nil
}

// Logout clears the credential cached under key.
func (s *AuthSessionService) Logout(key string) error {
	if key == "" {
		return nil
	}
	return s.store.Clear(key)
}

func (s *AuthSessionService) clearPrevious(key string) {
	if key == "" {
		return
	}
	if err := s.store.Clear(key); err != nil {
		logger.WithError(err).Warnf("failed to clear session after exchange failure")
	}
}
