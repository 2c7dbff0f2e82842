package rain

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/rain-sensor/internal/weather"
)

// SessionManager owns the single live weather session.
type SessionManager struct {
	auth  weather.Authenticator
	creds weather.Credentials

	mu      sync.RWMutex
	session weather.Session
	id      string
}

func NewSessionManager(auth weather.Authenticator, creds weather.Credentials) *SessionManager {
	return &SessionManager{auth: auth, creds: creds}
}

// Current returns the live session, or nil before the first success.
func (m *SessionManager) Current() weather.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

func (m *SessionManager) ID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.id
}

// Authenticate opens a session and makes it current.
func (m *SessionManager) Authenticate(ctx context.Context) error {
	s, err := m.auth.Authenticate(ctx, m.creds)
	if err != nil {
		return &AuthError{Err: err}
	}

	id := uuid.NewString()
	m.attach(s, id)

	m.mu.Lock()
	m.session = s
	m.id = id
	m.mu.Unlock()

	log.Info().Str("session_id", id).Msg("Weather API session established")
	return nil
}

// Reauthenticate detaches the current session and replaces it. On failure the
// stale session is re-attached and stays current.
func (m *SessionManager) Reauthenticate(ctx context.Context) error {
	m.mu.RLock()
	old, oldID := m.session, m.id
	m.mu.RUnlock()

	if old != nil {
		old.DetachAll()
	}

	if err := m.Authenticate(ctx); err != nil {
		if old != nil {
			m.attach(old, oldID)
		}
		return err
	}
	return nil
}

// Close detaches the current session's subscriptions.
func (m *SessionManager) Close() {
	if s := m.Current(); s != nil {
		s.DetachAll()
	}
}

func (m *SessionManager) attach(s weather.Session, id string) {
	s.OnError(func(err error) {
		log.Error().Err(err).Str("session_id", id).Msg("Weather API error")
	})
	s.OnWarning(func(msg string) {
		log.Warn().Str("session_id", id).Str("warning", msg).Msg("Weather API warning")
	})
}
