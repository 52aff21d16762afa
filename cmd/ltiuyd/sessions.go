package main

import (
	"sync"
	"time"

	"ltiuy-backend/lib/timezone"

	"github.com/mazen160/go-random"
)

const sessionTtl = 12 * time.Hour

type session struct {
	UserHash string
	Username string
	Admin    bool
	Expires  time.Time
}

// sessionStore is the in-memory token table. Sessions do not survive a
// restart; students just log in again, which also refreshes their data.
type sessionStore struct {
	mu      sync.Mutex
	byToken map[string]session
}

func newSessionStore() *sessionStore {
	return &sessionStore{byToken: map[string]session{}}
}

func (s *sessionStore) issue(userHash, username string, admin bool) (string, error) {
	token, err := random.String(48)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byToken[token] = session{
		UserHash: userHash,
		Username: username,
		Admin:    admin,
		Expires:  timezone.Now().Add(sessionTtl),
	}
	return token, nil
}

func (s *sessionStore) get(token string) (session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byToken[token]
	if !ok {
		return session{}, false
	}
	if timezone.Now().After(sess.Expires) {
		delete(s.byToken, token)
		return session{}, false
	}
	return sess, true
}

func (s *sessionStore) prune() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := timezone.Now()
	for token, sess := range s.byToken {
		if now.After(sess.Expires) {
			delete(s.byToken, token)
		}
	}
}
