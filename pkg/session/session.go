// Package session persists the signed-in user and supplies its bearer token
// to the transport.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"go.etcd.io/bbolt"

	"github.com/Sternrassler/plagcheck-client/pkg/logging"
)

// ErrNoSession indicates no user is signed in.
var ErrNoSession = errors.New("no session")

const (
	bucketSession = "Session"
	keyCurrent    = "current"
)

// User is the signed-in account as returned by the backend login call.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Session is the locally persisted user/session object.
type Session struct {
	User    User      `json:"user"`
	Token   string    `json:"token"`
	SavedAt time.Time `json:"saved_at"`
}

// ExpiresAt returns the exp claim of a JWT token.
// Opaque tokens and tokens without exp report false.
func (s *Session) ExpiresAt() (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	// The backend verifies the signature; here we only read the expiry.
	if _, _, err := jwt.NewParser().ParseUnverified(s.Token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Expired reports whether the token carries an exp claim before now.
func (s *Session) Expired(now time.Time) bool {
	exp, ok := s.ExpiresAt()
	return ok && !now.Before(exp)
}

// Store keeps the current session in a bbolt file.
type Store struct {
	db     *bbolt.DB
	now    func() time.Time
	logger zerolog.Logger
}

// Open opens (or creates) the session database at filePath.
func Open(filePath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	db, err := bbolt.Open(filePath, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketSession))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create session bucket: %w", err)
	}

	return &Store{db: db, now: time.Now, logger: logging.NewLogger(logging.ComponentSession)}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save replaces the current session.
func (s *Store) Save(sess *Session) error {
	if sess == nil || sess.Token == "" {
		return fmt.Errorf("session token is required")
	}
	stored := *sess
	if stored.SavedAt.IsZero() {
		stored.SavedAt = s.now()
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketSession)).Put([]byte(keyCurrent), data)
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	s.logger.Info().Str("email", stored.User.Email).Msg("Session saved")
	return nil
}

// Load returns the current session, or ErrNoSession.
func (s *Store) Load() (*Session, error) {
	var sess *Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketSession)).Get([]byte(keyCurrent))
		if data == nil {
			return ErrNoSession
		}
		sess = &Session{}
		if err := json.Unmarshal(data, sess); err != nil {
			return fmt.Errorf("decode session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Clear removes the current session. Clearing without a session is a no-op.
func (s *Store) Clear() error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketSession)).Delete([]byte(keyCurrent))
	})
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}

	s.logger.Info().Msg("Session cleared")
	return nil
}

// Token implements client.TokenSource. It reports false when no session is
// stored or the stored token has expired.
func (s *Store) Token(_ context.Context) (string, bool) {
	sess, err := s.Load()
	if err != nil {
		return "", false
	}
	if sess.Expired(s.now()) {
		s.logger.Warn().Str("email", sess.User.Email).Msg("Session token expired, sending request without it")
		return "", false
	}
	return sess.Token, true
}
