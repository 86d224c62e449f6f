// Package auth keeps user accounts and login sessions for the shell and
// the HTTP API. Passwords are stored as bcrypt hashes; session ids are
// random UUIDs.
package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidUser        = errors.New("username and password are required")
)

type User struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Session struct {
	ID        string    `json:"session_id"`
	Username  string    `json:"username"`
	LoginTime time.Time `json:"login_time"`
}

type Service struct {
	mu       sync.RWMutex
	users    map[string]*User
	sessions map[string]Session
	cost     int
	now      func() time.Time
}

type Option func(*Service)

// WithBcryptCost overrides bcrypt.DefaultCost. Values below bcrypt.MinCost are ignored.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		if cost >= bcrypt.MinCost {
			s.cost = cost
		}
	}
}

func New(opts ...Option) *Service {
	s := &Service{
		users:    make(map[string]*User),
		sessions: make(map[string]Session),
		cost:     bcrypt.DefaultCost,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) CreateUser(username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return ErrInvalidUser
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return fmt.Errorf("%w: %s", ErrUserExists, username)
	}
	s.users[username] = &User{Username: username, PasswordHash: string(hash), CreatedAt: s.now()}
	return nil
}

// Authenticate verifies the password and opens a new session.
func (s *Service) Authenticate(username, password string) (Session, error) {
	s.mu.RLock()
	u, ok := s.users[username]
	s.mu.RUnlock()
	if !ok || password == "" {
		return Session{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	sess := Session{ID: uuid.NewString(), Username: username, LoginTime: s.now()}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess, nil
}

func (s *Service) Session(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Logout drops the session. It reports whether the session existed.
func (s *Service) Logout(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// Users returns the registered usernames in sorted order.
func (s *Service) Users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.users))
	for name := range s.users {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
