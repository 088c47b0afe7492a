// Package session persists per-user conversation history as JSON files.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/moolen/sre-assistant/internal/logging"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const defaultCacheSize = 64

// Message is one entry of a conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Session is the stored history of one user.
type Session struct {
	UserID   string            `json:"user_id"`
	Messages []Message         `json:"messages"`
	Config   map[string]string `json:"config"`
}

// Store keeps one file per user below a directory. Loaded sessions are kept
// in a small LRU; every write goes to disk before it is cached.
type Store struct {
	dir    string
	mu     sync.Mutex
	cache  *lru.Cache[string, *Session]
	logger *logging.Logger
	now    func() time.Time
}

// NewStore creates dir if needed. cacheSize <= 0 selects the default.
func NewStore(dir string, cacheSize int) (*Store, error) {
	if dir == "" {
		return nil, errors.New("session directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, *Session](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	return &Store{
		dir:    dir,
		cache:  cache,
		logger: logging.GetLogger("session"),
		now:    time.Now,
	}, nil
}

// SanitizeID keeps alphanumerics, '_' and '-'. An id with none of those
// maps to "anonymous".
func SanitizeID(userID string) string {
	var b strings.Builder
	for _, r := range userID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "anonymous"
	}
	return b.String()
}

// Path returns the file that holds userID's history.
func (s *Store) Path(userID string) string {
	return filepath.Join(s.dir, SanitizeID(userID)+".json")
}

// Load returns the session of userID. A missing file yields an empty
// session.
func (s *Store) Load(userID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.load(userID)
	if err != nil {
		return nil, err
	}
	return sess.clone(), nil
}

func (s *Store) load(userID string) (*Session, error) {
	id := SanitizeID(userID)
	if sess, ok := s.cache.Get(id); ok {
		return sess, nil
	}

	data, err := os.ReadFile(s.Path(userID))
	if errors.Is(err, os.ErrNotExist) {
		sess := &Session{UserID: userID, Messages: []Message{}, Config: map[string]string{}}
		s.cache.Add(id, sess)
		return sess, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session %s: %w", id, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse session %s: %w", id, err)
	}
	if sess.Messages == nil {
		sess.Messages = []Message{}
	}
	if sess.Config == nil {
		sess.Config = map[string]string{}
	}
	s.cache.Add(id, &sess)
	return &sess, nil
}

// Append adds a message to userID's history and writes the file.
func (s *Store) Append(userID, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load(userID)
	if err != nil {
		return err
	}
	next := current.clone()
	next.Messages = append(next.Messages, Message{Role: role, Content: content, Timestamp: s.now().UTC()})
	if err := s.write(next); err != nil {
		return err
	}
	s.cache.Add(SanitizeID(userID), next)
	return nil
}

// Messages returns userID's history in order.
func (s *Store) Messages(userID string) ([]Message, error) {
	sess, err := s.Load(userID)
	if err != nil {
		return nil, err
	}
	return sess.Messages, nil
}

// Clear removes userID's history. Clearing a missing session is not an
// error.
func (s *Store) Clear(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Remove(SanitizeID(userID))
	if err := os.Remove(s.Path(userID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear session %s: %w", SanitizeID(userID), err)
	}
	s.logger.Debug("cleared session %s", SanitizeID(userID))
	return nil
}

// write replaces the session file atomically.
func (s *Store) write(sess *Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	path := s.Path(sess.UserID)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

func (sess *Session) clone() *Session {
	out := &Session{
		UserID:   sess.UserID,
		Messages: append([]Message{}, sess.Messages...),
		Config:   make(map[string]string, len(sess.Config)),
	}
	for k, v := range sess.Config {
		out.Config[k] = v
	}
	return out
}
