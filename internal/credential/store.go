package credential

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Store persists credentials as a JSON array on disk and is the sole
// writer of that file. All writes are whole-file and serialized through
// mu, using an atomic temp-file-then-rename pattern.
type Store struct {
	mu   sync.RWMutex
	path string
	byToken map[string]*Credential
	order   []string // preserves insertion/file order for deterministic rotation
}

// NewStore loads (or creates) the credential file at path.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path:    path,
		byToken: make(map[string]*Credential),
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) reload() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var creds []*Credential
	if err := json.Unmarshal(data, &creds); err != nil {
		return fmt.Errorf("credential store: parse %s: %w", s.path, err)
	}

	s.byToken = make(map[string]*Credential, len(creds))
	s.order = s.order[:0]
	for _, c := range creds {
		if c.RefreshToken == "" {
			continue
		}
		if c.SessionID == "" {
			c.SessionID = uuid.NewString()
		}
		s.byToken[c.RefreshToken] = c
		s.order = append(s.order, c.RefreshToken)
	}
	return nil
}

// List returns a stable-ordered snapshot of every credential, including
// disabled ones.
func (s *Store) List() []*Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Credential, 0, len(s.order))
	for _, token := range s.order {
		if c, ok := s.byToken[token]; ok {
			out = append(out, c.Clone())
		}
	}
	return out
}

// Add inserts a new credential. RefreshToken must be unique; Add fails
// (no-op) if it collides with an existing entry.
func (s *Store) Add(c *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byToken[c.RefreshToken]; exists {
		return fmt.Errorf("credential store: refresh_token already exists")
	}
	if c.SessionID == "" {
		c.SessionID = uuid.NewString()
	}
	if !c.HasQuota {
		c.HasQuota = true
	}

	cp := c.Clone()
	s.byToken[cp.RefreshToken] = cp
	s.order = append(s.order, cp.RefreshToken)
	return s.persistLocked()
}

// Patch applies fn to the credential identified by refreshToken and
// persists the change. fn mutates in place; it must not retain the pointer.
func (s *Store) Patch(refreshToken string, fn func(*Credential)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byToken[refreshToken]
	if !ok {
		return fmt.Errorf("credential store: unknown refresh_token")
	}
	fn(c)
	return s.persistLocked()
}

// Delete removes a credential by refresh token.
func (s *Store) Delete(refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byToken[refreshToken]; !ok {
		return nil
	}
	delete(s.byToken, refreshToken)
	for i, token := range s.order {
		if token == refreshToken {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return s.persistLocked()
}

// persistLocked rewrites the whole file. The on-disk format is a flat JSON
// array, so every mutation — add, patch, or delete — is a whole-file write;
// mu serializes them.
func (s *Store) persistLocked() error {
	out := make([]*Credential, 0, len(s.order))
	for _, token := range s.order {
		out = append(out, s.byToken[token])
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
