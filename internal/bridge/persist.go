package bridge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// persistedSession is what survives a restart for one username.
type persistedSession struct {
	ResumeToken     string `json:"resume_token,omitempty"`
	AgentID         string `json:"agent_id,omitempty"`
	Version         string `json:"version,omitempty"`
	LastConnectedAt string `json:"last_connected_at,omitempty"`
}

// stateFile is a JSON object keyed by username, rewritten atomically on
// every WELCOME.
type stateFile struct {
	path string
	mu   sync.Mutex
}

func (f *stateFile) load() (map[string]persistedSession, error) {
	if f == nil || f.path == "" {
		return map[string]persistedSession{}, nil
	}
	b, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]persistedSession{}, nil
		}
		return nil, err
	}
	var m map[string]persistedSession
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	if m == nil {
		m = map[string]persistedSession{}
	}
	return m, nil
}

func (f *stateFile) get(username string) (persistedSession, error) {
	if f == nil {
		return persistedSession{}, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.load()
	if err != nil {
		return persistedSession{}, err
	}
	return m[username], nil
}

func (f *stateFile) put(username string, s persistedSession, now time.Time) error {
	if f == nil || f.path == "" {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.load()
	if err != nil {
		// A corrupt file is replaced rather than blocking every future save.
		m = map[string]persistedSession{}
	}
	s.LastConnectedAt = now.UTC().Format(time.RFC3339Nano)
	m[username] = s
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(f.path, b)
}

// forget drops the saved resume token for username so the next HELLO
// authenticates from scratch.
func (f *stateFile) forget(username string) error {
	if f == nil || f.path == "" {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.load()
	if err != nil {
		return err
	}
	s, ok := m[username]
	if !ok || s.ResumeToken == "" {
		return nil
	}
	s.ResumeToken = ""
	m[username] = s
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(f.path, b)
}

func writeFileAtomic(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
