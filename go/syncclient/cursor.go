// Package syncclient implements the on-box fleet agent: it consumes server
// commands from the broker, runs the periodic delta sync against the sync
// server, applies changes to the local engines, and reports status upstream.
package syncclient

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/twmsh/fy-admin/go/timefmt"
)

// Cursor marks the last delta entry applied for one stream.
type Cursor struct {
	LastTS timefmt.Time `json:"last_ts"`
	LastID string       `json:"last_id"`
}

// LastUpdate renders the cursor as the last_update query parameter. A zero
// cursor asks for everything.
func (c Cursor) LastUpdate() string {
	if c.LastTS.IsZero() {
		return "1970-01-01 00:00:00.000"
	}
	return c.LastTS.Format(timefmt.Layout)
}

// SyncLog is the on-disk cursor file, one cursor per delta stream.
type SyncLog struct {
	HwID   string `json:"hw_id"`
	Db     Cursor `json:"db"`
	Camera Cursor `json:"camera"`
	Person Cursor `json:"person"`
}

// CursorStore owns the cursor file. Mutations happen under a lock; Save
// writes the pretty-printed JSON back so the file stays hand-readable.
type CursorStore struct {
	mu   sync.Mutex
	path string
	log  SyncLog
}

// LoadCursorStore reads the cursor file, starting from zero cursors when it
// does not exist yet. A cursor file recorded under a different hardware id
// is discarded: the box was re-provisioned and must sync from scratch.
func LoadCursorStore(path, hwID string) (*CursorStore, error) {
	var s = &CursorStore{path: path, log: SyncLog{HwID: hwID}}

	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded SyncLog
	if err = json.Unmarshal(content, &loaded); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if loaded.HwID == hwID {
		s.log = loaded
	}
	return s, nil
}

func (s *CursorStore) Snapshot() SyncLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log
}

func (s *CursorStore) SetDb(c Cursor) {
	s.mu.Lock()
	s.log.Db = c
	s.mu.Unlock()
}

func (s *CursorStore) SetCamera(c Cursor) {
	s.mu.Lock()
	s.log.Camera = c
	s.mu.Unlock()
}

func (s *CursorStore) SetPerson(c Cursor) {
	s.mu.Lock()
	s.log.Person = c
	s.mu.Unlock()
}

// Reset zeroes every cursor so the next sync refetches everything.
func (s *CursorStore) Reset() {
	s.mu.Lock()
	s.log.Db = Cursor{}
	s.log.Camera = Cursor{}
	s.log.Person = Cursor{}
	s.mu.Unlock()
}

// Save writes the cursor file.
func (s *CursorStore) Save() error {
	s.mu.Lock()
	content, err := json.MarshalIndent(&s.log, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encoding cursor file: %w", err)
	}
	if err = os.WriteFile(s.path, content, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	return nil
}
