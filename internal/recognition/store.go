// Package recognition holds the known-face database and scores query
// embeddings against it.
package recognition

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/facematch"
)

const faceDatabaseVersion = 1

// Identity is one reference embedding of an enrolled student. A student may
// have several entries, one per enrolled sample.
type Identity struct {
	ID        string
	Name      string
	Embedding []float32
	Metadata  map[string]string
}

// faceDatabase is the persisted blob: parallel arrays indexed by entry.
type faceDatabase struct {
	Version   int
	Encodings [][]float32
	IDs       []string
	Names     []string
	Metadata  []map[string]string
}

// Store is the in-memory collection of known identities. Entries keep their
// insertion order, which decides ties during matching.
type Store struct {
	mu         sync.RWMutex
	identities []Identity
	path       string
}

// NewStore creates an empty store that saves to path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// OpenStore loads the face database at path. A missing file gives an empty
// store; an unreadable or corrupt file is logged and also gives an empty store.
func OpenStore(path string) *Store {
	s := NewStore(path)
	if path == "" {
		return s
	}
	err := s.load()
	switch {
	case err == nil:
		log.Printf("Loaded %d known face samples from %s", s.Len(), path)
	case errors.Is(err, os.ErrNotExist):
		log.Printf("Face database %s not found, starting with no known faces", path)
	default:
		log.Printf("Failed to load face database %s, starting with no known faces: %v", path, err)
	}
	return s
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path) //nolint:gosec // path is from trusted config
	if err != nil {
		return err
	}

	var db faceDatabase
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&db); err != nil {
		return fmt.Errorf("failed to decode face database: %w", err)
	}
	if len(db.IDs) != len(db.Encodings) || len(db.Names) != len(db.Encodings) {
		return fmt.Errorf("face database arrays differ in length: %d encodings, %d ids, %d names",
			len(db.Encodings), len(db.IDs), len(db.Names))
	}

	identities := make([]Identity, len(db.Encodings))
	for i := range db.Encodings {
		identities[i] = Identity{ID: db.IDs[i], Name: db.Names[i], Embedding: db.Encodings[i]}
		if i < len(db.Metadata) {
			identities[i].Metadata = db.Metadata[i]
		}
	}

	s.mu.Lock()
	s.identities = identities
	s.mu.Unlock()
	return nil
}

// Save writes the store to its path, replacing the previous file atomically.
func (s *Store) Save() error {
	if s.path == "" {
		return errors.New("face database path is not set")
	}

	s.mu.RLock()
	db := faceDatabase{
		Version:   faceDatabaseVersion,
		Encodings: make([][]float32, len(s.identities)),
		IDs:       make([]string, len(s.identities)),
		Names:     make([]string, len(s.identities)),
		Metadata:  make([]map[string]string, len(s.identities)),
	}
	for i, ident := range s.identities {
		db.Encodings[i] = ident.Embedding
		db.IDs[i] = ident.ID
		db.Names[i] = ident.Name
		db.Metadata[i] = ident.Metadata
	}
	s.mu.RUnlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(db); err != nil {
		return fmt.Errorf("failed to encode face database: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create face database directory: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write face database: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace face database: %w", err)
	}
	return nil
}

// Path returns the file the store saves to.
func (s *Store) Path() string {
	return s.path
}

// Add appends an identity entry.
func (s *Store) Add(ident Identity) error {
	if ident.ID == "" {
		return errors.New("identity ID is required")
	}
	if len(ident.Embedding) == 0 {
		return errors.New("identity embedding is empty")
	}
	ident.Embedding = slices.Clone(ident.Embedding)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities = append(s.identities, ident)
	return nil
}

// Remove drops every entry of the given student and returns how many were removed.
func (s *Store) Remove(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.identities)
	s.identities = slices.DeleteFunc(s.identities, func(ident Identity) bool { return ident.ID == id })
	return before - len(s.identities)
}

// RemoveLatest drops the most recently added entry of the given student and
// reports whether one existed.
func (s *Store) RemoveLatest(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.identities) - 1; i >= 0; i-- {
		if s.identities[i].ID == id {
			s.identities = slices.Delete(s.identities, i, i+1)
			return true
		}
	}
	return false
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.identities)
}

// Snapshot returns a copy of the entries in insertion order.
func (s *Store) Snapshot() []Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.identities)
}

// FindByName returns the entries whose display name matches name, ignoring
// case, diacritics and dashes.
func (s *Store) FindByName(name string) []Identity {
	want := facematch.NormalizePersonName(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Identity
	for _, ident := range s.identities {
		if facematch.NormalizePersonName(ident.Name) == want {
			out = append(out, ident)
		}
	}
	return out
}

// Student summarizes the entries of one enrolled student.
type Student struct {
	ID         string `json:"student_id"`
	Name       string `json:"name"`
	Samples    int    `json:"samples"`
	Dimensions []int  `json:"dimensions"`
}

// Students groups entries by student ID in first-enrollment order.
func (s *Store) Students() []Student {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index := make(map[string]int)
	var out []Student
	for _, ident := range s.identities {
		i, ok := index[ident.ID]
		if !ok {
			i = len(out)
			index[ident.ID] = i
			out = append(out, Student{ID: ident.ID, Name: ident.Name})
		}
		out[i].Samples++
		if !slices.Contains(out[i].Dimensions, len(ident.Embedding)) {
			out[i].Dimensions = append(out[i].Dimensions, len(ident.Embedding))
		}
	}
	return out
}

// ToStored converts the entries for the database mirror and the HNSW index.
func (s *Store) ToStored() []database.StoredIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]database.StoredIdentity, len(s.identities))
	for i, ident := range s.identities {
		out[i] = database.StoredIdentity{
			StudentID: ident.ID,
			Name:      ident.Name,
			Embedding: ident.Embedding,
			Dim:       len(ident.Embedding),
			Metadata:  ident.Metadata,
		}
	}
	return out
}

// Replace swaps all entries for the given stored identities.
func (s *Store) Replace(stored []database.StoredIdentity) {
	identities := make([]Identity, 0, len(stored))
	for _, st := range stored {
		if st.StudentID == "" || len(st.Embedding) == 0 {
			continue
		}
		identities = append(identities, Identity{
			ID:        st.StudentID,
			Name:      st.Name,
			Embedding: st.Embedding,
			Metadata:  st.Metadata,
		})
	}
	s.mu.Lock()
	s.identities = identities
	s.mu.Unlock()
}
