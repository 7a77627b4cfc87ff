package recognition

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/rollcall/internal/database"
)

func vec128(values ...float32) []float32 {
	v := make([]float32, BiometricDim)
	copy(v, values)
	return v
}

func TestStore_SaveAndOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faces", "face_database.gob")
	s := NewStore(path)

	if err := s.Add(Identity{ID: "s1", Name: "Alice Nováková", Embedding: vec128(1), Metadata: map[string]string{"source": "a.jpg"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(Identity{ID: "s2", Name: "Bob", Embedding: []float32{0.1, 0.2, 0.3}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded := OpenStore(path)
	if loaded.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", loaded.Len())
	}
	snap := loaded.Snapshot()
	if snap[0].ID != "s1" || snap[1].ID != "s2" {
		t.Errorf("insertion order not preserved: %s, %s", snap[0].ID, snap[1].ID)
	}
	if snap[0].Metadata["source"] != "a.jpg" {
		t.Errorf("metadata lost: %v", snap[0].Metadata)
	}
	if len(snap[1].Embedding) != 3 {
		t.Errorf("expected 3-d embedding, got %d", len(snap[1].Embedding))
	}
}

func TestOpenStore_Missing(t *testing.T) {
	s := OpenStore(filepath.Join(t.TempDir(), "missing.gob"))
	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d", s.Len())
	}
}

func TestOpenStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.gob")
	if err := os.WriteFile(path, []byte("definitely not gob"), 0600); err != nil {
		t.Fatal(err)
	}

	s := OpenStore(path)
	if s.Len() != 0 {
		t.Errorf("expected empty store for corrupt file, got %d", s.Len())
	}

	// The store stays usable and can overwrite the corrupt file.
	if err := s.Add(Identity{ID: "s1", Name: "A", Embedding: vec128(1)}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if OpenStore(path).Len() != 1 {
		t.Error("expected repaired file to load")
	}
}

func TestStore_AddValidation(t *testing.T) {
	s := NewStore("")
	if err := s.Add(Identity{Name: "x", Embedding: vec128(1)}); err == nil {
		t.Error("expected error for missing ID")
	}
	if err := s.Add(Identity{ID: "x", Name: "x"}); err == nil {
		t.Error("expected error for empty embedding")
	}
	if err := s.Save(); err == nil {
		t.Error("expected error saving without a path")
	}
}

func TestStore_RemoveAndStudents(t *testing.T) {
	s := NewStore("")
	_ = s.Add(Identity{ID: "s1", Name: "Alice", Embedding: vec128(1)})
	_ = s.Add(Identity{ID: "s2", Name: "Bob", Embedding: vec128(0, 1)})
	_ = s.Add(Identity{ID: "s1", Name: "Alice", Embedding: make([]float32, 576)})

	students := s.Students()
	if len(students) != 2 {
		t.Fatalf("expected 2 students, got %d", len(students))
	}
	if students[0].ID != "s1" || students[0].Samples != 2 || len(students[0].Dimensions) != 2 {
		t.Errorf("unexpected summary %+v", students[0])
	}

	if n := s.Remove("s1"); n != 2 {
		t.Errorf("expected 2 removed, got %d", n)
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 entry left, got %d", s.Len())
	}
}

func TestStore_FindByName(t *testing.T) {
	s := NewStore("")
	_ = s.Add(Identity{ID: "s1", Name: "Jan Novák", Embedding: vec128(1)})
	_ = s.Add(Identity{ID: "s2", Name: "Eva Dvořák", Embedding: vec128(1)})

	got := s.FindByName("jan-novak")
	if len(got) != 1 || got[0].ID != "s1" {
		t.Errorf("expected s1, got %+v", got)
	}
}

func TestStore_StoredRoundTrip(t *testing.T) {
	s := NewStore("")
	_ = s.Add(Identity{ID: "s1", Name: "Alice", Embedding: vec128(1)})

	stored := s.ToStored()
	if stored[0].Dim != BiometricDim || stored[0].StudentID != "s1" {
		t.Errorf("unexpected stored identity %+v", stored[0])
	}

	other := NewStore("")
	other.Replace(append(stored, database.StoredIdentity{StudentID: "", Embedding: vec128(1)}))
	if other.Len() != 1 {
		t.Errorf("expected invalid entries to be skipped, got %d", other.Len())
	}
}

func TestStore_RemoveLatest(t *testing.T) {
	s := NewStore("")
	_ = s.Add(Identity{ID: "s1", Name: "Alice", Embedding: vec128(1)})
	_ = s.Add(Identity{ID: "s2", Name: "Bob", Embedding: vec128(0, 1)})
	_ = s.Add(Identity{ID: "s1", Name: "Alice", Embedding: make([]float32, 576)})

	if !s.RemoveLatest("s1") {
		t.Fatal("expected a sample removed")
	}
	snap := s.Snapshot()
	if len(snap) != 2 || snap[0].ID != "s1" || len(snap[0].Embedding) != 128 || snap[1].ID != "s2" {
		t.Errorf("expected only the newest s1 sample gone, got %+v", snap)
	}
	if s.RemoveLatest("nobody") {
		t.Error("expected nothing removed for unknown student")
	}
}
