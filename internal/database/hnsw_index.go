package database

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// IndexedIdentity is the metadata kept for every node of the identity index.
type IndexedIdentity struct {
	Key       int64
	StudentID string
	Name      string
	Embedding []float32
}

// Neighbor is a single search hit with its cosine distance to the query.
type Neighbor struct {
	StudentID string
	Name      string
	Distance  float64
}

// IdentityIndex wraps one HNSW graph per embedding dimensionality so that
// vectors of different lengths are never compared.
type IdentityIndex struct {
	graphs   map[int]*hnsw.Graph[int64]
	idToFace map[int64]*IndexedIdentity // Maps HNSW node key to identity
	nextKey  int64
	mu       sync.RWMutex
}

// NewIdentityIndex creates a new empty index.
func NewIdentityIndex() *IdentityIndex {
	return &IdentityIndex{
		graphs:   make(map[int]*hnsw.Graph[int64]),
		idToFace: make(map[int64]*IndexedIdentity),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index contents with the given identities.
func (h *IdentityIndex) Build(identities []StoredIdentity) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.graphs = make(map[int]*hnsw.Graph[int64])
	h.idToFace = make(map[int64]*IndexedIdentity, len(identities))
	h.nextKey = 0

	for i := range identities {
		h.addLocked(identities[i].StudentID, identities[i].Name, identities[i].Embedding)
	}
}

// Add adds a single identity embedding to the index.
func (h *IdentityIndex) Add(studentID, name string, embedding []float32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.addLocked(studentID, name, embedding)
}

func (h *IdentityIndex) addLocked(studentID, name string, embedding []float32) {
	if len(embedding) == 0 {
		return
	}
	g, ok := h.graphs[len(embedding)]
	if !ok {
		g = newGraph()
		h.graphs[len(embedding)] = g
	}
	h.nextKey++
	key := h.nextKey
	g.Add(hnsw.MakeNode(key, embedding))
	h.idToFace[key] = &IndexedIdentity{Key: key, StudentID: studentID, Name: name, Embedding: embedding}
}

// Search finds the k nearest identities with the same dimensionality as query.
// Results are ordered by ascending cosine distance.
func (h *IdentityIndex) Search(query []float32, k int) []Neighbor {
	h.mu.RLock()
	defer h.mu.RUnlock()

	g, ok := h.graphs[len(query)]
	if !ok || g.Len() == 0 || k <= 0 {
		return nil
	}

	nodes := g.Search(query, k)
	result := make([]Neighbor, 0, len(nodes))
	for _, n := range nodes {
		face, ok := h.idToFace[n.Key]
		if !ok {
			continue
		}
		result = append(result, Neighbor{
			StudentID: face.StudentID,
			Name:      face.Name,
			Distance:  CosineDistance(query, n.Value),
		})
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Distance < result[j].Distance })
	return result
}

// NearestOther returns the closest indexed identity whose student ID differs
// from studentID, if it lies within maxDistance.
func (h *IdentityIndex) NearestOther(studentID string, query []float32, maxDistance float64) (Neighbor, bool) {
	// Ask for a few extra candidates since the subject's own samples come first.
	for _, n := range h.Search(query, 8) {
		if n.StudentID == studentID {
			continue
		}
		if n.Distance <= maxDistance {
			return n, true
		}
		break
	}
	return Neighbor{}, false
}

// Count returns the number of indexed embeddings.
func (h *IdentityIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToFace)
}

// Dimensions returns the embedding lengths present in the index.
func (h *IdentityIndex) Dimensions() []int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	dims := make([]int, 0, len(h.graphs))
	for d := range h.graphs {
		dims = append(dims, d)
	}
	sort.Ints(dims)
	return dims
}

// Entries returns a copy of the indexed identities in key order.
func (h *IdentityIndex) Entries() []IndexedIdentity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]IndexedIdentity, 0, len(h.idToFace))
	for _, face := range h.idToFace {
		out = append(out, *face)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Save exports every graph to "<path>.<dim>" and the node metadata to "<path>.faces".
func (h *IdentityIndex) Save(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.idToFace) == 0 {
		return errors.New("index is empty")
	}

	for dim, g := range h.graphs {
		if err := exportGraph(g, fmt.Sprintf("%s.%d", path, dim)); err != nil {
			return err
		}
	}

	faces := make([]IndexedIdentity, 0, len(h.idToFace))
	for _, face := range h.idToFace {
		faces = append(faces, *face)
	}
	if err := saveIndexMetadata(path, faces); err != nil {
		return fmt.Errorf("failed to save index metadata: %w", err)
	}
	return nil
}

func exportGraph(g *hnsw.Graph[int64], path string) error {
	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	defer f.Close()

	if err := g.Export(f); err != nil {
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}
	return nil
}

// Load replaces the index with graphs and metadata previously written by Save.
func (h *IdentityIndex) Load(path string) error {
	faces, err := loadIndexMetadata(path)
	if err != nil {
		return fmt.Errorf("failed to load index metadata: %w", err)
	}

	graphs := make(map[int]*hnsw.Graph[int64])
	idToFace := make(map[int64]*IndexedIdentity, len(faces))
	var maxKey int64
	for i := range faces {
		face := &faces[i]
		idToFace[face.Key] = face
		maxKey = max(maxKey, face.Key)

		dim := len(face.Embedding)
		if _, ok := graphs[dim]; ok {
			continue
		}
		graphPath := fmt.Sprintf("%s.%d", path, dim)
		saved, err := hnsw.LoadSavedGraph[int64](graphPath)
		if err != nil {
			return fmt.Errorf("failed to load HNSW index %s: %w", graphPath, err)
		}
		graphs[dim] = saved.Graph
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.graphs = graphs
	h.idToFace = idToFace
	h.nextKey = maxKey
	return nil
}

func saveIndexMetadata(path string, faces []IndexedIdentity) error {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(faces); err != nil {
		return fmt.Errorf("failed to encode faces: %w", err)
	}

	if err := os.WriteFile(path+".faces", buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write faces file: %w", err)
	}
	return nil
}

func loadIndexMetadata(path string) ([]IndexedIdentity, error) {
	data, err := os.ReadFile(path + ".faces") //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("failed to read faces file: %w", err)
	}

	var faces []IndexedIdentity
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&faces); err != nil {
		return nil, fmt.Errorf("failed to decode faces: %w", err)
	}
	return faces, nil
}
