package recognition

import (
	"math"

	"github.com/kozaktomas/rollcall/internal/database"
)

// BiometricDim is the length of the encodings produced by the biometric
// encoder. Vectors of this length are compared by Euclidean distance; all
// other lengths by cosine similarity.
const BiometricDim = 128

// Match is the outcome of scoring one embedding. ID is empty when nothing was
// accepted; Confidence then holds the best score observed.
type Match struct {
	ID         string
	Name       string
	Confidence float64
}

// OK reports whether an identity was accepted.
func (m Match) OK() bool {
	return m.ID != ""
}

// Thresholds are the minimum confidences for accepting a candidate.
type Thresholds struct {
	Euclidean float64 // for BiometricDim encodings
	Cosine    float64 // for every other dimensionality
}

// For returns the threshold that applies to embeddings of the given length.
func (t Thresholds) For(dim int) float64 {
	if dim == BiometricDim {
		return t.Euclidean
	}
	return t.Cosine
}

// Matcher scores embeddings against a Store.
type Matcher struct {
	store      *Store
	thresholds Thresholds
}

// NewMatcher creates a matcher over store.
func NewMatcher(store *Store, thresholds Thresholds) *Matcher {
	return &Matcher{store: store, thresholds: thresholds}
}

// Confidence scores a query against one known embedding of the same length.
// Biometric encodings map distance d to 1/(1+d); others use cosine similarity.
func Confidence(query, known []float32) float64 {
	if len(query) == BiometricDim {
		return 1 / (1 + database.EuclideanDistance(query, known))
	}
	return database.CosineSimilarity(query, known)
}

// Recognize returns the best-scoring known identity if it reaches the
// threshold for the query's dimensionality. Entries of a different length are
// skipped. Ties go to the entry enrolled first.
func (m *Matcher) Recognize(embedding []float32) Match {
	if len(embedding) == 0 {
		return Match{}
	}

	m.store.mu.RLock()
	defer m.store.mu.RUnlock()

	best := -1
	bestConf := math.Inf(-1)
	for i := range m.store.identities {
		known := m.store.identities[i].Embedding
		if len(known) != len(embedding) {
			continue
		}
		if conf := Confidence(embedding, known); conf > bestConf {
			best = i
			bestConf = conf
		}
	}

	if best < 0 {
		return Match{}
	}
	if bestConf < m.thresholds.For(len(embedding)) {
		return Match{Confidence: bestConf}
	}
	ident := m.store.identities[best]
	return Match{ID: ident.ID, Name: ident.Name, Confidence: bestConf}
}
