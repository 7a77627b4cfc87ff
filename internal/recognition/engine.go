package recognition

import (
	"context"
	"image"
	"sync"

	"github.com/kozaktomas/rollcall/internal/fingerprint"
)

// EngineConfig describes how the engine builds its components on first use.
type EngineConfig struct {
	FaceDatabasePath string
	Thresholds       Thresholds
	Vision           *fingerprint.VisionClient // nil selects the gradient extractor
}

// Engine owns the process-wide recognition state: the known-face store, the
// matcher and the feature extractor. Components are created on first use
// under a lock and are safe for concurrent readers afterwards.
type Engine struct {
	mu          sync.Mutex
	cfg         EngineConfig
	initialized bool

	store     *Store
	matcher   *Matcher
	extractor fingerprint.Extractor
}

// NewEngine creates an engine that initializes lazily.
func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{cfg: cfg}
}

// NewEngineWith creates an already initialized engine around existing components.
func NewEngineWith(store *Store, extractor fingerprint.Extractor, thresholds Thresholds) *Engine {
	return &Engine{
		cfg:         EngineConfig{FaceDatabasePath: store.Path(), Thresholds: thresholds},
		initialized: true,
		store:       store,
		matcher:     NewMatcher(store, thresholds),
		extractor:   extractor,
	}
}

func (e *Engine) ensure(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized {
		return
	}
	e.store = OpenStore(e.cfg.FaceDatabasePath)
	e.matcher = NewMatcher(e.store, e.cfg.Thresholds)
	e.extractor = fingerprint.SelectExtractor(ctx, e.cfg.Vision)
	e.initialized = true
}

// Store returns the known-face store.
func (e *Engine) Store(ctx context.Context) *Store {
	e.ensure(ctx)
	return e.store
}

// Matcher returns the matcher over the store.
func (e *Engine) Matcher(ctx context.Context) *Matcher {
	e.ensure(ctx)
	return e.matcher
}

// Extractor returns the feature extractor chosen at initialization.
func (e *Engine) Extractor(ctx context.Context) fingerprint.Extractor {
	e.ensure(ctx)
	return e.extractor
}

// Extract runs the extractor on a face crop. A nil vector means no usable face.
func (e *Engine) Extract(ctx context.Context, crop image.Image) ([]float32, error) {
	return e.Extractor(ctx).Extract(ctx, crop)
}

// Recognize scores an embedding against the store.
func (e *Engine) Recognize(ctx context.Context, embedding []float32) Match {
	return e.Matcher(ctx).Recognize(embedding)
}
