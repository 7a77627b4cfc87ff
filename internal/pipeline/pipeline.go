// Package pipeline turns a video frame into per-face attendance verdicts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/facematch"
	"github.com/kozaktomas/rollcall/internal/fingerprint"
	"github.com/kozaktomas/rollcall/internal/recognition"
	"github.com/kozaktomas/rollcall/internal/tracking"
)

var (
	// ErrNoDetector is returned when a frame comes without detections and no detector is configured.
	ErrNoDetector = errors.New("no face detector configured and no detections supplied")

	// ErrInvalidFrame is returned when the frame cannot be decoded.
	ErrInvalidFrame = errors.New("invalid frame")

	// ErrDetection is returned when the configured detector fails.
	ErrDetection = errors.New("face detection failed")
)

// Options tune a Pipeline.
type Options struct {
	Detector        fingerprint.Detector        // nil requires callers to supply detections
	Liveness        fingerprint.LivenessChecker // nil treats every face as live
	MinConfidence   float64                     // below this a match is reported but not recorded
	CropPadding     int
	BorderlineScore float64 // failed liveness at or under this score hides the face
	Verbose         bool
}

// Pipeline resolves the faces of a frame through the tracking cache and the
// recognition engine, then records attendance for the session.
type Pipeline struct {
	engine   *recognition.Engine
	sessions *attendance.Sessions
	recorder *attendance.Recorder
	tracker  *tracking.Registry
	opts     Options
	now      func() time.Time
}

// New creates a pipeline.
func New(engine *recognition.Engine, sessions *attendance.Sessions, recorder *attendance.Recorder, tracker *tracking.Registry, opts Options) *Pipeline {
	return &Pipeline{
		engine:   engine,
		sessions: sessions,
		recorder: recorder,
		tracker:  tracker,
		opts:     opts,
		now:      time.Now,
	}
}

func (p *Pipeline) debugf(frameID, format string, args ...any) {
	if p.opts.Verbose {
		log.Printf("[frame %s] "+format, append([]any{frameID}, args...)...)
	}
}

// frame carries the per-frame state shared by all detections.
type frame struct {
	id      string
	img     image.Image
	session *database.Session // nil when the session does not exist
	active  bool
	cache   *tracking.Cache // nil when the session is not active
	now     time.Time
}

// ProcessFrame runs one frame for a session. Detections may be supplied by
// the caller; when nil the configured detector is asked. A completed session
// yields attendance.ErrSessionCompleted and leaves all state untouched.
// Per-face failures never fail the frame.
func (p *Pipeline) ProcessFrame(ctx context.Context, sessionID int64, frameData []byte, detections []facematch.Detection) (*FrameResult, error) {
	f := &frame{id: uuid.NewString(), now: p.now()}
	result := &FrameResult{FrameID: f.id, SessionID: sessionID, Faces: []Face{}}

	session, err := p.sessions.Active(ctx, sessionID)
	switch {
	case err == nil:
		result.SessionStatus = SessionActive
		f.active = true
	case errors.Is(err, attendance.ErrSessionCompleted):
		return nil, err
	case errors.Is(err, attendance.ErrSessionNotActive):
		result.SessionStatus = SessionInactive
	case errors.Is(err, database.ErrNotFound):
		result.SessionStatus = SessionNotFound
	default:
		return nil, err
	}
	f.session = session

	f.img, err = fingerprint.DecodeImage(frameData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	result.FrameWidth = f.img.Bounds().Dx()
	result.FrameHeight = f.img.Bounds().Dy()

	if detections == nil {
		if p.opts.Detector == nil {
			return nil, ErrNoDetector
		}
		detections, err = p.opts.Detector.Detect(ctx, frameData)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDetection, err)
		}
	}

	if f.active {
		f.cache = p.openCache(f, sessionID)
	}

	for _, det := range detections {
		result.Faces = append(result.Faces, p.processDetection(ctx, f, det))
	}
	p.debugf(f.id, "session %d: %d detections processed", sessionID, len(detections))
	return result, nil
}

// openCache returns the session's cache with expired entries removed, or nil
// if the session was closed in the meantime.
func (p *Pipeline) openCache(f *frame, sessionID int64) *tracking.Cache {
	cache, err := p.tracker.Get(sessionID)
	if err != nil {
		p.debugf(f.id, "no tracking cache for session %d: %v", sessionID, err)
		return nil
	}
	if _, err := cache.Prune(f.now); err != nil {
		return nil
	}
	return cache
}

func (p *Pipeline) processDetection(ctx context.Context, f *frame, det facematch.Detection) Face {
	face := Face{
		BoundingBox:   det.Box.Ints(),
		Status:        StatusUnknown,
		Outcome:       OutcomeSkipped,
		LivenessScore: 1.0,
	}
	if !det.Box.Valid() {
		p.debugf(f.id, "skipping invalid box %v", det.Box)
		return face
	}

	region := facematch.PadBox(det.Box, p.opts.CropPadding, f.img.Bounds().Dx(), f.img.Bounds().Dy())
	crop := fingerprint.CropFace(f.img, region)
	if crop == nil {
		p.debugf(f.id, "empty crop for box %v", det.Box)
		return face
	}

	if p.opts.Liveness != nil {
		live, err := p.opts.Liveness.CheckLiveness(ctx, crop)
		if err != nil {
			p.debugf(f.id, "liveness check failed for box %v: %v", det.Box, err)
			return face
		}
		face.LivenessScore = live.Score
		if !live.IsLive {
			if live.Score <= p.opts.BorderlineScore {
				p.debugf(f.id, "box %v rejected by liveness (%.3f)", det.Box, live.Score)
				return face
			}
			p.debugf(f.id, "borderline liveness %.3f for box %v, recognizing anyway", live.Score, det.Box)
		}
	}

	match, hit := p.resolve(ctx, f, det.Box, crop)
	face.CacheHit = hit
	face.Confidence = Percent(match.Confidence)
	if !match.OK() {
		return face
	}
	face.StudentID = match.ID
	face.StudentName = match.Name
	face.Status = StatusAbsent

	if !f.active {
		return face
	}
	if match.Confidence < p.opts.MinConfidence {
		p.debugf(f.id, "%s matched at %.3f, under recording minimum %.3f", match.ID, match.Confidence, p.opts.MinConfidence)
		return face
	}

	window := attendance.Classify(f.session, f.now)
	status, ok := window.Status()
	if !ok {
		p.debugf(f.id, "%s seen after the late window of session %d", match.ID, f.session.ID)
		return face
	}
	face.Status = statusOf(status)

	res, err := p.recorder.Record(ctx, f.session.ID, match.ID, status, match.Confidence, face.LivenessScore)
	if errors.Is(err, attendance.ErrSessionCompleted) {
		p.debugf(f.id, "session %d completed while the frame was processed, %s not recorded", f.session.ID, match.ID)
		return face
	}
	if err != nil {
		log.Printf("Failed to record attendance for %s in session %d: %v", match.ID, f.session.ID, err)
		return face
	}
	face.Status = statusOf(res.Status)
	if res.Outcome == attendance.OutcomeCreated {
		face.Outcome = OutcomeRecorded
		log.Printf("Recorded %s as %s in session %d", match.ID, res.Status, f.session.ID)
	} else {
		face.Outcome = OutcomeAlreadyRecorded
	}
	return face
}

// resolve identifies a face from the cache or, on a miss, by extraction and
// matching. Accepted matches are cached; unknown faces never are.
func (p *Pipeline) resolve(ctx context.Context, f *frame, box facematch.Box, crop image.Image) (recognition.Match, bool) {
	if f.cache != nil {
		entry, ok, err := f.cache.Lookup(box, f.now)
		if err == nil && ok {
			p.debugf(f.id, "cache hit for %s", entry.StudentID)
			return recognition.Match{ID: entry.StudentID, Name: entry.Name, Confidence: entry.Confidence}, true
		}
	}

	embedding, err := p.engine.Extract(ctx, crop)
	if err != nil {
		p.debugf(f.id, "feature extraction failed for box %v: %v", box, err)
		return recognition.Match{}, false
	}
	if embedding == nil {
		p.debugf(f.id, "no features for box %v", box)
		return recognition.Match{}, false
	}

	match := p.engine.Recognize(ctx, embedding)
	if !match.OK() {
		p.debugf(f.id, "unknown face at %v (best %.3f)", box, match.Confidence)
		return match, false
	}
	if f.cache != nil {
		if _, err := f.cache.Insert(box, match.ID, match.Name, match.Confidence, f.now); err != nil {
			p.debugf(f.id, "not caching %s: %v", match.ID, err)
		}
	}
	return match, false
}
