package pipeline

import (
	"math"
	"strings"

	"github.com/kozaktomas/rollcall/internal/database"
)

// Status is the per-detection attendance verdict returned to the caller.
type Status string

const (
	StatusPresent Status = "present"
	StatusLate    Status = "late"
	StatusAbsent  Status = "absent"
	StatusUnknown Status = "unknown"
)

// Outcome says whether a detection led to a stored record.
type Outcome string

const (
	OutcomeRecorded        Outcome = "recorded"
	OutcomeAlreadyRecorded Outcome = "already_recorded"
	OutcomeSkipped         Outcome = "skipped"
)

// SessionStatus describes the session a frame was submitted to.
type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionInactive SessionStatus = "inactive"
	SessionNotFound SessionStatus = "not_found"
)

// Face is the outcome for one detection, in detector order.
type Face struct {
	BoundingBox   [4]int  `json:"bounding_box"`
	StudentID     string  `json:"student_id,omitempty"`
	StudentName   string  `json:"student_name,omitempty"`
	Confidence    int     `json:"confidence"`
	Status        Status  `json:"status"`
	Outcome       Outcome `json:"outcome"`
	LivenessScore float64 `json:"liveness_score"`
	CacheHit      bool    `json:"cache_hit"`
}

// FrameResult is the response for one processed frame.
type FrameResult struct {
	FrameID       string        `json:"frame_id"`
	SessionID     int64         `json:"session_id"`
	SessionStatus SessionStatus `json:"session_status"`
	FrameWidth    int           `json:"frame_width"`
	FrameHeight   int           `json:"frame_height"`
	Faces         []Face        `json:"faces"`
}

// Percent converts a [0,1] confidence into an integer percentage.
func Percent(confidence float64) int {
	p := int(math.Round(confidence * 100))
	return min(max(p, 0), 100)
}

func statusOf(s database.AttendanceStatus) Status {
	return Status(strings.ToLower(string(s)))
}
