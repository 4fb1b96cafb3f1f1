package notify

import (
	"time"

	framecollector "github.com/e7canasta/orion-care-sensor/modules/frame-collector"
)

// FrameSavedEvent is published on <prefix>/saved after each archived frame
type FrameSavedEvent struct {
	SessionID    string    `json:"session_id" msgpack:"session_id"`
	SourceStream string    `json:"source_stream,omitempty" msgpack:"source_stream,omitempty"`
	Path         string    `json:"path" msgpack:"path"`
	CaptureTime  time.Time `json:"capture_time" msgpack:"capture_time"`
	Sequence     uint64    `json:"sequence" msgpack:"sequence"`
	FrameSeq     uint64    `json:"frame_seq" msgpack:"frame_seq"`
	Difference   float64   `json:"difference" msgpack:"difference"`
	Fingerprint  string    `json:"fingerprint" msgpack:"fingerprint"`
}

// SessionSummaryEvent is published on <prefix>/summary when a session ends
type SessionSummaryEvent struct {
	SessionID    string `json:"session_id" msgpack:"session_id"`
	SourceStream string `json:"source_stream,omitempty" msgpack:"source_stream,omitempty"`
	Policy       string `json:"policy" msgpack:"policy"`
	StopReason   string `json:"stop_reason" msgpack:"stop_reason"`
	FramesRead   uint64 `json:"frames_read" msgpack:"frames_read"`
	FramesSaved  uint64 `json:"frames_saved" msgpack:"frames_saved"`
	SaveFailures uint64 `json:"save_failures" msgpack:"save_failures"`
	ReadFailures uint64 `json:"read_failures" msgpack:"read_failures"`
	Reopens      uint32 `json:"reopens" msgpack:"reopens"`
	DurationMS   int64  `json:"duration_ms" msgpack:"duration_ms"`
}

func newFrameSavedEvent(rec framecollector.SavedFrameRecord, sourceStream string) FrameSavedEvent {
	return FrameSavedEvent{
		SessionID:    rec.SessionID,
		SourceStream: sourceStream,
		Path:         rec.Path,
		CaptureTime:  rec.CaptureTime,
		Sequence:     rec.Sequence,
		FrameSeq:     rec.FrameSeq,
		Difference:   rec.Difference,
		Fingerprint:  rec.Fingerprint,
	}
}

func newSessionSummaryEvent(sum framecollector.Summary, sourceStream string) SessionSummaryEvent {
	return SessionSummaryEvent{
		SessionID:    sum.SessionID,
		SourceStream: sourceStream,
		Policy:       sum.Policy,
		StopReason:   sum.StopReason.String(),
		FramesRead:   sum.FramesRead,
		FramesSaved:  sum.FramesSaved,
		SaveFailures: sum.SaveFailures,
		ReadFailures: sum.ReadFailures,
		Reopens:      sum.Reopens,
		DurationMS:   sum.Duration.Milliseconds(),
	}
}
