package pipeline

import (
	"github.com/robfig/cron/v3"
)

const (
	LabelEdgeDetection = "Edge Detection"
	LabelRawCamera     = "Raw Camera"

	// StatusSpec refreshes status once per second.
	StatusSpec = "@every 1s"
)

// ModeLabel names the processing mode for display.
func ModeLabel(processing bool) string {
	if processing {
		return LabelEdgeDetection
	}
	return LabelRawCamera
}

// Status is a point-in-time view of the pipeline.
type Status struct {
	Mode        string  `json:"mode"`
	Processing  bool    `json:"processing"`
	FPS         float64 `json:"fps"`
	CameraID    string  `json:"camera_id"`
	CameraState string  `json:"camera_state"`
	SessionID   string  `json:"session_id,omitempty"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Presented   uint64  `json:"frames_presented"`
	Skipped     uint64  `json:"frames_skipped"`
	Degraded    bool    `json:"degraded"`
	Reason      string  `json:"reason,omitempty"`
}

// ScheduleStatus calls fn with a fresh Status on every tick of spec.
func (o *Orchestrator) ScheduleStatus(c *cron.Cron, spec string, fn func(Status)) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		fn(o.Status())
	})
}
