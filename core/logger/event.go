package logger

// EventType names a kind of recorded event.
type EventType string

const (
	SessionStart     EventType = "session_start"
	SessionEnd       EventType = "session_end"
	ParseFailed      EventType = "parse_failed"
	PipelineLaunched EventType = "pipeline_launched"
	PipelineFinished EventType = "pipeline_finished"
	LaunchFailed     EventType = "launch_failed"
	JobStarted       EventType = "job_started"
	JobFinished      EventType = "job_finished"
	JobEvicted       EventType = "job_evicted"
	CapacityExceeded EventType = "capacity_exceeded"
	JobsCleared      EventType = "jobs_cleared"
)

// Event is a single entry of the event log.
type Event struct {
	TimestampMicros int64     `json:"timestamp_micros"`
	SessionID       string    `json:"session_id,omitempty"`
	Type            EventType `json:"type"`

	// Line is the command line the event is about.
	Line string `json:"line,omitempty"`
	// Program is the first program of the pipeline.
	Program string `json:"program,omitempty"`
	// Stages is the number of stages in the pipeline.
	Stages int `json:"stages,omitempty"`

	PID    int  `json:"pid,omitempty"`
	JobID  int  `json:"job_id,omitempty"`
	Status *int `json:"status,omitempty"`
	// Count is the number of jobs affected, used by JobsCleared.
	Count int `json:"count,omitempty"`

	Error string `json:"error,omitempty"`
}

// IntPtr returns a pointer to v, for Event.Status.
func IntPtr(v int) *int {
	return &v
}
