package logger

import (
	"strconv"
)

// Report holds statistics about the logged events.
type Report struct {
	LogEntries int        `json:"log_entries"`
	Sessions   int        `json:"sessions"`
	EventTypes StrCounter `json:"event_types"`

	Pipelines PipelineReport `json:"pipeline_report"`
	Jobs      JobReport      `json:"job_report"`
	Failures  *PathCounter   `json:"failures"`
}

// NewReport creates an empty report.
func NewReport() *Report {
	return &Report{
		Failures: NewPathCounter("type", "program", "error"),
	}
}

// Update adds a log entry to the report.
func (r *Report) Update(e *Event) {
	r.LogEntries++
	r.EventTypes.Increment(string(e.Type))

	switch e.Type {
	case SessionStart:
		r.Sessions++
	case PipelineLaunched, PipelineFinished:
		r.Pipelines.update(e)
	case JobStarted, JobFinished, JobEvicted, JobsCleared, CapacityExceeded:
		r.Jobs.update(e)
	}

	switch e.Type {
	case ParseFailed, LaunchFailed, JobEvicted, CapacityExceeded:
		r.Failures.Increment(string(e.Type), e.Program, e.Error)
	}
}

// PipelineReport summarizes the pipelines that were run.
type PipelineReport struct {
	// Programs counts the first program of every launched pipeline.
	Programs StrCounter `json:"programs"`
	// Stages counts pipelines by their length.
	Stages StrCounter `json:"stages"`
	// ExitStatuses counts foreground pipelines by their exit status.
	ExitStatuses StrCounter `json:"exit_statuses"`
}

func (r *PipelineReport) update(e *Event) {
	switch e.Type {
	case PipelineLaunched:
		r.Programs.Increment(e.Program)
		r.Stages.Increment(strconv.Itoa(e.Stages))
	case PipelineFinished:
		if e.Status != nil {
			r.ExitStatuses.Increment(strconv.Itoa(*e.Status))
		}
	}
}

// JobReport summarizes background jobs.
type JobReport struct {
	Started   int `json:"started"`
	Finished  int `json:"finished"`
	Evicted   int `json:"evicted"`
	Untracked int `json:"untracked"`
	// Abandoned counts jobs still running when their shell exited.
	Abandoned int `json:"abandoned"`

	ExitStatuses StrCounter `json:"exit_statuses"`
}

func (r *JobReport) update(e *Event) {
	switch e.Type {
	case JobStarted:
		r.Started++
	case JobFinished:
		r.Finished++
		if e.Status != nil {
			r.ExitStatuses.Increment(strconv.Itoa(*e.Status))
		}
	case JobEvicted:
		r.Evicted++
	case CapacityExceeded:
		r.Untracked++
	case JobsCleared:
		r.Abandoned += e.Count
	}
}
