package jobs

import (
	"fmt"
	"time"
)

// State is the last observed state of a background job.
type State int

const (
	Running State = iota
	Finished
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Finished:
		return "Finished"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Job is the trailing process of a backgrounded pipeline.
type Job struct {
	// ID is the display number, assigned in insertion order starting at 1.
	ID int
	// PID of the process the shell must eventually reap.
	PID int
	// Label describes the job, usually the command line that started it.
	Label string
	State State
	// Started is when the job was added to the table.
	Started time.Time

	// members are the other processes of the same pipeline.
	members []int
}
