// Package jobs tracks background pipelines until the shell observes that they
// have finished.
package jobs

import (
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"
)

// DefaultCapacity is the number of jobs a table holds when no capacity is
// configured.
const DefaultCapacity = 1024

var (
	// ErrCapacityExceeded is returned by Add when the table is full. The process
	// keeps running but is no longer tracked by the shell.
	ErrCapacityExceeded = errors.New("maximum number of background jobs reached")

	// ErrDuplicateJob is returned by Add if the pid already belongs to a live job.
	ErrDuplicateJob = errors.New("process is already a tracked job")
)

// Outcome is what a reap pass observed for a single job.
type Outcome int

const (
	// StillRunning jobs are kept in the table.
	StillRunning Outcome = iota
	// Exited jobs have been reaped and removed from the table.
	Exited
	// CheckFailed jobs could not be checked and were removed from the table so
	// a stale pid isn't retried forever.
	CheckFailed
)

// Report is produced by Reap for every job in the table.
type Report struct {
	Job     Job
	Outcome Outcome
	// Status holds the exit code for Exited jobs.
	Status int
	// Err holds the status check error for CheckFailed jobs.
	Err error
}

// Table is a bounded, insertion ordered collection of background jobs keyed by
// pid.
//
// The lock is only held while the table itself is read or modified, never
// while a process is being checked, so a slow status check can't stall Add.
type Table struct {
	poller   Poller
	capacity int
	now      func() time.Time

	mu     sync.Mutex
	jobs   map[int]*Job
	order  []int
	nextID int
	// strays are pipeline members whose job was already removed.
	strays []int
}

// NewTable creates a table holding at most capacity jobs. A nil poller uses
// WaitPoller and a non-positive capacity uses DefaultCapacity.
func NewTable(capacity int, poller Poller) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if poller == nil {
		poller = WaitPoller{}
	}

	return &Table{
		poller:   poller,
		capacity: capacity,
		now:      time.Now,
		jobs:     make(map[int]*Job),
		nextID:   1,
	}
}

// Cap returns the maximum number of jobs the table tracks.
func (t *Table) Cap() int {
	return t.capacity
}

// Len returns the number of live jobs.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.order)
}

// Add starts tracking pid as a Running job. The label is copied into the job.
// members are the other processes of the pipeline, they're reaped during
// Reap passes but never reported.
func (t *Table) Add(pid int, label string, members ...int) (Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.jobs[pid]; ok {
		return Job{}, fmt.Errorf("%d: %w", pid, ErrDuplicateJob)
	}
	if len(t.order) >= t.capacity {
		return Job{}, fmt.Errorf("%d jobs: %w", t.capacity, ErrCapacityExceeded)
	}

	job := &Job{
		ID:      t.nextID,
		PID:     pid,
		Label:   label,
		State:   Running,
		Started: t.now(),
		members: append([]int(nil), members...),
	}
	t.nextID++
	t.jobs[pid] = job
	t.order = append(t.order, pid)

	return *job, nil
}

// List returns a snapshot of the jobs in insertion order without checking
// their status.
func (t *Table) List() []Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Job, 0, len(t.order))
	for _, pid := range t.order {
		out = append(out, *t.jobs[pid])
	}
	return out
}

// Reap checks every job without blocking and yields a report for each in
// insertion order. Jobs that exited, or whose status can't be checked, are
// removed before their report is yielded so they never appear in a later pass.
//
// Jobs added while the sequence is being consumed are checked on the next
// pass.
func (t *Table) Reap() iter.Seq[Report] {
	return func(yield func(Report) bool) {
		t.reapStrays()

		for _, pid := range t.snapshot() {
			job, ok := t.get(pid)
			if !ok {
				continue
			}
			if !yield(t.check(job)) {
				return
			}
		}
	}
}

// ReapAll runs a complete Reap pass and collects the reports.
func (t *Table) ReapAll() []Report {
	var out []Report
	for report := range t.Reap() {
		out = append(out, report)
	}
	return out
}

// Clear drops every job without checking or waiting on them and returns how
// many were dropped. The processes are left to the operating system.
func (t *Table) Clear() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.order)
	t.jobs = make(map[int]*Job)
	t.order = nil
	t.strays = nil
	return n
}

func (t *Table) check(job Job) Report {
	job.members = t.pollMembers(job.PID, job.members)

	status, err := t.poller.Poll(job.PID)
	switch {
	case err != nil:
		t.remove(job.PID)
		return Report{Job: job, Outcome: CheckFailed, Err: err}
	case status.Exited:
		t.remove(job.PID)
		job.State = Finished
		return Report{Job: job, Outcome: Exited, Status: status.Code}
	default:
		return Report{Job: job, Outcome: StillRunning}
	}
}

// pollMembers reaps the pipeline members of pid that have exited and returns
// the ones still running.
func (t *Table) pollMembers(pid int, members []int) []int {
	var running []int
	for _, member := range members {
		status, err := t.poller.Poll(member)
		if err == nil && !status.Exited {
			running = append(running, member)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if job, ok := t.jobs[pid]; ok {
		job.members = running
	}
	return running
}

func (t *Table) reapStrays() {
	t.mu.Lock()
	strays := t.strays
	t.strays = nil
	t.mu.Unlock()

	var running []int
	for _, pid := range strays {
		status, err := t.poller.Poll(pid)
		if err == nil && !status.Exited {
			running = append(running, pid)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.strays = append(t.strays, running...)
}

func (t *Table) snapshot() []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]int(nil), t.order...)
}

func (t *Table) get(pid int) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[pid]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

func (t *Table) remove(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[pid]
	if !ok {
		return
	}
	delete(t.jobs, pid)
	t.strays = append(t.strays, job.members...)

	for i, p := range t.order {
		if p == pid {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}
