// Package launcher starts the processes of a pipeline and either waits for it
// or hands its trailing process to the job table.
package launcher

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/josephlewis42/jobsh/core/jobs"
	"github.com/josephlewis42/jobsh/core/pipeline"
	"golang.org/x/sys/unix"
)

// StageResult is what happened to one stage of a launched pipeline.
type StageResult struct {
	Argv pipeline.Stage
	// PID is 0 if the stage was never started.
	PID int
	// Status is the exit status for waited on stages and stages that failed to
	// start. It is 0 for stages of background pipelines.
	Status int
	// Err is the launch error of the stage, if any.
	Err error
}

// Started reports whether a process was created for the stage.
func (s StageResult) Started() bool {
	return s.PID > 0
}

// Result describes a launched pipeline.
type Result struct {
	Stages []StageResult
	// Status is the exit status of the trailing stage of a foreground pipeline.
	Status int
	// Job is the tracked job of a background pipeline, nil if it isn't tracked.
	Job *jobs.Job
}

// Started returns the number of stages a process was created for.
func (r *Result) Started() int {
	n := 0
	for _, stage := range r.Stages {
		if stage.Started() {
			n++
		}
	}
	return n
}

// Launcher starts pipelines.
type Launcher struct {
	// Stdin, Stdout and Stderr are the shell's streams, inherited by stages
	// that aren't redirected or piped.
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	// Dir is the working directory of started programs, empty for the shell's.
	Dir string
	// Env is the environment of started programs, nil for the shell's.
	Env []string

	// Jobs receives the trailing process of background pipelines.
	Jobs *jobs.Table

	// pipe creates inter-stage pipes, os.Pipe if nil.
	pipe func() (r, w *os.File, err error)
}

// New creates a launcher attached to the process's standard streams.
func New(table *jobs.Table) *Launcher {
	return &Launcher{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Jobs:   table,
	}
}

// Launch builds the plan for the pipeline and runs it. The label describes
// background jobs, the pipeline itself is used if it's empty.
func (l *Launcher) Launch(p *pipeline.Pipeline, label string) (*Result, error) {
	plan, err := pipeline.Build(p)
	if err != nil {
		return nil, err
	}
	if label == "" {
		label = p.String()
	}
	return l.Run(plan, label)
}

// Run starts one process per stage of the plan.
//
// Stages that fail to start are reported and skipped, their neighbours see
// end of file or a broken pipe. A failure to create a pipe or a process stops
// the remaining stages from being started, already started stages are left
// running.
//
// Foreground pipelines are waited on, the trailing stage first. Background
// pipelines are registered in the job table and Run returns immediately. The
// returned error joins every stage error and a job table error, if any.
//
// Every descriptor Run opens is closed before it returns.
func (l *Launcher) Run(plan *pipeline.Plan, label string) (*Result, error) {
	res := &Result{Stages: make([]StageResult, len(plan.Stages))}
	cmds := make([]*exec.Cmd, len(plan.Stages))
	var errs []error

	// reads holds the read end of every pipe until the stage reading from it
	// has been started.
	reads := make([]*os.File, plan.Pipes)
	closeReads := func() {
		for k, r := range reads {
			closeFile(r)
			reads[k] = nil
		}
	}

	pgid := 0
	aborted := false

	for i, sp := range plan.Stages {
		res.Stages[i].Argv = sp.Argv

		if aborted {
			res.Stages[i].Status = StatusLaunchFailed
			continue
		}

		var pipeIn, pipeOut *os.File
		if sp.Stdin.Kind == pipeline.Pipe {
			pipeIn = reads[sp.Stdin.Pipe]
			reads[sp.Stdin.Pipe] = nil
		}
		if sp.Stdout.Kind == pipeline.Pipe {
			r, w, err := l.newPipe()
			if err != nil {
				stageErr := &StageError{Stage: i, Argv: sp.Argv, Kind: ErrPipe, Err: err}
				res.Stages[i].Status = stageErr.Status()
				res.Stages[i].Err = stageErr
				errs = append(errs, stageErr)
				closeFile(pipeIn)
				closeReads()
				aborted = true
				continue
			}
			reads[sp.Stdout.Pipe] = r
			pipeOut = w
		}

		cmd, stageErr := l.start(i, sp, pipeIn, pipeOut, plan.Background, pgid)

		// The child has its own copies now, or failed to start.
		closeFile(pipeIn)
		closeFile(pipeOut)

		if stageErr != nil {
			res.Stages[i].Status = stageErr.Status()
			res.Stages[i].Err = stageErr
			errs = append(errs, stageErr)
			if stageErr.Fatal() {
				closeReads()
				aborted = true
			}
			continue
		}

		cmds[i] = cmd
		res.Stages[i].PID = cmd.Process.Pid
		if plan.Background && pgid == 0 {
			pgid = cmd.Process.Pid
		}
	}
	closeReads()

	if plan.Background {
		if err := l.track(res, cmds, label); err != nil {
			errs = append(errs, err)
		}
	} else {
		l.wait(res, cmds, plan.Last())
	}

	return res, errors.Join(errs...)
}

// start creates the process for a single stage. pipeIn and pipeOut are the
// pipe ends for Pipe bindings, they are owned by the caller.
func (l *Launcher) start(i int, sp pipeline.StagePlan, pipeIn, pipeOut *os.File, background bool, pgid int) (*exec.Cmd, *StageError) {
	stdin, err := l.input(sp.Stdin, pipeIn, background)
	if err != nil {
		return nil, &StageError{Stage: i, Argv: sp.Argv, Kind: ErrRedirect, Err: err}
	}
	if sp.Stdin.Kind == pipeline.File {
		defer stdin.Close()
	}

	stdout, err := l.output(sp.Stdout, pipeOut)
	if err != nil {
		return nil, &StageError{Stage: i, Argv: sp.Argv, Kind: ErrRedirect, Err: err}
	}
	if sp.Stdout.Kind == pipeline.File {
		defer stdout.Close()
	}

	cmd := exec.Command(sp.Argv[0], sp.Argv[1:]...)
	cmd.Dir = l.Dir
	cmd.Env = l.Env
	// Only assign non-nil files, a nil *os.File in an io.Reader isn't nil.
	if stdin != nil {
		cmd.Stdin = stdin
	}
	if stdout != nil {
		cmd.Stdout = stdout
	}
	if l.Stderr != nil {
		cmd.Stderr = l.Stderr
	}
	if background {
		// Keep terminal interrupts meant for the foreground away from jobs.
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pgid: pgid}
	}

	if err := cmd.Start(); err != nil {
		return nil, startError(i, sp.Argv, err)
	}
	return cmd, nil
}

// input resolves the standard input of a stage. A nil file gives the process
// /dev/null.
func (l *Launcher) input(b pipeline.Binding, pipeIn *os.File, background bool) (*os.File, error) {
	switch b.Kind {
	case pipeline.File:
		return os.Open(l.path(b.Path))
	case pipeline.Pipe:
		return pipeIn, nil
	default:
		if background {
			return nil, nil
		}
		return l.Stdin, nil
	}
}

// output resolves the standard output of a stage. A nil file gives the process
// /dev/null.
func (l *Launcher) output(b pipeline.Binding, pipeOut *os.File) (*os.File, error) {
	switch b.Kind {
	case pipeline.File:
		return os.OpenFile(l.path(b.Path), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	case pipeline.Pipe:
		return pipeOut, nil
	default:
		return l.Stdout, nil
	}
}

func (l *Launcher) newPipe() (r, w *os.File, err error) {
	if l.pipe != nil {
		return l.pipe()
	}
	return os.Pipe()
}

// path resolves a redirect target relative to the working directory of
// started programs.
func (l *Launcher) path(p string) string {
	if l.Dir == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(l.Dir, p)
}

// wait blocks until the trailing stage exits, then collects the others so
// they don't linger as zombies.
func (l *Launcher) wait(res *Result, cmds []*exec.Cmd, last int) {
	if cmd := cmds[last]; cmd != nil {
		res.Stages[last].Status = waitStatus(cmd)
	}
	res.Status = res.Stages[last].Status

	for i, cmd := range cmds {
		if i == last || cmd == nil {
			continue
		}
		res.Stages[i].Status = waitStatus(cmd)
	}
}

// track registers the last started stage as a job. The processes are released
// because they are reaped through the job table from now on.
func (l *Launcher) track(res *Result, cmds []*exec.Cmd, label string) error {
	trailing := -1
	var members []int
	for i, cmd := range cmds {
		if cmd == nil {
			continue
		}
		if trailing >= 0 {
			members = append(members, res.Stages[trailing].PID)
		}
		trailing = i
	}
	if trailing < 0 {
		return nil
	}

	for _, cmd := range cmds {
		if cmd != nil {
			cmd.Process.Release()
		}
	}

	job, err := l.Jobs.Add(res.Stages[trailing].PID, label, members...)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	res.Job = &job
	return nil
}

func waitStatus(cmd *exec.Cmd) int {
	// A non-zero exit is read back from ProcessState.
	cmd.Wait()
	state := cmd.ProcessState
	if state == nil {
		return StatusLaunchFailed
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok {
		return jobs.ExitCode(unix.WaitStatus(ws))
	}
	return state.ExitCode()
}

func closeFile(f *os.File) {
	if f != nil {
		f.Close()
	}
}
