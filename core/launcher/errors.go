package launcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os/exec"

	"github.com/josephlewis42/jobsh/core/pipeline"
	"golang.org/x/sys/unix"
)

// Exit statuses reported for stages that never ran their program.
const (
	// StatusLaunchFailed is used when a stage's descriptors couldn't be set up
	// or its process couldn't be created.
	StatusLaunchFailed = 1
	// StatusNotExecutable is used when the program exists but can't be run.
	StatusNotExecutable = 126
	// StatusExecFailed is used when the program can't be found.
	StatusExecFailed = 127
)

var (
	// ErrPipe means an inter-stage pipe couldn't be created. The remaining
	// stages of the pipeline are not started.
	ErrPipe = errors.New("create pipe")
	// ErrSpawn means the operating system couldn't create a process. The
	// remaining stages of the pipeline are not started.
	ErrSpawn = errors.New("create process")
	// ErrRedirect means a redirect target couldn't be opened. Only the stage
	// using it is affected.
	ErrRedirect = errors.New("redirect")
	// ErrExec means the program couldn't be found or executed. Only the stage
	// running it is affected.
	ErrExec = errors.New("execute")
)

// StageError is a failure to launch a single stage. It matches its Kind and
// underlying error with errors.Is.
type StageError struct {
	// Stage is the index of the stage in the pipeline.
	Stage int
	Argv  pipeline.Stage
	// Kind is one of ErrPipe, ErrSpawn, ErrRedirect or ErrExec.
	Kind error
	Err  error
}

func (e *StageError) Error() string {
	if errors.Is(e.Err, exec.ErrNotFound) {
		return fmt.Sprintf("%s: command not found", e.Argv.Name())
	}
	return fmt.Sprintf("%s: %v: %v", e.Argv.Name(), e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Status is the exit status the stage is reported with.
func (e *StageError) Status() int {
	switch {
	case e.Kind != ErrExec:
		return StatusLaunchFailed
	case errors.Is(e.Err, fs.ErrPermission):
		return StatusNotExecutable
	default:
		return StatusExecFailed
	}
}

// Fatal reports whether the failure prevents the rest of the pipeline from
// being started.
func (e *StageError) Fatal() bool {
	return e.Kind == ErrPipe || e.Kind == ErrSpawn
}

// startError classifies an error returned by exec.Cmd.Start.
func startError(stage int, argv pipeline.Stage, err error) *StageError {
	kind := ErrSpawn

	// os.StartProcess wraps every error in a PathError, resource exhaustion
	// while forking is told apart by its errno.
	var execErr *exec.Error
	var pathErr *fs.PathError
	switch {
	case errors.As(err, &execErr):
		kind = ErrExec
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.ENOMEM):
		kind = ErrSpawn
	case errors.As(err, &pathErr):
		kind = ErrExec
	}

	return &StageError{Stage: stage, Argv: argv, Kind: kind, Err: err}
}
