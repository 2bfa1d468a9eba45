package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/josephlewis42/jobsh/core/jobs"
	"github.com/josephlewis42/jobsh/core/logger"
)

// AllBuiltins holds the commands run by the shell itself. A line starting with
// the name of a builtin runs it.
var AllBuiltins = make(map[string]ShellBuiltin)

type ShellBuiltin interface {
	Main(s *Shell, args []string) int
}

type ShellBuiltinFunc func(s *Shell, args []string) int

func (f ShellBuiltinFunc) Main(s *Shell, args []string) int {
	return f(s, args)
}

var _ ShellBuiltin = (ShellBuiltinFunc)(nil)

// lookupBuiltin finds the builtin the line starts with.
func lookupBuiltin(line string) (ShellBuiltin, bool) {
	for name, builtin := range AllBuiltins {
		if strings.HasPrefix(line, name) {
			return builtin, true
		}
	}
	return nil, false
}

// Exit quits the shell. Background jobs are forgotten, not waited on.
func Exit(s *Shell, args []string) int {
	if n := s.Jobs.Clear(); n > 0 {
		s.record(logger.Event{Type: logger.JobsCleared, Count: n})
	}
	fmt.Fprintln(s.Stdout, s.Config.ExitMessage)
	s.Quit = true
	return 0
}

// Jobs checks every background job, listing the running ones and reporting
// the ones that finished since the last check.
func Jobs(s *Shell, args []string) int {
	cmd := &SimpleCommand{
		Use:   "jobs [-p] [-h]",
		Short: "Check background jobs. Finished jobs are reported once and then forgotten.",
	}
	pidsOnly := cmd.Flags().Bool('p', "print only the process IDs of the jobs")

	return cmd.Run(args, s.Stdout, s.Stderr, func() int {
		w := tabwriter.NewWriter(s.Stdout, 0, 8, 2, ' ', 0)
		ret := 0

		for report := range s.Jobs.Reap() {
			job := report.Job

			switch report.Outcome {
			case jobs.Exited:
				s.record(logger.Event{
					Type:   logger.JobFinished,
					Line:   job.Label,
					PID:    job.PID,
					JobID:  job.ID,
					Status: logger.IntPtr(report.Status),
				})
			case jobs.CheckFailed:
				s.record(logger.Event{
					Type:  logger.JobEvicted,
					Line:  job.Label,
					PID:   job.PID,
					JobID: job.ID,
					Error: report.Err.Error(),
				})
				fmt.Fprintf(s.Stderr, "jobsh: jobs: [%d] %d: %v\n", job.ID, job.PID, report.Err)
				ret = 1
				continue
			}

			if *pidsOnly {
				fmt.Fprintln(w, job.PID)
				continue
			}

			label := job.Label
			if report.Outcome == jobs.Exited && report.Status != 0 {
				label = fmt.Sprintf("%s (exit %d)", label, report.Status)
			}
			fmt.Fprintf(w, "[%d]\t%d\t%s\t%s\n", job.ID, job.PID, s.stateString(job.State), label)
		}

		w.Flush()
		return ret
	})
}

func (s *Shell) stateString(state jobs.State) string {
	switch state {
	case jobs.Running:
		return s.Color.Sprintf(ColorBoldGreen, "%s", state)
	default:
		return s.Color.Sprintf(ColorBoldBlue, "%s", state)
	}
}

func init() {
	AllBuiltins["exit"] = ShellBuiltinFunc(Exit)
	AllBuiltins["jobs"] = ShellBuiltinFunc(Jobs)
}
