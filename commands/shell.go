package commands

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/abiosoft/readline"
	"github.com/josephlewis42/jobsh/core/config"
	"github.com/josephlewis42/jobsh/core/jobs"
	"github.com/josephlewis42/jobsh/core/launcher"
	"github.com/josephlewis42/jobsh/core/logger"
	"github.com/josephlewis42/jobsh/core/parser"
	"github.com/josephlewis42/jobsh/core/pipeline"
)

// Shell reads command lines and runs them until told to exit.
type Shell struct {
	Config   *config.Configuration
	Input    LineReader
	Jobs     *jobs.Table
	Launcher *launcher.Launcher
	Events   *logger.SessionLogger
	Color    ColorPrinter

	Stdout io.Writer
	Stderr io.Writer

	// Set to true to quit the shell
	Quit bool

	log *log.Logger
}

// NewShell creates a shell reading lines from input. Programs it starts
// inherit stdin, stdout and stderr.
func NewShell(cfg *config.Configuration, input LineReader, stdin, stdout, stderr *os.File, events *logger.SessionLogger) *Shell {
	table := jobs.NewTable(cfg.MaxJobs, nil)

	l := launcher.New(table)
	l.Stdin = stdin
	l.Stdout = stdout
	l.Stderr = stderr

	return &Shell{
		Config:   cfg,
		Input:    input,
		Jobs:     table,
		Launcher: l,
		Events:   events,
		Color: ColorPrinter{
			Mode:       cfg.Color,
			IsTerminal: IsTerminal(stdout),
		},
		Stdout: stdout,
		Stderr: stderr,
		log:    log.New(stderr, "jobsh: ", 0),
	}
}

// RunShell runs a shell on the process's standard streams and returns its
// exit status.
func RunShell(cfg *config.Configuration, events *logger.SessionLogger) (int, error) {
	input, err := NewLineReader(os.Stdin, os.Stdout, cfg.Prompt, cfg.HistoryPath())
	if err != nil {
		return 1, err
	}
	defer input.Close()

	return NewShell(cfg, input, os.Stdin, os.Stdout, os.Stderr, events).Run(), nil
}

// Run reads and runs lines until exit or the end of the input.
func (s *Shell) Run() int {
	s.record(logger.Event{Type: logger.SessionStart})
	defer s.record(logger.Event{Type: logger.SessionEnd})

	defer catchInterrupts()()

	for !s.Quit {
		line, err := s.Input.Readline()

		switch {
		case err == io.EOF:
			Exit(s, []string{"exit"})

		case err == readline.ErrInterrupt:
			// Interrupt clears line.
			continue

		case err != nil:
			s.log.Printf("reading input: %v", err)
			Exit(s, []string{"exit"})

		default:
			s.RunLine(line)
		}
	}
	return 0
}

// catchInterrupts keeps SIGINT from killing the shell. Programs it starts
// still get the default disposition.
func catchInterrupts() (stop func()) {
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	return func() {
		signal.Stop(interrupts)
	}
}

// RunLine runs a single command line.
func (s *Shell) RunLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	if builtin, ok := lookupBuiltin(line); ok {
		builtin.Main(s, strings.Fields(line))
		return
	}

	p, err := parser.Parse(line)
	switch {
	case errors.Is(err, parser.ErrEmpty):
		return
	case err != nil:
		s.record(logger.Event{Type: logger.ParseFailed, Line: line, Error: err.Error()})
		s.log.Printf("syntax error: %v", err)
		return
	}

	s.launch(line, p)
}

func (s *Shell) launch(line string, p *pipeline.Pipeline) {
	if s.Config.Trace {
		fmt.Fprint(s.Stdout, p.Trace())
	}

	program := p.Stages[0].Name()
	s.record(logger.Event{
		Type:    logger.PipelineLaunched,
		Line:    line,
		Program: program,
		Stages:  len(p.Stages),
	})

	res, err := s.Launcher.Launch(p, line)
	if err != nil {
		s.reportLaunchErrors(line, program, err)
	}
	if res == nil {
		return
	}

	if !p.Background {
		s.record(logger.Event{
			Type:    logger.PipelineFinished,
			Line:    line,
			Program: program,
			Stages:  len(p.Stages),
			Status:  logger.IntPtr(res.Status),
		})
		return
	}

	if res.Job != nil {
		fmt.Fprintf(s.Stdout, "[%d] %d\n", res.Job.ID, res.Job.PID)
		s.record(logger.Event{
			Type:    logger.JobStarted,
			Line:    line,
			Program: program,
			Stages:  len(p.Stages),
			PID:     res.Job.PID,
			JobID:   res.Job.ID,
		})
	}
}

func (s *Shell) reportLaunchErrors(line, program string, err error) {
	for _, e := range splitErrors(err) {
		var stageErr *launcher.StageError
		switch {
		case errors.Is(e, jobs.ErrCapacityExceeded):
			s.record(logger.Event{Type: logger.CapacityExceeded, Line: line, Program: program, Error: e.Error()})
			s.log.Printf("%v: job continues untracked", e)

		case errors.As(e, &stageErr):
			s.record(logger.Event{
				Type:    logger.LaunchFailed,
				Line:    line,
				Program: stageErr.Argv.Name(),
				Status:  logger.IntPtr(stageErr.Status()),
				Error:   e.Error(),
			})
			s.log.Print(e)

		default:
			s.record(logger.Event{Type: logger.LaunchFailed, Line: line, Program: program, Error: e.Error()})
			s.log.Print(e)
		}
	}
}

// splitErrors flattens errors joined with errors.Join.
func splitErrors(err error) []error {
	if _, ok := err.(*launcher.StageError); ok {
		return []error{err}
	}

	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []error{err}
	}

	var out []error
	for _, e := range joined.Unwrap() {
		out = append(out, splitErrors(e)...)
	}
	return out
}

func (s *Shell) record(e logger.Event) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Record(e); err != nil {
		s.log.Printf("event log: %v", err)
	}
}
