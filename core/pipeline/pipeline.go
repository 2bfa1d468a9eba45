// Package pipeline describes a parsed command line and plans how the stages of
// a pipeline are connected to each other and to files.
package pipeline

import (
	"fmt"
	"strings"
)

// Stage is a single program invocation: the program name followed by its
// arguments.
type Stage []string

// Name returns the program name of the stage.
func (s Stage) Name() string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// Pipeline is one or more stages chained with pipes.
type Pipeline struct {
	Stages []Stage

	// Input replaces the standard input of the first stage if non-empty.
	Input string
	// Output replaces the standard output of the last stage if non-empty. The
	// file is created or truncated.
	Output string
	// Background pipelines aren't waited on, their trailing stage is tracked as
	// a job instead.
	Background bool
}

// String renders the pipeline as a command line.
func (p *Pipeline) String() string {
	var stages []string
	for _, stage := range p.Stages {
		stages = append(stages, strings.Join(stage, " "))
	}

	out := strings.Join(stages, " | ")
	if p.Input != "" {
		out += " < " + p.Input
	}
	if p.Output != "" {
		out += " > " + p.Output
	}
	if p.Background {
		out += " &"
	}
	return out
}

// Trace writes a description of the parsed pipeline, one field per line.
func (p *Pipeline) Trace() string {
	var sb strings.Builder
	if p.Input != "" {
		fmt.Fprintf(&sb, "in: %s\n", p.Input)
	}
	if p.Output != "" {
		fmt.Fprintf(&sb, "out: %s\n", p.Output)
	}
	fmt.Fprintf(&sb, "bg: %t\n", p.Background)
	for i, stage := range p.Stages {
		fmt.Fprintf(&sb, "seq[%d]:", i)
		for _, arg := range stage {
			fmt.Fprintf(&sb, " '%s'", arg)
		}
		fmt.Fprintln(&sb)
	}
	return sb.String()
}
