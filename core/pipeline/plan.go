package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyPipeline = errors.New("pipeline has no stages")
	ErrEmptyStage    = errors.New("pipeline stage has no program")
)

// BindingKind says where a standard stream of a stage is connected.
type BindingKind int

const (
	// Inherit connects the stream to the shell's own stream.
	Inherit BindingKind = iota
	// File connects the stream to a redirect target.
	File
	// Pipe connects the stream to an end of an inter-stage pipe.
	Pipe
)

func (k BindingKind) String() string {
	switch k {
	case Inherit:
		return "inherit"
	case File:
		return "file"
	case Pipe:
		return "pipe"
	default:
		return fmt.Sprintf("BindingKind(%d)", int(k))
	}
}

// Binding is the source or destination of a stage's standard stream.
type Binding struct {
	Kind BindingKind
	// Path is set for File bindings.
	Path string
	// Pipe is the index of the pipe for Pipe bindings. Pipe i connects stage i
	// to stage i+1.
	Pipe int
}

func (b Binding) String() string {
	switch b.Kind {
	case File:
		return fmt.Sprintf("file(%s)", b.Path)
	case Pipe:
		return fmt.Sprintf("pipe(%d)", b.Pipe)
	default:
		return b.Kind.String()
	}
}

// StagePlan is how a single stage should be started.
type StagePlan struct {
	Argv   Stage
	Stdin  Binding
	Stdout Binding
}

// Plan is the execution plan of a pipeline.
type Plan struct {
	Stages []StagePlan
	// Pipes is the number of inter-stage pipes to create, always len(Stages)-1.
	Pipes      int
	Background bool
}

// Last returns the index of the trailing stage.
func (p *Plan) Last() int {
	return len(p.Stages) - 1
}

// Build plans the wiring of the pipeline. Stages are connected left to right,
// stage k writes into pipe k and stage k+1 reads from it. The input redirect
// only ever applies to the first stage and the output redirect to the last.
func Build(p *Pipeline) (*Plan, error) {
	if p == nil || len(p.Stages) == 0 {
		return nil, ErrEmptyPipeline
	}

	last := len(p.Stages) - 1
	plan := &Plan{
		Stages:     make([]StagePlan, len(p.Stages)),
		Pipes:      last,
		Background: p.Background,
	}

	for i, stage := range p.Stages {
		if len(stage) == 0 || stage[0] == "" {
			return nil, fmt.Errorf("stage %d: %w", i, ErrEmptyStage)
		}

		sp := StagePlan{Argv: append(Stage(nil), stage...)}

		switch {
		case i == 0 && p.Input != "":
			sp.Stdin = Binding{Kind: File, Path: p.Input}
		case i > 0:
			sp.Stdin = Binding{Kind: Pipe, Pipe: i - 1}
		}

		switch {
		case i == last && p.Output != "":
			sp.Stdout = Binding{Kind: File, Path: p.Output}
		case i < last:
			sp.Stdout = Binding{Kind: Pipe, Pipe: i}
		}

		plan.Stages[i] = sp
	}

	return plan, nil
}
