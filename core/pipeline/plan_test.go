package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	cases := map[string]struct {
		pipeline Pipeline
		stdin    []Binding
		stdout   []Binding
	}{
		"single": {
			pipeline: Pipeline{Stages: []Stage{{"ls", "-l"}}},
			stdin:    []Binding{{}},
			stdout:   []Binding{{}},
		},
		"single both redirects": {
			pipeline: Pipeline{Stages: []Stage{{"sort"}}, Input: "in.txt", Output: "out.txt"},
			stdin:    []Binding{{Kind: File, Path: "in.txt"}},
			stdout:   []Binding{{Kind: File, Path: "out.txt"}},
		},
		"two stages": {
			pipeline: Pipeline{Stages: []Stage{{"echo", "hi"}, {"cat"}}},
			stdin:    []Binding{{}, {Kind: Pipe, Pipe: 0}},
			stdout:   []Binding{{Kind: Pipe, Pipe: 0}, {}},
		},
		"three stages input redirect": {
			pipeline: Pipeline{Stages: []Stage{{"cat"}, {"sort"}, {"uniq"}}, Input: "words"},
			stdin:    []Binding{{Kind: File, Path: "words"}, {Kind: Pipe, Pipe: 0}, {Kind: Pipe, Pipe: 1}},
			stdout:   []Binding{{Kind: Pipe, Pipe: 0}, {Kind: Pipe, Pipe: 1}, {}},
		},
		"three stages both redirects": {
			pipeline: Pipeline{Stages: []Stage{{"cat"}, {"sort"}, {"uniq"}}, Input: "a", Output: "b"},
			stdin:    []Binding{{Kind: File, Path: "a"}, {Kind: Pipe, Pipe: 0}, {Kind: Pipe, Pipe: 1}},
			stdout:   []Binding{{Kind: Pipe, Pipe: 0}, {Kind: Pipe, Pipe: 1}, {Kind: File, Path: "b"}},
		},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			plan, err := Build(&tc.pipeline)
			require.NoError(t, err)

			require.Len(t, plan.Stages, len(tc.pipeline.Stages))
			assert.Equal(t, len(tc.pipeline.Stages)-1, plan.Pipes)
			assert.Equal(t, len(tc.pipeline.Stages)-1, plan.Last())
			for i, sp := range plan.Stages {
				assert.Equal(t, tc.pipeline.Stages[i], sp.Argv)
				assert.Equal(t, tc.stdin[i], sp.Stdin, "stage %d stdin", i)
				assert.Equal(t, tc.stdout[i], sp.Stdout, "stage %d stdout", i)
			}
		})
	}
}

func TestBuildRedirectsOnlyAtEnds(t *testing.T) {
	p := &Pipeline{
		Stages: []Stage{{"a"}, {"b"}, {"c"}, {"d"}},
		Input:  "in",
		Output: "out",
	}
	plan, err := Build(p)
	require.NoError(t, err)

	for i, sp := range plan.Stages {
		if i != 0 {
			assert.NotEqual(t, File, sp.Stdin.Kind, "stage %d reads a file", i)
		}
		if i != plan.Last() {
			assert.NotEqual(t, File, sp.Stdout.Kind, "stage %d writes a file", i)
		}
	}
}

func TestBuildCopiesArgv(t *testing.T) {
	p := &Pipeline{Stages: []Stage{{"echo", "a"}}}
	plan, err := Build(p)
	require.NoError(t, err)

	p.Stages[0][1] = "b"
	assert.Equal(t, Stage{"echo", "a"}, plan.Stages[0].Argv)
}

func TestBuildBackground(t *testing.T) {
	plan, err := Build(&Pipeline{Stages: []Stage{{"sleep", "5"}}, Background: true})
	require.NoError(t, err)
	assert.True(t, plan.Background)
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(nil)
	assert.True(t, errors.Is(err, ErrEmptyPipeline))

	_, err = Build(&Pipeline{})
	assert.True(t, errors.Is(err, ErrEmptyPipeline))

	_, err = Build(&Pipeline{Stages: []Stage{{"ls"}, {}}})
	assert.True(t, errors.Is(err, ErrEmptyStage))

	_, err = Build(&Pipeline{Stages: []Stage{{""}}})
	assert.True(t, errors.Is(err, ErrEmptyStage))
}

func TestPipelineString(t *testing.T) {
	p := &Pipeline{
		Stages:     []Stage{{"cat"}, {"sort", "-r"}},
		Input:      "in",
		Output:     "out",
		Background: true,
	}
	assert.Equal(t, "cat | sort -r < in > out &", p.String())
}

func TestPipelineTrace(t *testing.T) {
	p := &Pipeline{
		Stages: []Stage{{"echo", "hi"}, {"cat"}},
		Output: "out",
	}
	assert.Equal(t, "out: out\nbg: false\nseq[0]: 'echo' 'hi'\nseq[1]: 'cat'\n", p.Trace())
}

func TestStageName(t *testing.T) {
	assert.Equal(t, "ls", Stage{"ls", "-l"}.Name())
	assert.Equal(t, "", Stage{}.Name())
}
