// Package parser turns a command line into a pipeline.
//
// Only the subset of the POSIX shell grammar the engine supports is accepted:
// simple commands made of literal words, joined by |, with < on the first
// command, > on the last and an optional trailing &.
package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/josephlewis42/jobsh/core/pipeline"
	"mvdan.cc/sh/v3/syntax"
)

// ErrEmpty is returned for lines without a command, e.g. blank or comment only.
var ErrEmpty = errors.New("empty command")

// Error describes why a line could not be parsed.
type Error struct {
	// Col is the 1 based column the error was found at, 0 if unknown.
	Col int
	Msg string
}

func (e *Error) Error() string {
	if e.Col > 0 {
		return fmt.Sprintf("%d: %s", e.Col, e.Msg)
	}
	return e.Msg
}

func errorAt(node syntax.Node, format string, a ...interface{}) error {
	return &Error{Col: int(node.Pos().Col()), Msg: fmt.Sprintf(format, a...)}
}

// Parse converts a single command line into a pipeline.
func Parse(line string) (*pipeline.Pipeline, error) {
	file, err := syntax.NewParser().Parse(strings.NewReader(line), "")
	if err != nil {
		var parseErr syntax.ParseError
		if errors.As(err, &parseErr) {
			return nil, &Error{Col: int(parseErr.Pos.Col()), Msg: parseErr.Text}
		}
		return nil, &Error{Msg: err.Error()}
	}

	switch len(file.Stmts) {
	case 0:
		return nil, ErrEmpty
	case 1:
		// supported
	default:
		return nil, errorAt(file.Stmts[1], "multiple commands are not supported")
	}

	return parseStmt(file.Stmts[0])
}

func parseStmt(stmt *syntax.Stmt) (*pipeline.Pipeline, error) {
	if stmt.Negated {
		return nil, errorAt(stmt, "! is not supported")
	}
	if stmt.Coprocess {
		return nil, errorAt(stmt, "coprocesses are not supported")
	}

	stages, err := flatten(stmt)
	if err != nil {
		return nil, err
	}

	out := &pipeline.Pipeline{Background: stmt.Background}
	last := len(stages) - 1
	for i, stageStmt := range stages {
		if stageStmt != stmt && (stageStmt.Negated || stageStmt.Background || stageStmt.Coprocess) {
			return nil, errorAt(stageStmt, "unsupported pipeline element")
		}

		if err := applyRedirects(out, stageStmt.Redirs, i == 0, i == last); err != nil {
			return nil, err
		}

		stage, err := parseCommand(stageStmt)
		if err != nil {
			return nil, err
		}
		out.Stages = append(out.Stages, stage)
	}

	// Redirects wrapping a whole pipeline apply to its ends.
	if len(stages) > 1 {
		if err := applyRedirects(out, stmt.Redirs, true, true); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// flatten returns the stages of a pipeline in order.
func flatten(stmt *syntax.Stmt) ([]*syntax.Stmt, error) {
	bin, ok := stmt.Cmd.(*syntax.BinaryCmd)
	if !ok {
		return []*syntax.Stmt{stmt}, nil
	}

	switch bin.Op {
	case syntax.Pipe:
		left, err := flatten(bin.X)
		if err != nil {
			return nil, err
		}
		right, err := flatten(bin.Y)
		if err != nil {
			return nil, err
		}
		return append(left, right...), nil
	default:
		return nil, errorAt(bin, "%s is not supported", bin.Op)
	}
}

func parseCommand(stmt *syntax.Stmt) (pipeline.Stage, error) {
	switch cmd := stmt.Cmd.(type) {
	case nil:
		return nil, errorAt(stmt, "missing command")

	case *syntax.CallExpr:
		if len(cmd.Assigns) > 0 {
			return nil, errorAt(cmd.Assigns[0], "variable assignment is not supported")
		}
		if len(cmd.Args) == 0 {
			return nil, errorAt(stmt, "missing command")
		}

		var stage pipeline.Stage
		for _, word := range cmd.Args {
			arg, err := literal(word)
			if err != nil {
				return nil, err
			}
			stage = append(stage, arg)
		}
		return stage, nil

	case *syntax.BinaryCmd:
		return nil, errorAt(cmd, "%s is not supported", cmd.Op)

	default:
		return nil, errorAt(stmt, "only simple commands are supported")
	}
}

func applyRedirects(p *pipeline.Pipeline, redirs []*syntax.Redirect, first, last bool) error {
	for _, redir := range redirs {
		fd := ""
		if redir.N != nil {
			fd = redir.N.Value
		}

		target, err := literal(redir.Word)
		if err != nil {
			return err
		}
		if target == "" {
			return errorAt(redir, "missing redirect target")
		}

		switch redir.Op {
		case syntax.RdrIn:
			if fd != "" && fd != "0" {
				return errorAt(redir, "redirecting file descriptor %s is not supported", fd)
			}
			if !first {
				return errorAt(redir, "input can only be redirected on the first command")
			}
			p.Input = target

		case syntax.RdrOut, syntax.ClbOut:
			if fd != "" && fd != "1" {
				return errorAt(redir, "redirecting file descriptor %s is not supported", fd)
			}
			if !last {
				return errorAt(redir, "output can only be redirected on the last command")
			}
			p.Output = target

		default:
			return errorAt(redir, "%s redirection is not supported", redir.Op)
		}
	}
	return nil
}

func literal(word *syntax.Word) (string, error) {
	if word == nil {
		return "", nil
	}

	var sb strings.Builder
	for _, part := range word.Parts {
		if err := appendPart(&sb, part); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

func appendPart(sb *strings.Builder, part syntax.WordPart) error {
	switch part := part.(type) {
	case *syntax.Lit:
		sb.WriteString(unescape(part.Value, ""))
	case *syntax.SglQuoted:
		if part.Dollar {
			return errorAt(part, "$'...' strings are not supported")
		}
		sb.WriteString(part.Value)
	case *syntax.DblQuoted:
		if part.Dollar {
			return errorAt(part, "$\"...\" strings are not supported")
		}
		for _, inner := range part.Parts {
			lit, ok := inner.(*syntax.Lit)
			if !ok {
				return errorAt(inner, "expansions are not supported")
			}
			sb.WriteString(unescape(lit.Value, "$`\"\\\n"))
		}
	default:
		return errorAt(part, "expansions are not supported")
	}
	return nil
}

// unescape removes backslashes from s. If only is non-empty, a backslash is
// removed only when it precedes one of its characters, as in double quotes.
func unescape(s, only string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			sb.WriteByte(c)
			continue
		}

		next := s[i+1]
		switch {
		case next == '\n':
			// line continuation
		case only == "" || strings.IndexByte(only, next) >= 0:
			sb.WriteByte(next)
		default:
			sb.WriteByte(c)
			sb.WriteByte(next)
		}
		i++
	}
	return sb.String()
}
