package shell

// The accepted grammar is the pipeline subset of the POSIX shell language:
// https://pubs.opengroup.org/onlinepubs/9699919799/utilities/V3_chap02.html
//
// Lines are split into ;-separated statements, each statement is a pipeline of
// simple commands with optional redirections and a trailing &. Expansions,
// assignments, compound commands and the && and || lists are rejected.

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/josephlewis42/jobsh/core/job"
	"mvdan.cc/sh/v3/syntax"
)

// ErrUnsupported is returned for valid shell syntax the interpreter doesn't
// implement.
var ErrUnsupported = errors.New("not supported")

func unsupported(what string) error {
	return fmt.Errorf("%s: %w", what, ErrUnsupported)
}

// Parse splits a command line into jobs. Nothing is returned if any
// statement fails to parse so a line never runs partially.
func Parse(line string) ([]*job.Job, error) {
	file, err := syntax.NewParser().Parse(strings.NewReader(line), "")
	if err != nil {
		return nil, err
	}

	var jobs []*job.Job
	for _, stmt := range file.Stmts {
		j, err := parseStatement(stmt)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func parseStatement(stmt *syntax.Stmt) (*job.Job, error) {
	stages, err := flattenPipeline(stmt)
	if err != nil {
		return nil, err
	}

	j := job.New(commandText(stmt))
	j.Background = stmt.Background

	for i, stage := range stages {
		p, redirects, err := parseStage(stage)
		if err != nil {
			return nil, err
		}

		// Redirections trailing a multi stage pipeline apply to the whole job:
		// input feeds the first stage.
		if len(stages) > 1 && i == len(stages)-1 {
			j.Redirects = append(j.Redirects, redirects...)
		} else {
			p.Redirects = redirects
		}
		j.Processes = append(j.Processes, p)
	}

	// Redirections on the pipeline statement itself.
	outer, err := parseRedirects(stmt.Redirs)
	if err != nil {
		return nil, err
	}
	if _, ok := stmt.Cmd.(*syntax.BinaryCmd); ok {
		j.Redirects = append(j.Redirects, outer...)
	}

	return j, nil
}

func checkStatement(stmt *syntax.Stmt) error {
	switch {
	case stmt.Negated:
		return unsupported("!")
	case stmt.Coprocess:
		return unsupported("|&")
	}
	return nil
}

// flattenPipeline turns the pipe tree into the list of its stages.
func flattenPipeline(stmt *syntax.Stmt) ([]*syntax.Stmt, error) {
	if err := checkStatement(stmt); err != nil {
		return nil, err
	}

	bin, ok := stmt.Cmd.(*syntax.BinaryCmd)
	if !ok {
		return []*syntax.Stmt{stmt}, nil
	}

	switch bin.Op {
	case syntax.Pipe:
	case syntax.PipeAll:
		return nil, unsupported("|&")
	default:
		return nil, unsupported(bin.Op.String())
	}

	left, err := flattenPipeline(bin.X)
	if err != nil {
		return nil, err
	}
	right, err := flattenPipeline(bin.Y)
	if err != nil {
		return nil, err
	}
	return append(left, right...), nil
}

func parseStage(stmt *syntax.Stmt) (*job.Process, []job.Redirect, error) {
	call, ok := stmt.Cmd.(*syntax.CallExpr)
	if !ok {
		return nil, nil, unsupported(commandName(stmt.Cmd))
	}
	if len(call.Assigns) > 0 {
		return nil, nil, unsupported("assignment")
	}

	var argv []string
	for _, word := range call.Args {
		arg, err := evalWord(word)
		if err != nil {
			return nil, nil, err
		}
		argv = append(argv, arg)
	}
	if len(argv) == 0 {
		return nil, nil, unsupported("redirection without a command")
	}

	redirects, err := parseRedirects(stmt.Redirs)
	if err != nil {
		return nil, nil, err
	}

	return job.NewProcess(argv...), redirects, nil
}

func parseRedirects(redirs []*syntax.Redirect) ([]job.Redirect, error) {
	var out []job.Redirect
	for _, rd := range redirs {
		parsed, err := parseRedirect(rd)
		if err != nil {
			return nil, err
		}
		out = append(out, parsed...)
	}
	return out, nil
}

func parseRedirect(rd *syntax.Redirect) ([]job.Redirect, error) {
	fd := -1
	if rd.N != nil {
		n, err := strconv.Atoi(rd.N.Value)
		if err != nil || n < 0 || n > 2 {
			return nil, unsupported("redirection of descriptor " + rd.N.Value)
		}
		fd = n
	}
	withDefault := func(def int) int {
		if fd < 0 {
			return def
		}
		return fd
	}

	target, err := evalWord(rd.Word)
	if err != nil {
		return nil, err
	}
	if target == "" {
		return nil, unsupported("empty redirection target")
	}

	switch rd.Op {
	case syntax.RdrIn:
		return []job.Redirect{{Fd: withDefault(0), Mode: job.RedirectRead, Path: target}}, nil

	case syntax.RdrOut, syntax.ClbOut:
		return []job.Redirect{{Fd: withDefault(1), Mode: job.RedirectWrite, Path: target}}, nil

	case syntax.AppOut:
		return []job.Redirect{{Fd: withDefault(1), Mode: job.RedirectAppend, Path: target}}, nil

	case syntax.RdrAll, syntax.AppAll:
		mode := job.RedirectWrite
		if rd.Op == syntax.AppAll {
			mode = job.RedirectAppend
		}
		return []job.Redirect{
			{Fd: 1, Mode: mode, Path: target},
			{Fd: 2, Mode: job.RedirectDup, DupFd: 1},
		}, nil

	case syntax.DplOut, syntax.DplIn:
		def := 1
		if rd.Op == syntax.DplIn {
			def = 0
		}
		dup, err := strconv.Atoi(target)
		switch {
		case err == nil && dup >= 0 && dup <= 2:
			return []job.Redirect{{Fd: withDefault(def), Mode: job.RedirectDup, DupFd: dup}}, nil
		case err != nil && rd.Op == syntax.DplOut && fd < 0:
			// >&file is the same as &>file
			return []job.Redirect{
				{Fd: 1, Mode: job.RedirectWrite, Path: target},
				{Fd: 2, Mode: job.RedirectDup, DupFd: 1},
			}, nil
		default:
			return nil, unsupported(rd.Op.String() + target)
		}

	default:
		return nil, unsupported(rd.Op.String())
	}
}

func evalWord(word *syntax.Word) (string, error) {
	if word == nil {
		return "", nil
	}

	var sb strings.Builder
	for _, part := range word.Parts {
		switch part := part.(type) {
		case *syntax.Lit:
			sb.WriteString(unquoteLit(part.Value, false))

		case *syntax.SglQuoted:
			if part.Dollar {
				return "", unsupported(printNode(part))
			}
			sb.WriteString(part.Value)

		case *syntax.DblQuoted:
			if part.Dollar {
				return "", unsupported(printNode(part))
			}
			for _, inner := range part.Parts {
				lit, ok := inner.(*syntax.Lit)
				if !ok {
					return "", unsupported(printNode(inner))
				}
				sb.WriteString(unquoteLit(lit.Value, true))
			}

		default:
			return "", unsupported(printNode(part))
		}
	}
	return sb.String(), nil
}

// unquoteLit removes backslash escapes. Inside double quotes only \, $, `, "
// and newline can be escaped.
func unquoteLit(s string, inDouble bool) string {
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
			// Line continuation.
		case !inDouble || strings.IndexByte("\\$`\"", next) >= 0:
			sb.WriteByte(next)
		default:
			sb.WriteByte(c)
			sb.WriteByte(next)
		}
		i++
	}
	return sb.String()
}

// commandText renders the statement the way it's shown in job listings.
func commandText(stmt *syntax.Stmt) string {
	display := *stmt
	display.Background = false
	display.Comments = nil
	return printNode(&display)
}

func printNode(node syntax.Node) string {
	var buf bytes.Buffer
	if err := syntax.NewPrinter().Print(&buf, node); err != nil {
		return fmt.Sprintf("%T", node)
	}
	return strings.TrimSpace(buf.String())
}

func commandName(cmd syntax.Command) string {
	switch cmd.(type) {
	case *syntax.Block:
		return "{ }"
	case *syntax.Subshell:
		return "( )"
	case *syntax.IfClause:
		return "if"
	case *syntax.WhileClause:
		return "while"
	case *syntax.ForClause:
		return "for"
	case *syntax.CaseClause:
		return "case"
	case *syntax.FuncDecl:
		return "function"
	case *syntax.ArithmCmd:
		return "(( ))"
	case *syntax.TestClause:
		return "[[ ]]"
	case *syntax.DeclClause:
		return "declare"
	case *syntax.LetClause:
		return "let"
	case *syntax.TimeClause:
		return "time"
	case *syntax.CoprocClause:
		return "coproc"
	default:
		return fmt.Sprintf("%T", cmd)
	}
}
