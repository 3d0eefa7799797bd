// Package runcmd runs a single command line in a subprocess without job
// control: no pipes, no process groups and no terminal handoff.
package runcmd

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/anmitsu/go-shlex"
)

const (
	// MaxArgs is the maximum number of words in a command line.
	MaxArgs = 1024
	// ExecFailStatus is the exit status reported when the command couldn't be
	// executed.
	ExecFailStatus = 127
	// NonBlockSuffix makes a command run without waiting for it.
	NonBlockSuffix = "&"
)

var (
	ErrEmptyCommand = errors.New("empty command")
	ErrTooManyArgs  = fmt.Errorf("more than %d arguments", MaxArgs)
)

// Result describes how a command ran.
type Result struct {
	// NormalTerm is true if the subprocess exited rather than being killed.
	NormalTerm bool `json:"normal_term"`
	// ExecOK is true if the command was actually executed.
	ExecOK bool `json:"exec_ok"`
	// NonBlock is true if the caller didn't wait for the command.
	NonBlock bool `json:"non_block"`
	// ExitStatus is the exit code, 128+N for a process killed by signal N.
	ExitStatus int `json:"exit_status"`
}

// Runner runs commands.
type Runner struct {
	// OnExit is called from another goroutine when a non-blocking command
	// finishes.
	OnExit func(Result)
}

// Run runs command with the default Runner.
func Run(command string, files [3]*os.File) (Result, error) {
	var r Runner
	return r.Run(command, files)
}

// Run splits command into words and runs it with the given stdin, stdout and
// stderr, nil entries are inherited. A trailing & starts the command and
// returns immediately.
//
// Errors are only returned for command lines that can't be parsed, a command
// that can't be executed is reported with ExecOK unset and ExecFailStatus.
func (r *Runner) Run(command string, files [3]*os.File) (Result, error) {
	command = strings.TrimSpace(command)
	nonBlock := strings.HasSuffix(command, NonBlockSuffix)
	command = strings.TrimSuffix(command, NonBlockSuffix)

	argv, err := shlex.Split(command, true)
	switch {
	case err != nil:
		return Result{}, err
	case len(argv) == 0:
		return Result{}, ErrEmptyCommand
	case len(argv) > MaxArgs:
		return Result{}, ErrTooManyArgs
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if files[0] != nil {
		cmd.Stdin = files[0]
	}
	if files[1] != nil {
		cmd.Stdout = files[1]
	}
	if files[2] != nil {
		cmd.Stderr = files[2]
	}

	if err := cmd.Start(); err != nil {
		return Result{
			NormalTerm: true,
			NonBlock:   nonBlock,
			ExitStatus: ExecFailStatus,
		}, nil
	}

	if nonBlock {
		go func() {
			res := wait(cmd)
			res.NonBlock = true
			if r.OnExit != nil {
				r.OnExit(res)
			}
		}()

		return Result{ExecOK: true, NonBlock: true}, nil
	}

	return wait(cmd), nil
}

func wait(cmd *exec.Cmd) Result {
	res := Result{ExecOK: true}

	// Exit errors are described by the process state.
	_ = cmd.Wait()

	state := cmd.ProcessState
	if state == nil {
		res.ExitStatus = ExecFailStatus
		return res
	}

	if status, ok := state.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		res.ExitStatus = 128 + int(status.Signal())
		return res
	}

	res.NormalTerm = true
	res.ExitStatus = state.ExitCode()
	return res
}
