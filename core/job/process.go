package job

import (
	"strings"

	"golang.org/x/sys/unix"
)

const (
	// StatusNotFound is the exit status of a stage whose program couldn't be
	// found.
	StatusNotFound = 127
	// StatusNotExecutable is the exit status of a stage whose program was found
	// but couldn't be executed.
	StatusNotExecutable = 126
)

// Process is a single stage of a pipeline.
type Process struct {
	// Argv holds the command line, including the command as Argv[0].
	Argv []string
	// Pid is the OS process ID, it's zero until the process is started.
	Pid int
	// Completed is true once the process exited or was killed.
	Completed bool
	// Stopped is true while the process is suspended.
	Stopped bool
	// Status holds the last wait status reported for the process.
	Status unix.WaitStatus

	// Redirects holds the stage's own redirections in command line order.
	Redirects []Redirect
}

// NewProcess creates an unstarted process for the given command line.
func NewProcess(argv ...string) *Process {
	return &Process{Argv: argv}
}

// Name returns the command name or the empty string if argv is empty.
func (p *Process) Name() string {
	if len(p.Argv) == 0 {
		return ""
	}
	return p.Argv[0]
}

func (p *Process) String() string {
	return strings.Join(p.Argv, " ")
}

// Update records a wait status reported by the OS for the process.
func (p *Process) Update(status unix.WaitStatus) {
	p.Status = status
	switch {
	case status.Stopped():
		p.Stopped = true
	case status.Continued():
		p.Stopped = false
	default:
		p.Stopped = false
		p.Completed = true
	}
}

// Exit marks the process as completed with the given exit code. It's used for
// stages that never became an OS process: builtins and programs that failed
// to execute.
func (p *Process) Exit(code int) {
	p.Status = ExitedStatus(code)
	p.Stopped = false
	p.Completed = true
}

// ExitStatus decodes the wait status the way a shell reports it: the exit
// code for processes that exited, 128+N for processes killed or stopped by
// signal N.
func (p *Process) ExitStatus() int {
	switch {
	case p.Status.Exited():
		return p.Status.ExitStatus()
	case p.Status.Signaled():
		return 128 + int(p.Status.Signal())
	case p.Status.Stopped():
		return 128 + int(p.Status.StopSignal())
	default:
		return 0
	}
}

// ExitedStatus builds the wait status of a process that exited normally with
// the given code.
func ExitedStatus(code int) unix.WaitStatus {
	return unix.WaitStatus((code & 0xff) << 8)
}
