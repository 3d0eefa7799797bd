// Package job holds the data model of the job control engine: processes,
// the jobs (pipelines) that own them and the session's job table.
package job

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// State is the derived state of a job.
type State int

const (
	// Running means at least one process is neither completed nor stopped.
	Running State = iota
	// Stopped means every process is completed or stopped and at least one
	// is stopped.
	Stopped
	// Completed means every process completed.
	Completed
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	case Completed:
		return "Done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Job is a pipeline of processes that's job controlled as a unit.
type Job struct {
	// ID is the job number, it's assigned by the Table.
	ID int
	// Command is the command line as displayed to the user.
	Command string
	// Processes holds the pipeline stages in order.
	Processes []*Process
	// Pgid is the process group of the job, it's zero until the first stage
	// is started.
	Pgid int
	// Background is true if the job doesn't own the terminal.
	Background bool
	// Termios holds the terminal modes saved the last time the job owned
	// the terminal.
	Termios *unix.Termios

	// Redirects holds job level redirections: stdin feeds the first stage,
	// stdout and stderr belong to the last one.
	Redirects []Redirect

	rank     uint64
	reported State
}

// New creates a job from its stages.
func New(command string, procs ...*Process) *Job {
	return &Job{
		Command:   command,
		Processes: procs,
	}
}

// State derives the job state from its processes.
func (j *Job) State() State {
	stopped := false
	for _, p := range j.Processes {
		switch {
		case p.Completed:
		case p.Stopped:
			stopped = true
		default:
			return Running
		}
	}

	if stopped {
		return Stopped
	}
	return Completed
}

// IsStopped returns true if the job's derived state is Stopped.
func (j *Job) IsStopped() bool {
	return j.State() == Stopped
}

// IsCompleted returns true if every process completed.
func (j *Job) IsCompleted() bool {
	return j.State() == Completed
}

// Started returns true once a stage of the job became an OS process.
func (j *Job) Started() bool {
	return j.Pgid != 0
}

// ExitStatus is the status of the last stage.
func (j *Job) ExitStatus() int {
	if len(j.Processes) == 0 {
		return 0
	}
	return j.Processes[len(j.Processes)-1].ExitStatus()
}

// Continue clears the stopped flag of every process, it's called right before
// the job is sent SIGCONT.
func (j *Job) Continue() {
	for _, p := range j.Processes {
		p.Stopped = false
	}
}

// FindProcess returns the stage with the given pid or nil.
func (j *Job) FindProcess(pid int) *Process {
	if pid <= 0 {
		return nil
	}
	for _, p := range j.Processes {
		if p.Pid == pid {
			return p
		}
	}
	return nil
}

// Pids lists the pids of the started stages.
func (j *Job) Pids() []int {
	var out []int
	for _, p := range j.Processes {
		if p.Pid != 0 {
			out = append(out, p.Pid)
		}
	}
	return out
}

// OpenRedirects opens the job and stage redirection targets. A target that
// can't be opened is passed to report and the stream is left inherited.
func (j *Job) OpenRedirects(report func(Redirect, error)) {
	openRedirects(j.Redirects, report)
	for _, p := range j.Processes {
		openRedirects(p.Redirects, report)
	}
}

// CloseFiles closes every redirection file owned by the job.
func (j *Job) CloseFiles() error {
	lastErr := closeRedirects(j.Redirects)
	for _, p := range j.Processes {
		if err := closeRedirects(p.Redirects); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Changed returns the job's state and whether it differs from the last state
// passed to MarkReported.
func (j *Job) Changed() (State, bool) {
	state := j.State()
	return state, state != j.reported
}

// MarkReported records that the user was told about the current state.
func (j *Job) MarkReported() {
	j.reported = j.State()
}
