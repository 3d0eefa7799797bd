package jobctl

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"syscall"

	"github.com/josephlewis42/jobsh/core/job"
	"github.com/josephlewis42/jobsh/core/logger"
	"golang.org/x/sys/unix"
)

// Outcome describes what happened to a launched job.
type Outcome struct {
	Job *job.Job
	// Registered is true if the job was added to the job table.
	Registered bool
	// Builtin is true if the job ran inside the shell.
	Builtin bool
	// State is the job's state when Launch returned.
	State job.State
	// ExitStatus is the status of the last stage.
	ExitStatus int
}

func newOutcome(j *job.Job) *Outcome {
	return &Outcome{
		Job:        j,
		State:      j.State(),
		ExitStatus: j.ExitStatus(),
	}
}

type pipe struct {
	r, w *os.File
}

// Launch runs a job. Single stage jobs naming a built-in run in the shell
// process. Everything else is started in a new process group, registered in
// the job table and then either waited for in the foreground or left running
// in the background.
//
// Stages that can't be executed complete with status 127 (126 for
// permission errors) without affecting the rest of the pipeline. A returned
// error wraps ErrResource and means the shell should exit.
func (s *Session) Launch(j *job.Job) (*Outcome, error) {
	if len(j.Processes) == 0 {
		return newOutcome(j), nil
	}

	j.OpenRedirects(s.redirectFailed)

	if len(j.Processes) == 1 && s.builtins != nil {
		if b, ok := s.builtins.Lookup(j.Processes[0].Name()); ok {
			return s.runBuiltin(j, b), nil
		}
	}

	// Allocate all pipes up front so a failure leaves nothing half wired.
	pipes := make([]pipe, len(j.Processes)-1)
	for i := range pipes {
		r, w, err := os.Pipe()
		if err != nil {
			closePipes(pipes)
			j.CloseFiles()
			return newOutcome(j), fmt.Errorf("%w: pipe: %v", ErrResource, err)
		}
		pipes[i] = pipe{r: r, w: w}
	}

	last := len(j.Processes) - 1
	for i, p := range j.Processes {
		files := s.stageFiles(j, i, pipes)

		err := s.startProcess(j, p, files)

		// The parent's copies of the pipe ends are no longer needed once the
		// stage is started (or failed).
		if i > 0 {
			pipes[i-1].r.Close()
			pipes[i-1].r = nil
		}
		if i < last {
			pipes[i].w.Close()
			pipes[i].w = nil
		}

		if err != nil {
			closePipes(pipes)
			j.CloseFiles()
			s.abort(j)
			return newOutcome(j), err
		}
	}

	j.CloseFiles()

	// Every stage failed to execute.
	if !j.Started() {
		return newOutcome(j), nil
	}

	s.Jobs.Add(j)
	s.record(logger.EventJobLaunch, logger.Fields{
		"job":        j.ID,
		"pgid":       j.Pgid,
		"command":    j.Command,
		"argv":       j.Processes[0].Argv,
		"stages":     len(j.Processes),
		"background": j.Background,
	})

	var err error
	if j.Background {
		fmt.Fprintf(s.out, "[%d] %d\n", j.ID, j.Pgid)
		err = s.Background(j, false)
	} else {
		err = s.Foreground(j, false)
	}
	if err != nil {
		s.Errorf("%v", err)
	}

	out := newOutcome(j)
	out.Registered = true
	return out, nil
}

func (s *Session) runBuiltin(j *job.Job, b Builtin) *Outcome {
	p := j.Processes[0]
	files := s.stageFiles(j, 0, nil)

	status := b(s, p.Argv, Stdio{In: files[0], Out: files[1], Err: files[2]})
	p.Exit(status)
	j.CloseFiles()

	s.record(logger.EventBuiltin, logger.Fields{
		"name":   p.Name(),
		"argv":   p.Argv,
		"status": status,
	})

	out := newOutcome(j)
	out.Builtin = true
	return out
}

// stageFiles resolves the streams of stage i: the session's streams, then
// the job level redirections the stage owns, then pipes and finally the
// stage's own redirections in command line order.
func (s *Session) stageFiles(j *job.Job, i int, pipes []pipe) [3]*os.File {
	files := s.stdio
	last := len(j.Processes) - 1

	switch {
	case i == 0 && i == last:
		job.ApplyRedirects(j.Redirects, &files)
	case i == 0:
		job.ApplyRedirects(j.Redirects, &files, 0)
	case i == last:
		job.ApplyRedirects(j.Redirects, &files, 1, 2)
	}

	if i > 0 && pipes[i-1].r != nil {
		files[0] = pipes[i-1].r
	}
	if i < last && pipes[i].w != nil {
		files[1] = pipes[i].w
	}

	job.ApplyRedirects(j.Processes[i].Redirects, &files)
	return files
}

// startProcess starts a single stage. Exec failures complete the stage and
// return nil, only resource errors are returned.
func (s *Session) startProcess(j *job.Job, p *job.Process, files [3]*os.File) error {
	name := p.Name()

	path, err := s.sys.LookPath(name)
	if err != nil {
		s.execFailed(p, err)
		return nil
	}

	attr := &os.ProcAttr{
		Files: files[:],
		Sys: &syscall.SysProcAttr{
			Setpgid: true,
			Pgid:    j.Pgid,
		},
	}
	if s.interactive && !j.Background && j.Pgid == 0 {
		// The child takes the terminal before exec so it can't read before
		// it's in the foreground.
		attr.Sys.Foreground = true
		attr.Sys.Ctty = s.ttyFd
	}

	pid, err := s.sys.StartProcess(path, p.Argv, attr)
	switch {
	case err == nil:
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.ENOMEM):
		return fmt.Errorf("%w: %s: %v", ErrResource, name, err)
	default:
		s.execFailed(p, err)
		return nil
	}

	p.Pid = pid
	if j.Pgid == 0 {
		j.Pgid = pid
	}

	// Set the group from the parent too so it's in place no matter which
	// process runs first. The child may have already exec'd.
	s.sys.Setpgid(pid, j.Pgid)
	return nil
}

func (s *Session) execFailed(p *job.Process, err error) {
	var msg string
	status := job.StatusNotFound

	var pathErr *fs.PathError
	switch {
	case errors.Is(err, exec.ErrNotFound):
		msg = "command not found"
	case errors.Is(err, fs.ErrPermission), errors.Is(err, unix.ENOEXEC):
		status = job.StatusNotExecutable
		msg = "permission denied"
		if errors.Is(err, unix.ENOEXEC) {
			msg = "exec format error"
		}
	case errors.As(err, &pathErr):
		msg = pathErr.Err.Error()
	default:
		msg = err.Error()
	}

	p.Exit(status)
	s.Errorf("%s: %s", p.Name(), msg)
	s.record(logger.EventExecFailure, logger.Fields{
		"command": p.Name(),
		"error":   msg,
		"status":  status,
	})
}

func (s *Session) redirectFailed(r job.Redirect, err error) {
	var pathErr *fs.PathError
	msg := err.Error()
	if errors.As(err, &pathErr) {
		msg = fmt.Sprintf("%s: %v", pathErr.Path, pathErr.Err)
	}

	s.Errorf("%s", msg)
	s.record(logger.EventRedirectFailure, logger.Fields{
		"redirect": r.String(),
		"error":    msg,
	})
}

// abort kills and reaps the stages of a partially started job.
func (s *Session) abort(j *job.Job) {
	if !j.Started() {
		return
	}

	s.sys.Kill(-j.Pgid, unix.SIGKILL)
	// Stopped stages need SIGCONT to process the SIGKILL.
	s.sys.Kill(-j.Pgid, unix.SIGCONT)

	for {
		pid, status, err := s.sys.Wait4(-j.Pgid, 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			break
		}
		if p := j.FindProcess(pid); p != nil {
			p.Update(status)
		}
	}

	for _, p := range j.Processes {
		if !p.Completed {
			p.Exit(1)
		}
	}
}

func closePipes(pipes []pipe) {
	for i := range pipes {
		if pipes[i].r != nil {
			pipes[i].r.Close()
			pipes[i].r = nil
		}
		if pipes[i].w != nil {
			pipes[i].w.Close()
			pipes[i].w = nil
		}
	}
}
