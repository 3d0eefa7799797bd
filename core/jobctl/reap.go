package jobctl

import (
	"github.com/josephlewis42/jobsh/core/job"
	"github.com/josephlewis42/jobsh/core/logger"
	"golang.org/x/sys/unix"
)

// WaitJob blocks until every process of j has stopped or completed. Status
// changes of other jobs' processes reported along the way are recorded too.
func (s *Session) WaitJob(j *job.Job) {
	if !j.Started() {
		return
	}

	for !j.IsStopped() && !j.IsCompleted() {
		pid, status, err := s.sys.Wait4(-j.Pgid, unix.WUNTRACED)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.ECHILD:
			// Nothing is left to reap, the remaining stages were collected
			// elsewhere.
			for _, p := range j.Processes {
				if !p.Completed && !p.Stopped {
					p.Exit(0)
				}
			}
			return
		case err != nil:
			s.reapAnomaly(0, err.Error())
			return
		}

		s.MarkProcessStatus(pid, status)
	}
}

// Poll records every pending status change without blocking.
func (s *Session) Poll() {
	for {
		pid, status, err := s.sys.Wait4(-1, unix.WUNTRACED|unix.WNOHANG)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.ECHILD:
			return
		case err != nil:
			s.reapAnomaly(0, err.Error())
			return
		case pid <= 0:
			return
		}

		s.MarkProcessStatus(pid, status)
	}
}

// MarkProcessStatus records a wait status for the process with the given pid,
// looking it up across the whole job table. It returns false for pids that
// don't belong to any job.
func (s *Session) MarkProcessStatus(pid int, status unix.WaitStatus) bool {
	j, p := s.Jobs.FindProcess(pid)
	if p == nil {
		s.reapAnomaly(pid, "unknown child process")
		return false
	}

	p.Update(status)

	if status.Signaled() {
		sig := status.Signal()
		if sig != unix.SIGINT && sig != unix.SIGPIPE {
			s.Errorf("%d: Terminated by signal %d.", pid, int(sig))
		}
		s.record(logger.EventProcessSignaled, logger.Fields{
			"job":    j.ID,
			"pid":    pid,
			"signal": unix.SignalName(sig),
		})
	}
	return true
}

func (s *Session) reapAnomaly(pid int, msg string) {
	if pid > 0 {
		s.Errorf("wait: %d: %s", pid, msg)
	} else {
		s.Errorf("wait: %s", msg)
	}

	s.record(logger.EventReapAnomaly, logger.Fields{
		"pid":   pid,
		"error": msg,
	})
}
