package jobctl

import (
	"fmt"
	"os/signal"

	"github.com/josephlewis42/jobsh/core/job"
	"golang.org/x/sys/unix"
)

// Foreground gives the terminal to j and waits until it stops or completes,
// then takes the terminal back for the shell. If cont is set the job's saved
// terminal modes are restored and it's sent SIGCONT first.
//
// Sessions without job control skip the terminal handoff but still wait.
func (s *Session) Foreground(j *job.Job, cont bool) error {
	j.Background = false
	if !j.Started() {
		return nil
	}

	if s.interactive {
		s.ignoringTTOU(func() {
			// The job's modes go back while the shell still owns the terminal.
			if cont && j.Termios != nil {
				if err := s.sys.SetTermios(s.ttyFd, j.Termios); err != nil {
					s.Errorf("couldn't restore terminal modes: %v", err)
				}
			}

			// A leader started in the foreground already took the terminal.
			if fg, err := s.sys.Tcgetpgrp(s.ttyFd); err == nil && fg == j.Pgid {
				return
			}
			if err := s.sys.Tcsetpgrp(s.ttyFd, j.Pgid); err != nil {
				s.Errorf("couldn't give terminal to job %d: %v", j.ID, err)
			}
		})
	}

	var contErr error
	if cont {
		j.Continue()
		if err := s.sys.Kill(-j.Pgid, unix.SIGCONT); err != nil {
			contErr = fmt.Errorf("kill (SIGCONT): %w", err)
		}
	}

	if contErr == nil {
		s.WaitJob(j)
	}

	if s.interactive {
		s.ignoringTTOU(func() {
			if err := s.sys.Tcsetpgrp(s.ttyFd, s.pgid); err != nil {
				s.Errorf("couldn't take back terminal: %v", err)
			}

			if termios, err := s.sys.GetTermios(s.ttyFd); err == nil {
				j.Termios = termios
			}
			if s.termios != nil {
				if err := s.sys.SetTermios(s.ttyFd, s.termios); err != nil {
					s.Errorf("couldn't restore terminal modes: %v", err)
				}
			}
		})
	}

	return contErr
}

// Background marks j as running without the terminal. If cont is set the job
// is sent SIGCONT. It never waits.
func (s *Session) Background(j *job.Job, cont bool) error {
	j.Background = true
	if !cont || !j.Started() {
		return nil
	}

	j.Continue()
	if err := s.sys.Kill(-j.Pgid, unix.SIGCONT); err != nil {
		return fmt.Errorf("kill (SIGCONT): %w", err)
	}
	return nil
}

// ignoringTTOU runs fn with SIGTTOU ignored. Terminal ioctls from a
// background group are refused with SIGTTOU and restarted for as long as the
// signal is caught, so every ioctl that changes the terminal goes through
// here. Children must never be started inside fn: an ignored disposition
// survives exec.
func (s *Session) ignoringTTOU(fn func()) {
	signal.Ignore(unix.SIGTTOU)
	defer func() {
		if s.signals != nil {
			signal.Notify(s.signals, unix.SIGTTOU)
		}
	}()

	fn()
}
