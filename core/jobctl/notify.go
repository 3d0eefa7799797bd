package jobctl

import (
	"fmt"

	"github.com/josephlewis42/jobsh/core/job"
	"github.com/josephlewis42/jobsh/core/logger"
)

// FormatJob renders a job the way the jobs listing and notifications show
// it, e.g. "[1]+  Stopped                 vim notes.txt".
func (s *Session) FormatJob(j *job.Job) string {
	state := j.State()

	text := state.String()
	if state == job.Completed && j.ExitStatus() != 0 {
		text = fmt.Sprintf("Done(%d)", j.ExitStatus())
	}

	command := j.Command
	if state == job.Running && j.Background {
		command += " &"
	}

	return fmt.Sprintf("[%d]%c  %-24s%s", j.ID, s.Jobs.Designator(j), text, command)
}

// Reclaim is run after every command. It notifies the user about jobs that
// stopped and background jobs that completed, then removes completed jobs
// from the table.
func (s *Session) Reclaim() {
	for _, j := range s.Jobs.Jobs() {
		state, changed := j.Changed()
		if !changed {
			continue
		}

		if state == job.Stopped || (state == job.Completed && j.Background) {
			fmt.Fprintln(s.out, s.FormatJob(j))
		}
		s.Notified(j)
	}

	s.Jobs.RemoveCompleted(func(j *job.Job) {
		if err := j.CloseFiles(); err != nil {
			s.Errorf("%v", err)
		}
	})
}

// Notified marks the current state of j as reported to the user so Reclaim
// doesn't announce it again.
func (s *Session) Notified(j *job.Job) {
	if _, changed := j.Changed(); !changed {
		return
	}
	s.recordState(j)
	j.MarkReported()
}

func (s *Session) recordState(j *job.Job) {
	s.record(logger.EventJobState, logger.Fields{
		"job":     j.ID,
		"pgid":    j.Pgid,
		"command": j.Command,
		"state":   j.State().String(),
		"status":  j.ExitStatus(),
	})
}
