package jobctl

import (
	"io"
	"os/signal"
	"strings"
	"testing"

	"github.com/josephlewis42/jobsh/core/job"
	"github.com/josephlewis42/jobsh/core/jobctl/systest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestNewSession_claimsTerminal(t *testing.T) {
	t.Run("background-shell", func(t *testing.T) {
		fake := systest.New()
		fake.TTYPgrp = 7

		s, err := NewSession(Options{Out: io.Discard, Err: io.Discard, Interactive: true, System: fake})
		require.Nil(t, err)
		defer s.Close()

		assert.Equal(t, []string{"kill -100 SIGTTIN", "tcsetpgrp 100"}, fake.CallsWithPrefix("kill", "tcsetpgrp"))
		assert.Equal(t, 100, s.Pgid())
	})

	t.Run("own-group", func(t *testing.T) {
		fake := systest.New()
		fake.Pgrp = 50
		fake.TTYPgrp = 50

		s, err := NewSession(Options{Out: io.Discard, Err: io.Discard, Interactive: true, System: fake})
		require.Nil(t, err)
		defer s.Close()

		assert.Equal(t, 100, fake.Pgrp, "shell moved to its own group")
		assert.Equal(t, 100, fake.TTYPgrp)
		assert.True(t, s.Interactive())
	})

	t.Run("non-interactive", func(t *testing.T) {
		fake := systest.New()
		fake.Pgrp = 50

		s, err := NewSession(Options{Out: io.Discard, Err: io.Discard, System: fake})
		require.Nil(t, err)
		defer s.Close()

		assert.Empty(t, fake.Calls)
		assert.Equal(t, 50, s.Pgid())
		assert.False(t, s.Interactive())
	})
}

func TestForeground_stopAndResume(t *testing.T) {
	ts := newFakeSession(t, true, nil)
	ts.sys.Termios.Lflag = 1

	// The session saved the shell's modes when it was created.
	ts.Session.termios.Lflag = 1

	ts.sys.Events = []systest.WaitEvent{{Pid: 1000, Status: systest.Stopped(unix.SIGTSTP)}}
	ts.sys.OnWait = func(int) {
		// The job changes the terminal modes while it runs.
		ts.sys.Termios.Lflag = 42
	}

	j := pipeline("vim notes.txt")
	outcome, err := ts.Launch(j)
	require.Nil(t, err)

	assert.Equal(t, job.Stopped, outcome.State)
	require.NotNil(t, j.Termios)
	assert.EqualValues(t, 42, j.Termios.Lflag, "job modes saved")
	assert.EqualValues(t, 1, ts.sys.Termios.Lflag, "shell modes restored")
	assert.Equal(t, 100, ts.sys.TTYPgrp)

	ts.Reclaim()
	assert.Equal(t, "[1]+  Stopped                 vim notes.txt\n", ts.out.String())
	assert.Equal(t, 1, ts.Jobs.Len(), "stopped jobs stay registered")

	// fg
	ts.sys.Calls = nil
	ts.sys.Events = []systest.WaitEvent{{Pid: 1000, Status: systest.Exited(0)}}
	ts.sys.OnWait = func(int) {
		assert.False(t, j.Processes[0].Stopped, "stopped flags cleared before waiting")
		assert.EqualValues(t, 42, ts.sys.Termios.Lflag, "job modes restored before waiting")
	}

	require.Nil(t, ts.Foreground(j, true))
	assert.Equal(t, job.Completed, j.State())
	assert.Equal(t, []string{
		"settermios lflag=42",
		"tcsetpgrp 1000",
		"kill -1000 SIGCONT",
		"wait4 -1000",
		"tcsetpgrp 100",
		"settermios lflag=1",
	}, ts.sys.Calls)

	ts.out.Reset()
	ts.Reclaim()
	assert.Empty(t, ts.out.String(), "foreground completion isn't announced")
	assert.Equal(t, 0, ts.Jobs.Len())
}

func TestForeground_terminalCallsFromBackground(t *testing.T) {
	fake := systest.New()
	fake.Pgrp = 50
	fake.TTYPgrp = 50
	fake.Termios.Lflag = 1
	fake.Events = []systest.WaitEvent{{Pid: 1000, Status: systest.Stopped(unix.SIGTSTP)}}

	errOut := &strings.Builder{}
	s, err := NewSession(Options{Out: io.Discard, Err: errOut, Interactive: true, System: fake})
	require.Nil(t, err, "shell leaves the foreground group before taking the terminal")

	j := pipeline("vim notes.txt")
	s.Launch(j)
	require.True(t, j.IsStopped())

	fake.Events = []systest.WaitEvent{{Pid: 1000, Status: systest.Exited(0)}}
	require.Nil(t, s.Foreground(j, true))
	require.Nil(t, s.Close())

	for _, call := range fake.Calls {
		assert.False(t, strings.HasSuffix(call, "SIGTTOU"), "refused call: %s", call)
	}
	assert.Empty(t, errOut.String())
	assert.Equal(t, 100, fake.TTYPgrp)
	assert.False(t, signal.Ignored(unix.SIGTTOU), "children must inherit the default disposition")
}

func TestForeground_nonInteractive(t *testing.T) {
	ts := newFakeSession(t, false, nil)
	ts.sys.Events = []systest.WaitEvent{{Pid: 1000, Status: systest.Stopped(unix.SIGSTOP)}}

	j := pipeline("sleep 10")
	_, err := ts.Launch(j)
	require.Nil(t, err)
	require.True(t, j.IsStopped())

	ts.sys.Calls = nil
	ts.sys.Events = []systest.WaitEvent{{Pid: 1000, Status: systest.Exited(0)}}
	require.Nil(t, ts.Foreground(j, true))

	assert.Equal(t, []string{"kill -1000 SIGCONT", "wait4 -1000"}, ts.sys.Calls)
}

func TestForeground_continueFails(t *testing.T) {
	ts := newFakeSession(t, true, nil)
	ts.sys.Events = []systest.WaitEvent{{Pid: 1000, Status: systest.Stopped(unix.SIGTSTP)}}

	j := pipeline("sleep 10")
	ts.Launch(j)

	ts.sys.Calls = nil
	ts.sys.KillErr = unix.ESRCH
	err := ts.Foreground(j, true)

	assert.ErrorIs(t, err, unix.ESRCH)
	assert.Empty(t, ts.sys.CallsWithPrefix("wait4"))
	assert.Equal(t, 100, ts.sys.TTYPgrp, "terminal returned to the shell")
}

func TestBackground(t *testing.T) {
	ts := newFakeSession(t, true, nil)
	ts.sys.Events = []systest.WaitEvent{{Pid: 1000, Status: systest.Stopped(unix.SIGTSTP)}}

	j := pipeline("make")
	ts.Launch(j)
	require.True(t, j.IsStopped())

	ts.sys.Calls = nil
	require.Nil(t, ts.Background(j, true))

	assert.True(t, j.Background)
	assert.Equal(t, job.Running, j.State())
	assert.Equal(t, []string{"kill -1000 SIGCONT"}, ts.sys.Calls)
}

func TestWaitJob_otherJobs(t *testing.T) {
	ts := newFakeSession(t, false, nil)

	bg := pipeline("sleep 100")
	bg.Background = true
	ts.Launch(bg)

	ts.sys.Events = []systest.WaitEvent{
		{Pid: 1000, Status: systest.Exited(0)},
		{Pid: 4242, Status: systest.Exited(0)},
		{Pid: 1001, Status: systest.Exited(0)},
	}
	fg := pipeline("sleep 1")
	ts.Launch(fg)

	assert.True(t, bg.IsCompleted(), "status mapped across the table")
	assert.True(t, fg.IsCompleted())
	assert.Contains(t, ts.errOut.String(), "jobsh: wait: 4242: unknown child process")
}

func TestMarkProcessStatus_signaled(t *testing.T) {
	cases := map[string]struct {
		sig  unix.Signal
		want string
	}{
		"terminated": {unix.SIGTERM, "jobsh: 1000: Terminated by signal 15.\n"},
		"interrupt":  {unix.SIGINT, ""},
		"pipe":       {unix.SIGPIPE, ""},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			ts := newFakeSession(t, false, nil)
			ts.sys.Events = []systest.WaitEvent{{Pid: 1000, Status: systest.Signaled(tc.sig)}}

			outcome, err := ts.Launch(pipeline("yes"))
			require.Nil(t, err)

			assert.Equal(t, job.Completed, outcome.State)
			assert.Equal(t, 128+int(tc.sig), outcome.ExitStatus)
			assert.Equal(t, tc.want, ts.errOut.String())
		})
	}
}

func TestWaitJob_noChildren(t *testing.T) {
	ts := newFakeSession(t, false, nil)

	j := pipeline("a", "b")
	outcome, err := ts.Launch(j)
	require.Nil(t, err)

	assert.Equal(t, job.Completed, outcome.State, "ECHILD ends the wait")
}

func TestClose(t *testing.T) {
	fake := systest.New()
	fake.Events = []systest.WaitEvent{{Pid: 1000, Status: systest.Stopped(unix.SIGTSTP)}}

	s, err := NewSession(Options{Out: io.Discard, Err: io.Discard, Interactive: true, System: fake})
	require.Nil(t, err)

	s.Launch(pipeline("vim"))
	fake.Calls = nil
	require.Nil(t, s.Close())

	assert.Equal(t, []string{
		"kill -1000 SIGHUP",
		"kill -1000 SIGCONT",
		"settermios lflag=0",
	}, fake.Calls)
	assert.Equal(t, 0, s.Jobs.Len())
}
