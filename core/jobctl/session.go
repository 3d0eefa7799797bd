// Package jobctl is the job control engine: it launches pipelines into
// process groups, hands the terminal to foreground jobs and tracks the state
// of every child the shell started.
package jobctl

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/josephlewis42/jobsh/core/job"
	"github.com/josephlewis42/jobsh/core/logger"
	"golang.org/x/sys/unix"
)

var (
	// ErrResource is returned when the OS refuses to create a process or pipe.
	// The shell can't make progress after it.
	ErrResource = errors.New("out of resources")

	// ErrNotInteractive is returned by operations that need a terminal.
	ErrNotInteractive = errors.New("no job control in this shell")
)

// jobControlSignals are caught rather than ignored so children started with
// exec get the default disposition back. SIGTTOU is only ignored around the
// shell's own terminal ioctls, see ignoringTTOU.
var jobControlSignals = []os.Signal{
	unix.SIGINT,
	unix.SIGQUIT,
	unix.SIGTSTP,
	unix.SIGTTIN,
	unix.SIGTTOU,
}

// Stdio holds the streams handed to a built-in.
type Stdio struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Builtin is a command executed inside the shell process. It returns the
// exit status of the command.
type Builtin func(s *Session, argv []string, stdio Stdio) int

// BuiltinHandler resolves built-in commands by name.
type BuiltinHandler interface {
	Lookup(name string) (Builtin, bool)
}

// BuiltinMap is a BuiltinHandler backed by a map.
type BuiltinMap map[string]Builtin

// Lookup implements BuiltinHandler.
func (m BuiltinMap) Lookup(name string) (Builtin, bool) {
	b, ok := m[name]
	return b, ok
}

// Options configure a Session.
type Options struct {
	// Stdin, Stdout and Stderr are inherited by jobs. They default to the
	// process's own streams.
	Stdin, Stdout, Stderr *os.File

	// Out and Err receive the shell's own messages: job notifications and
	// diagnostics. They default to Stdout and Stderr.
	Out, Err io.Writer

	// Interactive enables job control over TTY.
	Interactive bool
	// TTY is the controlling terminal, it defaults to Stdin.
	TTY *os.File

	// System defaults to the running OS.
	System System
	// Builtins is consulted for single stage pipelines.
	Builtins BuiltinHandler
	// Logger receives structured events, it defaults to a no-op logger.
	Logger *logger.SessionLogger
}

// Session holds the state of one shell: its terminal, process group, modes
// and the table of jobs it started.
type Session struct {
	// Jobs holds the registered jobs.
	Jobs *job.Table

	stdio       [3]*os.File
	out, errOut io.Writer

	interactive bool
	tty         *os.File
	ttyFd       int
	pgid        int
	termios     *unix.Termios
	signals     chan os.Signal

	sys      System
	builtins BuiltinHandler
	log      *logger.SessionLogger
}

// NewSession creates a session. Interactive sessions wait until the shell is
// in the foreground of its terminal, put the shell in its own process group
// and take the terminal.
func NewSession(opts Options) (*Session, error) {
	s := &Session{
		Jobs:        job.NewTable(),
		stdio:       [3]*os.File{opts.Stdin, opts.Stdout, opts.Stderr},
		out:         opts.Out,
		errOut:      opts.Err,
		interactive: opts.Interactive,
		tty:         opts.TTY,
		sys:         opts.System,
		builtins:    opts.Builtins,
		log:         opts.Logger,
		ttyFd:       -1,
	}

	for i, def := range []*os.File{os.Stdin, os.Stdout, os.Stderr} {
		if s.stdio[i] == nil {
			s.stdio[i] = def
		}
	}
	if s.out == nil {
		s.out = s.stdio[1]
	}
	if s.errOut == nil {
		s.errOut = s.stdio[2]
	}
	if s.sys == nil {
		s.sys = OS{}
	}
	if s.log == nil {
		s.log = logger.NewNopLogger().Sessionless()
	}

	if s.interactive {
		if err := s.claimTerminal(); err != nil {
			return nil, err
		}
	} else {
		s.pgid = s.sys.Getpgrp()
	}

	s.record(logger.EventSessionStart, logger.Fields{
		"interactive": s.interactive,
		"pid":         s.sys.Getpid(),
		"pgid":        s.pgid,
	})

	return s, nil
}

func (s *Session) claimTerminal() error {
	if s.tty == nil {
		s.tty = s.stdio[0]
	}
	s.ttyFd = int(s.tty.Fd())

	// Loop until the shell is in the foreground, a background shell is
	// stopped by SIGTTIN until it's moved to the foreground.
	for {
		pgrp := s.sys.Getpgrp()
		fg, err := s.sys.Tcgetpgrp(s.ttyFd)
		if err != nil {
			return fmt.Errorf("couldn't read terminal process group: %w", err)
		}
		if fg == pgrp {
			break
		}
		if err := s.sys.Kill(-pgrp, unix.SIGTTIN); err != nil {
			return fmt.Errorf("couldn't stop shell: %w", err)
		}
	}

	s.signals = make(chan os.Signal, 16)
	signal.Notify(s.signals, jobControlSignals...)

	pid := s.sys.Getpid()
	if s.sys.Getpgrp() != pid {
		if err := s.sys.Setpgid(pid, pid); err != nil {
			signal.Stop(s.signals)
			return fmt.Errorf("couldn't put the shell in its own process group: %w", err)
		}
	}
	s.pgid = pid

	// The shell may have just left the foreground group.
	var err error
	s.ignoringTTOU(func() {
		err = s.sys.Tcsetpgrp(s.ttyFd, s.pgid)
	})
	if err != nil {
		signal.Stop(s.signals)
		return fmt.Errorf("couldn't take terminal: %w", err)
	}

	termios, err := s.sys.GetTermios(s.ttyFd)
	if err != nil {
		signal.Stop(s.signals)
		return fmt.Errorf("couldn't read terminal modes: %w", err)
	}
	s.termios = termios
	return nil
}

// Close restores the shell's terminal modes, stops catching job control
// signals and releases the registered jobs. Stopped jobs are sent SIGHUP
// followed by SIGCONT so they don't linger.
func (s *Session) Close() error {
	var lastErr error

	for _, j := range s.Jobs.Jobs() {
		if j.IsStopped() && j.Started() {
			s.sys.Kill(-j.Pgid, unix.SIGHUP)
			s.sys.Kill(-j.Pgid, unix.SIGCONT)
		}
		if err := j.CloseFiles(); err != nil {
			lastErr = err
		}
		s.Jobs.Remove(j.ID)
	}

	if s.interactive {
		if s.termios != nil {
			s.ignoringTTOU(func() {
				if err := s.sys.SetTermios(s.ttyFd, s.termios); err != nil {
					lastErr = err
				}
			})
		}
		signal.Stop(s.signals)
	}

	return lastErr
}

// Interactive returns true if the session does job control over a terminal.
func (s *Session) Interactive() bool {
	return s.interactive
}

// Pgid returns the shell's process group.
func (s *Session) Pgid() int {
	return s.pgid
}

// Out returns the writer for shell messages.
func (s *Session) Out() io.Writer {
	return s.out
}

// Err returns the writer for shell diagnostics.
func (s *Session) Err() io.Writer {
	return s.errOut
}

// Stdio returns the streams jobs inherit.
func (s *Session) Stdio() Stdio {
	return Stdio{In: s.stdio[0], Out: s.stdio[1], Err: s.stdio[2]}
}

// Logger returns the session's event logger.
func (s *Session) Logger() *logger.SessionLogger {
	return s.log
}

// Signal sends sig to pid, negative pids address process groups.
func (s *Session) Signal(pid int, sig unix.Signal) error {
	return s.sys.Kill(pid, sig)
}

// Errorf prints a diagnostic prefixed with the shell name.
func (s *Session) Errorf(format string, a ...interface{}) {
	fmt.Fprintf(s.errOut, "jobsh: "+format+"\n", a...)
}

func (s *Session) record(eventType logger.EventType, fields logger.Fields) {
	if err := s.log.Record(eventType, fields); err != nil {
		log.Printf("couldn't record %s event: %v", eventType, err)
	}
}
