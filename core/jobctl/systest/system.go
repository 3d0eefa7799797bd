// Package systest provides a scripted jobctl.System for tests.
package systest

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// WaitEvent is a scripted result of a Wait4 call.
type WaitEvent struct {
	Pid    int
	Status unix.WaitStatus
	Err    error
}

// Exited is the status of a process that exited with code.
func Exited(code int) unix.WaitStatus {
	return unix.WaitStatus((code & 0xff) << 8)
}

// Stopped is the status of a process stopped by sig.
func Stopped(sig unix.Signal) unix.WaitStatus {
	return unix.WaitStatus(0x7f | int(sig)<<8)
}

// Signaled is the status of a process killed by sig.
func Signaled(sig unix.Signal) unix.WaitStatus {
	return unix.WaitStatus(int(sig))
}

// Started records a call to StartProcess.
type Started struct {
	Path string
	Argv []string
	Attr *os.ProcAttr
	// Pipes holds the inode of each standard stream that was a pipe when the
	// process started, zero for anything else.
	Pipes [3]uint64
}

func pipeInodes(files []*os.File) [3]uint64 {
	var inodes [3]uint64
	for i := 0; i < len(files) && i < len(inodes); i++ {
		if files[i] == nil {
			continue
		}
		fi, err := files[i].Stat()
		if err != nil || fi.Mode()&os.ModeNamedPipe == 0 {
			continue
		}
		if st, ok := fi.Sys().(*syscall.Stat_t); ok {
			inodes[i] = uint64(st.Ino)
		}
	}
	return inodes
}

// System is a fake operating system. Processes are never really started:
// each StartProcess call hands out the next pid and Wait4 replays Events in
// order, returning ECHILD once they run out.
//
// Like a real terminal, Tcsetpgrp and SetTermios are refused when the shell
// isn't in the foreground group unless SIGTTOU is ignored. A real kernel
// would stop the shell or, with the signal caught, restart the call forever.
type System struct {
	Pid  int
	Pgrp int
	// TTYPgrp is the foreground process group of the terminal.
	TTYPgrp int
	// Termios holds the current terminal modes.
	Termios unix.Termios

	// NextPid is handed out by the next StartProcess call.
	NextPid int
	// Missing commands fail LookPath.
	Missing map[string]bool
	// StartErrors fail StartProcess for the given argv[0].
	StartErrors map[string]error
	// KillErr is returned by every Kill call.
	KillErr error

	Events []WaitEvent
	// OnWait is called at the start of each Wait4 call.
	OnWait func(pid int)

	// Calls records the calls that touch processes or the terminal.
	Calls   []string
	Started []Started
}

// New creates a fake OS whose shell is pid 100 in the foreground of its
// terminal.
func New() *System {
	return &System{
		Pid:     100,
		Pgrp:    100,
		TTYPgrp: 100,
		NextPid: 1000,
	}
}

func (s *System) call(format string, a ...interface{}) {
	s.Calls = append(s.Calls, fmt.Sprintf(format, a...))
}

// CallsWithPrefix filters the recorded calls.
func (s *System) CallsWithPrefix(prefixes ...string) []string {
	var out []string
	for _, c := range s.Calls {
		for _, prefix := range prefixes {
			if strings.HasPrefix(c, prefix) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func (s *System) LookPath(file string) (string, error) {
	if s.Missing[file] {
		return "", &exec.Error{Name: file, Err: exec.ErrNotFound}
	}
	if strings.Contains(file, "/") {
		return file, nil
	}
	return "/usr/bin/" + file, nil
}

func (s *System) StartProcess(path string, argv []string, attr *os.ProcAttr) (int, error) {
	if len(argv) > 0 {
		if err := s.StartErrors[argv[0]]; err != nil {
			return 0, &os.PathError{Op: "fork/exec", Path: path, Err: err}
		}
	}

	pid := s.NextPid
	s.NextPid++
	started := Started{Path: path, Argv: argv, Attr: attr}
	if attr != nil {
		started.Pipes = pipeInodes(attr.Files)
	}
	s.Started = append(s.Started, started)
	s.call("start %d %s", pid, strings.Join(argv, " "))

	// The child takes the terminal before exec.
	if attr != nil && attr.Sys != nil && attr.Sys.Foreground {
		pgid := attr.Sys.Pgid
		if pgid == 0 {
			pgid = pid
		}
		s.TTYPgrp = pgid
	}
	return pid, nil
}

func (s *System) Wait4(pid int, options int) (int, unix.WaitStatus, error) {
	s.call("wait4 %d", pid)
	if s.OnWait != nil {
		s.OnWait(pid)
	}

	if len(s.Events) == 0 {
		if options&unix.WNOHANG != 0 {
			return 0, 0, nil
		}
		return 0, 0, unix.ECHILD
	}

	ev := s.Events[0]
	s.Events = s.Events[1:]
	return ev.Pid, ev.Status, ev.Err
}

func (s *System) Kill(pid int, sig unix.Signal) error {
	s.call("kill %d %s", pid, unix.SignalName(sig))

	// A background shell stopping itself is resumed in the foreground.
	if sig == unix.SIGTTIN && pid == -s.Pgrp {
		s.TTYPgrp = s.Pgrp
	}
	return s.KillErr
}

func (s *System) Getpid() int {
	return s.Pid
}

func (s *System) Getpgrp() int {
	return s.Pgrp
}

func (s *System) Setpgid(pid, pgid int) error {
	if pid == s.Pid {
		s.Pgrp = pgid
	}
	return nil
}

func (s *System) Tcgetpgrp(fd int) (int, error) {
	return s.TTYPgrp, nil
}

// background reports whether a terminal ioctl from the shell would be
// refused with SIGTTOU.
func (s *System) background() bool {
	return s.TTYPgrp != s.Pgrp && !signal.Ignored(unix.SIGTTOU)
}

func (s *System) Tcsetpgrp(fd, pgid int) error {
	if s.background() {
		s.call("tcsetpgrp %d: SIGTTOU", pgid)
		return unix.EIO
	}
	s.call("tcsetpgrp %d", pgid)
	s.TTYPgrp = pgid
	return nil
}

func (s *System) GetTermios(fd int) (*unix.Termios, error) {
	termios := s.Termios
	return &termios, nil
}

func (s *System) SetTermios(fd int, termios *unix.Termios) error {
	if s.background() {
		s.call("settermios lflag=%d: SIGTTOU", termios.Lflag)
		return unix.EIO
	}
	s.call("settermios lflag=%d", termios.Lflag)
	s.Termios = *termios
	return nil
}
