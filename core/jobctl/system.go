package jobctl

import (
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

// System is the part of the operating system the engine talks to. It exists
// so tests can script stop notifications and terminal handoffs without a
// real terminal.
type System interface {
	// LookPath resolves a command name to an executable.
	LookPath(file string) (string, error)
	// StartProcess starts a program and returns its pid. The process is
	// released: the caller must reap it with Wait4.
	StartProcess(path string, argv []string, attr *os.ProcAttr) (int, error)
	// Wait4 waits for a state change of a child, see wait4(2).
	Wait4(pid int, options int) (int, unix.WaitStatus, error)
	// Kill sends a signal to a process or process group (negative pid).
	Kill(pid int, sig unix.Signal) error

	Getpid() int
	Getpgrp() int
	Setpgid(pid, pgid int) error

	// Tcgetpgrp returns the foreground process group of the terminal.
	Tcgetpgrp(fd int) (int, error)
	// Tcsetpgrp makes pgid the foreground process group of the terminal.
	Tcsetpgrp(fd, pgid int) error
	// GetTermios reads the terminal modes.
	GetTermios(fd int) (*unix.Termios, error)
	// SetTermios sets the terminal modes after pending output drains.
	SetTermios(fd int, termios *unix.Termios) error
}

// OS is the System backed by the running kernel.
type OS struct{}

var _ System = OS{}

func (OS) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (OS) StartProcess(path string, argv []string, attr *os.ProcAttr) (int, error) {
	proc, err := os.StartProcess(path, argv, attr)
	if err != nil {
		return 0, err
	}
	pid := proc.Pid
	// The engine reaps with wait4 on the process group so the handle isn't
	// needed.
	proc.Release()
	return pid, nil
}

func (OS) Wait4(pid int, options int) (int, unix.WaitStatus, error) {
	var status unix.WaitStatus
	wpid, err := unix.Wait4(pid, &status, options, nil)
	return wpid, status, err
}

func (OS) Kill(pid int, sig unix.Signal) error {
	return unix.Kill(pid, sig)
}

func (OS) Getpid() int {
	return unix.Getpid()
}

func (OS) Getpgrp() int {
	return unix.Getpgrp()
}

func (OS) Setpgid(pid, pgid int) error {
	return unix.Setpgid(pid, pgid)
}

func (OS) Tcgetpgrp(fd int) (int, error) {
	return unix.IoctlGetInt(fd, unix.TIOCGPGRP)
}

func (OS) Tcsetpgrp(fd, pgid int) error {
	return unix.IoctlSetPointerInt(fd, unix.TIOCSPGRP, pgid)
}

func (OS) GetTermios(fd int) (*unix.Termios, error) {
	return unix.IoctlGetTermios(fd, ioctlReadTermios)
}

func (OS) SetTermios(fd int, termios *unix.Termios) error {
	return unix.IoctlSetTermios(fd, ioctlWriteTermios, termios)
}
