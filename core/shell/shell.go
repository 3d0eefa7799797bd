// Package shell is the interactive front end of jobsh: it reads lines,
// parses them into pipelines and hands them to the job control engine.
package shell

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/abiosoft/readline"
	"github.com/josephlewis42/jobsh/core/config"
	"github.com/josephlewis42/jobsh/core/jobctl"
	"github.com/josephlewis42/jobsh/core/logger"
)

const (
	// DefaultPrompt is the prompt used when colors are disabled.
	DefaultPrompt = `\u@\h:\w\$ `
	// DefaultColorPrompt mimics the Debian bash prompt.
	DefaultColorPrompt = `\033[01;32m\u@\h\033[00m:\033[01;34m\w\033[00m\$ `
)

// Options configure a Shell.
type Options struct {
	// Config defaults to the built-in configuration.
	Config *config.Configuration

	// Stdin, Stdout and Stderr default to the process's streams.
	Stdin, Stdout, Stderr *os.File

	// Interactive enables line editing and job control.
	Interactive bool

	// System defaults to the running OS.
	System jobctl.System
	// Logger defaults to a no-op logger.
	Logger *logger.SessionLogger
}

// Shell reads commands and runs them as jobs.
type Shell struct {
	Session  *jobctl.Session
	Config   *config.Configuration
	Readline *readline.Instance

	// Quit is set once the shell should stop reading commands.
	Quit bool

	input    *pausableInput
	ttyFiles []*os.File
	history  []string

	lastStatus int
	exitStatus *int
	fatal      error
}

// New creates a shell. Interactive shells take over the controlling
// terminal, the call blocks until the shell is in the foreground.
func New(opts Options) (*Shell, error) {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	sh := &Shell{Config: opts.Config}

	sessionOpts := jobctl.Options{
		Stdin:       opts.Stdin,
		Stdout:      opts.Stdout,
		Stderr:      opts.Stderr,
		Interactive: opts.Interactive,
		System:      opts.System,
		Builtins:    sh,
		Logger:      opts.Logger,
	}

	var ttyErr error
	if opts.Interactive {
		var ctl, in *os.File
		ctl, in, ttyErr = sh.openTerminal(opts.Stdin)
		sessionOpts.TTY = ctl
		sh.input = newPausableInput(in)
	}

	session, err := jobctl.NewSession(sessionOpts)
	if err != nil {
		sh.closeTerminal()
		return nil, err
	}
	sh.Session = session

	if ttyErr != nil {
		session.Errorf("%v, input typed while a job runs may be read by the shell", ttyErr)
	}

	if opts.Interactive {
		cfg := &readline.Config{
			Stdin:           readline.NewCancelableStdin(sh.input),
			Stdout:          opts.Stdout,
			Stderr:          opts.Stderr,
			HistoryFile:     opts.Config.HistoryPath(),
			HistoryLimit:    opts.Config.HistoryLimit,
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		}

		if err := cfg.Init(); err != nil {
			session.Close()
			sh.closeTerminal()
			return nil, err
		}

		rl, err := readline.NewEx(cfg)
		if err != nil {
			session.Close()
			sh.closeTerminal()
			return nil, err
		}
		sh.Readline = rl
	}

	return sh, nil
}

// ttyPath is the controlling terminal device.
var ttyPath = "/dev/tty"

// openTerminal opens two handles on the controlling terminal: one for the
// job control ioctls and one the line editor reads from. Reads on the second
// can be interrupted with deadlines, which stop working on a file once its
// descriptor has been handed out with Fd().
//
// If the terminal can't be opened stdin serves both and the error is
// returned. Reads already blocked on stdin can't be paused for jobs.
func (sh *Shell) openTerminal(stdin *os.File) (ctl, in *os.File, err error) {
	ctl, err = os.OpenFile(ttyPath, os.O_RDWR, 0)
	if err != nil {
		return stdin, stdin, err
	}

	in, err = os.OpenFile(ttyPath, os.O_RDONLY, 0)
	if err != nil {
		ctl.Close()
		return stdin, stdin, err
	}

	sh.ttyFiles = append(sh.ttyFiles, ctl, in)
	return ctl, in, nil
}

func (sh *Shell) closeTerminal() {
	for _, f := range sh.ttyFiles {
		f.Close()
	}
	sh.ttyFiles = nil
}

// Close releases the terminal and the jobs the shell still holds.
func (sh *Shell) Close() error {
	if sh.input != nil {
		sh.input.Close()
	}
	if sh.Readline != nil {
		sh.Readline.Close()
	}

	err := sh.Session.Close()
	sh.closeTerminal()
	return err
}

// RunInteractive reads and runs commands until EOF or exit.
func (sh *Shell) RunInteractive() int {
	for !sh.Quit {
		sh.Session.Poll()
		sh.Session.Reclaim()

		sh.Readline.SetPrompt(sh.prompt())
		line, err := sh.Readline.Readline()

		switch {
		case err == io.EOF:
			return sh.status() // Input closed, quit.

		case err == readline.ErrInterrupt:
			// Interrupt clears line.
			continue

		case err != nil:
			log.Printf("Error readline: %v", err)
			sh.fatal = err
			return sh.status()

		case strings.TrimSpace(line) == "":
			continue // empty line

		default:
			sh.history = append(sh.history, line)
			sh.RunLine(line)
		}
	}

	return sh.status()
}

// RunCommand runs the commands in line and returns the shell's exit status.
func (sh *Shell) RunCommand(line string) int {
	sh.RunLine(line)
	return sh.status()
}

// RunScript runs r line by line and returns the shell's exit status.
// Lines that fail to parse are reported and skipped.
func (sh *Shell) RunScript(r io.Reader) int {
	scanner := bufio.NewScanner(r)
	for !sh.Quit && scanner.Scan() {
		sh.RunLine(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		sh.Session.Errorf("%v", err)
		sh.lastStatus = 1
	}

	return sh.status()
}

// RunLine parses line and runs each pipeline in it, returning the status of
// the last one.
func (sh *Shell) RunLine(line string) int {
	jobs, err := Parse(line)
	if err != nil {
		if errors.Is(err, ErrUnsupported) {
			sh.Session.Errorf("%v", err)
		} else {
			sh.Session.Errorf("syntax error: %v", err)
		}
		sh.lastStatus = 2
		return sh.lastStatus
	}

	for _, j := range jobs {
		if sh.Quit {
			break
		}

		sh.pauseInput()
		outcome, err := sh.Session.Launch(j)
		sh.resumeInput()

		if err != nil {
			sh.Session.Errorf("%v", err)
			sh.fatal = err
			sh.Quit = true
			return 1
		}

		sh.lastStatus = outcome.ExitStatus
		sh.Session.Poll()
		sh.Session.Reclaim()
	}

	return sh.lastStatus
}

// status is the exit status of the shell if it stopped now.
func (sh *Shell) status() int {
	switch {
	case sh.fatal != nil:
		return 1
	case sh.exitStatus != nil:
		return *sh.exitStatus
	case sh.Session.Interactive():
		return 0
	default:
		return sh.lastStatus
	}
}

// Fatal returns the error that stopped the shell, if any.
func (sh *Shell) Fatal() error {
	return sh.fatal
}

func (sh *Shell) pauseInput() {
	if sh.input != nil {
		sh.input.Pause()
	}
}

func (sh *Shell) resumeInput() {
	if sh.input != nil {
		sh.input.Resume()
	}
}

// Lookup implements jobctl.BuiltinHandler.
func (sh *Shell) Lookup(name string) (jobctl.Builtin, bool) {
	builtin, ok := AllBuiltins[name]
	if !ok {
		return nil, false
	}

	return func(_ *jobctl.Session, argv []string, stdio jobctl.Stdio) int {
		return builtin.Main(sh, argv, stdio)
	}, true
}

func (sh *Shell) prompt() string {
	prompt := sh.Config.Prompt
	if prompt == "" {
		prompt = DefaultPrompt
		if sh.useColor() {
			prompt = DefaultColorPrompt
		}
	}

	host, _ := os.Hostname()
	prompt = strings.ReplaceAll(prompt, `\u`, currentUser())
	prompt = strings.ReplaceAll(prompt, `\h`, host)

	pwd, _ := os.Getwd()
	if home, err := os.UserHomeDir(); err == nil && home != "" && strings.HasPrefix(pwd, home) {
		pwd = "~" + strings.TrimPrefix(pwd, home)
	}
	prompt = strings.ReplaceAll(prompt, `\w`, pwd)

	if os.Geteuid() == 0 {
		prompt = strings.ReplaceAll(prompt, `\$`, "#")
	} else {
		prompt = strings.ReplaceAll(prompt, `\$`, "$")
	}

	return unescape(prompt)
}

func (sh *Shell) useColor() bool {
	switch sh.Config.Color {
	case config.ColorAlways:
		return true
	case config.ColorNever:
		return false
	default:
		return isTerminal(sh.Session.Out())
	}
}

func currentUser() string {
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return fmt.Sprintf("%d", os.Getuid())
}
