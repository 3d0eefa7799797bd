package shell

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/josephlewis42/jobsh/core/job"
	"github.com/josephlewis42/jobsh/core/jobctl"
	"golang.org/x/sys/unix"
)

// AllBuiltins holds a list of all registered shell builtins
var AllBuiltins = make(map[string]ShellBuiltin)

var builtinSummaries = make(map[string]string)

type ShellBuiltin interface {
	Main(sh *Shell, argv []string, stdio jobctl.Stdio) int
}

type ShellBuiltinFunc func(sh *Shell, argv []string, stdio jobctl.Stdio) int

func (f ShellBuiltinFunc) Main(sh *Shell, argv []string, stdio jobctl.Stdio) int {
	return f(sh, argv, stdio)
}

var _ ShellBuiltin = (ShellBuiltinFunc)(nil)

// BuiltinNames returns the sorted names of all builtins.
func BuiltinNames() []string {
	var names []string
	for name := range AllBuiltins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuiltinSummary returns the one line description of a builtin.
func BuiltinSummary(name string) string {
	return builtinSummaries[name]
}

func builtinErr(stdio jobctl.Stdio, name, format string, a ...interface{}) {
	fmt.Fprintf(stdio.Err, "jobsh: %s: %s\n", name, fmt.Sprintf(format, a...))
}

// Exit stops the shell. The status defaults to the last command's.
func Exit(sh *Shell, argv []string, stdio jobctl.Stdio) int {
	cmd := &SimpleCommand{
		Use:   fmt.Sprintf("%s [N]", argv[0]),
		Short: builtinSummaries["exit"],
	}

	return cmd.Run(argv, stdio, func(args []string) int {
		if len(args) > 1 {
			builtinErr(stdio, argv[0], "too many arguments")
			return 1
		}

		sh.Quit = true
		if len(args) == 0 {
			return sh.lastStatus
		}

		code, err := strconv.Atoi(args[0])
		if err != nil {
			builtinErr(stdio, argv[0], "%s: numeric argument required", args[0])
			code = 2
		}
		code &= 0xff
		sh.exitStatus = &code
		return code
	})
}

// Cd is the cd shell builtin, it changes the working directory of the shell
// and every job started after it.
func Cd(sh *Shell, argv []string, stdio jobctl.Stdio) int {
	var dir string
	switch len(argv) {
	case 1:
		dir = os.Getenv("HOME")
		if dir == "" {
			builtinErr(stdio, argv[0], "HOME not set")
			return 1
		}
	case 2:
		dir = argv[1]
		if dir == "-" {
			dir = os.Getenv("OLDPWD")
			if dir == "" {
				builtinErr(stdio, argv[0], "OLDPWD not set")
				return 1
			}
			fmt.Fprintln(stdio.Out, dir)
		}
	default:
		builtinErr(stdio, argv[0], "too many arguments")
		return 1
	}

	oldwd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		if pathErr, ok := err.(*os.PathError); ok {
			builtinErr(stdio, argv[0], "%s: %v", dir, pathErr.Err)
		} else {
			builtinErr(stdio, argv[0], "%v", err)
		}
		return 1
	}

	wd, err := os.Getwd()
	if err != nil {
		wd = dir
	}
	os.Setenv("OLDPWD", oldwd)
	os.Setenv("PWD", wd)
	return 0
}

// Jobs lists the jobs in the table.
func Jobs(sh *Shell, argv []string, stdio jobctl.Stdio) int {
	cmd := &SimpleCommand{
		Use:   "jobs [-lp] [JOBSPEC...]",
		Short: builtinSummaries["jobs"],
	}
	long := cmd.Flags().Bool('l', "list process IDs in addition to the normal information")
	pidsOnly := cmd.Flags().Bool('p', "list process group IDs only")
	var printer ColorPrinter
	printer.Init(cmd.Flags(), stdio.Out, sh.Config.Color)

	return cmd.Run(argv, stdio, func(args []string) int {
		sh.Session.Poll()

		status := 0
		var jobs []*job.Job
		if len(args) == 0 {
			jobs = sh.Session.Jobs.Jobs()
		}
		for _, spec := range args {
			j, err := sh.Session.Jobs.Resolve(spec)
			if err != nil {
				builtinErr(stdio, argv[0], "%v", err)
				status = 1
				continue
			}
			jobs = append(jobs, j)
		}

		for _, j := range jobs {
			if *pidsOnly {
				fmt.Fprintln(stdio.Out, j.Pgid)
				continue
			}

			fmt.Fprintln(stdio.Out, printer.Sprintf(stateColor(j.State()), "%s", sh.Session.FormatJob(j)))
			if *long {
				for _, p := range j.Processes {
					fmt.Fprintf(stdio.Out, "      %-8d%s\n", p.Pid, p)
				}
			}
			sh.Session.Notified(j)
		}

		return status
	})
}

// Fg resumes a job in the foreground and waits for it.
func Fg(sh *Shell, argv []string, stdio jobctl.Stdio) int {
	cmd := &SimpleCommand{
		Use:   "fg [JOBSPEC]",
		Short: builtinSummaries["fg"],
	}

	return cmd.Run(argv, stdio, func(args []string) int {
		if !sh.Session.Interactive() {
			builtinErr(stdio, argv[0], "%v", jobctl.ErrNotInteractive)
			return 1
		}
		if len(args) > 1 {
			builtinErr(stdio, argv[0], "too many arguments")
			return 1
		}

		j, err := sh.Session.Jobs.Resolve(strings.Join(args, ""))
		if err != nil {
			builtinErr(stdio, argv[0], "%v", err)
			return 1
		}
		if j.IsCompleted() {
			builtinErr(stdio, argv[0], "job has terminated")
			return 1
		}

		fmt.Fprintln(stdio.Out, j.Command)
		sh.Session.Jobs.Touch(j)
		if err := sh.Session.Foreground(j, true); err != nil {
			builtinErr(stdio, argv[0], "%v", err)
			return 1
		}

		return j.ExitStatus()
	})
}

// Bg resumes stopped jobs in the background.
func Bg(sh *Shell, argv []string, stdio jobctl.Stdio) int {
	cmd := &SimpleCommand{
		Use:   "bg [JOBSPEC...]",
		Short: builtinSummaries["bg"],
	}

	return cmd.Run(argv, stdio, func(args []string) int {
		if !sh.Session.Interactive() {
			builtinErr(stdio, argv[0], "%v", jobctl.ErrNotInteractive)
			return 1
		}
		if len(args) == 0 {
			args = []string{""}
		}

		status := 0
		for _, spec := range args {
			j, err := sh.Session.Jobs.Resolve(spec)
			if err != nil {
				builtinErr(stdio, argv[0], "%v", err)
				status = 1
				continue
			}

			switch {
			case j.IsCompleted():
				builtinErr(stdio, argv[0], "job has terminated")
				status = 1
				continue
			case j.Background && !j.IsStopped():
				builtinErr(stdio, argv[0], "job %d already in background", j.ID)
				continue
			}

			sh.Session.Jobs.Touch(j)
			fmt.Fprintf(stdio.Out, "[%d]%c %s &\n", j.ID, sh.Session.Jobs.Designator(j), j.Command)
			if err := sh.Session.Background(j, true); err != nil {
				builtinErr(stdio, argv[0], "%v", err)
				status = 1
			}
		}
		return status
	})
}

// Kill sends a signal to processes or jobs.
func Kill(sh *Shell, argv []string, stdio jobctl.Stdio) int {
	cmd := &SimpleCommand{
		Use:   "kill [-s SIGNAL | -SIGNAL] PID | JOBSPEC ... or kill -l",
		Short: builtinSummaries["kill"],
	}
	signalName := cmd.Flags().String('s', "TERM", "the signal to send")
	list := cmd.Flags().Bool('l', "list signal names")

	return cmd.Run(normalizeKillArgs(argv), stdio, func(args []string) int {
		if *list {
			for sig := unix.Signal(1); sig < 32; sig++ {
				if name := unix.SignalName(sig); name != "" {
					fmt.Fprintf(stdio.Out, "%2d) %s\n", int(sig), name)
				}
			}
			return 0
		}

		sig, err := parseSignal(*signalName)
		if err != nil {
			builtinErr(stdio, argv[0], "%v", err)
			return 1
		}
		if len(args) == 0 {
			cmd.PrintHelp(stdio.Err)
			return 2
		}

		status := 0
		for _, target := range args {
			if err := sh.signal(target, sig); err != nil {
				builtinErr(stdio, argv[0], "%v", err)
				status = 1
			}
		}
		return status
	})
}

// signal delivers sig to a pid or to the process group of a job. Stopped
// jobs are continued so they can act on the signal.
func (sh *Shell) signal(target string, sig unix.Signal) error {
	if !strings.HasPrefix(target, "%") {
		pid, err := strconv.Atoi(target)
		if err != nil {
			return fmt.Errorf("%s: arguments must be process or job IDs", target)
		}
		if err := sh.Session.Signal(pid, sig); err != nil {
			return fmt.Errorf("(%d) - %w", pid, err)
		}
		return nil
	}

	j, err := sh.Session.Jobs.Resolve(target)
	if err != nil {
		return err
	}
	if !j.Started() || j.IsCompleted() {
		return fmt.Errorf("%s: job has terminated", target)
	}

	if err := sh.Session.Signal(-j.Pgid, sig); err != nil {
		return fmt.Errorf("(%d) - %w", j.Pgid, err)
	}
	if j.IsStopped() && sig != unix.SIGCONT && sig != unix.SIGKILL {
		return sh.Session.Background(j, true)
	}
	return nil
}

// normalizeKillArgs rewrites the "-SIGNAL" shorthand to "-s SIGNAL".
func normalizeKillArgs(argv []string) []string {
	if len(argv) < 2 {
		return argv
	}

	first := argv[1]
	switch {
	case len(first) < 2 || first[0] != '-' || first[1] == '-':
		return argv
	case first == "-l" || first == "-s" || first == "-h":
		return argv
	}

	out := []string{argv[0], "-s", first[1:]}
	return append(out, argv[2:]...)
}

func parseSignal(name string) (unix.Signal, error) {
	if n, err := strconv.Atoi(name); err == nil {
		if n < 0 || n > 64 {
			return 0, fmt.Errorf("%s: invalid signal specification", name)
		}
		return unix.Signal(n), nil
	}

	upper := strings.ToUpper(name)
	if !strings.HasPrefix(upper, "SIG") {
		upper = "SIG" + upper
	}
	if sig := unix.SignalNum(upper); sig != 0 {
		return sig, nil
	}
	return 0, fmt.Errorf("%s: invalid signal specification", name)
}

// History shows or clears the list of lines entered in this session.
func History(sh *Shell, argv []string, stdio jobctl.Stdio) int {
	cmd := &SimpleCommand{
		Use:   "history [-c]",
		Short: builtinSummaries["history"],
	}
	clearHistory := cmd.Flags().Bool('c', "clear the history by deleting all entries")

	return cmd.Run(argv, stdio, func(args []string) int {
		if *clearHistory {
			if sh.Readline != nil {
				sh.Readline.Operation.ResetHistory()
			}
			sh.history = nil
			return 0
		}

		for i, line := range sh.history {
			fmt.Fprintf(stdio.Out, "% 5d  %s\n", i+1, line)
		}
		return 0
	})
}

// Help lists the builtins or shows the usage of one of them.
func Help(sh *Shell, argv []string, stdio jobctl.Stdio) int {
	if len(argv) > 1 {
		status := 0
		for _, name := range argv[1:] {
			builtin, ok := AllBuiltins[name]
			if !ok {
				builtinErr(stdio, argv[0], "no help topics match `%s'", name)
				status = 1
				continue
			}
			builtin.Main(sh, []string{name, "--help"}, stdio)
		}
		return status
	}

	w := stdio.Out
	fmt.Fprintln(w, "jobsh, a job control shell")
	fmt.Fprintln(w, "These shell commands are defined internally.  Type `help' to see this list.")
	fmt.Fprintln(w, "Type `help name' to find out more about the function `name'.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Builtins:")
	fmt.Fprintln(w)
	for _, name := range BuiltinNames() {
		fmt.Fprintf(w, "  %-10s%s\n", name, builtinSummaries[name])
	}

	return 0
}

func stateColor(state job.State) *color.Color {
	switch state {
	case job.Stopped:
		return ColorBoldYellow
	case job.Completed:
		return ColorBoldBlue
	default:
		return ColorBoldGreen
	}
}

func register(name, summary string, fn ShellBuiltinFunc) {
	AllBuiltins[name] = fn
	builtinSummaries[name] = summary
}

func init() {
	register("exit", "Exit the shell.", Exit)
	register("quit", "Exit the shell.", Exit)
	register("cd", "Change the shell working directory.", Cd)
	register("jobs", "Display status of jobs.", Jobs)
	register("fg", "Move job to the foreground.", Fg)
	register("bg", "Move jobs to the background.", Bg)
	register("kill", "Send a signal to a job.", Kill)
	register("history", "Display or clear the history list.", History)
	register("help", "Display information about builtin commands.", Help)
}
