package shell

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/josephlewis42/jobsh/core/config"
	"github.com/josephlewis42/jobsh/core/jobctl"
	"github.com/mattn/go-isatty"
	"github.com/pborman/getopt/v2"
)

// SimpleCommand handles flag parsing and help output for built-ins.
type SimpleCommand struct {
	// Use holds a one line usage string
	Use string
	// Short holds a one line description of the command.
	Short string
	// ShowHelp sets whether help is displayed or not.
	// If this is non-nil when Run() is called, then the default help flag isn't
	// added.
	ShowHelp *bool

	flags *getopt.Set
}

// Flags gets the command's flag set.
func (s *SimpleCommand) Flags() *getopt.Set {
	if s.flags == nil {
		s.flags = getopt.New()
	}

	return s.flags
}

// PrintHelp writes help for the command to the given writer.
func (s *SimpleCommand) PrintHelp(w io.Writer) {
	fmt.Fprint(w, "usage: ")
	fmt.Fprintln(w, s.Use)
	fmt.Fprintln(w, s.Short)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	s.Flags().PrintOptions(w)
}

// Run parses argv, if flag parsing was successful the callback is called with
// the remaining arguments.
func (s *SimpleCommand) Run(argv []string, stdio jobctl.Stdio, callback func(args []string) int) int {
	opts := s.Flags()

	// Add help flag if not overridden.
	if s.ShowHelp == nil {
		s.ShowHelp = opts.BoolLong("help", 'h', "show this help and exit")
	}

	if err := opts.Getopt(argv, nil); err != nil {
		fmt.Fprintf(stdio.Err, "jobsh: %s\n\n", err)
		s.PrintHelp(stdio.Err)
		return 2
	}

	if *s.ShowHelp {
		s.PrintHelp(stdio.Out)
		return 0
	}

	return callback(opts.Args())
}

var (
	ColorBoldBlue   = color.New(color.FgBlue, color.Bold)
	ColorBoldGreen  = color.New(color.FgGreen, color.Bold)
	ColorBoldYellow = color.New(color.FgYellow, color.Bold)
	ColorBoldRed    = color.New(color.FgRed, color.Bold)
)

// ColorPrinter colorizes output according to the --color flag.
type ColorPrinter struct {
	value *string
	out   io.Writer
}

// Init sets up the flag and the writer used to determine the color output.
// The flag defaults to the configured color mode.
func (c *ColorPrinter) Init(flags *getopt.Set, out io.Writer, def string) {
	if def == "" {
		def = config.ColorAuto
	}

	c.out = out
	c.value = flags.EnumLong(
		"color",
		rune(0), // No short flag.
		[]string{config.ColorAlways, config.ColorAuto, config.ColorNever},
		def,
		"colorize the output (always|auto|never)")
}

func (c *ColorPrinter) ShouldColor() bool {
	switch {
	case c.value == nil:
		return false
	case *c.value == config.ColorNever:
		return false
	case *c.value == config.ColorAlways:
		return true
	default:
		return isTerminal(c.out)
	}
}

func (c *ColorPrinter) Sprintf(clr *color.Color, format string, a ...interface{}) string {
	if c.ShouldColor() {
		// The package level switch is off when stdout isn't a terminal.
		forced := *clr
		forced.EnableColor()
		return forced.Sprintf(format, a...)
	}
	return fmt.Sprintf(format, a...)
}

func isTerminal(w interface{}) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd())
}
