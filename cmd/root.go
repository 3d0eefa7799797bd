package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"

	"github.com/josephlewis42/jobsh/core/config"
	"github.com/josephlewis42/jobsh/core/logger"
	"github.com/josephlewis42/jobsh/core/shell"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var (
	cfgPath     string
	commandLine string

	// exitStatus is the status of the shell once rootCmd returns.
	exitStatus int
)

// configDir returns the configuration directory and whether it was chosen by
// the user.
func configDir() (string, bool, error) {
	if cfgPath != "" {
		return cfgPath, true, nil
	}

	dir, err := config.DefaultDir()
	return dir, false, err
}

func loadConfig() (*config.Configuration, error) {
	dir, explicit, err := configDir()
	if err != nil {
		return nil, err
	}

	configuration, err := config.Load(dir)
	if errors.Is(err, fs.ErrNotExist) {
		if !explicit {
			return config.Default(), nil
		}
		log.Println("Couldn't load config: did you run init?")
	}

	return configuration, err
}

// jobControl decides whether the shell runs interactively.
func jobControl(configuration *config.Configuration, batch bool) bool {
	switch configuration.JobControl {
	case config.JobControlOn:
		return true
	case config.JobControlOff:
		return false
	default:
		return !batch && isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stderr.Fd())
	}
}

// openEventLog returns the logger events are recorded to and a function
// that releases it.
func openEventLog(configuration *config.Configuration) (*logger.SessionLogger, func(), error) {
	if !configuration.EventLog {
		return logger.NewNopLogger().NewSession(), func() {}, nil
	}

	fd, err := configuration.OpenAppLog()
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't open event log: %w", err)
	}
	return logger.NewJsonLinesLogRecorder(fd).NewSession(), func() { fd.Close() }, nil
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "jobsh [flags] [SCRIPT]",
	Short: "A job control shell",
	Long: `A POSIX style job control shell.

Pipelines run in their own process groups and can be stopped, resumed and
moved between the foreground and background with fg, bg and jobs.

With -c the given command line is run, with SCRIPT the file is run line by
line. Otherwise commands are read from the terminal.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configuration, err := loadConfig()
		if err != nil {
			return err
		}

		runCommand := cmd.Flags().Changed("command")
		var script io.Reader
		if len(args) == 1 {
			if runCommand {
				return errors.New("-c and SCRIPT can't be used together")
			}

			fd, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer fd.Close()
			script = fd
		}
		cmd.SilenceUsage = true

		sessionLogger, closeLog, err := openEventLog(configuration)
		if err != nil {
			return err
		}
		defer closeLog()

		interactive := jobControl(configuration, runCommand || script != nil)
		sh, err := shell.New(shell.Options{
			Config:      configuration,
			Interactive: interactive,
			Logger:      sessionLogger,
		})
		if err != nil {
			return err
		}
		defer sh.Close()

		switch {
		case runCommand:
			exitStatus = sh.RunCommand(commandLine)
		case script != nil:
			exitStatus = sh.RunScript(script)
		case interactive:
			exitStatus = sh.RunInteractive()
		default:
			exitStatus = sh.RunScript(cmd.InOrStdin())
		}

		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// It returns the process exit status.
func Execute() int {
	exitStatus = 0
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return exitStatus
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config directory (default $HOME/"+config.DefaultDirName+")")
	rootCmd.Flags().StringVarP(&commandLine, "command", "c", "", "run the command line and exit")
}
