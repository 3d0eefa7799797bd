package cmd

import (
	"os"
	"strings"

	"github.com/josephlewis42/jobsh/core/runcmd"
	"github.com/spf13/cobra"
)

var showResult bool

var runCmd = &cobra.Command{
	Use:   "run COMMAND...",
	Short: "Run one command without job control.",
	Long: `Run one command in a subprocess and exit with its status.

The arguments are joined and split into words again, quote the command to
keep arguments with spaces together. A trailing & runs the command without
waiting for it, the result is reported once it exits.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		done := make(chan runcmd.Result, 1)
		runner := &runcmd.Runner{
			OnExit: func(res runcmd.Result) { done <- res },
		}

		res, err := runner.Run(strings.Join(args, " "), [3]*os.File{})
		if err != nil {
			return err
		}

		if res.NonBlock && res.ExecOK {
			if showResult {
				if err := printYAML(cmd, res); err != nil {
					return err
				}
			}
			res = <-done
		}

		if showResult {
			if err := printYAML(cmd, res); err != nil {
				return err
			}
		}

		exitStatus = res.ExitStatus
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&showResult, "result", false, "print the result of the command")
	rootCmd.AddCommand(runCmd)
}
