// lbt run [path] [-- args...]
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/lbt-build/lbt/internal/driver"
	"github.com/lbt-build/lbt/internal/msg"
)

var flagRunTarget string

func doRun(cmd *cobra.Command, args []string) {
	dash := cmd.ArgsLenAtDash()

	path := "."
	var programArgs []string
	switch {
	case dash < 0:
		programArgs = args
	case dash == 0:
		programArgs = args
	default:
		path = args[0]
		programArgs = args[dash:]
	}

	root, err := driver.FindRoot(path)
	if err != nil {
		msg.Fatal("%v", err)
	}

	if err := newDriver().RunArtifact(context.Background(), root, buildOptions(), flagRunTarget, programArgs); err != nil {
		msg.Fatal("%v", err)
	}
}

var runCmd = &cobra.Command{
	Use:   "run [target path] [-- args...]",
	Short: "Build and run an executable target",
	Long:  `Build and run an executable target. If no target path is given, uses ".".`,
	Args:  cobra.ArbitraryArgs,
	Run:   doRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addBuildFlags(runCmd)
	runCmd.Flags().StringVar(&flagRunTarget, "target", "", "Name of the executable target to run (default: the first one found)")
}
