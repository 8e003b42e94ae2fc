// lbt [path], lbt build [path]
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lbt-build/lbt/internal/driver"
	"github.com/lbt-build/lbt/internal/model"
	"github.com/lbt-build/lbt/internal/msg"
	"github.com/lbt-build/lbt/internal/scripthost"
	"github.com/lbt-build/lbt/internal/toolchain"
)

var (
	flagProfile  string
	flagToolchain EnumValue = NewEnumValue("auto", map[string]string{
		"auto":  "Detect a toolchain automatically (default)",
		"gcc":   "Use GCC",
		"clang": "Use Clang",
		"msvc":  "Use MSVC",
	})
	flagVcvarsPath string
	flagMSVCArch   string
)

func buildOptions() driver.Options {
	cfg, err := parseConfiguration(flagProfile)
	if err != nil {
		msg.Fatal("%v", err)
	}

	pref := toolchain.ID("")
	if v := flagToolchain.Value(); v != "auto" {
		pref = toolchain.ID(v)
	}

	return driver.Options{
		Configuration:       cfg,
		ToolchainPreference: pref,
		MSVCVcvarsPath:      flagVcvarsPath,
		MSVCArch:            flagMSVCArch,
	}
}

func newDriver() *driver.Driver {
	return &driver.Driver{Host: &scripthost.Host{}}
}

func doBuild(cmd *cobra.Command, args []string) {
	target := "."
	if len(args) > 0 {
		target = args[0]
	}

	root, err := driver.FindRoot(target)
	if err != nil {
		msg.Fatal("%v", err)
	}

	if _, err := newDriver().Build(context.Background(), root, buildOptions()); err != nil {
		msg.Fatal("%v", err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lbt [target path]",
	Short: "Little Build Tool",
	Long:  `Little Build Tool -- a minimal incremental C/C++ build orchestrator`,
	Args:  cobra.MaximumNArgs(1),
	Run:   doBuild,
}

var buildCmd = &cobra.Command{
	Use:   "build [target path]",
	Short: "Build the project",
	Long:  `Build the project. If no target path is given, uses "."`,
	Args:  cobra.MaximumNArgs(1),
	Run:   doBuild,
}

var cleanCmd = &cobra.Command{
	Use:   "clean [target path]",
	Short: "Remove build outputs and the incremental cache",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		target := "."
		if len(args) > 0 {
			target = args[0]
		}
		root, err := driver.FindRoot(target)
		if err != nil {
			msg.Fatal("%v", err)
		}
		if err := driver.Clean(root); err != nil {
			msg.Fatal("%v", err)
		}
		msg.Info("cleaned %s", root)
	},
}

func init() {
	addBuildFlags(rootCmd)

	rootCmd.AddCommand(buildCmd)
	addBuildFlags(buildCmd)

	rootCmd.AddCommand(cleanCmd)
}

func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&flagProfile, "profile", "p", "debug", "Build configuration: debug, release, relwithdebinfo, minsizerel")
	cmd.Flags().VarP(&flagToolchain, "toolchain", "t", "Toolchain to prefer, one of "+flagToolchain.HelpString())
	cmd.RegisterFlagCompletionFunc("toolchain", flagToolchain.CompletionFunc())
	cmd.Flags().StringVar(&flagVcvarsPath, "msvc-vcvars", "", "Path to vcvarsall.bat (MSVC only)")
	cmd.Flags().StringVar(&flagMSVCArch, "msvc-arch", "x64", "Architecture argument passed to vcvarsall.bat")
}

func parseConfiguration(s string) (cfg model.Configuration, err error) {
	return model.ParseConfiguration(s)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
