package cli

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/agusx1211/amux/internal/buildinfo"
	"github.com/agusx1211/amux/internal/debug"
)

const (
	// ANSI color codes
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"

	styleBoldCyan  = "\033[1;36m"
	styleBoldWhite = "\033[1;37m"
)

var rootCmd = &cobra.Command{
	Use:   "amux",
	Short: "AI worker multiplexer",
	Long: colorBold + `
   __ _ _ __ ___  _   ___  __
  / _` + "`" + ` | '_ ` + "`" + ` _ \| | | \ \/ /
 | (_| | | | | | | |_| |>  <
  \__,_|_| |_| |_|\__,_/_/\_\` + colorReset + `

  ` + styleBoldCyan + `AI worker multiplexer` + colorReset + ` v` + buildinfo.Current().Version + `

  Supervise long-lived AI pair-programming workers across projects: one
  process per project, a connector channel for commands and events, prompt
  queuing, interactive questions, and cost accounting.

  Run ` + styleBoldWhite + `amux serve` + colorReset + ` to start the orchestrator and connector endpoint.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.PersistentFlags().Bool("debug", false, "Enable verbose debug logging to ~/.amux/debug/")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		debugFlag, _ := cmd.Flags().GetBool("debug")
		if !debugFlag && !debug.ShouldEnableFromEnv() {
			return nil
		}
		logPath, err := debug.Init()
		if err != nil {
			return fmt.Errorf("initializing debug logger: %w", err)
		}
		fmt.Fprintf(os.Stderr, "%s[debug]%s logging to %s\n", colorDim, colorReset, logPath)
		bi := buildinfo.Current()
		debug.LogKV("cli", "amux starting",
			"version", bi.Version,
			"commit", bi.CommitHash,
			"build_date", bi.BuildDate,
			"pid", os.Getpid(),
			"command", cmd.Name(),
			"args", args,
		)
		return nil
	}
}

// useColor reports whether stdout is a terminal worth coloring.
func useColor() bool {
	return isatty.IsTerminal(os.Stdout.Fd())
}

// paint wraps s in the given style when stdout is a terminal.
func paint(style, s string) string {
	if !useColor() {
		return s
	}
	return style + s + colorReset
}

// Execute runs the root command.
func Execute() {
	defer debug.Close()
	if err := rootCmd.Execute(); err != nil {
		debug.Logf("cli", "exit with error: %v", err)
		fmt.Fprintf(os.Stderr, "%sError: %s%s\n", colorRed, err, colorReset)
		os.Exit(1)
	}
	debug.Log("cli", "exit success")
}
