// opwatch - recognises business operations in UI interaction logs.
// Tails a log of FOCUS/CLICK/INPUT events and reports operations as they start and finish.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chenyang-zz/opwatch/internal/app"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("✗ ")+err.Error())
		os.Exit(1)
	}
}

// rootOptions 全局参数
type rootOptions struct {
	configPath   string
	patternsPath string
	verbose      bool
}

// newApp 按全局参数创建应用，journalPath 非空时启用动作日志
func (o *rootOptions) newApp(journalPath string) (*app.App, error) {
	return app.New(app.Options{
		ConfigPath:   o.configPath,
		PatternsPath: o.patternsPath,
		JournalPath:  journalPath,
		Verbose:      o.verbose,
	})
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "opwatch",
		Short: "opwatch - recognise business operations in UI event logs",
		Long: `opwatch reads a stream of UI events (FOCUS, CLICK, INPUT) from a log file
and matches it against a library of operation patterns. Each pattern names the
triggers that start an operation, the optional steps in the middle and the
triggers that complete it.

Configuration is read from ~/.opwatch/config.yaml unless --config is given.`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file path (default ~/.opwatch/config.yaml)")
	root.PersistentFlags().StringVarP(&opts.patternsPath, "patterns", "p", "", "Pattern file path (overrides patterns.path)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newWatchCmd(opts))
	root.AddCommand(newReplayCmd(opts))
	root.AddCommand(newStatsCmd(opts))
	root.AddCommand(newPatternsCmd(opts))
	root.AddCommand(newSessionsCmd(opts))
	return root
}
