package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/chenyang-zz/opwatch/internal/app"
	"github.com/chenyang-zz/opwatch/internal/domain/models"
	"github.com/chenyang-zz/opwatch/internal/monitor"
)

// replayInput 回放输入：日志文件或动作日志会话
type replayInput struct {
	file    string
	journal string
	session string
}

func (in *replayInput) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&in.file, "file", "f", "", "Log file to replay ('-' for stdin)")
	cmd.Flags().StringVar(&in.journal, "journal", "", "Journal database (default storage.sqlite.path)")
	cmd.Flags().StringVarP(&in.session, "session", "s", "", "Journal session ID or unique prefix")
	cmd.MarkFlagsMutuallyExclusive("file", "session")
	cmd.MarkFlagsOneRequired("file", "session")
}

// run 把输入交给新的分析器，onNotice 非空时订阅总线上的通知
func (in *replayInput) run(cmd *cobra.Command, root *rootOptions, onNotice func(models.Notice)) (app.RunResult, error) {
	a, err := root.newApp(in.journal)
	if err != nil {
		return app.RunResult{}, err
	}
	defer a.Shutdown()

	if onNotice != nil {
		stop := monitor.SubscribeNotices(a.EventBus(), nil, onNotice)
		defer stop()
	}

	if in.session != "" {
		return a.Replay(cmd.Context(), in.session)
	}

	var src monitor.Source
	if in.file == "-" {
		src = monitor.NewReaderSource("stdin", cmd.InOrStdin())
	} else {
		f, err := os.Open(in.file)
		if err != nil {
			return app.RunResult{}, fmt.Errorf("打开日志文件失败: %w", err)
		}
		defer f.Close()
		src = monitor.NewReaderSource(filepath.Base(in.file), f)
	}
	return a.Run(cmd.Context(), src, app.RunOptions{})
}

func (in *replayInput) target() string {
	if in.session != "" {
		return "session " + in.session
	}
	return in.file
}

func newReplayCmd(root *rootOptions) *cobra.Command {
	in := &replayInput{}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Run a recorded event stream through the analyzer",
		Long: `Replay a complete log file or a recorded journal session and print every
notice followed by the statistics line.

Examples:
  opwatch replay --file ui.log
  opwatch replay --journal actions.db --session 3f2a`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			renderHeader(out, "replaying", in.target())
			result, err := in.run(cmd, root, func(n models.Notice) { renderNotice(out, n) })
			if err != nil {
				return err
			}
			renderSummary(out, result)
			return nil
		},
	}
	in.addFlags(cmd)
	return cmd
}

func newStatsCmd(root *rootOptions) *cobra.Command {
	in := &replayInput{}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Replay a stream and print operation statistics only",
		Long: `Replay a log file or journal session without printing notices and report
how many operations completed, timed out, were cancelled or were superseded.

Examples:
  opwatch stats --file ui.log
  opwatch stats --session 3f2a`,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := in.run(cmd, root, nil)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, accentStyle.Render("▸ STATISTICS"))
			renderStatsTable(out, result)
			fmt.Fprintln(out)
			renderStatistics(out, result.Stats.Operations)
			return nil
		},
	}
	in.addFlags(cmd)
	return cmd
}
