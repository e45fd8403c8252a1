package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chenyang-zz/opwatch/internal/app"
	"github.com/chenyang-zz/opwatch/internal/domain/models"
	"github.com/chenyang-zz/opwatch/internal/monitor"
	"github.com/chenyang-zz/opwatch/pkg/events"
)

type watchOptions struct {
	file          string
	fromBeginning bool
	journal       string
	record        bool
}

func newWatchCmd(root *rootOptions) *cobra.Command {
	o := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Tail a UI event log and print operation notices",
		Long: `Follow a UI event log and print a notice whenever an operation starts,
reaches a middle step, switches pattern, completes or is abandoned.

Pattern edits and pattern file changes apply from the next event.
Use "-" as the file to read from stdin.

Examples:
  opwatch watch --file ui.log
  opwatch watch --file ui.log --from-beginning
  opwatch watch --file ui.log --journal actions.db
  tail -f ui.log | opwatch watch --file -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, root, o)
		},
	}

	cmd.Flags().StringVarP(&o.file, "file", "f", "", "Log file to follow (default monitor.file, '-' for stdin)")
	cmd.Flags().BoolVar(&o.fromBeginning, "from-beginning", false, "Read the file from the start instead of the end")
	cmd.Flags().StringVar(&o.journal, "journal", "", "Record actions into this journal database")
	cmd.Flags().BoolVar(&o.record, "record", false, "Record actions into the configured journal")
	return cmd
}

func runWatch(cmd *cobra.Command, root *rootOptions, o *watchOptions) error {
	a, err := root.newApp(o.journal)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a.Start(ctx)

	cfg := a.Config()
	file := o.file
	if file == "" {
		file = cfg.Monitor.File
	}
	if file == "" {
		return fmt.Errorf("未指定日志文件，请使用 --file 或配置 monitor.file")
	}

	var src monitor.Source
	if file == "-" {
		src = monitor.NewReaderSource("stdin", cmd.InOrStdin())
	} else {
		src = monitor.NewFileSource(file, o.fromBeginning || cfg.Monitor.FromBeginning, cfg.Monitor.Poll())
	}

	out := &lockedWriter{w: cmd.OutOrStdout()}
	renderHeader(out, "watching", src.Name())

	bus := a.EventBus()
	stopNotices := monitor.SubscribeNotices(bus, nil, func(n models.Notice) { renderNotice(out, n) })
	defer stopNotices()
	// 模式库变更来自编辑命令或文件热加载，异步渲染
	patternsSub := bus.Subscribe(string(events.EventTypePatterns), func(e events.Event) error {
		renderPatternsChange(out, e)
		return nil
	})
	defer bus.Unsubscribe(patternsSub)

	result, err := a.Run(ctx, src, app.RunOptions{
		Record: o.journal != "" || o.record,
		Source: src.Name(),
	})
	renderSummary(out, result)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
