package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chenyang-zz/opwatch/internal/domain/parser"
)

func newSessionsCmd(root *rootOptions) *cobra.Command {
	var journal string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage recorded journal sessions",
		Long: `List and delete the sessions recorded with "opwatch watch --journal".
Session IDs may be shortened to any unique prefix.`,
	}
	cmd.PersistentFlags().StringVar(&journal, "journal", "", "Journal database (default storage.sqlite.path)")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List recorded sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.newApp(journal)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			svc, err := a.Journal()
			if err != nil {
				return err
			}
			sessions, err := svc.Sessions()
			if err != nil {
				return err
			}
			stats, err := svc.Stats()
			if err != nil {
				return err
			}
			renderSessions(cmd.OutOrStdout(), sessions, stats)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a session and its actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.newApp(journal)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			svc, err := a.Journal()
			if err != nil {
				return err
			}
			n, err := svc.DeleteSession(args[0])
			if err != nil {
				return err
			}
			renderSuccess(cmd.OutOrStdout(), fmt.Sprintf("deleted session %s (%d actions)", args[0], n))
			return nil
		},
	})
	cmd.AddCommand(newSessionsExportCmd(root, &journal))
	return cmd
}

func newSessionsExportCmd(root *rootOptions, journal *string) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Write a session as UI event log lines",
		Long: `Write the actions of a recorded session in the text log format, one line
per action. The output can be replayed with "opwatch replay --file".

Examples:
  opwatch sessions export 3f2a --journal actions.db -o session.log`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.newApp(*journal)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			svc, err := a.Journal()
			if err != nil {
				return err
			}
			id, actions, err := svc.Actions(args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			toFile := output != "" && output != "-"
			if toFile {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("创建导出文件失败: %w", err)
				}
				defer f.Close()
				w = f
			}
			for i := range actions {
				if _, err := fmt.Fprintln(w, parser.Format(&actions[i])); err != nil {
					return fmt.Errorf("写入导出文件失败: %w", err)
				}
			}
			if toFile {
				renderSuccess(cmd.OutOrStdout(), fmt.Sprintf("exported %d actions from %s to %s", len(actions), id, output))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}
