package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chenyang-zz/opwatch/internal/domain/models"
	"github.com/chenyang-zz/opwatch/internal/services"
)

func newPatternsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "List, inspect and edit operation patterns",
		Long: `Manage the pattern file. Edits are validated before they are saved,
and a running "opwatch watch" picks them up from the next event.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List patterns in file order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.newApp("")
			if err != nil {
				return err
			}
			defer a.Shutdown()
			renderPatterns(cmd.OutOrStdout(), a.Patterns().List())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <key>",
		Short: "Describe a pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.newApp("")
			if err != nil {
				return err
			}
			defer a.Shutdown()
			text, err := a.Patterns().Describe(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a pattern file without loading it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.newApp("")
			if err != nil {
				return err
			}
			defer a.Shutdown()
			path := a.Config().Patterns.Path
			if len(args) == 1 {
				path = args[0]
			}
			n, err := a.Patterns().ValidateFile(path)
			if err != nil {
				return err
			}
			renderSuccess(cmd.OutOrStdout(), fmt.Sprintf("%s: %d patterns valid", path, n))
			return nil
		},
	})

	cmd.AddCommand(newPatternAddCmd(root))

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.newApp("")
			if err != nil {
				return err
			}
			defer a.Shutdown()
			if err := a.Patterns().Delete(args[0]); err != nil {
				return err
			}
			if err := a.Patterns().Save(); err != nil {
				return err
			}
			renderSuccess(cmd.OutOrStdout(), "deleted "+args[0])
			return nil
		},
	})
	return cmd
}

type patternAddOptions struct {
	file        string
	replace     bool
	name        string
	triggers    []string
	middle      []string
	completion  []string
	timeout     int
	description string
}

func newPatternAddCmd(root *rootOptions) *cobra.Command {
	o := &patternAddOptions{}

	cmd := &cobra.Command{
		Use:   "add <key>",
		Short: "Add a pattern from a YAML definition or flags",
		Long: `Add a pattern under <key>. The definition is read from --file
(YAML with name, triggers, middle_triggers, completion_triggers, timeout and
description) or built from flags. Omit --trigger for an ambient pattern that
starts as soon as monitoring begins.

Examples:
  opwatch patterns add create --file create.yaml
  opwatch patterns add create --name "Create document" --trigger New --complete Save --timeout 60`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			p, err := o.definition(key)
			if err != nil {
				return err
			}

			a, err := root.newApp("")
			if err != nil {
				return err
			}
			defer a.Shutdown()

			svc := a.Patterns()
			if o.replace {
				err = svc.Update(key, p)
			} else {
				err = svc.Add(key, p)
			}
			if err != nil {
				return err
			}
			if err := svc.Save(); err != nil {
				return err
			}
			renderSuccess(cmd.OutOrStdout(), "saved "+key)
			return nil
		},
	}

	cmd.Flags().StringVarP(&o.file, "file", "f", "", "YAML pattern definition")
	cmd.Flags().BoolVar(&o.replace, "replace", false, "Replace an existing pattern with the same key")
	cmd.Flags().StringVar(&o.name, "name", "", "Display name")
	cmd.Flags().StringArrayVar(&o.triggers, "trigger", nil, "Start trigger (repeatable)")
	cmd.Flags().StringArrayVar(&o.middle, "middle", nil, "Middle trigger (repeatable)")
	cmd.Flags().StringArrayVar(&o.completion, "complete", nil, "Completion trigger (repeatable)")
	cmd.Flags().IntVar(&o.timeout, "timeout", 0, "Timeout in seconds (default 30)")
	cmd.Flags().StringVar(&o.description, "description", "", "Free-form description")
	cmd.MarkFlagsMutuallyExclusive("file", "name")
	return cmd
}

// definition 从文件或命令行参数构造模式
func (o *patternAddOptions) definition(key string) (*models.OperationPattern, error) {
	if o.file != "" {
		data, err := os.ReadFile(o.file)
		if err != nil {
			return nil, fmt.Errorf("读取模式定义失败: %w", err)
		}
		return services.ParseDefinition(key, data)
	}
	return &models.OperationPattern{
		Key:                key,
		Name:               o.name,
		StartTriggers:      o.triggers,
		MiddleTriggers:     o.middle,
		CompletionTriggers: o.completion,
		Timeout:            o.timeout,
		Description:        o.description,
	}, nil
}
