package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"sceneflow/internal/checkpoint"
	"sceneflow/internal/scene"
)

func newCheckpointsCommand(ctx *commandContext) *cobra.Command {
	checkpointsCmd := &cobra.Command{
		Use:     "checkpoints",
		Aliases: []string{"checkpoint"},
		Short:   "Inspect and clear step checkpoints",
	}
	checkpointsCmd.AddCommand(newCheckpointsListCommand(ctx))
	checkpointsCmd.AddCommand(newCheckpointsClearCommand(ctx))
	return checkpointsCmd
}

func newCheckpointsListCommand(ctx *commandContext) *cobra.Command {
	var (
		workflowName string
		keyArg       string
		asJSON       bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List completed steps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCheckpoints(cmd.Context(), func(store *checkpoint.Store) error {
				records, err := store.List(cmd.Context(), strings.ToLower(workflowName), keyArg)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSONList(cmd, records)
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "No checkpoints recorded")
					return nil
				}
				rows := make([][]string, 0, len(records))
				for _, rec := range records {
					rows = append(rows, []string{
						rec.Workflow,
						rec.Key,
						strconv.Itoa(rec.StepID),
						rec.Description,
						formatWhen(rec.RecordedAt),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Workflow", "Scene", "Step", "Description", "Completed"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&workflowName, "workflow", "w", "", "Filter by workflow name")
	cmd.Flags().StringVarP(&keyArg, "key", "k", "", "Filter by scene key PPPRRR_YYYYMMDD")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newCheckpointsClearCommand(ctx *commandContext) *cobra.Command {
	var (
		workflowName string
		keyArg       string
		all          bool
	)
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear checkpoints so steps run again",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			name := strings.ToLower(strings.TrimSpace(workflowName))
			if name == "" {
				name = cfg.Workflow.Name
			}
			if keyArg == "" && !all {
				return fmt.Errorf("pass --key for one scene or --all for every scene of workflow %q", name)
			}
			return ctx.withCheckpoints(cmd.Context(), func(store *checkpoint.Store) error {
				out := cmd.OutOrStdout()
				if all {
					removed, err := store.DeleteWorkflow(cmd.Context(), name)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %d checkpoint(s) for workflow %s\n", removed, name)
					return nil
				}
				key, err := scene.ParseKey(keyArg)
				if err != nil {
					return err
				}
				removed, err := store.ClearAll(cmd.Context(), name, key)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Cleared %d checkpoint(s) for %s (%s)\n", removed, key, name)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&workflowName, "workflow", "w", "", "Workflow name (defaults to workflow.name)")
	cmd.Flags().StringVarP(&keyArg, "key", "k", "", "Scene key PPPRRR_YYYYMMDD")
	cmd.Flags().BoolVar(&all, "all", false, "Clear every scene of the workflow")
	return cmd
}
