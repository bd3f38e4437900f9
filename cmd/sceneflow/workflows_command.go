package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sceneflow/internal/workflow"
)

var workflowDescriptions = map[string]string{
	workflow.ExampleName: "Extract the archive, then six logged no-op steps",
	workflow.CommandName: "Extract the archive, then run each [[workflow.steps]] command",
}

func newWorkflowsCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "workflows",
		Short:       "List registered workflows",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			names := workflow.DefaultRegistry().Names()
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				rows = append(rows, []string{name, workflowDescriptions[name]})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Workflow", "Description"}, rows, nil))
			return nil
		},
	}
}
