package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"sceneflow/internal/pipeline"
	"sceneflow/internal/scene"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var (
		keyFlag      string
		force        bool
		workflowName string
	)

	cmd := &cobra.Command{
		Use:   "process <archive.tgz>",
		Short: "Run the workflow over one local archive",
		Long: "Process a single scene archive without consulting the catalog or the\n" +
			"download service. The scene key is taken from --key or inferred from a\n" +
			"product-id file name such as LC08_L1TP_037035_20200115_20200127_01_T1.tgz.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if name := strings.TrimSpace(workflowName); name != "" {
				cfg.Workflow.Name = strings.ToLower(name)
			}

			var key scene.Key
			if strings.TrimSpace(keyFlag) != "" {
				key, err = scene.ParseKey(keyFlag)
			} else {
				key, err = inferKey(args[0])
			}
			if err != nil {
				return err
			}

			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			result, err := pipeline.ProcessArchive(signalCtx, pipeline.Options{
				Config: cfg,
				Logger: logger,
				Force:  force,
			}, key, args[0])
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scene %s (%s)\n", key, cfg.Workflow.Name)
			fmt.Fprintf(out, "  Executed: %s\n", joinIDs(result.Executed))
			fmt.Fprintf(out, "  Skipped:  %s\n", joinIDs(result.Skipped))
			return err
		},
	}

	cmd.Flags().StringVarP(&keyFlag, "key", "k", "", "Scene key PPPRRR_YYYYMMDD")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Clear step checkpoints and re-run every step")
	cmd.Flags().StringVarP(&workflowName, "workflow", "w", "", "Workflow name (overrides workflow.name)")
	return cmd
}

// inferKey derives the scene key from a collection product id file name
// (sensor_level_PPPRRR_YYYYMMDD_...).
func inferKey(archivePath string) (scene.Key, error) {
	name := filepath.Base(archivePath)
	parts := strings.Split(name, "_")
	if len(parts) < 4 {
		return scene.Key{}, fmt.Errorf("cannot infer scene key from %q; pass --key", name)
	}
	key, err := scene.ParseKey(parts[2] + "_" + parts[3])
	if err != nil {
		return scene.Key{}, fmt.Errorf("cannot infer scene key from %q; pass --key: %w", name, err)
	}
	return key, nil
}

func joinIDs(ids []int) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ", ")
}
