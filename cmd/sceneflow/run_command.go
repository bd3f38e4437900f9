package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"sceneflow/internal/config"
	"sceneflow/internal/pipeline"
	"sceneflow/internal/transfer"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		force        bool
		offline      bool
		noProgress   bool
		workflowName string
		start        string
		end          string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Download configured scenes and process them",
		Long: "Resolve scenes from the catalog for every [[scenes]] filter, download the\n" +
			"archives that are not already on disk, and run the configured workflow\n" +
			"over each scene. Completed downloads and steps are skipped on re-runs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if name := strings.TrimSpace(workflowName); name != "" {
				cfg.Workflow.Name = strings.ToLower(name)
			}
			if err := overrideDates(cfg, start, end); err != nil {
				return err
			}
			if len(cfg.Scenes) == 0 {
				return fmt.Errorf("no [[scenes]] filters configured")
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			opts := pipeline.Options{
				Config:  cfg,
				Logger:  logger,
				Force:   force,
				Offline: offline,
			}
			if cfg.Remote.Progress && !noProgress {
				opts.Progress = transfer.TerminalProgress()
			}
			summary, err := pipeline.Run(signalCtx, opts)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s (%s)\n", summary.RunID, summary.Workflow)
			fmt.Fprintf(out, "  Forced:      %s\n", yesNo(force))
			fmt.Fprintf(out, "  Offline:     %s\n", yesNo(offline || !cfg.Remote.Online))
			fmt.Fprintf(out, "  Candidates:  %d\n", summary.Transfer.Candidates)
			fmt.Fprintf(out, "  Downloaded:  %d (%s)\n", summary.Transfer.Downloaded, humanize.IBytes(uint64(max(summary.Transfer.Bytes, 0))))
			fmt.Fprintf(out, "  Reused:      %d\n", summary.Transfer.Reused)
			fmt.Fprintf(out, "  Unavailable: %d\n", summary.Transfer.Unavailable)
			fmt.Fprintf(out, "  Dropped:     %d\n", summary.Transfer.Dropped)
			fmt.Fprintf(out, "  Processed:   %d\n", summary.Processing.Processed)
			fmt.Fprintf(out, "  Failed:      %d\n", summary.Processing.Failed)
			fmt.Fprintf(out, "  Elapsed:     %s\n", summary.Elapsed.Round(time.Second))
			return err
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Clear step checkpoints and re-run every step")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use previously downloaded archives only")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable download progress bars")
	cmd.Flags().StringVarP(&workflowName, "workflow", "w", "", "Workflow name (overrides workflow.name)")
	cmd.Flags().StringVar(&start, "start", "", "Start date YYYY-MM-DD for every scene filter")
	cmd.Flags().StringVar(&end, "end", "", "End date YYYY-MM-DD for every scene filter")
	return cmd
}

func overrideDates(cfg *config.Config, start, end string) error {
	var startDate, endDate time.Time
	var err error
	if s := strings.TrimSpace(start); s != "" {
		if startDate, err = time.Parse(config.DateLayout, s); err != nil {
			return fmt.Errorf("invalid --start %q: expected YYYY-MM-DD", start)
		}
	}
	if e := strings.TrimSpace(end); e != "" {
		if endDate, err = time.Parse(config.DateLayout, e); err != nil {
			return fmt.Errorf("invalid --end %q: expected YYYY-MM-DD", end)
		}
	}
	for i := range cfg.Scenes {
		if !startDate.IsZero() {
			cfg.Scenes[i].Start = startDate
			cfg.Scenes[i].StartDate = startDate.Format(config.DateLayout)
		}
		if !endDate.IsZero() {
			cfg.Scenes[i].End = endDate
			cfg.Scenes[i].EndDate = endDate.Format(config.DateLayout)
		}
		if cfg.Scenes[i].End.Before(cfg.Scenes[i].Start) {
			return fmt.Errorf("scene filter %d: end date %s is before start date %s",
				i+1, cfg.Scenes[i].EndDate, cfg.Scenes[i].StartDate)
		}
	}
	return nil
}
