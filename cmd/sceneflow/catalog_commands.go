package main

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sceneflow/internal/catalog"
	"sceneflow/internal/config"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the scene metadata catalog",
	}
	catalogCmd.AddCommand(newCatalogImportCommand(ctx))
	catalogCmd.AddCommand(newCatalogQueryCommand(ctx))
	return catalogCmd
}

func newCatalogImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <bulk-metadata.csv[.gz]>",
		Short: "Replace the catalog with a bulk metadata CSV export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open metadata: %w", err)
			}
			defer file.Close()

			var src io.Reader = file
			if strings.HasSuffix(strings.ToLower(path), ".gz") {
				gz, err := gzip.NewReader(file)
				if err != nil {
					return fmt.Errorf("open gzip metadata: %w", err)
				}
				defer gz.Close()
				src = gz
			}

			started := time.Now()
			return ctx.withCatalog(cmd.Context(), func(store *catalog.Store) error {
				n, err := store.Import(cmd.Context(), src)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d scene(s) in %s\n", n, time.Since(started).Round(time.Millisecond))
				return nil
			})
		},
	}
}

func newCatalogQueryCommand(ctx *commandContext) *cobra.Command {
	var (
		path, row  int
		start, end string
		maxCloud   float64
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "List catalog candidates for a path/row and date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			startDate, err := time.Parse(config.DateLayout, start)
			if err != nil {
				return fmt.Errorf("invalid --start %q: expected YYYY-MM-DD", start)
			}
			endDate, err := time.Parse(config.DateLayout, end)
			if err != nil {
				return fmt.Errorf("invalid --end %q: expected YYYY-MM-DD", end)
			}
			return ctx.withCatalog(cmd.Context(), func(store *catalog.Store) error {
				candidates, err := store.ResolveCandidates(cmd.Context(), path, row, startDate, endDate, maxCloud)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSONList(cmd, candidates)
				}
				out := cmd.OutOrStdout()
				if len(candidates) == 0 {
					fmt.Fprintln(out, "No matching scenes")
					return nil
				}
				rows := make([][]string, 0, len(candidates))
				for _, c := range candidates {
					rows = append(rows, []string{
						c.Key().String(),
						c.Sensor,
						c.ProductID,
						strconv.FormatFloat(c.LandCloudCover, 'f', 1, 64),
						c.DayNight,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Scene", "Sensor", "Product", "Land cloud %", "Day/Night"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&path, "path", 0, "WRS path")
	cmd.Flags().IntVar(&row, "row", 0, "WRS row")
	cmd.Flags().StringVar(&start, "start", "", "Start date YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "End date YYYY-MM-DD")
	cmd.Flags().Float64Var(&maxCloud, "max-cloud", 100, "Maximum land cloud cover percentage")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("path")
	_ = cmd.MarkFlagRequired("row")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}
