package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yungbote/curriculum-engine/internal/config"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/budget"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/export"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/outline"
	"github.com/yungbote/curriculum-engine/internal/modules/curriculum/pipeline"
	"github.com/yungbote/curriculum-engine/internal/pkg/dbctx"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run the pipeline over a range of weeks",
	RunE:  runGenerate,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run the quality gate on a stored week and print the report",
	RunE:  runValidate,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Package validated weeks as zips with sha256 manifests",
	RunE:  runExport,
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Print the generation usage summary",
	RunE:  runUsage,
}

var outlineCmd = &cobra.Command{
	Use:   "outline",
	Short: "Print a week's outline entry, prerequisites and cumulative concepts",
	RunE:  runOutline,
}

func init() {
	f := generateCmd.Flags()
	f.Int("from", 1, "first week to generate")
	f.Int("to", 0, "last week to generate (defaults to --from)")
	f.Bool("dry-run", false, "answer every request with placeholder content at zero cost")
	f.Bool("progress", true, "log progress events as they happen")

	validateCmd.Flags().Int("unit", 0, "week to validate")
	_ = validateCmd.MarkFlagRequired("unit")

	f = exportCmd.Flags()
	f.Int("unit", 0, "week to export")
	f.String("out", "exports", "directory receiving the zip")
	f.Bool("force", false, "export even when the week has not passed validation")
	f.Bool("all", false, "export every week with a passing verdict")
	exportCmd.MarkFlagsOneRequired("unit", "all")
	exportCmd.MarkFlagsMutuallyExclusive("unit", "all")
	exportCmd.MarkFlagsMutuallyExclusive("all", "force")

	usageCmd.Flags().String("run", "", "summarize a single run id (requires a database)")

	outlineCmd.Flags().Int("unit", 0, "week to describe")
	_ = outlineCmd.MarkFlagRequired("unit")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	from, _ := cmd.Flags().GetInt("from")
	to, _ := cmd.Flags().GetInt("to")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	progress, _ := cmd.Flags().GetBool("progress")
	if to == 0 {
		to = from
	}
	a, err := openApp(cmd.Context(), dryRun)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.Start(progress); err != nil {
		return err
	}

	a.Log.Info("Generation started", "run_id", a.RunID, "from", from, "to", to, "dry_run", a.Cfg.Run.DryRun)
	res, runErr := a.Services.Runner.Run(cmd.Context(), from, to)
	if res != nil {
		printVerdicts(cmd, res)
	}
	return runErr
}

func printVerdicts(cmd *cobra.Command, res *pipeline.RunResult) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WEEK\tSTATUS\tVERDICT\tFALLBACKS\tDETAIL")
	for _, u := range res.Units {
		detail := ""
		if u.Failure != nil {
			detail = u.Failure.Reason
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", u.Unit, u.Status, u.Verdict, len(u.Fallbacks), detail)
	}
	_ = w.Flush()
	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d calls, $%.4f of $%.2f\n",
		res.RunID, res.Usage.Calls, res.Usage.TotalCost, res.Usage.Cap)
}

func runValidate(cmd *cobra.Command, args []string) error {
	unit, _ := cmd.Flags().GetInt("unit")
	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()
	if _, err := a.Outline.Entry(unit); err != nil {
		return err
	}
	report, err := a.Services.Gate.Check(cmd.Context(), a.RunID, unit)
	if err != nil {
		return err
	}
	return printJSON(cmd, report)
}

func runExport(cmd *cobra.Command, args []string) error {
	unit, _ := cmd.Flags().GetInt("unit")
	out, _ := cmd.Flags().GetString("out")
	force, _ := cmd.Flags().GetBool("force")
	all, _ := cmd.Flags().GetBool("all")
	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()
	exp := export.New(a.Log, a.Store, export.Options{OutDir: out, Workers: 8})
	if all {
		results, err := exp.ExportAll(cmd.Context(), a.Outline.Total())
		for _, res := range results {
			printExport(cmd, res)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d of %d weeks exported\n", len(results), a.Outline.Total())
		return nil
	}
	res, err := exp.Export(cmd.Context(), unit, force)
	if err != nil {
		return err
	}
	printExport(cmd, res)
	return nil
}

func printExport(cmd *cobra.Command, res *export.Result) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d files, %d bytes\n", res.ZipPath, res.Manifest.FileCount, res.Manifest.TotalSizeBytes)
}

func runUsage(cmd *cobra.Command, args []string) error {
	runID, _ := cmd.Flags().GetString("run")
	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	repo := a.Repos.UsageRecords
	if repo == nil {
		if runID != "" {
			return fmt.Errorf("--run needs a configured database")
		}
		raw, err := os.ReadFile(filepath.Join(a.Cfg.Run.OutputDir, pipeline.UsageSummaryFile))
		if err != nil {
			return fmt.Errorf("no database configured and no usage summary found: %w", err)
		}
		var s budget.Summary
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("decode usage summary: %w", err)
		}
		return printJSON(cmd, s)
	}

	dbc := dbctx.Context{Ctx: cmd.Context()}
	if runID != "" {
		rows, err := repo.ListByRun(dbc, runID)
		if err != nil {
			return err
		}
		return printJSON(cmd, budget.Summarize(budget.RecordsFromRows(rows), a.Cfg.Budget.Cap))
	}
	rows, err := repo.ListRecent(dbc, budget.MaxSessions)
	if err != nil {
		return err
	}
	slices.Reverse(rows)
	return printJSON(cmd, budget.Summarize(budget.RecordsFromRows(rows), a.Cfg.Budget.Cap))
}

// runOutline reads only the outline file, so it works before anything else is configured.
func runOutline(cmd *cobra.Command, args []string) error {
	unit, _ := cmd.Flags().GetInt("unit")
	cfg, err := config.LoadOffline(configPath)
	if err != nil {
		return err
	}
	o, err := outline.LoadFile(cfg.OutlinePath)
	if err != nil {
		return err
	}
	entry, err := o.Entry(unit)
	if err != nil {
		return err
	}
	required, err := o.Required(unit)
	if err != nil {
		return err
	}
	concepts, err := o.CumulativeConcepts(unit)
	if err != nil {
		return err
	}
	return printJSON(cmd, map[string]any{
		"entry":               entry,
		"required_weeks":      required,
		"cumulative_concepts": concepts,
		"prior_summary":       o.PriorSummary(unit),
		"upcoming":            o.UpcomingSummary(unit, 3),
	})
}
