package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"trade-reconciliation/internal/domain"
	"trade-reconciliation/internal/usecase"
)

func runCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile one trade date",
		Long: `Reconcile the internal and external trades of one trade date.

A date that already has a completed run is reported unchanged unless
--force-rerun is given. Breaks found by an earlier run are never duplicated.

Examples:
  reconciler run --date 2025-03-14
  reconciler run --date 2025-03-14 --force-rerun --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dateStr, _ := cmd.Flags().GetString("date")
			force, _ := cmd.Flags().GetBool("force-rerun")
			asJSON, _ := cmd.Flags().GetBool("json")

			tradeDate, err := time.Parse(time.DateOnly, dateStr)
			if err != nil {
				return fmt.Errorf("invalid --date %q (use YYYY-MM-DD): %w", dateStr, err)
			}

			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			run, err := a.recon.Reconcile(cmd.Context(), tradeDate, usecase.RunOptions{ForceRerun: force})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(run)
			}
			printRunSummary(os.Stdout, run)
			return nil
		},
	}
	cmd.Flags().String("date", "", "Trade date to reconcile (YYYY-MM-DD)")
	cmd.Flags().Bool("force-rerun", false, "Run again even if the date already completed")
	cmd.Flags().Bool("json", false, "Print the run as JSON")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func severityColor(s domain.Severity) *color.Color {
	switch s {
	case domain.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	case domain.SeverityHigh:
		return color.New(color.FgRed)
	case domain.SeverityMedium:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgHiBlack)
	}
}

func statusColor(s domain.RunStatus) *color.Color {
	switch s {
	case domain.RunCompleted:
		return color.New(color.FgHiGreen)
	case domain.RunFailed:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgYellow)
	}
}

func printRunSummary(w io.Writer, run *domain.ReconciliationRun) {
	s := run.Statistics
	bold := color.New(color.Bold)

	fmt.Fprintf(w, "%s %s  %s\n",
		bold.Sprint("Run"), run.ID, statusColor(run.Status).Sprint(run.Status))
	fmt.Fprintf(w, "  trade date    %s\n", run.TradeDate.Format(time.DateOnly))
	fmt.Fprintf(w, "  duration      %s\n", run.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "  internal      %d\n", s.TotalInternal)
	fmt.Fprintf(w, "  external      %d\n", s.TotalExternal)
	fmt.Fprintf(w, "  rejected      %d\n", s.Rejected)
	fmt.Fprintf(w, "  matched       %d\n", s.Matched)
	fmt.Fprintf(w, "  unmatched     %d internal / %d external\n", s.UnmatchedInternal, s.UnmatchedExternal)
	fmt.Fprintf(w, "  breaks        %d (%d auto-resolved, %d already known)\n", s.Breaks, s.AutoResolved, s.ExistingSkipped)

	if s.Breaks == 0 {
		return
	}
	fmt.Fprintln(w, bold.Sprint("By severity"))
	for i := len(domain.Severities) - 1; i >= 0; i-- {
		sev := domain.Severities[i]
		if n := s.BreaksBySeverity[sev]; n > 0 {
			fmt.Fprintf(w, "  %-22s %d\n", severityColor(sev).Sprint(sev), n)
		}
	}
	fmt.Fprintln(w, bold.Sprint("By category"))
	for _, cat := range domain.Categories {
		if n := s.BreaksByCategory[cat]; n > 0 {
			fmt.Fprintf(w, "  %-22s %d\n", cat, n)
		}
	}
}
