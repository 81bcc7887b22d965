package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/examrun/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored attempts",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Maximum number of attempts to show (0 = all)")
	historyCmd.Flags().String("module", "", "Only attempts of this module ID")
	historyCmd.Flags().Bool("retakes", false, "Show the retake passes of each attempt")
	historyCmd.Flags().Int("prune", 0, "Delete all but the N most recent attempts first")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	limit, _ := cmd.Flags().GetInt("limit")
	moduleID, _ := cmd.Flags().GetString("module")
	withRetakes, _ := cmd.Flags().GetBool("retakes")
	prune, _ := cmd.Flags().GetInt("prune")

	e, err := newEnv(cmd, envOpts{noSets: true})
	if err != nil {
		return err
	}
	defer e.Close()

	repo := e.store.ResultRepo()
	if prune > 0 {
		if err := repo.Prune(ctx, prune); err != nil {
			return fmt.Errorf("prune: %w", err)
		}
	}

	rows, err := repo.List(ctx, store.QueryOpts{Limit: limit, ModuleID: moduleID})
	if err != nil {
		return fmt.Errorf("query attempts: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(rows) == 0 {
		fmt.Fprintln(out, "No attempts found.")
		return nil
	}

	fmt.Fprintf(out, "%-5s  %-16s  %-14s  %-10s  %-8s  %-7s  %-6s  %s\n",
		"#", "Completed", "Module", "Section", "Answered", "Correct", "Time", "Session")
	fmt.Fprintln(out, strings.Repeat("─", 100))

	for _, r := range rows {
		flag := ""
		switch {
		case r.TimedOut:
			flag = " ⏱"
		case r.Aborted:
			flag = " ✗"
		}
		fmt.Fprintf(out, "%-5d  %-16s  %-14s  %-10s  %-8s  %-7d  %-6s  %s%s\n",
			r.Sequence,
			r.CompletedAt.Local().Format("2006-01-02 15:04"),
			truncate(r.ModuleID, 14),
			r.SectionKind,
			fmt.Sprintf("%d/%d", r.AnsweredQuestions, r.TotalQuestions),
			r.CorrectAnswers,
			fmt.Sprintf("%d:%02d", r.TimeSpentSecs/60, r.TimeSpentSecs%60),
			r.SessionID,
			flag,
		)

		if !withRetakes {
			continue
		}
		retakes, err := repo.Retakes(ctx, r.SessionID)
		if err != nil {
			return fmt.Errorf("query retakes: %w", err)
		}
		for _, rt := range retakes {
			fmt.Fprintf(out, "       ↳ retake %s  %d items, %d re-answered, %d improved\n",
				rt.CreatedAt.Local().Format("2006-01-02 15:04"), rt.Items, rt.Retaken, rt.Improved)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
