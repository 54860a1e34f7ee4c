package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/veritest/veritest/internal/checkpoint"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage veritest sessions",
	}
	cmd.AddCommand(sessionsListCmd())
	cmd.AddCommand(sessionsShowCmd())
	cmd.AddCommand(sessionsPruneCmd())
	return cmd
}

func sessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "list",
		Short:        "List stored sessions, newest first",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			storeDB, _, closeFn, err := openDB()
			if err != nil {
				return err
			}
			defer closeFn()

			store := checkpoint.NewStore(storeDB)
			summaries, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println("no sessions")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tMODE\tSTAGE\tSTATUS\tITER\tUPDATED")
			for _, sum := range summaries {
				status := string(sum.Status)
				if status == "" {
					status = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					sum.SessionID, sum.Mode, sum.Stage, status, sum.Iteration,
					sum.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
}

func sessionsShowCmd() *cobra.Command {
	var showEvents bool
	cmd := &cobra.Command{
		Use:          "show <session-id>",
		Short:        "Show one session's checkpoint and progress history",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			storeDB, _, closeFn, err := openDB()
			if err != nil {
				return err
			}
			defer closeFn()

			store := checkpoint.NewStore(storeDB)
			cp, err := store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("session:    %s\n", cp.SessionID)
			fmt.Printf("mode:       %s\n", cp.Mode)
			fmt.Printf("stage:      %s\n", cp.Stage)
			if cp.Status != "" {
				fmt.Printf("status:     %s\n", cp.Status)
			}
			if cp.Message != "" {
				fmt.Printf("detail:     %s\n", cp.Message)
			}
			fmt.Printf("iteration:  %d/%d\n", cp.Iteration, cp.MaxIterations)
			if cp.LastResult != nil {
				fmt.Printf("last run:   %d passed, %d failed\n", cp.LastResult.Passed, cp.LastResult.Failed)
				if len(cp.LastResult.FailingCases) > 0 {
					fmt.Printf("failing:    %s\n", strings.Join(cp.LastResult.FailingCases, ", "))
				}
			}
			if cls := cp.LastClassification; cls != nil {
				fmt.Printf("classified: %s (confidence %d)\n", cls.Kind, cls.Confidence)
			}

			if !showEvents {
				return nil
			}
			recs, err := store.ListEvents(cmd.Context(), cp.SessionID)
			if err != nil {
				return err
			}
			for _, rec := range recs {
				fmt.Printf("%3d  %s  %-18s  %s\n", rec.Seq,
					rec.Timestamp.Local().Format("15:04:05"), rec.Stage, rec.Message)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showEvents, "events", false, "include the progress event history")
	return cmd
}

func sessionsPruneCmd() *cobra.Command {
	var keepLast int
	var keepDays int
	var dryRun bool
	cmd := &cobra.Command{
		Use:          "prune",
		Short:        "Prune old finished sessions from the database",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			storeDB, workDir, closeFn, err := openDB()
			if err != nil {
				return err
			}
			defer closeFn()

			cfg, err := loadConfig(workDir)
			if err != nil {
				return err
			}

			policy := checkpoint.RetentionPolicy{KeepLast: keepLast, KeepDays: keepDays}
			if policy.KeepLast <= 0 && policy.KeepDays <= 0 {
				policy = checkpoint.RetentionPolicy{
					KeepLast: cfg.Retention.KeepLast,
					KeepDays: cfg.Retention.KeepDays,
				}
			}
			if policy.KeepLast <= 0 && policy.KeepDays <= 0 {
				return fmt.Errorf("set --keep-last or --keep-days (or configure retention in .veritest/config.json)")
			}

			store := checkpoint.NewStore(storeDB)
			res, err := store.Prune(cmd.Context(), policy, dryRun)
			if err != nil {
				return err
			}
			mode := "deleted"
			if dryRun {
				mode = "would delete"
			}
			log.Info().Msgf("%s %d sessions (kept %d, skipped %d in-flight)", mode, res.Deleted, res.Kept, res.Skipped)
			return nil
		},
	}
	cmd.Flags().IntVar(&keepLast, "keep-last", 0, "keep the newest N finished sessions")
	cmd.Flags().IntVar(&keepDays, "keep-days", 0, "keep sessions newer than N days")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be pruned without deleting")
	return cmd
}
