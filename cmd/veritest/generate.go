package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/veritest/veritest/internal/checkpoint"
	"github.com/veritest/veritest/internal/events"
	"github.com/veritest/veritest/internal/logging"
	"github.com/veritest/veritest/internal/model"
	"github.com/veritest/veritest/internal/pipeline"
	"github.com/veritest/veritest/internal/sandbox"
)

func generateCmd() *cobra.Command {
	var maxIterations int
	var outDir string
	cmd := &cobra.Command{
		Use:          "generate <requirement>",
		Short:        "Generate an implementation and a verified test suite from a requirement",
		Args:         cobra.ExactArgs(1),
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
			if maxIterations <= 0 {
				maxIterations = cfg.Budgets.MaxIterations
			}

			store := checkpoint.NewStore(storeDB)
			orch, err := buildOrchestrator(cfg, store, events.NewBroker())
			if err != nil {
				return err
			}

			input := model.Input{Requirement: args[0]}
			res, err := orch.Start(cmd.Context(), input, model.ModeGenerate, maxIterations)
			if err != nil {
				return err
			}
			return reportResult(res, outDir)
		},
	}
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "override the configured iteration limit")
	cmd.Flags().StringVar(&outDir, "out", "", "write the artifact files into this directory")
	return cmd
}

// reportResult prints the terminal outcome and optionally writes the artifact
// to disk so the caller can inspect or fix it before resuming.
func reportResult(res pipeline.TerminalResult, outDir string) error {
	fmt.Printf("session:    %s\n", res.SessionID)
	fmt.Printf("status:     %s\n", res.Status)
	fmt.Printf("iterations: %d\n", res.Iterations)
	if res.Message != "" {
		fmt.Printf("detail:     %s\n", res.Message)
	}
	if cls := res.Classification; cls != nil && cls.Fix != nil {
		fmt.Printf("suggested fix at %s:\n  - %s\n  + %s\n", cls.Fix.Location, cls.Fix.Current, cls.Fix.Suggested)
	}
	if res.Result != nil && len(res.Result.FailingCases) > 0 {
		fmt.Printf("failing:    %s\n", strings.Join(res.Result.FailingCases, ", "))
	}
	if logging.DebugEnabled() && res.Result != nil && res.Result.Output != "" {
		fmt.Printf("--- sandbox output ---\n%s\n", res.Result.Output)
	}

	if outDir != "" && !res.Artifact.Empty() {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return err
		}
		implPath := filepath.Join(outDir, "implementation.py")
		if err := os.WriteFile(implPath, []byte(res.Artifact.Implementation), 0o644); err != nil {
			return err
		}
		testsPath := filepath.Join(outDir, sandbox.TestFileName)
		if err := os.WriteFile(testsPath, []byte(res.Artifact.Tests), 0o644); err != nil {
			return err
		}
		log.Info().Str("dir", outDir).Msg("wrote artifact files")
	}

	switch res.Status {
	case model.StatusSuccess:
		return nil
	case model.StatusCodeBug, model.StatusRequirementsAmbiguity:
		fmt.Printf("fix the input and run: veritest resume %s\n", res.SessionID)
		return fmt.Errorf("session halted with status %s", res.Status)
	default:
		return fmt.Errorf("session halted with status %s", res.Status)
	}
}
