package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/veritest/veritest/internal/checkpoint"
	"github.com/veritest/veritest/internal/events"
	"github.com/veritest/veritest/internal/model"
)

func testCmd() *cobra.Command {
	var maxIterations int
	var outDir string
	var functionName string
	cmd := &cobra.Command{
		Use:          "test <function-file>",
		Short:        "Generate a verified test suite for an existing Python function",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read function file: %w", err)
			}

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

			res, err := orch.Start(cmd.Context(), testInput(source, functionName), model.ModeTest, maxIterations)
			if err != nil {
				return err
			}
			return reportResult(res, outDir)
		},
	}
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "override the configured iteration limit")
	cmd.Flags().StringVar(&outDir, "out", "", "write the artifact files into this directory")
	cmd.Flags().StringVar(&functionName, "function", "", "name of the function under test")
	_ = cmd.MarkFlagRequired("function")
	return cmd
}

// testInput maps a source file onto the TEST-mode input contract: the code
// under test travels as the requirement text and the target function by name.
func testInput(source []byte, functionName string) model.Input {
	return model.Input{
		Requirement: string(source),
		Function:    functionName,
	}
}
