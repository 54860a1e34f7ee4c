package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/veritest/veritest/internal/checkpoint"
	"github.com/veritest/veritest/internal/events"
	"github.com/veritest/veritest/internal/model"
)

func resumeCmd() *cobra.Command {
	var outDir string
	var implFile string
	var testsFile string
	cmd := &cobra.Command{
		Use:          "resume <session-id>",
		Short:        "Resume a halted session, optionally with corrected artifact files",
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

			store := checkpoint.NewStore(storeDB)
			orch, err := buildOrchestrator(cfg, store, events.NewBroker())
			if err != nil {
				return err
			}

			updated, err := loadCorrectedArtifact(cmd.Context(), store, args[0], implFile, testsFile)
			if err != nil {
				return err
			}

			res, err := orch.Resume(cmd.Context(), args[0], updated)
			if err != nil {
				return err
			}
			return reportResult(res, outDir)
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "write the artifact files into this directory")
	cmd.Flags().StringVar(&implFile, "implementation", "", "replace the cached implementation with this file")
	cmd.Flags().StringVar(&testsFile, "tests", "", "replace the cached tests with this file")
	return cmd
}

// loadCorrectedArtifact merges corrected files over the session's cached
// artifact. It returns nil when nothing was overridden so the pipeline keeps
// the cached artifact untouched.
func loadCorrectedArtifact(ctx context.Context, store *checkpoint.Store, sessionID, implFile, testsFile string) (*model.Artifact, error) {
	if implFile == "" && testsFile == "" {
		return nil, nil
	}
	cp, err := store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	artifact := cp.Artifact
	if implFile != "" {
		body, err := os.ReadFile(implFile)
		if err != nil {
			return nil, fmt.Errorf("read implementation file: %w", err)
		}
		artifact.Implementation = string(body)
	}
	if testsFile != "" {
		body, err := os.ReadFile(testsFile)
		if err != nil {
			return nil, fmt.Errorf("read tests file: %w", err)
		}
		artifact.Tests = string(body)
	}
	return &artifact, nil
}
