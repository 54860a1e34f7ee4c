package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"github.com/veritest/veritest/internal/checkpoint"
	"github.com/veritest/veritest/internal/config"
	"github.com/veritest/veritest/internal/db"
	"github.com/veritest/veritest/internal/events"
	"github.com/veritest/veritest/internal/pipeline"
	"github.com/veritest/veritest/internal/reasoning"
	"github.com/veritest/veritest/internal/sandbox"
)

func openDB() (*sql.DB, string, func(), error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, "", func() {}, err
	}
	stateDir := filepath.Join(workDir, ".veritest")
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, "", func() {}, err
	}
	storeDB, err := db.Open(filepath.Join(stateDir, "veritest.db"))
	if err != nil {
		return nil, "", func() {}, err
	}
	return storeDB, workDir, func() { _ = storeDB.Close() }, nil
}

func loadConfig(workDir string) (config.Config, error) {
	path := viper.GetString("config")
	if path == "" {
		path = filepath.Join(".veritest", "config.json")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}
	return config.Load(path)
}

// buildOrchestrator wires the collaborators the pipeline needs: the reasoning
// client, the docker sandbox, and the event broker.
func buildOrchestrator(cfg config.Config, store *checkpoint.Store, broker *events.Broker) (*pipeline.Orchestrator, error) {
	completer, err := reasoning.NewClient(reasoning.Config{
		Model:     cfg.Reasoning.Model,
		BaseURL:   cfg.Reasoning.BaseURL,
		APIKeyEnv: cfg.Reasoning.APIKeyEnv,
		Timeout:   cfg.Reasoning.Timeout,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("reasoning client: %w", err)
	}
	executor := sandbox.NewDockerExecutor(cfg.Sandbox.Image)
	return pipeline.New(store, executor, reasoning.NewAdapter(completer), broker, cfg.Sandbox.Timeout), nil
}
