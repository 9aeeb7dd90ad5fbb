// Package main provides the CLI entry point for profileqa, a question
// answering agent over a professional profile.
//
// profileqa classifies each question, answers it from an FAQ store and
// semantic search over CV documents, evaluates the answer and notifies
// operators about important or poor-quality interactions.
//
// # Basic Usage
//
// Start the HTTP API:
//
//	profileqa serve --config profileqa.yaml
//
// Ask a question, or start an interactive session when no question is given:
//
//	profileqa ask "¿Qué experiencia tiene con Kubernetes?"
//	profileqa ask
//
// Serve the MCP tools over stdio:
//
//	profileqa mcp
//
// # Environment Variables
//
//   - PROFILEQA_CONFIG: Path to configuration file (default: profileqa.yaml)
//   - OPENAI_API_KEY, ANTHROPIC_API_KEY, GOOGLE_API_KEY: referenced from the
//     config file through ${VAR} expansion
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultConfigName = "profileqa.yaml"
	configEnv         = "PROFILEQA_CONFIG"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "profileqa",
		Short: "profileqa - question answering over a professional profile",
		Long: `profileqa answers questions about a professional profile.

Questions are classified, answered from an FAQ store and semantic search over
CV documents, scored by an LLM evaluator, and important interactions are
reported to Slack, Telegram, Discord or Pushover.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildAskCmd(),
		buildClassifyCmd(),
		buildEvaluateCmd(),
		buildEnsembleCmd(),
		buildMcpCmd(),
		buildFAQCmd(),
		buildModelsCmd(),
		buildConfigCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

// resolveConfigPath prefers an explicit path, then PROFILEQA_CONFIG, then
// the default file name.
func resolveConfigPath(path string) string {
	if p := strings.TrimSpace(path); p != "" && p != defaultConfigName {
		return p
	}
	if env := strings.TrimSpace(os.Getenv(configEnv)); env != "" {
		return env
	}
	return defaultConfigName
}
