package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/profileqa/internal/config"
	"github.com/haasonsaas/profileqa/internal/llm/backends"
)

// =============================================================================
// Models / Config / Version Command Handlers
// =============================================================================

func runModels(cmd *cobra.Command, configPath string, discover bool) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	models, err := backends.ListModels(cmd.Context(), cfg.LLM, discover)

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BACKEND\tTYPE\tMODEL\tPROVIDER\tSTATUS")
	for _, m := range models {
		id := m.ID
		if m.Name != "" && m.Name != m.ID {
			id = fmt.Sprintf("%s (%s)", m.ID, m.Name)
		}
		marker := ""
		if m.Backend == cfg.LLM.DefaultBackend && m.Status == "configured" {
			marker = " *"
		}
		fmt.Fprintf(tw, "%s%s\t%s\t%s\t%s\t%s\n", m.Backend, marker, m.Type, id, m.Provider, m.Status)
	}
	if flushErr := tw.Flush(); flushErr != nil && err == nil {
		err = flushErr
	}
	return err
}

func runConfigValidate(cmd *cobra.Command, configPath string) error {
	cfg, path, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration %s is valid (version %d).\n", path, cfg.Version)
	fmt.Fprintf(out, "  llm backends:      %d (default %s)\n", len(cfg.LLM.Backends), cfg.LLM.DefaultBackend)
	fmt.Fprintf(out, "  faq driver:        %s\n", cfg.Retrieval.FAQ.Driver)
	fmt.Fprintf(out, "  semantic provider: %s\n", cfg.Retrieval.Semantic.Provider)
	fmt.Fprintf(out, "  summary cron:      %s\n", cfg.Notify.SummaryCron)
	return nil
}

func runConfigSchema(cmd *cobra.Command) error {
	schema, err := config.JSONSchema()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(schema))
	return err
}

func runVersion(cmd *cobra.Command) {
	fmt.Fprintf(cmd.OutOrStdout(), "profileqa %s (commit: %s, built: %s)\n", version, commit, date)
}
