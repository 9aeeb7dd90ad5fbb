package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/profileqa/internal/retrieval/faq"
)

// =============================================================================
// FAQ Command Handlers
// =============================================================================

// openFAQ opens only the FAQ store; no LLM backend is needed.
func openFAQ(ctx context.Context, configPath string) (*faq.Store, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return faq.Open(ctx, cfg.Retrieval.FAQ, faq.WithLogger(newLogger(cfg.Logging)))
}

func runFAQList(cmd *cobra.Command, configPath, category string) error {
	store, err := openFAQ(cmd.Context(), configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(cmd.Context(), category)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No FAQ entries.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tQUESTION")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", e.ID, e.Category, e.Question)
	}
	return tw.Flush()
}

type faqAddOptions struct {
	question string
	answer   string
	category string
	tags     []string
}

func runFAQAdd(cmd *cobra.Command, configPath string, opts faqAddOptions) error {
	store, err := openFAQ(cmd.Context(), configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := store.Add(cmd.Context(), faq.Entry{
		Question: opts.question,
		Answer:   opts.answer,
		Category: opts.category,
		Tags:     opts.tags,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added FAQ entry %d\n", id)
	return nil
}

func runFAQCategories(cmd *cobra.Command, configPath string) error {
	store, err := openFAQ(cmd.Context(), configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	categories, err := store.Categories(cmd.Context())
	if err != nil {
		return err
	}
	for _, c := range categories {
		fmt.Fprintln(cmd.OutOrStdout(), c)
	}
	return nil
}

func runFAQStats(cmd *cobra.Command, configPath string) error {
	store, err := openFAQ(cmd.Context(), configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := store.AnalyticsSummary(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), summary)
}
