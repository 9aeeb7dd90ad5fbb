package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// Pipeline Commands
// =============================================================================

// buildServeCmd creates the "serve" command that runs the HTTP API.
func buildServeCmd() *cobra.Command {
	var configPath string
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API with the chat, stats, notification test, health and
metrics endpoints. The summary report is sent on the configured cron schedule
and the configuration file is reloaded when it changes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, watch)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to configuration file")
	cmd.Flags().BoolVar(&watch, "watch", true, "Reload logging and orchestrator settings when the config file changes")
	return cmd
}

// buildAskCmd creates the "ask" command.
func buildAskCmd() *cobra.Command {
	var (
		configPath string
		opts       askOptions
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question, or start an interactive session",
		Long: `Answer a question about the profile.

Without a question, an interactive session starts when stdin is a terminal;
otherwise the question is read from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, configPath, args, opts)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to configuration file")
	cmd.Flags().StringVar(&opts.sessionID, "session", "", "Conversation identifier")
	cmd.Flags().StringVar(&opts.detailLevel, "detail", "", "Preferred level of detail")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the full result as JSON")
	return cmd
}

// buildClassifyCmd creates the "classify" command.
func buildClassifyCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "classify <question>...",
		Short: "Classify questions without answering them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(cmd, configPath, args)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to configuration file")
	return cmd
}

// buildEvaluateCmd creates the "evaluate" command.
func buildEvaluateCmd() *cobra.Command {
	var (
		configPath string
		opts       evaluateOptions
	)
	cmd := &cobra.Command{
		Use:   "evaluate <question> <answer>",
		Short: "Score an answer on the five quality criteria",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(cmd, configPath, args[0], args[1], opts)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to configuration file")
	cmd.Flags().StringVar(&opts.evidence, "evidence", "", "Context the answer was built from")
	cmd.Flags().StringSliceVar(&opts.tools, "tools", nil, "Tools used to build the answer")
	cmd.Flags().StringVar(&opts.strategy, "strategy", "", "Strategy used to build the answer")
	cmd.Flags().BoolVar(&opts.critique, "critique", false, "Produce a full self-critique instead of scores")
	return cmd
}

// buildEnsembleCmd creates the "ensemble" command.
func buildEnsembleCmd() *cobra.Command {
	var (
		configPath string
		opts       ensembleOptions
	)
	cmd := &cobra.Command{
		Use:   "ensemble <prompt>",
		Short: "Send one prompt to several backends concurrently",
		Long: `Send one prompt to every ensemble member at once and print each answer.

Use --criterion to select one answer, or --combine to have the combiner
backend synthesize them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnsemble(cmd, configPath, args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to configuration file")
	cmd.Flags().StringSliceVar(&opts.members, "members", nil, "Backend IDs to dispatch to (default: llm.ensemble)")
	cmd.Flags().StringVar(&opts.combiner, "combiner", "", "Backend that combines answers (default: llm.combiner)")
	cmd.Flags().StringVar(&opts.criterion, "criterion", "", "Selection criterion: longest, most_tokens or first")
	cmd.Flags().BoolVar(&opts.combine, "combine", false, "Synthesize answers with the combiner backend")
	cmd.Flags().Float64Var(&opts.temperature, "temperature", 0.7, "Sampling temperature")
	cmd.Flags().IntVar(&opts.maxTokens, "max-tokens", 1000, "Maximum output tokens")
	return cmd
}

// buildMcpCmd creates the "mcp" command that serves the MCP tools on stdio.
func buildMcpCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the ask and classify tools over MCP stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMcp(cmd, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to configuration file")
	return cmd
}

// =============================================================================
// FAQ Commands
// =============================================================================

// buildFAQCmd creates the "faq" command group.
func buildFAQCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "faq",
		Short: "Manage the FAQ store",
	}
	cmd.AddCommand(
		buildFAQListCmd(),
		buildFAQAddCmd(),
		buildFAQCategoriesCmd(),
		buildFAQStatsCmd(),
	)
	return cmd
}

func buildFAQListCmd() *cobra.Command {
	var configPath, category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active FAQ entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFAQList(cmd, configPath, category)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to configuration file")
	cmd.Flags().StringVar(&category, "category", "", "Only list entries in this category")
	return cmd
}

func buildFAQAddCmd() *cobra.Command {
	var (
		configPath string
		opts       faqAddOptions
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an FAQ entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFAQAdd(cmd, configPath, opts)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to configuration file")
	cmd.Flags().StringVar(&opts.question, "question", "", "Question text")
	cmd.Flags().StringVar(&opts.answer, "answer", "", "Answer text")
	cmd.Flags().StringVar(&opts.category, "category", "", "Category (default: general)")
	cmd.Flags().StringSliceVar(&opts.tags, "tags", nil, "Comma-separated tags")
	_ = cmd.MarkFlagRequired("question")
	_ = cmd.MarkFlagRequired("answer")
	return cmd
}

func buildFAQCategoriesCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List FAQ categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFAQCategories(cmd, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to configuration file")
	return cmd
}

func buildFAQStatsCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show FAQ lookup analytics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFAQStats(cmd, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to configuration file")
	return cmd
}

// =============================================================================
// Inspection Commands
// =============================================================================

// buildModelsCmd creates the "models" command.
func buildModelsCmd() *cobra.Command {
	var configPath string
	var discover bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List configured models",
		Long: `List the model of every configured backend. With --discover, Bedrock
backends also list the active text foundation models in their region.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModels(cmd, configPath, discover)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to configuration file")
	cmd.Flags().BoolVar(&discover, "discover", false, "Query Bedrock for available foundation models")
	return cmd
}

// buildConfigCmd creates the "config" command group.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate configuration and print its schema",
	}

	var configPath string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(cmd, configPath)
		},
	}
	validate.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to configuration file")

	schema := &cobra.Command{
		Use:   "schema",
		Short: "Print the configuration JSON schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSchema(cmd)
		},
	}

	cmd.AddCommand(validate, schema)
	return cmd
}

// buildVersionCmd creates the "version" command.
func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			runVersion(cmd)
		},
	}
}
