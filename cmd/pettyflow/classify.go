package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fintrax/pettyflow/internal/engine"
	"github.com/fintrax/pettyflow/internal/llm"
)

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <description>...",
		Short: "Classify an expense description from the command line",
		Long: `Run a description through the classification pipeline: accounting
rules first, then classification memory, then the AI classifier.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runClassify,
	}
	cmd.Flags().String("amount", "", "expense amount, passed to the classifier as context")
	return cmd
}

func runClassify(cmd *cobra.Command, args []string) error {
	description := strings.Join(args, " ")
	amount, _ := cmd.Flags().GetString("amount")
	logger := slog.Default()

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	classifier, err := llm.NewClassifier(llm.Config{
		Provider: viper.GetString("llm.provider"),
		APIKey:   viper.GetString("llm.api_key"),
		Model:    viper.GetString("llm.model"),
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create classifier: %w", err)
	}

	eng := engine.New(store, classifier, logger)
	result, err := eng.ClassifySingle(cmd.Context(), description, amount)
	if err != nil {
		return fmt.Errorf("classification failed: %w", err)
	}

	cmd.Printf("Method:     %s\n", result.Method)
	cmd.Printf("Account:    %s\n", result.AccountCode)
	cmd.Printf("Confidence: %.2f\n", result.Confidence)
	if result.Intent.Category != "" {
		cmd.Printf("Category:   %s\n", result.Intent.Category)
	}
	if result.Reasoning != "" {
		cmd.Printf("Reasoning:  %s\n", result.Reasoning)
	}
	return nil
}
