package main

import (
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/fintrax/pettyflow/internal/model"
	"github.com/fintrax/pettyflow/internal/rules"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage accounting rules",
		Long: `Accounting rules map line item descriptions to accounts ahead of the
AI classifier. A rule match is authoritative and never reaches the AI.`,
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesAddCmd())

	return cmd
}

func rulesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounting rules in priority order",
		RunE:  runRulesList,
	}
	cmd.Flags().Bool("all", false, "include inactive rules")
	return cmd
}

func runRulesList(cmd *cobra.Command, _ []string) error {
	all, _ := cmd.Flags().GetBool("all")

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ruleSet, err := store.ListRules(cmd.Context(), !all)
	if err != nil {
		return fmt.Errorf("failed to list rules: %w", err)
	}
	if len(ruleSet) == 0 {
		cmd.Println("No rules defined.")
		return nil
	}

	for _, rule := range ruleSet {
		kind := "keyword"
		if rule.IsRegex {
			kind = "regex"
		}
		status := ""
		if !rule.IsActive {
			status = " (inactive)"
		}
		cmd.Printf("%4d  p%-3d %-8s %-30q -> %s%s\n",
			rule.ID, rule.Priority, kind, rule.Pattern, rule.AccountID, status)
	}
	return nil
}

func rulesAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <name> <pattern> <account-code>",
		Short: "Add an accounting rule",
		Args:  cobra.ExactArgs(3),
		RunE:  runRulesAdd,
	}
	cmd.Flags().Bool("regex", false, "treat pattern as a regular expression")
	cmd.Flags().Int("priority", 0, "rule priority, higher wins")
	return cmd
}

func runRulesAdd(cmd *cobra.Command, args []string) error {
	name, pattern, accountCode := args[0], args[1], args[2]
	isRegex, _ := cmd.Flags().GetBool("regex")
	priority, _ := cmd.Flags().GetInt("priority")

	if isRegex {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("invalid regex pattern: %w", err)
		}
	}

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	account, err := store.GetAccountByCode(cmd.Context(), accountCode)
	if err != nil {
		return fmt.Errorf("failed to resolve account %s: %w", accountCode, err)
	}

	id, err := store.CreateRule(cmd.Context(), model.AccountingRule{
		Name:       name,
		Pattern:    pattern,
		AccountID:  account.ID,
		Priority:   priority,
		Confidence: rules.RuleConfidence,
		IsRegex:    isRegex,
		IsActive:   true,
	})
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}

	cmd.Printf("Created rule %d: %s -> %s (%s)\n", id, pattern, account.Code, account.Name)
	return nil
}
