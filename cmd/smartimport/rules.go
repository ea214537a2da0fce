package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PL7092/MyMoney-sub001/internal/cli"
	"github.com/PL7092/MyMoney-sub001/internal/model"
	"github.com/PL7092/MyMoney-sub001/internal/normalize"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage classification rules",
	}
	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesAddCmd())
	cmd.AddCommand(rulesDisableCmd())
	cmd.AddCommand(rulesEnableCmd())
	return cmd
}

func rulesListCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the rules visible to you",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			owner, err := resolveOwner()
			if err != nil {
				return err
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rules, err := store.ListRules(ctx, owner, model.RuleClassification, !all)
			if err != nil {
				return err
			}

			header := fmt.Sprintf("%-5s %-28s %-16s %4s %5s %6s %6s %-6s",
				"ID", "NAME", "CATEGORY", "PRIO", "CONF", "USED", "RATE", "SCOPE")
			fmt.Println(cli.TableHeaderStyle.Render(header))
			for _, rule := range rules {
				scope := "user"
				if rule.IsSystem {
					scope = "system"
				}
				row := fmt.Sprintf("%-5d %-28s %-16s %4d %5.2f %6d %6.2f %-6s",
					rule.ID, truncate(rule.Name, 28), truncate(rule.Category, 16),
					rule.Priority, rule.Confidence, rule.UsageCount, rule.SuccessRate, scope)
				if !rule.IsActive {
					row = cli.FormatSubtle(row + "  (disabled)")
				}
				fmt.Println(row)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Include disabled rules")
	return cmd
}

func rulesAddCmd() *cobra.Command {
	var (
		keywords  []string
		category  string
		account   string
		priority  int
		amountMin float64
		amountMax float64
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a classification rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			owner, err := resolveOwner()
			if err != nil {
				return err
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			// Keywords go through the same folding as record descriptions
			// so matching behaves the way the user expects.
			folded := make([]string, 0, len(keywords))
			for _, kw := range keywords {
				folded = append(folded, normalize.Tokenize(kw)...)
			}

			rule := &model.Rule{
				Owner:      owner,
				Kind:       model.RuleClassification,
				Name:       args[0],
				Keywords:   folded,
				Category:   category,
				Account:    account,
				Priority:   priority,
				Confidence: 0.9,
				IsActive:   true,
			}
			if cmd.Flags().Changed("amount-min") {
				rule.AmountMin = &amountMin
			}
			if cmd.Flags().Changed("amount-max") {
				rule.AmountMax = &amountMax
			}
			if err := rule.Validate(); err != nil {
				return err
			}

			if err := store.CreateRule(ctx, rule); err != nil {
				return err
			}
			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Rule %d created: %s → %s (keywords: %s)",
				rule.ID, rule.Name, rule.Category, strings.Join(rule.Keywords, ", "))))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&keywords, "keyword", nil, "Keyword to match (repeatable)")
	cmd.Flags().StringVar(&category, "category", "", "Category this rule assigns")
	cmd.Flags().StringVar(&account, "account", "", "Account this rule assigns")
	cmd.Flags().IntVar(&priority, "priority", 10, "Evaluation priority (lower runs first)")
	cmd.Flags().Float64Var(&amountMin, "amount-min", 0, "Minimum amount the rule applies to")
	cmd.Flags().Float64Var(&amountMax, "amount-max", 0, "Maximum amount the rule applies to")
	_ = cmd.MarkFlagRequired("keyword")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}

func rulesDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <rule-id>",
		Short: "Disable a rule you own",
		Args:  cobra.ExactArgs(1),
		RunE:  setRuleActiveRunE(false, "disabled"),
	}
}

func rulesEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <rule-id>",
		Short: "Re-enable a disabled rule",
		Args:  cobra.ExactArgs(1),
		RunE:  setRuleActiveRunE(true, "enabled"),
	}
}

func setRuleActiveRunE(active bool, verb string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid rule id %q", args[0])
		}

		store, err := initStorage(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		if err := store.SetRuleActive(ctx, id, active); err != nil {
			return err
		}
		fmt.Println(cli.FormatSuccess(fmt.Sprintf("Rule %d %s", id, verb)))
		return nil
	}
}
