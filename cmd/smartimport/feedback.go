package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/PL7092/MyMoney-sub001/internal/cli"
	"github.com/PL7092/MyMoney-sub001/internal/model"
)

func feedbackCmd() *cobra.Command {
	var (
		override   string
		createRule bool
	)

	cmd := &cobra.Command{
		Use:   "feedback <session-id> <record>",
		Short: "Accept or override a record's suggested category",
		Long: `Record your verdict on one staged record. Without flags the suggestion
is accepted; --override replaces the category. Either way the matched rule's
success rate is updated, and overrides of unmatched records teach the system
a new rule.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			sequence, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid record number %q", args[1])
			}

			svc, store, err := initPipeline(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			defer svc.Close()

			choice := model.FeedbackAccept
			if override != "" {
				choice = model.FeedbackOverride
			}

			if err := svc.SubmitFeedback(ctx, args[0], sequence, choice, override, createRule); err != nil {
				return err
			}

			if choice == model.FeedbackAccept {
				fmt.Println(cli.FormatSuccess(fmt.Sprintf("Accepted suggestion for record %d", sequence)))
			} else {
				fmt.Println(cli.FormatSuccess(fmt.Sprintf("Record %d recategorized as %s", sequence, override)))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&override, "override", "", "Replace the suggested category")
	cmd.Flags().BoolVar(&createRule, "create-rule", false, "Also create a rule from this record")

	return cmd
}
