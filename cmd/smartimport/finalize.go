package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PL7092/MyMoney-sub001/internal/cli"
	"github.com/PL7092/MyMoney-sub001/internal/finalize"
	"github.com/PL7092/MyMoney-sub001/internal/model"
)

func finalizeCmd() *cobra.Command {
	var approveArgs []string

	cmd := &cobra.Command{
		Use:   "finalize <session-id>",
		Short: "Commit the session's approved records to the ledger",
		Long: `Commit approved staged records to the permanent ledger as one atomic
batch and close the session.

By default every committable record is approved. Use --approve to commit a
subset; each entry is a record number with an optional category override,
e.g. --approve 3 --approve 5:Restauração.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			approvals, err := buildApprovals(cmd, store, args[0], approveArgs)
			if err != nil {
				return err
			}
			if len(approvals) == 0 {
				return fmt.Errorf("nothing to finalize: no committable records")
			}

			result, err := finalize.New(store).Finalize(ctx, args[0], approvals)
			if err != nil {
				return err
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Committed %d records to the ledger", result.Committed)))
			for _, rej := range result.Rejections {
				fmt.Println(cli.FormatWarning(fmt.Sprintf("Record %d rejected: %s", rej.Sequence, rej.Reason)))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&approveArgs, "approve", nil, "Record to approve, as <number>[:<category>] (repeatable)")

	return cmd
}

func buildApprovals(cmd *cobra.Command, store finalize.Store, sessionID string, approveArgs []string) ([]finalize.Approval, error) {
	if len(approveArgs) > 0 {
		approvals := make([]finalize.Approval, 0, len(approveArgs))
		for _, arg := range approveArgs {
			seqText, category, _ := strings.Cut(arg, ":")
			sequence, err := strconv.Atoi(seqText)
			if err != nil {
				return nil, fmt.Errorf("invalid approval %q: want <number>[:<category>]", arg)
			}
			approvals = append(approvals, finalize.Approval{Sequence: sequence, Category: category})
		}
		return approvals, nil
	}

	// Default: approve everything that can commit.
	records, err := store.ListStagedRecords(cmd.Context(), sessionID)
	if err != nil {
		return nil, err
	}
	var approvals []finalize.Approval
	for _, rec := range records {
		if rec.Status == model.RecordFailed {
			continue
		}
		approvals = append(approvals, finalize.Approval{Sequence: rec.Sequence})
	}
	return approvals, nil
}
