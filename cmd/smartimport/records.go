package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PL7092/MyMoney-sub001/internal/cli"
	"github.com/PL7092/MyMoney-sub001/internal/model"
)

func recordsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "records <session-id>",
		Short: "List the staged records of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if _, err := store.GetSession(ctx, args[0]); err != nil {
				return err
			}
			records, err := store.ListStagedRecords(ctx, args[0])
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println(cli.FormatSubtle("No staged records."))
				return nil
			}

			header := fmt.Sprintf("%-4s %-11s %-32s %10s %-9s %-16s %5s %-11s",
				"#", "DATE", "DESCRIPTION", "AMOUNT", "DIR", "CATEGORY", "CONF", "STATUS")
			fmt.Println(cli.TableHeaderStyle.Render(header))

			for _, rec := range records {
				fmt.Println(formatRecordRow(&rec))
			}
			return nil
		},
	}
}

func formatRecordRow(rec *model.StagedRecord) string {
	if rec.Status == model.RecordFailed {
		return fmt.Sprintf("%-4d %s", rec.Sequence,
			cli.FormatError(truncate(rec.RawData, 60)+"  ("+rec.ErrorText+")"))
	}

	category := rec.EffectiveCategory()
	if category == "" {
		category = "-"
	}

	row := fmt.Sprintf("%-4d %-11s %-32s %10.2f %-9s %-16s %5s %-11s",
		rec.Sequence,
		rec.Date.Format("2006-01-02"),
		truncate(rec.Description, 32),
		rec.Amount,
		rec.Direction,
		truncate(category, 16),
		cli.FormatConfidence(rec.Confidence),
		rec.Status,
	)
	if rec.IsDuplicate {
		row += " " + cli.DuplicateStyle.Render(
			fmt.Sprintf("%s duplicate? %.2f", cli.DuplicateIcon, rec.DuplicateConfidence))
	}
	return row
}

func truncate(s string, n int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n-1]) + "…"
}
