package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PL7092/MyMoney-sub001/internal/cli"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show the state and counters of an import session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			sess, err := store.GetSession(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Println(cli.FormatTitle("Import session " + sess.ID))
			fmt.Printf("  Owner:      %s\n", sess.Owner)
			fmt.Printf("  Source:     %s\n", sess.Source)
			fmt.Printf("  State:      %s\n", cli.FormatState(string(sess.State)))
			fmt.Printf("  Rows:       %d total, %d processed, %d ok, %d failed\n",
				sess.Counters.TotalRows, sess.Counters.ProcessedRows,
				sess.Counters.SuccessfulRows, sess.Counters.ErrorRows)
			fmt.Printf("  Created:    %s\n", sess.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Printf("  Updated:    %s\n", sess.UpdatedAt.Format("2006-01-02 15:04:05"))
			if sess.ErrorText != "" {
				fmt.Printf("  Error:      %s\n", cli.FormatError(sess.ErrorText))
			}
			return nil
		},
	}
}
