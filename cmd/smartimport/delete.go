package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PL7092/MyMoney-sub001/internal/cli"
)

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and its staged records",
		Long: `Delete an import session. Staged records go with it; an in-flight
pipeline for the session stops at its next step. The ledger is untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			svc, store, err := initPipeline(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			defer svc.Close()

			if err := svc.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println(cli.FormatSuccess("Session deleted"))
			return nil
		},
	}
}
