package main

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/PL7092/MyMoney-sub001/internal/cli"
	"github.com/PL7092/MyMoney-sub001/internal/common"
	"github.com/PL7092/MyMoney-sub001/internal/model"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import a batch of transactions",
		Long: `Import transactions from a CSV file or from pasted text on stdin.

The batch is staged for review: each record is normalized, classified
against your rules, and checked for likely duplicates. Nothing touches the
ledger until you run finalize.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runImport,
	}

	cmd.Flags().Bool("paste", false, "Read pasted text from stdin instead of a file")
	cmd.Flags().Bool("no-wait", false, "Return immediately after the session is created")

	_ = viper.BindPFlag("import.paste", cmd.Flags().Lookup("paste"))
	_ = viper.BindPFlag("import.no_wait", cmd.Flags().Lookup("no-wait"))

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	owner, err := resolveOwner()
	if err != nil {
		return err
	}

	source := model.SourceFile
	var data []byte
	switch {
	case viper.GetBool("import.paste"):
		source = model.SourcePaste
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
	case len(args) == 1:
		data, err = os.ReadFile(args[0])
		if err != nil {
			return common.NewUserError(fmt.Sprintf("could not read %s", args[0]), err)
		}
	default:
		return fmt.Errorf("pass a file to import, or --paste to read stdin")
	}

	svc, store, err := initPipeline(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	defer svc.Close()

	sess, err := svc.Create(ctx, owner, source, data)
	if err != nil {
		return err
	}
	fmt.Println(cli.FormatTitle("Importing transactions"))
	fmt.Printf("Session: %s\n", sess.ID)

	if viper.GetBool("import.no_wait") {
		fmt.Println(cli.FormatSubtle("Pipeline running; check progress with: smartimport status " + sess.ID))
		return nil
	}

	var bar *progressbar.ProgressBar
	final, err := waitForReview(ctx, svc, sess.ID, func(s *model.ImportSession) {
		if s.Counters.TotalRows == 0 {
			return
		}
		if bar == nil {
			bar = progressbar.NewOptions(s.Counters.TotalRows,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription("Processing records..."),
			)
		}
		_ = bar.Set(s.Counters.ProcessedRows)
	})
	if err != nil {
		return err
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}

	if final.State == model.StateError {
		return fmt.Errorf("import failed: %s", final.ErrorText)
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Staged %d records (%d ok, %d failed)",
		final.Counters.TotalRows, final.Counters.SuccessfulRows, final.Counters.ErrorRows)))
	fmt.Println(cli.FormatSubtle("Review with: smartimport records " + sess.ID))
	return nil
}
