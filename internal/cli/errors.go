package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/faultline/internal/infra/postgres"
)

var errorsLimit int

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "Show the most recent audited errors",
	Run:   runErrors,
}

func init() {
	errorsCmd.Flags().IntVar(&errorsLimit, "limit", 20, "number of entries to show")
	rootCmd.AddCommand(errorsCmd)
}

func runErrors(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		slog.Error("database.url is not configured")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	entries, err := postgres.NewAuditSink(db).Recent(ctx, errorsLimit)
	if err != nil {
		slog.Error("Failed to query audit entries", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIME\tSEVERITY\tCATEGORY\tCODE\tMESSAGE")
	_, _ = fmt.Fprintln(w, "----\t--------\t--------\t----\t-------")
	for _, e := range entries {
		code := e.Code
		if code == "" {
			code = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.OccurredAt.Format(time.RFC3339), e.Severity, e.Category, code, e.Message)
	}
	_ = w.Flush()
}
