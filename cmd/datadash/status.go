package main

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/blackwhitehere/acme-data-dash/internal/storage"
)

type statusStore interface {
	LatestStatuses(ctx context.Context) (map[string]storage.LatestStatus, error)
}

func executeStatus(cmd *cobra.Command, db statusStore) error {
	out := cmd.OutOrStdout()
	latest, err := db.LatestStatuses(context.Background())
	if err != nil {
		return fmt.Errorf("querying status: %w", err)
	}

	if len(latest) == 0 {
		fmt.Fprintln(out, "No check history. Run 'datadash run' or execute a check through the API first.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tSTATUS\tLAST RUN")
	for _, id := range slices.Sorted(maps.Keys(latest)) {
		st := latest[id]
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			st.CheckID,
			st.Status,
			st.ExecutedAt.Local().Format("2006-01-02 15:04:05"),
		)
	}
	w.Flush()
	return nil
}

type historyStore interface {
	Recent(ctx context.Context, limit int) ([]storage.Record, error)
}

func executeHistory(cmd *cobra.Command, db historyStore, limit int) error {
	out := cmd.OutOrStdout()
	if limit <= 0 {
		return fmt.Errorf("--limit must be positive")
	}
	records, err := db.Recent(context.Background(), limit)
	if err != nil {
		return fmt.Errorf("querying history: %w", err)
	}

	if len(records) == 0 {
		fmt.Fprintln(out, "No check history.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EXECUTED\tCHECK\tSTATUS\tMESSAGE")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			r.ExecutedAt.Local().Format("2006-01-02 15:04:05"),
			r.CheckID,
			r.Status,
			r.Message,
		)
	}
	w.Flush()
	return nil
}
