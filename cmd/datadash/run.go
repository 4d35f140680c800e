package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwhitehere/acme-data-dash/internal/check"
	"github.com/blackwhitehere/acme-data-dash/internal/checks"
	"github.com/blackwhitehere/acme-data-dash/internal/config"
	"github.com/blackwhitehere/acme-data-dash/internal/runner"
	"github.com/blackwhitehere/acme-data-dash/internal/storage"
)

func runCmd() *cobra.Command {
	var (
		params      []string
		concurrency int
	)
	c := &cobra.Command{
		Use:   "run [check-id...]",
		Short: "Execute checks once, store the results and print them",
		Long:  "Execute the named checks (all registered checks when none are named). Exits non-zero if any check fails or errors.",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseParams(params)
			if err != nil {
				return err
			}

			cfg, logger, closer, err := setup()
			if err != nil {
				return err
			}
			defer closer.Close()

			db, err := storage.Open(cfg.Storage.Path)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := buildApp(ctx, cfg, db, logger)
			if err != nil {
				return err
			}
			defer a.close()

			return runChecks(ctx, cmd.OutOrStdout(), a.runner, args, p, concurrency)
		},
	}
	c.Flags().StringArrayVarP(&params, "param", "p", nil, "check parameter as key=value (repeatable)")
	c.Flags().IntVar(&concurrency, "concurrency", 4, "maximum checks run at once (0 = unlimited)")
	return c
}

// parseParams turns key=value pairs into check params. Values stay strings;
// checks convert them as needed.
func parseParams(pairs []string) (check.Params, error) {
	p := make(check.Params, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --param %q (want key=value)", kv)
		}
		p[k] = v
	}
	return p, nil
}

var errChecksFailed = errors.New("one or more checks failed")

func runChecks(ctx context.Context, out io.Writer, r *runner.Runner, ids []string, params check.Params, concurrency int) error {
	if len(ids) == 0 {
		for _, c := range r.Registry().All() {
			ids = append(ids, c.ID())
		}
	}

	attempts := r.RunMany(ctx, ids, params, concurrency)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tSTATUS\tDURATION\tMESSAGE")
	ok := true
	for _, at := range attempts {
		if at.Err != nil {
			ok = false
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", at.CheckID, "error", "-", at.Err)
			continue
		}
		res := at.Outcome.Result
		if res.Status == check.StatusFailure {
			ok = false
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			at.CheckID,
			res.Status,
			at.Outcome.Duration.Round(time.Millisecond),
			res.Message,
		)
	}
	w.Flush()

	if !ok {
		return errChecksFailed
	}
	return nil
}

func checksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checks",
		Short: "List configured checks and their parameters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			built, err := checks.Build(cfg.Checks)
			if err != nil {
				return err
			}
			reg, err := check.NewRegistry(built...)
			if err != nil {
				return err
			}
			return listChecks(cmd.OutOrStdout(), reg)
		},
	}
}

func listChecks(out io.Writer, reg *check.Registry) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tPARAMETERS\tDESCRIPTION")
	for _, c := range reg.All() {
		var params []string
		for _, p := range c.Parameters() {
			if p.Default != nil {
				params = append(params, fmt.Sprintf("%s=%s", p.Name, *p.Default))
			} else {
				params = append(params, p.Name+"*")
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID(), strings.Join(params, ", "), c.Description())
	}
	return w.Flush()
}
