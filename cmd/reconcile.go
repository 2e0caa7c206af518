package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

func reconcileCmd() *cobra.Command {
	var (
		stale      bool
		staleAfter time.Duration
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "reconcile [paymentID]",
		Short: "Pull payment status from the gateway and apply it",
		Long: `Pull payment status from the gateway and apply it through the same
checks as a callback, amount verification included.

Examples:
  academypay reconcile 3f6c9a8e-0d3b-4a5e-9c1f-2b7d4e8a1c90
  academypay reconcile --stale --older-than 1h --limit 50`,
		Args: func(cmd *cobra.Command, args []string) error {
			if stale {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, appConfig())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if stale {
				outcomes, runErr := a.service.ReconcileStale(ctx, staleAfter, limit)
				if err := printJSON(out, outcomes); err != nil {
					runErr = errors.Join(runErr, err)
				}
				return errors.Join(runErr, a.close(ctx))
			}

			outcome, runErr := a.service.Reconcile(ctx, args[0])
			if runErr == nil {
				runErr = printJSON(out, outcome)
			}
			return errors.Join(runErr, a.close(ctx))
		},
	}

	cmd.Flags().BoolVar(&stale, "stale", false, "reconcile every unfinished payment older than --older-than")
	cmd.Flags().DurationVar(&staleAfter, "older-than", 30*time.Minute, "minimum age of a stale payment")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum payments reconciled with --stale")

	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
