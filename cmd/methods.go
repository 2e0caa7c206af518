package main

import (
	"errors"

	"github.com/spf13/cobra"
)

func methodsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "methods <tenantID>",
		Short: "List the payment methods a tenant offers at checkout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, appConfig())
			if err != nil {
				return err
			}

			methods, runErr := a.service.ListPaymentMethods(ctx, args[0])
			if runErr == nil {
				runErr = printJSON(cmd.OutOrStdout(), methods)
			}
			return errors.Join(runErr, a.close(ctx))
		},
	}
}
