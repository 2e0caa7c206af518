package main

import (
	"errors"
	"fmt"

	"github.com/mstgnz/academypay/infra/config"
	"github.com/mstgnz/academypay/provider"
	"github.com/spf13/cobra"
)

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Load tenant gateway configurations from a YAML file",
		Long: `Load tenant gateway configurations from a YAML file. Values written as
${VAR} are read from the environment so secrets stay out of the file.

Example:
  academypay seed deploy/gateways.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configs, err := config.LoadSeedFile(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, appConfig())
			if err != nil {
				return err
			}

			for _, cfg := range configs {
				factory, err := a.registry.Resolve(cfg.Gateway)
				if err != nil {
					return errors.Join(fmt.Errorf("tenant %s: %w", cfg.TenantID, err), a.close(ctx))
				}
				if err := provider.ValidateConfigFields(cfg.Gateway, cfg.Credentials, factory.RequiredConfig()); err != nil {
					return errors.Join(fmt.Errorf("tenant %s: %w", cfg.TenantID, err), a.close(ctx))
				}
			}

			if err := config.Seed(ctx, a.gateways, configs); err != nil {
				return errors.Join(err, a.close(ctx))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d gateway configurations\n", len(configs))
			return a.close(ctx)
		},
	}
}
