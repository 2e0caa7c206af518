package config

import (
	"context"
	"fmt"
	"os"

	"github.com/mstgnz/academypay/provider"
	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML layout used to provision tenant gateways
//
//	tenants:
//	  - id: academy-a
//	    gateways:
//	      - name: easykash
//	        enabled: true
//	        priority: 1
//	        environment: sandbox
//	        credentials:
//	          apiKey: ...
//	        display:
//	          label: Pay with card or wallet
type SeedFile struct {
	Tenants []SeedTenant `yaml:"tenants"`
}

type SeedTenant struct {
	ID       string        `yaml:"id"`
	Gateways []SeedGateway `yaml:"gateways"`
}

type SeedGateway struct {
	Name        string                   `yaml:"name"`
	Enabled     *bool                    `yaml:"enabled"`
	Priority    int                      `yaml:"priority"`
	Environment string                   `yaml:"environment"`
	Credentials map[string]string        `yaml:"credentials"`
	Display     provider.DisplayMetadata `yaml:"display"`
}

// LoadSeedFile parses a YAML seed file. Values of the form ${VAR} are
// expanded from the environment so secrets can stay out of the file.
func LoadSeedFile(path string) ([]provider.GatewayConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(raw)
}

// ParseSeed converts seed YAML into gateway configs
func ParseSeed(raw []byte) ([]provider.GatewayConfig, error) {
	var file SeedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	var configs []provider.GatewayConfig
	for _, tenant := range file.Tenants {
		if tenant.ID == "" {
			return nil, fmt.Errorf("seed file: tenant without id")
		}
		for _, gw := range tenant.Gateways {
			enabled := true
			if gw.Enabled != nil {
				enabled = *gw.Enabled
			}
			environment := gw.Environment
			if environment == "" {
				environment = "sandbox"
			}

			credentials := make(map[string]string, len(gw.Credentials))
			for k, v := range gw.Credentials {
				credentials[k] = os.ExpandEnv(v)
			}

			cfg := provider.GatewayConfig{
				TenantID:    tenant.ID,
				Gateway:     gw.Name,
				Enabled:     enabled,
				Priority:    gw.Priority,
				Environment: environment,
				Credentials: credentials,
				Display:     gw.Display,
			}
			if err := ValidateGatewayConfig(cfg); err != nil {
				return nil, err
			}
			configs = append(configs, cfg)
		}
	}
	return configs, nil
}

// Seed writes every config into store
func Seed(ctx context.Context, store GatewayStore, configs []provider.GatewayConfig) error {
	for _, cfg := range configs {
		if err := store.SaveGatewayConfig(ctx, cfg); err != nil {
			return err
		}
	}
	return nil
}
