package provider

import (
	"context"
	"fmt"
)

// ConfiguredDriver is a driver bound to one tenant's credentials for the
// duration of a single operation.
type ConfiguredDriver struct {
	Driver
	TenantID string
	Gateway  string
}

// TenantFactory binds registered drivers to tenant configuration.
// It keeps no credentials between calls.
type TenantFactory struct {
	registry *Registry
	source   ConfigSource
}

// NewTenantFactory creates a tenant factory over a registry and config source
func NewTenantFactory(registry *Registry, source ConfigSource) *TenantFactory {
	return &TenantFactory{registry: registry, source: source}
}

// ForTenant returns a driver configured for tenantID. It fails closed with
// ErrGatewayNotConfigured when the config is missing, disabled or does not
// belong to the tenant.
func (f *TenantFactory) ForTenant(ctx context.Context, tenantID, gateway string) (*ConfiguredDriver, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", ErrGatewayNotConfigured)
	}

	factory, err := f.registry.Resolve(gateway)
	if err != nil {
		return nil, err
	}

	cfg, err := f.source.GatewayConfig(ctx, tenantID, gateway)
	if err != nil {
		return nil, fmt.Errorf("load %s config for tenant %s: %w", gateway, tenantID, err)
	}
	if cfg == nil || !cfg.Enabled {
		return nil, fmt.Errorf("%w: %s for tenant %s", ErrGatewayNotConfigured, gateway, tenantID)
	}
	if cfg.TenantID != tenantID || cfg.Gateway != gateway {
		return nil, fmt.Errorf("%w: %s config does not belong to tenant %s", ErrGatewayNotConfigured, gateway, tenantID)
	}

	if err := ValidateConfigFields(gateway, cfg.Credentials, factory.RequiredConfig()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayNotConfigured, err)
	}

	driver, err := factory.New(cfg.Clone())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayNotConfigured, err)
	}

	return &ConfiguredDriver{Driver: driver, TenantID: tenantID, Gateway: gateway}, nil
}
