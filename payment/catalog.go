package payment

import (
	"context"
	"fmt"
	"sort"

	"github.com/mstgnz/academypay/provider"
)

// PaymentMethod is a gateway a tenant can offer at checkout
type PaymentMethod struct {
	Gateway  string                   `json:"gateway"`
	Priority int                      `json:"priority"`
	Display  provider.DisplayMetadata `json:"display"`
}

// Catalog lists the payment methods a tenant has enabled
type Catalog struct {
	source   provider.ConfigSource
	registry *provider.Registry
}

// NewCatalog creates a catalog over a config source and registry
func NewCatalog(source provider.ConfigSource, registry *provider.Registry) *Catalog {
	return &Catalog{source: source, registry: registry}
}

// ListEnabled returns the tenant's enabled, registered gateways ordered by
// priority, then name
func (c *Catalog) ListEnabled(ctx context.Context, tenantID string) ([]PaymentMethod, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", ErrInvalidRequest)
	}

	configs, err := c.source.TenantGateways(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load gateways for tenant %s: %w", tenantID, err)
	}

	methods := make([]PaymentMethod, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled || cfg.TenantID != tenantID || !c.registry.Has(cfg.Gateway) {
			continue
		}
		display := cfg.Display
		if display.Label == "" {
			display.Label = cfg.Gateway
		}
		methods = append(methods, PaymentMethod{
			Gateway:  cfg.Gateway,
			Priority: cfg.Priority,
			Display:  display,
		})
	}

	sort.SliceStable(methods, func(i, j int) bool {
		if methods[i].Priority != methods[j].Priority {
			return methods[i].Priority < methods[j].Priority
		}
		return methods[i].Gateway < methods[j].Gateway
	})

	return methods, nil
}
