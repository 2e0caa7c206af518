package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mstgnz/academypay/provider"
)

// GatewayStore is a provider.ConfigSource that can also be written to
type GatewayStore interface {
	provider.ConfigSource
	SaveGatewayConfig(ctx context.Context, cfg provider.GatewayConfig) error
	DeleteGatewayConfig(ctx context.Context, tenantID, gateway string) error
}

// ValidateGatewayConfig checks the struct tags of a gateway config
func ValidateGatewayConfig(cfg provider.GatewayConfig) error {
	if err := App().Validator.Struct(cfg); err != nil {
		return fmt.Errorf("invalid gateway config for tenant %s, gateway %s: %w", cfg.TenantID, cfg.Gateway, err)
	}
	return nil
}

// MemoryGatewayStore keeps tenant gateway configs in memory
type MemoryGatewayStore struct {
	mu      sync.RWMutex
	configs map[string]map[string]provider.GatewayConfig
}

// NewMemoryGatewayStore creates an empty in-memory store
func NewMemoryGatewayStore() *MemoryGatewayStore {
	return &MemoryGatewayStore{configs: make(map[string]map[string]provider.GatewayConfig)}
}

func (s *MemoryGatewayStore) SaveGatewayConfig(_ context.Context, cfg provider.GatewayConfig) error {
	if err := ValidateGatewayConfig(cfg); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.configs[cfg.TenantID] == nil {
		s.configs[cfg.TenantID] = make(map[string]provider.GatewayConfig)
	}
	s.configs[cfg.TenantID][cfg.Gateway] = cfg.Clone()
	return nil
}

func (s *MemoryGatewayStore) DeleteGatewayConfig(_ context.Context, tenantID, gateway string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.configs[tenantID][gateway]; !ok {
		return fmt.Errorf("%w: no configuration found for tenant: %s, gateway: %s", provider.ErrGatewayNotConfigured, tenantID, gateway)
	}
	delete(s.configs[tenantID], gateway)
	return nil
}

// GatewayConfig returns a copy of the tenant's config, or nil when absent
func (s *MemoryGatewayStore) GatewayConfig(_ context.Context, tenantID, gateway string) (*provider.GatewayConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[tenantID][gateway]
	if !ok {
		return nil, nil
	}
	out := cfg.Clone()
	return &out, nil
}

func (s *MemoryGatewayStore) TenantGateways(_ context.Context, tenantID string) ([]provider.GatewayConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]provider.GatewayConfig, 0, len(s.configs[tenantID]))
	for _, cfg := range s.configs[tenantID] {
		out = append(out, cfg.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Gateway < out[j].Gateway })
	return out, nil
}
