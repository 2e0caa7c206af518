package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/mstgnz/academypay/infra/config"
	"github.com/mstgnz/academypay/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSource struct{}

func (failingSource) GatewayConfig(context.Context, string, string) (*provider.GatewayConfig, error) {
	return nil, errors.New("database is locked")
}

func (failingSource) TenantGateways(context.Context, string) ([]provider.GatewayConfig, error) {
	return nil, errors.New("database is locked")
}

func TestCatalog_ListEnabled(t *testing.T) {
	ctx := context.Background()
	registry, err := provider.NewRegistry(&fakeGateway{name: "easykash"}, &fakeGateway{name: "paymob"}, &fakeGateway{name: "stripe"})
	require.NoError(t, err)
	registry.Freeze()

	store := config.NewMemoryGatewayStore()
	configs := []provider.GatewayConfig{
		{TenantID: "academy-a", Gateway: "paymob", Enabled: true, Priority: 2, Credentials: map[string]string{"secret": "x"}, Display: provider.DisplayMetadata{Label: "Cards & Wallets"}},
		{TenantID: "academy-a", Gateway: "easykash", Enabled: true, Priority: 1, Credentials: map[string]string{"secret": "x"}},
		{TenantID: "academy-a", Gateway: "stripe", Enabled: false, Priority: 0, Credentials: map[string]string{"secret": "x"}},
		{TenantID: "academy-a", Gateway: "iyzico", Enabled: true, Priority: 0, Credentials: map[string]string{"secret": "x"}},
		{TenantID: "academy-b", Gateway: "stripe", Enabled: true, Priority: 0, Credentials: map[string]string{"secret": "x"}},
	}
	for _, cfg := range configs {
		require.NoError(t, store.SaveGatewayConfig(ctx, cfg))
	}

	catalog := NewCatalog(store, registry)

	methods, err := catalog.ListEnabled(ctx, "academy-a")
	require.NoError(t, err)
	require.Len(t, methods, 2)
	assert.Equal(t, "easykash", methods[0].Gateway)
	assert.Equal(t, "easykash", methods[0].Display.Label)
	assert.Equal(t, "paymob", methods[1].Gateway)
	assert.Equal(t, "Cards & Wallets", methods[1].Display.Label)

	methods, err = catalog.ListEnabled(ctx, "academy-b")
	require.NoError(t, err)
	require.Len(t, methods, 1)
	assert.Equal(t, "stripe", methods[0].Gateway)

	methods, err = catalog.ListEnabled(ctx, "academy-unknown")
	require.NoError(t, err)
	assert.Empty(t, methods)
}

func TestCatalog_TiesOrderedByName(t *testing.T) {
	ctx := context.Background()
	registry, err := provider.NewRegistry(&fakeGateway{name: "stripe"}, &fakeGateway{name: "paymob"})
	require.NoError(t, err)

	store := config.NewMemoryGatewayStore()
	for _, gw := range []string{"stripe", "paymob"} {
		require.NoError(t, store.SaveGatewayConfig(ctx, provider.GatewayConfig{TenantID: "t1", Gateway: gw, Enabled: true, Priority: 5}))
	}

	methods, err := NewCatalog(store, registry).ListEnabled(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, methods, 2)
	assert.Equal(t, "paymob", methods[0].Gateway)
	assert.Equal(t, "stripe", methods[1].Gateway)
}

func TestCatalog_Errors(t *testing.T) {
	registry, err := provider.NewRegistry()
	require.NoError(t, err)

	_, err = NewCatalog(config.NewMemoryGatewayStore(), registry).ListEnabled(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = NewCatalog(failingSource{}, registry).ListEnabled(context.Background(), "t1")
	assert.ErrorContains(t, err, "database is locked")
}
