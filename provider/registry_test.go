package provider

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFactory struct {
	name   string
	fields []ConfigField
	newErr error
	built  []GatewayConfig
	mu     sync.Mutex
}

func (f *stubFactory) Name() string                  { return f.name }
func (f *stubFactory) RequiredConfig() []ConfigField { return f.fields }

func (f *stubFactory) New(cfg GatewayConfig) (Driver, error) {
	if f.newErr != nil {
		return nil, f.newErr
	}
	f.mu.Lock()
	f.built = append(f.built, cfg)
	f.mu.Unlock()
	return &stubDriver{cfg: cfg}, nil
}

func (f *stubFactory) CallbackReference(event CallbackEvent) (string, error) {
	return event.Query["ref"], nil
}

type stubDriver struct {
	cfg GatewayConfig
}

func (d *stubDriver) Initiate(context.Context, InitiateRequest) (*InitiateResult, error) {
	return &InitiateResult{GatewayReference: "ref-" + d.cfg.TenantID}, nil
}

func (d *stubDriver) VerifyCallback(context.Context, CallbackEvent) (*CallbackVerdict, error) {
	return &CallbackVerdict{Authentic: true}, nil
}

func (d *stubDriver) QueryStatus(context.Context, string) (*StatusReport, error) {
	return &StatusReport{Status: StatusPending}, nil
}

func TestRegistry_Register(t *testing.T) {
	registry, err := NewRegistry()
	require.NoError(t, err)

	require.NoError(t, registry.Register("test-gateway", &stubFactory{name: "test-gateway"}))

	factory, err := registry.Resolve("test-gateway")
	assert.NoError(t, err)
	assert.NotNil(t, factory)

	err = registry.Register("test-gateway", &stubFactory{name: "test-gateway"})
	assert.ErrorContains(t, err, "already registered")

	assert.Error(t, registry.Register("", &stubFactory{}))
	assert.Error(t, registry.Register("nil-factory", nil))
}

func TestRegistry_Names(t *testing.T) {
	registry, err := NewRegistry(&stubFactory{name: "paymob"}, &stubFactory{name: "easykash"})
	require.NoError(t, err)

	assert.Equal(t, []string{"easykash", "paymob"}, registry.Names())
	assert.True(t, registry.Has("paymob"))
	assert.False(t, registry.Has("stripe"))
}

func TestNewRegistry_Duplicate(t *testing.T) {
	_, err := NewRegistry(&stubFactory{name: "easykash"}, &stubFactory{name: "easykash"})
	assert.Error(t, err)
}

func TestRegistry_Resolve_NotFound(t *testing.T) {
	registry, _ := NewRegistry()

	factory, err := registry.Resolve("non-existent")
	assert.Nil(t, factory)
	assert.ErrorIs(t, err, ErrUnknownGateway)
	assert.Contains(t, err.Error(), "is not registered")
}

func TestRegistry_Freeze(t *testing.T) {
	registry, err := NewRegistry(&stubFactory{name: "easykash"})
	require.NoError(t, err)
	registry.Freeze()

	assert.ErrorContains(t, registry.Register("paymob", &stubFactory{name: "paymob"}), "after freeze")
	assert.False(t, registry.Has("paymob"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := registry.Resolve("easykash")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestRegistry_ErrorsAreComparable(t *testing.T) {
	registry, _ := NewRegistry()
	_, err := registry.Resolve("x")
	assert.True(t, errors.Is(err, ErrUnknownGateway))
	assert.False(t, errors.Is(err, ErrGatewayNotConfigured))
}
