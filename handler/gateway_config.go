package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/academypay/infra/config"
	"github.com/mstgnz/academypay/infra/logger"
	"github.com/mstgnz/academypay/infra/middle"
	"github.com/mstgnz/academypay/infra/response"
	"github.com/mstgnz/academypay/provider"
)

// GatewayRegistryInterface resolves registered gateway drivers
type GatewayRegistryInterface interface {
	Resolve(name string) (provider.DriverFactory, error)
	Names() []string
}

// ConfigHandler manages the calling tenant's gateway configurations
type ConfigHandler struct {
	store    config.GatewayStore
	registry GatewayRegistryInterface
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(store config.GatewayStore, registry GatewayRegistryInterface) *ConfigHandler {
	return &ConfigHandler{
		store:    store,
		registry: registry,
	}
}

// SetGatewayRequest is the body of PUT /v1/gateways/{gateway}
type SetGatewayRequest struct {
	Enabled     bool                     `json:"enabled"`
	Priority    int                      `json:"priority"`
	Environment string                   `json:"environment"`
	Credentials map[string]string        `json:"credentials"`
	Display     provider.DisplayMetadata `json:"display"`
}

// GatewayView is a stored gateway config with masked credentials
type GatewayView struct {
	provider.GatewayConfig
	Credentials map[string]string `json:"credentials"`
}

// AvailableGateway describes a registered driver and what it needs
type AvailableGateway struct {
	Gateway        string                 `json:"gateway"`
	RequiredConfig []provider.ConfigField `json:"requiredConfig"`
}

// ListAvailable handles GET /v1/gateways/available
func (h *ConfigHandler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	names := h.registry.Names()
	available := make([]AvailableGateway, 0, len(names))
	for _, name := range names {
		factory, err := h.registry.Resolve(name)
		if err != nil {
			continue
		}
		available = append(available, AvailableGateway{Gateway: name, RequiredConfig: factory.RequiredConfig()})
	}

	response.Success(w, http.StatusOK, "Available gateways retrieved", available)
}

// ListGateways handles GET /v1/gateways
func (h *ConfigHandler) ListGateways(w http.ResponseWriter, r *http.Request) {
	tenantID := middle.GetTenantIDFromContext(r.Context())

	configs, err := h.store.TenantGateways(r.Context(), tenantID)
	if err != nil {
		writeError(w, r, "Failed to load gateway configurations", err)
		return
	}

	views := make([]GatewayView, 0, len(configs))
	for _, cfg := range configs {
		views = append(views, newGatewayView(cfg))
	}

	response.Success(w, http.StatusOK, "Gateway configurations retrieved", views)
}

// SetGateway handles PUT /v1/gateways/{gateway}. The credentials are checked
// by building a driver from them before anything is stored.
func (h *ConfigHandler) SetGateway(w http.ResponseWriter, r *http.Request) {
	tenantID := middle.GetTenantIDFromContext(r.Context())
	gateway := strings.ToLower(chi.URLParam(r, "gateway"))

	factory, err := h.registry.Resolve(gateway)
	if err != nil {
		response.Error(w, http.StatusNotFound, "Unknown gateway", err)
		return
	}

	var req SetGatewayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if req.Environment == "" {
		req.Environment = "sandbox"
	}

	cfg := provider.GatewayConfig{
		TenantID:    tenantID,
		Gateway:     gateway,
		Enabled:     req.Enabled,
		Priority:    req.Priority,
		Environment: req.Environment,
		Credentials: req.Credentials,
		Display:     req.Display,
	}
	if err := config.ValidateGatewayConfig(cfg); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}
	if err := provider.ValidateConfigFields(gateway, cfg.Credentials, factory.RequiredConfig()); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid credentials", err)
		return
	}
	if _, err := factory.New(cfg.Clone()); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid credentials", err)
		return
	}

	if err := h.store.SaveGatewayConfig(r.Context(), cfg); err != nil {
		writeError(w, r, "Failed to save gateway configuration", err)
		return
	}

	logger.Info("gateway configuration saved", logger.LogContext{
		TenantID:  tenantID,
		Gateway:   gateway,
		RequestID: middle.GetRequestIDFromContext(r.Context()),
		Fields:    map[string]any{"enabled": cfg.Enabled, "environment": cfg.Environment},
	})

	response.Success(w, http.StatusOK, "Gateway configuration saved", newGatewayView(cfg))
}

// DeleteGateway handles DELETE /v1/gateways/{gateway}
func (h *ConfigHandler) DeleteGateway(w http.ResponseWriter, r *http.Request) {
	tenantID := middle.GetTenantIDFromContext(r.Context())
	gateway := strings.ToLower(chi.URLParam(r, "gateway"))

	if err := h.store.DeleteGatewayConfig(r.Context(), tenantID, gateway); err != nil {
		if errors.Is(err, provider.ErrGatewayNotConfigured) {
			response.Error(w, http.StatusNotFound, "Configuration not found", nil)
			return
		}
		writeError(w, r, "Failed to delete gateway configuration", err)
		return
	}

	logger.Info("gateway configuration deleted", logger.LogContext{
		TenantID:  tenantID,
		Gateway:   gateway,
		RequestID: middle.GetRequestIDFromContext(r.Context()),
	})

	response.Success(w, http.StatusOK, "Gateway configuration deleted", map[string]string{
		"tenantId": tenantID,
		"gateway":  gateway,
	})
}

func newGatewayView(cfg provider.GatewayConfig) GatewayView {
	masked := make(map[string]string, len(cfg.Credentials))
	for key, value := range cfg.Credentials {
		masked[key] = maskValue(value)
	}
	return GatewayView{GatewayConfig: cfg, Credentials: masked}
}

// maskValue keeps the last four characters of long values
func maskValue(value string) string {
	if len(value) > 12 {
		return "****" + value[len(value)-4:]
	}
	return "****"
}

var _ GatewayRegistryInterface = (*provider.Registry)(nil)
