package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mstgnz/academypay/infra/conn"
	"github.com/mstgnz/academypay/provider"
	"github.com/sirupsen/logrus"
)

// SQLiteGatewayStore persists tenant gateway configs in the tenant_gateways table
type SQLiteGatewayStore struct {
	db *sql.DB
}

// NewSQLiteGatewayStore creates the schema on db if needed
func NewSQLiteGatewayStore(ctx context.Context, db *sql.DB) (*SQLiteGatewayStore, error) {
	s := &SQLiteGatewayStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteGatewayStore) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS tenant_gateways (
		tenant_id TEXT NOT NULL,
		gateway TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		priority INTEGER NOT NULL DEFAULT 0,
		environment TEXT NOT NULL DEFAULT 'sandbox',
		credentials TEXT NOT NULL,
		display TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (tenant_id, gateway)
	);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// SaveGatewayConfig inserts or replaces a tenant's gateway config
func (s *SQLiteGatewayStore) SaveGatewayConfig(ctx context.Context, cfg provider.GatewayConfig) error {
	if err := ValidateGatewayConfig(cfg); err != nil {
		return err
	}

	credentials, err := json.Marshal(cfg.Credentials)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	display, err := json.Marshal(cfg.Display)
	if err != nil {
		return fmt.Errorf("failed to marshal display metadata: %w", err)
	}

	return conn.Retry(func() error {
		query := `
		INSERT INTO tenant_gateways (tenant_id, gateway, enabled, priority, environment, credentials, display, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(tenant_id, gateway)
		DO UPDATE SET
			enabled = excluded.enabled,
			priority = excluded.priority,
			environment = excluded.environment,
			credentials = excluded.credentials,
			display = excluded.display,
			updated_at = CURRENT_TIMESTAMP
		`
		_, err := s.db.ExecContext(ctx, query, cfg.TenantID, cfg.Gateway, cfg.Enabled, cfg.Priority, cfg.Environment, string(credentials), string(display))
		if err != nil {
			return fmt.Errorf("failed to save gateway config: %w", err)
		}

		logrus.WithFields(logrus.Fields{"tenant_id": cfg.TenantID, "gateway": cfg.Gateway}).Debug("saved gateway config")
		return nil
	}, 3)
}

// DeleteGatewayConfig removes a tenant's gateway config
func (s *SQLiteGatewayStore) DeleteGatewayConfig(ctx context.Context, tenantID, gateway string) error {
	return conn.Retry(func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM tenant_gateways WHERE tenant_id = ? AND gateway = ?`, tenantID, gateway)
		if err != nil {
			return fmt.Errorf("failed to delete gateway config: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return fmt.Errorf("%w: no configuration found for tenant: %s, gateway: %s", provider.ErrGatewayNotConfigured, tenantID, gateway)
		}
		return nil
	}, 3)
}

// GatewayConfig loads one config; a missing row yields nil, nil
func (s *SQLiteGatewayStore) GatewayConfig(ctx context.Context, tenantID, gateway string) (*provider.GatewayConfig, error) {
	var cfg *provider.GatewayConfig
	err := conn.Retry(func() error {
		row := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, gateway, enabled, priority, environment, credentials, display
		FROM tenant_gateways
		WHERE tenant_id = ? AND gateway = ?
		`, tenantID, gateway)

		loaded, err := scanGatewayConfig(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load gateway config: %w", err)
		}
		cfg = loaded
		return nil
	}, 3)
	return cfg, err
}

// TenantGateways loads every config of a tenant ordered by gateway name
func (s *SQLiteGatewayStore) TenantGateways(ctx context.Context, tenantID string) ([]provider.GatewayConfig, error) {
	var configs []provider.GatewayConfig
	err := conn.Retry(func() error {
		rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, gateway, enabled, priority, environment, credentials, display
		FROM tenant_gateways
		WHERE tenant_id = ?
		ORDER BY gateway
		`, tenantID)
		if err != nil {
			return fmt.Errorf("failed to query tenant gateways: %w", err)
		}
		defer rows.Close()

		configs = configs[:0]
		for rows.Next() {
			cfg, err := scanGatewayConfig(rows)
			if err != nil {
				logrus.WithError(err).WithField("tenant_id", tenantID).Warn("skipping unreadable gateway config")
				continue
			}
			configs = append(configs, *cfg)
		}
		return rows.Err()
	}, 3)
	if err != nil {
		return nil, err
	}
	return configs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGatewayConfig(row rowScanner) (*provider.GatewayConfig, error) {
	var (
		cfg         provider.GatewayConfig
		credentials string
		display     string
	)
	if err := row.Scan(&cfg.TenantID, &cfg.Gateway, &cfg.Enabled, &cfg.Priority, &cfg.Environment, &credentials, &display); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(credentials), &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credentials: %w", err)
	}
	if err := json.Unmarshal([]byte(display), &cfg.Display); err != nil {
		return nil, fmt.Errorf("failed to unmarshal display metadata: %w", err)
	}
	return &cfg, nil
}
