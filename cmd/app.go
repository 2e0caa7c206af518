package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mstgnz/academypay/infra/audit"
	"github.com/mstgnz/academypay/infra/config"
	"github.com/mstgnz/academypay/infra/conn"
	"github.com/mstgnz/academypay/infra/logger"
	"github.com/mstgnz/academypay/infra/opensearch"
	"github.com/mstgnz/academypay/infra/store"
	"github.com/mstgnz/academypay/notify"
	"github.com/mstgnz/academypay/payment"
	"github.com/mstgnz/academypay/provider"
	"github.com/mstgnz/academypay/provider/easykash"
	"github.com/mstgnz/academypay/provider/paymob"
	"github.com/mstgnz/academypay/provider/stripe"
)

// appConfig is swapped in tests
var appConfig = config.GetAppConfig

// app holds the wired components shared by every command
type app struct {
	cfg        *config.AppConfig
	db         *sql.DB
	search     *opensearch.Client
	gateways   *config.SQLiteGatewayStore
	payments   *store.SQLiteStore
	registry   *provider.Registry
	recorder   *audit.Recorder
	dispatcher *notify.Dispatcher
	service    *payment.Service
}

// newApp opens storage, builds the gateway registry and wires the payment
// service. OpenSearch is optional; without it audit entries only reach the
// system log.
func newApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	a := &app{cfg: cfg}

	if dir := filepath.Dir(cfg.DatabasePath); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := conn.OpenSQLite(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.db = db

	var shipper logger.Shipper
	var auditIndex audit.Index
	if cfg.EnableLogging {
		client, err := opensearch.NewClient(cfg)
		if err != nil {
			logger.Warn("OpenSearch unavailable, continuing without audit index: " + err.Error())
		} else {
			a.search = client
			osLogger := opensearch.NewLogger(client)
			shipper = osLogger
			auditIndex = osLogger
		}
	}
	logger.InitGlobalLogger(cfg, shipper)

	if a.gateways, err = config.NewSQLiteGatewayStore(ctx, db); err != nil {
		a.close(ctx)
		return nil, err
	}
	if a.payments, err = store.NewSQLiteStore(ctx, db); err != nil {
		a.close(ctx)
		return nil, err
	}

	if a.registry, err = buildRegistry(cfg); err != nil {
		a.close(ctx)
		return nil, err
	}

	a.recorder = audit.NewRecorder(auditIndex)
	a.dispatcher = notify.NewDispatcher(notify.LogSink{}, notify.Options{
		Workers:   cfg.NotifyWorkers,
		QueueSize: cfg.NotifyQueueSize,
	})

	a.service, err = payment.NewService(payment.Deps{
		Store:          a.payments,
		Factory:        provider.NewTenantFactory(a.registry, a.gateways),
		Registry:       a.registry,
		Catalog:        payment.NewCatalog(a.gateways, a.registry),
		Notifier:       a.dispatcher,
		Auditor:        a.recorder,
		GatewayTimeout: cfg.GatewayTimeout,
		CallbackURL:    cfg.CallbackURL,
	})
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	return a, nil
}

// buildRegistry registers every supported gateway and freezes the registry
func buildRegistry(cfg *config.AppConfig) (*provider.Registry, error) {
	ek, err := easykash.NewFactory(easykash.Options{Timeout: cfg.GatewayTimeout, NodeID: cfg.NodeID})
	if err != nil {
		return nil, err
	}

	registry, err := provider.NewRegistry(
		ek,
		paymob.NewFactory(paymob.Options{Timeout: cfg.GatewayTimeout}),
		stripe.NewFactory(stripe.Options{Timeout: cfg.GatewayTimeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("register gateways: %w", err)
	}
	registry.Freeze()
	return registry, nil
}

// close drains pending notifications and releases the database
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.dispatcher != nil {
		errs = append(errs, a.dispatcher.Close(ctx))
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
