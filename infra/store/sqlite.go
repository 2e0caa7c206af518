package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mstgnz/academypay/infra/conn"
	"github.com/mstgnz/academypay/payment"
	"github.com/mstgnz/academypay/provider"
	"github.com/sirupsen/logrus"
)

// fixed width so stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore persists payments in the payments table. Updates are a
// compare-and-swap on the version column.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the schema on db if needed
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize payments schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		gateway TEXT NOT NULL,
		amount INTEGER NOT NULL,
		currency TEXT NOT NULL,
		gateway_reference TEXT,
		gateway_transaction_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		version INTEGER NOT NULL,
		idempotency_key TEXT NOT NULL,
		redirect_url TEXT NOT NULL DEFAULT '',
		client_token TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		failure_reason TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (tenant_id, idempotency_key)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_gateway_reference
		ON payments (gateway, gateway_reference) WHERE gateway_reference IS NOT NULL;

	CREATE INDEX IF NOT EXISTS idx_payments_status_updated
		ON payments (status, updated_at);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

const selectColumns = `
	SELECT id, tenant_id, gateway, amount, currency, gateway_reference, gateway_transaction_id,
		status, version, idempotency_key, redirect_url, client_token, metadata, failure_reason,
		created_at, updated_at
	FROM payments
`

func (s *SQLiteStore) Load(ctx context.Context, paymentID string) (*payment.Record, error) {
	return s.loadOne(ctx, selectColumns+` WHERE id = ?`, paymentID)
}

func (s *SQLiteStore) LoadByIdempotencyKey(ctx context.Context, tenantID, key string) (*payment.Record, error) {
	return s.loadOne(ctx, selectColumns+` WHERE tenant_id = ? AND idempotency_key = ?`, tenantID, key)
}

func (s *SQLiteStore) LoadByGatewayReference(ctx context.Context, gateway, reference string) (*payment.Record, error) {
	if reference == "" {
		return nil, payment.ErrPaymentNotFound
	}
	return s.loadOne(ctx, selectColumns+` WHERE gateway = ? AND gateway_reference = ?`, gateway, reference)
}

func (s *SQLiteStore) loadOne(ctx context.Context, query string, args ...any) (*payment.Record, error) {
	var rec *payment.Record
	err := conn.Retry(func() error {
		loaded, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
		if errors.Is(err, sql.ErrNoRows) {
			return payment.ErrPaymentNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load payment: %w", err)
		}
		rec = loaded
		return nil
	}, 3)
	return rec, err
}

// Save inserts when expectedVersion is 0, otherwise updates the row only if
// its version still equals expectedVersion
func (s *SQLiteStore) Save(ctx context.Context, rec *payment.Record, expectedVersion int64) (bool, error) {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return false, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var reference any
	if rec.GatewayReference != "" {
		reference = rec.GatewayReference
	}

	var saved bool
	err = conn.Retry(func() error {
		if expectedVersion == 0 {
			_, err := s.db.ExecContext(ctx, `
			INSERT INTO payments (id, tenant_id, gateway, amount, currency, gateway_reference, gateway_transaction_id,
				status, version, idempotency_key, redirect_url, client_token, metadata, failure_reason, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, rec.ID, rec.TenantID, rec.Gateway, rec.Amount.Amount, rec.Amount.Currency, reference, rec.GatewayTransactionID,
				string(rec.Status), rec.Version, rec.IdempotencyKey, rec.RedirectURL, rec.ClientToken, string(metadata),
				rec.FailureReason, rec.CreatedAt.UTC().Format(timeLayout), rec.UpdatedAt.UTC().Format(timeLayout))
			if conn.IsUniqueViolation(err) {
				saved = false
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to insert payment: %w", err)
			}
			saved = true
			return nil
		}

		result, err := s.db.ExecContext(ctx, `
		UPDATE payments SET
			gateway_reference = ?,
			gateway_transaction_id = ?,
			status = ?,
			version = ?,
			redirect_url = ?,
			client_token = ?,
			metadata = ?,
			failure_reason = ?,
			updated_at = ?
		WHERE id = ? AND version = ?
		`, reference, rec.GatewayTransactionID, string(rec.Status), rec.Version, rec.RedirectURL, rec.ClientToken,
			string(metadata), rec.FailureReason, rec.UpdatedAt.UTC().Format(timeLayout), rec.ID, expectedVersion)
		if conn.IsUniqueViolation(err) {
			saved = false
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to update payment: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		saved = rowsAffected == 1
		return nil
	}, 3)
	if err != nil {
		return false, err
	}

	if !saved {
		logrus.WithFields(logrus.Fields{
			"payment_id":       rec.ID,
			"tenant_id":        rec.TenantID,
			"expected_version": expectedVersion,
		}).Debug("payment save lost the race")
	}
	return saved, nil
}

// ListStale returns non-terminal payments last updated before cutoff,
// oldest first
func (s *SQLiteStore) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*payment.Record, error) {
	if limit <= 0 {
		limit = -1
	}

	var out []*payment.Record
	err := conn.Retry(func() error {
		rows, err := s.db.QueryContext(ctx, selectColumns+`
		WHERE status IN (?, ?) AND updated_at < ?
		ORDER BY updated_at, id
		LIMIT ?
		`, string(provider.StatusPending), string(provider.StatusProcessing), cutoff.UTC().Format(timeLayout), limit)
		if err != nil {
			return fmt.Errorf("failed to query stale payments: %w", err)
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				logrus.WithError(err).Warn("skipping unreadable payment row")
				continue
			}
			out = append(out, rec)
		}
		return rows.Err()
	}, 3)
	if err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*payment.Record, error) {
	var (
		rec       payment.Record
		amount    int64
		currency  string
		reference sql.NullString
		status    string
		metadata  string
		createdAt string
		updatedAt string
	)
	err := row.Scan(&rec.ID, &rec.TenantID, &rec.Gateway, &amount, &currency, &reference, &rec.GatewayTransactionID,
		&status, &rec.Version, &rec.IdempotencyKey, &rec.RedirectURL, &rec.ClientToken, &metadata, &rec.FailureReason,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	rec.Amount = provider.NewMoney(amount, currency)
	rec.GatewayReference = reference.String
	rec.Status = payment.Status(status)

	if metadata != "" && metadata != "null" {
		if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	if rec.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return &rec, nil
}
