package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createAlertsSQL = `CREATE TABLE IF NOT EXISTS trade_alerts (
        id           UUID PRIMARY KEY,
        chat_id      BIGINT NOT NULL,
        pair         TEXT NOT NULL,
        trade_id     TEXT NOT NULL,
        side         TEXT NOT NULL,
        amount_usd   NUMERIC,
        amount_base  NUMERIC,
        price_usd    NUMERIC,
        trade_ts     TIMESTAMPTZ,
        delivered    BOOLEAN NOT NULL,
        error        TEXT,
        created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE INDEX IF NOT EXISTS trade_alerts_created_at_idx ON trade_alerts (created_at);`

	insertAlertSQL = `INSERT INTO trade_alerts (
        id,
        chat_id,
        pair,
        trade_id,
        side,
        amount_usd,
        amount_base,
        price_usd,
        trade_ts,
        delivered,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    )
    RETURNING created_at;`

	alertColumns = `id,
        chat_id,
        pair,
        trade_id,
        side,
        amount_usd::TEXT,
        amount_base::TEXT,
        price_usd::TEXT,
        trade_ts,
        delivered,
        error,
        created_at`

	listRecentAlertsSQL = `SELECT ` + alertColumns + `
    FROM trade_alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	listAlertsBetweenSQL = `SELECT ` + alertColumns + `
    FROM trade_alerts
    WHERE created_at >= $1
      AND created_at < $2
    ORDER BY created_at;`

	countAlertsSQL = `SELECT COUNT(*) FROM trade_alerts;`

	deleteAlertsBeforeSQL = `DELETE FROM trade_alerts WHERE created_at < $1;`
)

// AlertStore defines operations for the alert journal.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	ListAlertsBetween(ctx context.Context, from, to time.Time) ([]AlertRecord, error)
	CountAlerts(ctx context.Context) (int64, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// Store is the pgx-backed alert journal.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store. A nil pool yields a Store whose
// methods return ErrNotConfigured.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Configured reports whether a pool is attached.
func (s *Store) Configured() bool {
	return s != nil && s.pool != nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// Migrate creates the journal table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, createAlertsSQL); execErr != nil {
		return fmt.Errorf("migrate trade_alerts: %w", execErr)
	}
	return nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	var tradeTS any
	if alert.TradeTime != nil {
		tradeTS = alert.TradeTime.UTC()
	}
	var errMsg any
	if alert.Error != nil {
		errMsg = *alert.Error
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.ID,
		alert.ChatID,
		alert.Pair,
		alert.TradeID,
		alert.Side,
		numericArg(alert.AmountUSD),
		numericArg(alert.AmountBase),
		numericArg(alert.PriceUSD),
		tradeTS,
		alert.Delivered,
		errMsg,
	)
	if scanErr := row.Scan(&alert.CreatedAt); scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return alert, nil
}

// ListRecentAlerts lists the most recent alerts, newest first.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	return collectAlerts(rows, limit)
}

// ListAlertsBetween lists alerts created within [from, to).
func (s *Store) ListAlertsBetween(ctx context.Context, from, to time.Time) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAlertsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts between: %w", queryErr)
	}
	return collectAlerts(rows, 0)
}

// CountAlerts counts stored alerts.
func (s *Store) CountAlerts(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countAlertsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count alerts: %w", scanErr)
	}
	return count, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

func collectAlerts(rows pgx.Rows, capacity int) ([]AlertRecord, error) {
	defer rows.Close()

	alerts := make([]AlertRecord, 0, capacity)
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func scanAlert(rows pgx.Rows) (AlertRecord, error) {
	var (
		rec                    AlertRecord
		usdStr, baseStr, pxStr sql.NullString
		tradeTS                sql.NullTime
		errMsg                 sql.NullString
	)

	if err := rows.Scan(
		&rec.ID,
		&rec.ChatID,
		&rec.Pair,
		&rec.TradeID,
		&rec.Side,
		&usdStr,
		&baseStr,
		&pxStr,
		&tradeTS,
		&rec.Delivered,
		&errMsg,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}

	var err error
	if rec.AmountUSD, err = parseNumeric(usdStr); err != nil {
		return AlertRecord{}, fmt.Errorf("parse amount usd: %w", err)
	}
	if rec.AmountBase, err = parseNumeric(baseStr); err != nil {
		return AlertRecord{}, fmt.Errorf("parse amount base: %w", err)
	}
	if rec.PriceUSD, err = parseNumeric(pxStr); err != nil {
		return AlertRecord{}, fmt.Errorf("parse price usd: %w", err)
	}
	if tradeTS.Valid {
		ts := tradeTS.Time.UTC()
		rec.TradeTime = &ts
	}
	if errMsg.Valid {
		msg := errMsg.String
		rec.Error = &msg
	}
	return rec, nil
}

func numericArg(value decimal.NullDecimal) any {
	if !value.Valid {
		return nil
	}
	return value.Decimal.String()
}

func parseNumeric(value sql.NullString) (decimal.NullDecimal, error) {
	if !value.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(value.String)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

var _ AlertStore = (*Store)(nil)
