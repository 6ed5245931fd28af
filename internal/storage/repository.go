package storage

import (
	"context"
	"encoding/json"
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
	insertTradeSQL = `INSERT INTO trades (
        tx_hash,
        block_number,
        side,
        trader,
        exchange,
        notional,
        outcome_count,
        outcomes,
        detected_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    ON CONFLICT (tx_hash, trader, side) DO NOTHING;`

	tradeColumns = `tx_hash,
        block_number,
        side,
        trader,
        exchange,
        notional::text,
        outcome_count,
        outcomes,
        detected_at,
        created_at`

	listTradesBetweenSQL = `SELECT ` + tradeColumns + `
    FROM trades
    WHERE detected_at >= $1
      AND detected_at < $2
    ORDER BY detected_at;`

	listRecentTradesSQL = `SELECT ` + tradeColumns + `
    FROM trades
    ORDER BY detected_at DESC
    LIMIT $1;`

	countTradesSQL = `SELECT COUNT(*) FROM trades;`

	deleteTradesBeforeSQL = `DELETE FROM trades WHERE detected_at < $1;`

	insertAlertSQL = `INSERT INTO alerts (
        tx_hash,
        trader,
        notional,
        threshold,
        side,
        channels
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (tx_hash, trader, side) DO UPDATE
    SET channels = EXCLUDED.channels
    RETURNING id, tx_hash, trader, notional::text, threshold::text, side, channels, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        tx_hash,
        trader,
        notional::text,
        threshold::text,
        side,
        channels,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// TradeArchive defines operations for trade persistence.
type TradeArchive interface {
	InsertTrade(ctx context.Context, rec TradeRecord) (bool, error)
	ListTradesBetween(ctx context.Context, from, to time.Time) ([]TradeRecord, error)
	ListRecentTrades(ctx context.Context, limit int) ([]TradeRecord, error)
	CountTrades(ctx context.Context) (int64, error)
	DeleteTradesBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to archived trades and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
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

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort; the lock is released with the session anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertTrade archives a trade. It reports false when the same trader and side
// were already stored for the tx hash.
func (s *Store) InsertTrade(ctx context.Context, rec TradeRecord) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	outcomes := []byte(rec.Outcomes)
	if len(outcomes) == 0 {
		outcomes = []byte("[]")
	}

	tag, execErr := pool.Exec(ctx, insertTradeSQL,
		rec.TxHash,
		rec.BlockNumber,
		rec.Side,
		rec.Trader,
		rec.Exchange,
		rec.Notional.String(),
		rec.OutcomeCount,
		outcomes,
		rec.DetectedAt,
	)
	if execErr != nil {
		return false, fmt.Errorf("insert trade: %w", execErr)
	}
	return tag.RowsAffected() > 0, nil
}

// ListTradesBetween lists trades detected within a time window.
func (s *Store) ListTradesBetween(ctx context.Context, from, to time.Time) ([]TradeRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listTradesBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list trades between: %w", queryErr)
	}
	return collectTrades(rows, 0)
}

// ListRecentTrades lists the most recent trades, newest first.
func (s *Store) ListRecentTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentTradesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent trades: %w", queryErr)
	}
	return collectTrades(rows, limit)
}

// CountTrades counts archived trades.
func (s *Store) CountTrades(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countTradesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count trades: %w", scanErr)
	}
	return count, nil
}

// DeleteTradesBefore prunes trades detected before olderThan.
func (s *Store) DeleteTradesBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteTradesBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete trades before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	channels := alert.Channels
	if channels == nil {
		channels = []string{}
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.TxHash,
		alert.Trader,
		alert.Notional.String(),
		alert.Threshold.String(),
		alert.Side,
		channels,
	)

	rec, scanErr := scanAlert(row)
	if scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
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

func collectTrades(rows pgx.Rows, capacity int) ([]TradeRecord, error) {
	defer rows.Close()

	trades := make([]TradeRecord, 0, capacity)
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return trades, nil
}

func scanTrade(row pgx.Row) (TradeRecord, error) {
	var (
		rec         TradeRecord
		notionalStr string
		outcomes    []byte
	)

	if err := row.Scan(
		&rec.TxHash,
		&rec.BlockNumber,
		&rec.Side,
		&rec.Trader,
		&rec.Exchange,
		&notionalStr,
		&rec.OutcomeCount,
		&outcomes,
		&rec.DetectedAt,
		&rec.CreatedAt,
	); err != nil {
		return TradeRecord{}, err
	}

	notional, err := decimal.NewFromString(notionalStr)
	if err != nil {
		return TradeRecord{}, fmt.Errorf("parse notional: %w", err)
	}
	rec.Notional = notional
	rec.Outcomes = json.RawMessage(outcomes)
	return rec, nil
}

func scanAlert(row pgx.Row) (AlertRecord, error) {
	var (
		rec          AlertRecord
		notionalStr  string
		thresholdStr string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.TxHash,
		&rec.Trader,
		&notionalStr,
		&thresholdStr,
		&rec.Side,
		&rec.Channels,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}

	var convErr error
	rec.Notional, convErr = decimal.NewFromString(notionalStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse notional: %w", convErr)
	}
	rec.Threshold, convErr = decimal.NewFromString(thresholdStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse threshold: %w", convErr)
	}
	return rec, nil
}

var (
	_ TradeArchive   = (*Store)(nil)
	_ AlertStore     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
