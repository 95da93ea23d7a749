package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"caucion-rate-alerts/internal/alerting"
	"caucion-rate-alerts/internal/rates"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	selectSnapshotForUpdateSQL = `SELECT captured_at, tenor_rates
    FROM rate_snapshots
    WHERE id = 1
    FOR UPDATE;`

	selectLatestSnapshotSQL = `SELECT captured_at, tenor_rates
    FROM rate_snapshots
    WHERE id = 1;`

	upsertSnapshotSQL = `INSERT INTO rate_snapshots (id, captured_at, tenor_rates)
    VALUES (1, $1, $2)
    ON CONFLICT (id) DO UPDATE
    SET captured_at = EXCLUDED.captured_at,
        tenor_rates = EXCLUDED.tenor_rates;`

	insertObservationSQL = `INSERT INTO rate_history (captured_at, tenor, rate)
    VALUES ($1, $2, $3)
    ON CONFLICT (captured_at, tenor) DO NOTHING;`

	listRecentObservationsSQL = `SELECT captured_at, tenor, rate
    FROM rate_history
    ORDER BY captured_at DESC, tenor
    LIMIT $1;`

	listObservationsBetweenSQL = `SELECT captured_at, tenor, rate
    FROM rate_history
    WHERE captured_at >= $1
      AND captured_at < $2
    ORDER BY captured_at, tenor;`

	upsertDefaultSubscriptionSQL = `INSERT INTO subscriptions (chat_id, preference)
    VALUES ($1, 'paused')
    ON CONFLICT (chat_id) DO UPDATE
    SET chat_id = EXCLUDED.chat_id
    RETURNING chat_id, preference, threshold, last_notified_at, created_at, updated_at;`

	setPreferenceSQL = `INSERT INTO subscriptions (chat_id, preference, threshold)
    VALUES ($1, $2, $3)
    ON CONFLICT (chat_id) DO UPDATE
    SET preference = EXCLUDED.preference,
        threshold  = EXCLUDED.threshold,
        updated_at = now();`

	listActiveSubscriptionsSQL = `SELECT chat_id, preference, threshold, last_notified_at, created_at, updated_at
    FROM subscriptions
    WHERE preference <> 'paused'
    ORDER BY chat_id;`

	listAllSubscriptionsSQL = `SELECT chat_id, preference, threshold, last_notified_at, created_at, updated_at
    FROM subscriptions
    ORDER BY chat_id;`

	markNotifiedSQL = `UPDATE subscriptions
    SET last_notified_at = $2
    WHERE chat_id = $1;`

	insertSuggestionSQL = `INSERT INTO suggestions (chat_id, suggestion)
    VALUES ($1, $2)
    RETURNING id, chat_id, suggestion, created_at;`

	countByPreferenceSQL = `SELECT preference, COUNT(*)
    FROM subscriptions
    GROUP BY preference;`

	countObservationsSQL = `SELECT COUNT(*) FROM rate_history;`
	countSuggestionsSQL  = `SELECT COUNT(*) FROM suggestions;`

	listTablesSQL = `SELECT table_name
    FROM information_schema.tables
    WHERE table_schema = 'public';`
)

// SnapshotStore persists the latest observed snapshot. Commit is atomic:
// the previous value is read and the new one installed inside a single
// transaction, so no observer ever sees a half-applied transition.
type SnapshotStore interface {
	Latest(ctx context.Context) (*rates.Snapshot, error)
	Commit(ctx context.Context, snap rates.Snapshot) (*rates.Snapshot, error)
}

// SubscriptionRegistry owns subscriber records and their preferences.
type SubscriptionRegistry interface {
	Get(ctx context.Context, chatID int64) (Subscription, error)
	SetPreference(ctx context.Context, chatID int64, pref alerting.Preference) error
	ListActive(ctx context.Context) ([]Subscription, error)
	MarkNotified(ctx context.Context, chatID int64, ts time.Time) error
}

// SuggestionStore records subscriber feedback.
type SuggestionStore interface {
	InsertSuggestion(ctx context.Context, chatID int64, text string) (Suggestion, error)
}

// HistoryStore reads back persisted per-tenor observations.
type HistoryStore interface {
	ListRecentObservations(ctx context.Context, limit int) ([]Observation, error)
	ListObservationsBetween(ctx context.Context, from, to time.Time) ([]Observation, error)
}

// Store aggregates access to snapshots, subscriptions, and suggestions.
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

// Pool exposes the raw pool for metrics collectors.
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// Latest returns the last committed snapshot, or nil when none exists.
func (s *Store) Latest(ctx context.Context) (*rates.Snapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var capturedAt time.Time
	var raw []byte
	if scanErr := pool.QueryRow(ctx, selectLatestSnapshotSQL).Scan(&capturedAt, &raw); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select latest snapshot: %w", scanErr)
	}

	return decodeSnapshot(capturedAt, raw)
}

// Commit installs snap as the latest snapshot and returns the previous one
// (nil on the first-ever commit). It also appends the per-tenor readings to
// rate_history inside the same transaction.
func (s *Store) Commit(ctx context.Context, snap rates.Snapshot) (*rates.Snapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin snapshot commit: %w", err)
	}
	defer tx.Rollback(ctx)

	var previous *rates.Snapshot
	var prevCapturedAt time.Time
	var prevRaw []byte
	scanErr := tx.QueryRow(ctx, selectSnapshotForUpdateSQL).Scan(&prevCapturedAt, &prevRaw)
	switch {
	case scanErr == nil:
		previous, err = decodeSnapshot(prevCapturedAt, prevRaw)
		if err != nil {
			return nil, err
		}
	case errors.Is(scanErr, pgx.ErrNoRows):
		// first-ever commit
	default:
		return nil, fmt.Errorf("select previous snapshot: %w", scanErr)
	}

	encoded, err := encodeSnapshot(snap)
	if err != nil {
		return nil, err
	}

	if _, execErr := tx.Exec(ctx, upsertSnapshotSQL, snap.CapturedAt(), encoded); execErr != nil {
		return nil, fmt.Errorf("upsert snapshot: %w", execErr)
	}

	for tenor, rate := range snap.Export() {
		if _, execErr := tx.Exec(ctx, insertObservationSQL, snap.CapturedAt(), string(tenor), rate.String()); execErr != nil {
			return nil, fmt.Errorf("insert observation: %w", execErr)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit snapshot: %w", err)
	}

	return previous, nil
}

// Get returns the subscription for chatID, creating a default-paused row on
// first contact. It never reports not-found.
func (s *Store) Get(ctx context.Context, chatID int64) (Subscription, error) {
	pool, err := s.getPool()
	if err != nil {
		return Subscription{}, err
	}

	row := pool.QueryRow(ctx, upsertDefaultSubscriptionSQL, chatID)
	sub, err := scanSubscription(row)
	if err != nil {
		return Subscription{}, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// SetPreference durably replaces the subscriber's notification rule. The
// write is synchronous: when this returns nil the change is on disk.
func (s *Store) SetPreference(ctx context.Context, chatID int64, pref alerting.Preference) error {
	if err := pref.Validate(); err != nil {
		return err
	}

	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var threshold interface{}
	if pref.Kind == alerting.PrefThreshold {
		threshold = pref.Threshold.String()
	}

	if _, execErr := pool.Exec(ctx, setPreferenceSQL, chatID, string(pref.Kind), threshold); execErr != nil {
		return fmt.Errorf("set preference: %w", execErr)
	}
	return nil
}

// ListActive returns all subscriptions that are not paused.
func (s *Store) ListActive(ctx context.Context) ([]Subscription, error) {
	return s.listSubscriptions(ctx, listActiveSubscriptionsSQL)
}

// ListAll returns every subscription, paused included. Used by the export
// dump.
func (s *Store) ListAll(ctx context.Context) ([]Subscription, error) {
	return s.listSubscriptions(ctx, listAllSubscriptionsSQL)
}

func (s *Store) listSubscriptions(ctx context.Context, query string) ([]Subscription, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, query)
	if queryErr != nil {
		return nil, fmt.Errorf("list subscriptions: %w", queryErr)
	}
	defer rows.Close()

	subs := make([]Subscription, 0)
	for rows.Next() {
		sub, scanErr := scanSubscription(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		subs = append(subs, sub)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return subs, nil
}

// MarkNotified records the snapshot timestamp of the last successful
// delivery to this subscriber.
func (s *Store) MarkNotified(ctx context.Context, chatID int64, ts time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, markNotifiedSQL, chatID, ts)
	if execErr != nil {
		return fmt.Errorf("mark notified: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// InsertSuggestion stores one feedback message.
func (s *Store) InsertSuggestion(ctx context.Context, chatID int64, text string) (Suggestion, error) {
	pool, err := s.getPool()
	if err != nil {
		return Suggestion{}, err
	}

	var sug Suggestion
	row := pool.QueryRow(ctx, insertSuggestionSQL, chatID, text)
	if scanErr := row.Scan(&sug.ID, &sug.ChatID, &sug.Text, &sug.CreatedAt); scanErr != nil {
		return Suggestion{}, fmt.Errorf("insert suggestion: %w", scanErr)
	}
	return sug, nil
}

// ListRecentObservations lists the newest per-tenor readings.
func (s *Store) ListRecentObservations(ctx context.Context, limit int) ([]Observation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentObservationsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent observations: %w", queryErr)
	}
	defer rows.Close()

	return collectObservations(rows, limit)
}

// ListObservationsBetween lists readings within a time window.
func (s *Store) ListObservationsBetween(ctx context.Context, from, to time.Time) ([]Observation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listObservationsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list observations between: %w", queryErr)
	}
	defer rows.Close()

	return collectObservations(rows, 0)
}

// CollectStats gathers the counters behind /stats and dbcheck.
func (s *Store) CollectStats(ctx context.Context) (Stats, error) {
	pool, err := s.getPool()
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{SubscribersByKind: make(map[alerting.PreferenceKind]int64)}

	rows, queryErr := pool.Query(ctx, countByPreferenceSQL)
	if queryErr != nil {
		return Stats{}, fmt.Errorf("count subscribers: %w", queryErr)
	}
	for rows.Next() {
		var kind string
		var count int64
		if scanErr := rows.Scan(&kind, &count); scanErr != nil {
			rows.Close()
			return Stats{}, scanErr
		}
		stats.SubscribersByKind[alerting.PreferenceKind(kind)] = count
	}
	rows.Close()
	if rows.Err() != nil {
		return Stats{}, rows.Err()
	}

	if scanErr := pool.QueryRow(ctx, countObservationsSQL).Scan(&stats.ObservationCount); scanErr != nil {
		return Stats{}, fmt.Errorf("count observations: %w", scanErr)
	}
	if scanErr := pool.QueryRow(ctx, countSuggestionsSQL).Scan(&stats.SuggestionCount); scanErr != nil {
		return Stats{}, fmt.Errorf("count suggestions: %w", scanErr)
	}

	return stats, nil
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// RequiredTables lists the tables this service expects to exist.
var RequiredTables = []string{"rate_snapshots", "rate_history", "subscriptions", "suggestions"}

// MissingTables returns the required tables absent from the public schema.
func (s *Store) MissingTables(ctx context.Context) ([]string, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listTablesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list tables: %w", queryErr)
	}
	defer rows.Close()

	present := make(map[string]struct{})
	for rows.Next() {
		var name string
		if scanErr := rows.Scan(&name); scanErr != nil {
			return nil, scanErr
		}
		present[name] = struct{}{}
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	missing := make([]string, 0)
	for _, table := range RequiredTables {
		if _, ok := present[table]; !ok {
			missing = append(missing, table)
		}
	}
	return missing, nil
}

func collectObservations(rows pgx.Rows, sizeHint int) ([]Observation, error) {
	observations := make([]Observation, 0, sizeHint)
	for rows.Next() {
		var obs Observation
		var tenor, rateStr string
		if scanErr := rows.Scan(&obs.CapturedAt, &tenor, &rateStr); scanErr != nil {
			return nil, scanErr
		}
		rate, convErr := decimal.NewFromString(rateStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse observation rate: %w", convErr)
		}
		obs.Tenor = rates.Tenor(tenor)
		obs.Rate = rate
		observations = append(observations, obs)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return observations, nil
}

func scanSubscription(row pgx.Row) (Subscription, error) {
	var sub Subscription
	var kind string
	var threshold sql.NullString
	var lastNotified sql.NullTime

	if err := row.Scan(&sub.ChatID, &kind, &threshold, &lastNotified, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return Subscription{}, err
	}

	sub.Preference = alerting.Preference{Kind: alerting.PreferenceKind(kind)}
	if threshold.Valid {
		value, err := decimal.NewFromString(threshold.String)
		if err != nil {
			return Subscription{}, fmt.Errorf("parse threshold: %w", err)
		}
		sub.Preference.Threshold = value
	}
	if lastNotified.Valid {
		ts := lastNotified.Time
		sub.LastNotifiedAt = &ts
	}

	return sub, nil
}

func encodeSnapshot(snap rates.Snapshot) ([]byte, error) {
	quoted := snap.Export()
	payload := make(map[string]string, len(quoted))
	for tenor, rate := range quoted {
		payload[string(tenor)] = rate.String()
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return encoded, nil
}

func decodeSnapshot(capturedAt time.Time, raw []byte) (*rates.Snapshot, error) {
	var payload map[string]string
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	quoted := make(map[rates.Tenor]decimal.Decimal, len(payload))
	for tenor, rateStr := range payload {
		rate, err := decimal.NewFromString(rateStr)
		if err != nil {
			return nil, fmt.Errorf("decode snapshot rate %s: %w", tenor, err)
		}
		quoted[rates.Tenor(tenor)] = rate
	}

	snap := rates.NewSnapshot(capturedAt, quoted)
	return &snap, nil
}

var (
	_ SnapshotStore        = (*Store)(nil)
	_ SubscriptionRegistry = (*Store)(nil)
	_ SuggestionStore      = (*Store)(nil)
	_ HistoryStore         = (*Store)(nil)
)
