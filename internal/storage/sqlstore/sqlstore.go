// internal/storage/sqlstore/sqlstore.go
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/vanlt3/LifeTime-Swing/internal/storage"
	"github.com/vanlt3/LifeTime-Swing/internal/storage/models"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const migrationLockID = 7301

// Store is a database/sql backed journal for SQLite and PostgreSQL.
type Store struct {
	db     *sql.DB
	driver string
	logger *zap.Logger
}

var _ storage.Journal = (*Store)(nil)

// Open connects to the journal database.
func Open(ctx context.Context, driver, dsn string, logger *zap.Logger) (*Store, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported journal driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s journal: %w", driver, err)
	}

	if driver == DriverSQLite {
		// A single connection keeps ":memory:" databases shared and serializes writers.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxIdleConns(5)
		db.SetMaxOpenConns(20)
		db.SetConnMaxLifetime(time.Hour)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s journal: %w", driver, err)
	}

	return &Store{
		db:     db,
		driver: driver,
		logger: logger.Named("journal"),
	}, nil
}

// RunMigrations creates the journal tables if they do not exist.
func (s *Store) RunMigrations(ctx context.Context) error {
	if s.driver == DriverPostgres {
		var locked bool
		if err := s.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", migrationLockID).Scan(&locked); err != nil {
			return fmt.Errorf("failed to acquire migration lock: %w", err)
		}
		if !locked {
			return fmt.Errorf("another migration is in progress")
		}
		defer s.db.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockID)
	}

	idColumn := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == DriverPostgres {
		idColumn = "BIGSERIAL PRIMARY KEY"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id ` + idColumn + `,
			alert_id TEXT NOT NULL,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			symbol TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL,
			details TEXT NOT NULL DEFAULT '',
			price DOUBLE PRECISION NOT NULL DEFAULT 0,
			threshold DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_symbol_created ON alerts (symbol, created_at)`,
		`CREATE TABLE IF NOT EXISTS hits (
			id ` + idColumn + `,
			event_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT '',
			method TEXT NOT NULL DEFAULT '',
			threshold DOUBLE PRECISION NOT NULL DEFAULT 0,
			evidence_price DOUBLE PRECISION NOT NULL DEFAULT 0,
			evidence_at BIGINT NOT NULL DEFAULT 0,
			detected_at BIGINT NOT NULL DEFAULT 0,
			outcome TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_hits_symbol_created ON hits (symbol, created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	s.logger.Info("Journal migrations applied", zap.String("driver", s.driver))
	return nil
}

// SaveAlert appends an alert record and sets its ID.
func (s *Store) SaveAlert(ctx context.Context, rec *models.AlertRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO alerts (alert_id, type, severity, symbol, message, details, price, threshold, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		rec.AlertID, rec.Type, rec.Severity, rec.Symbol, rec.Message, rec.Details,
		rec.Price, rec.Threshold, toMillis(rec.CreatedAt),
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to save alert %s: %w", rec.AlertID, err)
	}
	return nil
}

// ListAlerts returns the newest alerts first; an empty symbol lists all.
func (s *Store) ListAlerts(ctx context.Context, symbol string, limit int) ([]*models.AlertRecord, error) {
	query := `SELECT id, alert_id, type, severity, symbol, message, details, price, threshold, created_at FROM alerts`
	query, args := filterBySymbol(query, symbol, limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var out []*models.AlertRecord
	for rows.Next() {
		var (
			rec     models.AlertRecord
			created int64
		)
		if err := rows.Scan(&rec.ID, &rec.AlertID, &rec.Type, &rec.Severity, &rec.Symbol,
			&rec.Message, &rec.Details, &rec.Price, &rec.Threshold, &created); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		rec.CreatedAt = fromMillis(created)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// SaveHit appends a hit record and sets its ID.
func (s *Store) SaveHit(ctx context.Context, rec *models.HitRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO hits (event_id, symbol, kind, method, threshold, evidence_price, evidence_at,
			detected_at, outcome, attempts, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		rec.EventID, rec.Symbol, rec.Kind, rec.Method, rec.Threshold, rec.EvidencePrice,
		toMillis(rec.EvidenceAt), toMillis(rec.DetectedAt), rec.Outcome, rec.Attempts, rec.Error,
		toMillis(rec.CreatedAt),
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to save hit for %s: %w", rec.Symbol, err)
	}
	return nil
}

// ListHits returns the newest hit records first; an empty symbol lists all.
func (s *Store) ListHits(ctx context.Context, symbol string, limit int) ([]*models.HitRecord, error) {
	query := `SELECT id, event_id, symbol, kind, method, threshold, evidence_price, evidence_at,
		detected_at, outcome, attempts, error, created_at FROM hits`
	query, args := filterBySymbol(query, symbol, limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list hits: %w", err)
	}
	defer rows.Close()

	var out []*models.HitRecord
	for rows.Next() {
		var (
			rec                           models.HitRecord
			evidenceAt, detected, created int64
		)
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.Symbol, &rec.Kind, &rec.Method, &rec.Threshold,
			&rec.EvidencePrice, &evidenceAt, &detected, &rec.Outcome, &rec.Attempts, &rec.Error, &created); err != nil {
			return nil, fmt.Errorf("failed to scan hit: %w", err)
		}
		rec.EvidenceAt = fromMillis(evidenceAt)
		rec.DetectedAt = fromMillis(detected)
		rec.CreatedAt = fromMillis(created)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func filterBySymbol(query, symbol string, limit int) (string, []any) {
	var args []any
	if symbol != "" {
		query += " WHERE symbol = ?"
		args = append(args, symbol)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return query, args
}

// rebind turns ? placeholders into $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
