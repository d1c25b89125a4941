// Package dbload moves aggregated ad-performance rows into the permanent
// DuckDB store. Small loads go through batched upserts; large loads stream
// through a staging relation that is merged in one set-based transaction, so
// re-importing the same file is idempotent either way.
package dbload

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/adlens/adlens/pkg/aggregate"
	"github.com/adlens/adlens/pkg/errors"
)

// reportColumns is the column list shared by the report table, the staging
// relation, and both insert paths. Order matters; every insert follows it.
const reportColumns = `data_date, website, country, device, browser, ad_format, ad_unit, advertiser, domain,
	requests, impressions, clicks, revenue, ecpm, ctr, fill_rate`

// naturalKey is the dimension tuple that identifies one logical report row.
const naturalKey = `data_date, website, country, device, browser, ad_format, ad_unit, advertiser, domain`

// Store is the bulk-load facade over the permanent database.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	// BatchSize bounds rows per transaction on both load paths.
	BatchSize int

	// CopyThreshold is the row count at which LoadRows switches from
	// batched upserts to the staging-copy path.
	CopyThreshold int
}

// Open opens (creating if needed) the database and runs migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreInit, "open database")
	}

	s := &Store{
		db:            db,
		BatchSize:     1000,
		CopyThreshold: 50000,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema. Statements are idempotent so startup is safe
// against an existing database.
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS ad_reports (
			data_date TEXT NOT NULL,
			website TEXT NOT NULL,
			country TEXT NOT NULL,
			device TEXT NOT NULL,
			browser TEXT NOT NULL,
			ad_format TEXT NOT NULL,
			ad_unit TEXT NOT NULL,
			advertiser TEXT NOT NULL,
			domain TEXT NOT NULL,
			requests DOUBLE NOT NULL DEFAULT 0,
			impressions DOUBLE NOT NULL DEFAULT 0,
			clicks DOUBLE NOT NULL DEFAULT 0,
			revenue DOUBLE NOT NULL DEFAULT 0,
			ecpm DOUBLE NOT NULL DEFAULT 0,
			ctr DOUBLE NOT NULL DEFAULT 0,
			fill_rate DOUBLE NOT NULL DEFAULT 0,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (` + naturalKey + `)
		)`,

		`CREATE TABLE IF NOT EXISTS sites (
			domain TEXT PRIMARY KEY,
			first_seen TEXT,
			last_seen TEXT,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS import_sessions (
			id TEXT PRIMARY KEY,
			file_name TEXT NOT NULL,
			status TEXT NOT NULL,
			strategy TEXT,
			rows_loaded BIGINT DEFAULT 0,
			error TEXT,
			started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			completed_at TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return errors.Wrap(err, errors.CodeStoreInit, "run migration")
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// beginSession records a new import session.
func (s *Store) beginSession(ctx context.Context, id, fileName, strategy string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO import_sessions (id, file_name, status, strategy)
		VALUES (?, ?, 'loading', ?)
		ON CONFLICT (id) DO UPDATE SET
			status = 'loading', strategy = excluded.strategy,
			error = NULL, started_at = CURRENT_TIMESTAMP, completed_at = NULL`,
		id, fileName, strategy)
	if err != nil {
		return errors.Wrap(err, errors.CodeStoreWrite, "record import session")
	}
	return nil
}

// finishSession marks a session completed or failed.
func (s *Store) finishSession(id string, rows int64, loadErr error) {
	status, msg := "completed", ""
	if loadErr != nil {
		status, msg = "failed", errors.Sanitize(loadErr)
	}
	if _, err := s.db.Exec(`
		UPDATE import_sessions
		SET status = ?, rows_loaded = ?, error = NULLIF(?, ''), completed_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		status, rows, msg, id); err != nil {
		// Session bookkeeping never fails a load that already succeeded.
		log.Printf("[dbload] session %s: bookkeeping update failed: %v", id, err)
	}
}

// refreshSites upserts the site directory from the date span observed for
// each website in this load.
func refreshSites(ctx context.Context, tx *sql.Tx, sourceTable string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sites (domain, first_seen, last_seen)
		SELECT website, MIN(data_date), MAX(data_date)
		FROM `+sourceTable+`
		GROUP BY website
		ON CONFLICT (domain) DO UPDATE SET
			first_seen = LEAST(sites.first_seen, excluded.first_seen),
			last_seen = GREATEST(sites.last_seen, excluded.last_seen),
			updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return errors.Wrap(err, errors.CodeStoreWrite, "refresh site directory")
	}
	return nil
}

// refreshSitesFromRows upserts the site directory from an in-memory batch,
// used by the batched load path where no staging relation exists.
func refreshSitesFromRows(ctx context.Context, tx *sql.Tx, batch []aggregate.DetailedRow) error {
	type span struct{ first, last string }
	spans := make(map[string]*span)
	for i := range batch {
		r := &batch[i]
		sp, ok := spans[r.Website]
		if !ok {
			spans[r.Website] = &span{first: r.Date, last: r.Date}
			continue
		}
		if r.Date < sp.first {
			sp.first = r.Date
		}
		if r.Date > sp.last {
			sp.last = r.Date
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sites (domain, first_seen, last_seen)
		VALUES (?, ?, ?)
		ON CONFLICT (domain) DO UPDATE SET
			first_seen = LEAST(sites.first_seen, excluded.first_seen),
			last_seen = GREATEST(sites.last_seen, excluded.last_seen),
			updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return errors.Wrap(err, errors.CodeStoreWrite, "prepare site upsert")
	}
	defer stmt.Close()

	for domain, sp := range spans {
		if _, err := stmt.ExecContext(ctx, domain, sp.first, sp.last); err != nil {
			return errors.Wrap(err, errors.CodeStoreWrite, "upsert site").
				WithContext("domain", domain)
		}
	}
	return nil
}

// Session is one import session record.
type Session struct {
	ID          string     `json:"id"`
	FileName    string     `json:"fileName"`
	Status      string     `json:"status"`
	Strategy    string     `json:"strategy"`
	RowsLoaded  int64      `json:"rowsLoaded"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Sessions lists the most recent import sessions, newest first.
func (s *Store) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_name, status, COALESCE(strategy, ''), rows_loaded,
			COALESCE(error, ''), started_at, completed_at
		FROM import_sessions
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreQuery, "list import sessions")
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.FileName, &sess.Status, &sess.Strategy,
			&sess.RowsLoaded, &sess.Error, &sess.StartedAt, &sess.CompletedAt); err != nil {
			return nil, errors.Wrap(err, errors.CodeStoreQuery, "scan import session")
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// ReportCount returns the number of rows in the permanent report table.
func (s *Store) ReportCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ad_reports`).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeStoreQuery, "count reports")
	}
	return n, nil
}
