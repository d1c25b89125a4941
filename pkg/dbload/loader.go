package dbload

import (
	"context"
	"log"

	"github.com/adlens/adlens/pkg/aggregate"
	"github.com/adlens/adlens/pkg/errors"
)

// upsertSQL replaces the stored measures for a natural key. Re-loading the
// same file is therefore idempotent rather than double-counting.
const upsertSQL = `
	INSERT INTO ad_reports (` + reportColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (` + naturalKey + `) DO UPDATE SET
		requests = excluded.requests,
		impressions = excluded.impressions,
		clicks = excluded.clicks,
		revenue = excluded.revenue,
		ecpm = excluded.ecpm,
		ctr = excluded.ctr,
		fill_rate = excluded.fill_rate,
		updated_at = CURRENT_TIMESTAMP`

// LoadRows loads one job's detailed rows into the permanent store. Loads at
// or above CopyThreshold rows stream through the staging relation; smaller
// loads use batched upserts directly against the report table. Implements
// ingest.ResultSink.
func (s *Store) LoadRows(ctx context.Context, fileID, fileName string, rows []aggregate.DetailedRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(rows) == 0 {
		return nil
	}

	strategy := "batch"
	if len(rows) >= s.CopyThreshold {
		strategy = "copy"
	}

	if err := s.beginSession(ctx, fileID, fileName, strategy); err != nil {
		return err
	}

	var err error
	if strategy == "copy" {
		err = withRetry(ctx, "staging copy", func() error {
			return s.copyLoad(ctx, rows)
		})
	} else {
		err = withRetry(ctx, "batched upsert", func() error {
			return s.batchLoad(ctx, rows)
		})
	}

	s.finishSession(fileID, int64(len(rows)), err)
	if err != nil {
		return err
	}

	log.Printf("[dbload] session %s: loaded %d rows via %s", fileID, len(rows), strategy)
	return nil
}

// batchLoad upserts rows in transactions of BatchSize each.
func (s *Store) batchLoad(ctx context.Context, rows []aggregate.DetailedRow) error {
	for start := 0; start < len(rows); start += s.BatchSize {
		end := start + s.BatchSize
		if end > len(rows) {
			end = len(rows)
		}

		if err := s.batchUpsert(ctx, rows[start:end]); err != nil {
			return errors.Wrap(err, errors.CodeBatchFailed, "upsert batch").
				WithContext("offset", start)
		}
	}
	return nil
}

func (s *Store) batchUpsert(ctx context.Context, batch []aggregate.DetailedRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range batch {
		r := &batch[i]
		if _, err := stmt.ExecContext(ctx,
			r.Date, r.Website, r.Country, r.Device, r.Browser,
			r.AdFormat, r.AdUnit, r.Advertiser, r.Domain,
			r.Requests, r.Impressions, r.Clicks, r.Revenue,
			r.ECPM, r.CTR, r.FillRate,
		); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := refreshSitesFromRows(ctx, tx, batch); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}
