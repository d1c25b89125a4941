package dbload

import (
	"context"
	"database/sql"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"golang.org/x/sync/errgroup"

	"github.com/adlens/adlens/pkg/aggregate"
	"github.com/adlens/adlens/pkg/errors"
)

const stagingTable = "staging_ad_reports"

// stagingSchema mirrors the report table, dimensions then measures.
var stagingSchema = arrow.NewSchema([]arrow.Field{
	{Name: "data_date", Type: arrow.BinaryTypes.String},
	{Name: "website", Type: arrow.BinaryTypes.String},
	{Name: "country", Type: arrow.BinaryTypes.String},
	{Name: "device", Type: arrow.BinaryTypes.String},
	{Name: "browser", Type: arrow.BinaryTypes.String},
	{Name: "ad_format", Type: arrow.BinaryTypes.String},
	{Name: "ad_unit", Type: arrow.BinaryTypes.String},
	{Name: "advertiser", Type: arrow.BinaryTypes.String},
	{Name: "domain", Type: arrow.BinaryTypes.String},
	{Name: "requests", Type: arrow.PrimitiveTypes.Float64},
	{Name: "impressions", Type: arrow.PrimitiveTypes.Float64},
	{Name: "clicks", Type: arrow.PrimitiveTypes.Float64},
	{Name: "revenue", Type: arrow.PrimitiveTypes.Float64},
	{Name: "ecpm", Type: arrow.PrimitiveTypes.Float64},
	{Name: "ctr", Type: arrow.PrimitiveTypes.Float64},
	{Name: "fill_rate", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// stagingBatch builds Arrow record batches for the staging insert.
type stagingBatch struct {
	builder *array.RecordBuilder
	dims    [9]*array.StringBuilder
	meas    [7]*array.Float64Builder
}

func newStagingBatch(alloc memory.Allocator, capacity int) *stagingBatch {
	b := array.NewRecordBuilder(alloc, stagingSchema)
	sb := &stagingBatch{builder: b}
	for i := 0; i < 9; i++ {
		sb.dims[i] = b.Field(i).(*array.StringBuilder)
		sb.dims[i].Reserve(capacity)
	}
	for i := 0; i < 7; i++ {
		sb.meas[i] = b.Field(9 + i).(*array.Float64Builder)
		sb.meas[i].Reserve(capacity)
	}
	return sb
}

func (b *stagingBatch) append(r *aggregate.DetailedRow) {
	b.dims[0].Append(r.Date)
	b.dims[1].Append(r.Website)
	b.dims[2].Append(r.Country)
	b.dims[3].Append(r.Device)
	b.dims[4].Append(r.Browser)
	b.dims[5].Append(r.AdFormat)
	b.dims[6].Append(r.AdUnit)
	b.dims[7].Append(r.Advertiser)
	b.dims[8].Append(r.Domain)
	b.meas[0].Append(r.Requests)
	b.meas[1].Append(r.Impressions)
	b.meas[2].Append(r.Clicks)
	b.meas[3].Append(r.Revenue)
	b.meas[4].Append(r.ECPM)
	b.meas[5].Append(r.CTR)
	b.meas[6].Append(r.FillRate)
}

func (b *stagingBatch) release() {
	b.builder.Release()
}

// flush materializes the current builders into a record and inserts it into
// the staging relation inside one transaction on the pinned connection.
func (b *stagingBatch) flush(ctx context.Context, conn *sql.Conn) error {
	rec := b.builder.NewRecord()
	defer rec.Release()

	n := int(rec.NumRows())
	if n == 0 {
		return nil
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO `+stagingTable+` (`+reportColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	var (
		dims [9]*array.String
		meas [7]*array.Float64
	)
	for i := 0; i < 9; i++ {
		dims[i] = rec.Column(i).(*array.String)
	}
	for i := 0; i < 7; i++ {
		meas[i] = rec.Column(9 + i).(*array.Float64)
	}

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx,
			dims[0].Value(i), dims[1].Value(i), dims[2].Value(i),
			dims[3].Value(i), dims[4].Value(i), dims[5].Value(i),
			dims[6].Value(i), dims[7].Value(i), dims[8].Value(i),
			meas[0].Value(i), meas[1].Value(i), meas[2].Value(i),
			meas[3].Value(i), meas[4].Value(i), meas[5].Value(i),
			meas[6].Value(i),
		); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// copyLoad streams rows into a staging relation and merges it into the
// report table in one set-based transaction. The producer feeds fixed-size
// slices to a single consumer over a bounded channel, so memory stays at one
// batch regardless of load size.
//
// The TEMP staging table is connection-local, so the whole
// create-insert-merge-drop sequence is pinned to one connection. Concurrent
// readers keep using the rest of the pool.
func (s *Store) copyLoad(ctx context.Context, rows []aggregate.DetailedRow) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CodeCopyFailed, "acquire connection")
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `
		CREATE TEMP TABLE IF NOT EXISTS `+stagingTable+` AS
		SELECT `+reportColumns+` FROM ad_reports LIMIT 0`); err != nil {
		return errors.Wrap(err, errors.CodeCopyFailed, "create staging relation")
	}
	defer conn.ExecContext(context.Background(), `DROP TABLE IF EXISTS `+stagingTable)

	if _, err := conn.ExecContext(ctx, `DELETE FROM `+stagingTable); err != nil {
		return errors.Wrap(err, errors.CodeCopyFailed, "reset staging relation")
	}

	batches := make(chan []aggregate.DetailedRow, 4)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(batches)
		for start := 0; start < len(rows); start += s.BatchSize {
			end := start + s.BatchSize
			if end > len(rows) {
				end = len(rows)
			}
			select {
			case batches <- rows[start:end]:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		builder := newStagingBatch(memory.NewGoAllocator(), s.BatchSize)
		defer builder.release()

		for batch := range batches {
			for i := range batch {
				builder.append(&batch[i])
			}
			if err := builder.flush(gctx, conn); err != nil {
				return errors.Wrap(err, errors.CodeCopyFailed, "stage batch")
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	return s.mergeStaging(ctx, conn)
}

// mergeStaging folds the staging relation into the report table. Duplicate
// natural keys inside one file collapse by summing measures, with the rates
// recomputed from the summed values; conflicts with stored rows replace the
// stored measures so re-imports stay idempotent. The site directory refresh
// rides the same transaction.
func (s *Store) mergeStaging(ctx context.Context, conn *sql.Conn) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.CodeMergeFailed, "begin merge")
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ad_reports (`+reportColumns+`)
		SELECT
			`+naturalKey+`,
			SUM(requests), SUM(impressions), SUM(clicks), SUM(revenue),
			CASE WHEN SUM(impressions) > 0 THEN SUM(revenue) / SUM(impressions) * 1000 ELSE 0 END,
			CASE WHEN SUM(impressions) > 0 THEN SUM(clicks) / SUM(impressions) * 100 ELSE 0 END,
			CASE WHEN SUM(requests) > 0 THEN SUM(impressions) / SUM(requests) * 100 ELSE 0 END
		FROM `+stagingTable+`
		GROUP BY `+naturalKey+`
		ON CONFLICT (`+naturalKey+`) DO UPDATE SET
			requests = excluded.requests,
			impressions = excluded.impressions,
			clicks = excluded.clicks,
			revenue = excluded.revenue,
			ecpm = excluded.ecpm,
			ctr = excluded.ctr,
			fill_rate = excluded.fill_rate,
			updated_at = CURRENT_TIMESTAMP`); err != nil {
		tx.Rollback()
		return errors.Wrap(err, errors.CodeMergeFailed, "merge staging into reports")
	}

	if err := refreshSites(ctx, tx, stagingTable); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.CodeMergeFailed, "commit merge")
	}
	return nil
}
