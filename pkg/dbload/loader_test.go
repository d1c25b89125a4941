package dbload

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/adlens/adlens/pkg/aggregate"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRow(date, website string, revenue float64) aggregate.DetailedRow {
	return aggregate.DetailedRow{
		Date: date, Website: website, Country: "US", Device: "Desktop",
		Browser: "Chrome", AdFormat: "Banner", AdUnit: "top", Advertiser: "acme",
		Domain: website, Requests: 100, Impressions: 50, Clicks: 5,
		Revenue: revenue, ECPM: revenue / 50 * 1000, CTR: 10, FillRate: 50,
	}
}

func revenueFor(t *testing.T, s *Store, date, website string) float64 {
	t.Helper()
	var revenue float64
	err := s.db.QueryRow(`SELECT revenue FROM ad_reports WHERE data_date = ? AND website = ?`,
		date, website).Scan(&revenue)
	if err != nil {
		t.Fatalf("query revenue for %s/%s: %v", date, website, err)
	}
	return revenue
}

func TestLoadRowsBatchIdempotent(t *testing.T) {
	s := newTestStore(t)
	s.BatchSize = 2
	s.CopyThreshold = 1000 // stay on the batch path

	rows := []aggregate.DetailedRow{
		testRow("2024-01-01", "a.com", 10),
		testRow("2024-01-01", "b.com", 5),
		testRow("2024-01-02", "a.com", 2),
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := s.LoadRows(ctx, "file-1", "report.csv", rows); err != nil {
			t.Fatalf("load %d: %v", i+1, err)
		}
	}

	count, err := s.ReportCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("report count = %d after re-import, want 3", count)
	}
	if got := revenueFor(t, s, "2024-01-01", "a.com"); got != 10 {
		t.Errorf("revenue = %v after re-import, want 10", got)
	}

	sessions, err := s.Sessions(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) == 0 || sessions[0].Status != "completed" || sessions[0].RowsLoaded != 3 {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestLoadRowsCopyIdempotent(t *testing.T) {
	s := newTestStore(t)
	s.BatchSize = 2
	s.CopyThreshold = 1 // force the staging path

	rows := []aggregate.DetailedRow{
		testRow("2024-01-01", "a.com", 10),
		testRow("2024-01-01", "a.com", 4), // same natural key, collapses by summing
		testRow("2024-01-02", "b.com", 5),
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := s.LoadRows(ctx, "file-2", "report.csv", rows); err != nil {
			t.Fatalf("load %d: %v", i+1, err)
		}
	}

	count, err := s.ReportCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("report count = %d after re-import, want 2", count)
	}
	if got := revenueFor(t, s, "2024-01-01", "a.com"); got != 14 {
		t.Errorf("collapsed revenue = %v after re-import, want 14", got)
	}
	if got := revenueFor(t, s, "2024-01-02", "b.com"); got != 5 {
		t.Errorf("revenue = %v after re-import, want 5", got)
	}
}

func TestCopyLoadToleratesConcurrentReaders(t *testing.T) {
	s := newTestStore(t)
	s.BatchSize = 16
	s.CopyThreshold = 1

	rows := make([]aggregate.DetailedRow, 0, 400)
	for i := 0; i < 400; i++ {
		rows = append(rows,
			testRow(fmt.Sprintf("2024-01-%02d", i%28+1), fmt.Sprintf("site%d.com", i), float64(i%7)+1))
	}

	// Readers hit the pool while the staging load runs on its pinned
	// connection.
	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					s.ReportCount(context.Background())
				}
			}
		}()
	}

	err := s.LoadRows(context.Background(), "file-3", "big.csv", rows)
	close(done)
	wg.Wait()

	if err != nil {
		t.Fatalf("copy load with concurrent readers: %v", err)
	}
	count, err := s.ReportCount(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 400 {
		t.Errorf("report count = %d, want 400", count)
	}
}
