package aggregate

import (
	"testing"

	"github.com/adlens/adlens/internal/model"
)

func rec(date, website string, revenue, impressions, clicks, requests float64) *model.Record {
	return &model.Record{
		Date:        date,
		Website:     website,
		Country:     model.Unknown,
		AdFormat:    model.Unknown,
		AdUnit:      model.Unknown,
		Advertiser:  model.Unknown,
		Device:      model.Unknown,
		Browser:     model.Unknown,
		Domain:      website,
		Revenue:     revenue,
		Impressions: impressions,
		Clicks:      clicks,
		Requests:    requests,
	}
}

func TestAggregateTwoRowsSameWebsite(t *testing.T) {
	a := New()
	a.ProcessRow(rec("2024-01-01", "site.com", 10.00, 1000, 5, 2000))
	a.ProcessRow(rec("2024-01-01", "site.com", 5.00, 500, 3, 1000))

	res := a.Result("job1", "report.csv")
	if len(res.TopWebsites) != 1 {
		t.Fatalf("want 1 website, got %d", len(res.TopWebsites))
	}
	e := res.TopWebsites[0]
	if e.Name != "site.com" || e.Revenue != 15.00 || e.Impressions != 1500 {
		t.Errorf("bad accumulation: %+v", e)
	}
	if e.ECPM != 10.00 {
		t.Errorf("ecpm = %v, want 10.00", e.ECPM)
	}
}

func TestAggregateAdditivity(t *testing.T) {
	rows := []*model.Record{
		rec("2024-01-01", "a.com", 1.5, 100, 1, 200),
		rec("2024-01-02", "b.com", 2.5, 300, 2, 400),
		rec("2024-01-01", "a.com", 3.0, 150, 0, 300),
		rec("2024-01-03", "b.com", 0.5, 50, 1, 100),
	}

	whole := New()
	for _, r := range rows {
		whole.ProcessRow(r)
	}

	// Partitioned, processed in the opposite order per subset
	part := New()
	part.ProcessRow(rows[3])
	part.ProcessRow(rows[1])
	part.ProcessRow(rows[2])
	part.ProcessRow(rows[0])

	wres := whole.Result("j", "f")
	pres := part.Result("j", "f")

	if wres.Summary.TotalRevenue != pres.Summary.TotalRevenue {
		t.Errorf("revenue differs: %v vs %v", wres.Summary.TotalRevenue, pres.Summary.TotalRevenue)
	}
	wsites := map[string]float64{}
	for _, e := range wres.TopWebsites {
		wsites[e.Name] = e.Revenue
	}
	for _, e := range pres.TopWebsites {
		if wsites[e.Name] != e.Revenue {
			t.Errorf("%s: %v vs %v", e.Name, wsites[e.Name], e.Revenue)
		}
	}
}

func TestHistogramCoverage(t *testing.T) {
	a := New()
	inputs := []struct{ impressions, requests float64 }{
		{15, 100},  // 15% -> 0-20%
		{0, 0},     // requests 0 -> 0-20%
		{30, 100},  // 30% -> 20-40%
		{55, 100},  // 55% -> 40-60%
		{70, 100},  // 70% -> 60-80%
		{95, 100},  // 95% -> 80-100%
		{100, 100}, // 100% -> 80-100%
	}
	for _, in := range inputs {
		a.ProcessRow(rec("2024-01-01", "s.com", 1, in.impressions, 0, in.requests))
	}

	res := a.Result("j", "f")
	var sum int64
	for _, n := range res.FillRateDistribution {
		sum += n
	}
	if sum != int64(len(inputs)) {
		t.Errorf("histogram sum %d != rows %d", sum, len(inputs))
	}
	if res.FillRateDistribution["0-20%"] != 2 {
		t.Errorf("0-20%% bucket = %d, want 2", res.FillRateDistribution["0-20%"])
	}
	if res.FillRateDistribution["80-100%"] != 2 {
		t.Errorf("80-100%% bucket = %d, want 2", res.FillRateDistribution["80-100%"])
	}
}

func TestSkippedRowsWithoutDate(t *testing.T) {
	a := New()
	a.ProcessRow(rec("", "site.com", 10, 100, 0, 200))
	a.ProcessRow(rec("2024-01-01", "site.com", 5, 50, 0, 100))

	if a.Rows() != 1 || a.Skipped() != 1 {
		t.Errorf("rows=%d skipped=%d, want 1/1", a.Rows(), a.Skipped())
	}
}

func TestTopListExcludesZeroRevenue(t *testing.T) {
	a := New()
	a.ProcessRow(rec("2024-01-01", "paid.com", 5, 100, 0, 200))
	a.ProcessRow(rec("2024-01-01", "free.com", 0, 100, 0, 200))

	res := a.Result("j", "f")
	if len(res.TopWebsites) != 1 || res.TopWebsites[0].Name != "paid.com" {
		t.Errorf("zero-revenue entry in top list: %+v", res.TopWebsites)
	}

	// Combination lists keep zero-revenue keys.
	if len(res.DetailedAnalytics.WebsiteCountry) != 2 {
		t.Errorf("combination list truncated: %+v", res.DetailedAnalytics.WebsiteCountry)
	}
}

func TestTopListTiesKeepFirstSeenOrder(t *testing.T) {
	a := New()
	a.ProcessRow(rec("2024-01-01", "first.com", 5, 100, 0, 0))
	a.ProcessRow(rec("2024-01-01", "second.com", 5, 100, 0, 0))
	a.ProcessRow(rec("2024-01-01", "third.com", 9, 100, 0, 0))

	res := a.Result("j", "f")
	want := []string{"third.com", "first.com", "second.com"}
	for i, e := range res.TopWebsites {
		if e.Name != want[i] {
			t.Errorf("position %d: got %s, want %s", i, e.Name, want[i])
		}
	}
}

func TestDailyTrendChronological(t *testing.T) {
	a := New()
	a.ProcessRow(rec("2024-01-03", "s.com", 3, 10, 0, 0))
	a.ProcessRow(rec("2024-01-01", "s.com", 1, 10, 0, 0))
	a.ProcessRow(rec("2024-01-02", "s.com", 9, 10, 0, 0))

	res := a.Result("j", "f")
	want := []string{"2024-01-01", "2024-01-02", "2024-01-03"}
	if len(res.DailyTrend) != 3 {
		t.Fatalf("want 3 dates, got %d", len(res.DailyTrend))
	}
	for i, e := range res.DailyTrend {
		if e.Name != want[i] {
			t.Errorf("position %d: got %s, want %s", i, e.Name, want[i])
		}
	}
}

func TestAdUnitOnlyAggregatedWhenPresent(t *testing.T) {
	a := New()
	a.ProcessRow(rec("2024-01-01", "s.com", 1, 10, 0, 0))

	withUnit := rec("2024-01-01", "s.com", 2, 10, 0, 0)
	withUnit.AdUnit = "top_banner"
	withUnit.AdFormat = "Banner"
	a.ProcessRow(withUnit)

	res := a.Result("j", "f")
	if len(res.AdUnits) != 1 || res.AdUnits[0].Name != "top_banner" {
		t.Errorf("ad units: %+v", res.AdUnits)
	}
	if len(res.DetailedAnalytics.AdUnitAdFormat) != 1 {
		t.Errorf("adUnit|adFormat should only include real pairs: %+v",
			res.DetailedAnalytics.AdUnitAdFormat)
	}
}

func TestSamplePreviewCapped(t *testing.T) {
	a := New()
	for i := 0; i < SampleCap+10; i++ {
		a.ProcessRow(rec("2024-01-01", "s.com", 1, 10, 0, 0))
	}

	res := a.Result("j", "f")
	if len(res.SamplePreview) != SampleCap {
		t.Errorf("sample = %d, want %d", len(res.SamplePreview), SampleCap)
	}
	if len(a.Detailed()) != SampleCap+10 {
		t.Errorf("detailed buffer truncated: %d", len(a.Detailed()))
	}
}

func TestSummaryGuardedAverages(t *testing.T) {
	a := New()
	a.ProcessRow(rec("2024-01-01", "s.com", 5, 0, 0, 0))

	res := a.Result("j", "f")
	if res.Summary.AvgECPM != 0 || res.Summary.AvgCTR != 0 {
		t.Errorf("zero-impression averages must be 0: %+v", res.Summary)
	}
}

func TestCleanupEmptiesState(t *testing.T) {
	a := New()
	a.ProcessRow(rec("2024-01-01", "s.com", 5, 100, 1, 200))
	a.Cleanup()

	res := a.Result("j", "f")
	if res.Summary.TotalRows != 0 || len(res.TopWebsites) != 0 || len(res.SamplePreview) != 0 {
		t.Errorf("state survived cleanup: %+v", res)
	}
	var sum int64
	for _, n := range res.FillRateDistribution {
		sum += n
	}
	if sum != 0 {
		t.Errorf("histogram survived cleanup")
	}
}
