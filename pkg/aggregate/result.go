package aggregate

import (
	"sort"
	"time"
)

// Top-list sizes per dimension, matching what the dashboard renders.
const (
	topWebsites    = 10
	topCountries   = 10
	topDates       = 30
	topDevices     = 5
	topAdFormats   = 5
	topAdvertisers = 10
	topAdUnits     = 10
)

// Entry is one named accumulator in a result list, with derived rates.
type Entry struct {
	Name        string  `json:"name"`
	Revenue     float64 `json:"revenue"`
	Impressions float64 `json:"impressions"`
	Clicks      float64 `json:"clicks"`
	Requests    float64 `json:"requests"`
	ECPM        float64 `json:"ecpm"`
	CTR         float64 `json:"ctr"`
}

// DetailedRow is one normalized row with its derived per-row rates, used in
// both the analytics buffer and the sample preview.
type DetailedRow struct {
	Date        string  `json:"date"`
	Website     string  `json:"website"`
	Country     string  `json:"country"`
	Device      string  `json:"device"`
	Browser     string  `json:"browser"`
	AdFormat    string  `json:"adFormat"`
	AdUnit      string  `json:"adUnit"`
	Advertiser  string  `json:"advertiser"`
	Domain      string  `json:"domain"`
	Requests    float64 `json:"requests"`
	Impressions float64 `json:"impressions"`
	Clicks      float64 `json:"clicks"`
	Revenue     float64 `json:"revenue"`
	ECPM        float64 `json:"ecpm"`
	CTR         float64 `json:"ctr"`
	FillRate    float64 `json:"fillRate"`
}

// Summary holds whole-file totals and guarded averages.
type Summary struct {
	TotalRevenue     float64 `json:"totalRevenue"`
	TotalImpressions float64 `json:"totalImpressions"`
	TotalClicks      float64 `json:"totalClicks"`
	TotalRequests    float64 `json:"totalRequests"`
	AvgECPM          float64 `json:"avgEcpm"`
	AvgCTR           float64 `json:"avgCtr"`
	TotalRows        int64   `json:"totalRows"`
	SkippedRows      int64   `json:"skippedRows"`
}

// CombinationLists are the full pairwise breakdowns, never truncated.
type CombinationLists struct {
	CountryDevice   []Entry `json:"countryDevice"`
	CountryAdFormat []Entry `json:"countryAdFormat"`
	DeviceAdFormat  []Entry `json:"deviceAdFormat"`
	WebsiteCountry  []Entry `json:"websiteCountry"`
	AdUnitAdFormat  []Entry `json:"adUnitAdFormat"`
}

// Result is the immutable snapshot materialized once per ingestion job.
type Result struct {
	FileID   string  `json:"fileId"`
	FileName string  `json:"fileName"`
	Summary  Summary `json:"summary"`

	TopWebsites  []Entry `json:"topWebsites"`
	TopCountries []Entry `json:"topCountries"`
	DailyTrend   []Entry `json:"dailyTrend"`
	Devices      []Entry `json:"devices"`
	AdFormats    []Entry `json:"adFormats"`
	Advertisers  []Entry `json:"advertisers"`
	AdUnits      []Entry `json:"adUnits"`

	DetailedAnalytics CombinationLists `json:"detailedAnalytics"`

	SamplePreview        []DetailedRow    `json:"samplePreview"`
	FillRateDistribution map[string]int64 `json:"fillRateDistribution"`

	ProcessedAt time.Time `json:"processedAt"`
}

// Result materializes the final snapshot. The aggregator remains usable
// afterwards; callers invoke Cleanup separately once the snapshot is
// persisted.
func (a *Aggregator) Result(fileID, fileName string) *Result {
	res := &Result{
		FileID:   fileID,
		FileName: fileName,
		Summary: Summary{
			TotalRevenue:     a.summary.Revenue,
			TotalImpressions: a.summary.Impressions,
			TotalClicks:      a.summary.Clicks,
			TotalRequests:    a.summary.Requests,
			AvgECPM:          a.summary.ECPM(),
			AvgCTR:           a.summary.CTR(),
			TotalRows:        a.rows,
			SkippedRows:      a.skipped,
		},

		TopWebsites:  topEntries(a.websites, topWebsites),
		TopCountries: topEntries(a.countries, topCountries),
		DailyTrend:   dailyTrend(a.dates, topDates),
		Devices:      topEntries(a.devices, topDevices),
		AdFormats:    topEntries(a.adFormats, topAdFormats),
		Advertisers:  topEntries(a.advertisers, topAdvertisers),
		AdUnits:      topEntries(a.adUnits, topAdUnits),

		DetailedAnalytics: CombinationLists{
			CountryDevice:   allEntries(a.countryDevice),
			CountryAdFormat: allEntries(a.countryAdFormat),
			DeviceAdFormat:  allEntries(a.deviceAdFormat),
			WebsiteCountry:  allEntries(a.websiteCountry),
			AdUnitAdFormat:  allEntries(a.adUnitAdFormat),
		},

		SamplePreview:        append([]DetailedRow(nil), a.sample...),
		FillRateDistribution: make(map[string]int64, len(a.fillRate)),

		ProcessedAt: time.Now().UTC(),
	}

	for k, v := range a.fillRate {
		res.FillRateDistribution[k] = v
	}

	return res
}

// entries converts a dimension into Entry values in first-seen order.
func entries(d *dimension) []Entry {
	out := make([]Entry, 0, len(d.order))
	for _, name := range d.order {
		t := d.totals[name]
		out = append(out, Entry{
			Name:        name,
			Revenue:     t.Revenue,
			Impressions: t.Impressions,
			Clicks:      t.Clicks,
			Requests:    t.Requests,
			ECPM:        t.ECPM(),
			CTR:         t.CTR(),
		})
	}
	return out
}

// topEntries returns the top-n entries by revenue, excluding zero-revenue
// keys. Stable sort over first-seen order breaks ties deterministically.
func topEntries(d *dimension, n int) []Entry {
	out := entries(d)

	filtered := out[:0]
	for _, e := range out {
		if e.Revenue > 0 {
			filtered = append(filtered, e)
		}
	}
	out = filtered

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Revenue > out[j].Revenue
	})

	if len(out) > n {
		out = out[:n]
	}
	return out
}

// dailyTrend picks the top-n revenue dates, then orders them chronologically
// for charting. Dates are ISO-formatted so a string sort is a date sort.
func dailyTrend(d *dimension, n int) []Entry {
	out := topEntries(d, n)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// allEntries returns every entry sorted by revenue descending, keeping
// zero-revenue combinations.
func allEntries(d *dimension) []Entry {
	out := entries(d)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Revenue > out[j].Revenue
	})
	return out
}
