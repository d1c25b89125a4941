// Package model defines the core data types shared across the ingestion
// pipeline: the typed ad-performance record and the running metric totals
// keyed by dimension values.
package model

// Unknown is the sentinel used for every categorical dimension that is
// absent or blank in the source export.
const Unknown = "Unknown"

// Record is one normalized row of an ad-performance export. All categorical
// dimensions default to Unknown, numeric measures default to 0 and are never
// negative after decoding.
type Record struct {
	Date       string `json:"date"`
	Website    string `json:"website"`
	Country    string `json:"country"`
	AdFormat   string `json:"adFormat"`
	AdUnit     string `json:"adUnit"`
	Advertiser string `json:"advertiser"`
	Domain     string `json:"domain"`
	Device     string `json:"device"`
	Browser    string `json:"browser"`

	Requests    float64 `json:"requests"`
	Impressions float64 `json:"impressions"`
	Clicks      float64 `json:"clicks"`
	Revenue     float64 `json:"revenue"`

	// Optional viewability measures; ViewableImpressions falls back to
	// Impressions and ViewabilityRate to 100 when the columns are absent.
	ViewableImpressions   float64 `json:"viewableImpressions"`
	ViewabilityRate       float64 `json:"viewabilityRate"`
	MeasurableImpressions float64 `json:"measurableImpressions"`
}

// ECPM returns effective revenue per 1,000 impressions, 0 when there are no
// impressions.
func (r *Record) ECPM() float64 {
	if r.Impressions > 0 {
		return r.Revenue / r.Impressions * 1000
	}
	return 0
}

// CTR returns the click-through rate in percent, 0 when there are no
// impressions.
func (r *Record) CTR() float64 {
	if r.Impressions > 0 {
		return r.Clicks / r.Impressions * 100
	}
	return 0
}

// FillRate returns impressions/requests in percent, defined as 0 when no
// requests were recorded.
func (r *Record) FillRate() float64 {
	if r.Requests > 0 {
		return r.Impressions / r.Requests * 100
	}
	return 0
}

// Totals is the mutable accumulator stored per dimension key. Values only
// grow during a single ingestion pass.
type Totals struct {
	Revenue     float64 `json:"revenue"`
	Impressions float64 `json:"impressions"`
	Clicks      float64 `json:"clicks"`
	Requests    float64 `json:"requests"`
}

// Add folds one record's measures into the accumulator.
func (t *Totals) Add(r *Record) {
	t.Revenue += r.Revenue
	t.Impressions += r.Impressions
	t.Clicks += r.Clicks
	t.Requests += r.Requests
}

// Merge folds another accumulator into this one.
func (t *Totals) Merge(o Totals) {
	t.Revenue += o.Revenue
	t.Impressions += o.Impressions
	t.Clicks += o.Clicks
	t.Requests += o.Requests
}

// ECPM returns the accumulator's effective CPM.
func (t Totals) ECPM() float64 {
	if t.Impressions > 0 {
		return t.Revenue / t.Impressions * 1000
	}
	return 0
}

// CTR returns the accumulator's click-through rate in percent.
func (t Totals) CTR() float64 {
	if t.Impressions > 0 {
		return t.Clicks / t.Impressions * 100
	}
	return 0
}

// PairKey builds the composite accumulator key for a dimension pair.
func PairKey(a, b string) string {
	return a + "|" + b
}
