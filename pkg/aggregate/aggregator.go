// Package aggregate maintains running multi-dimensional sums over a stream
// of normalized ad-performance records and materializes a single result
// snapshot per ingestion job. Memory use is bounded by the number of distinct
// dimension keys, not by row count.
package aggregate

import (
	"github.com/adlens/adlens/internal/model"
)

// SampleCap bounds the preview buffer included in the result snapshot.
const SampleCap = 20

// dimension is one accumulator map with first-seen insertion order preserved
// for deterministic tie-breaking when results are sorted.
type dimension struct {
	totals map[string]*model.Totals
	order  []string
}

func newDimension() *dimension {
	return &dimension{totals: make(map[string]*model.Totals)}
}

// add merges one record's measures into the accumulator for key.
func (d *dimension) add(key string, rec *model.Record) {
	t, ok := d.totals[key]
	if !ok {
		t = &model.Totals{}
		d.totals[key] = t
		d.order = append(d.order, key)
	}
	t.Add(rec)
}

// clear empties the map contents so leftover references cannot retain the
// accumulated state.
func (d *dimension) clear() {
	for k := range d.totals {
		delete(d.totals, k)
	}
	d.order = d.order[:0]
}

// fillRateBuckets are the histogram labels in display order.
var fillRateBuckets = []string{"0-20%", "20-40%", "40-60%", "60-80%", "80-100%"}

// Aggregator consumes normalized records one at a time. It is not safe for
// concurrent use; each ingestion job owns its own instance.
type Aggregator struct {
	websites    *dimension
	countries   *dimension
	dates       *dimension
	devices     *dimension
	adFormats   *dimension
	advertisers *dimension
	adUnits     *dimension

	countryDevice   *dimension
	countryAdFormat *dimension
	deviceAdFormat  *dimension
	websiteCountry  *dimension
	adUnitAdFormat  *dimension

	fillRate map[string]int64

	detailed []DetailedRow
	sample   []DetailedRow

	summary model.Totals
	rows    int64
	skipped int64

	sampleCap int
}

// New creates an aggregator with the default sample cap.
func New() *Aggregator {
	return NewWithSampleCap(SampleCap)
}

// NewWithSampleCap creates an aggregator with an explicit preview cap.
func NewWithSampleCap(sampleCap int) *Aggregator {
	if sampleCap <= 0 {
		sampleCap = SampleCap
	}
	a := &Aggregator{
		websites:    newDimension(),
		countries:   newDimension(),
		dates:       newDimension(),
		devices:     newDimension(),
		adFormats:   newDimension(),
		advertisers: newDimension(),
		adUnits:     newDimension(),

		countryDevice:   newDimension(),
		countryAdFormat: newDimension(),
		deviceAdFormat:  newDimension(),
		websiteCountry:  newDimension(),
		adUnitAdFormat:  newDimension(),

		fillRate:  make(map[string]int64, len(fillRateBuckets)),
		sampleCap: sampleCap,
	}
	for _, b := range fillRateBuckets {
		a.fillRate[b] = 0
	}
	return a
}

// ProcessRow folds one record into every accumulator. Records without a date
// are counted as skipped and contribute nothing.
func (a *Aggregator) ProcessRow(rec *model.Record) {
	if rec == nil || rec.Date == "" {
		a.skipped++
		return
	}

	a.websites.add(rec.Website, rec)
	a.countries.add(rec.Country, rec)
	a.dates.add(rec.Date, rec)
	a.devices.add(rec.Device, rec)
	a.adFormats.add(rec.AdFormat, rec)
	a.advertisers.add(rec.Advertiser, rec)

	// Ad units are sparse in most exports; only aggregate real values.
	hasAdUnit := rec.AdUnit != "" && rec.AdUnit != model.Unknown
	if hasAdUnit {
		a.adUnits.add(rec.AdUnit, rec)
	}

	a.countryDevice.add(model.PairKey(rec.Country, rec.Device), rec)
	a.countryAdFormat.add(model.PairKey(rec.Country, rec.AdFormat), rec)
	a.deviceAdFormat.add(model.PairKey(rec.Device, rec.AdFormat), rec)
	a.websiteCountry.add(model.PairKey(rec.Website, rec.Country), rec)
	if hasAdUnit && rec.AdFormat != model.Unknown {
		a.adUnitAdFormat.add(model.PairKey(rec.AdUnit, rec.AdFormat), rec)
	}

	a.fillRate[bucketFor(rec.FillRate())]++

	row := DetailedRow{
		Date:        rec.Date,
		Website:     rec.Website,
		Country:     rec.Country,
		Device:      rec.Device,
		Browser:     rec.Browser,
		AdFormat:    rec.AdFormat,
		AdUnit:      rec.AdUnit,
		Advertiser:  rec.Advertiser,
		Domain:      rec.Domain,
		Requests:    rec.Requests,
		Impressions: rec.Impressions,
		Clicks:      rec.Clicks,
		Revenue:     rec.Revenue,
		ECPM:        rec.ECPM(),
		CTR:         rec.CTR(),
		FillRate:    rec.FillRate(),
	}

	// The detailed buffer feeds downstream analytics and is unbounded; the
	// sample buffer is a capped UI preview. They fill independently.
	a.detailed = append(a.detailed, row)
	if len(a.sample) < a.sampleCap {
		a.sample = append(a.sample, row)
	}

	a.summary.Add(rec)
	a.rows++
}

// bucketFor maps a fill rate percentage onto its histogram bucket. A zero
// rate, including the requests==0 case, lands in the lowest bucket.
func bucketFor(rate float64) string {
	switch {
	case rate < 20:
		return fillRateBuckets[0]
	case rate < 40:
		return fillRateBuckets[1]
	case rate < 60:
		return fillRateBuckets[2]
	case rate < 80:
		return fillRateBuckets[3]
	default:
		return fillRateBuckets[4]
	}
}

// Rows returns the number of successfully aggregated rows.
func (a *Aggregator) Rows() int64 { return a.rows }

// Skipped returns the number of rows dropped for missing a date.
func (a *Aggregator) Skipped() int64 { return a.skipped }

// Detailed returns the unbounded analytics buffer. The returned slice is
// owned by the aggregator until Cleanup.
func (a *Aggregator) Detailed() []DetailedRow { return a.detailed }

// Cleanup empties every accumulator map and buffer. Must run on every exit
// path of the owning job, success or failure.
func (a *Aggregator) Cleanup() {
	for _, d := range []*dimension{
		a.websites, a.countries, a.dates, a.devices, a.adFormats,
		a.advertisers, a.adUnits,
		a.countryDevice, a.countryAdFormat, a.deviceAdFormat,
		a.websiteCountry, a.adUnitAdFormat,
	} {
		d.clear()
	}
	for k := range a.fillRate {
		a.fillRate[k] = 0
	}
	a.detailed = nil
	a.sample = nil
	a.summary = model.Totals{}
	a.rows = 0
	a.skipped = 0
}
