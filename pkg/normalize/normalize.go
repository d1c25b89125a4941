// Package normalize decodes raw export rows into typed records using a
// column map, applying per-field defaults and a post-decode correction pass
// for columns whose content looks transposed.
package normalize

import (
	"math"
	"strconv"
	"strings"

	"github.com/adlens/adlens/internal/model"
	"github.com/adlens/adlens/pkg/parser"
)

// Decoder turns raw rows into normalized records for one file, using the
// column map built from that file's header.
type Decoder struct {
	columns parser.ColumnMap
}

// NewDecoder creates a decoder bound to a column map.
func NewDecoder(columns parser.ColumnMap) *Decoder {
	return &Decoder{columns: columns}
}

// Decode extracts a typed record from one raw row. Missing categorical
// fields default to Unknown, a missing date to the empty string, and numeric
// fields to 0. Numeric parse failures and negative values collapse to 0.
// The swap-correction pass runs before the record is returned so corrected
// values feed the aggregation keys.
func (d *Decoder) Decode(row []string) *model.Record {
	rec := &model.Record{
		Date:       d.text(row, parser.FieldDate, ""),
		Website:    d.text(row, parser.FieldWebsite, model.Unknown),
		Country:    d.text(row, parser.FieldCountry, model.Unknown),
		AdFormat:   d.text(row, parser.FieldAdFormat, model.Unknown),
		AdUnit:     d.text(row, parser.FieldAdUnit, model.Unknown),
		Advertiser: d.text(row, parser.FieldAdvertiser, model.Unknown),
		Device:     d.text(row, parser.FieldDevice, model.Unknown),
		Browser:    d.text(row, parser.FieldBrowser, model.Unknown),

		Requests:    d.number(row, parser.FieldRequests, 0),
		Impressions: d.number(row, parser.FieldImpressions, 0),
		Clicks:      d.number(row, parser.FieldClicks, 0),
		Revenue:     d.number(row, parser.FieldRevenue, 0),
	}

	// The advertiser domain falls back to the website when absent.
	rec.Domain = d.text(row, parser.FieldDomain, rec.Website)

	// Viewability measures fall back to plain impressions / full visibility.
	rec.ViewableImpressions = d.number(row, parser.FieldViewableImpressions, rec.Impressions)
	rec.ViewabilityRate = d.number(row, parser.FieldViewabilityRate, 100)
	rec.MeasurableImpressions = d.number(row, parser.FieldMeasurableImpressions, 0)

	CorrectSwappedColumns(rec)

	return rec
}

// text extracts a trimmed categorical value, falling back to def when the
// column is unmapped or the cell is blank.
func (d *Decoder) text(row []string, field parser.Field, def string) string {
	idx, ok := d.columns.Index(field)
	if !ok || idx >= len(row) {
		return def
	}
	value := strings.TrimSpace(row[idx])
	if value == "" {
		return def
	}
	return value
}

// number extracts a numeric value. Parse failures, NaN, infinities, and
// negative values all collapse to def so measures are never negative.
func (d *Decoder) number(row []string, field parser.Field, def float64) float64 {
	idx, ok := d.columns.Index(field)
	if !ok || idx >= len(row) {
		return def
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return def
	}
	return value
}
