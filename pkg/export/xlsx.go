// Package export renders result snapshots as XLSX workbooks for download.
// All 2-decimal currency rounding happens here, at presentation time.
package export

import (
	"fmt"
	"io"
	"math"

	"github.com/xuri/excelize/v2"

	"github.com/adlens/adlens/pkg/aggregate"
)

// entryHeader is the column row shared by every dimension sheet.
var entryHeader = []interface{}{
	"Name", "Revenue", "Impressions", "Clicks", "Requests", "eCPM", "CTR",
}

// WriteXLSX renders a snapshot as a multi-sheet workbook.
func WriteXLSX(res *aggregate.Result, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := writeSummarySheet(f, res); err != nil {
		return err
	}

	sheets := []struct {
		name    string
		entries []aggregate.Entry
	}{
		{"Top Websites", res.TopWebsites},
		{"Top Countries", res.TopCountries},
		{"Daily Trend", res.DailyTrend},
		{"Devices", res.Devices},
		{"Ad Formats", res.AdFormats},
		{"Advertisers", res.Advertisers},
		{"Ad Units", res.AdUnits},
		{"Country x Device", res.DetailedAnalytics.CountryDevice},
		{"Country x Ad Format", res.DetailedAnalytics.CountryAdFormat},
		{"Device x Ad Format", res.DetailedAnalytics.DeviceAdFormat},
		{"Website x Country", res.DetailedAnalytics.WebsiteCountry},
		{"Ad Unit x Ad Format", res.DetailedAnalytics.AdUnitAdFormat},
	}

	for _, sheet := range sheets {
		if err := writeEntrySheet(f, sheet.name, sheet.entries); err != nil {
			return err
		}
	}

	if err := writeSampleSheet(f, res.SamplePreview); err != nil {
		return err
	}

	// excelize creates a default first sheet; the summary replaced it.
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, res *aggregate.Result) error {
	const sheet = "Summary"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	rows := [][]interface{}{
		{"File", res.FileName},
		{"Processed At", res.ProcessedAt.Format("2006-01-02 15:04:05 MST")},
		{"Total Revenue", round2(res.Summary.TotalRevenue)},
		{"Total Impressions", res.Summary.TotalImpressions},
		{"Total Clicks", res.Summary.TotalClicks},
		{"Total Requests", res.Summary.TotalRequests},
		{"Average eCPM", round2(res.Summary.AvgECPM)},
		{"Average CTR %", round2(res.Summary.AvgCTR)},
		{"Rows Processed", res.Summary.TotalRows},
		{"Rows Skipped", res.Summary.SkippedRows},
		{},
		{"Fill Rate Distribution"},
	}
	for _, bucket := range []string{"0-20%", "20-40%", "40-60%", "60-80%", "80-100%"} {
		rows = append(rows, []interface{}{bucket, res.FillRateDistribution[bucket]})
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func writeEntrySheet(f *excelize.File, name string, entries []aggregate.Entry) error {
	if _, err := f.NewSheet(name); err != nil {
		return err
	}
	if err := f.SetSheetRow(name, "A1", &entryHeader); err != nil {
		return err
	}

	for i, e := range entries {
		row := []interface{}{
			e.Name,
			round2(e.Revenue),
			e.Impressions,
			e.Clicks,
			e.Requests,
			round2(e.ECPM),
			round2(e.CTR),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func writeSampleSheet(f *excelize.File, sample []aggregate.DetailedRow) error {
	const sheet = "Sample"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	header := []interface{}{
		"Date", "Website", "Country", "Device", "Browser", "Ad Format",
		"Ad Unit", "Advertiser", "Domain",
		"Requests", "Impressions", "Clicks", "Revenue", "eCPM", "CTR", "Fill Rate %",
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	for i, r := range sample {
		row := []interface{}{
			r.Date, r.Website, r.Country, r.Device, r.Browser, r.AdFormat,
			r.AdUnit, r.Advertiser, r.Domain,
			r.Requests, r.Impressions, r.Clicks,
			round2(r.Revenue), round2(r.ECPM), round2(r.CTR), round2(r.FillRate),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

// round2 rounds to 2 decimal places for display.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
