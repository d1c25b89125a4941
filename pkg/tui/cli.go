// Package tui renders CLI output for ingestion runs: progress bars while a
// file streams and a styled report once the snapshot is ready.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/adlens/adlens/pkg/aggregate"
)

// Colors
var (
	accent  = lipgloss.Color("#FF6B00")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
)

// PrintHeader prints the tool banner.
func PrintHeader(version string) {
	fmt.Println()
	fmt.Println(titleStyle.Render("  ADLENS") + mutedStyle.Render(" v"+version))
	fmt.Println(mutedStyle.Render("  Ad performance report ingestion"))
	fmt.Println()
}

// ShowProgress creates a byte-based progress bar for one file.
func ShowProgress(totalBytes int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(totalBytes,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// PrintResult prints the ingestion report for one snapshot.
func PrintResult(res *aggregate.Result, elapsed time.Duration) {
	fmt.Println()
	fmt.Println(successStyle.Render("  ✓ INGESTION COMPLETE"))
	fmt.Println()
	fmt.Printf("  %s %s\n", mutedStyle.Render("File:"), titleStyle.Render(res.FileName))
	fmt.Printf("  %s %s %s\n",
		mutedStyle.Render("Rows:"),
		titleStyle.Render(formatNumber(res.Summary.TotalRows)),
		mutedStyle.Render(fmt.Sprintf("(%s skipped)", formatNumber(res.Summary.SkippedRows))))
	fmt.Printf("  %s %s\n", mutedStyle.Render("Revenue:"),
		titleStyle.Render(fmt.Sprintf("$%.2f", res.Summary.TotalRevenue)))
	fmt.Printf("  %s %s %s\n",
		mutedStyle.Render("eCPM:"),
		titleStyle.Render(fmt.Sprintf("$%.2f", res.Summary.AvgECPM)),
		mutedStyle.Render(fmt.Sprintf("(CTR %.2f%%)", res.Summary.AvgCTR)))

	if elapsed > 0 {
		rate := float64(res.Summary.TotalRows) / elapsed.Seconds()
		fmt.Printf("  %s %s %s\n",
			mutedStyle.Render("Time:"),
			titleStyle.Render(formatDuration(elapsed)),
			mutedStyle.Render(fmt.Sprintf("(%s rows/sec)", formatNumber(int64(rate)))))
	}

	if len(res.TopWebsites) > 0 {
		fmt.Println()
		fmt.Println(accentStyle.Render("  ▸ TOP WEBSITES"))
		for i, e := range res.TopWebsites {
			if i >= 5 {
				break
			}
			fmt.Printf("    %s %s\n",
				titleStyle.Render(fmt.Sprintf("$%-10.2f", e.Revenue)),
				mutedStyle.Render(e.Name))
		}
	}
	fmt.Println()
}

// PrintError prints a failure line.
func PrintError(message string) {
	fmt.Println()
	fmt.Println(accentStyle.Render("  ✗ " + message))
	fmt.Println()
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}
