package ingest

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adlens/adlens/pkg/aggregate"
	"github.com/adlens/adlens/pkg/errors"
)

func writeUpload(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestProcessor(dir string) *Processor {
	return &Processor{
		ResultsDir:       dir,
		ProgressInterval: time.Hour, // only terminal status writes
		SampleSize:       20,
	}
}

func runJob(t *testing.T, p *Processor, dir, filePath string) (*Status, error) {
	t.Helper()
	info, err := os.Stat(filePath)
	if err != nil {
		t.Fatal(err)
	}
	job := &Job{
		ID:         "job1",
		FileName:   filepath.Base(filePath),
		FilePath:   filePath,
		StatusPath: filepath.Join(dir, "job1.status.json"),
		FileSize:   info.Size(),
	}
	procErr := p.ProcessFile(context.Background(), job)

	status, err := ReadStatus(job.StatusPath)
	if err != nil {
		t.Fatalf("status not written: %v", err)
	}
	return status, procErr
}

func TestProcessFileEndToEnd(t *testing.T) {
	dir := t.TempDir()
	csv := "Date,Website,Country,Revenue,Impressions,Requests\n" +
		"2024-01-01,site.com,US,10.00,1000,2000\n" +
		"2024-01-01,site.com,DE,5.00,500,1000\n" +
		"2024-01-02,other.com,US,2.00,100,400\n"
	path := writeUpload(t, dir, "report.csv", csv)

	status, err := runJob(t, newTestProcessor(dir), dir, path)
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}

	if status.Status != StatusCompleted || status.Progress != 100 {
		t.Errorf("terminal status = %+v", status)
	}
	if status.ProcessedLines != 3 {
		t.Errorf("processedLines = %d, want 3", status.ProcessedLines)
	}

	data, err := os.ReadFile(status.ResultPath)
	if err != nil {
		t.Fatalf("result not persisted: %v", err)
	}
	var res aggregate.Result
	if err := json.Unmarshal(data, &res); err != nil {
		t.Fatal(err)
	}
	if res.Summary.TotalRevenue != 17.00 {
		t.Errorf("totalRevenue = %v, want 17.00", res.Summary.TotalRevenue)
	}
	if len(res.TopWebsites) != 2 || res.TopWebsites[0].Name != "site.com" {
		t.Errorf("topWebsites = %+v", res.TopWebsites)
	}

	// Source deleted after success
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("source file not removed")
	}
}

func TestProcessFileGzip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.csv.gz")

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gw := gzip.NewWriter(f)
	gw.Write([]byte("Date,Website,Revenue\n2024-01-01,site.com,3.50\n"))
	gw.Close()
	f.Close()

	status, err := runJob(t, newTestProcessor(dir), dir, path)
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if status.Status != StatusCompleted || status.ProcessedLines != 1 {
		t.Errorf("status = %+v", status)
	}
}

func TestProcessFileMissingRequiredColumn(t *testing.T) {
	dir := t.TempDir()
	path := writeUpload(t, dir, "report.csv", "Country,Revenue\nUS,1.00\n")

	p := newTestProcessor(dir)
	p.KeepSource = true

	status, err := runJob(t, p, dir, path)
	if !errors.IsCode(err, errors.CodeMissingColumn) {
		t.Fatalf("err = %v, want missing column", err)
	}
	if status.Status != StatusFailed || status.FailedAt == nil {
		t.Errorf("failed status = %+v", status)
	}
	if status.Error == "" {
		t.Error("failed status has no error message")
	}

	// No partial result persisted
	if _, err := os.Stat(filepath.Join(dir, "job1.json")); !os.IsNotExist(err) {
		t.Error("partial result persisted on failure")
	}
	// Failed uploads stay on disk for inspection
	if _, err := os.Stat(path); err != nil {
		t.Error("source removed on failure")
	}
}

func TestProcessFileSkipsBlankAndGarbageRows(t *testing.T) {
	dir := t.TempDir()
	csv := "Date,Website,Revenue\n" +
		"\n" +
		"2024-01-01,site.com,2.00\n" +
		",missing-date.com,9.00\n" +
		"garbage-without-columns\n" +
		"2024-01-02,site.com,1.00\n"
	path := writeUpload(t, dir, "report.csv", csv)

	status, err := runJob(t, newTestProcessor(dir), dir, path)
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	// The dateless row is skipped and the blank line ignored. The garbage
	// line still decodes best-effort (its text lands in the date column),
	// so it counts as processed.
	if status.ProcessedLines != 3 {
		t.Errorf("processedLines = %d, want 3", status.ProcessedLines)
	}
}

func TestProcessFileHeaderOnly(t *testing.T) {
	dir := t.TempDir()
	path := writeUpload(t, dir, "report.csv", "Date,Website,Revenue\n")

	status, err := runJob(t, newTestProcessor(dir), dir, path)
	if err != nil {
		t.Fatalf("header-only file should succeed with an empty result: %v", err)
	}
	if status.Status != StatusCompleted || status.ProcessedLines != 0 {
		t.Errorf("status = %+v", status)
	}
}

func TestReadLineTrailingNewline(t *testing.T) {
	// A file ending in a newline must drain cleanly: the final empty read
	// reports io.EOF, never a row error.
	br := bufio.NewReader(strings.NewReader("a\nb\n"))

	line, eof, err := readLine(br)
	if line != "a" || eof || err != nil {
		t.Fatalf("first read = (%q, %v, %v)", line, eof, err)
	}
	line, eof, err = readLine(br)
	if line != "b" || eof || err != nil {
		t.Fatalf("second read = (%q, %v, %v)", line, eof, err)
	}
	if _, _, err = readLine(br); err != io.EOF {
		t.Fatalf("final read err = %v, want io.EOF", err)
	}
}

func TestReadLineNoTrailingNewline(t *testing.T) {
	br := bufio.NewReader(strings.NewReader("a\nb"))

	if line, eof, err := readLine(br); line != "a" || eof || err != nil {
		t.Fatalf("first read = (%q, %v, %v)", line, eof, err)
	}
	if line, eof, err := readLine(br); line != "b" || !eof || err != nil {
		t.Fatalf("final read = (%q, %v, %v)", line, eof, err)
	}
}

func TestProcessFileCanceled(t *testing.T) {
	dir := t.TempDir()
	path := writeUpload(t, dir, "report.csv", "Date,Website\n2024-01-01,a.com\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	info, _ := os.Stat(path)
	job := &Job{
		ID: "job1", FileName: "report.csv", FilePath: path,
		StatusPath: filepath.Join(dir, "job1.status.json"), FileSize: info.Size(),
	}
	err := newTestProcessor(dir).ProcessFile(ctx, job)
	if !errors.IsCode(err, errors.CodeContextCanceled) {
		t.Errorf("err = %v, want context canceled", err)
	}
}
