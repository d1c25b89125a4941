package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/adlens/adlens/pkg/errors"
)

func TestValidateUploadAccepts(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"report.csv", "report.CSV", "report.csv.gz"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("Date,Website\n"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := ValidateUpload(path, 1<<20); err != nil {
			t.Errorf("%s rejected: %v", name, err)
		}
	}
}

func TestValidateUploadRejections(t *testing.T) {
	dir := t.TempDir()

	missing := filepath.Join(dir, "nope.csv")
	if err := ValidateUpload(missing, 0); !errors.IsCode(err, errors.CodeFileNotFound) {
		t.Errorf("missing file: %v", err)
	}

	empty := filepath.Join(dir, "empty.csv")
	os.WriteFile(empty, nil, 0644)
	if err := ValidateUpload(empty, 0); !errors.IsCode(err, errors.CodeEmptyFile) {
		t.Errorf("empty file: %v", err)
	}

	big := filepath.Join(dir, "big.csv")
	os.WriteFile(big, make([]byte, 128), 0644)
	if err := ValidateUpload(big, 64); !errors.IsCode(err, errors.CodeFileTooLarge) {
		t.Errorf("oversized file: %v", err)
	}

	xlsx := filepath.Join(dir, "report.xlsx")
	os.WriteFile(xlsx, []byte("x"), 0644)
	if err := ValidateUpload(xlsx, 0); !errors.IsCode(err, errors.CodeBadExtension) {
		t.Errorf("bad extension: %v", err)
	}
}

func TestStatusWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job.status.json")

	w := NewStatusWriter(path)
	if err := w.Write(&Status{JobID: "j1", Status: StatusProcessing, Progress: 42}); err != nil {
		t.Fatal(err)
	}

	s, err := ReadStatus(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.JobID != "j1" || s.Status != StatusProcessing || s.Progress != 42 {
		t.Errorf("round trip mismatch: %+v", s)
	}
	if s.UpdatedAt.IsZero() {
		t.Error("updatedAt not stamped")
	}

	// No temp file left behind
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left after rename")
	}
}
