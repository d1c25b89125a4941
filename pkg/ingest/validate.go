package ingest

import (
	"os"

	"github.com/adlens/adlens/pkg/errors"
	"github.com/adlens/adlens/pkg/util"
)

// ValidateUpload checks an uploaded file before a job is admitted. All
// failures here are validation errors surfaced synchronously to the caller;
// nothing past this point rejects the file as a whole except a missing
// required column in the header.
func ValidateUpload(path string, maxSize int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrap(err, errors.CodeFileNotFound, "uploaded file not found").
			WithContext("path", path)
	}

	if info.Size() == 0 {
		return errors.New(errors.CodeEmptyFile, "uploaded file is empty").
			WithContext("path", path)
	}

	if maxSize > 0 && info.Size() > maxSize {
		return errors.FileTooLarge(info.Size(), maxSize)
	}

	if util.BaseFormat(path) != ".csv" {
		return errors.New(errors.CodeBadExtension, "only .csv and .csv.gz uploads are accepted").
			WithContext("path", path)
	}

	return nil
}
