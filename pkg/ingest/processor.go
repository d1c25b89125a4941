package ingest

import (
	"bufio"
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adlens/adlens/pkg/aggregate"
	"github.com/adlens/adlens/pkg/errors"
	"github.com/adlens/adlens/pkg/normalize"
	"github.com/adlens/adlens/pkg/parser"
	"github.com/adlens/adlens/pkg/util"
)

// progressCeiling is the highest progress value reported while rows are
// still streaming. 100 is reserved for the terminal completed status.
const progressCeiling = 95

// cancelCheckEvery bounds how many lines are read between context checks.
const cancelCheckEvery = 1024

// ResultSink receives the detailed row buffer after a job's snapshot is
// persisted, for loading into the permanent store.
type ResultSink interface {
	LoadRows(ctx context.Context, fileID, fileName string, rows []aggregate.DetailedRow) error
}

// Processor drives one file through parse, normalize, and aggregate, and
// persists the status and result resources. Safe for concurrent use; all
// per-job state lives on the stack of ProcessFile.
type Processor struct {
	ResultsDir       string
	ProgressInterval time.Duration
	SampleSize       int

	// Sink, when set, receives the detailed rows after the snapshot is
	// written. A sink failure fails the job.
	Sink ResultSink

	// KeepSource disables the best-effort source deletion after success.
	KeepSource bool
}

// ProcessFile ingests one file end to end. It writes processing status
// snapshots at a bounded frequency, and on return the status resource always
// holds a terminal state. The returned error mirrors what was written to the
// failed status.
func (p *Processor) ProcessFile(ctx context.Context, job *Job) error {
	status := NewStatusWriter(job.StatusPath)
	agg := aggregate.NewWithSampleCap(p.SampleSize)
	defer agg.Cleanup()

	if err := p.run(ctx, job, status, agg); err != nil {
		now := time.Now().UTC()
		if werr := status.Write(&Status{
			JobID:    job.ID,
			FileName: job.FileName,
			Status:   StatusFailed,
			Error:    errors.Sanitize(err),
			FailedAt: &now,
		}); werr != nil {
			log.Printf("[ingest] job %s: failed status write: %v", job.ID, werr)
		}
		return err
	}
	return nil
}

func (p *Processor) run(ctx context.Context, job *Job, status *StatusWriter, agg *aggregate.Aggregator) error {
	reader, cleanup, err := util.OpenFile(job.FilePath)
	if err != nil {
		return errors.Wrap(err, errors.CodeFileNotFound, "open upload").
			WithContext("path", job.FilePath)
	}
	defer cleanup()

	if err := status.Write(&Status{
		JobID:    job.ID,
		FileName: job.FileName,
		Status:   StatusProcessing,
	}); err != nil {
		return errors.Wrap(err, errors.CodeStatusWrite, "initial status write")
	}

	br := bufio.NewReaderSize(reader, 256<<10)

	header, headerOnly, err := readLine(br)
	if err != nil {
		if err == io.EOF {
			return errors.New(errors.CodeEmptyFile, "file has no header row")
		}
		return errors.Wrap(err, errors.CodeReadFailed, "read header")
	}

	columns, missing := parser.BuildColumnMap(parser.ParseLine(header))
	if len(missing) > 0 {
		names := make([]string, len(missing))
		for i, f := range missing {
			names[i] = string(f)
		}
		return errors.MissingColumns(names)
	}

	decoder := normalize.NewDecoder(columns)

	var (
		processedBytes = int64(len(header)) + 1
		lastStatus     = time.Now()
	)

	for lines := int64(0); !headerOnly; lines++ {
		if lines%cancelCheckEvery == 0 {
			select {
			case <-ctx.Done():
				return errors.ContextCanceled("file processing").
					WithContext("jobId", job.ID)
			default:
			}
		}

		line, eof, err := readLine(br)
		if err == io.EOF {
			// A file ending in a newline yields one final empty read.
			break
		}
		if err != nil {
			return errors.Wrap(err, errors.CodeReadFailed, "read row").
				WithContext("line", lines+2)
		}
		if line != "" {
			processedBytes += int64(len(line)) + 1
			if strings.TrimSpace(line) != "" {
				agg.ProcessRow(decoder.Decode(parser.ParseLine(line)))
			}
		}
		if eof {
			break
		}

		if p.ProgressInterval > 0 && time.Since(lastStatus) >= p.ProgressInterval {
			lastStatus = time.Now()
			if err := status.Write(&Status{
				JobID:          job.ID,
				FileName:       job.FileName,
				Status:         StatusProcessing,
				Progress:       progress(processedBytes, job.FileSize),
				ProcessedLines: agg.Rows(),
			}); err != nil {
				log.Printf("[ingest] job %s: progress write: %v", job.ID, err)
			}
		}
	}

	result := agg.Result(job.ID, job.FileName)

	resultPath := filepath.Join(p.ResultsDir, job.ID+".json")
	if err := WriteJSON(resultPath, result); err != nil {
		return errors.Wrap(err, errors.CodeResultWrite, "persist result snapshot")
	}

	if p.Sink != nil {
		if err := p.Sink.LoadRows(ctx, job.ID, job.FileName, agg.Detailed()); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	if err := status.Write(&Status{
		JobID:          job.ID,
		FileName:       job.FileName,
		Status:         StatusCompleted,
		Progress:       100,
		ProcessedLines: agg.Rows(),
		SkippedLines:   agg.Skipped(),
		ResultPath:     resultPath,
		CompletedAt:    &now,
	}); err != nil {
		return errors.Wrap(err, errors.CodeStatusWrite, "completed status write")
	}

	if !p.KeepSource {
		if err := os.Remove(job.FilePath); err != nil {
			log.Printf("[ingest] job %s: source cleanup: %v", job.ID, err)
		}
	}

	log.Printf("[ingest] job %s: completed, %d rows (%d skipped)",
		job.ID, agg.Rows(), agg.Skipped())
	return nil
}

// readLine returns the next line without its terminator. eof is true when
// this is the final line of the stream; a final line without a terminator is
// still returned.
func readLine(br *bufio.Reader) (line string, eof bool, err error) {
	raw, err := br.ReadString('\n')
	if err == io.EOF {
		if raw == "" {
			return "", true, io.EOF
		}
		return trimEnding(raw), true, nil
	}
	if err != nil {
		return "", false, err
	}
	return trimEnding(raw), false, nil
}

func trimEnding(s string) string {
	return strings.TrimRight(s, "\r\n")
}

// progress estimates completion from byte position, never reporting the
// ceiling until the terminal status. Compressed inputs can overshoot their
// on-disk size, so the cap also keeps that case sane.
func progress(processed, total int64) int {
	if total <= 0 {
		return 0
	}
	pct := int(processed * 100 / total)
	if pct > progressCeiling {
		return progressCeiling
	}
	return pct
}
