package importer

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/Nandanaskartha/acme-product-uploader/internal/event"
	"github.com/Nandanaskartha/acme-product-uploader/internal/store"
)

// contextCheckInterval is how often (in rows) the processor polls for
// cancellation. Checking every row would be wasteful.
const contextCheckInterval = 100

// process runs one import job to completion. It is the sole mutator of the
// job's state: rows are validated, applied in batches, and per-row failures
// are counted without ever aborting the stream. Only an unusable file or a
// storage failure ends the job in StatusError.
func (s *Service) process(ctx context.Context, job *activeJob, path string, open func(string) (RowSource, error)) {
	started := time.Now()
	logger := slog.With("job_id", job.id, "file", job.fileName)

	// Pre-scan pass: the exact row total makes percent monotonic and exact.
	countSrc, err := open(path)
	if err != nil {
		s.fail(job, err.Error())
		return
	}
	total, err := countRows(countSrc)
	if err != nil {
		s.fail(job, err.Error())
		return
	}
	if total == 0 {
		s.fail(job, "file has no data rows")
		return
	}

	src, err := open(path)
	if err != nil {
		s.fail(job, err.Error())
		return
	}
	defer src.Close()

	job.update(func() {
		job.total = total
		job.status = StatusProcessing
	})
	job.notify()

	// Notify at least every 1% of progress, and at every batch boundary.
	notifyStep := total / 100
	if notifyStep < 1 {
		notifyStep = 1
	}

	batch := make([]store.ProductInput, 0, s.opts.BatchSize)
	consumed := 0

	// Percent holds at 99 until the terminal snapshot: only a complete job
	// ever reports 100.
	progressPct := func() int {
		pct := consumed * 100 / total
		if pct > 99 {
			pct = 99
		}
		return pct
	}

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.products.UpsertProducts(ctx, batch); err != nil {
			return err
		}
		applied := len(batch)
		batch = batch[:0]
		job.update(func() {
			job.processed += applied
			job.percent = progressPct()
		})
		return nil
	}

	for {
		if consumed%contextCheckInterval == 0 && ctx.Err() != nil {
			s.fail(job, "cancelled: "+ctx.Err().Error())
			return
		}

		row, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Unrecoverable read failure, not tied to any one row.
			s.fail(job, err.Error())
			return
		}
		consumed++

		if row.Err != nil {
			job.update(func() {
				job.recordFailure(row.Line, row.Err.Error())
				job.percent = progressPct()
			})
		} else {
			batch = append(batch, row.Input)
			if len(batch) >= s.opts.BatchSize {
				if err := flush(); err != nil {
					s.fail(job, "storage failure: "+err.Error())
					return
				}
			}
		}

		if consumed%notifyStep == 0 {
			job.notify()
		}
	}

	if err := flush(); err != nil {
		s.fail(job, "storage failure: "+err.Error())
		return
	}

	var snap Snapshot
	job.update(func() {
		job.percent = 100
		job.status = StatusComplete
		snap = job.snapshotLocked()
	})
	job.finish()

	logger.Info("import complete",
		"processed", snap.Processed,
		"errors", snap.Errors,
		"total", snap.Total,
		"duration", time.Since(started),
	)

	s.bus.Publish(event.New(event.TypeCSVCompleted, map[string]any{
		"job_id":    snap.JobID,
		"processed": snap.Processed,
		"errors":    snap.Errors,
	}))
}

// fail moves the job to its terminal error state. No completion event is
// published for failed jobs.
func (s *Service) fail(job *activeJob, reason string) {
	job.update(func() {
		job.status = StatusError
		job.message = reason
	})
	job.finish()
	slog.Warn("import failed", "job_id", job.id, "file", job.fileName, "reason", reason)
}
