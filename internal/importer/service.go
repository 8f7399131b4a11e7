// Package importer implements the asynchronous bulk-import pipeline: uploads
// are spooled to disk, parsed row by row, validated, upserted into product
// storage in batches, and observed through a per-job progress broadcast.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Nandanaskartha/acme-product-uploader/internal/event"
	"github.com/Nandanaskartha/acme-product-uploader/internal/store"
)

// ErrJobNotFound is returned when a job ID is unknown or already cleaned up.
var ErrJobNotFound = errors.New("import job not found")

// ErrUnsupportedFormat is returned for uploads that are neither CSV nor XLSX.
var ErrUnsupportedFormat = errors.New("unsupported file format, expected .csv or .xlsx")

// ProductWriter is the slice of product storage the pipeline needs.
type ProductWriter interface {
	UpsertProducts(ctx context.Context, batch []store.ProductInput) error
}

// Options configures a Service.
type Options struct {
	// BatchSize is the number of validated rows upserted per statement.
	BatchSize int

	// MaxConcurrent bounds parallel import jobs; MaxWait bounds how long an
	// upload waits for a free slot.
	MaxConcurrent int
	MaxWait       time.Duration

	// JobTimeout cancels a job that runs too long.
	JobTimeout time.Duration

	// SpoolDir is where uploads are spooled. Empty means os.TempDir().
	SpoolDir string

	// RetainFinished is how long finished jobs stay queryable before the
	// tracker forgets them.
	RetainFinished time.Duration
}

// Service runs import jobs and tracks their state. Each job's state is owned
// exclusively by its processing goroutine; everyone else sees snapshots.
type Service struct {
	products ProductWriter
	bus      *event.Bus
	limiter  *limiter
	opts     Options

	mu   sync.RWMutex
	jobs map[string]*activeJob

	wg sync.WaitGroup
}

// NewService creates an import service publishing completion events on bus.
func NewService(products ProductWriter, bus *event.Bus, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 10 * time.Minute
	}
	if opts.SpoolDir == "" {
		opts.SpoolDir = os.TempDir()
	}
	if opts.RetainFinished <= 0 {
		opts.RetainFinished = 5 * time.Minute
	}

	return &Service{
		products: products,
		bus:      bus,
		limiter:  newLimiter(opts.MaxConcurrent, opts.MaxWait),
		opts:     opts,
		jobs:     make(map[string]*activeJob),
	}
}

// Start accepts an upload, spools it to disk, and begins processing in the
// background. It returns the new job's ID immediately; use Subscribe to
// follow progress. Every upload gets a fresh job; jobs never share state.
func (s *Service) Start(ctx context.Context, fileName string, upload io.Reader) (string, error) {
	open, err := sourceOpener(fileName)
	if err != nil {
		return "", err
	}

	if err := s.limiter.acquire(ctx); err != nil {
		return "", err
	}

	jobID := uuid.New().String()

	spoolPath, err := s.spool(jobID, fileName, upload)
	if err != nil {
		s.limiter.release()
		return "", err
	}

	job := &activeJob{
		id:       jobID,
		fileName: fileName,
		status:   StatusQueued,
	}

	s.mu.Lock()
	s.jobs[jobID] = job
	s.mu.Unlock()

	jobCtx, cancel := context.WithTimeout(context.Background(), s.opts.JobTimeout)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.limiter.release()
		defer cancel()
		defer os.Remove(spoolPath)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in import job", "job_id", jobID, "panic", r)
				job.update(func() {
					job.status = StatusError
					job.message = fmt.Sprintf("internal error: %v", r)
				})
				job.finish()
			}
			s.forget(jobID, s.opts.RetainFinished)
		}()

		s.process(jobCtx, job, spoolPath, open)
	}()

	return jobID, nil
}

// Subscribe returns a channel of full-state snapshots for the job. The
// channel delivers the current state immediately, then every broadcast
// update, and closes after the terminal snapshot. Slow subscribers may miss
// intermediate snapshots but always receive the terminal one.
func (s *Service) Subscribe(jobID string) (<-chan Snapshot, error) {
	s.mu.RLock()
	job, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.subscribe(), nil
}

// Status returns the current snapshot of a job without subscribing.
func (s *Service) Status(jobID string) (Snapshot, error) {
	s.mu.RLock()
	job, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if !ok {
		return Snapshot{}, ErrJobNotFound
	}
	return job.Snapshot(), nil
}

// ActiveCount returns how many jobs are currently processing.
func (s *Service) ActiveCount() int {
	return s.limiter.activeCount()
}

// Wait blocks until all running jobs finish. Used during shutdown.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sourceOpener picks the row source constructor for a file name.
func sourceOpener(fileName string) (func(string) (RowSource, error), error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return openCSV, nil
	case ".xlsx":
		return openXLSX, nil
	default:
		return nil, ErrUnsupportedFormat
	}
}

// spool copies the upload to a job-scoped file in 1MB chunks so processing
// never holds the request body or the whole file in memory.
func (s *Service) spool(jobID, fileName string, upload io.Reader) (string, error) {
	path := filepath.Join(s.opts.SpoolDir, jobID+filepath.Ext(fileName))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("spool upload: %w", err)
	}
	defer f.Close()

	buf := make([]byte, 1<<20)
	if _, err := io.CopyBuffer(f, upload, buf); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("spool upload: %w", err)
	}
	return path, nil
}

// forget drops a job from tracking after a delay, giving late subscribers a
// window to fetch the terminal state.
func (s *Service) forget(jobID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.jobs, jobID)
		s.mu.Unlock()
	})
}
