package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/contract-tracker/internal/jobs"
	"github.com/dvloznov/contract-tracker/internal/logger"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), zerolog.Nop()))
	t.Cleanup(cancel)
	return ctx
}

// waitForStatus polls the store until the job reaches status or the deadline passes.
func waitForStatus(t *testing.T, store *Store, jobID string, status jobs.JobStatus) *jobs.ScanContractsJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), jobID)
		if err == nil && job.Status == status {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := store.GetJob(context.Background(), jobID)
	t.Fatalf("job %s did not reach %s, last state %+v", jobID, status, job)
	return nil
}

func TestQueue_ProcessesJob(t *testing.T) {
	ctx := testContext(t)
	store := NewStore()
	q := NewQueue(QueueConfig{Workers: 2}, store)
	defer q.Close()

	handler := func(ctx context.Context, job jobs.Job) error {
		job.(*jobs.ScanContractsJob).Message = "Found 1 new contracts!"
		return nil
	}
	if err := q.Start(ctx, handler); err != nil {
		t.Fatalf("Start: %v", err)
	}

	job := &jobs.ScanContractsJob{BankID: 4, Trigger: jobs.TriggerAPI}
	if err := q.PublishScanContracts(ctx, job); err != nil {
		t.Fatalf("PublishScanContracts: %v", err)
	}
	if job.JobID == "" {
		t.Fatal("publish did not assign a job ID")
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if done.Message != "Found 1 new contracts!" || done.StartedAt == nil || done.CompletedAt == nil {
		t.Errorf("completed job = %+v", done)
	}
}

func TestQueue_RetriesTransientFailures(t *testing.T) {
	ctx := testContext(t)
	store := NewStore()
	q := NewQueue(QueueConfig{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond}, store)
	defer q.Close()

	var attempts atomic.Int32
	handler := func(ctx context.Context, job jobs.Job) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}
	if err := q.Start(ctx, handler); err != nil {
		t.Fatalf("Start: %v", err)
	}

	job := &jobs.ScanContractsJob{BankID: 1}
	if err := q.PublishScanContracts(ctx, job); err != nil {
		t.Fatalf("PublishScanContracts: %v", err)
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if done.RetryCount != 2 || attempts.Load() != 3 {
		t.Errorf("retry count = %d, attempts = %d; want 2 and 3", done.RetryCount, attempts.Load())
	}
}

func TestQueue_GivesUpAfterMaxRetries(t *testing.T) {
	ctx := testContext(t)
	store := NewStore()
	q := NewQueue(QueueConfig{Workers: 1, MaxRetries: 1, RetryBackoff: time.Millisecond}, store)
	defer q.Close()

	var attempts atomic.Int32
	handler := func(ctx context.Context, job jobs.Job) error {
		attempts.Add(1)
		return errors.New("still broken")
	}
	_ = q.Start(ctx, handler)

	job := &jobs.ScanContractsJob{BankID: 1}
	_ = q.PublishScanContracts(ctx, job)

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if failed.Error != "still broken" || attempts.Load() != 2 {
		t.Errorf("failed job = %+v after %d attempts", failed, attempts.Load())
	}
}

func TestQueue_PermanentFailureIsNotRetried(t *testing.T) {
	ctx := testContext(t)
	store := NewStore()
	q := NewQueue(QueueConfig{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond}, store)
	defer q.Close()

	var attempts atomic.Int32
	handler := func(ctx context.Context, job jobs.Job) error {
		attempts.Add(1)
		return jobs.Permanent(errors.New("bad input"))
	}
	_ = q.Start(ctx, handler)

	job := &jobs.ScanContractsJob{BankID: 1}
	_ = q.PublishScanContracts(ctx, job)

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if failed.RetryCount != 0 || attempts.Load() != 1 {
		t.Errorf("permanent failure retried: retry count %d, attempts %d", failed.RetryCount, attempts.Load())
	}
}

func TestQueue_PublishAfterClose(t *testing.T) {
	q := NewQueue(QueueConfig{}, nil)
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := q.PublishScanContracts(context.Background(), &jobs.ScanContractsJob{BankID: 1}); err == nil {
		t.Error("publish on a closed queue succeeded")
	}
	if err := q.Start(context.Background(), func(context.Context, jobs.Job) error { return nil }); err == nil {
		t.Error("start on a closed queue succeeded")
	}
	if err := q.Stop(context.Background()); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestQueueConfig_Defaults(t *testing.T) {
	cfg := QueueConfig{MaxRetries: -1}.withDefaults()
	if cfg.BufferSize != DefaultBufferSize || cfg.Workers != DefaultWorkers || cfg.RetryBackoff != DefaultRetryBackoff {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.MaxRetries != 0 {
		t.Errorf("negative MaxRetries should disable retries, got %d", cfg.MaxRetries)
	}
}
