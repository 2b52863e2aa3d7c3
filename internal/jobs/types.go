package jobs

import (
	"context"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeScanContracts represents a contract scan of one bank.
	JobTypeScanContracts JobType = "scan_contracts"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// Trigger names what requested a scan.
type Trigger string

const (
	TriggerAPI      Trigger = "api"
	TriggerImport   Trigger = "import"
	TriggerCLI      Trigger = "cli"
	TriggerSchedule Trigger = "schedule"
)

// ScanContractsJob represents a job to run the contract scan over one bank.
type ScanContractsJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// BankID is the bank whose unlinked transactions are scanned.
	BankID int64 `json:"bank_id"`

	// Trigger is what requested the scan.
	Trigger Trigger `json:"trigger,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Message is the scan summary shown to the user, e.g. "Found 2 new contracts!".
	Message string `json:"message,omitempty"`

	// NewContracts and ClosedContracts count what the scan changed.
	NewContracts    int `json:"new_contracts"`
	ClosedContracts int `json:"closed_contracts"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *ScanContractsJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *ScanContractsJob) GetType() JobType {
	return JobTypeScanContracts
}

// GetStatus implements the Job interface.
func (j *ScanContractsJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
// This abstraction allows for different queue implementations (in-memory, Cloud Tasks, Pub/Sub).
type Publisher interface {
	// PublishScanContracts publishes a contract scan job.
	PublishScanContracts(ctx context.Context, job *ScanContractsJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// An error marked permanent (see Permanent) fails the job without retries.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
// This allows tracking job execution across service restarts.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ScanContractsJob) error

	// GetJob retrieves a job by ID. A missing job is an error wrapping domain.ErrNotFound.
	GetJob(ctx context.Context, jobID string) (*ScanContractsJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ScanContractsJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// BankID filters jobs by bank. Zero matches every bank.
	BankID int64

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
