package domain

import (
	"encoding"
	"time"
)

type Operation string

const (
	OpSubmit   Operation = "submit"
	OpValidate Operation = "validate"
)

type JobStatus string

const (
	StatusIdle      JobStatus = "IDLE"
	StatusRunning   JobStatus = "RUNNING"
	StatusCompleted JobStatus = "COMPLETED"
	StatusFailed    JobStatus = "FAILED"
	StatusCanceled  JobStatus = "CANCELED"
)

// Finished reports whether the status is terminal.
func (s JobStatus) Finished() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

type Job struct {
	ID            string            `json:"id"`
	Operation     Operation         `json:"operation"`
	Status        JobStatus         `json:"status"`
	Target        SubmissionTarget  `json:"target"`
	Options       SubmissionOptions `json:"options"`
	TotalRows     int               `json:"totalRows"`
	ProcessedRows int               `json:"processedRows"`
	Progress      string            `json:"progress,omitempty"`
	Summary       *JobSummary       `json:"summary,omitempty"`
	Validation    *ValidationReport `json:"validation,omitempty"`
	Error         string            `json:"error,omitempty"`
	Webhook       string            `json:"webhook,omitempty"`
	ExportURL     string            `json:"exportUrl,omitempty"`
	// TraceParent/TraceState link the background run to the request that created it.
	TraceParent string     `json:"traceParent,omitempty"`
	TraceState  string     `json:"traceState,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}

type CreateJobRequest struct {
	Operation      Operation         `json:"operation"`
	SiteID         string            `json:"siteId" binding:"required"`
	FormName       string            `json:"formName" binding:"required"`
	CSV            string            `json:"csv" binding:"required"`
	Encoding       string            `json:"encoding,omitempty"`
	Delimiter      string            `json:"delimiter,omitempty"`
	Options        SubmissionOptions `json:"options"`
	Webhook        string            `json:"webhook,omitempty"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty"`
}

var (
	_ encoding.BinaryMarshaler = Operation("")
	_ encoding.TextMarshaler   = Operation("")
	_ encoding.BinaryMarshaler = JobStatus("")
	_ encoding.TextMarshaler   = JobStatus("")
)

func (o Operation) MarshalBinary() ([]byte, error) { return []byte(string(o)), nil }
func (o Operation) MarshalText() ([]byte, error)   { return []byte(string(o)), nil }

func (s JobStatus) MarshalBinary() ([]byte, error) { return []byte(string(s)), nil }
func (s JobStatus) MarshalText() ([]byte, error)   { return []byte(string(s)), nil }
