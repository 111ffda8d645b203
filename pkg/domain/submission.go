package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	ErrInvalidTarget  = errors.New("invalid submission target")
	ErrInvalidOptions = errors.New("invalid submission options")
)

var siteIDPattern = regexp.MustCompile(`^\d+$`)

// Row maps a CSV header to its sanitized cell value. Its position in the
// parsed slice is the row's identity.
type Row map[string]string

type SubmissionTarget struct {
	SiteID   string `json:"siteId" yaml:"siteId"`
	FormName string `json:"formName" yaml:"formName"`
}

func (t SubmissionTarget) Validate() error {
	if !siteIDPattern.MatchString(t.SiteID) {
		return fmt.Errorf("%w: siteId must be numeric, got %q", ErrInvalidTarget, t.SiteID)
	}
	if strings.TrimSpace(t.FormName) == "" {
		return fmt.Errorf("%w: formName is required", ErrInvalidTarget)
	}
	return nil
}

const (
	DefaultRequestTimeoutSeconds = 10
	DefaultDelayBetweenBatchesMs = 100
	DefaultMaxConcurrentRequests = 5
)

type SubmissionOptions struct {
	RequestTimeoutSeconds int  `json:"requestTimeoutSeconds" yaml:"requestTimeoutSeconds"`
	DelayBetweenBatchesMs int  `json:"delayBetweenBatchesMs" yaml:"delayBetweenBatchesMs"`
	StaggerWithinBatchMs  int  `json:"staggerWithinBatchMs" yaml:"staggerWithinBatchMs"`
	MaxConcurrentRequests int  `json:"maxConcurrentRequests" yaml:"maxConcurrentRequests"`
	MaxRequestsPerMinute  int  `json:"maxRequestsPerMinute,omitempty" yaml:"maxRequestsPerMinute"`
	ValidateOnly          bool `json:"validateOnly" yaml:"validateOnly"`
}

func DefaultSubmissionOptions() SubmissionOptions {
	return SubmissionOptions{
		RequestTimeoutSeconds: DefaultRequestTimeoutSeconds,
		DelayBetweenBatchesMs: DefaultDelayBetweenBatchesMs,
		MaxConcurrentRequests: DefaultMaxConcurrentRequests,
	}
}

// ApplyDefaults fills the zero-valued timeout and concurrency. A zero delay is
// a legitimate choice and is left alone.
func (o *SubmissionOptions) ApplyDefaults() {
	if o.RequestTimeoutSeconds == 0 {
		o.RequestTimeoutSeconds = DefaultRequestTimeoutSeconds
	}
	if o.MaxConcurrentRequests == 0 {
		o.MaxConcurrentRequests = DefaultMaxConcurrentRequests
	}
}

func (o SubmissionOptions) Validate() error {
	var errs []string
	if o.RequestTimeoutSeconds < 1 || o.RequestTimeoutSeconds > 60 {
		errs = append(errs, "requestTimeoutSeconds must be in [1,60]")
	}
	if o.DelayBetweenBatchesMs < 0 || o.DelayBetweenBatchesMs > 5000 {
		errs = append(errs, "delayBetweenBatchesMs must be in [0,5000]")
	}
	if o.StaggerWithinBatchMs < 0 || o.StaggerWithinBatchMs > 5000 {
		errs = append(errs, "staggerWithinBatchMs must be in [0,5000]")
	}
	if o.MaxConcurrentRequests < 1 || o.MaxConcurrentRequests > 20 {
		errs = append(errs, "maxConcurrentRequests must be in [1,20]")
	}
	if o.MaxRequestsPerMinute < 0 {
		errs = append(errs, "maxRequestsPerMinute must be >= 0")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidOptions, strings.Join(errs, "; "))
	}
	return nil
}

func (o SubmissionOptions) RequestTimeout() time.Duration {
	return time.Duration(o.RequestTimeoutSeconds) * time.Second
}

func (o SubmissionOptions) DelayBetweenBatches() time.Duration {
	return time.Duration(o.DelayBetweenBatchesMs) * time.Millisecond
}

func (o SubmissionOptions) StaggerWithinBatch() time.Duration {
	return time.Duration(o.StaggerWithinBatchMs) * time.Millisecond
}

type RowOutcome struct {
	RowNumber        int    `json:"rowNumber"`
	Success          bool   `json:"success"`
	StatusCode       *int   `json:"statusCode,omitempty"`
	ProcessingTimeMs int64  `json:"processingTimeMs"`
	URL              string `json:"url,omitempty"`
	ParameterCount   int    `json:"parameterCount"`
	ResponseSize     *int64 `json:"responseSize,omitempty"`
	Error            string `json:"error,omitempty"`
	Data             Row    `json:"data"`
}

type JobSummary struct {
	TotalRows               int     `json:"totalRows"`
	SuccessfulRequests      int     `json:"successfulRequests"`
	FailedRequests          int     `json:"failedRequests"`
	SuccessRate             float64 `json:"successRate"`
	TotalProcessingTimeMs   int64   `json:"totalProcessingTimeMs"`
	AverageProcessingTimeMs float64 `json:"averageProcessingTimeMs"`
}

type ValidationReport struct {
	TotalRows      int      `json:"totalRows"`
	ValidRows      int      `json:"validRows"`
	SampleRequests []string `json:"sampleRequests"`
}

// JobOutput is the payload returned to the caller of a run. Exactly one of
// Summary and Validation is set.
type JobOutput struct {
	Summary    *JobSummary       `json:"summary,omitempty"`
	Validation *ValidationReport `json:"validation,omitempty"`
	Results    []RowOutcome      `json:"results"`
	Timestamp  time.Time         `json:"timestamp"`
}
