package models

import (
	"errors"
	"fmt"
	"time"
)

// MaxRetries caps how many times a failed report may be retried.
const MaxRetries = 3

// ErrInvalidTransition is returned for a state change the lifecycle does not allow.
var ErrInvalidTransition = errors.New("invalid report status transition")

// ErrRetryExhausted is returned when a failed report has used all its retries.
var ErrRetryExhausted = errors.New("report retry limit reached")

// ReportType selects the audience-specific report layout.
type ReportType string

// Report types.
const (
	ReportDetailed   ReportType = "detailed"
	ReportExecutive  ReportType = "executive"
	ReportCost       ReportType = "cost"
	ReportSecurity   ReportType = "security"
	ReportOperations ReportType = "operations"
)

// ReportTypes returns every report type.
func ReportTypes() []ReportType {
	return []ReportType{ReportDetailed, ReportExecutive, ReportCost, ReportSecurity, ReportOperations}
}

// Valid reports whether t is a known report type.
func (t ReportType) Valid() bool {
	switch t {
	case ReportDetailed, ReportExecutive, ReportCost, ReportSecurity, ReportOperations:
		return true
	}
	return false
}

// ParseReportType converts user input to a ReportType.
func ParseReportType(s string) (ReportType, error) {
	t := ReportType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown report type %q", s)
	}
	return t, nil
}

// ReportStatus is a state of the report lifecycle.
type ReportStatus string

// Report lifecycle states.
const (
	StatusPending    ReportStatus = "pending"
	StatusUploaded   ReportStatus = "uploaded"
	StatusProcessing ReportStatus = "processing"
	StatusGenerating ReportStatus = "generating"
	StatusCompleted  ReportStatus = "completed"
	StatusFailed     ReportStatus = "failed"
	StatusCancelled  ReportStatus = "cancelled"
)

// transitions lists the allowed forward moves. failed -> processing is only
// reachable through Report.Retry.
var transitions = map[ReportStatus][]ReportStatus{
	StatusPending:    {StatusUploaded, StatusFailed, StatusCancelled},
	StatusUploaded:   {StatusProcessing, StatusFailed, StatusCancelled},
	StatusProcessing: {StatusGenerating, StatusCompleted, StatusFailed, StatusCancelled},
	StatusGenerating: {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted:  {StatusGenerating},
}

// CanTransition reports whether from -> to is a legal non-retry transition.
func CanTransition(from, to ReportStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// InFlight reports whether a job is (or claims to be) executing.
func (s ReportStatus) InFlight() bool {
	return s == StatusProcessing || s == StatusGenerating
}

// Terminal reports whether no further work can happen without a retry.
func (s ReportStatus) Terminal() bool {
	return s == StatusFailed || s == StatusCancelled
}

// Report is one generation unit.
type Report struct {
	CreatedAt           time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at" db:"updated_at"`
	UploadedAt          *time.Time   `json:"uploaded_at,omitempty" db:"uploaded_at"`
	ProcessingStartedAt *time.Time   `json:"processing_started_at,omitempty" db:"processing_started_at"`
	GeneratingStartedAt *time.Time   `json:"generating_started_at,omitempty" db:"generating_started_at"`
	CompletedAt         *time.Time   `json:"completed_at,omitempty" db:"completed_at"`
	FailedAt            *time.Time   `json:"failed_at,omitempty" db:"failed_at"`
	CancelledAt         *time.Time   `json:"cancelled_at,omitempty" db:"cancelled_at"`
	ID                  string       `json:"id" db:"id"`
	Title               string       `json:"title" db:"title"`
	ReportType          ReportType   `json:"report_type" db:"report_type"`
	Status              ReportStatus `json:"status" db:"status"`
	SourceRef           string       `json:"source_ref,omitempty" db:"source_ref"`
	HTMLRef             string       `json:"html_ref,omitempty" db:"html_ref"`
	PDFRef              string       `json:"pdf_ref,omitempty" db:"pdf_ref"`
	Engine              string       `json:"engine,omitempty" db:"engine"`
	ErrorMessage        string       `json:"error_message,omitempty" db:"error_message"`
	RetryCount          int          `json:"retry_count" db:"retry_count"`
}

// CanRetry reports whether a failed report may be retried.
func (r *Report) CanRetry() bool {
	return r.Status == StatusFailed && r.RetryCount < MaxRetries
}

// Transition moves the report to status `to`, stamping the matching timestamp.
func (r *Report) Transition(to ReportStatus, now time.Time) error {
	if !CanTransition(r.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
	}
	r.Status = to
	r.UpdatedAt = now
	r.stamp(to, now)
	return nil
}

// Retry moves a failed report back to processing and counts the attempt.
// The counter is never reset.
func (r *Report) Retry(now time.Time) error {
	if r.Status != StatusFailed {
		return fmt.Errorf("%w: retry from %s", ErrInvalidTransition, r.Status)
	}
	if !r.CanRetry() {
		return fmt.Errorf("%w: %d of %d used", ErrRetryExhausted, r.RetryCount, MaxRetries)
	}
	r.RetryCount++
	r.Status = StatusProcessing
	r.ErrorMessage = ""
	r.UpdatedAt = now
	r.stamp(StatusProcessing, now)
	return nil
}

// Fail moves the report to failed with a human readable message.
func (r *Report) Fail(message string, now time.Time) error {
	if err := r.Transition(StatusFailed, now); err != nil {
		return err
	}
	r.ErrorMessage = message
	return nil
}

func (r *Report) stamp(to ReportStatus, now time.Time) {
	t := now
	switch to {
	case StatusUploaded:
		r.UploadedAt = &t
	case StatusProcessing:
		r.ProcessingStartedAt = &t
	case StatusGenerating:
		r.GeneratingStartedAt = &t
	case StatusCompleted:
		r.CompletedAt = &t
	case StatusFailed:
		r.FailedAt = &t
	case StatusCancelled:
		r.CancelledAt = &t
	}
}

// WarningKind tells where an ingest warning came from.
type WarningKind string

// Warning kinds.
const (
	WarningParse     WarningKind = "parse"
	WarningNormalize WarningKind = "normalize"
)

// IngestWarning records a skipped or suspicious input row.
type IngestWarning struct {
	ReportID string      `json:"report_id" db:"report_id"`
	Kind     WarningKind `json:"kind" db:"kind"`
	Reason   string      `json:"reason" db:"reason"`
	Line     int         `json:"line" db:"line"`
}

// Artifact references the rendered outputs for one (report, type) pair.
type Artifact struct {
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	ReportID   string     `json:"report_id" db:"report_id"`
	ReportType ReportType `json:"report_type" db:"report_type"`
	HTMLRef    string     `json:"html_ref" db:"html_ref"`
	PDFRef     string     `json:"pdf_ref" db:"pdf_ref"`
	Engine     string     `json:"engine" db:"engine"`
	ChartCount int        `json:"chart_count" db:"chart_count"`
}
