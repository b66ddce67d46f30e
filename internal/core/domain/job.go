package domain

import (
	"errors"
	"fmt"
)

type JobKind string

const (
	JobKindGenerateSite  JobKind = "generate_site"
	JobKindEditSection   JobKind = "edit_section"
	JobKindGenerateImage JobKind = "generate_image"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// FailureCode classifies why a job attempt failed. The queue retries every
// class the same way; the code exists so operators and the API can tell a
// provider hiccup from a permanently missing section.
type FailureCode string

const (
	FailureTransient           FailureCode = "transient"
	FailureInvalidOutput       FailureCode = "invalid_output"
	FailureMissingEntity       FailureCode = "missing_entity"
	FailureInsufficientCredits FailureCode = "insufficient_credits"
	FailureAttemptsExhausted   FailureCode = "attempts_exhausted"
)

// JobFailure is a classified processor error. It keeps the human-readable
// message alongside the code so the envelope's lastError stays diagnosable.
type JobFailure struct {
	Code    FailureCode
	Message string
}

func (f *JobFailure) Error() string {
	return f.Message
}

// Failure wraps err with a failure code, preserving err's message.
func Failure(code FailureCode, err error) *JobFailure {
	return &JobFailure{Code: code, Message: err.Error()}
}

// Failuref builds a classified failure from a format string.
func Failuref(code FailureCode, format string, args ...any) *JobFailure {
	return &JobFailure{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ClassifyError maps an arbitrary error to its failure code. Anything a
// processor did not classify itself is treated as transient-unknown.
func ClassifyError(err error) FailureCode {
	var jf *JobFailure
	if errors.As(err, &jf) {
		return jf.Code
	}
	if errors.Is(err, ErrInsufficientCredits) {
		return FailureInsufficientCredits
	}
	return FailureTransient
}

// JobPayload is the tagged union of work requests, discriminated by Kind.
// Fields not owned by a kind stay empty; consumers switch on Kind and read
// only the fields that kind defines.
type JobPayload struct {
	Kind       JobKind    `json:"kind"`
	UserID     string     `json:"userId"`
	ProviderID ProviderID `json:"providerId"`
	Model      string     `json:"model"`

	// generate_site and generate_image
	Prompt string `json:"prompt,omitempty"`
	SiteID string `json:"siteId,omitempty"`

	// edit_section
	PageRoute   string `json:"pageRoute,omitempty"`
	SectionID   string `json:"sectionId,omitempty"`
	Instruction string `json:"instruction,omitempty"`

	// generate_image
	Size ImageSize `json:"size,omitempty"`
}

// JobResult is the typed per-kind outcome stored on a completed envelope.
type JobResult struct {
	Kind        JobKind      `json:"kind"`
	SiteID      string       `json:"siteId,omitempty"`
	SectionID   string       `json:"sectionId,omitempty"`
	Section     *SiteSection `json:"section,omitempty"`
	ImageURL    string       `json:"imageUrl,omitempty"`
	CostCredits float64      `json:"costCredits,omitempty"`
}

// QueueJob is the durable envelope around a payload. It is mutated only by
// the queue engine's claim/complete/fail/retry operations.
type QueueJob struct {
	ID          string      `json:"id"`
	Payload     JobPayload  `json:"payload"`
	ScheduledAt int64       `json:"scheduledAt"` // epoch millis; not claimable before
	Attempts    int         `json:"attempts"`
	MaxAttempts int         `json:"maxAttempts"`
	Status      JobStatus   `json:"status"`
	LastError   string      `json:"lastError,omitempty"`
	FailureCode FailureCode `json:"failureCode,omitempty"`
	Result      *JobResult  `json:"result,omitempty"`
}

var (
	ErrJobNotFound        = errors.New("job not found")
	ErrUnsupportedJobKind = errors.New("unsupported job kind")
)
