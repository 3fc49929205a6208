// Package store persists pipeline state: synced emails, the interview
// entities handlers mutate, and the run/event audit trail. All handler
// write paths are keyed find-or-create operations backed by unique
// constraints, which is what makes concurrent runs over the same target
// converge instead of duplicating.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sells-group/signals/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status  model.RunStatus `json:"status,omitempty"`
	EmailID string          `json:"email_id,omitempty"`
	UserID  string          `json:"user_id,omitempty"`
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`
}

// EventFinish carries the terminal update applied to a started event.
type EventFinish struct {
	Status        model.EventStatus
	CompletedAt   time.Time
	DurationMS    int64
	OutputPayload json.RawMessage
	ErrorType     string
	ErrorMessage  string
}

// RunFinish carries the single terminal update applied to a run.
type RunFinish struct {
	Status      model.RunStatus
	CompletedAt time.Time
	DurationMS  int64
	Metadata    json.RawMessage
}

// Store defines the persistence interface for the decisioning pipeline.
type Store interface {
	// Synced emails
	CreateEmail(ctx context.Context, email *model.SyncedEmail) error
	GetEmail(ctx context.Context, id string) (*model.SyncedEmail, error)
	// ListPendingEmails returns emails with no recorded execution result,
	// oldest first. A limit <= 0 applies the default limit.
	ListPendingEmails(ctx context.Context, limit int) ([]model.SyncedEmail, error)
	// MergeExtractedData writes one versioned key into the email's
	// extracted-data blob, leaving other keys untouched.
	MergeExtractedData(ctx context.Context, emailID, key string, value json.RawMessage) error

	// Applications and rounds
	CreateApplication(ctx context.Context, app *model.InterviewApplication) error
	GetApplication(ctx context.Context, id string) (*model.InterviewApplication, error)
	ListRounds(ctx context.Context, applicationID string) ([]model.InterviewRound, error)
	// FindOrCreateRound creates the round unless one already exists for
	// (application_id, source_email_id). Returns the round and whether it
	// was created by this call.
	FindOrCreateRound(ctx context.Context, round model.InterviewRound) (*model.InterviewRound, bool, error)
	GetRound(ctx context.Context, id string) (*model.InterviewRound, error)
	// SetRoundResult transitions a round's result. Returns false when the
	// round already carries a non-pending result.
	SetRoundResult(ctx context.Context, roundID, result string, decidedAt time.Time) (bool, error)

	// Opportunities and listings
	FindOrCreateOpportunity(ctx context.Context, opp model.Opportunity) (*model.Opportunity, bool, error)
	// GetOpportunityBySourceEmail returns nil without error when no
	// opportunity exists for the email.
	GetOpportunityBySourceEmail(ctx context.Context, sourceEmailID string) (*model.Opportunity, error)
	// GetJobListingByURL returns nil without error when no listing
	// exists for the normalized URL.
	GetJobListingByURL(ctx context.Context, url string) (*model.JobListing, error)
	// UpsertJobListing creates or refreshes a listing keyed by normalized
	// URL. Returns the listing and whether it was created.
	UpsertJobListing(ctx context.Context, listing model.JobListing) (*model.JobListing, bool, error)
	// AttachListingToOpportunity links a listing; returns false when the
	// opportunity already has one.
	AttachListingToOpportunity(ctx context.Context, opportunityID, listingID string) (bool, error)
	EnqueueScrapeJob(ctx context.Context, job model.ScrapeJob) (*model.ScrapeJob, bool, error)

	// Feedback and application state
	FindOrCreateInterviewFeedback(ctx context.Context, fb model.InterviewFeedback) (*model.InterviewFeedback, bool, error)
	// ListFeedbackRoundIDs returns the ids of the application's rounds
	// that already have interview feedback.
	ListFeedbackRoundIDs(ctx context.Context, applicationID string) ([]string, error)
	// SetCompanyFeedback records feedback once; returns false if already set.
	SetCompanyFeedback(ctx context.Context, applicationID, feedback string) (bool, error)
	// SetPipelineStage moves the application; returns false if already there.
	SetPipelineStage(ctx context.Context, applicationID, stage string) (bool, error)
	// SetApplicationStatus updates status; returns false if already set.
	SetApplicationStatus(ctx context.Context, applicationID, status string) (bool, error)

	// Runs and events
	CreateRun(ctx context.Context, run *model.Run) error
	FinishRun(ctx context.Context, runID string, fin RunFinish) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	CreateEvent(ctx context.Context, event *model.Event) error
	FinishEvent(ctx context.Context, eventID string, fin EventFinish) error
	ListEvents(ctx context.Context, runID string) ([]model.Event, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
