package model

import "time"

// InterviewApplication is a user's tracked application. Owned by the
// surrounding product; handlers read it and update stage/status/feedback by
// stable keys only.
type InterviewApplication struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Company         string    `json:"company"`
	Role            string    `json:"role"`
	PipelineStage   string    `json:"pipeline_stage"`
	Status          string    `json:"status"`
	OpportunityID   string    `json:"opportunity_id,omitempty"`
	CompanyFeedback string    `json:"company_feedback,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// RoundResultPending is the result value of a round that has not been
// decided yet.
const RoundResultPending = "pending"

// InterviewRound is one interview in an application's pipeline.
type InterviewRound struct {
	ID              string     `json:"id"`
	ApplicationID   string     `json:"application_id"`
	Stage           string     `json:"stage"`
	StageName       string     `json:"stage_name,omitempty"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
	DurationMinutes int        `json:"duration_minutes,omitempty"`
	InterviewerName string     `json:"interviewer_name,omitempty"`
	VideoLink       string     `json:"video_link,omitempty"`
	Result          string     `json:"result"`
	DecidedAt       *time.Time `json:"decided_at,omitempty"`
	SourceEmailID   string     `json:"source_email_id"`
	Position        int        `json:"position"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Opportunity is a prospective application surfaced by an email. Keyed by
// source email for idempotent creation.
type Opportunity struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Company       string    `json:"company"`
	Role          string    `json:"role"`
	SourceEmailID string    `json:"source_email_id"`
	JobListingID  string    `json:"job_listing_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// JobListing is a posting discovered via a link in an email. Keyed by
// normalized URL.
type JobListing struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title,omitempty"`
	Company   string    `json:"company,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScrapeJobStatus is the lifecycle state of an enqueued scrape job.
type ScrapeJobStatus string

const (
	ScrapeJobQueued ScrapeJobStatus = "queued"
	ScrapeJobDone   ScrapeJobStatus = "done"
	ScrapeJobFailed ScrapeJobStatus = "failed"
)

// ScrapeJob is follow-on async work to fetch a job listing page. The
// pipeline enqueues these and never awaits them.
type ScrapeJob struct {
	ID            string          `json:"id"`
	JobListingID  string          `json:"job_listing_id"`
	URL           string          `json:"url"`
	Status        ScrapeJobStatus `json:"status"`
	SourceEmailID string          `json:"source_email_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

// InterviewFeedback is interviewer feedback attached to a round. One per
// round; repeat attempts report already_exists.
type InterviewFeedback struct {
	ID            string    `json:"id"`
	RoundID       string    `json:"round_id"`
	Summary       string    `json:"summary"`
	Sentiment     string    `json:"sentiment,omitempty"`
	SourceEmailID string    `json:"source_email_id"`
	CreatedAt     time.Time `json:"created_at"`
}
