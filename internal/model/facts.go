package model

import "time"

// ClassificationKind is the email category assigned by the facts extractor.
type ClassificationKind string

const (
	KindScheduling        ClassificationKind = "scheduling"
	KindOutcome           ClassificationKind = "outcome"
	KindOffer             ClassificationKind = "offer"
	KindRejection         ClassificationKind = "rejection"
	KindFeedback          ClassificationKind = "feedback"
	KindJobAlert          ClassificationKind = "job_alert"
	KindRecruiterOutreach ClassificationKind = "recruiter_outreach"
	KindOther             ClassificationKind = "other"
)

// EmailFacts is the schema-validated output of LLM extraction.
type EmailFacts struct {
	Classification Classification `json:"classification"`
	Extraction     Extraction     `json:"extraction"`
	Company        string         `json:"company,omitempty"`
	Role           string         `json:"role,omitempty"`
	Scheduling     *Scheduling    `json:"scheduling,omitempty"`
	Outcome        *Outcome       `json:"outcome,omitempty"`
	Feedback       *Feedback      `json:"feedback,omitempty"`
	ListingURL     string         `json:"listing_url,omitempty"`
}

// Classification holds the assigned email category.
type Classification struct {
	Kind ClassificationKind `json:"kind"`
}

// Extraction holds extraction-level metadata.
type Extraction struct {
	Confidence float64 `json:"confidence"`
}

// Scheduling holds interview scheduling details.
type Scheduling struct {
	Stage           string     `json:"stage,omitempty"`
	StageName       string     `json:"stage_name,omitempty"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
	DurationMinutes int        `json:"duration_minutes,omitempty"`
	InterviewerName string     `json:"interviewer_name,omitempty"`
	VideoLink       string     `json:"video_link,omitempty"`
}

// Outcome holds a round or application outcome communicated in the email.
type Outcome struct {
	Result string `json:"result"` // "passed" or "failed"
}

// Feedback holds interviewer or company feedback text.
type Feedback struct {
	Summary   string `json:"summary"`
	Sentiment string `json:"sentiment,omitempty"`
}

// FactsMetaStatus records how a facts extraction attempt ended.
type FactsMetaStatus string

const (
	FactsStatusOK        FactsMetaStatus = "ok"
	FactsStatusFailed    FactsMetaStatus = "failed"
	FactsStatusException FactsMetaStatus = "exception"
)

// FactsMeta is the audit metadata persisted alongside facts. It is written
// on every attempt, successful or not.
type FactsMeta struct {
	Status      FactsMetaStatus `json:"status"`
	Provider    string          `json:"provider,omitempty"`
	Model       string          `json:"model,omitempty"`
	LogID       string          `json:"log_id,omitempty"`
	LatencyMS   int64           `json:"latency_ms,omitempty"`
	GeneratedAt time.Time       `json:"generated_at"`
	Errors      []string        `json:"errors,omitempty"`
}

// FactsEnvelope is the value stored under FactsKey in extracted data.
type FactsEnvelope struct {
	Facts *EmailFacts `json:"facts"`
	Meta  FactsMeta   `json:"meta"`
}
