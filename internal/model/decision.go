package model

import "time"

// Action enumerates every mutation kind a plan step may request. The set is
// closed: the dispatcher matches exhaustively and records unknown values as
// skipped rather than raising.
type Action string

const (
	ActionCreateRound            Action = "create_round"
	ActionSetRoundResult         Action = "set_round_result"
	ActionCreateOpportunity      Action = "create_opportunity"
	ActionUpsertJobListing       Action = "upsert_job_listing_from_url"
	ActionEnqueueScrapeListing   Action = "enqueue_scrape_job_listing"
	ActionCreateFeedback         Action = "create_interview_feedback"
	ActionAttachListing          Action = "attach_job_listing_to_opportunity"
	ActionSetPipelineStage       Action = "set_pipeline_stage"
	ActionSetApplicationStatus   Action = "set_application_status"
	ActionRecordCompanyFeedback  Action = "record_company_feedback"
)

// Risk grades how consequential a step's mutation is. The semantic
// validator only lets low-risk steps through when extraction confidence is
// below the configured threshold.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// SelectorKind names a target-round resolution strategy.
type SelectorKind string

const (
	SelectByID          SelectorKind = "by_id"
	SelectLatestPending SelectorKind = "latest_pending"
	SelectLatest        SelectorKind = "latest"
)

// TargetSelector describes which round a step operates on. Unknown kinds
// resolve to no round; the handler then reports no_round_resolved.
type TargetSelector struct {
	Kind    SelectorKind `json:"kind"`
	RoundID string       `json:"round_id,omitempty"`
}

// PlanStep is one proposed mutation. Evidence entries must be literal
// substrings of the canonical email body; the semantic validator enforces
// this before any step executes.
type PlanStep struct {
	StepID        string            `json:"step_id"`
	Action        Action            `json:"action"`
	Target        *TargetSelector   `json:"target,omitempty"`
	Params        map[string]any    `json:"params"`
	Preconditions []string          `json:"preconditions"`
	Evidence      []string          `json:"evidence"`
	Risk          Risk              `json:"risk"`
}

// DecisionPlan is the ordered output of the planner.
type DecisionPlan struct {
	PlanVersion string     `json:"plan_version"`
	Steps       []PlanStep `json:"steps"`
}

// RoundSnapshot is the planner- and evaluator-visible view of a round.
type RoundSnapshot struct {
	ID              string     `json:"id"`
	Stage           string     `json:"stage"`
	StageName       string     `json:"stage_name,omitempty"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
	Result          string     `json:"result"`
	Position        int        `json:"position"`
	HasFeedback     bool       `json:"has_feedback"`
	SourceEmailID   string     `json:"source_email_id,omitempty"`
}

// ApplicationSnapshot is the sealed view of the application referenced by
// the email, taken once when the decision input is built.
type ApplicationSnapshot struct {
	ID              string          `json:"id"`
	Company         string          `json:"company"`
	Role            string          `json:"role"`
	PipelineStage   string          `json:"pipeline_stage"`
	Status          string          `json:"status"`
	OpportunityID   string          `json:"opportunity_id,omitempty"`
	CompanyFeedback string          `json:"company_feedback,omitempty"`
	Rounds          []RoundSnapshot `json:"rounds"`
}

// DecisionInput is the sealed composite handed to the planner. Everything
// planning needs is here; the planner never queries external state.
type DecisionInput struct {
	Event       CanonicalEmailEvent  `json:"event"`
	Facts       *EmailFacts          `json:"facts"`
	Matched     bool                 `json:"matched"`
	Application *ApplicationSnapshot `json:"application,omitempty"`
}

// ExecutionStatus tags the overall outcome of a pipeline run on the email's
// extracted data under ExecutionKey.
type ExecutionStatus string

const (
	ExecutionExecuted        ExecutionStatus = "executed"
	ExecutionSchemaInvalid   ExecutionStatus = "schema_invalid"
	ExecutionSemanticInvalid ExecutionStatus = "semantic_invalid"
	ExecutionFailed          ExecutionStatus = "failed"
	ExecutionNoFacts         ExecutionStatus = "no_facts"
	ExecutionDisabled        ExecutionStatus = "disabled"
)

// ExecutionTag is the value stored under ExecutionKey.
type ExecutionTag struct {
	Status     ExecutionStatus  `json:"status"`
	RunID      string           `json:"run_id,omitempty"`
	ExecutedAt time.Time        `json:"executed_at"`
	Errors     []string         `json:"errors,omitempty"`
	Steps      []map[string]any `json:"steps,omitempty"`
}
