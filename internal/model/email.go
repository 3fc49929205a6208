package model

import (
	"encoding/json"
	"time"
)

// Versioned keys under which the pipeline writes results onto a synced
// email's extracted-data blob. These are stable strings: fixture files and
// the admin dashboard key off them.
const (
	FactsKey     = "email_facts_v1"
	ExecutionKey = "decision_execution_v1"
)

// SyncedEmail is the raw email record handed to the pipeline by the sync
// layer. The pipeline reads the body sources and writes results back into
// ExtractedData; it never modifies anything else.
type SyncedEmail struct {
	ID            string                     `json:"id"`
	UserID        string                     `json:"user_id"`
	Subject       string                     `json:"subject"`
	FromName      string                     `json:"from_name"`
	FromEmail     string                     `json:"from_email"`
	SentAt        time.Time                  `json:"sent_at"`
	ThreadID      string                     `json:"thread_id"`
	PreviewText   string                     `json:"preview_text"`
	HTMLBody      string                     `json:"html_body"`
	Snippet       string                     `json:"snippet"`
	ApplicationID string                     `json:"application_id,omitempty"`
	ExtractedData map[string]json.RawMessage `json:"extracted_data"`
	CreatedAt     time.Time                  `json:"created_at"`
	UpdatedAt     time.Time                  `json:"updated_at"`
}

// CanonicalEmailEvent is the normalized textual representation of an email,
// derived fresh each time from the raw record. Identical raw input always
// yields byte-identical canonical text.
type CanonicalEmailEvent struct {
	EmailID  string    `json:"email_id"`
	ThreadID string    `json:"thread_id"`
	Subject  string    `json:"subject"`
	FromName string    `json:"from_name"`
	From     string    `json:"from"`
	SentAt   time.Time `json:"sent_at"`
	Body     string    `json:"body"`
	Links    []Link    `json:"links"`
}

// Link is a URL extracted from the email body.
type Link struct {
	URL       string  `json:"url"`
	LabelHint *string `json:"label_hint"`
}
