package model

import (
	"encoding/json"
	"time"
)

// RunStatus represents the state of a pipeline run.
type RunStatus string

const (
	RunStatusStarted RunStatus = "started"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// Trigger names what initiated a run.
type Trigger string

const (
	TriggerGmailSync Trigger = "gmail_sync"
	TriggerManual    Trigger = "manual"
	TriggerReplay    Trigger = "replay"
	TriggerWebhook   Trigger = "webhook"
)

// Run is one pipeline invocation: created at start, finished exactly once.
type Run struct {
	ID            string          `json:"id"`
	SyncedEmailID string          `json:"synced_email_id"`
	UserID        string          `json:"user_id"`
	Trigger       Trigger         `json:"trigger"`
	Mode          string          `json:"mode"`
	Status        RunStatus       `json:"status"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	DurationMS    int64           `json:"duration_ms,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

// EventStatus represents the state of a recorded step.
type EventStatus string

const (
	EventStatusStarted EventStatus = "started"
	EventStatusSuccess EventStatus = "success"
	EventStatusFailed  EventStatus = "failed"
	EventStatusSkipped EventStatus = "skipped"
)

// Event types recorded by the dispatcher outside of handler execution.
const (
	EventSkippedPrecondition  = "skipped_precondition_failed"
	EventSkippedUnknownAction = "skipped_unknown_action"
)

// Event is one recorded step within a run. Events only ever transition from
// started to a terminal status; step_order is unique and strictly
// increasing per run.
type Event struct {
	ID            string          `json:"id"`
	RunID         string          `json:"run_id"`
	StepOrder     int             `json:"step_order"`
	EventType     string          `json:"event_type"`
	Status        EventStatus     `json:"status"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	DurationMS    int64           `json:"duration_ms,omitempty"`
	InputPayload  json.RawMessage `json:"input_payload,omitempty"`
	OutputPayload json.RawMessage `json:"output_payload,omitempty"`
	ErrorType     string          `json:"error_type,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}
