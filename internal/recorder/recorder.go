// Package recorder writes the run and event audit trail around pipeline
// work. Every processing attempt gets a run; every step inside it gets a
// started event that is finished with a terminal status. Audit writes that
// fail are logged and never mask the outcome of the work they describe.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/signals/internal/model"
	"github.com/sells-group/signals/internal/store"
)

// Recorder tracks one run and its ordered events.
type Recorder struct {
	store store.Store
	run   *model.Run

	mu        sync.Mutex
	stepOrder int
}

// StartFor creates a started run for the given email and returns a
// Recorder bound to it.
func StartFor(ctx context.Context, st store.Store, emailID, userID string, trigger model.Trigger, mode string) (*Recorder, error) {
	run := &model.Run{
		SyncedEmailID: emailID,
		UserID:        userID,
		Trigger:       trigger,
		Mode:          mode,
		Status:        model.RunStatusStarted,
		StartedAt:     time.Now().UTC(),
	}
	if err := st.CreateRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "recorder: create run")
	}
	return &Recorder{store: st, run: run}, nil
}

// Run returns the run this recorder is bound to.
func (r *Recorder) Run() *model.Run {
	return r.run
}

func (r *Recorder) nextStep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stepOrder++
	return r.stepOrder
}

// Measure records a started event, invokes fn, and finishes the event
// with the terminal status matching fn's outcome. fn's error is returned
// unchanged so the caller still sees the real failure.
func (r *Recorder) Measure(ctx context.Context, eventType string, input any, fn func(ctx context.Context) (any, error)) error {
	event := &model.Event{
		RunID:        r.run.ID,
		StepOrder:    r.nextStep(),
		EventType:    eventType,
		Status:       model.EventStatusStarted,
		StartedAt:    time.Now().UTC(),
		InputPayload: toPayload(input),
	}
	if err := r.store.CreateEvent(ctx, event); err != nil {
		zap.L().Error("failed to record event start",
			zap.String("run_id", r.run.ID),
			zap.String("event_type", eventType),
			zap.Error(err))
	}

	start := time.Now()
	output, fnErr := fn(ctx)

	fin := store.EventFinish{
		CompletedAt: time.Now().UTC(),
		DurationMS:  time.Since(start).Milliseconds(),
	}
	if fnErr != nil {
		fin.Status = model.EventStatusFailed
		fin.ErrorType = errorType(fnErr)
		fin.ErrorMessage = fnErr.Error()
	} else {
		fin.Status = model.EventStatusSuccess
		fin.OutputPayload = toPayload(output)
	}
	if err := r.store.FinishEvent(ctx, event.ID, fin); err != nil {
		zap.L().Error("failed to record event finish",
			zap.String("run_id", r.run.ID),
			zap.String("event_type", eventType),
			zap.Error(err))
	}
	return fnErr
}

// RecordSkipped writes a single terminal skipped event, used when a step
// is declined without running its handler.
func (r *Recorder) RecordSkipped(ctx context.Context, eventType string, input, output any) {
	event := &model.Event{
		RunID:        r.run.ID,
		StepOrder:    r.nextStep(),
		EventType:    eventType,
		Status:       model.EventStatusStarted,
		StartedAt:    time.Now().UTC(),
		InputPayload: toPayload(input),
	}
	if err := r.store.CreateEvent(ctx, event); err != nil {
		zap.L().Error("failed to record skipped event",
			zap.String("run_id", r.run.ID),
			zap.String("event_type", eventType),
			zap.Error(err))
		return
	}
	now := time.Now().UTC()
	if err := r.store.FinishEvent(ctx, event.ID, store.EventFinish{
		Status:        model.EventStatusSkipped,
		CompletedAt:   now,
		OutputPayload: toPayload(output),
	}); err != nil {
		zap.L().Error("failed to finish skipped event",
			zap.String("run_id", r.run.ID),
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}

// FinishSuccess marks the run successful.
func (r *Recorder) FinishSuccess(ctx context.Context, metadata any) {
	r.finish(ctx, model.RunStatusSuccess, metadata)
}

// FinishFailed marks the run failed.
func (r *Recorder) FinishFailed(ctx context.Context, metadata any) {
	r.finish(ctx, model.RunStatusFailed, metadata)
}

func (r *Recorder) finish(ctx context.Context, status model.RunStatus, metadata any) {
	now := time.Now().UTC()
	if err := r.store.FinishRun(ctx, r.run.ID, store.RunFinish{
		Status:      status,
		CompletedAt: now,
		DurationMS:  now.Sub(r.run.StartedAt).Milliseconds(),
		Metadata:    toPayload(metadata),
	}); err != nil {
		zap.L().Error("failed to finish run",
			zap.String("run_id", r.run.ID),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}

// toPayload marshals v for storage. Values that cannot be marshaled are
// stored as their string form rather than dropped.
func toPayload(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw
	}
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(map[string]string{"result": fmt.Sprint(v)})
	}
	return b
}

// errorType reduces an error chain to a stable label for the audit row.
func errorType(err error) string {
	root := eris.Cause(err)
	if root == nil {
		root = err
	}
	return fmt.Sprintf("%T", root)
}
