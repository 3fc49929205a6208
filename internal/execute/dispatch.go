package execute

import (
	"context"

	"github.com/sells-group/signals/internal/model"
	"github.com/sells-group/signals/internal/precond"
	"github.com/sells-group/signals/internal/recorder"
)

// Dispatcher routes plan steps to handlers, gating each on its
// preconditions and recording an event per outcome. Steps dispatch
// strictly in plan order; a handler error propagates to the caller and
// aborts the rest of the plan.
type Dispatcher struct {
	handlers *Handlers
}

// NewDispatcher wires the dispatcher to its handler set.
func NewDispatcher(handlers *Handlers) *Dispatcher {
	return &Dispatcher{handlers: handlers}
}

type handlerFunc func(ctx context.Context, email *model.SyncedEmail, input *model.DecisionInput, step model.PlanStep) (map[string]any, error)

func (d *Dispatcher) handlerFor(action model.Action) handlerFunc {
	switch action {
	case model.ActionCreateRound:
		return d.handlers.createRound
	case model.ActionSetRoundResult:
		return d.handlers.setRoundResult
	case model.ActionCreateOpportunity:
		return d.handlers.createOpportunity
	case model.ActionUpsertJobListing:
		return d.handlers.upsertJobListing
	case model.ActionAttachListing:
		return d.handlers.attachListing
	case model.ActionEnqueueScrapeListing:
		return d.handlers.enqueueScrapeListing
	case model.ActionCreateFeedback:
		return d.handlers.createFeedback
	case model.ActionSetPipelineStage:
		return d.handlers.setPipelineStage
	case model.ActionSetApplicationStatus:
		return d.handlers.setApplicationStatus
	case model.ActionRecordCompanyFeedback:
		return d.handlers.recordCompanyFeedback
	default:
		return nil
	}
}

// Dispatch runs one step. Precondition failures and unknown actions
// record a skipped event and return a status result without invoking a
// handler. Handler errors are recorded as failed events and returned
// unchanged.
func (d *Dispatcher) Dispatch(ctx context.Context, rec *recorder.Recorder, email *model.SyncedEmail, input *model.DecisionInput, step model.PlanStep) (map[string]any, error) {
	round := ResolveRound(step.Target, input.Application)

	if res, failed := precond.EvaluateAll(step.Preconditions, input, round); res.Blocks() {
		rec.RecordSkipped(ctx, model.EventSkippedPrecondition,
			map[string]any{"step_id": step.StepID, "action": string(step.Action)},
			map[string]any{"predicate": failed, "outcome": res.Outcome.String(), "reason": res.Reason})
		return result(step.Action,
			"status", "skipped_precondition_failed",
			"predicate", failed), nil
	}

	handler := d.handlerFor(step.Action)
	if handler == nil {
		rec.RecordSkipped(ctx, model.EventSkippedUnknownAction,
			map[string]any{"step_id": step.StepID, "action": string(step.Action)},
			map[string]any{"reason": "no handler registered for action"})
		return result(step.Action, "status", "skipped_unknown_action"), nil
	}

	var out map[string]any
	err := rec.Measure(ctx, string(step.Action),
		map[string]any{"step_id": step.StepID, "params": step.Params},
		func(ctx context.Context) (any, error) {
			var handlerErr error
			out, handlerErr = handler(ctx, email, input, step)
			return out, handlerErr
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}
