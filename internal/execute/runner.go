// Package execute is the decisioning pipeline's execution half: the
// runner that takes a synced email through extraction, planning, the
// validation gates, and ordered step dispatch, leaving a run/event audit
// trail and a versioned status tag on the email.
package execute

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/signals/internal/canonical"
	"github.com/sells-group/signals/internal/config"
	"github.com/sells-group/signals/internal/extract"
	"github.com/sells-group/signals/internal/model"
	"github.com/sells-group/signals/internal/planner"
	"github.com/sells-group/signals/internal/recorder"
	"github.com/sells-group/signals/internal/schemaval"
	"github.com/sells-group/signals/internal/semantic"
	"github.com/sells-group/signals/internal/store"
)

// Runner is the pipeline entry point: one call processes one email.
type Runner struct {
	store      store.Store
	extractor  *extract.Extractor
	planSchema *schemaval.Validator
	semantic   *semantic.Validator
	dispatcher *Dispatcher
	gates      config.Gates
}

// NewRunner wires the full pipeline. The plan schema is compiled once;
// failure here is a deployment error.
func NewRunner(st store.Store, ex *extract.Extractor, confidenceThreshold float64, gates config.Gates) (*Runner, error) {
	planSchema, err := schemaval.NewPlan()
	if err != nil {
		return nil, err
	}
	return &Runner{
		store:      st,
		extractor:  ex,
		planSchema: planSchema,
		semantic:   semantic.New(confidenceThreshold),
		dispatcher: NewDispatcher(NewHandlers(st)),
		gates:      gates,
	}, nil
}

// Call runs the pipeline for one email and reports overall success. The
// email is always left tagged under the versioned execution key with the
// terminal status; the returned error is non-nil only for handler or
// infrastructure failures, not validation outcomes.
func (r *Runner) Call(ctx context.Context, email *model.SyncedEmail, trigger model.Trigger) (bool, error) {
	rec, err := recorder.StartFor(ctx, r.store, email.ID, email.UserID, trigger, "execute")
	if err != nil {
		return false, err
	}
	runID := rec.Run().ID
	log := zap.L().With(zap.String("email_id", email.ID), zap.String("run_id", runID))

	if !r.gates.ExecutionEnabled {
		r.tag(ctx, email.ID, model.ExecutionTag{Status: model.ExecutionDisabled, RunID: runID, ExecutedAt: time.Now().UTC()})
		rec.FinishSuccess(ctx, map[string]any{"status": string(model.ExecutionDisabled)})
		log.Info("execution disabled, skipping")
		return false, nil
	}

	facts, err := r.obtainFacts(ctx, rec, email)
	if err != nil {
		rec.FinishFailed(ctx, map[string]any{"error": err.Error()})
		return false, err
	}
	if facts == nil {
		r.tag(ctx, email.ID, model.ExecutionTag{Status: model.ExecutionNoFacts, RunID: runID, ExecutedAt: time.Now().UTC()})
		rec.FinishFailed(ctx, map[string]any{"status": string(model.ExecutionNoFacts)})
		log.Info("no facts available, not executing")
		return false, nil
	}

	input, err := extract.BuildDecisionInput(ctx, r.store, email, facts)
	if err != nil {
		rec.FinishFailed(ctx, map[string]any{"error": err.Error()})
		return false, err
	}

	var plan *model.DecisionPlan
	_ = rec.Measure(ctx, "build_plan", map[string]any{"kind": string(facts.Classification.Kind)},
		func(ctx context.Context) (any, error) {
			plan = planner.Plan(input)
			return map[string]any{"steps": len(plan.Steps)}, nil
		})

	return r.runPlan(ctx, rec, email, input, plan)
}

// runPlan gates the plan and dispatches its steps in order.
func (r *Runner) runPlan(ctx context.Context, rec *recorder.Recorder, email *model.SyncedEmail, input *model.DecisionInput, plan *model.DecisionPlan) (bool, error) {
	runID := rec.Run().ID

	if errs := r.schemaErrors(plan); len(errs) > 0 {
		r.failValidation(ctx, rec, email.ID, runID, model.ExecutionSchemaInvalid, errs)
		return false, nil
	}
	if errs := r.semantic.Errors(input, plan); len(errs) > 0 {
		r.failValidation(ctx, rec, email.ID, runID, model.ExecutionSemanticInvalid, errs)
		return false, nil
	}

	steps := make([]map[string]any, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		out, err := r.dispatcher.Dispatch(ctx, rec, email, input, step)
		if err != nil {
			r.tag(ctx, email.ID, model.ExecutionTag{
				Status:     model.ExecutionFailed,
				RunID:      runID,
				ExecutedAt: time.Now().UTC(),
				Errors:     []string{err.Error()},
				Steps:      steps,
			})
			rec.FinishFailed(ctx, map[string]any{"failed_step": step.StepID, "error": err.Error()})
			return false, eris.Wrapf(err, "execute: step %s", step.StepID)
		}
		steps = append(steps, out)
	}

	r.tag(ctx, email.ID, model.ExecutionTag{
		Status:     model.ExecutionExecuted,
		RunID:      runID,
		ExecutedAt: time.Now().UTC(),
		Steps:      steps,
	})
	rec.FinishSuccess(ctx, map[string]any{"status": string(model.ExecutionExecuted), "steps": len(steps)})
	zap.L().Info("pipeline executed",
		zap.String("email_id", email.ID),
		zap.String("run_id", runID),
		zap.Int("steps", len(steps)))
	return true, nil
}

// obtainFacts extracts fresh facts when the extraction gate is open,
// otherwise falls back to facts persisted by an earlier run. A nil
// return with nil error means no usable facts.
func (r *Runner) obtainFacts(ctx context.Context, rec *recorder.Recorder, email *model.SyncedEmail) (*model.EmailFacts, error) {
	if !r.gates.ExtractionEnabled {
		return storedFacts(email), nil
	}

	ev := canonical.Build(email)
	var res *extract.Result
	err := rec.Measure(ctx, "extract_facts", map[string]any{"email_id": email.ID},
		func(ctx context.Context) (any, error) {
			var extractErr error
			res, extractErr = r.extractor.Extract(ctx, email, ev)
			if extractErr != nil {
				return nil, extractErr
			}
			return map[string]any{"status": string(res.Envelope.Meta.Status)}, nil
		})
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, nil
	}
	return res.Facts, nil
}

func storedFacts(email *model.SyncedEmail) *model.EmailFacts {
	raw, ok := email.ExtractedData[model.FactsKey]
	if !ok {
		return nil
	}
	var env model.FactsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil
	}
	return env.Facts
}

func (r *Runner) schemaErrors(plan *model.DecisionPlan) []string {
	doc, err := schemaval.ToJSONValue(plan)
	if err != nil {
		return []string{err.Error()}
	}
	return r.planSchema.ErrorsFor(doc)
}

func (r *Runner) failValidation(ctx context.Context, rec *recorder.Recorder, emailID, runID string, status model.ExecutionStatus, errs []string) {
	r.tag(ctx, emailID, model.ExecutionTag{
		Status:     status,
		RunID:      runID,
		ExecutedAt: time.Now().UTC(),
		Errors:     errs,
	})
	rec.FinishFailed(ctx, map[string]any{"status": string(status), "errors": errs})
	zap.L().Warn("plan rejected",
		zap.String("email_id", emailID),
		zap.String("run_id", runID),
		zap.String("status", string(status)),
		zap.Strings("errors", errs))
}

// tag writes the execution status onto the email's extracted data. A
// failed tag write is logged; it must not replace the pipeline outcome.
func (r *Runner) tag(ctx context.Context, emailID string, tag model.ExecutionTag) {
	raw, err := json.Marshal(tag)
	if err != nil {
		zap.L().Error("failed to marshal execution tag", zap.String("email_id", emailID), zap.Error(err))
		return
	}
	if err := r.store.MergeExtractedData(ctx, emailID, model.ExecutionKey, raw); err != nil {
		zap.L().Error("failed to tag email", zap.String("email_id", emailID), zap.Error(err))
	}
}
