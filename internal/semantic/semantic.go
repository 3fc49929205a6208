// Package semantic checks a plan against the decision input it was
// produced from. These are the domain-level guarantees schema validation
// cannot express: evidence grounding, target resolvability, idempotency
// consistency, and the confidence gate. One violation invalidates the
// whole plan; the runner must not dispatch any step of an invalid plan.
package semantic

import (
	"fmt"
	"strings"

	"github.com/sells-group/signals/internal/model"
)

// Validator holds the thresholds the checks run with.
type Validator struct {
	// ConfidenceThreshold is the extraction confidence below which only
	// low-risk steps are allowed through.
	ConfidenceThreshold float64
}

// New returns a Validator with the given confidence threshold.
func New(threshold float64) *Validator {
	return &Validator{ConfidenceThreshold: threshold}
}

// Errors returns every violation found in the plan. An empty slice means
// the plan may execute.
func (v *Validator) Errors(input *model.DecisionInput, plan *model.DecisionPlan) []string {
	var errs []string
	if plan == nil {
		return []string{"plan is missing"}
	}

	lowConfidence := input.Facts != nil && input.Facts.Extraction.Confidence < v.ConfidenceThreshold

	for _, step := range plan.Steps {
		for _, ev := range step.Evidence {
			if !strings.Contains(input.Event.Body, ev) {
				errs = append(errs, fmt.Sprintf("%s: evidence %q is not a substring of the canonical body", step.StepID, ev))
			}
		}

		errs = append(errs, v.targetErrors(input, step)...)
		errs = append(errs, v.consistencyErrors(input, step)...)

		if lowConfidence && step.Risk != model.RiskLow {
			errs = append(errs, fmt.Sprintf("%s: confidence %.2f is below threshold %.2f, only low-risk steps allowed, got %s",
				step.StepID, input.Facts.Extraction.Confidence, v.ConfidenceThreshold, step.Risk))
		}
	}
	return errs
}

// Valid reports whether the plan has no violations.
func (v *Validator) Valid(input *model.DecisionInput, plan *model.DecisionPlan) bool {
	return len(v.Errors(input, plan)) == 0
}

func (v *Validator) targetErrors(input *model.DecisionInput, step model.PlanStep) []string {
	if step.Target == nil {
		return nil
	}
	if input.Application == nil {
		return []string{fmt.Sprintf("%s: target requires an application snapshot but none is present", step.StepID)}
	}

	switch step.Target.Kind {
	case model.SelectByID:
		if step.Target.RoundID == "" {
			return []string{fmt.Sprintf("%s: by_id target has no round_id", step.StepID)}
		}
		for _, r := range input.Application.Rounds {
			if r.ID == step.Target.RoundID {
				return nil
			}
		}
		return []string{fmt.Sprintf("%s: target round %s is not in the application snapshot", step.StepID, step.Target.RoundID)}
	case model.SelectLatestPending:
		for _, r := range input.Application.Rounds {
			if r.Result == model.RoundResultPending {
				return nil
			}
		}
		return []string{fmt.Sprintf("%s: latest_pending target but no round is pending", step.StepID)}
	case model.SelectLatest:
		if len(input.Application.Rounds) == 0 {
			return []string{fmt.Sprintf("%s: latest target but the application has no rounds", step.StepID)}
		}
		return nil
	default:
		return []string{fmt.Sprintf("%s: unknown target selector %q", step.StepID, step.Target.Kind)}
	}
}

// consistencyErrors rejects steps that re-apply a change the snapshot
// already shows as applied. Preconditions would skip these at dispatch
// time anyway; finding them here marks the plan itself as stale.
func (v *Validator) consistencyErrors(input *model.DecisionInput, step model.PlanStep) []string {
	app := input.Application

	switch step.Action {
	case model.ActionSetPipelineStage:
		if app == nil {
			return []string{fmt.Sprintf("%s: %s requires an application", step.StepID, step.Action)}
		}
		if stage, ok := step.Params["stage"].(string); ok && stage == app.PipelineStage {
			return []string{fmt.Sprintf("%s: pipeline stage is already %q", step.StepID, stage)}
		}
	case model.ActionSetApplicationStatus:
		if app == nil {
			return []string{fmt.Sprintf("%s: %s requires an application", step.StepID, step.Action)}
		}
		if status, ok := step.Params["status"].(string); ok && status == app.Status {
			return []string{fmt.Sprintf("%s: application status is already %q", step.StepID, status)}
		}
	case model.ActionRecordCompanyFeedback:
		if app == nil {
			return []string{fmt.Sprintf("%s: %s requires an application", step.StepID, step.Action)}
		}
	case model.ActionCreateRound, model.ActionSetRoundResult, model.ActionCreateFeedback:
		if app == nil {
			return []string{fmt.Sprintf("%s: %s requires an application", step.StepID, step.Action)}
		}
	case model.ActionUpsertJobListing, model.ActionEnqueueScrapeListing, model.ActionAttachListing:
		if url, ok := step.Params["url"].(string); !ok || url == "" {
			return []string{fmt.Sprintf("%s: %s requires a url param", step.StepID, step.Action)}
		}
	}
	return nil
}
