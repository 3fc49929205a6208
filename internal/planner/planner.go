// Package planner turns a sealed decision input into an ordered plan of
// proposed mutations. Planning is a pure decision table over the facts
// classification: no I/O, no clock, no randomness, so identical input
// always yields an identical plan.
package planner

import (
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/signals/internal/model"
)

// PlanVersion is the version stamped on every emitted plan.
const PlanVersion = "v1"

// Plan maps the decision input to zero or more steps. Evidence on each
// step is restricted to fact values that literally appear in the
// canonical body, which is what lets the semantic validator verify
// grounding mechanically.
func Plan(input *model.DecisionInput) *model.DecisionPlan {
	plan := &model.DecisionPlan{
		PlanVersion: PlanVersion,
		Steps:       []model.PlanStep{},
	}
	if input == nil || input.Facts == nil {
		return plan
	}

	switch input.Facts.Classification.Kind {
	case model.KindScheduling:
		plan.Steps = schedulingSteps(input)
	case model.KindOutcome:
		plan.Steps = outcomeSteps(input)
	case model.KindOffer:
		plan.Steps = offerSteps(input)
	case model.KindRejection:
		plan.Steps = rejectionSteps(input)
	case model.KindFeedback:
		plan.Steps = feedbackSteps(input)
	case model.KindJobAlert:
		plan.Steps = jobAlertSteps(input)
	case model.KindRecruiterOutreach:
		plan.Steps = outreachSteps(input)
	}

	for i := range plan.Steps {
		plan.Steps[i].StepID = fmt.Sprintf("step-%d", i+1)
	}
	return plan
}

func schedulingSteps(input *model.DecisionInput) []model.PlanStep {
	if !input.Matched || input.Facts.Scheduling == nil {
		return nil
	}
	sched := input.Facts.Scheduling

	stage := sched.Stage
	if stage == "" {
		stage = "screening"
	}
	params := map[string]any{
		"stage": stage,
	}
	if sched.StageName != "" {
		params["stage_name"] = sched.StageName
	}
	if sched.ScheduledAt != nil {
		params["scheduled_at"] = sched.ScheduledAt.UTC().Format(time.RFC3339)
	}
	if sched.DurationMinutes > 0 {
		params["duration_minutes"] = sched.DurationMinutes
	}
	if sched.InterviewerName != "" {
		params["interviewer_name"] = sched.InterviewerName
	}
	if sched.VideoLink != "" {
		params["video_link"] = sched.VideoLink
	}

	return []model.PlanStep{{
		Action:        model.ActionCreateRound,
		Params:        params,
		Preconditions: []string{"match.matched == true"},
		Evidence:      ground(input.Event.Body, sched.InterviewerName, sched.VideoLink, sched.StageName),
		Risk:          model.RiskMedium,
	}}
}

func outcomeSteps(input *model.DecisionInput) []model.PlanStep {
	if !input.Matched || input.Facts.Outcome == nil {
		return nil
	}
	return []model.PlanStep{{
		Action: model.ActionSetRoundResult,
		Target: &model.TargetSelector{Kind: model.SelectLatestPending},
		Params: map[string]any{
			"result": input.Facts.Outcome.Result,
		},
		Preconditions: []string{
			"match.matched == true",
			"any round.result == pending",
		},
		Evidence: ground(input.Event.Body, input.Facts.Company, input.Facts.Role),
		Risk:     model.RiskHigh,
	}}
}

func offerSteps(input *model.DecisionInput) []model.PlanStep {
	if !input.Matched {
		return nil
	}
	return []model.PlanStep{{
		Action: model.ActionSetPipelineStage,
		Params: map[string]any{
			"stage": "offer",
		},
		Preconditions: []string{
			"match.matched == true",
			"application.pipeline_stage != offer",
		},
		Evidence: ground(input.Event.Body, input.Facts.Company, input.Facts.Role),
		Risk:     model.RiskHigh,
	}}
}

func rejectionSteps(input *model.DecisionInput) []model.PlanStep {
	if !input.Matched {
		return nil
	}
	return []model.PlanStep{{
		Action: model.ActionSetApplicationStatus,
		Params: map[string]any{
			"status": "rejected",
		},
		Preconditions: []string{
			"match.matched == true",
			"application.status != rejected",
		},
		Evidence: ground(input.Event.Body, input.Facts.Company, input.Facts.Role),
		Risk:     model.RiskHigh,
	}}
}

func feedbackSteps(input *model.DecisionInput) []model.PlanStep {
	if !input.Matched || input.Facts.Feedback == nil {
		return nil
	}
	fb := input.Facts.Feedback

	var steps []model.PlanStep
	if input.Application != nil && len(input.Application.Rounds) > 0 {
		params := map[string]any{
			"summary": fb.Summary,
		}
		if fb.Sentiment != "" {
			params["sentiment"] = fb.Sentiment
		}
		steps = append(steps, model.PlanStep{
			Action: model.ActionCreateFeedback,
			Target: &model.TargetSelector{Kind: model.SelectLatest},
			Params: params,
			Preconditions: []string{
				"match.matched == true",
				"round.interview_feedback == null",
			},
			Evidence: ground(input.Event.Body, fb.Summary),
			Risk:     model.RiskLow,
		})
	}
	steps = append(steps, model.PlanStep{
		Action: model.ActionRecordCompanyFeedback,
		Params: map[string]any{
			"feedback": fb.Summary,
		},
		Preconditions: []string{
			"match.matched == true",
			"application.company_feedback == null",
		},
		Evidence: ground(input.Event.Body, fb.Summary),
		Risk:     model.RiskLow,
	})
	return steps
}

func jobAlertSteps(input *model.DecisionInput) []model.PlanStep {
	steps := []model.PlanStep{{
		Action: model.ActionCreateOpportunity,
		Params: map[string]any{
			"company": input.Facts.Company,
			"role":    input.Facts.Role,
		},
		Preconditions: []string{},
		Evidence:      ground(input.Event.Body, input.Facts.Company, input.Facts.Role),
		Risk:          model.RiskLow,
	}}

	url := input.Facts.ListingURL
	if url == "" {
		return steps
	}
	urlParams := map[string]any{"url": url}
	urlEvidence := ground(input.Event.Body, url)

	steps = append(steps,
		model.PlanStep{
			Action:        model.ActionUpsertJobListing,
			Params:        urlParams,
			Preconditions: []string{},
			Evidence:      urlEvidence,
			Risk:          model.RiskLow,
		},
		model.PlanStep{
			Action:        model.ActionAttachListing,
			Params:        urlParams,
			Preconditions: []string{},
			Evidence:      urlEvidence,
			Risk:          model.RiskLow,
		},
		model.PlanStep{
			Action:        model.ActionEnqueueScrapeListing,
			Params:        urlParams,
			Preconditions: []string{},
			Evidence:      urlEvidence,
			Risk:          model.RiskLow,
		},
	)
	return steps
}

func outreachSteps(input *model.DecisionInput) []model.PlanStep {
	return []model.PlanStep{{
		Action: model.ActionCreateOpportunity,
		Params: map[string]any{
			"company": input.Facts.Company,
			"role":    input.Facts.Role,
		},
		Preconditions: []string{},
		Evidence:      ground(input.Event.Body, input.Facts.Company, input.Facts.Role),
		Risk:          model.RiskLow,
	}}
}

// ground keeps only the candidates that are non-empty literal substrings
// of the canonical body.
func ground(body string, candidates ...string) []string {
	evidence := []string{}
	for _, c := range candidates {
		if c != "" && strings.Contains(body, c) {
			evidence = append(evidence, c)
		}
	}
	return evidence
}
