package planner

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/signals/internal/model"
)

func schedulingInput() *model.DecisionInput {
	when := time.Date(2026, 1, 28, 22, 0, 0, 0, time.UTC)
	return &model.DecisionInput{
		Event: model.CanonicalEmailEvent{
			EmailID: "email-1",
			Subject: "Interview confirmed",
			Body:    "Hi, your screening with Jordan Lee is confirmed for Jan 28. Join at https://zoom.us/j/123456789. It will take 30 minutes.",
		},
		Facts: &model.EmailFacts{
			Classification: model.Classification{Kind: model.KindScheduling},
			Extraction:     model.Extraction{Confidence: 0.92},
			Company:        "Initech",
			Scheduling: &model.Scheduling{
				Stage:           "screening",
				ScheduledAt:     &when,
				DurationMinutes: 30,
				InterviewerName: "Jordan Lee",
				VideoLink:       "https://zoom.us/j/123456789",
			},
		},
		Matched: true,
		Application: &model.ApplicationSnapshot{
			ID:            "app-1",
			PipelineStage: "interviewing",
			Status:        "active",
		},
	}
}

func TestPlanScheduling(t *testing.T) {
	plan := Plan(schedulingInput())
	require.Len(t, plan.Steps, 1)
	step := plan.Steps[0]

	assert.Equal(t, "step-1", step.StepID)
	assert.Equal(t, model.ActionCreateRound, step.Action)
	assert.Equal(t, "screening", step.Params["stage"])
	assert.Equal(t, "2026-01-28T22:00:00Z", step.Params["scheduled_at"])
	assert.Equal(t, 30, step.Params["duration_minutes"])
	assert.Equal(t, "Jordan Lee", step.Params["interviewer_name"])
	assert.Equal(t, "https://zoom.us/j/123456789", step.Params["video_link"])
	assert.Contains(t, step.Preconditions, "match.matched == true")
	assert.Contains(t, step.Evidence, "Jordan Lee")
	assert.Contains(t, step.Evidence, "https://zoom.us/j/123456789")
	assert.Equal(t, model.RiskMedium, step.Risk)
}

func TestPlanEvidenceOnlyFromBody(t *testing.T) {
	in := schedulingInput()
	in.Facts.Scheduling.InterviewerName = "Someone Not Mentioned"
	plan := Plan(in)
	require.Len(t, plan.Steps, 1)
	assert.NotContains(t, plan.Steps[0].Evidence, "Someone Not Mentioned")
	// The param still carries what the extractor said; only evidence is
	// restricted to grounded strings.
	assert.Equal(t, "Someone Not Mentioned", plan.Steps[0].Params["interviewer_name"])
}

func TestPlanSchedulingUnmatched(t *testing.T) {
	in := schedulingInput()
	in.Matched = false
	in.Application = nil
	assert.Empty(t, Plan(in).Steps)
}

func TestPlanOutcome(t *testing.T) {
	in := schedulingInput()
	in.Facts.Classification.Kind = model.KindOutcome
	in.Facts.Scheduling = nil
	in.Facts.Outcome = &model.Outcome{Result: "passed"}

	plan := Plan(in)
	require.Len(t, plan.Steps, 1)
	step := plan.Steps[0]
	assert.Equal(t, model.ActionSetRoundResult, step.Action)
	require.NotNil(t, step.Target)
	assert.Equal(t, model.SelectLatestPending, step.Target.Kind)
	assert.Equal(t, "passed", step.Params["result"])
	assert.Contains(t, step.Preconditions, "any round.result == pending")
	assert.Equal(t, model.RiskHigh, step.Risk)
}

func TestPlanOfferAndRejection(t *testing.T) {
	in := schedulingInput()
	in.Facts.Classification.Kind = model.KindOffer
	plan := Plan(in)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, model.ActionSetPipelineStage, plan.Steps[0].Action)
	assert.Equal(t, "offer", plan.Steps[0].Params["stage"])
	assert.Contains(t, plan.Steps[0].Preconditions, "application.pipeline_stage != offer")

	in.Facts.Classification.Kind = model.KindRejection
	plan = Plan(in)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, model.ActionSetApplicationStatus, plan.Steps[0].Action)
	assert.Equal(t, "rejected", plan.Steps[0].Params["status"])
}

func TestPlanFeedback(t *testing.T) {
	in := schedulingInput()
	in.Event.Body = "Jordan said: great system design discussion, strong hire signal."
	in.Facts.Classification.Kind = model.KindFeedback
	in.Facts.Scheduling = nil
	in.Facts.Feedback = &model.Feedback{Summary: "strong hire signal", Sentiment: "positive"}
	in.Application.Rounds = []model.RoundSnapshot{{ID: "round-1", Result: "passed", Position: 1}}

	plan := Plan(in)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, model.ActionCreateFeedback, plan.Steps[0].Action)
	require.NotNil(t, plan.Steps[0].Target)
	assert.Equal(t, model.SelectLatest, plan.Steps[0].Target.Kind)
	assert.Contains(t, plan.Steps[0].Evidence, "strong hire signal")
	assert.Equal(t, model.ActionRecordCompanyFeedback, plan.Steps[1].Action)
	assert.Contains(t, plan.Steps[1].Preconditions, "application.company_feedback == null")
}

func TestPlanFeedbackNoRounds(t *testing.T) {
	in := schedulingInput()
	in.Facts.Classification.Kind = model.KindFeedback
	in.Facts.Feedback = &model.Feedback{Summary: "thanks for your time"}

	plan := Plan(in)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, model.ActionRecordCompanyFeedback, plan.Steps[0].Action)
}

func TestPlanJobAlert(t *testing.T) {
	in := &model.DecisionInput{
		Event: model.CanonicalEmailEvent{
			EmailID: "email-2",
			Body:    "New opening at Globex: Senior SRE. Apply at https://boards.example.com/jobs/123",
		},
		Facts: &model.EmailFacts{
			Classification: model.Classification{Kind: model.KindJobAlert},
			Extraction:     model.Extraction{Confidence: 0.8},
			Company:        "Globex",
			Role:           "Senior SRE",
			ListingURL:     "https://boards.example.com/jobs/123",
		},
	}

	plan := Plan(in)
	require.Len(t, plan.Steps, 4)
	assert.Equal(t, model.ActionCreateOpportunity, plan.Steps[0].Action)
	assert.Equal(t, model.ActionUpsertJobListing, plan.Steps[1].Action)
	assert.Equal(t, model.ActionAttachListing, plan.Steps[2].Action)
	assert.Equal(t, model.ActionEnqueueScrapeListing, plan.Steps[3].Action)
	assert.Contains(t, plan.Steps[1].Evidence, "https://boards.example.com/jobs/123")
	for i, step := range plan.Steps {
		assert.Equal(t, model.RiskLow, step.Risk, "step %d", i)
		assert.NotNil(t, step.Params)
		assert.NotNil(t, step.Preconditions)
		assert.NotNil(t, step.Evidence)
	}
}

func TestPlanJobAlertNoURL(t *testing.T) {
	in := &model.DecisionInput{
		Event: model.CanonicalEmailEvent{Body: "New opening at Globex"},
		Facts: &model.EmailFacts{
			Classification: model.Classification{Kind: model.KindJobAlert},
			Company:        "Globex",
		},
	}
	plan := Plan(in)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, model.ActionCreateOpportunity, plan.Steps[0].Action)
}

func TestPlanRecruiterOutreach(t *testing.T) {
	in := &model.DecisionInput{
		Event: model.CanonicalEmailEvent{Body: "I came across your profile. Acme is hiring a Platform Engineer."},
		Facts: &model.EmailFacts{
			Classification: model.Classification{Kind: model.KindRecruiterOutreach},
			Company:        "Acme",
			Role:           "Platform Engineer",
		},
	}
	plan := Plan(in)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, model.ActionCreateOpportunity, plan.Steps[0].Action)
	assert.ElementsMatch(t, []string{"Acme", "Platform Engineer"}, plan.Steps[0].Evidence)
}

func TestPlanOtherAndNoFacts(t *testing.T) {
	in := schedulingInput()
	in.Facts.Classification.Kind = model.KindOther
	assert.Empty(t, Plan(in).Steps)

	in.Facts = nil
	plan := Plan(in)
	assert.Empty(t, plan.Steps)
	assert.NotNil(t, plan.Steps)
	assert.Equal(t, PlanVersion, plan.PlanVersion)
}

func TestPlanDeterministic(t *testing.T) {
	in := schedulingInput()
	first, err := json.Marshal(Plan(in))
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := json.Marshal(Plan(schedulingInput()))
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}
