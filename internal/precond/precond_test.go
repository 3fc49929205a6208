package precond

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/signals/internal/model"
)

func matchedInput() *model.DecisionInput {
	return &model.DecisionInput{
		Matched: true,
		Application: &model.ApplicationSnapshot{
			ID:            "app-1",
			PipelineStage: "interviewing",
			Status:        "active",
			Rounds: []model.RoundSnapshot{
				{ID: "round-1", Stage: "screening", Result: model.RoundResultPending},
				{ID: "round-2", Stage: "onsite", Result: "passed"},
			},
		},
	}
}

func TestEvaluateMatched(t *testing.T) {
	in := matchedInput()
	assert.Equal(t, Passed, Evaluate("match.matched == true", in, nil).Outcome)

	in.Matched = false
	res := Evaluate("match.matched == true", in, nil)
	assert.Equal(t, Failed, res.Outcome)
	assert.NotEmpty(t, res.Reason)
}

func TestEvaluateStageComparisons(t *testing.T) {
	in := matchedInput()
	assert.Equal(t, Passed, Evaluate("application.pipeline_stage == interviewing", in, nil).Outcome)
	assert.Equal(t, Failed, Evaluate("application.pipeline_stage == offer", in, nil).Outcome)
	assert.Equal(t, Passed, Evaluate("application.pipeline_stage != offer", in, nil).Outcome)
	assert.Equal(t, Failed, Evaluate("application.pipeline_stage != interviewing", in, nil).Outcome)
}

func TestEvaluateStatusComparisons(t *testing.T) {
	in := matchedInput()
	assert.Equal(t, Passed, Evaluate("application.status == active", in, nil).Outcome)
	assert.Equal(t, Failed, Evaluate("application.status != active", in, nil).Outcome)
}

func TestEvaluateCompanyFeedback(t *testing.T) {
	in := matchedInput()
	assert.Equal(t, Passed, Evaluate("application.company_feedback == null", in, nil).Outcome)

	in.Application.CompanyFeedback = "already noted"
	assert.Equal(t, Failed, Evaluate("application.company_feedback == null", in, nil).Outcome)
}

func TestEvaluateRoundFeedback(t *testing.T) {
	in := matchedInput()
	round := &model.RoundSnapshot{ID: "round-1"}
	assert.Equal(t, Passed, Evaluate("round.interview_feedback == null", in, round).Outcome)

	round.HasFeedback = true
	assert.Equal(t, Failed, Evaluate("round.interview_feedback == null", in, round).Outcome)

	res := Evaluate("round.interview_feedback == null", in, nil)
	assert.Equal(t, Failed, res.Outcome)
	assert.Contains(t, res.Reason, "no round")
}

func TestEvaluatePendingRounds(t *testing.T) {
	in := matchedInput()
	assert.Equal(t, Passed, Evaluate("any round.result == pending", in, nil).Outcome)
	assert.Equal(t, Failed, Evaluate("no round.result == pending", in, nil).Outcome)

	in.Application.Rounds[0].Result = "failed"
	assert.Equal(t, Failed, Evaluate("any round.result == pending", in, nil).Outcome)
	assert.Equal(t, Passed, Evaluate("no round.result == pending", in, nil).Outcome)
}

func TestEvaluateNoApplication(t *testing.T) {
	in := &model.DecisionInput{Matched: false}
	for _, p := range []string{
		"application.pipeline_stage == offer",
		"application.status == active",
		"application.company_feedback == null",
		"any round.result == pending",
		"no round.result == pending",
	} {
		res := Evaluate(p, in, nil)
		assert.Equal(t, Failed, res.Outcome, p)
	}
}

func TestEvaluateUnknownPredicateFailsClosed(t *testing.T) {
	in := matchedInput()
	for _, p := range []string{
		"application.salary > 100000",
		"round.result ~= pending",
		"delete everything",
		"",
	} {
		res := Evaluate(p, in, nil)
		assert.Equal(t, Unknown, res.Outcome, p)
		assert.True(t, res.Blocks(), p)
	}
}

func TestEvaluateAllFirstBlockingWins(t *testing.T) {
	in := matchedInput()
	res, failed := EvaluateAll([]string{
		"match.matched == true",
		"application.pipeline_stage == offer",
		"application.status == active",
	}, in, nil)
	assert.Equal(t, Failed, res.Outcome)
	assert.Equal(t, "application.pipeline_stage == offer", failed)

	res, failed = EvaluateAll([]string{
		"match.matched == true",
		"application.status == active",
	}, in, nil)
	assert.Equal(t, Passed, res.Outcome)
	assert.Empty(t, failed)
}
