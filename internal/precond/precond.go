// Package precond evaluates the string predicates attached to plan
// steps. The predicate language is a closed set of patterns; anything
// outside it evaluates to unknown, and the dispatcher treats unknown the
// same as failed.
package precond

import (
	"fmt"
	"regexp"

	"github.com/sells-group/signals/internal/model"
)

// Outcome is the result of evaluating one predicate.
type Outcome int

const (
	Passed Outcome = iota
	Failed
	Unknown
)

func (o Outcome) String() string {
	switch o {
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result pairs an outcome with the reason it was reached.
type Result struct {
	Outcome Outcome
	Reason  string
}

// Blocks reports whether the predicate should stop the step.
func (r Result) Blocks() bool {
	return r.Outcome != Passed
}

var (
	stageRe  = regexp.MustCompile(`^application\.pipeline_stage (==|!=) (\S+)$`)
	statusRe = regexp.MustCompile(`^application\.status (==|!=) (\S+)$`)
)

// Evaluate checks one predicate against the sealed decision input and
// the round the step resolved to, which may be nil for steps without a
// round target.
func Evaluate(predicate string, input *model.DecisionInput, round *model.RoundSnapshot) Result {
	switch predicate {
	case "match.matched == true":
		if input.Matched {
			return Result{Outcome: Passed}
		}
		return Result{Outcome: Failed, Reason: "email is not matched to an application"}

	case "application.company_feedback == null":
		if input.Application == nil {
			return Result{Outcome: Failed, Reason: "no application in scope"}
		}
		if input.Application.CompanyFeedback == "" {
			return Result{Outcome: Passed}
		}
		return Result{Outcome: Failed, Reason: "company feedback already recorded"}

	case "round.interview_feedback == null":
		if round == nil {
			return Result{Outcome: Failed, Reason: "no round resolved"}
		}
		if !round.HasFeedback {
			return Result{Outcome: Passed}
		}
		return Result{Outcome: Failed, Reason: "round already has feedback"}

	case "any round.result == pending":
		if input.Application == nil {
			return Result{Outcome: Failed, Reason: "no application in scope"}
		}
		for _, r := range input.Application.Rounds {
			if r.Result == model.RoundResultPending {
				return Result{Outcome: Passed}
			}
		}
		return Result{Outcome: Failed, Reason: "no pending round"}

	case "no round.result == pending":
		if input.Application == nil {
			return Result{Outcome: Failed, Reason: "no application in scope"}
		}
		for _, r := range input.Application.Rounds {
			if r.Result == model.RoundResultPending {
				return Result{Outcome: Failed, Reason: "a round is still pending"}
			}
		}
		return Result{Outcome: Passed}
	}

	if m := stageRe.FindStringSubmatch(predicate); m != nil {
		return compareField("pipeline stage", applicationStage(input), m[1], m[2], input)
	}
	if m := statusRe.FindStringSubmatch(predicate); m != nil {
		return compareField("status", applicationStatus(input), m[1], m[2], input)
	}

	return Result{
		Outcome: Unknown,
		Reason:  fmt.Sprintf("unrecognized predicate %q", predicate),
	}
}

func applicationStage(input *model.DecisionInput) string {
	if input.Application == nil {
		return ""
	}
	return input.Application.PipelineStage
}

func applicationStatus(input *model.DecisionInput) string {
	if input.Application == nil {
		return ""
	}
	return input.Application.Status
}

func compareField(name, actual, op, want string, input *model.DecisionInput) Result {
	if input.Application == nil {
		return Result{Outcome: Failed, Reason: "no application in scope"}
	}
	match := actual == want
	if op == "!=" {
		match = !match
	}
	if match {
		return Result{Outcome: Passed}
	}
	return Result{
		Outcome: Failed,
		Reason:  fmt.Sprintf("application %s is %q, predicate wants %s %s", name, actual, op, want),
	}
}

// EvaluateAll returns the first blocking result, or a passed result when
// every predicate holds.
func EvaluateAll(predicates []string, input *model.DecisionInput, round *model.RoundSnapshot) (Result, string) {
	for _, p := range predicates {
		if res := Evaluate(p, input, round); res.Blocks() {
			return res, p
		}
	}
	return Result{Outcome: Passed}, ""
}
