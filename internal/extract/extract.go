// Package extract runs LLM facts extraction over canonical email events
// and builds the sealed decision input the planner consumes. Every
// extraction attempt persists a facts envelope, successful or not, so
// the audit trail survives provider failures.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/sells-group/signals/internal/canonical"
	"github.com/sells-group/signals/internal/llm"
	"github.com/sells-group/signals/internal/model"
	"github.com/sells-group/signals/internal/schemaval"
	"github.com/sells-group/signals/internal/store"
)

// Runner is the LLM surface the extractor needs; *llm.Chain satisfies it.
type Runner interface {
	Run(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Extractor turns a synced email into schema-validated facts.
type Extractor struct {
	runner    Runner
	store     store.Store
	facts     *schemaval.Validator
	timeout   time.Duration
	maxTokens int64
}

// New builds an Extractor. The facts schema is compiled once here;
// compilation failure is a deployment error, not a runtime condition.
func New(runner Runner, st store.Store, timeout time.Duration, maxTokens int64) (*Extractor, error) {
	v, err := schemaval.NewFacts()
	if err != nil {
		return nil, err
	}
	return &Extractor{
		runner:    runner,
		store:     st,
		facts:     v,
		timeout:   timeout,
		maxTokens: maxTokens,
	}, nil
}

// Result is the extraction outcome handed back to the pipeline.
type Result struct {
	Success  bool
	Facts    *model.EmailFacts
	Envelope model.FactsEnvelope
}

// Extract runs the provider chain over the canonical event and persists
// the resulting envelope under the versioned facts key. Provider and
// schema failures are reported in the result, never raised; the returned
// error is reserved for persistence failures.
func (e *Extractor) Extract(ctx context.Context, email *model.SyncedEmail, ev model.CanonicalEmailEvent) (*Result, error) {
	req := llm.Request{
		System:    systemPrompt,
		Prompt:    buildPrompt(ev),
		MaxTokens: e.maxTokens,
	}

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := e.runner.Run(callCtx, req)
	if err != nil {
		zap.L().Warn("facts extraction failed",
			zap.String("email_id", email.ID),
			zap.Error(err))
		return e.persist(ctx, email, &Result{
			Envelope: model.FactsEnvelope{Meta: model.FactsMeta{
				Status:      model.FactsStatusException,
				LatencyMS:   time.Since(start).Milliseconds(),
				GeneratedAt: time.Now().UTC(),
				Errors:      []string{err.Error()},
			}},
		})
	}

	meta := model.FactsMeta{
		Provider:    resp.Provider,
		Model:       resp.Model,
		LogID:       resp.LogID,
		LatencyMS:   resp.LatencyMS,
		GeneratedAt: time.Now().UTC(),
	}

	cleaned := cleanJSON(resp.Content)
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(cleaned)))
	if err != nil {
		meta.Status = model.FactsStatusFailed
		meta.Errors = []string{"response is not valid JSON: " + err.Error()}
		return e.persist(ctx, email, &Result{Envelope: model.FactsEnvelope{Meta: meta}})
	}

	if errs := e.facts.ErrorsFor(doc); len(errs) > 0 {
		meta.Status = model.FactsStatusFailed
		meta.Errors = errs
		return e.persist(ctx, email, &Result{Envelope: model.FactsEnvelope{Meta: meta}})
	}

	var facts model.EmailFacts
	if err := json.Unmarshal([]byte(cleaned), &facts); err != nil {
		meta.Status = model.FactsStatusFailed
		meta.Errors = []string{"decode facts: " + err.Error()}
		return e.persist(ctx, email, &Result{Envelope: model.FactsEnvelope{Meta: meta}})
	}

	meta.Status = model.FactsStatusOK
	return e.persist(ctx, email, &Result{
		Success:  true,
		Facts:    &facts,
		Envelope: model.FactsEnvelope{Facts: &facts, Meta: meta},
	})
}

func (e *Extractor) persist(ctx context.Context, email *model.SyncedEmail, res *Result) (*Result, error) {
	raw, err := json.Marshal(res.Envelope)
	if err != nil {
		return res, eris.Wrap(err, "extract: marshal facts envelope")
	}
	if err := e.store.MergeExtractedData(ctx, email.ID, model.FactsKey, raw); err != nil {
		return res, eris.Wrap(err, "extract: persist facts envelope")
	}
	return res, nil
}

// BuildDecisionInput seals the canonical event, facts, and a snapshot of
// the referenced application into the planner's input. The snapshot is
// taken once; planning never re-reads state.
func BuildDecisionInput(ctx context.Context, st store.Store, email *model.SyncedEmail, facts *model.EmailFacts) (*model.DecisionInput, error) {
	input := &model.DecisionInput{
		Event: canonical.Build(email),
		Facts: facts,
	}
	if email.ApplicationID == "" {
		return input, nil
	}

	app, err := st.GetApplication(ctx, email.ApplicationID)
	if err != nil {
		return nil, eris.Wrap(err, "extract: load application")
	}
	if app == nil {
		return input, nil
	}

	rounds, err := st.ListRounds(ctx, app.ID)
	if err != nil {
		return nil, eris.Wrap(err, "extract: load rounds")
	}
	feedbackIDs, err := st.ListFeedbackRoundIDs(ctx, app.ID)
	if err != nil {
		return nil, eris.Wrap(err, "extract: load feedback round ids")
	}
	hasFeedback := make(map[string]bool, len(feedbackIDs))
	for _, id := range feedbackIDs {
		hasFeedback[id] = true
	}

	snapshot := &model.ApplicationSnapshot{
		ID:              app.ID,
		Company:         app.Company,
		Role:            app.Role,
		PipelineStage:   app.PipelineStage,
		Status:          app.Status,
		OpportunityID:   app.OpportunityID,
		CompanyFeedback: app.CompanyFeedback,
		Rounds:          make([]model.RoundSnapshot, 0, len(rounds)),
	}
	for _, r := range rounds {
		snapshot.Rounds = append(snapshot.Rounds, model.RoundSnapshot{
			ID:            r.ID,
			Stage:         r.Stage,
			StageName:     r.StageName,
			ScheduledAt:   r.ScheduledAt,
			Result:        r.Result,
			Position:      r.Position,
			HasFeedback:   hasFeedback[r.ID],
			SourceEmailID: r.SourceEmailID,
		})
	}

	input.Matched = true
	input.Application = snapshot
	return input, nil
}
