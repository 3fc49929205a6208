package execute

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/signals/internal/model"
	"github.com/sells-group/signals/internal/store"
)

// Handlers applies plan-step mutations. Every handler is idempotent: the
// write path is keyed (source email id, normalized URL, existing-record
// lookup) and repeats report a status discriminator instead of raising
// or duplicating.
type Handlers struct {
	store store.Store
}

// NewHandlers returns the handler set backed by the given store.
func NewHandlers(st store.Store) *Handlers {
	return &Handlers{store: st}
}

func result(action model.Action, kv ...any) map[string]any {
	out := map[string]any{"action": string(action)}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i].(string)] = kv[i+1]
	}
	return out
}

func (h *Handlers) createRound(ctx context.Context, email *model.SyncedEmail, input *model.DecisionInput, step model.PlanStep) (map[string]any, error) {
	if input.Application == nil {
		return result(step.Action, "status", "no_application"), nil
	}

	round := model.InterviewRound{
		ApplicationID:   input.Application.ID,
		Stage:           stringParam(step.Params, "stage"),
		StageName:       stringParam(step.Params, "stage_name"),
		DurationMinutes: intParam(step.Params, "duration_minutes"),
		InterviewerName: stringParam(step.Params, "interviewer_name"),
		VideoLink:       stringParam(step.Params, "video_link"),
		SourceEmailID:   email.ID,
	}
	if ts := stringParam(step.Params, "scheduled_at"); ts != "" {
		when, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, eris.Wrapf(err, "create_round: bad scheduled_at %q", ts)
		}
		round.ScheduledAt = &when
	}

	created, fresh, err := h.store.FindOrCreateRound(ctx, round)
	if err != nil {
		return nil, err
	}
	if !fresh {
		return result(step.Action, "status", "already_exists", "round_id", created.ID), nil
	}
	return result(step.Action, "round_id", created.ID), nil
}

func (h *Handlers) setRoundResult(ctx context.Context, email *model.SyncedEmail, input *model.DecisionInput, step model.PlanStep) (map[string]any, error) {
	round := ResolveRound(step.Target, input.Application)
	if round == nil {
		return result(step.Action, "status", "no_round_resolved"), nil
	}

	applied, err := h.store.SetRoundResult(ctx, round.ID, stringParam(step.Params, "result"), time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !applied {
		return result(step.Action, "status", "already_set", "round_id", round.ID), nil
	}
	return result(step.Action, "round_id", round.ID), nil
}

func (h *Handlers) createOpportunity(ctx context.Context, email *model.SyncedEmail, input *model.DecisionInput, step model.PlanStep) (map[string]any, error) {
	opp, fresh, err := h.store.FindOrCreateOpportunity(ctx, model.Opportunity{
		UserID:        email.UserID,
		Company:       stringParam(step.Params, "company"),
		Role:          stringParam(step.Params, "role"),
		SourceEmailID: email.ID,
	})
	if err != nil {
		return nil, err
	}
	if !fresh {
		return result(step.Action, "status", "already_exists", "opportunity_id", opp.ID), nil
	}
	return result(step.Action, "opportunity_id", opp.ID), nil
}

func (h *Handlers) upsertJobListing(ctx context.Context, email *model.SyncedEmail, input *model.DecisionInput, step model.PlanStep) (map[string]any, error) {
	url := NormalizeURL(stringParam(step.Params, "url"))
	if url == "" {
		return result(step.Action, "status", "no_url"), nil
	}

	listing, fresh, err := h.store.UpsertJobListing(ctx, model.JobListing{
		URL:     url,
		Title:   stringParam(step.Params, "title"),
		Company: stringParam(step.Params, "company"),
	})
	if err != nil {
		return nil, err
	}
	if !fresh {
		return result(step.Action, "status", "already_exists", "listing_id", listing.ID), nil
	}
	return result(step.Action, "listing_id", listing.ID), nil
}

func (h *Handlers) attachListing(ctx context.Context, email *model.SyncedEmail, input *model.DecisionInput, step model.PlanStep) (map[string]any, error) {
	url := NormalizeURL(stringParam(step.Params, "url"))
	if url == "" {
		return result(step.Action, "status", "no_url"), nil
	}

	opp, err := h.store.GetOpportunityBySourceEmail(ctx, email.ID)
	if err != nil {
		return nil, err
	}
	if opp == nil {
		return result(step.Action, "status", "no_opportunity"), nil
	}
	listing, err := h.store.GetJobListingByURL(ctx, url)
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return result(step.Action, "status", "no_listing"), nil
	}

	applied, err := h.store.AttachListingToOpportunity(ctx, opp.ID, listing.ID)
	if err != nil {
		return nil, err
	}
	if !applied {
		return result(step.Action, "status", "already_attached", "opportunity_id", opp.ID, "listing_id", listing.ID), nil
	}
	return result(step.Action, "opportunity_id", opp.ID, "listing_id", listing.ID), nil
}

func (h *Handlers) enqueueScrapeListing(ctx context.Context, email *model.SyncedEmail, input *model.DecisionInput, step model.PlanStep) (map[string]any, error) {
	url := NormalizeURL(stringParam(step.Params, "url"))
	if url == "" {
		return result(step.Action, "status", "no_url"), nil
	}

	listing, err := h.store.GetJobListingByURL(ctx, url)
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return result(step.Action, "status", "no_listing"), nil
	}

	job, fresh, err := h.store.EnqueueScrapeJob(ctx, model.ScrapeJob{
		JobListingID:  listing.ID,
		URL:           url,
		SourceEmailID: email.ID,
	})
	if err != nil {
		return nil, err
	}
	if !fresh {
		return result(step.Action, "status", "already_exists", "scrape_job_id", job.ID), nil
	}
	return result(step.Action, "scrape_job_id", job.ID), nil
}

func (h *Handlers) createFeedback(ctx context.Context, email *model.SyncedEmail, input *model.DecisionInput, step model.PlanStep) (map[string]any, error) {
	round := ResolveRound(step.Target, input.Application)
	if round == nil {
		return result(step.Action, "status", "no_round_resolved"), nil
	}

	fb, fresh, err := h.store.FindOrCreateInterviewFeedback(ctx, model.InterviewFeedback{
		RoundID:       round.ID,
		Summary:       stringParam(step.Params, "summary"),
		Sentiment:     stringParam(step.Params, "sentiment"),
		SourceEmailID: email.ID,
	})
	if err != nil {
		return nil, err
	}
	if !fresh {
		return result(step.Action, "status", "already_exists", "feedback_id", fb.ID), nil
	}
	return result(step.Action, "feedback_id", fb.ID, "round_id", round.ID), nil
}

func (h *Handlers) setPipelineStage(ctx context.Context, email *model.SyncedEmail, input *model.DecisionInput, step model.PlanStep) (map[string]any, error) {
	if input.Application == nil {
		return result(step.Action, "status", "no_application"), nil
	}
	stage := stringParam(step.Params, "stage")

	applied, err := h.store.SetPipelineStage(ctx, input.Application.ID, stage)
	if err != nil {
		return nil, err
	}
	if !applied {
		return result(step.Action, "status", "already_set", "stage", stage), nil
	}
	return result(step.Action, "application_id", input.Application.ID, "stage", stage), nil
}

func (h *Handlers) setApplicationStatus(ctx context.Context, email *model.SyncedEmail, input *model.DecisionInput, step model.PlanStep) (map[string]any, error) {
	if input.Application == nil {
		return result(step.Action, "status", "no_application"), nil
	}
	status := stringParam(step.Params, "status")

	applied, err := h.store.SetApplicationStatus(ctx, input.Application.ID, status)
	if err != nil {
		return nil, err
	}
	if !applied {
		return result(step.Action, "status", "already_set"), nil
	}
	return result(step.Action, "application_id", input.Application.ID, "application_status", status), nil
}

func (h *Handlers) recordCompanyFeedback(ctx context.Context, email *model.SyncedEmail, input *model.DecisionInput, step model.PlanStep) (map[string]any, error) {
	if input.Application == nil {
		return result(step.Action, "status", "no_application"), nil
	}

	applied, err := h.store.SetCompanyFeedback(ctx, input.Application.ID, stringParam(step.Params, "feedback"))
	if err != nil {
		return nil, err
	}
	if !applied {
		return result(step.Action, "status", "already_set"), nil
	}
	return result(step.Action, "application_id", input.Application.ID), nil
}

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

// intParam accepts both native ints and the float64 JSON decoding
// produces.
func intParam(params map[string]any, key string) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
