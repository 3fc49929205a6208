package extract

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/signals/internal/canonical"
	"github.com/sells-group/signals/internal/llm"
	"github.com/sells-group/signals/internal/model"
	"github.com/sells-group/signals/internal/resilience"
	"github.com/sells-group/signals/internal/store"
)

const validFactsJSON = `{
	"classification": {"kind": "scheduling"},
	"extraction": {"confidence": 0.92},
	"company": "Initech",
	"scheduling": {
		"stage": "screening",
		"scheduled_at": "2026-01-28T22:00:00Z",
		"duration_minutes": 30,
		"interviewer_name": "Jordan Lee",
		"video_link": "https://zoom.us/j/123456789"
	}
}`

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "signals.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func seedEmail(t *testing.T, st store.Store) *model.SyncedEmail {
	t.Helper()
	email := &model.SyncedEmail{
		UserID:      "user-1",
		Subject:     "Interview confirmed",
		FromName:    "Jordan Lee",
		FromEmail:   "jordan@initech.com",
		PreviewText: "Your screening with Jordan Lee is confirmed. Join at https://zoom.us/j/123456789.",
	}
	require.NoError(t, st.CreateEmail(context.Background(), email))
	return email
}

func newExtractor(t *testing.T, st store.Store, provider llm.Provider) *Extractor {
	t.Helper()
	chain := llm.NewChain(resilience.RetryConfig{MaxAttempts: 1}, provider)
	ex, err := New(chain, st, 5*time.Second, 2048)
	require.NoError(t, err)
	return ex
}

func storedEnvelope(t *testing.T, st store.Store, emailID string) model.FactsEnvelope {
	t.Helper()
	email, err := st.GetEmail(context.Background(), emailID)
	require.NoError(t, err)
	raw, ok := email.ExtractedData[model.FactsKey]
	require.True(t, ok, "facts envelope must be persisted")
	var env model.FactsEnvelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

func TestExtractSuccess(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	email := seedEmail(t, st)

	provider := &llm.StaticProvider{
		ProviderName: "static",
		ModelName:    "static-model",
		Content:      validFactsJSON,
	}
	ex := newExtractor(t, st, provider)

	res, err := ex.Extract(ctx, email, canonical.Build(email))
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.NotNil(t, res.Facts)
	assert.Equal(t, model.KindScheduling, res.Facts.Classification.Kind)
	assert.Equal(t, "Jordan Lee", res.Facts.Scheduling.InterviewerName)

	env := storedEnvelope(t, st, email.ID)
	assert.Equal(t, model.FactsStatusOK, env.Meta.Status)
	require.NotNil(t, env.Facts)
	assert.Equal(t, 0.92, env.Facts.Extraction.Confidence)
}

func TestExtractStripsMarkdownFences(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	email := seedEmail(t, st)

	provider := &llm.StaticProvider{
		ProviderName: "static",
		Content:      "```json\n" + validFactsJSON + "\n```",
	}
	ex := newExtractor(t, st, provider)

	res, err := ex.Extract(ctx, email, canonical.Build(email))
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestExtractSchemaInvalidPersistsFailure(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	email := seedEmail(t, st)

	provider := &llm.StaticProvider{
		ProviderName: "static",
		Content:      `{"classification": {"kind": "carrier_pigeon"}, "extraction": {"confidence": 0.9}}`,
	}
	ex := newExtractor(t, st, provider)

	res, err := ex.Extract(ctx, email, canonical.Build(email))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Nil(t, res.Facts)

	env := storedEnvelope(t, st, email.ID)
	assert.Equal(t, model.FactsStatusFailed, env.Meta.Status)
	assert.Nil(t, env.Facts)
	assert.NotEmpty(t, env.Meta.Errors)
}

func TestExtractNonJSONPersistsFailure(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	email := seedEmail(t, st)

	provider := &llm.StaticProvider{ProviderName: "static", Content: "I cannot help with that."}
	ex := newExtractor(t, st, provider)

	res, err := ex.Extract(ctx, email, canonical.Build(email))
	require.NoError(t, err)
	assert.False(t, res.Success)

	env := storedEnvelope(t, st, email.ID)
	assert.Equal(t, model.FactsStatusFailed, env.Meta.Status)
}

func TestExtractProviderErrorPersistsException(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	email := seedEmail(t, st)

	provider := &llm.StaticProvider{ProviderName: "static", Err: assert.AnError}
	ex := newExtractor(t, st, provider)

	res, err := ex.Extract(ctx, email, canonical.Build(email))
	require.NoError(t, err)
	assert.False(t, res.Success)

	env := storedEnvelope(t, st, email.ID)
	assert.Equal(t, model.FactsStatusException, env.Meta.Status)
	assert.NotEmpty(t, env.Meta.Errors)
}

func TestExtractNoProvidersPersistsException(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	email := seedEmail(t, st)

	provider := &llm.StaticProvider{ProviderName: "static", Unavailable: true}
	ex := newExtractor(t, st, provider)

	res, err := ex.Extract(ctx, email, canonical.Build(email))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 0, provider.Calls)
}

func TestBuildDecisionInputUnmatched(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	email := seedEmail(t, st)

	input, err := BuildDecisionInput(ctx, st, email, &model.EmailFacts{})
	require.NoError(t, err)
	assert.False(t, input.Matched)
	assert.Nil(t, input.Application)
	assert.Equal(t, email.ID, input.Event.EmailID)
}

func TestBuildDecisionInputSnapshot(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	app := &model.InterviewApplication{
		UserID:        "user-1",
		Company:       "Initech",
		Role:          "Backend Engineer",
		PipelineStage: "interviewing",
	}
	require.NoError(t, st.CreateApplication(ctx, app))

	round, _, err := st.FindOrCreateRound(ctx, model.InterviewRound{
		ApplicationID: app.ID,
		Stage:         "screening",
		SourceEmailID: "earlier-email",
	})
	require.NoError(t, err)
	_, _, err = st.FindOrCreateInterviewFeedback(ctx, model.InterviewFeedback{
		RoundID:       round.ID,
		Summary:       "went well",
		SourceEmailID: "earlier-email",
	})
	require.NoError(t, err)

	email := seedEmail(t, st)
	email.ApplicationID = app.ID

	input, err := BuildDecisionInput(ctx, st, email, nil)
	require.NoError(t, err)
	assert.True(t, input.Matched)
	require.NotNil(t, input.Application)
	assert.Equal(t, app.ID, input.Application.ID)
	assert.Equal(t, "interviewing", input.Application.PipelineStage)
	require.Len(t, input.Application.Rounds, 1)
	assert.Equal(t, round.ID, input.Application.Rounds[0].ID)
	assert.True(t, input.Application.Rounds[0].HasFeedback)
	assert.Equal(t, model.RoundResultPending, input.Application.Rounds[0].Result)
}

func TestBuildPromptIncludesEventFields(t *testing.T) {
	ev := model.CanonicalEmailEvent{
		Subject:  "Interview confirmed",
		FromName: "Jordan Lee",
		From:     "jordan@initech.com",
		Body:     "See you soon.",
		Links:    []model.Link{{URL: "https://zoom.us/j/123456789"}},
	}
	prompt := buildPrompt(ev)
	assert.Contains(t, prompt, "Subject: Interview confirmed")
	assert.Contains(t, prompt, "jordan@initech.com")
	assert.Contains(t, prompt, "See you soon.")
	assert.Contains(t, prompt, "- https://zoom.us/j/123456789")
}

func TestCleanJSON(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```":      `{"a":1}`,
		"```\n{\"a\":1}\n```":          `{"a":1}`,
		"Here you go: {\"a\":1} done.": `{"a":1}`,
		`{"a":1}`:                      `{"a":1}`,
	}
	for in, want := range cases {
		assert.Equal(t, want, cleanJSON(in), in)
	}
}
