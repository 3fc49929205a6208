package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/signals/internal/model"
	"github.com/sells-group/signals/internal/store"
)

func TestServeHealth(t *testing.T) {
	st := newTestStore(t)
	mux := buildMux(context.Background(), st, nil)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestServeListRunsEmpty(t *testing.T) {
	st := newTestStore(t)
	mux := buildMux(context.Background(), st, nil)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/runs", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestServeListRunsWithFilter(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	email := &model.SyncedEmail{UserID: "user-1", Subject: "hi"}
	require.NoError(t, st.CreateEmail(ctx, email))

	run := &model.Run{
		SyncedEmailID: email.ID,
		UserID:        "user-1",
		Trigger:       model.TriggerWebhook,
		Mode:          "execute",
		Status:        model.RunStatusStarted,
	}
	require.NoError(t, st.CreateRun(ctx, run))
	require.NoError(t, st.FinishRun(ctx, run.ID, store.RunFinish{
		Status:      model.RunStatusSuccess,
		CompletedAt: time.Now().UTC(),
		DurationMS:  12,
	}))

	mux := buildMux(ctx, st, nil)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/runs?status=success", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var runs []model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/runs?status=failed", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestServeShowRunWithEvents(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	email := &model.SyncedEmail{UserID: "user-1", Subject: "hi"}
	require.NoError(t, st.CreateEmail(ctx, email))

	run := &model.Run{
		SyncedEmailID: email.ID,
		UserID:        "user-1",
		Trigger:       model.TriggerManual,
		Mode:          "execute",
		Status:        model.RunStatusStarted,
	}
	require.NoError(t, st.CreateRun(ctx, run))

	event := &model.Event{
		RunID:     run.ID,
		StepOrder: 1,
		EventType: "extract_facts",
		Status:    model.EventStatusStarted,
	}
	require.NoError(t, st.CreateEvent(ctx, event))

	mux := buildMux(ctx, st, nil)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/runs/"+run.ID, nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var detail runDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &detail))
	assert.Equal(t, run.ID, detail.Run.ID)
	require.Len(t, detail.Events, 1)
	assert.Equal(t, "extract_facts", detail.Events[0].EventType)
}

func TestServeShowRunNotFound(t *testing.T) {
	st := newTestStore(t)
	mux := buildMux(context.Background(), st, nil)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/runs/missing", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServeWebhookValidation(t *testing.T) {
	st := newTestStore(t)
	mux := buildMux(context.Background(), st, nil)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhook/process", bytes.NewReader([]byte("not json"))))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhook/process", bytes.NewReader([]byte("{}"))))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	body, _ := json.Marshal(map[string]string{"email_id": "missing"})
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhook/process", bytes.NewReader(body)))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServeWebhookAcceptsAndProcesses(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	email := &model.SyncedEmail{UserID: "user-1", Subject: "hi"}
	require.NoError(t, st.CreateEmail(ctx, email))

	var processed atomic.Int64
	run := func(ctx context.Context, em *model.SyncedEmail) (bool, error) {
		assert.Equal(t, email.ID, em.ID)
		processed.Add(1)
		return true, nil
	}

	mux := buildMux(ctx, st, run)

	body, _ := json.Marshal(map[string]string{"email_id": email.ID})
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhook/process", bytes.NewReader(body)))

	require.Equal(t, http.StatusAccepted, rr.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp["status"])
	assert.Equal(t, email.ID, resp["email_id"])

	// Processing runs in a goroutine behind the 202.
	assert.Eventually(t, func() bool { return processed.Load() == 1 },
		time.Second, 5*time.Millisecond)
}
