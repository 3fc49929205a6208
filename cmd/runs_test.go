package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/signals/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	started := time.Date(2026, 1, 28, 14, 30, 0, 0, time.UTC)
	completed := started.Add(2 * time.Second)

	runs := []model.Run{
		{
			ID:            "aaaaaaaa-1111-2222-3333-444444444444",
			SyncedEmailID: "bbbbbbbb-5555-6666-7777-888888888888",
			Trigger:       model.TriggerManual,
			Status:        model.RunStatusSuccess,
			StartedAt:     started,
			CompletedAt:   &completed,
			DurationMS:    2000,
		},
		{
			ID:            "cccccccc-1111-2222-3333-444444444444",
			SyncedEmailID: "dddddddd-5555-6666-7777-888888888888",
			Trigger:       model.TriggerWebhook,
			Status:        model.RunStatusStarted,
			StartedAt:     started,
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	out := buf.String()

	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "aaaaaaaa")
	assert.Contains(t, out, "bbbbbbbb")
	assert.Contains(t, out, "manual")
	assert.Contains(t, out, "success")
	assert.Contains(t, out, "2026-01-28 14:30")
	assert.Contains(t, out, "2s")
	// Unfinished run renders a dash for duration.
	assert.Contains(t, out, "started")
	assert.Contains(t, out, "-")
}

func TestFormatDuration(t *testing.T) {
	completed := time.Now()

	assert.Equal(t, "-", formatDuration(model.Run{}))
	assert.Equal(t, "1.5s", formatDuration(model.Run{CompletedAt: &completed, DurationMS: 1500}))
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "aaaaaaaa", truncateID("aaaaaaaa-1111-2222-3333-444444444444"))
	assert.Equal(t, "short", truncateID("short"))
}
