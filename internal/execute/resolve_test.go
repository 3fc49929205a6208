package execute

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/signals/internal/model"
)

func snapshotWithRounds() *model.ApplicationSnapshot {
	early := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)
	late := time.Date(2026, 1, 20, 10, 0, 0, 0, time.UTC)
	return &model.ApplicationSnapshot{
		ID: "app-1",
		Rounds: []model.RoundSnapshot{
			{ID: "round-1", Stage: "screening", Result: "passed", Position: 1, ScheduledAt: &early},
			{ID: "round-2", Stage: "onsite", Result: model.RoundResultPending, Position: 2, ScheduledAt: &early},
			{ID: "round-3", Stage: "onsite", Result: model.RoundResultPending, Position: 3, ScheduledAt: &late},
		},
	}
}

func TestResolveByID(t *testing.T) {
	app := snapshotWithRounds()
	got := ResolveRound(&model.TargetSelector{Kind: model.SelectByID, RoundID: "round-2"}, app)
	require.NotNil(t, got)
	assert.Equal(t, "round-2", got.ID)

	assert.Nil(t, ResolveRound(&model.TargetSelector{Kind: model.SelectByID, RoundID: "round-99"}, app))
}

func TestResolveLatestPending(t *testing.T) {
	app := snapshotWithRounds()
	got := ResolveRound(&model.TargetSelector{Kind: model.SelectLatestPending}, app)
	require.NotNil(t, got)
	assert.Equal(t, "round-3", got.ID)

	app.Rounds[1].Result = "failed"
	app.Rounds[2].Result = "failed"
	assert.Nil(t, ResolveRound(&model.TargetSelector{Kind: model.SelectLatestPending}, app))
}

func TestResolveLatestPendingWithoutSchedule(t *testing.T) {
	app := &model.ApplicationSnapshot{
		Rounds: []model.RoundSnapshot{
			{ID: "round-1", Result: model.RoundResultPending, Position: 1},
			{ID: "round-2", Result: model.RoundResultPending, Position: 2},
		},
	}
	got := ResolveRound(&model.TargetSelector{Kind: model.SelectLatestPending}, app)
	require.NotNil(t, got)
	assert.Equal(t, "round-2", got.ID)
}

func TestResolveLatest(t *testing.T) {
	app := snapshotWithRounds()
	got := ResolveRound(&model.TargetSelector{Kind: model.SelectLatest}, app)
	require.NotNil(t, got)
	assert.Equal(t, "round-3", got.ID)
}

func TestResolveEdgeCases(t *testing.T) {
	app := snapshotWithRounds()
	assert.Nil(t, ResolveRound(nil, app))
	assert.Nil(t, ResolveRound(&model.TargetSelector{Kind: model.SelectLatest}, nil))
	assert.Nil(t, ResolveRound(&model.TargetSelector{Kind: "newest"}, app))
	assert.Nil(t, ResolveRound(&model.TargetSelector{Kind: model.SelectLatest}, &model.ApplicationSnapshot{}))
}
