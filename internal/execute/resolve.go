package execute

import "github.com/sells-group/signals/internal/model"

// ResolveRound maps a target selector to a round in the application
// snapshot. A nil selector, nil application, or unknown selector kind
// resolves to nil; the handler then reports a status result instead of
// raising.
func ResolveRound(target *model.TargetSelector, app *model.ApplicationSnapshot) *model.RoundSnapshot {
	if target == nil || app == nil {
		return nil
	}

	switch target.Kind {
	case model.SelectByID:
		for i := range app.Rounds {
			if app.Rounds[i].ID == target.RoundID {
				return &app.Rounds[i]
			}
		}
		return nil

	case model.SelectLatestPending:
		var best *model.RoundSnapshot
		for i := range app.Rounds {
			r := &app.Rounds[i]
			if r.Result != model.RoundResultPending {
				continue
			}
			if best == nil || laterScheduled(r, best) {
				best = r
			}
		}
		return best

	case model.SelectLatest:
		var best *model.RoundSnapshot
		for i := range app.Rounds {
			r := &app.Rounds[i]
			if best == nil || r.Position > best.Position {
				best = r
			}
		}
		return best

	default:
		return nil
	}
}

// laterScheduled orders by scheduled time, falling back to position for
// rounds without one.
func laterScheduled(a, b *model.RoundSnapshot) bool {
	switch {
	case a.ScheduledAt != nil && b.ScheduledAt != nil:
		if !a.ScheduledAt.Equal(*b.ScheduledAt) {
			return a.ScheduledAt.After(*b.ScheduledAt)
		}
		return a.Position > b.Position
	case a.ScheduledAt != nil:
		return true
	case b.ScheduledAt != nil:
		return false
	default:
		return a.Position > b.Position
	}
}
