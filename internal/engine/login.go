package engine

import (
	"context"

	"github.com/dukerupert/kidquest/internal/docstore"
	"github.com/dukerupert/kidquest/internal/model"
	"github.com/dukerupert/kidquest/internal/period"
)

// RecordLogin notes that profileID opened the app now. The first login of
// each (date, period) pair returns a summary and stamps the profile so a
// second login in the same period returns nil. found is false when the
// profile does not exist.
func (e *Engine) RecordLogin(ctx context.Context, familyID, profileID string) (summary *PeriodSummary, found bool, err error) {
	_, err = e.mutate(ctx, familyID, "record login", func(rec *model.FamilyRecord) ([]docstore.Update, error) {
		summary, found = nil, false
		p, ok := rec.Profile(profileID)
		if !ok {
			return nil, nil
		}
		found = true

		now := e.Now()
		date, current := period.DateKey(now), period.For(now)
		if p.LastLoginDate == date && p.LastLoginPeriod == current {
			return nil, nil
		}

		s := SummaryFor(rec, p, now)
		summary = &s
		p.LastLoginDate = date
		p.LastLoginPeriod = current
		return []docstore.Update{docstore.SetProfiles(rec.ReplaceProfile(p))}, nil
	})
	if err != nil {
		return nil, false, err
	}
	return summary, found, nil
}
