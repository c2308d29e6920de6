package engine

import (
	"context"
	"fmt"

	"github.com/dukerupert/kidquest/internal/docstore"
	"github.com/dukerupert/kidquest/internal/model"
)

// RedeemReward spends wallet points on a reward. It returns false without
// changing anything when the wallet cannot cover the cost.
func (e *Engine) RedeemReward(ctx context.Context, familyID, profileID, rewardID string) (bool, error) {
	var reward model.Reward
	applied, err := e.mutate(ctx, familyID, "redeem reward", func(rec *model.FamilyRecord) ([]docstore.Update, error) {
		var ok bool
		reward, ok = rec.Reward(rewardID)
		if !ok {
			return nil, notFound("reward", rewardID)
		}
		p, ok := rec.Profile(profileID)
		if !ok {
			return nil, notFound("profile", profileID)
		}
		if p.Points < reward.Cost {
			return nil, nil
		}
		p.Points -= reward.Cost
		return []docstore.Update{
			docstore.SetProfiles(rec.ReplaceProfile(p)),
			docstore.AppendLogs(e.logEntry(model.ActionRewardRedeemed, fmt.Sprintf("%s redeemed %q", p.Name, reward.Text), -reward.Cost)),
		}, nil
	})
	if err != nil || !applied {
		return false, err
	}

	e.logger.Info("reward redeemed", "family_id", familyID, "profile_id", profileID, "reward_id", rewardID, "cost", reward.Cost)
	e.emit(Event{Kind: EventCelebrate, FamilyID: familyID, ProfileID: profileID, Data: map[string]any{"reward": reward.Text}})
	return true, nil
}

// DepositPoints moves amount from the wallet into savings. Amounts above the
// wallet balance are refused with false.
func (e *Engine) DepositPoints(ctx context.Context, familyID, profileID string, amount int) (bool, error) {
	if amount <= 0 {
		return false, NewValidationError("amount", "must be greater than zero")
	}
	applied, err := e.mutate(ctx, familyID, "deposit points", func(rec *model.FamilyRecord) ([]docstore.Update, error) {
		p, ok := rec.Profile(profileID)
		if !ok {
			return nil, notFound("profile", profileID)
		}
		if amount > p.Points {
			return nil, nil
		}
		p.Points -= amount
		p.SavedPoints += amount
		return []docstore.Update{
			docstore.SetProfiles(rec.ReplaceProfile(p)),
			docstore.AppendLogs(e.logEntry(model.ActionDeposit, fmt.Sprintf("%s deposited %d to Goal", p.Name, amount), 0)),
		}, nil
	})
	if err != nil || !applied {
		return false, err
	}

	e.logger.Info("points deposited", "family_id", familyID, "profile_id", profileID, "amount", amount)
	e.emit(Event{Kind: EventCelebrate, FamilyID: familyID, ProfileID: profileID, Data: map[string]any{"deposit": amount}})
	return true, nil
}

// MilestoneProgress returns min(100, points/target*100).
func MilestoneProgress(points, target int) float64 {
	return model.Milestone{Target: target}.Progress(points)
}
