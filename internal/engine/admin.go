package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/kidquest/internal/docstore"
	"github.com/dukerupert/kidquest/internal/model"
	"github.com/dukerupert/kidquest/internal/period"
)

// FamilySetup is the input for creating a family document.
type FamilySetup struct {
	FamilyName string
	Pin        string
	Tasks      []model.Task
	Rewards    []model.Reward
}

// CreateFamily writes the initial document for familyID. Catalogue entries
// without IDs are given fresh ones.
func (e *Engine) CreateFamily(ctx context.Context, familyID string, setup FamilySetup) (*model.FamilyRecord, error) {
	var v validator
	v.check(strings.TrimSpace(setup.FamilyName) != "", "familyName", "is required")
	v.check(validPIN(setup.Pin), "pin", "must be exactly 4 digits")
	if err := v.err(); err != nil {
		return nil, err
	}

	hash, err := e.hashPIN(setup.Pin)
	if err != nil {
		return nil, err
	}

	rec := model.FamilyRecord{
		FamilyName:       strings.TrimSpace(setup.FamilyName),
		Pin:              hash,
		CreatedAt:        e.Now(),
		Tasks:            make([]model.Task, 0, len(setup.Tasks)),
		Rewards:          make([]model.Reward, 0, len(setup.Rewards)),
		Profiles:         []model.Profile{},
		History:          model.History{},
		PendingApprovals: []model.PendingRequest{},
		Logs:             []model.LogEntry{},
		Notifications:    []model.Notification{},
	}
	for _, t := range setup.Tasks {
		if t.ID == "" {
			t.ID = e.newID()
		}
		if t.TimeOfDay == "" {
			t.TimeOfDay = period.Any
		}
		rec.Tasks = append(rec.Tasks, t)
	}
	for _, r := range setup.Rewards {
		if r.ID == "" {
			r.ID = e.newID()
		}
		rec.Rewards = append(rec.Rewards, r)
	}

	if err := e.store.Create(ctx, familyID, rec); err != nil {
		if errors.Is(err, docstore.ErrExists) {
			return nil, ErrFamilyExists
		}
		e.logger.Error("failed to create family", "family_id", familyID, "error", err)
		return nil, fmt.Errorf("create family: %w", err)
	}
	e.logger.Info("family created", "family_id", familyID, "tasks", len(rec.Tasks), "rewards", len(rec.Rewards))
	return &rec, nil
}

// VerifyParentPIN returns ErrIncorrectPIN unless pin matches the family PIN.
func (e *Engine) VerifyParentPIN(ctx context.Context, familyID, pin string) error {
	rec, err := e.Family(ctx, familyID)
	if err != nil {
		return err
	}
	if rec.Pin == "" || bcrypt.CompareHashAndPassword([]byte(rec.Pin), []byte(pin)) != nil {
		return ErrIncorrectPIN
	}
	return nil
}

func (e *Engine) UpdateParentPIN(ctx context.Context, familyID, pin string) error {
	if !validPIN(pin) {
		return NewValidationError("pin", "must be exactly 4 digits")
	}
	hash, err := e.hashPIN(pin)
	if err != nil {
		return err
	}
	_, err = e.mutate(ctx, familyID, "update parent pin", func(*model.FamilyRecord) ([]docstore.Update, error) {
		return []docstore.Update{docstore.SetPin(hash)}, nil
	})
	return err
}

// TaskInput is the editable part of a task.
type TaskInput struct {
	Text       string   `json:"text"`
	Points     int      `json:"points"`
	AssignedTo []string `json:"assignedTo"`
	TimeOfDay  string   `json:"timeOfDay"`
}

func (in TaskInput) validate() (period.Period, error) {
	var v validator
	v.check(strings.TrimSpace(in.Text) != "", "text", "is required")
	v.check(in.Points > 0, "points", "must be greater than zero")
	p, err := period.Parse(in.TimeOfDay)
	v.check(err == nil, "timeOfDay", "must be any, morning, afternoon or evening")
	return p, v.err()
}

func (in TaskInput) apply(t model.Task, p period.Period) model.Task {
	t.Text = strings.TrimSpace(in.Text)
	t.Points = in.Points
	t.AssignedTo = slices.Clone(in.AssignedTo)
	if t.AssignedTo == nil {
		t.AssignedTo = []string{}
	}
	t.TimeOfDay = p
	return t
}

func (e *Engine) AddTask(ctx context.Context, familyID string, in TaskInput) (model.Task, error) {
	p, err := in.validate()
	if err != nil {
		return model.Task{}, err
	}
	task := in.apply(model.Task{ID: e.newID()}, p)
	_, err = e.mutate(ctx, familyID, "add task", func(rec *model.FamilyRecord) ([]docstore.Update, error) {
		return []docstore.Update{docstore.SetTasks(append(slices.Clone(rec.Tasks), task))}, nil
	})
	if err != nil {
		return model.Task{}, err
	}
	return task, nil
}

func (e *Engine) UpdateTask(ctx context.Context, familyID, taskID string, in TaskInput) (model.Task, error) {
	p, err := in.validate()
	if err != nil {
		return model.Task{}, err
	}
	var updated model.Task
	_, err = e.mutate(ctx, familyID, "update task", func(rec *model.FamilyRecord) ([]docstore.Update, error) {
		i := slices.IndexFunc(rec.Tasks, func(t model.Task) bool { return t.ID == taskID })
		if i < 0 {
			return nil, notFound("task", taskID)
		}
		tasks := slices.Clone(rec.Tasks)
		tasks[i] = in.apply(tasks[i], p)
		updated = tasks[i]
		return []docstore.Update{docstore.SetTasks(tasks)}, nil
	})
	if err != nil {
		return model.Task{}, err
	}
	return updated, nil
}

// DeleteTask removes a task along with any requests still waiting on it.
func (e *Engine) DeleteTask(ctx context.Context, familyID, taskID string) error {
	_, err := e.mutate(ctx, familyID, "delete task", func(rec *model.FamilyRecord) ([]docstore.Update, error) {
		if _, ok := rec.Task(taskID); !ok {
			return nil, notFound("task", taskID)
		}
		tasks := slices.DeleteFunc(slices.Clone(rec.Tasks), func(t model.Task) bool { return t.ID == taskID })
		updates := []docstore.Update{docstore.SetTasks(tasks)}
		if stale := pendingWhere(rec, func(p model.PendingRequest) bool { return p.TaskID == taskID }); len(stale) > 0 {
			updates = append(updates, docstore.RemovePending(stale...))
		}
		return updates, nil
	})
	return err
}

// RewardInput is the editable part of a reward.
type RewardInput struct {
	Text string `json:"text"`
	Cost int    `json:"cost"`
}

func (in RewardInput) validate() error {
	var v validator
	v.check(strings.TrimSpace(in.Text) != "", "text", "is required")
	v.check(in.Cost > 0, "cost", "must be greater than zero")
	return v.err()
}

func (e *Engine) AddReward(ctx context.Context, familyID string, in RewardInput) (model.Reward, error) {
	if err := in.validate(); err != nil {
		return model.Reward{}, err
	}
	reward := model.Reward{ID: e.newID(), Text: strings.TrimSpace(in.Text), Cost: in.Cost}
	_, err := e.mutate(ctx, familyID, "add reward", func(rec *model.FamilyRecord) ([]docstore.Update, error) {
		return []docstore.Update{docstore.SetRewards(append(slices.Clone(rec.Rewards), reward))}, nil
	})
	if err != nil {
		return model.Reward{}, err
	}
	return reward, nil
}

func (e *Engine) UpdateReward(ctx context.Context, familyID, rewardID string, in RewardInput) (model.Reward, error) {
	if err := in.validate(); err != nil {
		return model.Reward{}, err
	}
	updated := model.Reward{ID: rewardID, Text: strings.TrimSpace(in.Text), Cost: in.Cost}
	_, err := e.mutate(ctx, familyID, "update reward", func(rec *model.FamilyRecord) ([]docstore.Update, error) {
		i := slices.IndexFunc(rec.Rewards, func(r model.Reward) bool { return r.ID == rewardID })
		if i < 0 {
			return nil, notFound("reward", rewardID)
		}
		rewards := slices.Clone(rec.Rewards)
		rewards[i] = updated
		return []docstore.Update{docstore.SetRewards(rewards)}, nil
	})
	if err != nil {
		return model.Reward{}, err
	}
	return updated, nil
}

func (e *Engine) DeleteReward(ctx context.Context, familyID, rewardID string) error {
	_, err := e.mutate(ctx, familyID, "delete reward", func(rec *model.FamilyRecord) ([]docstore.Update, error) {
		if _, ok := rec.Reward(rewardID); !ok {
			return nil, notFound("reward", rewardID)
		}
		rewards := slices.DeleteFunc(slices.Clone(rec.Rewards), func(r model.Reward) bool { return r.ID == rewardID })
		return []docstore.Update{docstore.SetRewards(rewards)}, nil
	})
	return err
}

// ProfileInput creates or edits a child profile. On update a nil Pin keeps
// the current PIN and an empty one clears it.
type ProfileInput struct {
	Name           string           `json:"name"`
	Pin            *string          `json:"pin,omitempty"`
	Milestone      *model.Milestone `json:"milestone,omitempty"`
	ClearMilestone bool             `json:"clearMilestone,omitempty"`
	ResetPoints    bool             `json:"resetPoints,omitempty"`
}

func (in ProfileInput) validate() error {
	var v validator
	v.check(strings.TrimSpace(in.Name) != "", "name", "is required")
	if in.Pin != nil && *in.Pin != "" {
		v.check(validPIN(*in.Pin), "pin", "must be exactly 4 digits")
	}
	if in.Milestone != nil {
		v.check(strings.TrimSpace(in.Milestone.Name) != "", "milestone.name", "is required")
		v.check(in.Milestone.Target > 0, "milestone.target", "must be greater than zero")
	}
	return v.err()
}

func (e *Engine) applyProfile(in ProfileInput, p model.Profile) (model.Profile, error) {
	p.Name = strings.TrimSpace(in.Name)
	if in.Pin != nil {
		p.Pin = ""
		if *in.Pin != "" {
			hash, err := e.hashPIN(*in.Pin)
			if err != nil {
				return p, err
			}
			p.Pin = hash
		}
	}
	switch {
	case in.ClearMilestone:
		p.Milestone = nil
	case in.Milestone != nil:
		m := *in.Milestone
		m.Name = strings.TrimSpace(m.Name)
		p.Milestone = &m
	}
	if in.ResetPoints {
		p.Points = 0
	}
	return p, nil
}

func (e *Engine) AddProfile(ctx context.Context, familyID string, in ProfileInput) (model.Profile, error) {
	if err := in.validate(); err != nil {
		return model.Profile{}, err
	}
	in.ResetPoints = false
	p, err := e.applyProfile(in, model.Profile{ID: e.newID()})
	if err != nil {
		return model.Profile{}, err
	}
	_, err = e.mutate(ctx, familyID, "add profile", func(*model.FamilyRecord) ([]docstore.Update, error) {
		return []docstore.Update{docstore.UnionProfiles(p)}, nil
	})
	if err != nil {
		return model.Profile{}, err
	}
	e.logger.Info("profile added", "family_id", familyID, "profile_id", p.ID)
	return p, nil
}

func (e *Engine) UpdateProfile(ctx context.Context, familyID, profileID string, in ProfileInput) (model.Profile, error) {
	if err := in.validate(); err != nil {
		return model.Profile{}, err
	}
	var updated model.Profile
	_, err := e.mutate(ctx, familyID, "update profile", func(rec *model.FamilyRecord) ([]docstore.Update, error) {
		current, ok := rec.Profile(profileID)
		if !ok {
			return nil, notFound("profile", profileID)
		}
		p, err := e.applyProfile(in, current)
		if err != nil {
			return nil, err
		}
		updated = p
		return []docstore.Update{docstore.SetProfiles(rec.ReplaceProfile(p))}, nil
	})
	if err != nil {
		return model.Profile{}, err
	}
	return updated, nil
}

// RemoveProfile deletes a child and their outstanding requests and
// notifications. History and logs are kept for audit.
func (e *Engine) RemoveProfile(ctx context.Context, familyID, profileID string) (bool, error) {
	removed, err := e.mutate(ctx, familyID, "remove profile", func(rec *model.FamilyRecord) ([]docstore.Update, error) {
		p, ok := rec.Profile(profileID)
		if !ok {
			return nil, nil
		}
		updates := []docstore.Update{docstore.RemoveProfiles(p)}
		if stale := pendingWhere(rec, func(r model.PendingRequest) bool { return r.KidID == profileID }); len(stale) > 0 {
			updates = append(updates, docstore.RemovePending(stale...))
		}
		var notes []model.Notification
		for _, n := range rec.Notifications {
			if n.KidID == profileID {
				notes = append(notes, n)
			}
		}
		if len(notes) > 0 {
			updates = append(updates, docstore.RemoveNotifications(notes...))
		}
		return updates, nil
	})
	if err == nil && removed {
		e.logger.Info("profile removed", "family_id", familyID, "profile_id", profileID)
	}
	return removed, err
}

// VerifyProfilePIN checks a child's PIN. Profiles without a PIN always pass.
func (e *Engine) VerifyProfilePIN(ctx context.Context, familyID, profileID, pin string) error {
	rec, err := e.Family(ctx, familyID)
	if err != nil {
		return err
	}
	p, ok := rec.Profile(profileID)
	if !ok {
		return notFound("profile", profileID)
	}
	if p.Pin == "" {
		return nil
	}
	if bcrypt.CompareHashAndPassword([]byte(p.Pin), []byte(pin)) != nil {
		return ErrIncorrectPIN
	}
	return nil
}

func (e *Engine) hashPIN(pin string) (string, error) {
	cost := e.cfg.PINCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), cost)
	if err != nil {
		return "", fmt.Errorf("hash pin: %w", err)
	}
	return string(hash), nil
}

func pendingWhere(rec *model.FamilyRecord, match func(model.PendingRequest) bool) []model.PendingRequest {
	var out []model.PendingRequest
	for _, p := range rec.PendingApprovals {
		if match(p) {
			out = append(out, p)
		}
	}
	return out
}

func validPIN(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
