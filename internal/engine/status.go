package engine

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/dukerupert/kidquest/internal/level"
	"github.com/dukerupert/kidquest/internal/model"
	"github.com/dukerupert/kidquest/internal/period"
)

type Status string

const (
	StatusNone    Status = "none"
	StatusPending Status = "pending"
	StatusDone    Status = "done"
)

type TaskWithStatus struct {
	model.Task
	Status Status `json:"status"`
	Active bool   `json:"active"`
}

// StatusOf evaluates a task against today's history and pending requests
// only. Earlier dates never affect the result.
func StatusOf(rec *model.FamilyRecord, profileID, taskID string, now time.Time) Status {
	date := period.DateKey(now)
	if rec.History.Has(date, profileID, taskID) {
		return StatusDone
	}
	key := model.PendingRequest{TaskID: taskID, KidID: profileID, Date: date}
	if _, ok := rec.FindPending(key); ok {
		return StatusPending
	}
	return StatusNone
}

// VisibleTasks returns the tasks assigned to profileID that are active at now,
// with their status.
func VisibleTasks(rec *model.FamilyRecord, profileID string, now time.Time) []TaskWithStatus {
	out := []TaskWithStatus{}
	for _, t := range rec.Tasks {
		if !t.AssignedToProfile(profileID) || !period.IsActive(t.TimeOfDay, now) {
			continue
		}
		out = append(out, TaskWithStatus{
			Task:   t,
			Status: StatusOf(rec, profileID, t.ID, now),
			Active: true,
		})
	}
	return out
}

// PeriodSummary is the once-per-period recap shown when a child logs in.
type PeriodSummary struct {
	KidName     string        `json:"kidName"`
	Date        string        `json:"date"`
	Period      period.Period `json:"period"`
	TasksCount  int           `json:"tasksCount"`
	TotalPoints int           `json:"totalPoints"`
}

// SummaryFor counts the tasks a child can still complete in the current
// period. Tasks already done today are left out.
func SummaryFor(rec *model.FamilyRecord, p model.Profile, now time.Time) PeriodSummary {
	s := PeriodSummary{
		KidName: p.Name,
		Date:    period.DateKey(now),
		Period:  period.For(now),
	}
	for _, t := range VisibleTasks(rec, p.ID, now) {
		if t.Status == StatusDone {
			continue
		}
		s.TasksCount++
		s.TotalPoints += t.Points
	}
	return s
}

type MilestoneView struct {
	model.Milestone
	Progress float64 `json:"progress"`
	Unlocked bool    `json:"unlocked"`
	Expired  bool    `json:"expired"`
}

type RewardView struct {
	model.Reward
	Affordable bool `json:"affordable"`
}

// Dashboard is everything a child's screen needs, derived from one snapshot.
type Dashboard struct {
	Profile       model.Profile        `json:"profile"`
	Date          string               `json:"date"`
	Period        period.Period        `json:"period"`
	PeriodEndsAt  *time.Time           `json:"periodEndsAt,omitempty"`
	Level         int                  `json:"level"`
	Rank          string               `json:"rank"`
	ToNextLevel   int                  `json:"toNextLevel"`
	LevelProgress int                  `json:"levelProgress"`
	Milestone     *MilestoneView       `json:"milestone,omitempty"`
	Tasks         []TaskWithStatus     `json:"tasks"`
	Rewards       []RewardView         `json:"rewards"`
	Notifications []model.Notification `json:"notifications"`
}

// BuildDashboard derives a Dashboard for profileID, or false if the profile
// does not exist.
func BuildDashboard(rec *model.FamilyRecord, profileID string, now time.Time) (Dashboard, bool) {
	p, ok := rec.Profile(profileID)
	if !ok {
		return Dashboard{}, false
	}
	redacted := p
	redacted.HasPIN = p.Pin != ""
	redacted.Pin = ""

	lvl := level.For(p.Points)
	d := Dashboard{
		Profile:       redacted,
		Date:          period.DateKey(now),
		Period:        period.For(now),
		Level:         lvl,
		Rank:          level.Rank(lvl),
		ToNextLevel:   level.ToNext(p.Points),
		LevelProgress: level.Progress(p.Points),
		Tasks:         VisibleTasks(rec, profileID, now),
		Rewards:       []RewardView{},
		Notifications: []model.Notification{},
	}
	if left, ok := period.TimeRemaining(now); ok {
		end := now.Add(left)
		d.PeriodEndsAt = &end
	}
	if p.Milestone != nil {
		d.Milestone = &MilestoneView{
			Milestone: *p.Milestone,
			Progress:  MilestoneProgress(p.Points, p.Milestone.Target),
			Unlocked:  p.Points >= p.Milestone.Target,
			Expired:   p.Milestone.Expired(now),
		}
	}
	for _, r := range rec.Rewards {
		d.Rewards = append(d.Rewards, RewardView{Reward: r, Affordable: p.Points >= r.Cost})
	}
	for _, n := range rec.Notifications {
		if n.KidID == profileID {
			d.Notifications = append(d.Notifications, n)
		}
	}
	return d, true
}

// Dashboard loads the family and builds the dashboard for profileID.
func (e *Engine) Dashboard(ctx context.Context, familyID, profileID string) (Dashboard, error) {
	rec, err := e.Family(ctx, familyID)
	if err != nil {
		return Dashboard{}, err
	}
	d, ok := BuildDashboard(rec, profileID, e.Now())
	if !ok {
		return Dashboard{}, notFound("profile", profileID)
	}
	return d, nil
}

// PendingItem is a pending request with the names a parent needs to decide.
type PendingItem struct {
	model.PendingRequest
	TaskText string `json:"taskText"`
	KidName  string `json:"kidName"`
	Points   int    `json:"points"`
}

// PendingApprovals lists every outstanding request, oldest first.
func (e *Engine) PendingApprovals(ctx context.Context, familyID string) ([]PendingItem, error) {
	rec, err := e.Family(ctx, familyID)
	if err != nil {
		return nil, err
	}
	out := make([]PendingItem, 0, len(rec.PendingApprovals))
	for _, req := range rec.PendingApprovals {
		item := PendingItem{PendingRequest: req}
		if t, ok := rec.Task(req.TaskID); ok {
			item.TaskText = t.Text
			item.Points = t.Points
		}
		if p, ok := rec.Profile(req.KidID); ok {
			item.KidName = p.Name
		}
		out = append(out, item)
	}
	slices.SortStableFunc(out, func(a, b PendingItem) int { return a.Timestamp.Compare(b.Timestamp) })
	return out, nil
}

// Logs returns the newest limit log entries, newest first. limit <= 0 returns
// all of them.
func (e *Engine) Logs(ctx context.Context, familyID string, limit int) ([]model.LogEntry, error) {
	rec, err := e.Family(ctx, familyID)
	if err != nil {
		return nil, err
	}
	logs := slices.Clone(rec.Logs)
	slices.Reverse(logs)
	slices.SortStableFunc(logs, func(a, b model.LogEntry) int {
		return cmp.Compare(b.Timestamp.UnixNano(), a.Timestamp.UnixNano())
	})
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	if logs == nil {
		logs = []model.LogEntry{}
	}
	return logs, nil
}
