package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/dukerupert/kidquest/internal/docstore"
	"github.com/dukerupert/kidquest/internal/level"
	"github.com/dukerupert/kidquest/internal/model"
	"github.com/dukerupert/kidquest/internal/period"
)

// Transition reports the status change caused by a child action.
type Transition struct {
	From Status `json:"from"`
	To   Status `json:"to"`
}

func (t Transition) Changed() bool { return t.From != t.To }

// Toggle advances a task for a child: NONE requests approval, PENDING
// cancels the request and DONE undoes the completion.
func (e *Engine) Toggle(ctx context.Context, familyID, profileID, taskID string) (Transition, error) {
	return e.toggle(ctx, familyID, profileID, taskID, false)
}

// Tap is the child-facing click. It ignores tasks that are waiting for a
// parent, so only a parent can resolve a pending request.
func (e *Engine) Tap(ctx context.Context, familyID, profileID, taskID string) (Transition, error) {
	return e.toggle(ctx, familyID, profileID, taskID, true)
}

func (e *Engine) toggle(ctx context.Context, familyID, profileID, taskID string, ignorePending bool) (Transition, error) {
	var tr Transition
	_, err := e.mutate(ctx, familyID, "toggle task", func(rec *model.FamilyRecord) ([]docstore.Update, error) {
		task, ok := rec.Task(taskID)
		if !ok {
			return nil, notFound("task", taskID)
		}
		profile, ok := rec.Profile(profileID)
		if !ok {
			return nil, notFound("profile", profileID)
		}

		// Children can only act on tasks their dashboard shows.
		now := e.Now()
		if !task.AssignedToProfile(profileID) || !period.IsActive(task.TimeOfDay, now) {
			return nil, notFound("task", taskID)
		}
		date := period.DateKey(now)
		status := StatusOf(rec, profileID, taskID, now)
		tr = Transition{From: status, To: status}

		switch status {
		case StatusDone:
			done := slices.DeleteFunc(slices.Clone(rec.History.Completed(date, profileID)), func(id string) bool { return id == taskID })
			profile.Points = max(0, profile.Points-task.Points)
			tr.To = StatusNone
			return []docstore.Update{
				docstore.SetHistory(rec.History.With(date, profileID, done)),
				docstore.SetProfiles(rec.ReplaceProfile(profile)),
				docstore.AppendLogs(e.logEntry(model.ActionUndoTask, fmt.Sprintf("%s undid %q", profile.Name, task.Text), -task.Points)),
			}, nil

		case StatusPending:
			if ignorePending {
				return nil, nil
			}
			stored, _ := rec.FindPending(model.PendingRequest{TaskID: taskID, KidID: profileID, Date: date})
			tr.To = StatusNone
			return []docstore.Update{docstore.RemovePending(stored)}, nil

		default:
			tr.To = StatusPending
			req := model.PendingRequest{TaskID: taskID, KidID: profileID, Date: date, Timestamp: now}
			return []docstore.Update{docstore.UnionPending(req)}, nil
		}
	})
	if err != nil {
		return Transition{}, err
	}
	if tr.Changed() {
		e.logger.Info("task toggled", "family_id", familyID, "profile_id", profileID, "task_id", taskID, "from", tr.From, "to", tr.To)
	}
	return tr, nil
}

// CancelRequest withdraws today's pending request for a task. It reports
// false if nothing was pending.
func (e *Engine) CancelRequest(ctx context.Context, familyID, profileID, taskID string) (bool, error) {
	return e.mutate(ctx, familyID, "cancel request", func(rec *model.FamilyRecord) ([]docstore.Update, error) {
		key := model.PendingRequest{TaskID: taskID, KidID: profileID, Date: period.DateKey(e.Now())}
		stored, ok := rec.FindPending(key)
		if !ok {
			return nil, nil
		}
		return []docstore.Update{docstore.RemovePending(stored)}, nil
	})
}

type ApproveResult struct {
	Applied bool                `json:"applied"`
	Points  int                 `json:"points"`
	LevelUp *model.Notification `json:"levelUp,omitempty"`
}

// Approve moves a pending request to DONE and credits the child. A request
// that is no longer pending, or whose task or child is gone, is ignored.
func (e *Engine) Approve(ctx context.Context, familyID string, req model.PendingRequest) (ApproveResult, error) {
	var res ApproveResult
	applied, err := e.mutate(ctx, familyID, "approve task", func(rec *model.FamilyRecord) ([]docstore.Update, error) {
		res = ApproveResult{}
		stored, ok := rec.FindPending(req)
		if !ok {
			return nil, nil
		}
		task, ok := rec.Task(stored.TaskID)
		if !ok {
			return nil, nil
		}
		kid, ok := rec.Profile(stored.KidID)
		if !ok {
			return nil, nil
		}

		updates := []docstore.Update{docstore.RemovePending(stored)}

		done := rec.History.Completed(stored.Date, kid.ID)
		if !slices.Contains(done, task.ID) {
			done = append(slices.Clone(done), task.ID)
			updates = append(updates, docstore.SetHistory(rec.History.With(stored.Date, kid.ID, done)))
		}

		oldLevel := level.For(kid.Points)
		kid.Points += task.Points
		newLevel := level.For(kid.Points)
		res.Points = kid.Points

		updates = append(updates,
			docstore.SetProfiles(rec.ReplaceProfile(kid)),
			docstore.AppendLogs(e.logEntry(model.ActionTaskApproved, fmt.Sprintf("%s completed %q", kid.Name, task.Text), task.Points)),
		)
		if newLevel > oldLevel {
			n := model.NewNotification(e.newID(), kid.ID, fmt.Sprintf("You reached Level %d!", newLevel), e.Now(),
				model.LevelUp{Level: newLevel, Rank: level.Rank(newLevel)})
			res.LevelUp = &n
			updates = append(updates, docstore.UnionNotifications(n))
		}
		return updates, nil
	})
	if err != nil {
		return ApproveResult{}, err
	}
	if !applied {
		return ApproveResult{}, nil
	}
	res.Applied = true

	e.logger.Info("task approved", "family_id", familyID, "profile_id", req.KidID, "task_id", req.TaskID, "points", res.Points)
	if res.LevelUp != nil {
		e.emit(Event{Kind: EventLevelUp, FamilyID: familyID, ProfileID: req.KidID, Data: map[string]any{
			"level": res.LevelUp.Level,
			"rank":  res.LevelUp.Rank,
		}})
	}
	return res, nil
}

// Reject sends a pending request back to NONE and tells the child. It
// reports false, with no log or notification, if the request is gone.
func (e *Engine) Reject(ctx context.Context, familyID string, req model.PendingRequest) (bool, error) {
	var taskName string
	applied, err := e.mutate(ctx, familyID, "reject task", func(rec *model.FamilyRecord) ([]docstore.Update, error) {
		taskName = ""
		stored, ok := rec.FindPending(req)
		if !ok {
			return nil, nil
		}
		updates := []docstore.Update{docstore.RemovePending(stored)}

		task, taskOK := rec.Task(stored.TaskID)
		kid, kidOK := rec.Profile(stored.KidID)
		if taskOK && kidOK {
			taskName = task.Text
			n := model.NewNotification(e.newID(), kid.ID, "This task was disapproved.", e.Now(), model.Rejection{TaskName: task.Text})
			updates = append(updates,
				docstore.AppendLogs(e.logEntry(model.ActionTaskRejected, fmt.Sprintf("Parent rejected %q for %s", task.Text, kid.Name), 0)),
				docstore.UnionNotifications(n),
			)
		}
		return updates, nil
	})
	if err != nil || !applied {
		return false, err
	}

	e.logger.Info("task rejected", "family_id", familyID, "profile_id", req.KidID, "task_id", req.TaskID)
	if taskName != "" {
		e.emit(Event{Kind: EventTaskRejected, FamilyID: familyID, ProfileID: req.KidID, Data: map[string]any{"taskName": taskName}})
	}
	return true, nil
}

// DismissNotification removes one of profileID's notifications. Another
// child's notification is left alone and reported as not applied.
func (e *Engine) DismissNotification(ctx context.Context, familyID, profileID, notificationID string) (bool, error) {
	return e.mutate(ctx, familyID, "dismiss notification", func(rec *model.FamilyRecord) ([]docstore.Update, error) {
		i := slices.IndexFunc(rec.Notifications, func(n model.Notification) bool {
			return n.ID == notificationID && n.KidID == profileID
		})
		if i < 0 {
			return nil, nil
		}
		return []docstore.Update{docstore.RemoveNotifications(rec.Notifications[i])}, nil
	})
}
