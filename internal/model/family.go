package model

import (
	"maps"
	"slices"
	"time"
)

// Log actions recorded by the workflow and economy.
const (
	ActionTaskApproved   = "Task Approved"
	ActionTaskRejected   = "Task Rejected"
	ActionUndoTask       = "Undo Task"
	ActionRewardRedeemed = "Reward Redeemed"
	ActionDeposit        = "Deposit"
)

// FamilyRecord is the single shared document for one family account.
type FamilyRecord struct {
	FamilyName       string           `json:"familyName" firestore:"familyName"`
	Pin              string           `json:"pin,omitempty" firestore:"pin"`
	CreatedAt        time.Time        `json:"createdAt" firestore:"createdAt"`
	Tasks            []Task           `json:"tasks" firestore:"tasks"`
	Rewards          []Reward         `json:"rewards" firestore:"rewards"`
	Profiles         []Profile        `json:"profiles" firestore:"profiles"`
	History          History          `json:"history" firestore:"history"`
	PendingApprovals []PendingRequest `json:"pendingApprovals" firestore:"pendingApprovals"`
	Logs             []LogEntry       `json:"logs" firestore:"logs"`
	Notifications    []Notification   `json:"notifications" firestore:"notifications"`
}

// History maps date key -> profile ID -> completed task IDs.
type History map[string]map[string][]string

// Completed returns the task IDs profileID completed on date.
func (h History) Completed(date, profileID string) []string {
	return h[date][profileID]
}

// Has reports whether taskID is recorded for profileID on date.
func (h History) Has(date, profileID, taskID string) bool {
	return slices.Contains(h[date][profileID], taskID)
}

// With returns a copy of h with taskIDs as the completions for profileID on
// date. Other dates and profiles are shared with h, not copied.
func (h History) With(date, profileID string, taskIDs []string) History {
	out := maps.Clone(h)
	if out == nil {
		out = History{}
	}
	day := maps.Clone(out[date])
	if day == nil {
		day = map[string][]string{}
	}
	day[profileID] = taskIDs
	out[date] = day
	return out
}

// PendingRequest is a child's completion awaiting a parent decision. It is
// identified by (TaskID, KidID, Date).
type PendingRequest struct {
	TaskID    string    `json:"taskId" firestore:"taskId"`
	KidID     string    `json:"kidId" firestore:"kidId"`
	Date      string    `json:"date" firestore:"date"`
	Timestamp time.Time `json:"timestamp" firestore:"timestamp"`
}

// SameKey reports whether p and o refer to the same task, kid and date.
func (p PendingRequest) SameKey(o PendingRequest) bool {
	return p.TaskID == o.TaskID && p.KidID == o.KidID && p.Date == o.Date
}

// LogEntry is an append-only audit record.
type LogEntry struct {
	ID        string    `json:"id" firestore:"id"`
	Action    string    `json:"action" firestore:"action"`
	Details   string    `json:"details" firestore:"details"`
	Points    int       `json:"points" firestore:"points"`
	Timestamp time.Time `json:"timestamp" firestore:"timestamp"`
}

func (r *FamilyRecord) Task(id string) (Task, bool) {
	i := slices.IndexFunc(r.Tasks, func(t Task) bool { return t.ID == id })
	if i < 0 {
		return Task{}, false
	}
	return r.Tasks[i], true
}

func (r *FamilyRecord) Reward(id string) (Reward, bool) {
	i := slices.IndexFunc(r.Rewards, func(rw Reward) bool { return rw.ID == id })
	if i < 0 {
		return Reward{}, false
	}
	return r.Rewards[i], true
}

func (r *FamilyRecord) Profile(id string) (Profile, bool) {
	i := slices.IndexFunc(r.Profiles, func(p Profile) bool { return p.ID == id })
	if i < 0 {
		return Profile{}, false
	}
	return r.Profiles[i], true
}

// FindPending returns the stored request matching the key of req.
func (r *FamilyRecord) FindPending(req PendingRequest) (PendingRequest, bool) {
	i := slices.IndexFunc(r.PendingApprovals, req.SameKey)
	if i < 0 {
		return PendingRequest{}, false
	}
	return r.PendingApprovals[i], true
}

// ReplaceProfile returns a copy of the profile list with p substituted for the
// profile of the same ID.
func (r *FamilyRecord) ReplaceProfile(p Profile) []Profile {
	out := slices.Clone(r.Profiles)
	for i := range out {
		if out[i].ID == p.ID {
			out[i] = p
		}
	}
	return out
}

// Redacted returns a copy safe to send to clients: PIN hashes are removed and
// HasPIN is set instead.
func (r FamilyRecord) Redacted() FamilyRecord {
	r.Pin = ""
	r.Profiles = slices.Clone(r.Profiles)
	for i := range r.Profiles {
		r.Profiles[i].HasPIN = r.Profiles[i].Pin != ""
		r.Profiles[i].Pin = ""
	}
	return r
}
