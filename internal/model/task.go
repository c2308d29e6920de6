package model

import (
	"slices"

	"github.com/dukerupert/kidquest/internal/period"
)

// Task is a chore children can complete for points.
type Task struct {
	ID         string        `json:"id" firestore:"id"`
	Text       string        `json:"text" firestore:"text"`
	Points     int           `json:"points" firestore:"points"`
	AssignedTo []string      `json:"assignedTo" firestore:"assignedTo"`
	TimeOfDay  period.Period `json:"timeOfDay" firestore:"timeOfDay"`
}

// AssignedToProfile reports whether the task applies to profileID. An empty
// assignment list means every profile.
func (t Task) AssignedToProfile(profileID string) bool {
	return len(t.AssignedTo) == 0 || slices.Contains(t.AssignedTo, profileID)
}

// Reward is something a child can buy with wallet points.
type Reward struct {
	ID   string `json:"id" firestore:"id"`
	Text string `json:"text" firestore:"text"`
	Cost int    `json:"cost" firestore:"cost"`
}
