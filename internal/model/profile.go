package model

import (
	"time"

	"github.com/dukerupert/kidquest/internal/period"
)

type Profile struct {
	ID              string        `json:"id" firestore:"id"`
	Name            string        `json:"name" firestore:"name"`
	Pin             string        `json:"pin,omitempty" firestore:"pin,omitempty"`
	HasPIN          bool          `json:"hasPin,omitempty" firestore:"-"`
	Points          int           `json:"points" firestore:"points"`
	SavedPoints     int           `json:"savedPoints" firestore:"savedPoints"`
	Milestone       *Milestone    `json:"milestone,omitempty" firestore:"milestone,omitempty"`
	LastLoginDate   string        `json:"lastLoginDate,omitempty" firestore:"lastLoginDate,omitempty"`
	LastLoginPeriod period.Period `json:"lastLoginPeriod,omitempty" firestore:"lastLoginPeriod,omitempty"`
}

// Milestone is a long-term savings goal embedded in a profile.
type Milestone struct {
	Name     string     `json:"name" firestore:"name"`
	Target   int        `json:"target" firestore:"target"`
	Deadline *time.Time `json:"deadline,omitempty" firestore:"deadline,omitempty"`
}

// Progress returns min(100, points/target*100).
func (m Milestone) Progress(points int) float64 {
	if m.Target <= 0 {
		return 0
	}
	p := float64(points) / float64(m.Target) * 100
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}

// Expired reports whether the deadline has passed. Expiry is display-only;
// nothing deletes an expired milestone.
func (m Milestone) Expired(now time.Time) bool {
	return m.Deadline != nil && now.After(*m.Deadline)
}
