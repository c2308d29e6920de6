// Package session tracks which child is using each device. The state is
// local to the server process and is never written to the family document.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/dukerupert/kidquest/internal/engine"
)

// LoginRecorder is the part of the engine a Manager needs.
type LoginRecorder interface {
	RecordLogin(ctx context.Context, familyID, profileID string) (*engine.PeriodSummary, bool, error)
}

// Manager holds the active profile and pending period summary for one device.
type Manager struct {
	logins   LoginRecorder
	familyID string

	mu       sync.Mutex
	current  string
	summary  *engine.PeriodSummary
	lastSeen time.Time
}

func NewManager(logins LoginRecorder, familyID string) *Manager {
	return &Manager{logins: logins, familyID: familyID, lastSeen: time.Now()}
}

// SwitchProfile makes profileID the active profile. An unknown profile is
// ignored. The returned summary is nil unless this is the child's first login
// of the current date and period.
func (m *Manager) SwitchProfile(ctx context.Context, profileID string) (*engine.PeriodSummary, error) {
	summary, found, err := m.logins.RecordLogin(ctx, m.familyID, profileID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSeen = time.Now()
	if !found {
		return nil, nil
	}
	m.summary = summary
	m.current = profileID
	return summary, nil
}

// Current returns the active profile ID, or "" when nobody is logged in.
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSeen = time.Now()
	return m.current
}

func (m *Manager) Summary() *engine.PeriodSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summary
}

func (m *Manager) DismissSummary() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summary = nil
}

// Logout clears the active profile and its summary.
func (m *Manager) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = ""
	m.summary = nil
}

func (m *Manager) forget(profileID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == profileID {
		m.current = ""
		m.summary = nil
	}
}

func (m *Manager) idleSince() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSeen
}

type key struct {
	familyID string
	deviceID string
}

// Registry owns the Manager of every connected device.
type Registry struct {
	logins LoginRecorder

	mu       sync.Mutex
	managers map[key]*Manager
}

func NewRegistry(logins LoginRecorder) *Registry {
	return &Registry{logins: logins, managers: make(map[key]*Manager)}
}

// Get returns the Manager for a device, creating it on first use.
func (r *Registry) Get(familyID, deviceID string) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{familyID, deviceID}
	m, ok := r.managers[k]
	if !ok {
		m = NewManager(r.logins, familyID)
		r.managers[k] = m
	}
	return m
}

// Forget logs profileID out of every device in the family. Call it after a
// parent removes the profile.
func (r *Registry) Forget(familyID, profileID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, m := range r.managers {
		if k.familyID == familyID {
			m.forget(profileID)
		}
	}
}

// Cleanup drops managers idle for longer than maxIdle.
func (r *Registry) Cleanup(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	removed := 0
	for k, m := range r.managers {
		if m.idleSince().Before(cutoff) {
			delete(r.managers, k)
			removed++
		}
	}
	return removed
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.managers)
}
