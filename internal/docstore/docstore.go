// Package docstore is the gateway between the engine and the document store
// that holds one FamilyRecord per family.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dukerupert/kidquest/internal/model"
)

var (
	ErrNotFound = errors.New("family document not found")
	ErrExists   = errors.New("family document already exists")
	// ErrConflict is returned when Patch.IfVersion no longer matches.
	ErrConflict = errors.New("family document changed since it was read")
	// ErrAppendOnly is returned for any attempt to remove or replace logs.
	ErrAppendOnly = errors.New("logs are append-only")
)

// Snapshot is one observed state of a family document. Record is nil when
// the document does not exist. Snapshots may be shared between subscribers,
// so Record is read-only.
type Snapshot struct {
	FamilyID string
	Record   *model.FamilyRecord
	Version  int64
}

// Store reads and writes family documents.
type Store interface {
	Get(ctx context.Context, familyID string) (Snapshot, error)
	Create(ctx context.Context, familyID string, rec model.FamilyRecord) error
	Patch(ctx context.Context, familyID string, p Patch) (int64, error)
	// Subscribe emits the current snapshot and then every change until ctx
	// ends, when the channel is closed. Slow readers only see the latest.
	Subscribe(ctx context.Context, familyID string) (<-chan Snapshot, error)
}

// Patch is a set of field updates applied as one document write. A non-zero
// IfVersion makes the write conditional on the document's current version.
type Patch struct {
	IfVersion int64
	Updates   []Update
}

type Field string

const (
	FieldPin              Field = "pin"
	FieldTasks            Field = "tasks"
	FieldRewards          Field = "rewards"
	FieldProfiles         Field = "profiles"
	FieldHistory          Field = "history"
	FieldPendingApprovals Field = "pendingApprovals"
	FieldLogs             Field = "logs"
	FieldNotifications    Field = "notifications"
)

type Op int

const (
	OpSet Op = iota
	OpUnion
	OpRemove
)

func (o Op) String() string {
	switch o {
	case OpSet:
		return "set"
	case OpUnion:
		return "union"
	case OpRemove:
		return "remove"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Update is a whole-field replacement (OpSet, Value) or a set-like
// union/remove (Elems). Build them with the helper constructors.
type Update struct {
	Field Field
	Op    Op
	Value any
	Elems []any
}

func SetPin(hash string) Update { return Update{Field: FieldPin, Op: OpSet, Value: hash} }

func SetTasks(tasks []model.Task) Update {
	return Update{Field: FieldTasks, Op: OpSet, Value: tasks}
}

func SetRewards(rewards []model.Reward) Update {
	return Update{Field: FieldRewards, Op: OpSet, Value: rewards}
}

func SetProfiles(profiles []model.Profile) Update {
	return Update{Field: FieldProfiles, Op: OpSet, Value: profiles}
}

func SetHistory(h model.History) Update {
	return Update{Field: FieldHistory, Op: OpSet, Value: h}
}

func UnionPending(reqs ...model.PendingRequest) Update {
	return Update{Field: FieldPendingApprovals, Op: OpUnion, Elems: toAny(reqs)}
}

func RemovePending(reqs ...model.PendingRequest) Update {
	return Update{Field: FieldPendingApprovals, Op: OpRemove, Elems: toAny(reqs)}
}

func AppendLogs(entries ...model.LogEntry) Update {
	return Update{Field: FieldLogs, Op: OpUnion, Elems: toAny(entries)}
}

func UnionNotifications(ns ...model.Notification) Update {
	return Update{Field: FieldNotifications, Op: OpUnion, Elems: toAny(ns)}
}

func RemoveNotifications(ns ...model.Notification) Update {
	return Update{Field: FieldNotifications, Op: OpRemove, Elems: toAny(ns)}
}

func UnionProfiles(ps ...model.Profile) Update {
	return Update{Field: FieldProfiles, Op: OpUnion, Elems: toAny(ps)}
}

func RemoveProfiles(ps ...model.Profile) Update {
	return Update{Field: FieldProfiles, Op: OpRemove, Elems: toAny(ps)}
}

func toAny[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

// Apply applies u to rec in place. Union skips elements whose key is already
// present; remove matches by key. Keys are (taskId, kidId, date) for pending
// requests and ID for everything else.
func Apply(rec *model.FamilyRecord, u Update) error {
	if u.Field == FieldLogs && u.Op != OpUnion {
		return ErrAppendOnly
	}

	switch u.Op {
	case OpSet:
		return applySet(rec, u)
	case OpUnion, OpRemove:
		return applySetLike(rec, u)
	default:
		return fmt.Errorf("unknown op %v", u.Op)
	}
}

func applySet(rec *model.FamilyRecord, u Update) error {
	var ok bool
	switch u.Field {
	case FieldPin:
		rec.Pin, ok = u.Value.(string)
	case FieldTasks:
		rec.Tasks, ok = u.Value.([]model.Task)
	case FieldRewards:
		rec.Rewards, ok = u.Value.([]model.Reward)
	case FieldProfiles:
		rec.Profiles, ok = u.Value.([]model.Profile)
	case FieldHistory:
		rec.History, ok = u.Value.(model.History)
	case FieldPendingApprovals:
		rec.PendingApprovals, ok = u.Value.([]model.PendingRequest)
	case FieldNotifications:
		rec.Notifications, ok = u.Value.([]model.Notification)
	default:
		return fmt.Errorf("set %s: unknown field", u.Field)
	}
	if !ok {
		return fmt.Errorf("set %s: unexpected value type %T", u.Field, u.Value)
	}
	return nil
}

func applySetLike(rec *model.FamilyRecord, u Update) error {
	var err error
	switch u.Field {
	case FieldPendingApprovals:
		rec.PendingApprovals, err = merge(rec.PendingApprovals, u, func(a, b model.PendingRequest) bool { return a.SameKey(b) })
	case FieldLogs:
		rec.Logs, err = merge(rec.Logs, u, func(a, b model.LogEntry) bool { return a.ID == b.ID })
	case FieldNotifications:
		rec.Notifications, err = merge(rec.Notifications, u, func(a, b model.Notification) bool { return a.ID == b.ID })
	case FieldProfiles:
		rec.Profiles, err = merge(rec.Profiles, u, func(a, b model.Profile) bool { return a.ID == b.ID })
	default:
		return fmt.Errorf("%s %s: field is not set-like", u.Op, u.Field)
	}
	return err
}

func merge[T any](current []T, u Update, same func(a, b T) bool) ([]T, error) {
	out := slices.Clone(current)
	for _, e := range u.Elems {
		v, ok := e.(T)
		if !ok {
			return nil, fmt.Errorf("%s %s: unexpected element type %T", u.Op, u.Field, e)
		}
		matches := func(x T) bool { return same(x, v) }
		if u.Op == OpUnion {
			if !slices.ContainsFunc(out, matches) {
				out = append(out, v)
			}
			continue
		}
		out = slices.DeleteFunc(out, matches)
	}
	return out, nil
}
