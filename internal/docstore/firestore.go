package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dukerupert/kidquest/internal/model"
)

// DefaultCollection holds one document per family, keyed by account ID.
const DefaultCollection = "families"

// Firestore stores family documents in Cloud Firestore. Versions are the
// document update times in Unix nanoseconds.
type Firestore struct {
	client     *firestore.Client
	collection string
	logger     *slog.Logger
}

func NewFirestore(client *firestore.Client, collection string, logger *slog.Logger) *Firestore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Firestore{client: client, collection: collection, logger: logger}
}

func (f *Firestore) doc(familyID string) *firestore.DocumentRef {
	return f.client.Collection(f.collection).Doc(familyID)
}

func (f *Firestore) Get(ctx context.Context, familyID string) (Snapshot, error) {
	ds, err := f.doc(familyID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return Snapshot{FamilyID: familyID}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("get family: %w", err)
	}
	return toSnapshot(familyID, ds)
}

func (f *Firestore) Create(ctx context.Context, familyID string, rec model.FamilyRecord) error {
	_, err := f.doc(familyID).Create(ctx, rec)
	if status.Code(err) == codes.AlreadyExists {
		return ErrExists
	}
	if err != nil {
		return fmt.Errorf("create family: %w", err)
	}
	return nil
}

func (f *Firestore) Patch(ctx context.Context, familyID string, p Patch) (int64, error) {
	updates := make([]firestore.Update, 0, len(p.Updates))
	for _, u := range p.Updates {
		fu, err := toFirestoreUpdate(u)
		if err != nil {
			return 0, err
		}
		updates = append(updates, fu)
	}

	var preconds []firestore.Precondition
	if p.IfVersion != 0 {
		preconds = append(preconds, firestore.LastUpdateTime(time.Unix(0, p.IfVersion)))
	}

	wr, err := f.doc(familyID).Update(ctx, updates, preconds...)
	switch status.Code(err) {
	case codes.OK:
		return wr.UpdateTime.UnixNano(), nil
	case codes.NotFound:
		return 0, ErrNotFound
	case codes.FailedPrecondition:
		return 0, ErrConflict
	default:
		return 0, fmt.Errorf("update family: %w", err)
	}
}

func (f *Firestore) Subscribe(ctx context.Context, familyID string) (<-chan Snapshot, error) {
	sub := newSubscriber()
	it := f.doc(familyID).Snapshots(ctx)

	go func() {
		defer close(sub.ch)
		defer it.Stop()
		for {
			ds, err := it.Next()
			if err != nil {
				if ctx.Err() == nil {
					f.logger.Error("family snapshot stream", "family_id", familyID, "error", err)
				}
				return
			}
			if !ds.Exists() {
				sub.offer(Snapshot{FamilyID: familyID, Version: ds.ReadTime.UnixNano()})
				continue
			}
			snap, err := toSnapshot(familyID, ds)
			if err != nil {
				f.logger.Error("decode family snapshot", "family_id", familyID, "error", err)
				continue
			}
			sub.offer(snap)
		}
	}()
	return sub.ch, nil
}

func toSnapshot(familyID string, ds *firestore.DocumentSnapshot) (Snapshot, error) {
	var rec model.FamilyRecord
	if err := ds.DataTo(&rec); err != nil {
		return Snapshot{}, fmt.Errorf("decode family: %w", err)
	}
	return Snapshot{FamilyID: familyID, Record: &rec, Version: ds.UpdateTime.UnixNano()}, nil
}

func toFirestoreUpdate(u Update) (firestore.Update, error) {
	if u.Field == FieldLogs && u.Op != OpUnion {
		return firestore.Update{}, ErrAppendOnly
	}
	switch u.Op {
	case OpSet:
		return firestore.Update{Path: string(u.Field), Value: u.Value}, nil
	case OpUnion:
		return firestore.Update{Path: string(u.Field), Value: firestore.ArrayUnion(u.Elems...)}, nil
	case OpRemove:
		return firestore.Update{Path: string(u.Field), Value: firestore.ArrayRemove(u.Elems...)}, nil
	default:
		return firestore.Update{}, fmt.Errorf("unknown op %v", u.Op)
	}
}
