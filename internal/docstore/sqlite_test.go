package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/kidquest/internal/database"
	"github.com/dukerupert/kidquest/internal/model"
)

func setupSQLiteStore(t *testing.T) *SQLite {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLite(db)
}

func sampleRecord() model.FamilyRecord {
	return model.FamilyRecord{
		FamilyName: "Smith",
		Pin:        "hash",
		Tasks:      []model.Task{{ID: "t1", Text: "Make Bed", Points: 20}},
		Profiles:   []model.Profile{{ID: "kid", Name: "Ava", Points: 90}},
		History:    model.History{},
	}
}

func TestSQLiteGetAbsent(t *testing.T) {
	s := setupSQLiteStore(t)

	snap, err := s.Get(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if snap.Record != nil {
		t.Error("expected absent record")
	}
}

func TestSQLiteCreateAndGet(t *testing.T) {
	s := setupSQLiteStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, "fam", sampleRecord()); err != nil {
		t.Fatalf("create: %v", err)
	}
	snap, err := s.Get(ctx, "fam")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if snap.Record == nil {
		t.Fatal("expected record")
	}
	if snap.Version != 1 {
		t.Errorf("version = %d, want 1", snap.Version)
	}
	if snap.Record.FamilyName != "Smith" {
		t.Errorf("family name = %q", snap.Record.FamilyName)
	}

	if err := s.Create(ctx, "fam", sampleRecord()); !errors.Is(err, ErrExists) {
		t.Errorf("second create err = %v, want ErrExists", err)
	}
}

func TestSQLitePatchUnionRemove(t *testing.T) {
	s := setupSQLiteStore(t)
	ctx := context.Background()
	s.Create(ctx, "fam", sampleRecord())

	req := model.PendingRequest{TaskID: "t1", KidID: "kid", Date: "2026-03-14", Timestamp: time.Now()}
	v, err := s.Patch(ctx, "fam", Patch{Updates: []Update{UnionPending(req)}})
	if err != nil {
		t.Fatalf("union: %v", err)
	}
	if v != 2 {
		t.Errorf("version = %d, want 2", v)
	}

	// A second union with the same key is ignored.
	dup := req
	dup.Timestamp = req.Timestamp.Add(time.Minute)
	s.Patch(ctx, "fam", Patch{Updates: []Update{UnionPending(dup)}})

	snap, _ := s.Get(ctx, "fam")
	if len(snap.Record.PendingApprovals) != 1 {
		t.Fatalf("pending = %d, want 1", len(snap.Record.PendingApprovals))
	}

	if _, err := s.Patch(ctx, "fam", Patch{Updates: []Update{RemovePending(req)}}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	snap, _ = s.Get(ctx, "fam")
	if len(snap.Record.PendingApprovals) != 0 {
		t.Errorf("pending = %d, want 0", len(snap.Record.PendingApprovals))
	}
}

func TestSQLitePatchVersionConflict(t *testing.T) {
	s := setupSQLiteStore(t)
	ctx := context.Background()
	s.Create(ctx, "fam", sampleRecord())

	if _, err := s.Patch(ctx, "fam", Patch{IfVersion: 1, Updates: []Update{SetPin("a")}}); err != nil {
		t.Fatalf("first patch: %v", err)
	}
	_, err := s.Patch(ctx, "fam", Patch{IfVersion: 1, Updates: []Update{SetPin("b")}})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	snap, _ := s.Get(ctx, "fam")
	if snap.Record.Pin != "a" {
		t.Errorf("pin = %q, want a", snap.Record.Pin)
	}
}

func TestSQLitePatchMissing(t *testing.T) {
	s := setupSQLiteStore(t)
	_, err := s.Patch(context.Background(), "nobody", Patch{Updates: []Update{SetPin("a")}})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteLogsAppendOnly(t *testing.T) {
	s := setupSQLiteStore(t)
	ctx := context.Background()
	s.Create(ctx, "fam", sampleRecord())

	entry := model.LogEntry{ID: "l1", Action: model.ActionDeposit}
	if _, err := s.Patch(ctx, "fam", Patch{Updates: []Update{AppendLogs(entry)}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	remove := Update{Field: FieldLogs, Op: OpRemove, Elems: []any{entry}}
	if _, err := s.Patch(ctx, "fam", Patch{Updates: []Update{remove}}); !errors.Is(err, ErrAppendOnly) {
		t.Errorf("remove logs err = %v, want ErrAppendOnly", err)
	}
	set := Update{Field: FieldLogs, Op: OpSet, Value: []model.LogEntry{}}
	if _, err := s.Patch(ctx, "fam", Patch{Updates: []Update{set}}); !errors.Is(err, ErrAppendOnly) {
		t.Errorf("set logs err = %v, want ErrAppendOnly", err)
	}

	snap, _ := s.Get(ctx, "fam")
	if len(snap.Record.Logs) != 1 {
		t.Errorf("logs = %d, want 1", len(snap.Record.Logs))
	}
}

func TestSQLitePatchIsAtomic(t *testing.T) {
	s := setupSQLiteStore(t)
	ctx := context.Background()
	s.Create(ctx, "fam", sampleRecord())

	bad := Update{Field: FieldTasks, Op: OpSet, Value: "not tasks"}
	_, err := s.Patch(ctx, "fam", Patch{Updates: []Update{SetPin("changed"), bad}})
	if err == nil {
		t.Fatal("expected error for bad update")
	}
	snap, _ := s.Get(ctx, "fam")
	if snap.Record.Pin != "hash" || snap.Version != 1 {
		t.Errorf("partial write applied: pin=%q version=%d", snap.Record.Pin, snap.Version)
	}
}

func recv(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return Snapshot{}
}

func TestSQLiteSubscribe(t *testing.T) {
	s := setupSQLiteStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.Subscribe(ctx, "fam")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	first := recv(t, ch)
	if first.Record != nil {
		t.Error("expected absent initial snapshot")
	}

	s.Create(ctx, "fam", sampleRecord())
	created := recv(t, ch)
	if created.Record == nil || created.Version != 1 {
		t.Fatalf("created snapshot = %+v", created)
	}

	s.Patch(ctx, "fam", Patch{Updates: []Update{SetPin("x")}})
	patched := recv(t, ch)
	if patched.Version != 2 || patched.Record.Pin != "x" {
		t.Errorf("patched snapshot version=%d pin=%q", patched.Version, patched.Record.Pin)
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			// a final buffered value is allowed; the next read must see close
			if _, ok := <-ch; ok {
				t.Error("expected channel to close")
			}
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestSQLiteSubscribeCoalesces(t *testing.T) {
	s := setupSQLiteStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Create(ctx, "fam", sampleRecord())

	ch, _ := s.Subscribe(ctx, "fam")
	for i := 0; i < 5; i++ {
		s.Patch(ctx, "fam", Patch{Updates: []Update{SetPin("p")}})
	}

	snap := recv(t, ch)
	if snap.Version != 6 {
		t.Errorf("version = %d, want latest 6", snap.Version)
	}
}

func TestSQLiteSubscribeRestartable(t *testing.T) {
	s := setupSQLiteStore(t)
	s.Create(context.Background(), "fam", sampleRecord())

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		ch, err := s.Subscribe(ctx, "fam")
		if err != nil {
			t.Fatalf("subscribe %d: %v", i, err)
		}
		if snap := recv(t, ch); snap.Record == nil {
			t.Errorf("subscribe %d: expected record", i)
		}
		cancel()
	}

	deadline := time.Now().Add(time.Second)
	for s.Subscribers("fam") != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := s.Subscribers("fam"); n != 0 {
		t.Errorf("subscribers = %d, want 0", n)
	}
}
