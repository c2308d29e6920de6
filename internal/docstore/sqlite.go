package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dukerupert/kidquest/internal/model"
)

// SQLite keeps each family document as a JSON column with a version counter.
// Writes are serialized in-process and subscribers are notified after commit.
type SQLite struct {
	db     *sql.DB
	mu     sync.Mutex
	broker *broker
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db, broker: newBroker()}
}

func (s *SQLite) Get(ctx context.Context, familyID string) (Snapshot, error) {
	var version int64
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT version, document FROM families WHERE id = ?`, familyID,
	).Scan(&version, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{FamilyID: familyID}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("get family: %w", err)
	}

	rec, err := decode(doc)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{FamilyID: familyID, Record: rec, Version: version}, nil
}

func (s *SQLite) Create(ctx context.Context, familyID string, rec model.FamilyRecord) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode family: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO families (id, version, document) VALUES (?, 1, ?)`,
		familyID, string(doc),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrExists
		}
		return fmt.Errorf("insert family: %w", err)
	}

	s.broker.publish(Snapshot{FamilyID: familyID, Record: &rec, Version: 1})
	return nil
}

func (s *SQLite) Patch(ctx context.Context, familyID string, p Patch) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var version int64
	var doc string
	err = tx.QueryRowContext(ctx,
		`SELECT version, document FROM families WHERE id = ?`, familyID,
	).Scan(&version, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read family: %w", err)
	}
	if p.IfVersion != 0 && p.IfVersion != version {
		return 0, ErrConflict
	}

	rec, err := decode(doc)
	if err != nil {
		return 0, err
	}
	for _, u := range p.Updates {
		if err := Apply(rec, u); err != nil {
			return 0, err
		}
	}

	out, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("encode family: %w", err)
	}
	next := version + 1
	_, err = tx.ExecContext(ctx,
		`UPDATE families SET document = ?, version = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(out), next, familyID,
	)
	if err != nil {
		return 0, fmt.Errorf("update family: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	s.broker.publish(Snapshot{FamilyID: familyID, Record: rec, Version: next})
	return next, nil
}

func (s *SQLite) Subscribe(ctx context.Context, familyID string) (<-chan Snapshot, error) {
	sub := s.broker.add(familyID)

	snap, err := s.Get(ctx, familyID)
	if err != nil {
		s.broker.remove(familyID, sub)
		return nil, err
	}
	s.broker.deliver(sub, snap)

	go func() {
		<-ctx.Done()
		s.broker.remove(familyID, sub)
	}()
	return sub.ch, nil
}

// Subscribers returns the number of live subscriptions for a family.
func (s *SQLite) Subscribers(familyID string) int {
	return s.broker.count(familyID)
}

func decode(doc string) (*model.FamilyRecord, error) {
	var rec model.FamilyRecord
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return nil, fmt.Errorf("decode family: %w", err)
	}
	return &rec, nil
}
