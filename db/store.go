package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// commitBatchSize bounds the number of rows per INSERT statement.
const commitBatchSize = 200

// upsertColumns are overwritten when a mod with the same name already exists.
var upsertColumns = []string{
	"title", "owner", "summary", "category", "downloads_count",
	"factorio_version", "version", "released_at", "thumbnail", "updated_at",
}

// PersistenceError reports a failed read or write against the mod store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("mod store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ModStore owns the mods table. Readers take a Snapshot; the only writer is
// Commit, which applies all upserts of a cycle in one transaction.
type ModStore struct {
	db *gorm.DB
}

func NewModStore(db *gorm.DB) *ModStore {
	return &ModStore{db: db}
}

// Snapshot is an immutable view of the mods table at the time it was taken.
type Snapshot struct {
	mods map[string]Mod
}

// NewSnapshot builds a snapshot from records, mostly for tests.
func NewSnapshot(records []Mod) *Snapshot {
	s := &Snapshot{mods: make(map[string]Mod, len(records))}
	for _, m := range records {
		s.mods[m.Name] = m
	}
	return s
}

// Lookup returns the stored record for name.
func (s *Snapshot) Lookup(name string) (Mod, bool) {
	m, ok := s.mods[name]
	return m, ok
}

// Len returns the number of stored mods.
func (s *Snapshot) Len() int {
	return len(s.mods)
}

// Snapshot loads every stored mod.
func (s *ModStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	var records []Mod
	if err := s.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, &PersistenceError{Op: "snapshot", Err: err}
	}
	return NewSnapshot(records), nil
}

// Count returns the number of stored mods.
func (s *ModStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Mod{}).Count(&count).Error; err != nil {
		return 0, &PersistenceError{Op: "count", Err: err}
	}
	return count, nil
}

// Get returns the stored mod named name, or gorm.ErrRecordNotFound.
func (s *ModStore) Get(ctx context.Context, name string) (*Mod, error) {
	var m Mod
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "get", Err: err}
	}
	return &m, nil
}

// Recent returns up to limit mods ordered by release time, newest first.
func (s *ModStore) Recent(ctx context.Context, limit int) ([]Mod, error) {
	var records []Mod
	if err := s.db.WithContext(ctx).Order("released_at DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, &PersistenceError{Op: "recent", Err: err}
	}
	return records, nil
}

// Commit upserts records by name. Either every record lands or none does.
func (s *ModStore) Commit(ctx context.Context, records []Mod) error {
	if len(records) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(records); start += commitBatchSize {
			end := min(start+commitBatchSize, len(records))
			batch := make([]Mod, 0, end-start)
			for _, r := range records[start:end] {
				if r.Name == "" {
					return fmt.Errorf("record %d has no name", start+len(batch))
				}
				r.ID = 0 // conflicts are resolved on name, never on the surrogate key
				batch = append(batch, r)
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "name"}},
				DoUpdates: clause.AssignmentColumns(upsertColumns),
			}).Create(&batch).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &PersistenceError{Op: "commit", Err: err}
	}
	return nil
}
