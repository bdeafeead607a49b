package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/coterm/types"
)

// RegisterOrTouch creates the session on first contact and refreshes its
// heartbeat on every subsequent call. Idempotent and safe under concurrent
// calls from multiple processes for the same id: registration is a single
// upsert, never insert-then-update. Project and workingOn overwrite the
// stored values only when non-empty.
//
// When re-arming is enabled and the existing row's heartbeat gap exceeds the
// threshold, the one-shot extraction marker is cleared first: a session
// resuming after a full idle period starts a fresh extraction lifecycle.
func (s *Store) RegisterOrTouch(ctx context.Context, sessionID, project, workingOn string) error {
	now := s.now().UTC()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.opts.RearmThreshold > 0 {
			cutoff := now.Add(-s.opts.RearmThreshold)
			if err := tx.Model(&types.Session{}).
				Where("id = ? AND last_heartbeat < ?", sessionID, cutoff).
				Update("memory_extracted_at", nil).Error; err != nil {
				return err
			}
		}

		assignments := map[string]any{"last_heartbeat": now}
		if project != "" {
			assignments["project"] = project
		}
		if workingOn != "" {
			assignments["working_on"] = workingOn
		}

		sess := types.Session{
			ID:            sessionID,
			Project:       project,
			WorkingOn:     workingOn,
			StartedAt:     now,
			LastHeartbeat: now,
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(assignments),
		}).Create(&sess).Error
	})
}

// IsActive reports whether the session's heartbeat falls within threshold.
// A missing row is "not active", not an error.
func (s *Store) IsActive(ctx context.Context, sessionID string, threshold time.Duration) (bool, error) {
	cutoff := s.now().UTC().Add(-threshold)

	var sess types.Session
	err := s.db.WithContext(ctx).
		Where("id = ? AND last_heartbeat >= ?", sessionID, cutoff).
		First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListActive returns sessions with a heartbeat within threshold, newest
// started first, optionally filtered by project.
func (s *Store) ListActive(ctx context.Context, threshold time.Duration, project string) ([]types.Session, error) {
	cutoff := s.now().UTC().Add(-threshold)

	q := s.db.WithContext(ctx).
		Where("last_heartbeat >= ?", cutoff).
		Order("started_at DESC")
	if project != "" {
		q = q.Where("project = ?", project)
	}

	var out []types.Session
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListStale returns the scanner's trigger set: sessions whose heartbeat has
// expired past threshold and which have not been marked extracted. Oldest
// heartbeat first so the longest-idle session is handled first.
func (s *Store) ListStale(ctx context.Context, threshold time.Duration) ([]types.Session, error) {
	cutoff := s.now().UTC().Add(-threshold)

	var out []types.Session
	err := s.db.WithContext(ctx).
		Where("last_heartbeat < ? AND memory_extracted_at IS NULL", cutoff).
		Order("last_heartbeat ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkExtracted sets the one-shot extraction timestamp. Idempotent: calling
// again overwrites the timestamp (last write wins) and is never an error,
// including for an unknown id.
func (s *Store) MarkExtracted(ctx context.Context, sessionID string) error {
	now := s.now().UTC()
	return s.db.WithContext(ctx).Model(&types.Session{}).
		Where("id = ?", sessionID).
		Update("memory_extracted_at", now).Error
}
