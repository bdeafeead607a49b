package store

import (
	"context"

	"github.com/BaSui01/coterm/types"
)

// AddFinding appends a knowledge-sharing record. Findings are never updated
// or deleted.
func (s *Store) AddFinding(ctx context.Context, sessionID, topic, finding string, relevantTo []string) (int64, error) {
	f := types.Finding{
		SessionID:  sessionID,
		Topic:      topic,
		Finding:    finding,
		RelevantTo: types.JoinTags(relevantTo),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&f).Error; err != nil {
		return 0, err
	}
	return f.ID, nil
}

// SearchFindings matches query as a substring against topic and tags,
// excluding the querying session's own findings, newest first.
func (s *Store) SearchFindings(ctx context.Context, query, excludeSessionID string) ([]types.Finding, error) {
	pattern := "%" + query + "%"

	var out []types.Finding
	err := s.db.WithContext(ctx).
		Where("session_id <> ?", excludeSessionID).
		Where("topic LIKE ? OR relevant_to LIKE ?", pattern, pattern).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
