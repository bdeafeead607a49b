package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/coterm/types"
)

// CheckClaim looks up the claim row for (file, project) and reports a
// conflict only when the claimant differs from sessionID. It deliberately
// does NOT check the claimant's liveness: staleness filtering is the caller's
// responsibility via IsActive, and a conflict is always advisory.
func (s *Store) CheckClaim(ctx context.Context, filePath, project, sessionID string) (types.ClaimStatus, error) {
	var claim types.FileClaim
	err := s.db.WithContext(ctx).
		Where("file_path = ? AND project = ?", filePath, project).
		First(&claim).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.ClaimStatus{}, nil
	}
	if err != nil {
		return types.ClaimStatus{}, err
	}

	if claim.SessionID == sessionID {
		return types.ClaimStatus{}, nil
	}

	claimedAt := claim.ClaimedAt
	return types.ClaimStatus{
		Claimed:   true,
		ClaimedBy: claim.SessionID,
		ClaimedAt: &claimedAt,
	}, nil
}

// Claim unconditionally takes or renews the claim on (file, project) for
// sessionID, regardless of the current holder. Last writer wins; there is no
// compare-and-swap and no fencing. Deliberately non-transactional with
// CheckClaim: a second session can always proceed past a warning.
func (s *Store) Claim(ctx context.Context, filePath, project, sessionID string) error {
	claim := types.FileClaim{
		FilePath:  filePath,
		Project:   project,
		SessionID: sessionID,
		ClaimedAt: s.now().UTC(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "file_path"}, {Name: "project"}},
		DoUpdates: clause.AssignmentColumns([]string{"session_id", "claimed_at"}),
	}).Create(&claim).Error
}
