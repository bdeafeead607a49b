package types

import "time"

// FileClaim marks that a session is currently editing a file within a project.
//
// Claims are advisory, not exclusive: the registry is last-writer-wins with no
// compare-and-swap, and a conflicting claim only produces a warning for the
// human operating the other terminal. Do not build mutual exclusion on top of
// this type; that would require fencing tokens the model deliberately omits.
type FileClaim struct {
	FilePath  string    `json:"file_path" gorm:"primaryKey;column:file_path"`
	Project   string    `json:"project" gorm:"primaryKey"`
	SessionID string    `json:"session_id" gorm:"index"`
	ClaimedAt time.Time `json:"claimed_at"`
}

// TableName maps FileClaim to the file_claims table.
func (FileClaim) TableName() string { return "file_claims" }

// ClaimStatus is the result of a claim lookup from the perspective of one
// session. Claimed is false when no row exists or when the caller itself holds
// the claim.
type ClaimStatus struct {
	Claimed   bool       `json:"claimed"`
	ClaimedBy string     `json:"claimed_by,omitempty"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
}
