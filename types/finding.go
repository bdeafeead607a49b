package types

import (
	"strings"
	"time"
)

// Finding is an append-only knowledge-sharing record: something one session
// learned that may be relevant to others working on the same codebase.
type Finding struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	SessionID  string    `json:"session_id" gorm:"index"`
	Topic      string    `json:"topic" gorm:"index"`
	Finding    string    `json:"finding"`
	RelevantTo string    `json:"relevant_to,omitempty"` // comma-separated tags
	CreatedAt  time.Time `json:"created_at"`
}

// TableName maps Finding to the findings table.
func (Finding) TableName() string { return "findings" }

// Tags splits the comma-separated RelevantTo field, trimming whitespace and
// dropping empties.
func (f *Finding) Tags() []string {
	if f.RelevantTo == "" {
		return nil
	}
	parts := strings.Split(f.RelevantTo, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// JoinTags builds the stored RelevantTo form from a tag list.
func JoinTags(tags []string) string {
	clean := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			clean = append(clean, t)
		}
	}
	return strings.Join(clean, ",")
}
