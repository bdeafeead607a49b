package store

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/coterm/types"
)

// Send appends a message to a channel. A nil recipientID broadcasts. Returns
// the monotonic message id. The configured notifier is pinged after commit;
// a failed nudge is logged and swallowed because polling is the delivery
// contract.
func (s *Store) Send(ctx context.Context, channel, senderID string, mt types.MessageType, payload json.RawMessage, recipientID *string) (int64, error) {
	if !mt.Valid() {
		return 0, fmt.Errorf("invalid message type %q", mt)
	}
	if len(payload) > 0 && !json.Valid(payload) {
		return 0, fmt.Errorf("payload is not valid JSON")
	}

	msg := types.Message{
		Channel:     channel,
		SenderID:    senderID,
		RecipientID: recipientID,
		Type:        mt,
		Payload:     payload,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return 0, err
	}

	if s.opts.Notifier != nil {
		if err := s.opts.Notifier.Notify(ctx, channel); err != nil {
			s.logger.Debug("send notification failed",
				zap.String("channel", channel),
				zap.Error(err))
		}
	}

	return msg.ID, nil
}

// Receive returns every unread message addressed to recipientID or broadcast,
// optionally filtered by channel, oldest first (monotonic id order; the
// tie-break for identical timestamps). When markRead is true, returned rows
// are marked read in the same transaction: directed messages get read_at set,
// broadcasts get a per-reader read record.
//
// Ordering is guaranteed within a channel only; nothing is promised across
// channels.
func (s *Store) Receive(ctx context.Context, recipientID, channel string, markRead bool) ([]types.Message, error) {
	var out []types.Message

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&types.Message{}).
			Where("recipient_id = ? OR recipient_id IS NULL", recipientID).
			Where(`(recipient_id IS NOT NULL AND read_at IS NULL)
				OR (recipient_id IS NULL AND NOT EXISTS (
					SELECT 1 FROM message_reads mr
					WHERE mr.message_id = agent_messages.id AND mr.reader_id = ?))`, recipientID)
		if channel != "" {
			q = q.Where("channel = ?", channel)
		}

		if err := q.Order("id ASC").Find(&out).Error; err != nil {
			return err
		}
		if !markRead || len(out) == 0 {
			return nil
		}

		now := s.now().UTC()
		var directed []int64
		reads := make([]types.MessageRead, 0, len(out))
		for i := range out {
			if out[i].Broadcast() {
				reads = append(reads, types.MessageRead{
					MessageID: out[i].ID,
					ReaderID:  recipientID,
					ReadAt:    now,
				})
			} else {
				directed = append(directed, out[i].ID)
				out[i].ReadAt = &now
			}
		}

		if len(directed) > 0 {
			if err := tx.Model(&types.Message{}).
				Where("id IN ?", directed).
				Update("read_at", now).Error; err != nil {
				return err
			}
		}
		if len(reads) > 0 {
			if err := tx.Create(&reads).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Malformed persisted payloads never crash a reader; they degrade to
	// empty.
	for i := range out {
		if len(out[i].Payload) > 0 && !json.Valid(out[i].Payload) {
			s.logger.Warn("dropping malformed message payload",
				zap.Int64("message_id", out[i].ID))
			out[i].Payload = nil
		}
	}

	return out, nil
}
