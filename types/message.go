package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType tags a coordination message. The set is closed: consumers switch
// exhaustively over these values instead of comparing free-form strings.
type MessageType string

const (
	MessageRequest    MessageType = "request"
	MessageResponse   MessageType = "response"
	MessageStatus     MessageType = "status"
	MessageDirective  MessageType = "directive"
	MessageCheckpoint MessageType = "checkpoint"
)

// MessageTypes lists every valid message type.
func MessageTypes() []MessageType {
	return []MessageType{
		MessageRequest,
		MessageResponse,
		MessageStatus,
		MessageDirective,
		MessageCheckpoint,
	}
}

// ParseMessageType validates a raw tag against the closed set.
func ParseMessageType(s string) (MessageType, error) {
	switch mt := MessageType(s); mt {
	case MessageRequest, MessageResponse, MessageStatus, MessageDirective, MessageCheckpoint:
		return mt, nil
	default:
		return "", fmt.Errorf("unknown message type %q", s)
	}
}

// Valid reports whether the type belongs to the closed set.
func (mt MessageType) Valid() bool {
	_, err := ParseMessageType(string(mt))
	return err == nil
}

// Message is one entry on a coordination channel. A nil RecipientID means
// broadcast: the message is visible to every poller until each marks it read
// in its own reader context. The ID is a monotonic insertion counter and is
// the tie-break for identical timestamps.
type Message struct {
	ID          int64           `json:"id" gorm:"primaryKey;autoIncrement"`
	Channel     string          `json:"channel" gorm:"index:idx_messages_channel"`
	SenderID    string          `json:"sender_id"`
	RecipientID *string         `json:"recipient_id,omitempty" gorm:"index"`
	Type        MessageType     `json:"type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ReadAt      *time.Time      `json:"read_at,omitempty"`
}

// TableName maps Message to the agent_messages table.
func (Message) TableName() string { return "agent_messages" }

// Broadcast reports whether the message has no designated recipient.
func (m *Message) Broadcast() bool { return m.RecipientID == nil }

// MessageRead records that one reader has consumed a broadcast message.
// Read tracking for broadcasts is best-effort per reader, not exactly-once
// across readers.
type MessageRead struct {
	MessageID int64     `json:"message_id" gorm:"primaryKey;autoIncrement:false"`
	ReaderID  string    `json:"reader_id" gorm:"primaryKey"`
	ReadAt    time.Time `json:"read_at"`
}

// TableName maps MessageRead to the message_reads table.
func (MessageRead) TableName() string { return "message_reads" }
