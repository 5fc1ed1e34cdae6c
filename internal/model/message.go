package model

import "time"

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeSystem MessageType = "system"
)

type Message struct {
	ID             int64       `json:"id"`
	ConversationID int64       `json:"conversation_id"`
	SenderID       int64       `json:"sender_id"`
	Type           MessageType `json:"type"`
	Content        string      `json:"content"`
	Attachments    Attachments `json:"attachments"`
	CreatedAt      time.Time   `json:"created_at"`
	DeletedAt      *time.Time  `json:"deleted_at,omitempty"` // soft delete only, rows are never removed
}

// Attachments is the structured payload stored alongside a message. A relayed
// copy carries its forwarding provenance here, next to any file attachments.
type Attachments struct {
	Files   []FileAttachment   `json:"files,omitempty"`
	Forward *ForwardProvenance `json:"forward,omitempty"`
}

type FileAttachment struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// ForwardProvenance records where a relayed message came from.
type ForwardProvenance struct {
	SourceMessageID      int64 `json:"source_message_id"`
	SourceConversationID int64 `json:"source_conversation_id"`
	ForwardedByID        int64 `json:"forwarded_by_id"`
	OriginalSenderID     int64 `json:"original_sender_id"`
}

func (m *Message) IsDeleted() bool {
	return m.DeletedAt != nil
}
