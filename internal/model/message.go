package model

import (
	"time"
)

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeVideo  MessageType = "video"
	MessageTypeAudio  MessageType = "audio"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

type Message struct {
	ID        string              `json:"id"`
	RoomID    string              `json:"room_id"`
	UserID    string              `json:"user_id"`
	Username  string              `json:"username"`
	Content   string              `json:"content"`
	Type      MessageType         `json:"type"`
	FileURL   string              `json:"file_url,omitempty"`
	FileName  string              `json:"file_name,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
	ExpiresAt *time.Time          `json:"expires_at,omitempty"`
	Reactions map[string][]string `json:"reactions,omitempty"` // emoji -> user IDs
	Pinned    bool                `json:"pinned,omitempty"`    // durable mode only
	ReadBy    []string            `json:"read_by,omitempty"`
}

// IsExpired reports whether the message's deadline has passed.
func (m *Message) IsExpired(now time.Time) bool {
	return m.ExpiresAt != nil && now.After(*m.ExpiresAt)
}

// HasFile reports whether the message references externally stored content.
func (m *Message) HasFile() bool {
	return m.FileURL != ""
}

// ToggleReaction adds userID under emoji, or removes it if already present.
// The return value reports whether the reaction is now set.
func (m *Message) ToggleReaction(emoji, userID string) bool {
	if m.Reactions == nil {
		m.Reactions = make(map[string][]string)
	}

	users := m.Reactions[emoji]
	for i, u := range users {
		if u == userID {
			users = append(users[:i], users[i+1:]...)
			if len(users) == 0 {
				delete(m.Reactions, emoji)
			} else {
				m.Reactions[emoji] = users
			}
			return false
		}
	}

	m.Reactions[emoji] = append(users, userID)
	return true
}

// MarkRead records that userID has acknowledged the message. Returns false
// if the user had already acknowledged it.
func (m *Message) MarkRead(userID string) bool {
	for _, u := range m.ReadBy {
		if u == userID {
			return false
		}
	}
	m.ReadBy = append(m.ReadBy, userID)
	return true
}
