// Package models defines the domain types for Valora.
package models

import "time"

// ContentType classifies what kind of text a memory holds.
type ContentType string

// Known content types.
const (
	ContentChat          ContentType = "chat"
	ContentCode          ContentType = "code"
	ContentDocumentation ContentType = "documentation"
	ContentNote          ContentType = "note"
)

// Memory is the atomic unit of stored knowledge.
type Memory struct {
	ID           string         `json:"id"`
	Content      string         `json:"content"`
	Source       string         `json:"source"`
	Timestamp    time.Time      `json:"timestamp"`
	Version      int            `json:"version"`
	Tags         []string       `json:"tags,omitempty"`
	InferredTags []string       `json:"inferred_tags,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ContentType  ContentType    `json:"content_type"`

	// Denormalized from Metadata for chat-origin memories so hot paths
	// avoid metadata-bag lookups.
	ConversationID string `json:"conversation_id,omitempty"`
	Participant    string `json:"participant,omitempty"`
	Context        string `json:"context,omitempty"`
}

// MessageIndex returns the position of a chat-derived memory within its
// conversation, or -1 when the memory carries no index.
func (m *Memory) MessageIndex() int {
	if m.Metadata == nil {
		return -1
	}
	switch v := m.Metadata["messageIndex"].(type) {
	case int:
		return v
	case float64: // JSON round-trips numbers as float64
		return int(v)
	}
	return -1
}

// ChatMessage is one turn of a normalized conversation.
type ChatMessage struct {
	Participant string    `json:"participant"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
}

// Conversation is the normalized form every import path converges on.
type Conversation struct {
	ConversationID string         `json:"conversation_id"`
	Messages       []ChatMessage  `json:"messages"`
	Source         string         `json:"source"`
	Tags           []string       `json:"tags,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Context        string         `json:"context,omitempty"`
}
