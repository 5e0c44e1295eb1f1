// Package chatimport persists normalized conversations as linked memory
// records.
package chatimport

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yorbuachi72/valora/internal/event"
	"github.com/yorbuachi72/valora/internal/models"
	"github.com/yorbuachi72/valora/internal/parser"
	"github.com/yorbuachi72/valora/internal/storage"
)

// Service converts conversations into persisted memory records.
type Service struct {
	store    storage.Provider
	notifier event.Dispatcher
}

// New creates a chat import service. notifier may be nil.
func New(store storage.Provider, notifier event.Dispatcher) *Service {
	return &Service{store: store, notifier: notifier}
}

// ImportChat persists each message of the conversation as its own memory
// record, in order, and returns the created records.
//
// Persistence is sequential and deliberately NOT transactional: if saving
// message k fails, messages 0..k-1 stay durably stored and the error is
// returned immediately. Callers must treat a partial import as a valid
// outcome — wrapping this in a transaction would silently change observable
// behavior for integrations that resume from partial imports.
func (s *Service) ImportChat(ctx context.Context, conv models.Conversation) ([]models.Memory, error) {
	if conv.ConversationID == "" {
		conv.ConversationID = parser.NewConversationID()
	}

	total := len(conv.Messages)
	created := make([]models.Memory, 0, total)

	for i, msg := range conv.Messages {
		m := buildMemory(conv, msg, i, total)
		if err := s.store.SaveMemory(ctx, &m); err != nil {
			return created, fmt.Errorf("chatimport: persist message %d: %w", i, err)
		}
		created = append(created, m)
	}

	if s.notifier != nil {
		s.notifier.Dispatch(ctx, event.ChatImported, conv)
	}
	return created, nil
}

// ConversationContext returns every memory belonging to a conversation.
// Ordering follows whatever the store returns; callers needing strict
// message order should sort by metadata.messageIndex.
func (s *Service) ConversationContext(ctx context.Context, conversationID string) ([]models.Memory, error) {
	return s.store.ConversationMemories(ctx, conversationID)
}

// buildMemory constructs one memory record carrying full conversation
// linkage metadata: the conversationId/messageIndex/totalMessages triple
// allows exact reconstruction independent of storage ordering.
func buildMemory(conv models.Conversation, msg models.ChatMessage, index, total int) models.Memory {
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	meta := make(map[string]any, len(conv.Metadata)+4)
	for k, v := range conv.Metadata {
		meta[k] = v
	}
	meta["conversationId"] = conv.ConversationID
	meta["participant"] = msg.Participant
	meta["messageIndex"] = index
	meta["totalMessages"] = total

	return models.Memory{
		ID:             uuid.NewString(),
		Content:        msg.Content,
		Source:         conv.Source,
		Timestamp:      ts,
		Version:        1,
		Tags:           withChatTags(conv.Tags),
		Metadata:       meta,
		ContentType:    models.ContentChat,
		ConversationID: conv.ConversationID,
		Participant:    msg.Participant,
		Context:        conv.Context,
	}
}

// withChatTags returns the caller tags unioned with the fixed chat tags,
// preserving caller order and deduplicating.
func withChatTags(tags []string) []string {
	out := make([]string, 0, len(tags)+2)
	seen := make(map[string]struct{}, len(tags)+2)
	for _, t := range append(append([]string{}, tags...), "chat", "conversation") {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
