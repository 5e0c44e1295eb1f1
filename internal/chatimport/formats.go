package chatimport

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/yorbuachi72/valora/internal/apperr"
	"github.com/yorbuachi72/valora/internal/models"
	"github.com/yorbuachi72/valora/internal/parser"
)

// ImportFromFormat dispatches raw content to a format-specific importer.
//
// The contracts are deliberately asymmetric: JSON is machine-generated and
// fails loudly on corruption, while the text and markdown importers are
// total — unrecognized structure degrades to a single opaque memory rather
// than an error. Do not "fix" the text/markdown paths by making them
// reject input.
func (s *Service) ImportFromFormat(ctx context.Context, content, format, source, conversationID string) ([]models.Memory, error) {
	switch strings.ToLower(format) {
	case "json":
		return s.importJSON(ctx, content, source, conversationID)
	case "text":
		return s.importText(ctx, content, source, conversationID)
	case "markdown":
		return s.importMarkdown(ctx, content, source, conversationID)
	default:
		return nil, fmt.Errorf("chatimport: unsupported format %q: %w", format, apperr.ErrInvalid)
	}
}

// importJSON accepts either a bare array of message-like objects or an
// object with a "messages" array plus optional conversation fields. Any
// other valid-JSON shape is embedded whole as a single opaque memory.
// Invalid JSON is a hard failure.
func (s *Service) importJSON(ctx context.Context, content, source, conversationID string) ([]models.Memory, error) {
	var raw any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("chatimport: invalid JSON: %w", err)
	}

	switch v := raw.(type) {
	case []any:
		if messages, ok := aliasedMessages(v); ok {
			return s.ImportChat(ctx, models.Conversation{
				ConversationID: conversationID,
				Messages:       messages,
				Source:         source,
			})
		}
	case map[string]any:
		if rawMsgs, ok := v["messages"].([]any); ok {
			messages, ok := aliasedMessages(rawMsgs)
			if !ok {
				break
			}
			conv := models.Conversation{
				ConversationID: conversationID,
				Messages:       messages,
				Source:         source,
				Tags:           stringSlice(v["tags"]),
				Context:        stringOr(v["context"], ""),
			}
			if meta, ok := v["metadata"].(map[string]any); ok {
				conv.Metadata = meta
			}
			if conv.ConversationID == "" {
				conv.ConversationID = stringOr(v["conversationId"], "")
			}
			return s.ImportChat(ctx, conv)
		}
	}

	// Shape not understood: keep the blob rather than losing it.
	return s.importOpaque(ctx, content, source, conversationID, "unknown-format")
}

// Text importer marker vocabulary.
var textMarkers = []struct {
	prefix      string
	participant string
}{
	{"user:", parser.RoleUser},
	{"human:", parser.RoleUser},
	{"assistant:", parser.RoleAssistant},
	{"ai:", parser.RoleAssistant},
}

// importText recognizes User:/Human:/Assistant:/AI: turn prefixes. With no
// structured turns at all, the whole text becomes one unstructured memory.
func (s *Service) importText(ctx context.Context, content, source, conversationID string) ([]models.Memory, error) {
	var (
		messages    []models.ChatMessage
		buf         strings.Builder
		participant string
	)

	flush := func() {
		text := strings.TrimSpace(buf.String())
		buf.Reset()
		if text == "" || participant == "" {
			return
		}
		messages = append(messages, models.ChatMessage{
			Participant: participant,
			Content:     text,
			Timestamp:   time.Now(),
		})
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)

		matched := false
		for _, m := range textMarkers {
			if strings.HasPrefix(lower, m.prefix) {
				flush()
				participant = m.participant
				buf.WriteString(strings.TrimSpace(trimmed[len(m.prefix):]))
				matched = true
				break
			}
		}
		if matched || trimmed == "" {
			continue
		}
		if participant != "" {
			if buf.Len() > 0 {
				buf.WriteString("\n")
			}
			buf.WriteString(trimmed)
		}
	}
	flush()

	if len(messages) == 0 {
		return s.importOpaque(ctx, content, source, conversationID, "unstructured")
	}
	return s.ImportChat(ctx, models.Conversation{
		ConversationID: conversationID,
		Messages:       messages,
		Source:         source,
	})
}

var markdownHeaderRe = regexp.MustCompile(`^#{1,3}\s+(.*)$`)

// importMarkdown treats #/##/### headers as turn boundaries. A header
// naming "user" or "human" starts a user turn; any other header starts an
// assistant turn. With no headers, the whole document becomes one
// unstructured memory.
func (s *Service) importMarkdown(ctx context.Context, content, source, conversationID string) ([]models.Memory, error) {
	var (
		messages    []models.ChatMessage
		buf         strings.Builder
		participant string
	)

	flush := func() {
		text := strings.TrimSpace(buf.String())
		buf.Reset()
		if text == "" || participant == "" {
			return
		}
		messages = append(messages, models.ChatMessage{
			Participant: participant,
			Content:     text,
			Timestamp:   time.Now(),
		})
	}

	for _, line := range strings.Split(content, "\n") {
		if m := markdownHeaderRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			flush()
			header := strings.ToLower(m[1])
			if strings.Contains(header, "user") || strings.Contains(header, "human") {
				participant = parser.RoleUser
			} else {
				participant = parser.RoleAssistant
			}
			continue
		}
		if participant != "" {
			if buf.Len() > 0 {
				buf.WriteString("\n")
			}
			buf.WriteString(strings.TrimRight(line, " \t"))
		}
	}
	flush()

	if len(messages) == 0 {
		return s.importOpaque(ctx, content, source, conversationID, "unstructured")
	}
	return s.ImportChat(ctx, models.Conversation{
		ConversationID: conversationID,
		Messages:       messages,
		Source:         source,
	})
}

// importOpaque stores unparseable content as a single memory so nothing a
// user pasted is ever silently dropped.
func (s *Service) importOpaque(ctx context.Context, content, source, conversationID, tag string) ([]models.Memory, error) {
	return s.ImportChat(ctx, models.Conversation{
		ConversationID: conversationID,
		Messages: []models.ChatMessage{{
			Participant: parser.RoleUnknown,
			Content:     content,
			Timestamp:   time.Now(),
		}},
		Source: source,
		Tags:   []string{tag},
	})
}

// aliasedMessages converts loosely-shaped message objects, tolerating the
// field aliases other tools emit: participant|role, content|message|text,
// optional RFC3339 timestamp. Returns false when any element is not an
// object.
func aliasedMessages(raw []any) ([]models.ChatMessage, bool) {
	messages := make([]models.ChatMessage, 0, len(raw))
	for _, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		msg := models.ChatMessage{
			Participant: firstString(obj, "participant", "role"),
			Content:     firstString(obj, "content", "message", "text"),
		}
		if msg.Participant == "" {
			msg.Participant = parser.RoleUnknown
		}
		if ts, ok := obj["timestamp"].(string); ok {
			if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
				msg.Timestamp = parsed
			}
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now()
		}
		messages = append(messages, msg)
	}
	return messages, true
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
