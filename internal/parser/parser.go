// Package parser turns raw pasted chat transcripts into normalized
// conversations.
//
// Parse is total: any input, including empty strings and binary garbage
// decoded as text, yields a valid Conversation — in the worst case with a
// single "unknown" message or no messages at all. This is deliberate:
// pasted text is human-supplied and must never be rejected outright. Do
// not "fix" unexpected input by returning an error here; the structured
// JSON import path in chatimport is the one that fails loudly.
package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yorbuachi72/valora/internal/models"
)

// Format labels the chat tool a transcript came from.
type Format string

// Supported transcript formats.
const (
	FormatChatGPT Format = "chatgpt"
	FormatClaude  Format = "claude"
	FormatGeneric Format = "generic"
)

// Participant role labels used in normalized messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleUnknown   = "unknown"
)

// dateLineRe matches date-only lines (D/D/YYYY or an ISO date prefix) that
// chat tools interleave between turns. Such lines are skipped, never
// appended to a message.
var dateLineRe = regexp.MustCompile(`^(\d{1,2}/\d{1,2}/\d{4}|\d{4}-\d{2}-\d{2})`)

// marker maps a case-insensitive line prefix to a participant role.
type marker struct {
	prefix string
	role   string
}

// Marker vocabularies per sub-parser. Longer prefixes first so "You said:"
// wins over "You:".
var (
	chatgptMarkers = []marker{
		{"you said:", RoleUser},
		{"chatgpt:", RoleAssistant},
		{"you:", RoleUser},
		{"gpt:", RoleAssistant},
		{"assistant:", RoleAssistant},
	}
	claudeMarkers = []marker{
		{"human:", RoleUser},
		{"claude:", RoleAssistant},
		{"you:", RoleUser},
		{"assistant:", RoleAssistant},
	}
	genericMarkers = []marker{
		{"user:", RoleUser},
		{"human:", RoleUser},
		{"you:", RoleUser},
		{"assistant:", RoleAssistant},
		{"ai:", RoleAssistant},
		{"bot:", RoleAssistant},
	}
)

// Detect classifies a transcript by its turn markers. ChatGPT exports carry
// "You said:" or "GPT:" markers; Claude exports carry "Claude:" or "Human:".
// Anything else falls back to the generic heuristic parser.
func Detect(text string) Format {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "you said:") || strings.Contains(lower, "gpt:") {
		return FormatChatGPT
	}
	if strings.Contains(lower, "claude:") || strings.Contains(lower, "human:") {
		return FormatClaude
	}
	return FormatGeneric
}

// Parse converts a raw transcript into a normalized conversation. An empty
// format triggers auto-detection; an empty conversationID gets a fresh id.
// Message timestamps are wall-clock-at-parse-time approximations — pasted
// transcripts rarely carry per-message times; we do not invent synthetic
// spacing between turns.
func Parse(text string, format Format, conversationID string) models.Conversation {
	if format == "" {
		format = Detect(text)
	}
	if conversationID == "" {
		conversationID = NewConversationID()
	}

	var messages []models.ChatMessage
	switch format {
	case FormatChatGPT:
		messages = scan(text, chatgptMarkers, false)
	case FormatClaude:
		messages = scan(text, claudeMarkers, false)
	default:
		format = FormatGeneric
		messages = scan(text, genericMarkers, true)
	}

	return models.Conversation{
		ConversationID: conversationID,
		Messages:       messages,
		Source:         string(format),
	}
}

// NewConversationID generates a fresh conversation identifier.
func NewConversationID() string {
	return "conv_" + uuid.NewString()
}

// scan walks the transcript line by line, accumulating the current turn and
// flushing it whenever a participant marker starts a new one. With alternate
// set (generic parser), a blank line also ends the current turn and the next
// markerless turn flips between user and assistant, so a two-party
// transcript without markers still alternates plausibly.
func scan(text string, markers []marker, alternate bool) []models.ChatMessage {
	var (
		messages    []models.ChatMessage
		buf         strings.Builder
		participant string
		isUserTurn  = true
	)

	flush := func() {
		content := strings.TrimSpace(buf.String())
		buf.Reset()
		if content == "" {
			return
		}
		who := participant
		if who == "" {
			who = RoleUnknown
		}
		messages = append(messages, models.ChatMessage{
			Participant: who,
			Content:     content,
			Timestamp:   time.Now(),
		})
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			if alternate && buf.Len() > 0 {
				flush()
				participant = ""
			}
			continue
		}
		if dateLineRe.MatchString(trimmed) {
			continue
		}

		if m, rest, ok := matchMarker(trimmed, markers); ok {
			flush()
			participant = m.role
			isUserTurn = m.role != RoleUser
			if rest != "" {
				buf.WriteString(rest)
			}
			continue
		}

		if buf.Len() > 0 {
			buf.WriteString("\n")
			buf.WriteString(trimmed)
			continue
		}

		// Markerless start of a turn.
		if participant == "" {
			if alternate {
				if isUserTurn {
					participant = RoleUser
				} else {
					participant = RoleAssistant
				}
				isUserTurn = !isUserTurn
			} else {
				participant = RoleUnknown
			}
		}
		buf.WriteString(trimmed)
	}

	flush()
	return messages
}

// matchMarker checks line against the vocabulary with a case-insensitive
// prefix match, returning the matched marker and the remainder of the line
// with the marker text stripped.
func matchMarker(line string, markers []marker) (marker, string, bool) {
	lower := strings.ToLower(line)
	for _, m := range markers {
		if strings.HasPrefix(lower, m.prefix) {
			return m, strings.TrimSpace(line[len(m.prefix):]), true
		}
	}
	return marker{}, "", false
}
