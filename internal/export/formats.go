package export

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yorbuachi72/valora/internal/models"
)

// jsonFormatter serializes the memories as-is (pretty-printed). This is the
// only format guaranteed to round-trip back through the JSON importer.
type jsonFormatter struct{}

func (f *jsonFormatter) Format(memories []models.Memory) (string, error) {
	b, err := json.MarshalIndent(memories, "", "  ")
	if err != nil {
		return "", fmt.Errorf("export: marshal memories: %w", err)
	}
	return string(b) + "\n", nil
}

// markdownFormatter renders a documentation-oriented view: one block per
// memory with a small metadata preamble, delimited by horizontal rules.
type markdownFormatter struct{}

func (f *markdownFormatter) Format(memories []models.Memory) (string, error) {
	var b strings.Builder
	for i, m := range memories {
		if i > 0 {
			b.WriteString("---\n\n")
		}
		fmt.Fprintf(&b, "**Source:** %s\n", m.Source)
		fmt.Fprintf(&b, "**Timestamp:** %s\n", m.Timestamp.Format(time.RFC3339))
		if m.Participant != "" {
			fmt.Fprintf(&b, "**Participant:** %s\n", m.Participant)
		}
		if m.ConversationID != "" {
			fmt.Fprintf(&b, "**Conversation:** %s\n", m.ConversationID)
		}
		b.WriteString("\n")
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

// textFormatter renders plain-text blocks with header lines and a dashed
// separator.
type textFormatter struct{}

const textSeparator = "----------------------------------------"

func (f *textFormatter) Format(memories []models.Memory) (string, error) {
	var b strings.Builder
	for _, m := range memories {
		fmt.Fprintf(&b, "Source: %s\n", m.Source)
		fmt.Fprintf(&b, "Timestamp: %s\n", m.Timestamp.Format(time.RFC3339))
		if m.Participant != "" {
			fmt.Fprintf(&b, "Participant: %s\n", m.Participant)
		}
		if m.ConversationID != "" {
			fmt.Fprintf(&b, "Conversation: %s\n", m.ConversationID)
		}
		b.WriteString("\n")
		b.WriteString(m.Content)
		b.WriteString("\n")
		b.WriteString(textSeparator)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// conversationFormatter is the canonical format for pasting into another
// chat tool to continue a conversation: memories grouped by conversation,
// each group ordered by messageIndex.
type conversationFormatter struct{}

func (f *conversationFormatter) Format(memories []models.Memory) (string, error) {
	groups, order := groupByConversation(memories)

	var b strings.Builder
	for _, id := range order {
		group := groups[id]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].MessageIndex() < group[j].MessageIndex()
		})

		fmt.Fprintf(&b, "Conversation: %s\n\n", id)
		for _, m := range group {
			who := m.Participant
			if who == "" {
				who = "unknown"
			}
			fmt.Fprintf(&b, "%s:\n%s\n\n", who, m.Content)
		}
	}
	return b.String(), nil
}

// groupByConversation buckets memories by conversation id, keeping the
// first-seen group order so output is deterministic. Memories without a
// conversation id land in a synthetic group.
func groupByConversation(memories []models.Memory) (map[string][]models.Memory, []string) {
	const ungrouped = "ungrouped"

	groups := make(map[string][]models.Memory)
	var order []string
	for _, m := range memories {
		id := m.ConversationID
		if id == "" {
			id = ungrouped
		}
		if _, ok := groups[id]; !ok {
			order = append(order, id)
		}
		groups[id] = append(groups[id], m)
	}
	return groups, order
}
