package chatimport

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/yorbuachi72/valora/internal/apperr"
	"github.com/yorbuachi72/valora/internal/event"
	"github.com/yorbuachi72/valora/internal/export"
	"github.com/yorbuachi72/valora/internal/models"
	"github.com/yorbuachi72/valora/internal/storage"
)

// fakeStore is an in-memory Provider that can be told to fail after N saves.
type fakeStore struct {
	saved     []models.Memory
	failAfter int // -1 means never fail
}

func newFakeStore() *fakeStore { return &fakeStore{failAfter: -1} }

func (f *fakeStore) SaveMemory(_ context.Context, m *models.Memory) error {
	if f.failAfter >= 0 && len(f.saved) >= f.failAfter {
		return errors.New("disk full")
	}
	f.saved = append(f.saved, *m)
	return nil
}

func (f *fakeStore) GetMemory(_ context.Context, id string) (*models.Memory, error) {
	for i := range f.saved {
		if f.saved[i].ID == id {
			return &f.saved[i], nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (f *fakeStore) SearchMemories(_ context.Context, _ string, _ int) ([]models.Memory, error) {
	return nil, nil
}

func (f *fakeStore) UpdateMemory(_ context.Context, _ string, _ storage.Patch) (*models.Memory, error) {
	return nil, apperr.ErrNotFound
}

func (f *fakeStore) DeleteMemory(_ context.Context, _ string) error { return nil }

func (f *fakeStore) ConversationMemories(_ context.Context, id string) ([]models.Memory, error) {
	var out []models.Memory
	for _, m := range f.saved {
		if m.ConversationID == id {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) ListMemories(_ context.Context, _, _ int, _ string) ([]models.Memory, int, error) {
	return f.saved, len(f.saved), nil
}

func (f *fakeStore) Close() error { return nil }

// recorder captures emitted events.
type recorder struct {
	events []event.Type
}

func (r *recorder) Dispatch(_ context.Context, t event.Type, _ any) {
	r.events = append(r.events, t)
}

func TestImportChat_LinkageMetadata(t *testing.T) {
	store := newFakeStore()
	svc := New(store, nil)

	t1 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	created, err := svc.ImportChat(context.Background(), models.Conversation{
		ConversationID: "c1",
		Messages: []models.ChatMessage{
			{Participant: "user", Content: "hi", Timestamp: t1},
		},
		Source: "x",
	})
	if err != nil {
		t.Fatalf("ImportChat: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("len = %d, want 1", len(created))
	}

	m := created[0]
	if m.Metadata["conversationId"] != "c1" {
		t.Errorf("conversationId = %v", m.Metadata["conversationId"])
	}
	if m.Metadata["messageIndex"] != 0 || m.Metadata["totalMessages"] != 1 {
		t.Errorf("index/total = %v/%v", m.Metadata["messageIndex"], m.Metadata["totalMessages"])
	}
	if m.Timestamp != t1 {
		t.Errorf("timestamp = %v, want %v", m.Timestamp, t1)
	}
	if m.ContentType != models.ContentChat {
		t.Errorf("contentType = %q", m.ContentType)
	}
	for _, want := range []string{"chat", "conversation"} {
		if !hasTag(m.Tags, want) {
			t.Errorf("tags %v missing %q", m.Tags, want)
		}
	}
}

func TestImportChat_OrderPreserved(t *testing.T) {
	store := newFakeStore()
	svc := New(store, nil)

	conv := models.Conversation{ConversationID: "c1", Source: "x"}
	for i := 0; i < 5; i++ {
		conv.Messages = append(conv.Messages, models.ChatMessage{
			Participant: "user",
			Content:     strings.Repeat("x", i+1),
		})
	}

	created, err := svc.ImportChat(context.Background(), conv)
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 5 {
		t.Fatalf("len = %d, want 5", len(created))
	}
	for i, m := range created {
		if m.MessageIndex() != i {
			t.Errorf("position %d has messageIndex %d", i, m.MessageIndex())
		}
		if m.Content != conv.Messages[i].Content {
			t.Errorf("position %d content = %q", i, m.Content)
		}
	}
}

func TestImportChat_PartialPersistenceOnFailure(t *testing.T) {
	store := newFakeStore()
	store.failAfter = 2
	svc := New(store, nil)

	conv := models.Conversation{ConversationID: "c1", Source: "x"}
	for i := 0; i < 4; i++ {
		conv.Messages = append(conv.Messages, models.ChatMessage{Participant: "user", Content: "m"})
	}

	created, err := svc.ImportChat(context.Background(), conv)
	if err == nil {
		t.Fatal("expected error")
	}
	// Messages before the failure stay stored and are returned; nothing
	// after the failure is persisted.
	if len(created) != 2 || len(store.saved) != 2 {
		t.Errorf("created = %d saved = %d, want 2/2", len(created), len(store.saved))
	}
}

func TestImportChat_EmitsChatImported(t *testing.T) {
	rec := &recorder{}
	svc := New(newFakeStore(), rec)

	_, err := svc.ImportChat(context.Background(), models.Conversation{
		ConversationID: "c1",
		Messages:       []models.ChatMessage{{Participant: "user", Content: "hi"}},
		Source:         "x",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.events) != 1 || rec.events[0] != event.ChatImported {
		t.Errorf("events = %v", rec.events)
	}
}

func TestImportChat_GeneratesConversationID(t *testing.T) {
	svc := New(newFakeStore(), nil)
	created, err := svc.ImportChat(context.Background(), models.Conversation{
		Messages: []models.ChatMessage{{Participant: "user", Content: "hi"}},
		Source:   "x",
	})
	if err != nil {
		t.Fatal(err)
	}
	if created[0].ConversationID == "" {
		t.Error("expected generated conversation id")
	}
}

func TestImportFromFormat_JSONArrayWithAliases(t *testing.T) {
	svc := New(newFakeStore(), nil)
	content := `[{"role":"user","message":"hi"},{"participant":"assistant","text":"hello"}]`

	created, err := svc.ImportFromFormat(context.Background(), content, "json", "chatgpt", "c1")
	if err != nil {
		t.Fatalf("ImportFromFormat: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("len = %d, want 2", len(created))
	}
	if created[0].Participant != "user" || created[0].Content != "hi" {
		t.Errorf("first = %q/%q", created[0].Participant, created[0].Content)
	}
	if created[1].Participant != "assistant" || created[1].Content != "hello" {
		t.Errorf("second = %q/%q", created[1].Participant, created[1].Content)
	}
}

func TestImportFromFormat_JSONObjectWithMessages(t *testing.T) {
	svc := New(newFakeStore(), nil)
	content := `{"conversationId":"c9","messages":[{"participant":"user","content":"hi"}],"tags":["work"],"context":"standup"}`

	created, err := svc.ImportFromFormat(context.Background(), content, "json", "claude", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 1 {
		t.Fatalf("len = %d", len(created))
	}
	m := created[0]
	if m.ConversationID != "c9" || m.Context != "standup" {
		t.Errorf("conv = %q context = %q", m.ConversationID, m.Context)
	}
	if !hasTag(m.Tags, "work") || !hasTag(m.Tags, "chat") {
		t.Errorf("tags = %v", m.Tags)
	}
}

func TestImportFromFormat_InvalidJSONFailsLoudly(t *testing.T) {
	svc := New(newFakeStore(), nil)
	if _, err := svc.ImportFromFormat(context.Background(), "{not json", "json", "x", ""); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestImportFromFormat_JSONUnknownShapeKeptOpaque(t *testing.T) {
	store := newFakeStore()
	svc := New(store, nil)
	content := `{"foo":"bar"}`

	created, err := svc.ImportFromFormat(context.Background(), content, "json", "x", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 1 {
		t.Fatalf("len = %d, want 1", len(created))
	}
	if created[0].Content != content || !hasTag(created[0].Tags, "unknown-format") {
		t.Errorf("opaque memory = %+v", created[0])
	}
}

func TestImportFromFormat_TextMarkers(t *testing.T) {
	svc := New(newFakeStore(), nil)
	content := "User: hi there\nsecond line\nAssistant: hello!"

	created, err := svc.ImportFromFormat(context.Background(), content, "text", "x", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 2 {
		t.Fatalf("len = %d, want 2", len(created))
	}
	if created[0].Content != "hi there\nsecond line" {
		t.Errorf("first content = %q", created[0].Content)
	}
	if created[1].Participant != "assistant" {
		t.Errorf("second participant = %q", created[1].Participant)
	}
}

func TestImportFromFormat_TextWithoutMarkersNeverFails(t *testing.T) {
	store := newFakeStore()
	svc := New(store, nil)
	content := "just a wall of text\nwith no structure at all"

	created, err := svc.ImportFromFormat(context.Background(), content, "text", "x", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 1 || created[0].Content != content {
		t.Errorf("fallback memory = %+v", created)
	}
	if !hasTag(created[0].Tags, "unstructured") {
		t.Errorf("tags = %v", created[0].Tags)
	}
}

func TestImportFromFormat_MarkdownHeaders(t *testing.T) {
	svc := New(newFakeStore(), nil)
	content := "## User question\nhow do channels work?\n\n## Answer\nthey move values between goroutines"

	created, err := svc.ImportFromFormat(context.Background(), content, "markdown", "x", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 2 {
		t.Fatalf("len = %d, want 2", len(created))
	}
	if created[0].Participant != "user" || created[1].Participant != "assistant" {
		t.Errorf("participants = %q/%q", created[0].Participant, created[1].Participant)
	}
}

func TestImportFromFormat_UnsupportedFormat(t *testing.T) {
	svc := New(newFakeStore(), nil)
	_, err := svc.ImportFromFormat(context.Background(), "x", "xml", "x", "")
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}

// Exported JSON must re-import with content and participant intact.
func TestJSONRoundTrip(t *testing.T) {
	store := newFakeStore()
	svc := New(store, nil)

	original, err := svc.ImportChat(context.Background(), models.Conversation{
		ConversationID: "c1",
		Messages: []models.ChatMessage{
			{Participant: "user", Content: "hi"},
			{Participant: "assistant", Content: "hello!"},
		},
		Source: "chatgpt",
	})
	if err != nil {
		t.Fatal(err)
	}

	rendered, err := export.Render(original, export.FormatJSON)
	if err != nil {
		t.Fatal(err)
	}

	reimported, err := svc.ImportFromFormat(context.Background(), rendered, "json", "chatgpt", "c2")
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if len(reimported) != len(original) {
		t.Fatalf("len = %d, want %d", len(reimported), len(original))
	}
	for i := range original {
		if reimported[i].Content != original[i].Content {
			t.Errorf("message %d content = %q, want %q", i, reimported[i].Content, original[i].Content)
		}
		if reimported[i].Participant != original[i].Participant {
			t.Errorf("message %d participant = %q, want %q", i, reimported[i].Participant, original[i].Participant)
		}
	}
}

func TestConversationContext(t *testing.T) {
	store := newFakeStore()
	svc := New(store, nil)

	_, err := svc.ImportChat(context.Background(), models.Conversation{
		ConversationID: "c1",
		Messages:       []models.ChatMessage{{Participant: "user", Content: "hi"}},
		Source:         "x",
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := svc.ConversationContext(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("len = %d, want 1", len(got))
	}
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}
