package api

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/yorbuachi72/valora/internal/event"
	"github.com/yorbuachi72/valora/internal/export"
	"github.com/yorbuachi72/valora/internal/models"
	"github.com/yorbuachi72/valora/internal/webhook"
)

// MessageInput is one chat message in an import request.
type MessageInput struct {
	Participant string    `json:"participant"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
}

// Validate implements validation.Validatable.
func (m MessageInput) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Participant, validation.Required),
		validation.Field(&m.Content, validation.Required),
	)
}

// ImportChatRequest is the body for POST /chat/import.
type ImportChatRequest struct {
	ConversationID string         `json:"conversationId"`
	Messages       []MessageInput `json:"messages"`
	Source         string         `json:"source"`
	Tags           []string       `json:"tags"`
	Metadata       map[string]any `json:"metadata"`
	Context        string         `json:"context"`
}

// Validate implements validation.Validatable.
func (r ImportChatRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Messages, validation.Required),
		validation.Field(&r.Source, validation.Required),
	)
}

// Conversation converts the request into the normalized domain shape.
func (r ImportChatRequest) Conversation() models.Conversation {
	msgs := make([]models.ChatMessage, len(r.Messages))
	for i, m := range r.Messages {
		msgs[i] = models.ChatMessage{
			Participant: m.Participant,
			Content:     m.Content,
			Timestamp:   m.Timestamp,
		}
	}
	return models.Conversation{
		ConversationID: r.ConversationID,
		Messages:       msgs,
		Source:         r.Source,
		Tags:           r.Tags,
		Metadata:       r.Metadata,
		Context:        r.Context,
	}
}

// ImportFormatRequest is the body for POST /chat/import-format.
type ImportFormatRequest struct {
	Content        string `json:"content"`
	Format         string `json:"format"`
	Source         string `json:"source"`
	ConversationID string `json:"conversationId"`
}

// Validate implements validation.Validatable.
func (r ImportFormatRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Content, validation.Required),
		validation.Field(&r.Format, validation.Required, validation.In("json", "text", "markdown")),
		validation.Field(&r.Source, validation.Required),
	)
}

// ExportRequest is the body for POST /export.
type ExportRequest struct {
	MemoryIDs []string `json:"memoryIds"`
	Format    string   `json:"format"`
}

// Validate implements validation.Validatable.
func (r ExportRequest) Validate() error {
	valid := export.ValidFormats()
	formats := make([]any, len(valid))
	for i, f := range valid {
		formats[i] = f
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.MemoryIDs, validation.Required, validation.Each(is.UUIDv4)),
		validation.Field(&r.Format, validation.In(formats...)),
	)
}

// CreateMemoryRequest is the body for POST /memories.
type CreateMemoryRequest struct {
	Content     string         `json:"content"`
	Source      string         `json:"source"`
	Tags        []string       `json:"tags"`
	Metadata    map[string]any `json:"metadata"`
	ContentType string         `json:"contentType"`
	Context     string         `json:"context"`
}

// Validate implements validation.Validatable.
func (r CreateMemoryRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Content, validation.Required),
	)
}

// UpdateMemoryRequest is the body for PUT /memories/{id}.
// Omitted fields leave the memory untouched.
type UpdateMemoryRequest struct {
	Content *string  `json:"content"`
	Tags    []string `json:"tags"`
	Context *string  `json:"context"`
}

// Validate implements validation.Validatable.
func (r UpdateMemoryRequest) Validate() error {
	if r.Content == nil && r.Tags == nil && r.Context == nil {
		return validation.Errors{"body": fmt.Errorf("at least one of content, tags, context is required")}
	}
	if r.Content != nil && *r.Content == "" {
		return validation.Errors{"content": fmt.Errorf("cannot be blank")}
	}
	return nil
}

// validEvent checks a value against the fixed event-type enumeration.
func validEvent(v any) error {
	t, ok := v.(event.Type)
	if !ok {
		s, sok := v.(string)
		if !sok {
			return fmt.Errorf("must be a string event name")
		}
		t = event.Type(s)
	}
	if !event.Valid(t) {
		return fmt.Errorf("unknown event type %q", string(t))
	}
	return nil
}

// RegisterWebhookRequest is the body for POST /webhooks.
type RegisterWebhookRequest struct {
	URL         string               `json:"url"`
	Events      []event.Type         `json:"events"`
	Headers     map[string]string    `json:"headers"`
	RetryPolicy *webhook.RetryPolicy `json:"retryPolicy"`
	Enabled     *bool                `json:"enabled"`
}

// Validate implements validation.Validatable.
func (r RegisterWebhookRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.URL, validation.Required, is.URL),
		validation.Field(&r.Events, validation.Required, validation.Each(validation.By(validEvent))),
	)
}

// Subscription converts the request into a registry entry. Enabled
// defaults to true when omitted.
func (r RegisterWebhookRequest) Subscription() webhook.Subscription {
	sub := webhook.Subscription{
		URL:     r.URL,
		Events:  r.Events,
		Headers: r.Headers,
		Enabled: r.Enabled == nil || *r.Enabled,
	}
	if r.RetryPolicy != nil {
		sub.RetryPolicy = *r.RetryPolicy
	}
	return sub
}

// UpdateWebhookRequest is the body for PUT /webhooks/{id}.
// Omitted fields leave the subscription untouched.
type UpdateWebhookRequest struct {
	URL         *string              `json:"url"`
	Events      []event.Type         `json:"events"`
	Headers     map[string]string    `json:"headers"`
	RetryPolicy *webhook.RetryPolicy `json:"retryPolicy"`
	Enabled     *bool                `json:"enabled"`
}

// Validate implements validation.Validatable.
func (r UpdateWebhookRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.URL, validation.NilOrNotEmpty, is.URL),
		validation.Field(&r.Events, validation.Each(validation.By(validEvent))),
	)
}

// Params converts the request into partial update parameters.
func (r UpdateWebhookRequest) Params() webhook.UpdateParams {
	return webhook.UpdateParams{
		URL:         r.URL,
		Events:      r.Events,
		Headers:     r.Headers,
		RetryPolicy: r.RetryPolicy,
		Enabled:     r.Enabled,
	}
}
