package tally

import "github.com/google/uuid"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ContentPartType identifies the kind of a multimodal content part.
type ContentPartType string

const (
	ContentPartTypeText  ContentPartType = "text"
	ContentPartTypeImage ContentPartType = "image"
)

// ContentPart is one piece of a multimodal user message. Images are given
// either by URL or as base64 data with a MIME type.
type ContentPart struct {
	Type     ContentPartType `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL string          `json:"imageUrl,omitempty"`
	Base64   string          `json:"base64,omitempty"`
	MimeType string          `json:"mimeType,omitempty"`
}

// NewTextPart creates a text content part.
func NewTextPart(text string) ContentPart {
	return ContentPart{Type: ContentPartTypeText, Text: text}
}

// NewImageURLPart creates an image part referencing a URL.
func NewImageURLPart(url string) ContentPart {
	return ContentPart{Type: ContentPartTypeImage, ImageURL: url}
}

// NewImageBase64Part creates an image part from base64 data.
func NewImageBase64Part(data, mimeType string) ContentPart {
	return ContentPart{Type: ContentPartTypeImage, Base64: data, MimeType: mimeType}
}

// Message is a single chat message. Parts, when set, take precedence over
// Content for user messages.
type Message struct {
	ID      string        `json:"id,omitempty"`
	Role    Role          `json:"role"`
	Content string        `json:"content,omitempty"`
	Parts   []ContentPart `json:"parts,omitempty"`
}

// HasParts reports whether the message carries multimodal parts.
func (m Message) HasParts() bool { return len(m.Parts) > 0 }

// SystemMessage is shorthand for a system role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage is shorthand for a user role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// GenerateMessageID returns a new unique message id.
func GenerateMessageID() string {
	return "msg-" + uuid.New().String()
}

// Response is a complete model response.
type Response struct {
	Content      string `json:"content,omitempty"`
	FinishReason string `json:"finishReason,omitempty"`
	Usage        Usage  `json:"usage"`
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}
