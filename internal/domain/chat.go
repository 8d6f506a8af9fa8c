package domain

import (
	"encoding/base64"
	"encoding/json"
)

// Chat roles understood by the completion provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is the provider-agnostic chat message shape used by the
// orchestrator and the LLM integration.
type ChatMessage struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// MessageContent is a tagged variant: either plain text or an ordered
// list of content parts (text and image). The wire shape sent to the
// provider is defined once here, by MarshalJSON, instead of being
// re-derived at every call site.
type MessageContent struct {
	Text  string
	Parts []ContentPart
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if len(c.Parts) == 0 {
		return json.Marshal(c.Text)
	}
	return json.Marshal(c.Parts)
}

// ContentPart is one element of a multimodal message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL carries an image inline as a data URI, not a separate upload.
type ImageURL struct {
	URL string `json:"url"`
}

// Text returns plain-text message content.
func Text(s string) MessageContent {
	return MessageContent{Text: s}
}

// TextWithImage returns two-part content: the prompt text followed by
// the image bytes embedded as a JPEG data URI.
func TextWithImage(text string, image []byte) MessageContent {
	return MessageContent{Parts: []ContentPart{
		{Type: "text", Text: text},
		{Type: "image_url", ImageURL: &ImageURL{
			URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image),
		}},
	}}
}

func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: Text(text)}
}

func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: Text(text)}
}

func AssistantMessage(text string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: Text(text)}
}
