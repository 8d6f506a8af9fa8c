package usecase

import (
	"encoding/base64"
	"fmt"
	"strings"

	"chat-gateway/internal/domain"
)

const (
	// defaultImagePrompt replaces a blank prompt so that image-only
	// submissions stay valid.
	defaultImagePrompt = "Describe and analyze the attached image."

	// placeholderTitle is persisted when no generated title applies.
	placeholderTitle = "New Conversation"

	defaultSystemPrompt = "You are LeIA, a helpful assistant. Answer in Markdown."
)

// buildMessages renders the exact ordered message list sent to the
// completion provider: one system message, the history replayed as
// plain-text user/assistant pairs in ascending order, then the current
// turn. Historical images are never re-attached.
func buildMessages(systemPrompt string, history []domain.Turn, prompt string, image []byte) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, 2*len(history)+2)
	messages = append(messages, domain.SystemMessage(systemPrompt))

	for _, turn := range history {
		messages = append(messages,
			domain.UserMessage(turn.UserMessage),
			domain.AssistantMessage(turn.AIMessage),
		)
	}

	if len(image) > 0 {
		messages = append(messages, domain.ChatMessage{
			Role:    domain.RoleUser,
			Content: domain.TextWithImage(prompt, image),
		})
	} else {
		messages = append(messages, domain.UserMessage(prompt))
	}
	return messages
}

// decodeImagePayload turns the transported base64 text into binary
// image data. A data-URI prefix is optional; only the portion after the
// first comma is treated as the encoded payload. Spaces are restored to
// '+' and newline artifacts dropped before decoding, since both are
// common transport-encoding damage.
func decodeImagePayload(raw string) ([]byte, error) {
	if comma := strings.Index(raw, ","); comma >= 0 {
		raw = raw[comma+1:]
	}
	raw = strings.TrimSpace(raw)
	raw = strings.ReplaceAll(raw, " ", "+")
	raw = strings.NewReplacer("\n", "", "\r", "", "\t", "").Replace(raw)

	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode image payload: %w", err)
	}
	return data, nil
}
