package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"chat-gateway/internal/domain"
)

const (
	defaultModel           = "gpt-4o-mini"
	defaultMaxAnswerTokens = 1000

	titleInstruction = "Summarize the user's message as a conversation title of three words. Do not use quotation marks."
	titleMaxTokens   = 10
)

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

type CompletionClient interface {
	Complete(ctx context.Context, model string, messages []domain.ChatMessage, maxTokens int) (string, error)
}

type TranscriptStore interface {
	LoadHistory(ctx context.Context, sessionID string) ([]domain.Turn, error)
	AppendTurn(ctx context.Context, sessionID, userMessage, aiMessage, title string) error
	ListAllTurns(ctx context.Context) ([]domain.Turn, error)
	DeleteSession(ctx context.Context, sessionID string) (int, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// ChatService orchestrates one conversational turn: it resolves the
// session id, loads history, assembles the provider message list,
// titles the session on its first turn, calls the completion provider,
// and persists the completed turn.
type ChatService struct {
	params          ParamGetter
	llm             CompletionClient
	store           TranscriptStore
	paramPrefix     string
	maxAnswerTokens int

	cacheMu      sync.RWMutex
	cacheLoaded  bool
	systemPrompt string
	model        string
}

type AskInput struct {
	Prompt      string
	SessionID   string
	ImageBase64 string
}

type AskOutput struct {
	Answer    string
	SessionID string
}

func NewChatService(p ParamGetter, llm CompletionClient, store TranscriptStore, paramPrefix string, maxAnswerTokens int) (*ChatService, error) {
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: completion client must not be nil")
	}
	if store == nil {
		return nil, errors.New("usecase: transcript store must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	if maxAnswerTokens <= 0 {
		maxAnswerTokens = defaultMaxAnswerTokens
	}
	return &ChatService{
		params:          p,
		llm:             llm,
		store:           store,
		paramPrefix:     paramPrefix,
		maxAnswerTokens: maxAnswerTokens,
	}, nil
}

// Ask processes one inbound turn. History-load failures degrade to an
// empty history and title-generation failures fall back to the
// placeholder title; a persistence failure after a successful
// completion is logged but never discards the computed answer.
func (s *ChatService) Ask(ctx context.Context, in AskInput) (AskOutput, error) {
	if err := s.ensureConfig(ctx); err != nil {
		return AskOutput{}, newError(ErrorInternal, "ssm_load_error", err)
	}

	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		sessionID = newUUID()
	}

	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		prompt = defaultImagePrompt
	}

	var image []byte
	if raw := strings.TrimSpace(in.ImageBase64); raw != "" {
		decoded, err := decodeImagePayload(raw)
		if err != nil {
			return AskOutput{}, newError(ErrorInvalidInput, "image_decode_error", err)
		}
		image = decoded
	}

	history, err := s.store.LoadHistory(ctx, sessionID)
	if err != nil {
		// History is best-effort: a turn proceeds without it.
		slog.Warn("history unavailable, continuing with empty history", "session_id", sessionID, "err", err)
		history = nil
	}

	messages := buildMessages(s.systemPrompt, history, prompt, image)

	title := placeholderTitle
	if len(history) == 0 {
		if generated, err := s.generateTitle(ctx, prompt); err != nil {
			slog.Warn("title generation failed, using placeholder", "session_id", sessionID, "err", err)
		} else {
			title = generated
		}
	}

	answer, err := s.llm.Complete(ctx, s.model, messages, s.maxAnswerTokens)
	if err != nil {
		if status, ok := upstreamStatusCode(err); ok && status == 429 {
			return AskOutput{}, newError(ErrorRateLimited, "openai_rate_limited", err)
		}
		return AskOutput{}, newError(ErrorUpstream, "openai_error", err)
	}

	if err := s.store.AppendTurn(ctx, sessionID, prompt, answer, title); err != nil {
		// The model already answered; never lose the answer to a
		// storage hiccup. The failure stays visible in logs.
		slog.Error("turn not persisted", "session_id", sessionID, "err", err)
	}

	return AskOutput{
		Answer:    answer,
		SessionID: sessionID,
	}, nil
}

// generateTitle issues the secondary short completion call that names a
// session on its first turn.
func (s *ChatService) generateTitle(ctx context.Context, prompt string) (string, error) {
	messages := []domain.ChatMessage{
		domain.SystemMessage(titleInstruction),
		domain.UserMessage(prompt),
	}
	raw, err := s.llm.Complete(ctx, s.model, messages, titleMaxTokens)
	if err != nil {
		return "", err
	}
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", errors.New("usecase: empty title from provider")
	}
	return title, nil
}

func (s *ChatService) ensureConfig(ctx context.Context) error {
	s.cacheMu.RLock()
	if s.cacheLoaded {
		s.cacheMu.RUnlock()
		return nil
	}
	s.cacheMu.RUnlock()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheLoaded {
		return nil
	}

	systemPrompt, model, err := s.loadSSMParams(ctx)
	if err != nil {
		return err
	}

	s.systemPrompt = systemPrompt
	s.model = model
	s.cacheLoaded = true
	return nil
}

func (s *ChatService) loadSSMParams(ctx context.Context) (systemPrompt, model string, err error) {
	prefix := strings.TrimRight(s.paramPrefix, "/")

	systemPrompt, err = s.params.GetParameter(ctx, prefix+"/system_prompt")
	if err != nil {
		return "", "", fmt.Errorf("usecase: load system prompt: %w", err)
	}
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}
	model, err = s.params.GetParameter(ctx, prefix+"/config/openai_model")
	if err != nil {
		return "", "", fmt.Errorf("usecase: load openai model: %w", err)
	}
	if strings.TrimSpace(model) == "" {
		model = defaultModel
	}
	return systemPrompt, model, nil
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

var newUUID = func() string {
	return uuid.NewString()
}
