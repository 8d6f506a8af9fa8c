package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"chat-gateway/internal/domain"
	"chat-gateway/internal/usecase"
)

// ChatUseCase is the application surface consumed by the handler.
type ChatUseCase interface {
	Ask(ctx context.Context, in usecase.AskInput) (usecase.AskOutput, error)
	ListSessions(ctx context.Context) ([]domain.SessionSummary, error)
	SessionMessages(ctx context.Context, sessionID string) ([]domain.SessionMessage, error)
	DeleteSession(ctx context.Context, sessionID string) (int, error)
}

type askRequest struct {
	Prompt      string `json:"prompt"`
	SessionID   string `json:"sessionId"`
	ImageBase64 string `json:"imageBase64"`
}

type askResponse struct {
	Answer    string `json:"answer"`
	SessionID string `json:"sessionId"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Handler routes API Gateway proxy events to the chat use case.
type Handler struct {
	uc            ChatUseCase
	verboseErrors bool
}

type Option func(*Handler)

// WithVerboseErrors exposes underlying error text in error response
// bodies. Off by default: untrusted callers get stable error codes and
// the diagnostics stay in logs.
func WithVerboseErrors(enabled bool) Option {
	return func(h *Handler) {
		h.verboseErrors = enabled
	}
}

func NewHandler(uc ChatUseCase, opts ...Option) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	h := &Handler{uc: uc}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(req.Headers)
	log := slog.With("correlation_id", corrID, "method", req.HTTPMethod, "path", req.Path)

	var resp events.APIGatewayProxyResponse
	switch {
	case req.HTTPMethod == http.MethodPost && req.Path == "/AskAI":
		resp = h.handleAsk(ctx, req, log)
	case req.HTTPMethod == http.MethodGet && req.Path == "/GetHistory":
		resp = h.handleHistory(ctx, log)
	case req.HTTPMethod == http.MethodGet && req.Path == "/GetSessionMessages":
		resp = h.handleSessionMessages(ctx, req, log)
	case req.HTTPMethod == http.MethodDelete && req.Path == "/DeleteHistory":
		resp = h.handleDelete(ctx, req, log)
	default:
		resp = jsonResponse(http.StatusNotFound, errorResponse{Error: "NOT_FOUND"})
	}

	resp.Headers["X-Correlation-Id"] = corrID
	return resp, nil
}

func (h *Handler) handleAsk(ctx context.Context, req events.APIGatewayProxyRequest, log *slog.Logger) events.APIGatewayProxyResponse {
	if strings.TrimSpace(req.Body) == "" {
		return jsonResponse(http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput)})
	}

	var body askRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		log.Warn("malformed request body", "err", err)
		return jsonResponse(http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput)})
	}

	out, err := h.uc.Ask(ctx, usecase.AskInput{
		Prompt:      body.Prompt,
		SessionID:   body.SessionID,
		ImageBase64: body.ImageBase64,
	})
	if err != nil {
		return h.errorResponse(err, log)
	}

	return jsonResponse(http.StatusOK, askResponse{Answer: out.Answer, SessionID: out.SessionID})
}

func (h *Handler) handleHistory(ctx context.Context, log *slog.Logger) events.APIGatewayProxyResponse {
	summaries, err := h.uc.ListSessions(ctx)
	if err != nil {
		return h.errorResponse(err, log)
	}
	if summaries == nil {
		summaries = []domain.SessionSummary{}
	}
	return jsonResponse(http.StatusOK, summaries)
}

func (h *Handler) handleSessionMessages(ctx context.Context, req events.APIGatewayProxyRequest, log *slog.Logger) events.APIGatewayProxyResponse {
	messages, err := h.uc.SessionMessages(ctx, req.QueryStringParameters["sessionId"])
	if err != nil {
		return h.errorResponse(err, log)
	}
	if messages == nil {
		messages = []domain.SessionMessage{}
	}
	return jsonResponse(http.StatusOK, messages)
}

func (h *Handler) handleDelete(ctx context.Context, req events.APIGatewayProxyRequest, log *slog.Logger) events.APIGatewayProxyResponse {
	count, err := h.uc.DeleteSession(ctx, req.QueryStringParameters["sessionId"])
	if err != nil {
		log.Error("session delete failed", "removed_before_failure", count, "err", err)
		return h.errorResponse(err, log)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": "text/plain"},
		Body:       fmt.Sprintf("%d messages removed", count),
	}
}

func (h *Handler) errorResponse(err error, log *slog.Logger) events.APIGatewayProxyResponse {
	code := usecase.ErrorInternal
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		code = ucErr.Code
	}
	log.Error("request failed", "code", string(code), "err", err)

	body := errorResponse{Error: string(code)}
	if h.verboseErrors {
		body.Message = err.Error()
	}
	return jsonResponse(statusFor(code), body)
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func jsonResponse(status int, payload any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(payload)
	if err != nil {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       `{"error":"INTERNAL_ERROR"}`,
		}
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, "x-correlation-id") && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
