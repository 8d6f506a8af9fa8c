package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"chat-gateway/internal/domain"
	"chat-gateway/internal/usecase"
)

type stubUseCase struct {
	askOut    usecase.AskOutput
	askErr    error
	askIn     usecase.AskInput
	askCalled bool

	summaries    []domain.SessionSummary
	summariesErr error

	messages    []domain.SessionMessage
	messagesErr error
	messagesID  string

	deleteCount int
	deleteErr   error
	deleteID    string
}

func (s *stubUseCase) Ask(_ context.Context, in usecase.AskInput) (usecase.AskOutput, error) {
	s.askCalled = true
	s.askIn = in
	return s.askOut, s.askErr
}

func (s *stubUseCase) ListSessions(_ context.Context) ([]domain.SessionSummary, error) {
	return s.summaries, s.summariesErr
}

func (s *stubUseCase) SessionMessages(_ context.Context, sessionID string) ([]domain.SessionMessage, error) {
	s.messagesID = sessionID
	return s.messages, s.messagesErr
}

func (s *stubUseCase) DeleteSession(_ context.Context, sessionID string) (int, error) {
	s.deleteID = sessionID
	return s.deleteCount, s.deleteErr
}

func makeEvent(method, path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func mustHandler(t *testing.T, uc ChatUseCase, opts ...Option) *Handler {
	t.Helper()
	h, err := NewHandler(uc, opts...)
	require.NoError(t, err)
	return h
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}

func TestHandle_AskHappyPath(t *testing.T) {
	uc := &stubUseCase{askOut: usecase.AskOutput{Answer: "hello", SessionID: "sess-1"}}
	h := mustHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/AskAI", `{"prompt":"hi","sessionId":"sess-1"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.AskInput{Prompt: "hi", SessionID: "sess-1"}, uc.askIn)

	out := parseBody[askResponse](t, resp.Body)
	require.Equal(t, "hello", out.Answer)
	require.Equal(t, "sess-1", out.SessionID)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
}

func TestHandle_AskPassesImagePayload(t *testing.T) {
	uc := &stubUseCase{askOut: usecase.AskOutput{Answer: "a cat", SessionID: "sess-1"}}
	h := mustHandler(t, uc)

	_, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/AskAI", `{"imageBase64":"data:image/jpeg;base64,AAAA"}`))
	require.NoError(t, err)
	require.Equal(t, "data:image/jpeg;base64,AAAA", uc.askIn.ImageBase64)
	require.Empty(t, uc.askIn.Prompt)
}

func TestHandle_AskEmptyBody(t *testing.T) {
	uc := &stubUseCase{}
	h := mustHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/AskAI", "  "))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.False(t, uc.askCalled)
}

func TestHandle_AskMalformedBody(t *testing.T) {
	uc := &stubUseCase{}
	h := mustHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/AskAI", `not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
	require.False(t, uc.askCalled)
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "image_decode_error"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput)},
		{name: "rate limited", err: &usecase.Error{Code: usecase.ErrorRateLimited, Reason: "openai_rate_limited"}, status: http.StatusTooManyRequests, code: string(usecase.ErrorRateLimited)},
		{name: "upstream", err: &usecase.Error{Code: usecase.ErrorUpstream, Reason: "openai_error"}, status: http.StatusBadGateway, code: string(usecase.ErrorUpstream)},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "dynamodb_list_error"}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uc := &stubUseCase{askErr: tc.err}
			h := mustHandler(t, uc)

			resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/AskAI", `{"prompt":"hi"}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
			require.Empty(t, out.Message, "error text must stay out of the body by default")
		})
	}
}

func TestHandle_VerboseErrorsExposeMessage(t *testing.T) {
	uc := &stubUseCase{askErr: &usecase.Error{Code: usecase.ErrorUpstream, Reason: "openai_error", Err: errors.New("status 503")}}
	h := mustHandler(t, uc, WithVerboseErrors(true))

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/AskAI", `{"prompt":"hi"}`))
	require.NoError(t, err)

	out := parseBody[errorResponse](t, resp.Body)
	require.Contains(t, out.Message, "status 503")
}

func TestHandle_GetHistory(t *testing.T) {
	lastUpdate := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	uc := &stubUseCase{summaries: []domain.SessionSummary{
		{ID: "sess-1", Title: "Trip Planning", LastUpdate: lastUpdate},
	}}
	h := mustHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/GetHistory", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := parseBody[[]domain.SessionSummary](t, resp.Body)
	require.Len(t, out, 1)
	require.Equal(t, "sess-1", out[0].ID)
	require.Equal(t, "Trip Planning", out[0].Title)
	require.True(t, lastUpdate.Equal(out[0].LastUpdate))
}

func TestHandle_GetHistoryEmptyIsJSONArray(t *testing.T) {
	h := mustHandler(t, &stubUseCase{})
	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/GetHistory", ""))
	require.NoError(t, err)
	require.Equal(t, "[]", resp.Body)
}

func TestHandle_GetSessionMessages(t *testing.T) {
	uc := &stubUseCase{messages: []domain.SessionMessage{{UserMessage: "hi", AIMessage: "hello"}}}
	h := mustHandler(t, uc)

	event := makeEvent(http.MethodGet, "/GetSessionMessages", "")
	event.QueryStringParameters = map[string]string{"sessionId": "sess-1"}
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "sess-1", uc.messagesID)

	out := parseBody[[]domain.SessionMessage](t, resp.Body)
	require.Len(t, out, 1)
	require.Equal(t, "hi", out[0].UserMessage)
}

func TestHandle_GetSessionMessagesMissingID(t *testing.T) {
	uc := &stubUseCase{messagesErr: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "missing_session_id"}}
	h := mustHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/GetSessionMessages", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandle_DeleteHistory(t *testing.T) {
	uc := &stubUseCase{deleteCount: 12}
	h := mustHandler(t, uc)

	event := makeEvent(http.MethodDelete, "/DeleteHistory", "")
	event.QueryStringParameters = map[string]string{"sessionId": "sess-1"}
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "12 messages removed", resp.Body)
	require.Equal(t, "sess-1", uc.deleteID)
	require.Equal(t, "text/plain", resp.Headers["Content-Type"])
}

func TestHandle_DeleteHistoryStoreFailure(t *testing.T) {
	uc := &stubUseCase{deleteErr: &usecase.Error{Code: usecase.ErrorInternal, Reason: "dynamodb_delete_error"}}
	h := mustHandler(t, uc)

	event := makeEvent(http.MethodDelete, "/DeleteHistory", "")
	event.QueryStringParameters = map[string]string{"sessionId": "sess-1"}
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHandle_UnknownRoute(t *testing.T) {
	h := mustHandler(t, &stubUseCase{})
	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/Nope", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	uc := &stubUseCase{askOut: usecase.AskOutput{Answer: "ok", SessionID: "sess-1"}}
	h := mustHandler(t, uc)

	event := makeEvent(http.MethodPost, "/AskAI", `{"prompt":"hi"}`)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}
