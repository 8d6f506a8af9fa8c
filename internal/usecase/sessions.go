package usecase

import (
	"context"
	"sort"
	"strings"

	"chat-gateway/internal/domain"
)

// ListSessions groups every stored turn by session id and reduces each
// group to its representative title and most recent activity, newest
// first.
func (s *ChatService) ListSessions(ctx context.Context) ([]domain.SessionSummary, error) {
	turns, err := s.store.ListAllTurns(ctx)
	if err != nil {
		return nil, newError(ErrorInternal, "dynamodb_list_error", err)
	}

	byID := make(map[string]*domain.SessionSummary)
	order := make([]string, 0)
	for _, turn := range turns {
		summary, ok := byID[turn.SessionID]
		if !ok {
			summary = &domain.SessionSummary{ID: turn.SessionID, Title: placeholderTitle}
			byID[turn.SessionID] = summary
			order = append(order, turn.SessionID)
		}
		if summary.Title == placeholderTitle && representativeTitle(turn.Title) {
			summary.Title = turn.Title
		}
		if turn.CreatedAt.After(summary.LastUpdate) {
			summary.LastUpdate = turn.CreatedAt
		}
	}

	summaries := make([]domain.SessionSummary, 0, len(order))
	for _, id := range order {
		summaries = append(summaries, *byID[id])
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastUpdate.After(summaries[j].LastUpdate)
	})
	return summaries, nil
}

// SessionMessages returns the full ordered transcript of one session.
// Unlike the answer path, a read failure here is an error: the listing
// endpoints have no meaningful degraded mode.
func (s *ChatService) SessionMessages(ctx context.Context, sessionID string) ([]domain.SessionMessage, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, newError(ErrorInvalidInput, "missing_session_id", nil)
	}

	turns, err := s.store.LoadHistory(ctx, sessionID)
	if err != nil {
		return nil, newError(ErrorInternal, "dynamodb_history_error", err)
	}

	messages := make([]domain.SessionMessage, 0, len(turns))
	for _, turn := range turns {
		messages = append(messages, domain.SessionMessage{
			UserMessage: turn.UserMessage,
			AIMessage:   turn.AIMessage,
			Timestamp:   turn.CreatedAt,
		})
	}
	return messages, nil
}

// DeleteSession removes every turn stored under the session and reports
// how many rows were removed.
func (s *ChatService) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return 0, newError(ErrorInvalidInput, "missing_session_id", nil)
	}

	count, err := s.store.DeleteSession(ctx, sessionID)
	if err != nil {
		return count, newError(ErrorInternal, "dynamodb_delete_error", err)
	}
	return count, nil
}

func representativeTitle(title string) bool {
	title = strings.TrimSpace(title)
	return title != "" && title != placeholderTitle
}
