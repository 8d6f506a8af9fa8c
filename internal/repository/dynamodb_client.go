package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"chat-gateway/internal/domain"
)

const (
	pkPrefixSession = "SESS#"
	skPrefixTurn    = "TURN#"
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// TranscriptReadWriter defines the transcript operations consumed by
// the chat service.
type TranscriptReadWriter interface {
	LoadHistory(ctx context.Context, sessionID string) ([]domain.Turn, error)
	AppendTurn(ctx context.Context, sessionID, userMessage, aiMessage, title string) error
	ListAllTurns(ctx context.Context) ([]domain.Turn, error)
	DeleteSession(ctx context.Context, sessionID string) (int, error)
}

// Client wraps a DynamoDB table holding conversation transcripts.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

// sessPK returns the DynamoDB partition key for a session.
func sessPK(sessionID string) string {
	return pkPrefixSession + sessionID
}

// turnSK returns the sort key for a turn. The nanosecond tick is
// zero-padded so that lexicographic table order equals chronological
// order within a partition.
func turnSK(ts time.Time) string {
	return fmt.Sprintf("%s%020d", skPrefixTurn, ts.UTC().UnixNano())
}

// LoadHistory queries all TURN# items for a session in ascending
// sequence-key order, following pagination until the partition is
// exhausted. The whole transcript is replayed every turn, so no limit
// is applied.
func (c *Client) LoadHistory(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	var turns []domain.Turn
	var startKey map[string]types.AttributeValue

	for {
		in := &dynamodb.QueryInput{
			TableName:              aws.String(c.tableName),
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: sessPK(sessionID)},
				":prefix": &types.AttributeValueMemberS{Value: skPrefixTurn},
			},
			ScanIndexForward:  aws.Bool(true),
			ExclusiveStartKey: startKey,
		}

		out, err := c.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("repository: LoadHistory query: %w", err)
		}
		for _, item := range out.Items {
			turn, err := itemToTurn(item)
			if err != nil {
				return nil, fmt.Errorf("repository: LoadHistory unmarshal: %w", err)
			}
			turns = append(turns, turn)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return turns, nil
}

// AppendTurn writes one immutable turn row keyed by the current
// nanosecond tick. The conditional put rejects a same-tick collision
// instead of silently overwriting the earlier writer's row.
func (c *Client) AppendTurn(ctx context.Context, sessionID, userMessage, aiMessage, title string) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("repository: AppendTurn: session id is required")
	}

	turn := NewTurn(sessionID, userMessage, aiMessage, title)
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                turnItem(turn),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: AppendTurn: %w", err)
	}
	return nil
}

// ListAllTurns scans the whole table for turn rows. Used only by the
// session summary listing.
func (c *Client) ListAllTurns(ctx context.Context) ([]domain.Turn, error) {
	var turns []domain.Turn
	var startKey map[string]types.AttributeValue

	for {
		in := &dynamodb.ScanInput{
			TableName:        aws.String(c.tableName),
			FilterExpression: aws.String("begins_with(SK, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":prefix": &types.AttributeValueMemberS{Value: skPrefixTurn},
			},
			ExclusiveStartKey: startKey,
		}

		out, err := c.api.Scan(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("repository: ListAllTurns scan: %w", err)
		}
		for _, item := range out.Items {
			turn, err := itemToTurn(item)
			if err != nil {
				return nil, fmt.Errorf("repository: ListAllTurns unmarshal: %w", err)
			}
			turns = append(turns, turn)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return turns, nil
}

// DeleteSession removes every row under the session partition one at a
// time and returns the number of rows removed. There is no transaction:
// a failure mid-delete leaves the session with fewer, still
// partition-consistent rows, and the count removed so far is returned
// alongside the error.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	pk := sessPK(sessionID)
	count := 0
	var startKey map[string]types.AttributeValue

	for {
		out, err := c.api.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(c.tableName),
			KeyConditionExpression: aws.String("PK = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: pk},
			},
			ProjectionExpression: aws.String("PK, SK"),
			ExclusiveStartKey:    startKey,
		})
		if err != nil {
			return count, fmt.Errorf("repository: DeleteSession query: %w", err)
		}

		for _, item := range out.Items {
			sk, err := strAttr(item, "SK")
			if err != nil {
				return count, fmt.Errorf("repository: DeleteSession: %w", err)
			}
			_, err = c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(c.tableName),
				Key: map[string]types.AttributeValue{
					"PK": &types.AttributeValueMemberS{Value: pk},
					"SK": &types.AttributeValueMemberS{Value: sk},
				},
			})
			if err != nil {
				return count, fmt.Errorf("repository: DeleteSession delete item: %w", err)
			}
			count++
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return count, nil
}

// NewTurn constructs a Turn with the sequence key and timestamp set
// from the current time.
func NewTurn(sessionID, userMessage, aiMessage, title string) domain.Turn {
	now := time.Now().UTC()
	return domain.Turn{
		SessionID:   sessionID,
		SequenceKey: turnSK(now),
		UserMessage: userMessage,
		AIMessage:   aiMessage,
		Title:       title,
		CreatedAt:   now,
	}
}

// itemToTurn converts a DynamoDB attribute map to a Turn.
func itemToTurn(item map[string]types.AttributeValue) (domain.Turn, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.Turn{}, err
	}
	sk, err := strAttr(item, "SK")
	if err != nil {
		return domain.Turn{}, err
	}
	userMessage, err := strAttr(item, "userMessage")
	if err != nil {
		return domain.Turn{}, err
	}
	aiMessage, err := strAttr(item, "aiMessage")
	if err != nil {
		return domain.Turn{}, err
	}
	title, _ := strAttr(item, "chatTitle") // allow empty

	var createdAt time.Time
	if raw, err := strAttr(item, "createdAt"); err == nil {
		createdAt, _ = time.Parse(time.RFC3339Nano, raw)
	}

	return domain.Turn{
		SessionID:   strings.TrimPrefix(pk, pkPrefixSession),
		SequenceKey: sk,
		UserMessage: userMessage,
		AIMessage:   aiMessage,
		Title:       title,
		CreatedAt:   createdAt,
	}, nil
}

func turnItem(turn domain.Turn) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":          &types.AttributeValueMemberS{Value: sessPK(turn.SessionID)},
		"SK":          &types.AttributeValueMemberS{Value: turn.SequenceKey},
		"sessionId":   &types.AttributeValueMemberS{Value: turn.SessionID},
		"userMessage": &types.AttributeValueMemberS{Value: turn.UserMessage},
		"aiMessage":   &types.AttributeValueMemberS{Value: turn.AIMessage},
		"chatTitle":   &types.AttributeValueMemberS{Value: turn.Title},
		"createdAt":   &types.AttributeValueMemberS{Value: turn.CreatedAt.Format(time.RFC3339Nano)},
	}
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}
