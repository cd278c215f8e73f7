package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"property-agent/internal/domain"
)

const (
	skPrefixMsg = "MSG#"
	skState     = "STATE#"
	ttlDuration = 30 * 24 * time.Hour

	// one transaction holds the state item plus at most this many messages
	maxMessagesPerSave = 99
)

var (
	ErrNotFound = errors.New("repository: session not found")
	// ErrConflict means another writer saved the session first.
	ErrConflict = errors.New("repository: session was modified concurrently")
)

var now = time.Now

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// *dynamodb.Client satisfies it.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client stores sessions in a single table: one STATE# item per
// conversation plus one MSG# item per transcript message.
type Client struct {
	api       dynamodbAPI
	tableName string
}

func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

func convPK(conversationID string) string {
	return "CONV#" + conversationID
}

// msgSK orders messages by their position in the transcript.
func msgSK(seq int) string {
	return fmt.Sprintf("%s%06d", skPrefixMsg, seq)
}

func ttlValue() int64 {
	return now().Add(ttlDuration).Unix()
}

// Load reads the session state and its full transcript.
func (c *Client) Load(ctx context.Context, conversationID string) (*domain.Session, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, errors.New("repository: Load: conversation id is required")
	}
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: convPK(conversationID)},
			"SK": &types.AttributeValueMemberS{Value: skState},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: Load get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	s, err := itemToState(out.Item)
	if err != nil {
		return nil, fmt.Errorf("repository: Load decode state: %w", err)
	}
	s.ConversationID = conversationID

	msgs, err := c.messages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	s.Messages = msgs
	s.PersistedMessages = len(msgs)
	return s, nil
}

func (c *Client) messages(ctx context.Context, conversationID string) ([]domain.ChatMessage, error) {
	var (
		msgs []domain.ChatMessage
		next map[string]types.AttributeValue
	)
	for {
		out, err := c.api.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(c.tableName),
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: convPK(conversationID)},
				":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
			},
			ScanIndexForward:  aws.Bool(true),
			ConsistentRead:    aws.Bool(true),
			ExclusiveStartKey: next,
		})
		if err != nil {
			return nil, fmt.Errorf("repository: Load query messages: %w", err)
		}
		for _, item := range out.Items {
			msg, err := itemToMessage(item)
			if err != nil {
				return nil, fmt.Errorf("repository: Load decode message: %w", err)
			}
			msgs = append(msgs, msg)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return msgs, nil
		}
		next = out.LastEvaluatedKey
	}
}

// Save writes the state item and any messages appended since the last
// load or save in one transaction. The write only succeeds when the stored
// version still equals s.Version; on success s.Version is incremented.
func (c *Client) Save(ctx context.Context, s *domain.Session) error {
	if s == nil || strings.TrimSpace(s.ConversationID) == "" {
		return errors.New("repository: Save: conversation id is required")
	}
	pending := s.Messages[min(s.PersistedMessages, len(s.Messages)):]
	if len(pending) > maxMessagesPerSave {
		return fmt.Errorf("repository: Save: %d new messages exceed the per-save limit", len(pending))
	}

	state, err := stateItem(s, s.Version+1)
	if err != nil {
		return fmt.Errorf("repository: Save encode state: %w", err)
	}
	put := &types.Put{
		TableName: aws.String(c.tableName),
		Item:      state,
	}
	if s.Version == 0 {
		put.ConditionExpression = aws.String("attribute_not_exists(PK)")
	} else {
		put.ConditionExpression = aws.String("version = :expected")
		put.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.Itoa(s.Version)},
		}
	}

	items := []types.TransactWriteItem{{Put: put}}
	for i, msg := range pending {
		items = append(items, types.TransactWriteItem{Put: &types.Put{
			TableName:           aws.String(c.tableName),
			Item:                messageItem(s.ConversationID, s.PersistedMessages+i, msg),
			ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
		}})
	}

	if _, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
		if isConditionFailure(err) {
			return ErrConflict
		}
		return fmt.Errorf("repository: Save: %w", err)
	}
	s.Version++
	s.PersistedMessages = len(s.Messages)
	return nil
}

func isConditionFailure(err error) bool {
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, r := range tce.CancellationReasons {
			if aws.ToString(r.Code) == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func stateItem(s *domain.Session, version int) (map[string]types.AttributeValue, error) {
	offers, err := json.Marshal(s.PendingOffers)
	if err != nil {
		return nil, err
	}
	email, err := json.Marshal(s.Email)
	if err != nil {
		return nil, err
	}
	item := map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: convPK(s.ConversationID)},
		"SK":             &types.AttributeValueMemberS{Value: skState},
		"conversationId": &types.AttributeValueMemberS{Value: s.ConversationID},
		"version":        &types.AttributeValueMemberN{Value: strconv.Itoa(version)},
		"turns":          &types.AttributeValueMemberN{Value: strconv.Itoa(s.Turns)},
		"messageCount":   &types.AttributeValueMemberN{Value: strconv.Itoa(len(s.Messages))},
		"pendingOffers":  &types.AttributeValueMemberS{Value: string(offers)},
		"email":          &types.AttributeValueMemberS{Value: string(email)},
		"lastActivity":   &types.AttributeValueMemberS{Value: now().UTC().Format(time.RFC3339)},
		"ttl":            &types.AttributeValueMemberN{Value: strconv.FormatInt(ttlValue(), 10)},
	}
	if !s.TurnPendingSince.IsZero() {
		item["turnPendingSince"] = &types.AttributeValueMemberS{Value: s.TurnPendingSince.UTC().Format(time.RFC3339Nano)}
	}
	return item, nil
}

func itemToState(item map[string]types.AttributeValue) (*domain.Session, error) {
	version, err := intAttr(item, "version")
	if err != nil {
		return nil, err
	}
	turns, err := intAttr(item, "turns")
	if err != nil {
		return nil, err
	}
	s := &domain.Session{Version: version, Turns: turns}

	if raw, err := strAttr(item, "pendingOffers"); err == nil && raw != "" {
		if err := json.Unmarshal([]byte(raw), &s.PendingOffers); err != nil {
			return nil, fmt.Errorf("pendingOffers: %w", err)
		}
	}
	if raw, err := strAttr(item, "email"); err == nil && raw != "" {
		if err := json.Unmarshal([]byte(raw), &s.Email); err != nil {
			return nil, fmt.Errorf("email: %w", err)
		}
	}
	if raw, err := strAttr(item, "turnPendingSince"); err == nil {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("turnPendingSince: %w", err)
		}
		s.TurnPendingSince = ts
	}
	return s, nil
}

func messageItem(conversationID string, seq int, msg domain.ChatMessage) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: convPK(conversationID)},
		"SK":             &types.AttributeValueMemberS{Value: msgSK(seq)},
		"conversationId": &types.AttributeValueMemberS{Value: conversationID},
		"role":           &types.AttributeValueMemberS{Value: string(msg.Role)},
		"content":        &types.AttributeValueMemberS{Value: msg.Content},
		"createdAt":      &types.AttributeValueMemberS{Value: now().UTC().Format(time.RFC3339Nano)},
		"ttl":            &types.AttributeValueMemberN{Value: strconv.FormatInt(ttlValue(), 10)},
	}
}

func itemToMessage(item map[string]types.AttributeValue) (domain.ChatMessage, error) {
	role, err := strAttr(item, "role")
	if err != nil {
		return domain.ChatMessage{}, err
	}
	content, err := strAttr(item, "content")
	if err != nil {
		return domain.ChatMessage{}, err
	}
	return domain.ChatMessage{Role: domain.Role(role), Content: content}, nil
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

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
