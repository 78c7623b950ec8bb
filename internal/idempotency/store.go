package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/go-callback-reconciler/internal/aws"
)

// Store is the idempotency ledger: one record per claimed key.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // default TTL window when creating entries
	nowFunc   func() time.Time
}

// NewStore returns a Store over tableName. Records expire ttlWindow after
// their last claim.
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// CreateIfNotExists claims key as IN_PROGRESS. created is false when the
// key already exists; callers Get it to decide what to do.
func (s *Store) CreateIfNotExists(ctx context.Context, key, flow string) (bool, error) {
	now := s.nowFunc()
	rec := IdempotencyRecord{
		IdempotencyKey: key,
		Status:         StatusInProgress,
		Flow:           flow,
		Attempts:       1,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(s.ttlWindow).Unix(),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}

	input := &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
	}

	_, err = s.client.PutItem(ctx, input)
	if err != nil {
		if isConditionalFailure(err) {
			return false, nil
		}
		return false, fmt.Errorf("put item: %w", err)
	}

	return true, nil
}

// Get retrieves an idempotency record by key. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*IdempotencyRecord, error) {
	input := &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: key},
		},
	}
	out, err := s.client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec IdempotencyRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// ErrNotClaimed is returned when settling a key that is not IN_PROGRESS:
// never created, already settled, or reclaimed after expiry.
var ErrNotClaimed = errors.New("idempotency: key not claimed")

// transition is one status change of a record.
type transition struct {
	to   string
	from string // required current status; empty only requires the record to exist
	set  map[string]types.AttributeValue
	// retry bumps attempts and extends the TTL
	retry bool
}

func (s *Store) apply(ctx context.Context, key string, tr transition) error {
	now := s.nowFunc()
	expr := []string{"#s = :to", "updated_at = :ua"}
	values := map[string]types.AttributeValue{
		":to": &types.AttributeValueMemberS{Value: tr.to},
		":ua": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
	}

	attrs := make([]string, 0, len(tr.set))
	for attr := range tr.set {
		attrs = append(attrs, attr)
	}
	sort.Strings(attrs)
	for i, attr := range attrs {
		ph := fmt.Sprintf(":v%d", i)
		expr = append(expr, attr+" = "+ph)
		values[ph] = tr.set[attr]
	}

	if tr.retry {
		expr = append(expr, "attempts = if_not_exists(attempts, :zero) + :inc", "expires_at = :exp")
		values[":zero"] = &types.AttributeValueMemberN{Value: "0"}
		values[":inc"] = &types.AttributeValueMemberN{Value: "1"}
		values[":exp"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(s.ttlWindow).Unix(), 10)}
	}

	cond := "attribute_exists(idempotency_key)"
	if tr.from != "" {
		cond = "#s = :from"
		values[":from"] = &types.AttributeValueMemberS{Value: tr.from}
	}

	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: key},
		},
		UpdateExpression:          awsString("SET " + strings.Join(expr, ", ")),
		ConditionExpression:       &cond,
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
	})
	return err
}

// MarkDone settles key as DONE with the stored response, a small JSON body.
func (s *Store) MarkDone(ctx context.Context, key, responseBody string) error {
	err := s.apply(ctx, key, transition{
		to:   StatusDone,
		from: StatusInProgress,
		set:  map[string]types.AttributeValue{"response_body": &types.AttributeValueMemberS{Value: responseBody}},
	})
	return settleErr("mark done", key, err)
}

// MarkFailed settles key as FAILED with a note for operators.
func (s *Store) MarkFailed(ctx context.Context, key, note string) error {
	err := s.apply(ctx, key, transition{
		to:   StatusFailed,
		from: StatusInProgress,
		set:  map[string]types.AttributeValue{"note": &types.AttributeValueMemberS{Value: note}},
	})
	return settleErr("mark failed", key, err)
}

// Reopen moves a FAILED record back to IN_PROGRESS so an explicit retry can
// run. Returns (false, nil) when the record is not FAILED anymore.
func (s *Store) Reopen(ctx context.Context, key string) (bool, error) {
	err := s.apply(ctx, key, transition{to: StatusInProgress, from: StatusFailed, retry: true})
	switch {
	case err == nil:
		return true, nil
	case isConditionalFailure(err):
		return false, nil
	default:
		return false, fmt.Errorf("update item (reopen): %w", err)
	}
}

func settleErr(op, key string, err error) error {
	switch {
	case err == nil:
		return nil
	case isConditionalFailure(err):
		return fmt.Errorf("%s %s: %w", op, key, ErrNotClaimed)
	default:
		return fmt.Errorf("update item (%s): %w", op, err)
	}
}

func isConditionalFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var sc smithy.APIError
	return errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException"
}

func awsString(s string) *string { return &s }
