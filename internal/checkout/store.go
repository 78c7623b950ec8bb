package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-callback-reconciler/internal/apperr"
	"github.com/imrishuroy/go-callback-reconciler/internal/aws"
)

// webhookEventTTL bounds how long processed event ids are remembered.
const webhookEventTTL = 30 * 24 * time.Hour

// Store encapsulates operations on the checkouts and webhook events tables.
type Store struct {
	client      aws.DynamoDBAPI
	tableName   string
	eventsTable string
	nowFunc     func() time.Time
}

// NewStore creates a new checkout Store.
func NewStore(client aws.DynamoDBAPI, tableName, eventsTable string) *Store {
	return &Store{
		client:      client,
		tableName:   tableName,
		eventsTable: eventsTable,
		nowFunc:     time.Now,
	}
}

// Create persists a new checkout. The checkout id must be set by the caller
// and must not exist yet.
func (s *Store) Create(ctx context.Context, c Checkout) error {
	now := s.nowFunc()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal checkout: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(checkout_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("checkout %s exists: %w", c.CheckoutID, apperr.ErrStatusMismatch)
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Get fetches a checkout by checkout_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, checkoutID string) (*Checkout, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"checkout_id": &types.AttributeValueMemberS{Value: checkoutID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var c Checkout
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, fmt.Errorf("unmarshal checkout: %w", err)
	}
	return &c, nil
}

// UpdateStatus conditionally updates the checkout status from expected -> newStatus.
// Returns apperr.ErrStatusMismatch if the condition failed.
func (s *Store) UpdateStatus(ctx context.Context, checkoutID, expectedStatus, newStatus, reason string) error {
	_, err := s.client.UpdateItem(ctx, s.statusUpdate(checkoutID, expectedStatus, newStatus, reason))
	if err != nil {
		var sc *types.ConditionalCheckFailedException
		if errors.As(err, &sc) {
			return apperr.ErrStatusMismatch
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// Cancel moves a PENDING checkout owned by clientID to CANCELED. Checkouts
// of other clients are reported as not found.
func (s *Store) Cancel(ctx context.Context, checkoutID, clientID string) error {
	co, err := s.Get(ctx, checkoutID)
	if err != nil {
		return err
	}
	if co == nil || clientID == "" || co.ClientID != clientID {
		return fmt.Errorf("%w: %s", apperr.ErrCheckoutNotFound, checkoutID)
	}
	return s.UpdateStatus(ctx, checkoutID, StatusPending, StatusCanceled, CancelReasonUser)
}

// ApplyWebhook records a gateway notification and moves the checkout out
// of PENDING in one transaction. A replayed event id yields
// apperr.ErrDuplicateEvent; a checkout that is missing or no longer
// pending yields apperr.ErrStatusMismatch.
func (s *Store) ApplyWebhook(ctx context.Context, eventID, checkoutID, newStatus, reason string) error {
	now := s.nowFunc()
	event, err := attributevalue.MarshalMap(WebhookEvent{
		EventID:    eventID,
		CheckoutID: checkoutID,
		Status:     newStatus,
		ReceivedAt: now,
		ExpiresAt:  now.Add(webhookEventTTL).Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal webhook event: %w", err)
	}

	upd := s.statusUpdate(checkoutID, StatusPending, newStatus, reason)
	transactItems := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName:           &s.eventsTable,
				Item:                event,
				ConditionExpression: awsString("attribute_not_exists(event_id)"),
			},
		},
		{
			Update: &types.Update{
				TableName:                 upd.TableName,
				Key:                       upd.Key,
				UpdateExpression:          upd.UpdateExpression,
				ConditionExpression:       upd.ConditionExpression,
				ExpressionAttributeNames:  upd.ExpressionAttributeNames,
				ExpressionAttributeValues: upd.ExpressionAttributeValues,
			},
		},
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: transactItems})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			reasons := tce.CancellationReasons
			if len(reasons) > 0 && reasons[0].Code != nil && *reasons[0].Code == "ConditionalCheckFailed" {
				return apperr.ErrDuplicateEvent
			}
			return fmt.Errorf("checkout %s not pending: %w", checkoutID, apperr.ErrStatusMismatch)
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

func (s *Store) statusUpdate(checkoutID, expectedStatus, newStatus, reason string) *dyn.UpdateItemInput {
	now := s.nowFunc()
	return &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"checkout_id": &types.AttributeValueMemberS{Value: checkoutID},
		},
		UpdateExpression:         awsString("SET #s = :new, failure_reason = :fr, updated_at = :ua"),
		ConditionExpression:      awsString("#s = :expected"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberS{Value: newStatus},
			":expected": &types.AttributeValueMemberS{Value: expectedStatus},
			":fr":       &types.AttributeValueMemberS{Value: reason},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
	}
}

func awsString(s string) *string { return &s }
