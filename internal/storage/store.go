package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-callback-reconciler/internal/aws"
)

// AuthTokenKey is the well-known key the auth callback persists its token under.
const AuthTokenKey = "auth_token"

// Item is one stored value of one client.
type Item struct {
	StorageKey string    `dynamodbav:"storage_key"` // PK: client_id#key
	ClientID   string    `dynamodbav:"client_id"`
	Key        string    `dynamodbav:"key"`
	Value      string    `dynamodbav:"value"`
	UpdatedAt  time.Time `dynamodbav:"updated_at"`
}

// Store keeps per-client key/value pairs in DynamoDB. Writes overwrite.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a client storage Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// ErrNoClient is returned when a client-scoped write has no client id.
var ErrNoClient = errors.New("storage: missing client id")

func storageKey(clientID, key string) string { return clientID + "#" + key }

// Put writes value under key for clientID.
func (s *Store) Put(ctx context.Context, clientID, key, value string) error {
	if clientID == "" {
		return ErrNoClient
	}
	item, err := attributevalue.MarshalMap(Item{
		StorageKey: storageKey(clientID, key),
		ClientID:   clientID,
		Key:        key,
		Value:      value,
		UpdatedAt:  s.nowFunc(),
	})
	if err != nil {
		return fmt.Errorf("marshal storage item: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	}); err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Lookup reads key for clientID. ok is false when nothing is stored.
func (s *Store) Lookup(ctx context.Context, clientID, key string) (value string, ok bool, err error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"storage_key": &types.AttributeValueMemberS{Value: storageKey(clientID, key)},
		},
	})
	if err != nil {
		return "", false, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return "", false, nil
	}
	var it Item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return "", false, fmt.Errorf("unmarshal storage item: %w", err)
	}
	return it.Value, true, nil
}

// For scopes the store to one client. The result satisfies reconcile.Storage.
func (s *Store) For(clientID string) *ClientStorage {
	return &ClientStorage{store: s, clientID: clientID}
}

// ClientStorage is a Store bound to a client id.
type ClientStorage struct {
	store    *Store
	clientID string
}

func (c *ClientStorage) Set(ctx context.Context, key, value string) error {
	return c.store.Put(ctx, c.clientID, key, value)
}

func (c *ClientStorage) Get(ctx context.Context, key string) (string, bool, error) {
	return c.store.Lookup(ctx, c.clientID, key)
}
