package testutil

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQS records every SendMessage call.
type SQS struct {
	mu     sync.Mutex
	Bodies []string
	Err    error
}

func (q *SQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return nil, q.Err
	}
	q.Bodies = append(q.Bodies, *in.MessageBody)
	return &sqs.SendMessageOutput{}, nil
}

// Messages returns a copy of the sent bodies.
func (q *SQS) Messages() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.Bodies...)
}
