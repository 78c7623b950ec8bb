package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Publisher wraps an SQS client and a queue URL.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
}

// NewPublisher returns a Publisher bound to a queue URL.
func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
	}
}

// Enabled reports whether a queue is configured. Publishing to a
// disabled publisher is a no-op.
func (p *Publisher) Enabled() bool {
	return p != nil && p.SQS != nil && p.QueueURL != ""
}

// Send sends a raw message body. attributes are sent as String MessageAttributes.
func (p *Publisher) Send(ctx context.Context, messageBody string, attributes map[string]string) error {
	if !p.Enabled() {
		return nil
	}
	input := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: &messageBody,
	}
	if len(attributes) > 0 {
		msgAttrs := map[string]sqstypes.MessageAttributeValue{}
		for k, v := range attributes {
			if v == "" {
				continue
			}
			msgAttrs[k] = sqstypes.MessageAttributeValue{
				DataType:    awsString("String"),
				StringValue: awsString(v),
			}
		}
		input.MessageAttributes = msgAttrs
	}

	if _, err := p.SQS.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendJSON marshals v and sends it.
func (p *Publisher) SendJSON(ctx context.Context, v any, attributes map[string]string) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return p.Send(ctx, string(body), attributes)
}

// awsString helper
func awsString(s string) *string { return &s }
