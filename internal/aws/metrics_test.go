package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type mockCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (m *mockCloudWatch) PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.inputs = append(m.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

type mockSQS struct {
	inputs []*sqs.SendMessageInput
}

func (m *mockSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.inputs = append(m.inputs, in)
	return &sqs.SendMessageOutput{}, nil
}

func TestMetricsCount_SortsAndSkipsEmptyDimensions(t *testing.T) {
	cw := &mockCloudWatch{}
	m := NewMetrics(cw, "Reconciler")

	err := m.Count(context.Background(), "Reconciliations", 1, map[string]string{
		"State":  "failed",
		"Flow":   "checkout",
		"Reason": "",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cw.inputs) != 1 {
		t.Fatalf("expected 1 call, got %d", len(cw.inputs))
	}
	datum := cw.inputs[0].MetricData[0]
	if len(datum.Dimensions) != 2 {
		t.Fatalf("expected 2 dimensions, got %d", len(datum.Dimensions))
	}
	if *datum.Dimensions[0].Name != "Flow" || *datum.Dimensions[1].Name != "State" {
		t.Fatalf("dimensions not sorted: %s, %s", *datum.Dimensions[0].Name, *datum.Dimensions[1].Name)
	}
	if *cw.inputs[0].Namespace != "Reconciler" {
		t.Fatalf("namespace mismatch: %s", *cw.inputs[0].Namespace)
	}
}

func TestMetricsCount_WrapsError(t *testing.T) {
	boom := errors.New("boom")
	m := NewMetrics(&mockCloudWatch{err: boom}, "ns")
	if err := m.Count(context.Background(), "x", 1, nil); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}

func TestPublisher_DisabledIsNoop(t *testing.T) {
	var p *Publisher
	if err := p.Send(context.Background(), "{}", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q := &mockSQS{}
	if err := NewPublisher(q, "").Send(context.Background(), "{}", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q.inputs) != 0 {
		t.Fatalf("expected no sends without a queue url")
	}
}

func TestPublisher_SendJSONWithAttributes(t *testing.T) {
	q := &mockSQS{}
	p := NewPublisher(q, "https://sqs.local/queue")

	err := p.SendJSON(context.Background(), map[string]string{"flow": "auth"}, map[string]string{
		"flow":           "auth",
		"correlation_id": "",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q.inputs) != 1 {
		t.Fatalf("expected 1 send, got %d", len(q.inputs))
	}
	in := q.inputs[0]
	if *in.MessageBody != `{"flow":"auth"}` {
		t.Fatalf("body mismatch: %s", *in.MessageBody)
	}
	if _, ok := in.MessageAttributes["correlation_id"]; ok {
		t.Fatalf("empty attribute should be skipped")
	}
	if *in.MessageAttributes["flow"].StringValue != "auth" {
		t.Fatalf("flow attribute mismatch")
	}
}
