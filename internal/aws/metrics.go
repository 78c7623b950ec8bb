package aws

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metrics emits counters to a CloudWatch namespace.
type Metrics struct {
	CloudWatch CloudWatchAPI
	Namespace  string
	nowFunc    func() time.Time
}

// NewMetrics returns a Metrics bound to a namespace.
func NewMetrics(client CloudWatchAPI, namespace string) *Metrics {
	return &Metrics{
		CloudWatch: client,
		Namespace:  namespace,
		nowFunc:    time.Now,
	}
}

// Count publishes a single Count datum. Empty dimension values are skipped.
func (m *Metrics) Count(ctx context.Context, name string, value float64, dims map[string]string) error {
	if m == nil || m.CloudWatch == nil {
		return nil
	}
	names := make([]string, 0, len(dims))
	for k, v := range dims {
		if v != "" {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	dimensions := make([]cwtypes.Dimension, 0, len(names))
	for _, k := range names {
		dimensions = append(dimensions, cwtypes.Dimension{
			Name:  awsString(k),
			Value: awsString(dims[k]),
		})
	}

	now := m.nowFunc()
	_, err := m.CloudWatch.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &m.Namespace,
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: &name,
				Dimensions: dimensions,
				Value:      &value,
				Unit:       cwtypes.StandardUnitCount,
				Timestamp:  &now,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}
