package aws

import (
	"context"
	"fmt"
	"os"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

// LoadAWSConfig loads the default AWS config. AWS_REGION falls back to
// us-east-1 and AWS_ENDPOINT_OVERRIDE points every client at a local
// endpoint (localstack).
func LoadAWSConfig(ctx context.Context) (sdkaws.Config, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1" // default fallback
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
	)
	if err != nil {
		return cfg, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if ep := os.Getenv("AWS_ENDPOINT_OVERRIDE"); ep != "" {
		cfg.BaseEndpoint = sdkaws.String(ep)
	}

	return cfg, nil
}
