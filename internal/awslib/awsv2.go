package awslib

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
)

// DefaultRegion is used when neither the environment nor IMDS gives a region.
const DefaultRegion = "us-east-1"

// Credentials are static keys handed to every client.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Options configure NewConfig.
type Options struct {
	Credentials Credentials

	// Region, if empty, is resolved from the environment, then IMDS, and is
	// DefaultRegion otherwise.
	Region string

	// Endpoint overrides the service endpoint, for local stand-ins.
	Endpoint string

	// AppID is appended to the SDK's user agent.
	AppID string
}

// NewConfig builds an SDK config from static credentials.
func NewConfig(ctx context.Context, o Options) (aws.Config, error) {
	optFns := []func(*config.LoadOptions) error{
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			o.Credentials.AccessKeyID,
			o.Credentials.SecretAccessKey,
			o.Credentials.SessionToken,
		)),
	}
	if o.Region != "" {
		optFns = append(optFns, config.WithRegion(o.Region))
	}
	if o.AppID != "" {
		optFns = append(optFns, config.WithAppID(o.AppID))
	}

	cfg, err := GetConfigV2(ctx, optFns...)
	if err != nil {
		return cfg, err
	}

	if o.Endpoint != "" {
		cfg.BaseEndpoint = aws.String(o.Endpoint)
	}

	return cfg, nil
}

// GetConfigV2 creates a new AWS SDK v2 config that uses the current region from
// IMDS, if not otherwise provided. When IMDS can't be reached either, the
// region is DefaultRegion.
func GetConfigV2(ctx context.Context, optFns ...func(*config.LoadOptions) error) (cfg aws.Config, err error) {
	cfg, err = config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return cfg, fmt.Errorf("error loading default config: %w", err)
	}

	// local configuration resolved a region so we can return
	if cfg.Region != "" {
		return cfg, nil
	}

	// we need to fall back to the ec2 imds service to get the region
	region := DefaultRegion
	client := imds.NewFromConfig(cfg)
	if regionResult, err := client.GetRegion(ctx, &imds.GetRegionInput{}); err == nil && regionResult.Region != "" {
		region = regionResult.Region
	}

	optFns = append(optFns, config.WithRegion(region))

	cfg, err = config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return cfg, fmt.Errorf("error loading default config using region %s: %w", region, err)
	}

	return cfg, nil
}

// MaskAccessKey hides all but the last four characters of an access key,
// padding on the left with '*' to twenty characters.
func MaskAccessKey(key string) string {
	tail := key
	if len(tail) > 4 {
		tail = tail[len(tail)-4:]
	}
	return strings.Repeat("*", 20-len(tail)) + tail
}
