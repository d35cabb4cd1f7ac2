// Package source reads a pipeline definition document from a local file or
// an S3 object.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/buildkite/datapipeline-deploy/logger"
	"github.com/dustin/go-humanize"
)

const s3Scheme = "s3://"

// S3API is the subset of *s3.Client used to fetch objects.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Fetcher reads definition documents.
type Fetcher struct {
	logger logger.Logger

	// newS3Client is called once per S3 location.
	newS3Client func(ctx context.Context, bucket string) (S3API, error)
}

// NewFetcher returns a Fetcher that reaches S3 with clients made from cfg.
func NewFetcher(l logger.Logger, cfg aws.Config) *Fetcher {
	return &Fetcher{
		logger: l,
		newS3Client: func(ctx context.Context, bucket string) (S3API, error) {
			return NewS3Client(ctx, l, cfg, bucket)
		},
	}
}

// NewFetcherWithClient returns a Fetcher that uses client for every S3
// location.
func NewFetcherWithClient(l logger.Logger, client S3API) *Fetcher {
	return &Fetcher{
		logger: l,
		newS3Client: func(context.Context, string) (S3API, error) {
			return client, nil
		},
	}
}

// IsS3 reports whether location names an S3 object.
func IsS3(location string) bool {
	return strings.HasPrefix(location, s3Scheme)
}

// ParseS3Location splits "s3://bucket/key" into its bucket and key.
func ParseS3Location(location string) (bucket, key string, err error) {
	if !IsS3(location) {
		return "", "", fmt.Errorf("%q is not an s3:// location", location)
	}
	bucket, key, _ = strings.Cut(strings.TrimPrefix(location, s3Scheme), "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%q must be of the form s3://bucket/key", location)
	}
	return bucket, key, nil
}

// Fetch returns the contents of the document at location.
func (f *Fetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	var (
		b   []byte
		err error
	)
	if IsS3(location) {
		b, err = f.fetchS3(ctx, location)
	} else {
		b, err = os.ReadFile(location)
	}
	if err != nil {
		return nil, fmt.Errorf("reading pipeline definition %q: %w", location, err)
	}

	f.logger.Debug("Read pipeline definition %s (%s)", location, humanize.Bytes(uint64(len(b))))
	return b, nil
}

func (f *Fetcher) fetchS3(ctx context.Context, location string) ([]byte, error) {
	bucket, key, err := ParseS3Location(location)
	if err != nil {
		return nil, err
	}

	client, err := f.newS3Client(ctx, bucket)
	if err != nil {
		return nil, err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

// NewS3Client returns a client for the region bucket lives in, falling back
// to cfg's region when the bucket's can't be discovered.
func NewS3Client(ctx context.Context, l logger.Logger, cfg aws.Config, bucket string) (*s3.Client, error) {
	usePathStyle := cfg.BaseEndpoint != nil

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = usePathStyle
	})

	bucketRegion, err := manager.GetBucketRegion(ctx, client, bucket)
	if err != nil || bucketRegion == "" {
		var bnf manager.BucketNotFound
		if errors.As(err, &bnf) {
			return nil, fmt.Errorf("bucket %q not found", bucket)
		}
		l.Warn("Could not discover region for bucket %q, using %q (%v)", bucket, cfg.Region, err)
		return client, nil
	}
	if bucketRegion == cfg.Region {
		return client, nil
	}

	l.Debug("Discovered %q bucket region as %q", bucket, bucketRegion)
	cfg.Region = bucketRegion
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = usePathStyle
	}), nil
}
