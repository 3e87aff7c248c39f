package testutil

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/localstack"
	"github.com/testcontainers/testcontainers-go/wait"
)

// LocalStack is a running LocalStack container serving S3.
type LocalStack struct {
	container *localstack.LocalStackContainer
	endpoint  string
	region    string
}

// StartLocalStack starts a LocalStack container and waits for it to report
// healthy. Callers must Terminate it.
func StartLocalStack(ctx context.Context) (*LocalStack, error) {
	container, err := localstack.Run(ctx,
		"localstack/localstack:latest",
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/_localstack/health").
				WithPort("4566").
				WithStartupTimeout(2*time.Minute),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start LocalStack container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "4566")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	return &LocalStack{
		container: container,
		endpoint:  fmt.Sprintf("http://%s:%s", host, port.Port()),
		region:    "us-east-1",
	}, nil
}

// AWSConfig returns static test credentials for the container's region.
func (l *LocalStack) AWSConfig(ctx context.Context) (aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(l.region),
		config.WithCredentialsProvider(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) {
				return aws.Credentials{AccessKeyID: "test", SecretAccessKey: "test"}, nil
			})),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// S3Client returns a path-style client pointed at the container.
func (l *LocalStack) S3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := l.AWSConfig(ctx)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String(l.endpoint)
	}), nil
}

// Endpoint returns the container's S3 endpoint URL.
func (l *LocalStack) Endpoint() string {
	return l.endpoint
}

// Region returns the region the container is configured for.
func (l *LocalStack) Region() string {
	return l.region
}

// Terminate stops and removes the container.
func (l *LocalStack) Terminate(ctx context.Context) error {
	if l.container == nil {
		return nil
	}
	if err := l.container.Terminate(ctx); err != nil {
		return fmt.Errorf("failed to terminate container: %w", err)
	}
	return nil
}

// SetupLocalStack starts LocalStack for t, creates a fresh bucket and
// registers cleanup for both. It skips in short mode.
func SetupLocalStack(t *testing.T) (*LocalStack, *s3.Client, string) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	ls, err := StartLocalStack(ctx)
	if err != nil {
		t.Fatalf("start LocalStack: %v", err)
	}
	t.Cleanup(func() {
		if err := ls.Terminate(ctx); err != nil {
			t.Logf("terminate LocalStack: %v", err)
		}
	})

	client, err := ls.S3Client(ctx)
	if err != nil {
		t.Fatalf("create S3 client: %v", err)
	}

	bucket := GenerateTestBucketName("uploads")
	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		t.Fatalf("create bucket: %v", err)
	}
	t.Cleanup(func() {
		if err := EmptyBucket(ctx, client, bucket); err != nil {
			t.Logf("empty bucket: %v", err)
		}
	})
	return ls, client, bucket
}

// ReadObject returns the body of key, or an error if it does not exist.
func ReadObject(ctx context.Context, client *s3.Client, bucket, key string) ([]byte, error) {
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

// ListKeys returns every key in bucket.
func ListKeys(ctx context.Context, client *s3.Client, bucket string) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// EmptyBucket deletes every object in bucket and then the bucket itself.
func EmptyBucket(ctx context.Context, client *s3.Client, bucket string) error {
	keys, err := ListKeys(ctx, client, bucket)
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		objects := make([]types.ObjectIdentifier, 0, len(keys))
		for _, k := range keys {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(k)})
		}
		if _, err := client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{Objects: objects},
		}); err != nil {
			return fmt.Errorf("failed to delete objects: %w", err)
		}
	}
	if _, err := client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return fmt.Errorf("failed to delete bucket: %w", err)
	}
	return nil
}
