// Package publish ships finished reports to object storage and dead
// links to a Redis work queue.
package publish

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aluiziolira/go-linkcheck/config"
)

// S3Config holds connection settings for an S3-compatible bucket.
type S3Config struct {
	Endpoint        string // MinIO, Spaces, etc.
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	Prefix          string
}

// S3ConfigFrom copies the S3 settings out of cfg.
func S3ConfigFrom(cfg *config.Config) S3Config {
	return S3Config{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		Bucket:          cfg.S3Bucket,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		UsePathStyle:    cfg.S3UsePathStyle,
		Prefix:          cfg.S3Prefix,
	}
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Publisher uploads report files under reports/YYYY/MM/<run-id>/.
type S3Publisher struct {
	client objectPutter
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3Publisher builds a client from cfg. Static credentials are used
// when both keys are set, otherwise the default AWS chain applies.
func NewS3Publisher(ctx context.Context, cfg S3Config) (*S3Publisher, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("S3 region is required")
	}
	if (cfg.AccessKeyID == "") != (cfg.SecretAccessKey == "") {
		return nil, fmt.Errorf("S3 access key and secret must be set together")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return newS3Publisher(client, cfg), nil
}

func newS3Publisher(client objectPutter, cfg S3Config) *S3Publisher {
	return &S3Publisher{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		now:    time.Now,
	}
}

// ObjectKey returns the key a report file is stored under.
func (p *S3Publisher) ObjectKey(runID, file string) string {
	now := p.now().UTC()
	key := path.Join("reports", fmt.Sprintf("%04d", now.Year()), fmt.Sprintf("%02d", int(now.Month())), runID, filepath.Base(file))
	if p.prefix != "" {
		key = p.prefix + "/" + key
	}
	return key
}

// Upload puts each file into the bucket and returns the keys written.
// It stops at the first failure.
func (p *S3Publisher) Upload(ctx context.Context, runID string, files ...string) ([]string, error) {
	keys := make([]string, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return keys, fmt.Errorf("read %s: %w", file, err)
		}

		key := p.ObjectKey(runID, file)
		_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(p.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType(file)),
		})
		if err != nil {
			return keys, fmt.Errorf("upload %s to S3: %w", key, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func contentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".jsonl":
		return "application/x-ndjson"
	}
	if ct := mime.TypeByExtension(filepath.Ext(file)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
