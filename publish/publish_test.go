package publish

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aluiziolira/go-linkcheck/config"
	"github.com/aluiziolira/go-linkcheck/models"
)

type fakePutter struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = make(map[string][]byte)
		f.types = make(map[string]string)
	}
	f.objects[aws.ToString(in.Key)] = body
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func fixedPublisher(client objectPutter, prefix string) *S3Publisher {
	p := newS3Publisher(client, S3Config{Bucket: "links", Region: "us-east-1", Prefix: prefix})
	p.now = func() time.Time { return time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC) }
	return p
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{prefix: "", want: "reports/2025/03/run-1/summary.md"},
		{prefix: "/team-a/", want: "team-a/reports/2025/03/run-1/summary.md"},
	}
	for _, tt := range tests {
		p := fixedPublisher(&fakePutter{}, tt.prefix)
		if got := p.ObjectKey("run-1", "/tmp/out/summary.md"); got != tt.want {
			t.Fatalf("prefix %q: key = %q, want %q", tt.prefix, got, tt.want)
		}
	}
}

func TestUpload(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "results.json")
	mdPath := filepath.Join(dir, "summary.md")
	if err := os.WriteFile(jsonPath, []byte(`{"General":[]}`), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.WriteFile(mdPath, []byte("# report"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	fake := &fakePutter{}
	keys, err := fixedPublisher(fake, "").Upload(context.Background(), "abc", jsonPath, mdPath)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("keys = %v", keys)
	}
	if string(fake.objects["reports/2025/03/abc/summary.md"]) != "# report" {
		t.Fatalf("markdown not uploaded: %v", fake.objects)
	}
	if fake.types["reports/2025/03/abc/summary.md"] != "text/markdown; charset=utf-8" {
		t.Fatalf("markdown content type = %q", fake.types["reports/2025/03/abc/summary.md"])
	}
}

func TestUploadErrors(t *testing.T) {
	if _, err := fixedPublisher(&fakePutter{}, "").Upload(context.Background(), "abc", filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "r.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	putErr := errors.New("access denied")
	if _, err := fixedPublisher(&fakePutter{err: putErr}, "").Upload(context.Background(), "abc", path); !errors.Is(err, putErr) {
		t.Fatalf("expected put error, got %v", err)
	}
}

func TestNewS3PublisherValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  S3Config
	}{
		{name: "missing bucket", cfg: S3Config{Region: "us-east-1"}},
		{name: "missing region", cfg: S3Config{Bucket: "b"}},
		{name: "half credentials", cfg: S3Config{Bucket: "b", Region: "us-east-1", AccessKeyID: "id"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewS3Publisher(context.Background(), tt.cfg); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	p, err := NewS3Publisher(context.Background(), S3Config{
		Bucket: "b", Region: "us-east-1", Endpoint: "http://127.0.0.1:9000",
		AccessKeyID: "id", SecretAccessKey: "secret", UsePathStyle: true,
	})
	if err != nil || p == nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestS3ConfigFrom(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.S3Bucket = "bucket"
	cfg.S3Region = "eu-west-1"
	cfg.S3Prefix = "p"
	got := S3ConfigFrom(cfg)
	if got.Bucket != "bucket" || got.Region != "eu-west-1" || got.Prefix != "p" {
		t.Fatalf("S3ConfigFrom = %+v", got)
	}
}

func deadRecords() []models.Record {
	return []models.Record{
		{URL: "https://ok.example.com", Status: models.StatusSuccess},
		{URL: "https://gone.example.com", Status: models.StatusHTTPError, StatusCode: 404},
		{URL: "https://moved.example.com", Status: models.StatusRedirect},
	}
}

func TestDeadLinkQueueNilClient(t *testing.T) {
	q := NewDeadLinkQueue(nil, "")
	if q.queueName != defaultQueueName {
		t.Fatalf("queue name = %q", q.queueName)
	}
	n, err := q.Push(context.Background(), "run", deadRecords())
	if err != nil || n != 0 {
		t.Fatalf("nil client push = %d, %v", n, err)
	}
	if l, err := q.Length(context.Background()); err != nil || l != 0 {
		t.Fatalf("nil client length = %d, %v", l, err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestDeadLinkQueueUnreachable(t *testing.T) {
	client := NewRedisClient("127.0.0.1:1", "", 0)
	q := NewDeadLinkQueue(client, "test:dead")
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := q.Push(ctx, "run", deadRecords()); err == nil {
		t.Fatalf("expected error from unreachable redis")
	}
}

func TestDeadLinkQueueNothingToPush(t *testing.T) {
	client := NewRedisClient("127.0.0.1:1", "", 0)
	q := NewDeadLinkQueue(client, "test:dead")
	defer q.Close()

	n, err := q.Push(context.Background(), "run", deadRecords()[:1])
	if err != nil || n != 0 {
		t.Fatalf("push with no dead links = %d, %v", n, err)
	}
}
