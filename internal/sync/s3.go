package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// objectPutter is the part of the S3 client an export upload needs.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Destination uploads each export as one object. A key containing
// "{date}" keeps one snapshot per UTC day instead of overwriting.
type S3Destination struct {
	client objectPutter
	bucket string
	key    string
	now    func() time.Time
}

// NewS3Destination loads the default AWS credential chain for region. A
// non-empty endpoint selects path-style addressing for S3-compatible
// stores such as MinIO.
func NewS3Destination(ctx context.Context, bucket, key, region, endpoint string) (*S3Destination, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Destination(client, bucket, key), nil
}

func newS3Destination(client objectPutter, bucket, key string) *S3Destination {
	return &S3Destination{client: client, bucket: bucket, key: key, now: time.Now}
}

func (d *S3Destination) Name() string {
	return "s3://" + d.bucket + "/" + d.key
}

// objectKey expands the key template for an export taken at t.
func (d *S3Destination) objectKey(t time.Time) string {
	return strings.ReplaceAll(d.key, "{date}", t.UTC().Format("2006-01-02"))
}

// Write uploads an export. The header's forest and comment counts travel
// as object metadata so a listing shows what each snapshot holds.
func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	meta := map[string]string{"exported-by": "threads"}
	if h, ok := readHeader(data); ok {
		meta["forests"] = strconv.Itoa(h.ForestCount)
		meta["comments"] = strconv.Itoa(h.CommentCount)
		meta["exported-at"] = h.Timestamp.UTC().Format(time.RFC3339)
	}

	key := d.objectKey(d.now())
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:            aws.String(d.bucket),
		Key:               aws.String(key),
		Body:              bytes.NewReader(data),
		ContentType:       aws.String("application/x-ndjson"),
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
		Metadata:          meta,
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", d.bucket, key, err)
	}
	return nil
}

// readHeader decodes the first JSONL line of an export.
func readHeader(data []byte) (header, bool) {
	line, _, _ := bytes.Cut(data, []byte("\n"))
	var h header
	if err := json.Unmarshal(line, &h); err != nil || h.Type != "header" {
		return header{}, false
	}
	return h, true
}
