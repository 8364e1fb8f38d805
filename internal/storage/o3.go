// Package storage keeps capture batches in Akave O3 through its S3-compatible API.
package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/akave-ai/apicapture/internal/config"
	"github.com/akave-ai/apicapture/internal/model"
)

const (
	// BatchPrefix is the key prefix all capture batches are stored under.
	BatchPrefix = "captures/"
	// BatchExt and BatchContentType describe a batch object: a gzipped JSON
	// array of records.
	BatchExt         = ".json.gz"
	BatchContentType = "application/gzip"

	defaultRegion = "us-east-1"
)

// ErrNotBatchKey is returned when a key outside BatchPrefix is read as a batch.
var ErrNotBatchKey = errors.New("key is not a capture batch")

// O3Client reads and writes capture batches in one O3 bucket.
type O3Client struct {
	client *s3.Client
	bucket string
}

// NewO3Client returns nil, nil when O3 is not configured (no endpoint or bucket).
func NewO3Client(cfg *config.O3Config) (*O3Client, error) {
	if cfg == nil || cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, nil
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	client := s3.NewFromConfig(aws.Config{
		Region:      region,
		Credentials: aws.NewCredentialsCache(creds),
	}, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})
	return &O3Client{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the capture bucket unless it already exists.
func (c *O3Client) EnsureBucket(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if _, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)}); err == nil {
		return nil
	}
	_, err := c.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(c.bucket)})
	if err != nil && !bucketExists(err) {
		return fmt.Errorf("create bucket %s: %w", c.bucket, err)
	}
	return nil
}

func bucketExists(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	code := apiErr.ErrorCode()
	return code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists"
}

// PutObject uploads one encoded batch. The batcher calls it with keys from KeyForBatch.
func (c *O3Client) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	if c == nil {
		return fmt.Errorf("o3 client not configured")
	}
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	return err
}

// KeyForBatch returns captures/<source>/<yyyy>/<mm>/<dd>/<batchID><ext>, dated in UTC.
func KeyForBatch(source string, batchID string, ext string, at time.Time) string {
	if source == "" {
		source = "default"
	}
	return path.Join(BatchPrefix, source, at.UTC().Format("2006/01/02"), batchID+ext)
}

// IsBatchKey reports whether key names an object written by the batcher.
func IsBatchKey(key string) bool {
	return strings.HasPrefix(key, BatchPrefix) && strings.HasSuffix(key, BatchExt) && !strings.Contains(key, "..")
}

// ObjectInfo is one stored batch as listed by GET /uploads.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// ListObjects lists every object under prefix across all result pages,
// newest first. A nil client lists nothing.
func (c *O3Client) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if c == nil {
		return nil, nil
	}
	pages := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	var result []ObjectInfo
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, o := range page.Contents {
			info := ObjectInfo{Key: aws.ToString(o.Key), Size: aws.ToInt64(o.Size)}
			if o.LastModified != nil {
				info.LastModified = *o.LastModified
			}
			result = append(result, info)
		}
	}
	sortNewestFirst(result)
	return result, nil
}

func sortNewestFirst(objs []ObjectInfo) {
	sort.SliceStable(objs, func(i, j int) bool {
		if objs[i].LastModified.Equal(objs[j].LastModified) {
			return objs[i].Key > objs[j].Key
		}
		return objs[i].LastModified.After(objs[j].LastModified)
	})
}

// GetObjectRecords downloads the batch at key and decodes its records.
func (c *O3Client) GetObjectRecords(ctx context.Context, key string) ([]model.Record, error) {
	if c == nil {
		return nil, fmt.Errorf("o3 client not configured")
	}
	if !IsBatchKey(key) {
		return nil, fmt.Errorf("%w: %s", ErrNotBatchKey, key)
	}
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return DecodeBatch(out.Body)
}

// DecodeBatch reads a gzipped JSON array of records.
func DecodeBatch(r io.Reader) ([]model.Record, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer zr.Close()
	var records []model.Record
	if err := json.NewDecoder(zr).Decode(&records); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	return records, nil
}
