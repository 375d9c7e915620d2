package snapshot

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/lookervault/lookervault/iox"
	"github.com/lookervault/lookervault/log"
)

// checksumKey is the object metadata key carrying the CRC32C checksum of
// the stored bytes, in decimal.
const checksumKey = "crc32c"

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// ErrChecksumMismatch indicates a downloaded snapshot failed its
// integrity check.
var ErrChecksumMismatch = errors.New("snapshot checksum mismatch")

// S3Config holds configuration for the snapshot object store.
type S3Config struct {
	// Bucket is the bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom endpoint URL for S3-compatible providers
	// (e.g. Cloudflare R2, MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing (bucket in path, not
	// subdomain). Required by most S3-compatible providers.
	UsePathStyle bool
}

// Validate checks that required configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("snapshot bucket is required")
	}
	return nil
}

// ParsePath parses a destination in format "bucket/prefix" or "bucket".
func ParsePath(p string) (bucket, prefix string) {
	parts := strings.SplitN(p, "/", 2)
	bucket = parts[0]
	if len(parts) > 1 {
		prefix = parts[1]
	}
	return bucket, prefix
}

// objectAPI is the slice of the S3 client the snapshot layer uses.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Client moves snapshots between the local filesystem and object storage.
type Client struct {
	api    objectAPI
	bucket string
	prefix string
	logger *log.Logger

	now func() time.Time
}

// NewClient creates a snapshot client using the AWS SDK default
// credential chain (env vars, shared config, IAM role).
func NewClient(ctx context.Context, cfg S3Config, logger *log.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return newClient(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket, cfg.Prefix, logger), nil
}

func newClient(api objectAPI, bucket, prefix string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{api: api, bucket: bucket, prefix: prefix, logger: logger, now: time.Now}
}

// Info describes one stored snapshot.
type Info struct {
	Ref          string
	Size         int64
	LastModified time.Time
	Compressed   bool
}

// UploadOptions configures one upload.
type UploadOptions struct {
	// Prefix overrides the default snapshot name prefix.
	Prefix string
	// Compress gzips the store file before upload.
	Compress bool
}

// Upload ships a store file, returning the snapshot reference. The CRC32C
// of the uploaded bytes travels as object metadata and is verified on
// download.
func (c *Client) Upload(ctx context.Context, dbPath string, opts UploadOptions) (string, error) {
	f, err := os.Open(dbPath)
	if err != nil {
		return "", fmt.Errorf("snapshot upload: %w", err)
	}
	defer iox.DiscardClose(f)

	var payload bytes.Buffer
	if opts.Compress {
		gz := gzip.NewWriter(&payload)
		if _, err := io.Copy(gz, f); err != nil {
			return "", fmt.Errorf("snapshot compress: %w", err)
		}
		if err := gz.Close(); err != nil {
			return "", fmt.Errorf("snapshot compress: %w", err)
		}
	} else {
		if _, err := io.Copy(&payload, f); err != nil {
			return "", fmt.Errorf("snapshot upload: %w", err)
		}
	}

	ref := Name(opts.Prefix, c.now(), opts.Compress)
	sum := crc32.Checksum(payload.Bytes(), castagnoli)

	_, err = c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.key(ref)),
		Body:   bytes.NewReader(payload.Bytes()),
		Metadata: map[string]string{
			checksumKey: strconv.FormatUint(uint64(sum), 10),
		},
	})
	if err != nil {
		return "", fmt.Errorf("snapshot upload %s: %w", ref, err)
	}

	c.logger.Info("snapshot uploaded", map[string]any{
		"ref": ref, "bytes": payload.Len(), "crc32c": sum,
	})
	return ref, nil
}

// Download fetches a snapshot to a local path, verifying its checksum and
// transparently gunzipping compressed snapshots.
func (c *Client) Download(ctx context.Context, ref, destPath string) error {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.key(ref)),
	})
	if err != nil {
		return fmt.Errorf("snapshot download %s: %w", ref, err)
	}
	defer iox.DiscardClose(out.Body)

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return fmt.Errorf("snapshot download %s: %w", ref, err)
	}

	if stored, ok := out.Metadata[checksumKey]; ok {
		want, err := strconv.ParseUint(stored, 10, 32)
		if err != nil {
			return fmt.Errorf("snapshot download %s: bad checksum metadata: %w", ref, err)
		}
		if got := crc32.Checksum(raw, castagnoli); got != uint32(want) {
			return fmt.Errorf("snapshot %s: %w: got %d, want %d", ref, ErrChecksumMismatch, got, want)
		}
	}

	data := raw
	if IsCompressed(ref) {
		gz, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return fmt.Errorf("snapshot decompress %s: %w", ref, err)
		}
		data, err = io.ReadAll(gz)
		if err != nil {
			return fmt.Errorf("snapshot decompress %s: %w", ref, err)
		}
		if err := gz.Close(); err != nil {
			return fmt.Errorf("snapshot decompress %s: %w", ref, err)
		}
	}

	if err := os.WriteFile(destPath, data, 0o600); err != nil {
		return fmt.Errorf("snapshot download %s: %w", ref, err)
	}
	return nil
}

// List returns stored snapshots, newest first.
func (c *Client) List(ctx context.Context) ([]Info, error) {
	var infos []Info
	var token *string
	for {
		out, err := c.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(c.bucket),
			Prefix:            aws.String(c.prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("snapshot list: %w", err)
		}
		for _, obj := range out.Contents {
			infos = append(infos, infoFromObject(obj, c.prefix))
		}
		if out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].LastModified.After(infos[j].LastModified)
	})
	return infos, nil
}

func infoFromObject(obj s3types.Object, prefix string) Info {
	ref := aws.ToString(obj.Key)
	if prefix != "" {
		ref = strings.TrimPrefix(ref, strings.TrimSuffix(prefix, "/")+"/")
	}
	info := Info{
		Ref:        ref,
		Compressed: IsCompressed(ref),
	}
	if obj.Size != nil {
		info.Size = *obj.Size
	}
	if obj.LastModified != nil {
		info.LastModified = obj.LastModified.UTC()
	}
	return info
}

// Delete removes one snapshot.
func (c *Client) Delete(ctx context.Context, ref string) error {
	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.key(ref)),
	})
	if err != nil {
		return fmt.Errorf("snapshot delete %s: %w", ref, err)
	}
	return nil
}

// Cleanup deletes snapshots older than the retention window, returning
// the refs removed.
func (c *Client) Cleanup(ctx context.Context, retention time.Duration) ([]string, error) {
	infos, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := c.now().Add(-retention)

	var removed []string
	for _, info := range infos {
		ts := info.LastModified
		// Prefer the timestamp baked into the name; object mtime can
		// drift on copy between buckets.
		if _, named, _, err := ParseName(info.Ref); err == nil {
			ts = named
		}
		if ts.Before(cutoff) {
			if err := c.Delete(ctx, info.Ref); err != nil {
				return removed, err
			}
			removed = append(removed, info.Ref)
		}
	}
	if len(removed) > 0 {
		c.logger.Info("snapshot retention cleanup", map[string]any{
			"removed": len(removed),
		})
	}
	return removed, nil
}

func (c *Client) key(ref string) string {
	if c.prefix == "" {
		return ref
	}
	return path.Join(c.prefix, ref)
}
