// Package evidence stores failure screenshots in S3-compatible object storage.
// For production, configure with a Tigris or AWS endpoint. For tests, use gofakes3.
package evidence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/kuitang/webact/internal/errs"
)

// ErrObjectNotFound is returned when a requested object does not exist.
var ErrObjectNotFound = errors.New("evidence: object not found")

const pngContentType = "image/png"

// Store writes screenshots under runs/<run id>/<uuid>.png.
type Store struct {
	s3Client   *s3.Client
	bucketName string
	publicURL  string
}

// Config holds the configuration for creating a Store.
type Config struct {
	// Endpoint is the S3 endpoint URL. Leave empty to use default AWS S3.
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	// PublicURL is the base URL for publicly accessible objects.
	PublicURL string
	// UsePathStyle is required by some S3-compatible services, gofakes3 included.
	UsePathStyle bool
}

// New creates a Store with the given configuration.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.BucketName == "" {
		return nil, errs.New(errs.InvalidArgument, "evidence: bucket name is required")
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	sdkConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("evidence: failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return NewFromS3Client(s3Client, cfg.BucketName, cfg.PublicURL), nil
}

// NewFromS3Client creates a Store from an existing S3 client.
func NewFromS3Client(s3Client *s3.Client, bucketName, publicURL string) *Store {
	return &Store{
		s3Client:   s3Client,
		bucketName: bucketName,
		publicURL:  strings.TrimSuffix(publicURL, "/"),
	}
}

// Key returns a fresh object key for a screenshot taken during runID.
func Key(runID string) string {
	return runPrefix(runID) + uuid.NewString() + ".png"
}

func runPrefix(runID string) string {
	runID = strings.Trim(strings.ReplaceAll(runID, "/", "_"), ".")
	if runID == "" {
		runID = "unknown"
	}
	return "runs/" + runID + "/"
}

// Put uploads png under a fresh key for runID and returns its public URL.
func (s *Store) Put(ctx context.Context, runID string, png []byte) (string, error) {
	if len(png) == 0 {
		return "", errs.New(errs.InvalidArgument, "evidence: empty screenshot")
	}
	key := Key(runID)
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(png),
		ContentType: aws.String(pngContentType),
		ACL:         types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", errs.Wrap(errs.Unavailable, fmt.Sprintf("evidence: failed to put object %q", key), err)
	}
	return s.PublicURL(key), nil
}

// Get retrieves the object stored under key.
// Returns ErrObjectNotFound if the key does not exist.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrObjectNotFound
		}
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("evidence: failed to get object %q: %w", key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("evidence: failed to read object body %q: %w", key, err)
	}
	return data, nil
}

// List returns the keys stored for runID.
func (s *Store) List(ctx context.Context, runID string) ([]string, error) {
	prefix := runPrefix(runID)
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucketName),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("evidence: failed to list %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// PublicURL returns the publicly accessible URL for key.
func (s *Store) PublicURL(key string) string {
	return s.publicURL + "/" + strings.TrimPrefix(key, "/")
}

// KeyFromURL reverses PublicURL. ok is false for URLs outside this store.
func (s *Store) KeyFromURL(url string) (key string, ok bool) {
	return strings.CutPrefix(url, s.publicURL+"/")
}

func (s *Store) BucketName() string {
	return s.bucketName
}
