package acquire

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/cockroachdb/errors"
)

// Defaults for the public terrain tiles bucket.
const (
	DefaultBucket = "elevation-tiles-prod"
	DefaultPrefix = "skadi"
	DefaultRegion = "us-east-1"
)

// An ObjectStore is a remote key/value blob store holding compressed tiles.
type ObjectStore interface {
	// List returns all keys under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// Fetch writes the object at key to w.
	Fetch(ctx context.Context, key string, w io.Writer) error
}

// An S3Store is an ObjectStore backed by an S3 bucket. Requests are not
// signed.
type S3Store struct {
	bucket   string
	region   string
	endpoint string
	s3       *s3.S3
}

// An S3StoreOption sets an option on an S3Store.
type S3StoreOption func(*S3Store)

// NewS3Store returns a new S3Store for bucket.
func NewS3Store(bucket string, options ...S3StoreOption) (*S3Store, error) {
	s := &S3Store{
		bucket: bucket,
		region: DefaultRegion,
	}
	for _, option := range options {
		option(s)
	}

	config := &aws.Config{
		Region:      aws.String(s.region),
		Credentials: credentials.AnonymousCredentials,
	}
	if s.endpoint != "" {
		config.Endpoint = aws.String(s.endpoint)
		config.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(config)
	if err != nil {
		return nil, errors.Wrap(err, "new aws session")
	}
	s.s3 = s3.New(sess)
	return s, nil
}

func WithRegion(region string) S3StoreOption {
	return func(s *S3Store) {
		s.region = region
	}
}

// WithEndpoint sets a custom S3-compatible endpoint. Path-style addressing
// is used.
func WithEndpoint(endpoint string) S3StoreOption {
	return func(s *S3Store) {
		s.endpoint = endpoint
	}
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.s3.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, object := range page.Contents {
			keys = append(keys, aws.StringValue(object.Key))
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list s3://%s/%s", s.bucket, prefix)
	}
	return keys, nil
}

func (s *S3Store) Fetch(ctx context.Context, key string, w io.Writer) error {
	out, err := s.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return errors.Wrapf(err, "get s3://%s/%s", s.bucket, key)
	}
	defer out.Body.Close()
	if _, err := io.Copy(w, out.Body); err != nil {
		return errors.Wrapf(err, "read s3://%s/%s", s.bucket, key)
	}
	return nil
}
