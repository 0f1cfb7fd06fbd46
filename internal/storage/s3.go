package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store keeps objects in one bucket.  Endpoint, when set, points the client
// at an S3 compatible server such as MinIO and switches to path-style URLs.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	baseURL  string
}

func NewS3Store(ctx context.Context, region, bucket, endpoint, publicBaseURL string) (*S3Store, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	base := strings.TrimRight(publicBaseURL, "/")
	if base == "" {
		if endpoint != "" {
			base = strings.TrimRight(endpoint, "/") + "/" + bucket
		} else {
			base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
		}
	}
	return &S3Store{client: client, uploader: manager.NewUploader(client), bucket: bucket, baseURL: base}, nil
}

func (s *S3Store) Save(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(name),
		Body:        r,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", err
	}
	return s.baseURL + "/" + url.PathEscape(name), nil
}

// Remove deletes the object.  S3 reports success for missing keys, so
// ErrNotExist is never returned here.
func (s *S3Store) Remove(ctx context.Context, objectURL string) error {
	key, err := s.keyFor(objectURL)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}

func (s *S3Store) keyFor(objectURL string) (string, error) {
	escaped, ok := strings.CutPrefix(objectURL, s.baseURL+"/")
	if !ok || escaped == "" {
		return "", fmt.Errorf("storage: %q is not in bucket %s", objectURL, s.bucket)
	}
	return url.PathUnescape(escaped)
}
