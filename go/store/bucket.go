package store

import (
	"bytes"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// Bucket wraps one S3 bucket with the URL prefix served to readers.
type Bucket struct {
	client    *s3.S3
	name      string
	urlPrefix string
}

// NewBucket connects to a path-style S3 endpoint (MinIO). urlPrefix is the
// externally reachable base, e.g. "http://192.168.1.26:9000".
func NewBucket(endpoint, accessKey, secretKey, name, urlPrefix string) (*Bucket, error) {
	sess, err := session.NewSession(&aws.Config{
		Endpoint:         aws.String(endpoint),
		Region:           aws.String("minio"),
		Credentials:      credentials.NewStaticCredentials(accessKey, secretKey, ""),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("creating s3 session for %s: %w", name, err)
	}
	return &Bucket{
		client:    s3.New(sess),
		name:      name,
		urlPrefix: urlPrefix,
	}, nil
}

// Put stores content at path and returns the public URL.
func (b *Bucket) Put(path, contentType string, content []byte) (string, error) {
	_, err := b.client.PutObject(&s3.PutObjectInput{
		Bucket:      aws.String(b.name),
		Key:         aws.String(path),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("putting %s%s: %w", b.name, path, err)
	}
	return b.URL(path), nil
}

// URL returns the public URL for a stored path.
func (b *Bucket) URL(path string) string {
	return fmt.Sprintf("%s/%s%s", b.urlPrefix, b.name, path)
}
