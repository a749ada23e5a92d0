// Package archive writes raw provider payloads to S3 for audit. Archival
// is best-effort: the ingest path never fails because the archive did.
package archive

import (
	"bytes"
	"context"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Archiver stores payloads under date-partitioned keys in one bucket.
type S3Archiver struct {
	client *s3.Client
	bucket string
}

func NewS3Archiver(client *s3.Client, bucket string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket}
}

// Archive writes one payload. Failures are logged and swallowed.
func (a *S3Archiver) Archive(ctx context.Context, key string, payload []byte) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		log.Printf("[Archive] putting %s to S3: %v", key, err)
	}
}
