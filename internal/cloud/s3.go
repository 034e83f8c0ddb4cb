package cloud

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// EnsureBucket creates the target bucket if it does not exist.
func (c *Client) EnsureBucket(ctx context.Context, bucket string) error {
	_, err := c.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err == nil {
		return nil
	}
	if !IsNotFound(err) {
		return fmt.Errorf("checking bucket %s: %w", bucket, err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	// us-east-1 rejects an explicit location constraint
	if c.cfg.Region != "" && c.cfg.Region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(c.cfg.Region),
		}
	}

	_, err = c.s3Client.CreateBucket(ctx, input)
	if err != nil && !IsAlreadyExists(err) {
		return fmt.Errorf("creating bucket %s: %w", bucket, err)
	}
	return nil
}

// EnsureFolder writes the zero-byte folder marker the replication target
// writes under.
func (c *Client) EnsureFolder(ctx context.Context, bucket, folder string) error {
	key := strings.TrimSuffix(folder, "/") + "/"
	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   strings.NewReader(""),
	})
	if err != nil {
		return fmt.Errorf("creating folder marker s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// ListDataObjects lists non-empty objects under a prefix, skipping the
// folder marker itself.
func (c *Client) ListDataObjects(ctx context.Context, bucket, prefix string) ([]Object, error) {
	var objects []Object

	paginator := s3.NewListObjectsV2Paginator(c.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing objects under s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			size := aws.ToInt64(obj.Size)
			if size == 0 && strings.HasSuffix(key, "/") {
				continue
			}
			objects = append(objects, Object{Key: key, Size: size})
		}
	}
	return objects, nil
}

// GetObject streams one object.
func (c *Client) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting s3://%s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

// EmptyBucket removes every object version and delete marker so the bucket
// can be deleted even when versioning was ever enabled. Returns the number
// of entries removed.
func (c *Client) EmptyBucket(ctx context.Context, bucket string) (int, error) {
	deleted := 0

	paginator := s3.NewListObjectVersionsPaginator(c.s3Client, &s3.ListObjectVersionsInput{
		Bucket: aws.String(bucket),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return deleted, fmt.Errorf("listing versions in %s: %w", bucket, err)
		}

		var identifiers []s3types.ObjectIdentifier
		for _, v := range page.Versions {
			identifiers = append(identifiers, s3types.ObjectIdentifier{
				Key:       v.Key,
				VersionId: v.VersionId,
			})
		}
		for _, m := range page.DeleteMarkers {
			identifiers = append(identifiers, s3types.ObjectIdentifier{
				Key:       m.Key,
				VersionId: m.VersionId,
			})
		}
		if len(identifiers) == 0 {
			continue
		}

		_, err = c.s3Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &s3types.Delete{Objects: identifiers},
		})
		if err != nil {
			return deleted, fmt.Errorf("deleting objects in %s: %w", bucket, err)
		}
		deleted += len(identifiers)
	}

	return deleted, nil
}

// DeleteBucket deletes an empty bucket.
func (c *Client) DeleteBucket(ctx context.Context, bucket string) error {
	_, err := c.s3Client.DeleteBucket(ctx, &s3.DeleteBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		return fmt.Errorf("deleting bucket %s: %w", bucket, err)
	}
	return nil
}
