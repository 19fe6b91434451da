package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Catalog reads backup artifacts from an S3 bucket prefix. Each artifact
// key has a sibling <key>.manifest.json.
type S3Catalog struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Catalog builds a catalog using the ambient AWS credential chain.
func NewS3Catalog(ctx context.Context, bucket, prefix, region string) (*S3Catalog, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &S3Catalog{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: strings.TrimSuffix(prefix, "/") + "/",
	}, nil
}

// NewS3CatalogWithClient wraps an existing client (used in tests).
func NewS3CatalogWithClient(client *s3.Client, bucket, prefix string) *S3Catalog {
	return &S3Catalog{
		client: client,
		bucket: bucket,
		prefix: strings.TrimSuffix(prefix, "/") + "/",
	}
}

func (c *S3Catalog) List(ctx context.Context) ([]Artifact, error) {
	var artifacts []Artifact
	var token *string

	for {
		resp, err := c.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(c.bucket),
			Prefix:            aws.String(c.prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list s3 backups: %w", err)
		}

		for _, obj := range resp.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, manifestSuffix) {
				continue
			}
			artifacts = append(artifacts, Artifact{
				ID:        strings.TrimPrefix(key, c.prefix),
				Timestamp: aws.ToTime(obj.LastModified),
				SizeBytes: aws.ToInt64(obj.Size),
			})
		}

		if !aws.ToBool(resp.IsTruncated) {
			break
		}
		token = resp.NextContinuationToken
	}

	return artifacts, nil
}

func (c *S3Catalog) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	resp, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.prefix + id),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3 artifact %s: %w", id, err)
	}
	return resp.Body, nil
}

func (c *S3Catalog) Manifest(ctx context.Context, id string) (Manifest, error) {
	resp, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.prefix + id + manifestSuffix),
	})
	if err != nil {
		return Manifest{}, fmt.Errorf("get s3 manifest for %s: %w", id, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var m Manifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("parse s3 manifest for %s: %w", id, err)
	}
	return m, nil
}
