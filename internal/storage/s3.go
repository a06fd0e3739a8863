// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package storage provides an S3-compatible object storage client for
// novel covers and manuscripts. It wraps the AWS SDK v2 and is configured
// for path-style access (required by CEPH/Hetzner). Covers go to the public
// bucket and are served directly; manuscripts go to the private bucket and
// are only reachable through pre-signed URLs.
package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// maxPresignTTL is the S3 limit for pre-signed URL lifetime.
const maxPresignTTL = 7 * 24 * time.Hour

// Client wraps an S3 client for object operations on two buckets.
type Client struct {
	s3            *s3.Client
	presigner     *s3.PresignClient
	publicBucket  string
	privateBucket string
	endpoint      string
	publicURL     string // optional CDN/direct URL for public files
}

// New creates an S3 storage client configured for CEPH/Hetzner with
// path-style addressing. Returns (nil, nil) if endpoint or credentials
// are empty, allowing the app to start without storage.
func New(endpoint, region, accessKey, secretKey, publicBucket, privateBucket, publicURL string) (*Client, error) {
	if endpoint == "" || accessKey == "" || secretKey == "" {
		return nil, nil
	}
	if publicBucket == "" || privateBucket == "" {
		return nil, fmt.Errorf("storage: both buckets must be configured")
	}

	endpoint = strings.TrimRight(endpoint, "/")

	s3Client := s3.New(s3.Options{
		Region:       region,
		BaseEndpoint: aws.String(endpoint),
		Credentials:  credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		UsePathStyle: true,
	})

	return &Client{
		s3:            s3Client,
		presigner:     s3.NewPresignClient(s3Client),
		publicBucket:  publicBucket,
		privateBucket: privateBucket,
		endpoint:      endpoint,
		publicURL:     strings.TrimRight(publicURL, "/"),
	}, nil
}

func (c *Client) bucket(private bool) string {
	if private {
		return c.privateBucket
	}
	return c.publicBucket
}

// Put stores an object and returns its URL once S3 has acknowledged the
// write. Public objects get a public-read ACL and a directly servable URL.
// Private objects get a path-style URL that only works when pre-signed.
func (c *Client) Put(ctx context.Context, key string, private bool, contentType string, body io.Reader, size int64) (string, error) {
	bucket := c.bucket(private)
	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	}
	if !private {
		input.ACL = s3types.ObjectCannedACLPublicRead
	}

	if _, err := c.s3.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("s3 upload %s/%s: %w", bucket, key, err)
	}
	return c.ObjectURL(key, private), nil
}

// Remove deletes a single object.
func (c *Client) Remove(ctx context.Context, key string, private bool) error {
	bucket := c.bucket(private)
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

// RemovePrefix deletes every object whose key starts with prefix and
// returns how many were removed.
func (c *Client) RemovePrefix(ctx context.Context, prefix string, private bool) (int, error) {
	bucket := c.bucket(private)
	pages := s3.NewListObjectsV2Paginator(c.s3, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	var removed int
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return removed, fmt.Errorf("s3 list %s/%s: %w", bucket, prefix, err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		ids := make([]s3types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			ids = append(ids, s3types.ObjectIdentifier{Key: obj.Key})
		}
		_, err = c.s3.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &s3types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return removed, fmt.Errorf("s3 delete %s/%s*: %w", bucket, prefix, err)
		}
		removed += len(ids)
	}
	return removed, nil
}

// ObjectURL returns the URL recorded for an object. Public objects use the
// configured public URL when set.
func (c *Client) ObjectURL(key string, private bool) string {
	if !private && c.publicURL != "" {
		return c.publicURL + "/" + key
	}
	return c.endpoint + "/" + c.bucket(private) + "/" + key
}

// SignedURL generates a pre-signed GET URL for an object. The lifetime is
// capped at the S3 maximum of seven days. A non-empty downloadName makes
// browsers save the object under that name.
func (c *Client) SignedURL(ctx context.Context, key string, private bool, ttl time.Duration, downloadName string) (string, error) {
	if ttl <= 0 || ttl > maxPresignTTL {
		ttl = maxPresignTTL
	}
	bucket := c.bucket(private)
	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if downloadName != "" {
		input.ResponseContentDisposition = aws.String(mime.FormatMediaType("attachment", map[string]string{"filename": downloadName}))
	}
	req, err := c.presigner.PresignGetObject(ctx, input, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("s3 presign %s/%s: %w", bucket, key, err)
	}
	return req.URL, nil
}
