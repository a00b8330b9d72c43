// Package storage stores receipt evidence in S3-compatible object storage.
// Evidence is uploaded before a claim is submitted; the claim carries only
// the opaque references returned here.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type presigner interface {
	PresignGetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Config holds S3-compatible storage configuration.
type Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

const (
	maxEvidenceBytes = 10 << 20
	resolveTTL       = 15 * time.Minute
)

// Service uploads evidence objects and resolves references to short-lived
// URLs clients can fetch directly.
type Service struct {
	bucket    string
	client    s3Client
	presigner presigner
}

// New returns a Service, or nil when the bucket or credentials are not
// configured. Callers treat a nil Service as "evidence storage disabled".
func New(cfg Config) *Service {
	if cfg.Bucket == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil
	}

	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	client := s3.New(opts)

	return &Service{
		bucket:    cfg.Bucket,
		client:    client,
		presigner: s3.NewPresignClient(client),
	}
}

// Upload stores one evidence object and returns its opaque reference.
// The reference is scoped so cross-scope resolution can be rejected.
func (s *Service) Upload(ctx context.Context, scopeID int64, body io.Reader, size int64, contentType string) (string, error) {
	if size <= 0 || size > maxEvidenceBytes {
		return "", fmt.Errorf("evidence size %d out of range (max %d)", size, maxEvidenceBytes)
	}

	ref := fmt.Sprintf("evidence/%d/%s", scopeID, uuid.NewString())
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(ref),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload evidence: %w", err)
	}
	return ref, nil
}

// OwnedByScope reports whether the reference was uploaded by the given
// scope.
func OwnedByScope(ref string, scopeID int64) bool {
	return strings.HasPrefix(ref, fmt.Sprintf("evidence/%d/", scopeID))
}

// Resolve turns a stored reference into a short-lived presigned URL.
func (s *Service) Resolve(ctx context.Context, ref string) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	}, func(o *s3.PresignOptions) {
		o.Expires = resolveTTL
	})
	if err != nil {
		return "", fmt.Errorf("resolve evidence %s: %w", ref, err)
	}
	return req.URL, nil
}

// Delete removes one evidence object. Called when a duty is deleted.
func (s *Service) Delete(ctx context.Context, ref string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return fmt.Errorf("delete evidence %s: %w", ref, err)
	}
	return nil
}
