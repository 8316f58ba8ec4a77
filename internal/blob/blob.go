// Package blob stores expense receipts in S3-compatible object storage
// (MinIO in development). The sync engine never moves receipt bytes itself:
// documents carry only the storage key, and clients up/download through
// short-lived presigned URLs.
package blob

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/mkorchagin/finsync/internal/netx"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
	deleteObject = func(c *s3.Client, ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
		return c.DeleteObject(ctx, in, optFns...)
	}
)

const presignExpiry = 15 * time.Minute

// ReceiptStore holds the connection settings; clients are built per call.
type ReceiptStore struct {
	bucket       string
	region       string
	baseEndpoint string
	accessKey    string
	secretKey    string
}

func NewReceiptStore(bucket, region, baseEndpoint, accessKey, secretKey string) *ReceiptStore {
	return &ReceiptStore{
		bucket:       bucket,
		region:       region,
		baseEndpoint: baseEndpoint,
		accessKey:    accessKey,
		secretKey:    secretKey,
	}
}

// ReceiptKey derives the storage key from the entity identity, so cleanup
// needs nothing but the tombstone.
func ReceiptKey(ownerUserID, expenseID string) string {
	return fmt.Sprintf("receipts/%s/%s", ownerUserID, expenseID)
}

func (s *ReceiptStore) newClient(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.accessKey,
			s.secretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.baseEndpoint)
	}), nil
}

// PresignedPutURL returns a short-lived URL for uploading a receipt.
func (s *ReceiptStore) PresignedPutURL(ctx context.Context, key string) (string, error) {
	client, err := s.newClient(ctx)
	if err != nil {
		return "", err
	}

	req, err := presignPutObject(newS3PresignClient(client), ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}

// PresignedGetURL returns a short-lived URL for downloading a receipt.
func (s *ReceiptStore) PresignedGetURL(ctx context.Context, key string) (string, error) {
	client, err := s.newClient(ctx)
	if err != nil {
		return "", err
	}

	req, err := presignGetObject(newS3PresignClient(client), ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}

// Upload pushes receipt bytes through a presigned PUT URL.
func (s *ReceiptStore) Upload(ctx context.Context, key string, data []byte) error {
	url, err := s.PresignedPutURL(ctx, key)
	if err != nil {
		return err
	}
	return netx.UploadToPresignedURL(ctx, url, data)
}

// Download fetches receipt bytes through a presigned GET URL.
func (s *ReceiptStore) Download(ctx context.Context, key string) ([]byte, error) {
	url, err := s.PresignedGetURL(ctx, key)
	if err != nil {
		return nil, err
	}
	return netx.DownloadFromPresignedURL(ctx, url)
}

// Delete removes a receipt object. Called from the tombstone purge hook.
func (s *ReceiptStore) Delete(ctx context.Context, key string) error {
	client, err := s.newClient(ctx)
	if err != nil {
		return err
	}

	_, err = deleteObject(client, ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	return err
}
