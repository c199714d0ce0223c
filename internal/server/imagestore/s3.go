// Package imagestore archives raw enrollment images in S3-compatible object
// storage. Archiving is best-effort: enrollment never fails because the
// archive is unreachable.
package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Archive stores an image and returns the storage key it was filed under.
type Archive interface {
	Save(ctx context.Context, image []byte) (string, error)
}

// S3Options carries the connection settings for an S3-compatible backend
// such as MinIO.
type S3Options struct {
	RootUser     string
	RootPassword string
	Bucket       string
	Region       string
	BaseEndpoint string
}

// S3Archive implements Archive over the AWS SDK.
type S3Archive struct {
	opts S3Options
}

func NewS3Archive(opts S3Options) *S3Archive {
	return &S3Archive{opts: opts}
}

// seams for testing the SDK calls
var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(client *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return client.PutObject(ctx, in)
	}
)

// storageKey partitions archived images by enrollment date.
func storageKey() string {
	d := time.Now()
	return fmt.Sprintf("fingerprints/%d/%d/%d/%v", d.Year(), int(d.Month()), d.Day(), uuid.New())
}

func (a *S3Archive) getClient(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(a.opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			a.opts.RootUser,
			a.opts.RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(a.opts.BaseEndpoint)
		o.UsePathStyle = true
	}), nil
}

// Save uploads the image and returns its storage key.
func (a *S3Archive) Save(ctx context.Context, image []byte) (string, error) {
	client, err := a.getClient(ctx)
	if err != nil {
		return "", err
	}

	bucket := a.opts.Bucket
	key := storageKey()

	if _, err := putObject(client, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
		Body:   bytes.NewReader(image),
	}); err != nil {
		return "", err
	}

	return key, nil
}
