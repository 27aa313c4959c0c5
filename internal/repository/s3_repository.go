package repository

import (
	"context"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	s3config "github.com/abirakhuli/Diabetic-Retinopathy-Detection-System/internal/config"
)

// ObjectStore archives uploaded fundus images.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, string, error)
}

type s3Store struct {
	client *s3.Client
	cfg    *s3config.S3Config
	log    *zap.Logger
}

func NewS3Store(cfg *s3config.S3Config, log *zap.Logger) (ObjectStore, error) {
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	endpoint := scheme + "://" + cfg.Endpoint

	customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if cfg.Endpoint != "" {
			return aws.Endpoint{
				URL:               endpoint,
				HostnameImmutable: true,
				Source:            aws.EndpointSourceCustom,
			}, nil
		}
		return aws.Endpoint{}, &aws.EndpointNotFoundError{}
	})

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithEndpointResolverWithOptions(customResolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	store := &s3Store{
		client: client,
		cfg:    cfg,
		log:    log,
	}

	if err := store.ensureBucketExists(context.Background()); err != nil {
		log.Warn("Failed to ensure bucket exists", zap.Error(err))
	}

	return store, nil
}

func (r *s3Store) ensureBucketExists(ctx context.Context) error {
	_, err := r.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(r.cfg.BucketName),
	})

	if err == nil {
		r.log.Info("Bucket already exists", zap.String("bucket", r.cfg.BucketName))
		return nil
	}

	r.log.Info("Creating bucket", zap.String("bucket", r.cfg.BucketName))

	_, err = r.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(r.cfg.BucketName),
		CreateBucketConfiguration: &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(r.cfg.Region),
		},
	})

	if err != nil {
		return err
	}

	r.log.Info("Bucket created successfully", zap.String("bucket", r.cfg.BucketName))

	// Give the backend a moment before first use
	time.Sleep(1 * time.Second)

	return nil
}

func (r *s3Store) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.cfg.BucketName),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	})

	if err != nil {
		r.log.Error("Failed to upload image to S3",
			zap.String("key", key),
			zap.Error(err))
		return err
	}

	r.log.Info("Image uploaded to S3",
		zap.String("key", key),
		zap.Int64("size", size))

	return nil
}

func (r *s3Store) Download(ctx context.Context, key string) (io.ReadCloser, string, error) {
	output, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.cfg.BucketName),
		Key:    aws.String(key),
	})

	if err != nil {
		r.log.Error("Failed to download image from S3",
			zap.String("key", key),
			zap.Error(err))
		return nil, "", err
	}

	return output.Body, aws.ToString(output.ContentType), nil
}
