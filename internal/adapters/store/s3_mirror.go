package store

import (
	"bytes"
	"context"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3ClientAPI - подмножество клиента S3, которое нам нужно.
type S3ClientAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror копирует файлы сессий в бакет.
type S3Mirror struct {
	Client S3ClientAPI
	Bucket string
	Prefix string
}

func NewS3Mirror(ctx context.Context, bucket, region, prefix string) (*S3Mirror, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return &S3Mirror{
		Client: s3.NewFromConfig(cfg),
		Bucket: bucket,
		Prefix: prefix,
	}, nil
}

func (m *S3Mirror) Key(filename string) string {
	if m.Prefix == "" {
		return filename
	}
	return path.Join(m.Prefix, filename)
}

func (m *S3Mirror) Put(ctx context.Context, filename string, content []byte) error {
	_, err := m.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.Bucket),
		Key:         aws.String(m.Key(filename)),
		Body:        bytes.NewReader(content),
		ContentType: aws.String("text/plain"),
	})
	return err
}
