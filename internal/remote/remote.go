// Package remote is the optional object-store source/sink for the
// processing and restoration engines: "process"/"restore" accept an
// "s3://bucket/key" path for input or output, downloading/uploading
// around the always-local-file engine run.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/kenneth/adapipe/internal/pipelineerr"
)

// Client is the remote object-store collaborator interface.
type Client interface {
	Download(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Upload(ctx context.Context, bucket, key string, body io.Reader) error
}

// Config is the S3-compatible endpoint configuration a container
// source/sink needs.
type Config struct {
	Endpoint       string
	Region         string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

type client struct {
	s3 *s3.Client
}

// NewClient builds an S3-compatible client.
func NewClient(ctx context.Context, cfg Config) (Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.InvalidConfiguration, "remote", fmt.Errorf("load aws config: %w", err))
	}

	opts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.ForcePathStyle
		})
	}
	return &client{s3: s3.NewFromConfig(awsCfg, opts...)}, nil
}

func (c *client) Download(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "NoSuchKey", "NoSuchBucket", "NotFound":
				return nil, pipelineerr.New(pipelineerr.ValidationError, "remote", fmt.Errorf("s3://%s/%s: %s", bucket, key, apiErr.ErrorCode()))
			}
		}
		return nil, pipelineerr.New(pipelineerr.IoError, "remote", fmt.Errorf("download s3://%s/%s: %w", bucket, key, err))
	}
	return out.Body, nil
}

func (c *client) Upload(ctx context.Context, bucket, key string, body io.Reader) error {
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{Bucket: aws.String(bucket), Key: aws.String(key), Body: body})
	if err != nil {
		return pipelineerr.New(pipelineerr.IoError, "remote", fmt.Errorf("upload s3://%s/%s: %w", bucket, key, err))
	}
	return nil
}

// ParseURL splits an "s3://bucket/key" path into its bucket and key.
func ParseURL(raw string) (bucket, key string, ok bool) {
	if !strings.HasPrefix(raw, "s3://") {
		return "", "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", false
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), true
}
