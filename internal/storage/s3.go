// Package storage provides the built-in network transport hook: the
// encoded container is uploaded to an S3-compatible bucket and decoded
// from a freshly downloaded copy, so a roundtrip proves the storage tier
// preserved the stream.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
)

// S3Hook implements pipeline.Hook against any S3-compatible endpoint.
type S3Hook struct {
	Bucket    string
	Key       string // defaults to the container's base name
	Region    string
	Endpoint  string // non-empty for non-AWS providers
	AccessKey string
	SecretKey string
	Logger    *logrus.Logger

	client *s3.Client
}

// NewS3Hook builds the client. Static credentials are used when provided;
// otherwise the default AWS credential chain applies.
func NewS3Hook(ctx context.Context, hook S3Hook) (*S3Hook, error) {
	if hook.Bucket == "" {
		return nil, fmt.Errorf("s3 hook requires a bucket")
	}
	if hook.Logger == nil {
		hook.Logger = logrus.New()
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(hook.Region),
	}
	if hook.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(hook.AccessKey, hook.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if hook.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(hook.Endpoint)
			o.UsePathStyle = true
		})
	}
	hook.client = s3.NewFromConfig(awsCfg, s3Opts...)
	return &hook, nil
}

// ObjectKey returns the key the container will be stored under.
func (h *S3Hook) ObjectKey(path string) string {
	if h.Key != "" {
		return h.Key
	}
	return filepath.Base(path)
}

// AfterEncode uploads the container, downloads it again next to the
// original as path + ".fetched" and returns that path.
func (h *S3Hook) AfterEncode(ctx context.Context, path string) (string, error) {
	key := h.ObjectKey(path)
	log := h.Logger.WithFields(logrus.Fields{"bucket": h.Bucket, "key": key})

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := h.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(h.Bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		return "", fmt.Errorf("failed to upload container: %w", err)
	}
	log.Info("container uploaded")

	out, err := h.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(h.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to download container: %w", err)
	}
	defer out.Body.Close()

	fetched := path + ".fetched"
	dst, err := os.Create(fetched)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", fetched, err)
	}
	n, err := io.Copy(dst, out.Body)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(fetched)
		return "", fmt.Errorf("failed to write %s: %w", fetched, err)
	}
	log.WithField("bytes", n).Info("container fetched")
	return fetched, nil
}
