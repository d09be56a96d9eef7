package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewS3HookRequiresBucket(t *testing.T) {
	_, err := NewS3Hook(context.Background(), S3Hook{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")
}

func TestNewS3HookBuildsClient(t *testing.T) {
	h, err := NewS3Hook(context.Background(), S3Hook{
		Bucket:    "vtape-test",
		Region:    "us-east-1",
		Endpoint:  "http://127.0.0.1:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	})
	require.NoError(t, err)
	require.NotNil(t, h.client)
}

func TestObjectKeyDefaultsToBaseName(t *testing.T) {
	h := &S3Hook{Bucket: "b"}
	assert.Equal(t, "stream.mkv", h.ObjectKey("/data/out/stream.mkv"))

	h.Key = "custom/key.mkv"
	assert.Equal(t, "custom/key.mkv", h.ObjectKey("/data/out/stream.mkv"))
}
