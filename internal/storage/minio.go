package storage

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/tenderhub/extraction-pipeline/internal/config"
	"github.com/tenderhub/extraction-pipeline/internal/fault"
)

type MinioStorage struct {
	client *minio.Client
	bucket string
}

// Make sure we conform to Storage interface
var _ Storage = (*MinioStorage)(nil)

func NewMinioStorage(cfg *config.Config) (*MinioStorage, error) {
	client, err := minio.New(cfg.Storage.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Storage.AccessKey, cfg.Storage.SecretAccessKey, ""),
		Secure: cfg.Storage.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating minio client")
	}

	return &MinioStorage{client: client, bucket: cfg.Storage.Bucket}, nil
}

// EnsureBucket creates the bucket if it does not exist yet. Called once at
// startup, not per operation.
func (s *MinioStorage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return errors.Wrap(err, "checking bucket")
	}
	if exists {
		return nil
	}
	return errors.Wrap(s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}), "creating bucket")
}

func (s *MinioStorage) Read(ctx context.Context, path string) ([]byte, error) {
	object, err := s.client.GetObject(ctx, s.bucket, s.key(path), minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "getting object")
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		if isNotFound(err) {
			return nil, fault.Errorf(fault.KindPermanent, "object not found: %s", path)
		}
		return nil, errors.Wrap(err, "reading object")
	}
	return data, nil
}

func (s *MinioStorage) Write(ctx context.Context, path string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(path), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	return errors.Wrap(err, "putting object")
}

func (s *MinioStorage) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, s.key(path), minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *MinioStorage) Size(ctx context.Context, path string) (int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, s.key(path), minio.StatObjectOptions{})
	if err != nil {
		return 0, errors.Wrap(err, "stat object")
	}
	return info.Size, nil
}

func (s *MinioStorage) List(ctx context.Context, prefix string) ([]string, error) {
	var paths []string
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.key(prefix),
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, object.Err
		}
		paths = append(paths, object.Key)
	}
	return paths, nil
}

func (s *MinioStorage) Delete(ctx context.Context, path string) error {
	return errors.Wrap(s.client.RemoveObject(ctx, s.bucket, s.key(path), minio.RemoveObjectOptions{}), "removing object")
}

func (s *MinioStorage) key(path string) string {
	return strings.TrimPrefix(path, "/")
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == 404
}
