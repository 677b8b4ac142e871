// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

// Package s3 implements a blob store over any S3-compatible object store.
package s3

import (
	"bytes"
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"kbase.us/workspace/blobstore"
)

const sortedMetaKey = "sorted"

// Config holds the connection parameters for an S3-compatible backend.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Secure    bool
}

// Store is a blobstore.Store backed by an S3 bucket. Blobs are stored under
// their checksum as the object key.
type Store struct {
	client *minio.Client
	bucket string
}

// New connects to the backend and ensures the bucket exists.
func New(ctx context.Context, config Config) (*Store, error) {
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.Secure,
		Region: config.Region,
	})
	if err != nil {
		return nil, blobstore.ErrCommunication.Wrap(err)
	}
	s := &Store{client: client, bucket: config.Bucket}
	exists, err := client.BucketExists(ctx, config.Bucket)
	if err != nil {
		return nil, s.translate(err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, config.Bucket, minio.MakeBucketOptions{Region: config.Region}); err != nil {
			return nil, s.translate(err)
		}
	}
	return s, nil
}

func (s *Store) translate(err error) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return blobstore.ErrAuthorization.Wrap(err)
	}
	return blobstore.ErrCommunication.Wrap(err)
}

// PutBlob implements blobstore.Store.
func (s *Store) PutBlob(ctx context.Context, checksum string, data []byte, sorted bool) error {
	stat, err := s.client.StatObject(ctx, s.bucket, checksum, minio.StatObjectOptions{})
	if err == nil {
		if stat.UserMetadata[sortedMetaKey] == "true" || !sorted {
			return nil
		}
	} else if minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return s.translate(err)
	}
	sortedValue := "false"
	if sorted {
		sortedValue = "true"
	}
	_, err = s.client.PutObject(ctx, s.bucket, checksum,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{UserMetadata: map[string]string{sortedMetaKey: sortedValue}})
	if err != nil {
		return s.translate(err)
	}
	return nil
}

// GetBlob implements blobstore.Store.
func (s *Store) GetBlob(ctx context.Context, checksum string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, checksum, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.translate(err)
	}
	defer func() { _ = obj.Close() }()
	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, blobstore.ErrNoSuchBlob.New("no blob stored with checksum %s", checksum)
		}
		return nil, s.translate(err)
	}
	return data, nil
}

// RemoveBlob implements blobstore.Store.
func (s *Store) RemoveBlob(ctx context.Context, checksum string) error {
	err := s.client.RemoveObject(ctx, s.bucket, checksum, minio.RemoveObjectOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return s.translate(err)
	}
	return nil
}

// Status implements blobstore.Store.
func (s *Store) Status(ctx context.Context) (blobstore.Status, error) {
	_, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return blobstore.Status{Backend: "s3", Info: err.Error()}, s.translate(err)
	}
	return blobstore.Status{Backend: "s3", OK: true}, nil
}
