// Copyright (C) 2023 KBase.
// See LICENSE for copying information.

// Package gridfs implements a blob store over MongoDB GridFS, so small
// deployments can run on the document store alone.
package gridfs

import (
	"bytes"
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"kbase.us/workspace/blobstore"
)

const bucketName = "blobs"

// Store is a blobstore.Store backed by a GridFS bucket. Blobs are stored as
// files named by their checksum.
type Store struct {
	bucket *gridfs.Bucket
}

// New creates a Store over a bucket in the given database.
func New(db *mongo.Database) (*Store, error) {
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(bucketName))
	if err != nil {
		return nil, blobstore.ErrCommunication.Wrap(err)
	}
	return &Store{bucket: bucket}, nil
}

type fileRecord struct {
	ID       primitive.ObjectID `bson:"_id"`
	Metadata struct {
		Sorted bool `bson:"sorted"`
	} `bson:"metadata"`
}

// applyDeadline propagates a context deadline to the bucket. The gridfs API
// predates context plumbing and takes deadlines instead.
func (s *Store) applyDeadline(ctx context.Context) error {
	deadline, _ := ctx.Deadline()
	if err := s.bucket.SetReadDeadline(deadline); err != nil {
		return blobstore.ErrCommunication.Wrap(err)
	}
	if err := s.bucket.SetWriteDeadline(deadline); err != nil {
		return blobstore.ErrCommunication.Wrap(err)
	}
	return nil
}

func (s *Store) findFile(ctx context.Context, checksum string) (rec fileRecord, found bool, err error) {
	cursor, err := s.bucket.Find(
		bson.M{"filename": checksum},
		options.GridFSFind().SetLimit(1))
	if err != nil {
		return fileRecord{}, false, blobstore.ErrCommunication.Wrap(err)
	}
	defer func() { _ = cursor.Close(ctx) }()
	if !cursor.Next(ctx) {
		if err := cursor.Err(); err != nil {
			return fileRecord{}, false, blobstore.ErrCommunication.Wrap(err)
		}
		return fileRecord{}, false, nil
	}
	if err := cursor.Decode(&rec); err != nil {
		return fileRecord{}, false, blobstore.ErrCommunication.Wrap(err)
	}
	return rec, true, nil
}

// PutBlob implements blobstore.Store.
func (s *Store) PutBlob(ctx context.Context, checksum string, data []byte, sorted bool) error {
	if err := s.applyDeadline(ctx); err != nil {
		return err
	}
	existing, found, err := s.findFile(ctx, checksum)
	if err != nil {
		return err
	}
	if found {
		if existing.Metadata.Sorted || !sorted {
			return nil
		}
		if err := s.bucket.Delete(existing.ID); err != nil {
			return blobstore.ErrCommunication.Wrap(err)
		}
	}
	_, err = s.bucket.UploadFromStream(checksum, bytes.NewReader(data),
		options.GridFSUpload().SetMetadata(bson.M{"sorted": sorted}))
	if err != nil {
		return blobstore.ErrCommunication.Wrap(err)
	}
	return nil
}

// GetBlob implements blobstore.Store.
func (s *Store) GetBlob(ctx context.Context, checksum string) ([]byte, error) {
	if err := s.applyDeadline(ctx); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := s.bucket.DownloadToStreamByName(checksum, &buf); err != nil {
		if err == gridfs.ErrFileNotFound {
			return nil, blobstore.ErrNoSuchBlob.New("no blob stored with checksum %s", checksum)
		}
		return nil, blobstore.ErrCommunication.Wrap(err)
	}
	return buf.Bytes(), nil
}

// RemoveBlob implements blobstore.Store.
func (s *Store) RemoveBlob(ctx context.Context, checksum string) error {
	if err := s.applyDeadline(ctx); err != nil {
		return err
	}
	rec, found, err := s.findFile(ctx, checksum)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if err := s.bucket.Delete(rec.ID); err != nil {
		return blobstore.ErrCommunication.Wrap(err)
	}
	return nil
}

// Status implements blobstore.Store.
func (s *Store) Status(ctx context.Context) (blobstore.Status, error) {
	err := s.bucket.GetFilesCollection().Database().Client().Ping(ctx, nil)
	if err != nil {
		return blobstore.Status{Backend: "gridfs", Info: err.Error()},
			blobstore.ErrCommunication.Wrap(err)
	}
	return blobstore.Status{Backend: "gridfs", OK: true}, nil
}
