// Package objectstore archives snapshot payloads in an S3-compatible bucket. The
// archive is a second source for snapshot trees when a git lookup fails.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path"

	"github.com/cockroachdb/errors"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"manuscripts/api/internal/manuscript"
)

const contentType = "application/json"

var ErrNotFound = errors.New("archived snapshot not found")

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type Archive struct {
	client *minio.Client
	bucket string
}

// NewArchive connects to the object store and creates the bucket when it is missing.
func NewArchive(ctx context.Context, opts Options) (*Archive, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create minio client")
	}
	a := &Archive{client: client, bucket: opts.Bucket}
	if err := a.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Archive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return errors.Wrapf(err, "check bucket %s", a.bucket)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return errors.Wrapf(err, "create bucket %s", a.bucket)
	}
	return nil
}

// ObjectKey is the object name of a snapshot: "<document>/<snapshot>.json".
func ObjectKey(documentID, snapshotID string) string {
	return path.Join(documentID, snapshotID+".json")
}

// PutSnapshot uploads snap and returns its object key.
func (a *Archive) PutSnapshot(ctx context.Context, documentID string, snap manuscript.Snapshot) (string, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return "", errors.Wrap(err, "marshal snapshot")
	}
	key := ObjectKey(documentID, snap.ID)
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: contentType,
		UserTags:    map[string]string{"documentId": documentID},
	})
	if err != nil {
		return "", errors.Wrapf(err, "put %s", key)
	}
	return key, nil
}

func (a *Archive) GetSnapshot(ctx context.Context, documentID, snapshotID string) (manuscript.Snapshot, error) {
	key := ObjectKey(documentID, snapshotID)
	obj, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return manuscript.Snapshot{}, classify(err, key)
	}
	defer obj.Close()

	raw, err := io.ReadAll(obj)
	if err != nil {
		return manuscript.Snapshot{}, classify(err, key)
	}
	var snap manuscript.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return manuscript.Snapshot{}, errors.Wrapf(err, "decode %s", key)
	}
	return snap, nil
}

func (a *Archive) Ping(ctx context.Context) error {
	if _, err := a.client.BucketExists(ctx, a.bucket); err != nil {
		return errors.Wrap(err, "ping object store")
	}
	return nil
}

func classify(err error, key string) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return errors.Mark(errors.Wrapf(err, "get %s", key), ErrNotFound)
	}
	return errors.Wrapf(err, "get %s", key)
}
