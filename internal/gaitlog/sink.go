package gaitlog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrStorageUnavailable is returned when the export destination cannot be written.
var ErrStorageUnavailable = errors.New("storage unavailable")

// CSVContentType is the MIME type of exported files.
const CSVContentType = "text/csv"

// Sink stores an exported file.
type Sink interface {
	// Check verifies the destination is writable before anything is encoded.
	Check(ctx context.Context) error
	// Save stores data under name and returns where it ended up.
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// DirSink saves exports into a local directory.
type DirSink struct {
	Dir string
}

// DefaultExportDir returns ~/Downloads, falling back to the working directory.
func DefaultExportDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Downloads")
}

// Check creates the directory if needed and checks that it accepts files.
func (s DirSink) Check(ctx context.Context) error {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	tmp, err := os.CreateTemp(s.Dir, ".gaitpose-tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %s is not writable: %v", ErrStorageUnavailable, s.Dir, err)
	}
	name := tmp.Name()
	tmp.Close()
	os.Remove(name)

	return nil
}

// Save writes data to Dir/name.
func (s DirSink) Save(ctx context.Context, name string, data []byte) (string, error) {
	path := filepath.Join(s.Dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// ObjectConfig holds the settings of an S3-compatible bucket.
type ObjectConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Secure    bool
}

// ObjectSink saves exports to an S3-compatible object store.
type ObjectSink struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewObjectSink connects to the object store described by cfg.
func NewObjectSink(cfg ObjectConfig) (*ObjectSink, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("object sink requires endpoint and bucket")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create object client: %w", err)
	}

	return &ObjectSink{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Check verifies the bucket exists.
func (s *ObjectSink) Check(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if !ok {
		return fmt.Errorf("%w: bucket %q does not exist", ErrStorageUnavailable, s.bucket)
	}
	return nil
}

// Save uploads data as prefix/name.
func (s *ObjectSink) Save(ctx context.Context, name string, data []byte) (string, error) {
	objectName := name
	if s.prefix != "" {
		objectName = s.prefix + "/" + name
	}

	info, err := s.client.PutObject(ctx, s.bucket, objectName, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: CSVContentType})
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("s3://%s/%s", info.Bucket, info.Key), nil
}
