// Package s3storage implements the remote store on an S3 compatible bucket.
// Folder ids are key prefixes: "" is the bucket root, "clips/2024/" a folder.
// Shareable links are presigned GET URLs.
package s3storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/framegrab/internal/config"
	"github.com/dharsanguruparan/framegrab/internal/model"
	"github.com/dharsanguruparan/framegrab/internal/retry"
)

// videoTypes covers the containers mime.TypeByExtension does not know on
// every platform.
var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".webm": "video/webm",
}

// Storage wraps MinIO/S3 interactions for one bucket.
type Storage struct {
	client  *minio.Client
	bucket  string
	region  string
	linkTTL time.Duration
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{
		client:  client,
		bucket:  cfg.S3Bucket,
		region:  cfg.S3Region,
		linkTTL: cfg.S3LinkTTL,
	}, nil
}

// EnsureBucket makes sure the bucket exists before use.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// ListChildren lists the objects and common prefixes directly under folderID.
// MinIO pages internally, so the whole folder comes back as one page.
func (s *Storage) ListChildren(ctx context.Context, folderID, _ string) (model.Page, error) {
	prefix := folderPrefix(folderID)
	var page model.Page
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: false}) {
		if obj.Err != nil {
			return model.Page{}, retry.MarkTransient(fmt.Errorf("list %s: %w", prefix, obj.Err))
		}
		if entry, ok := toEntry(prefix, obj); ok {
			page.Entries = append(page.Entries, entry)
		}
	}
	return page, nil
}

// Download streams an object into w.
func (s *Storage) Download(ctx context.Context, fileID string, w io.Writer) (int64, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, fileID, minio.GetObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("get object: %w", err)
	}
	defer obj.Close()
	n, err := io.Copy(w, obj)
	if err != nil {
		return n, fmt.Errorf("read object: %w", err)
	}
	return n, nil
}

// Upload puts the body under the destination prefix and returns a presigned
// link valid for the configured TTL.
func (s *Storage) Upload(ctx context.Context, req model.UploadRequest) (model.RemoteFile, error) {
	key := folderPrefix(req.FolderID) + req.Name
	size := req.Size
	if size <= 0 {
		size = -1
	}
	opts := minio.PutObjectOptions{ContentType: req.MimeType}
	if _, err := s.client.PutObject(ctx, s.bucket, key, req.Body, size, opts); err != nil {
		return model.RemoteFile{}, fmt.Errorf("upload object: %w", err)
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.linkTTL, url.Values{})
	if err != nil {
		return model.RemoteFile{}, fmt.Errorf("presign object: %w", err)
	}
	return model.RemoteFile{ID: key, Name: req.Name, Link: u.String()}, nil
}

// Name returns the last element of a prefix, or the bucket name for the
// bucket root.
func (s *Storage) Name(_ context.Context, fileID string) (string, error) {
	return displayName(s.bucket, fileID), nil
}

func displayName(bucket, fileID string) string {
	trimmed := strings.Trim(fileID, "/")
	if trimmed == "" {
		return bucket
	}
	return path.Base(trimmed)
}

func folderPrefix(folderID string) string {
	p := strings.TrimPrefix(folderID, "/")
	if p != "" && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// toEntry converts a listing item. The prefix's own directory marker is
// dropped.
func toEntry(prefix string, obj minio.ObjectInfo) (model.DirectoryEntry, bool) {
	if obj.Key == prefix {
		return model.DirectoryEntry{}, false
	}
	name := path.Base(strings.TrimSuffix(obj.Key, "/"))
	if strings.HasSuffix(obj.Key, "/") {
		return model.DirectoryEntry{ID: obj.Key, Name: name, MimeType: model.FolderMimeType}, true
	}
	ct := obj.ContentType
	if ct == "" || ct == "application/octet-stream" {
		ct = contentType(name)
	}
	return model.DirectoryEntry{ID: obj.Key, Name: name, MimeType: ct, Size: obj.Size}, true
}

func contentType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ct, ok := videoTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
