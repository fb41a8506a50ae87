// Package drive implements the remote store on Google Drive. Every call sets
// the shared-drive flags so folders on shared drives list the same way as
// "My Drive" folders.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/dharsanguruparan/framegrab/internal/model"
	"github.com/dharsanguruparan/framegrab/internal/retry"
)

const defaultPageSize = 100

// Store wraps a Drive v3 service.
type Store struct {
	svc      *drive.Service
	pageSize int64
}

// New creates a Drive client with the given options (credentials, endpoint).
func New(ctx context.Context, opts ...option.ClientOption) (*Store, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("init drive: %w", err)
	}
	return &Store{svc: svc, pageSize: defaultPageSize}, nil
}

// ListChildren lists one page of non-trashed children of folderID.
func (s *Store) ListChildren(ctx context.Context, folderID, pageToken string) (model.Page, error) {
	call := s.svc.Files.List().
		Q(childrenQuery(folderID)).
		Fields("nextPageToken, files(id, name, mimeType, size)").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Corpora("allDrives").
		PageSize(s.pageSize).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	res, err := call.Do()
	if err != nil {
		return model.Page{}, classify(fmt.Errorf("list files: %w", err))
	}
	page := model.Page{NextPageToken: res.NextPageToken}
	for _, f := range res.Files {
		page.Entries = append(page.Entries, model.DirectoryEntry{
			ID:       f.Id,
			Name:     f.Name,
			MimeType: f.MimeType,
			Size:     f.Size,
		})
	}
	return page, nil
}

// Download streams the file content into w.
func (s *Store) Download(ctx context.Context, fileID string, w io.Writer) (int64, error) {
	resp, err := s.svc.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return 0, classify(fmt.Errorf("download %s: %w", fileID, err))
	}
	defer resp.Body.Close()
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, classify(fmt.Errorf("read %s: %w", fileID, err))
	}
	return n, nil
}

// Upload creates a new file and asks Drive for its shareable view link.
func (s *Store) Upload(ctx context.Context, req model.UploadRequest) (model.RemoteFile, error) {
	meta := &drive.File{
		Name:     req.Name,
		MimeType: req.MimeType,
		Parents:  []string{req.FolderID},
	}
	f, err := s.svc.Files.Create(meta).
		Media(req.Body, googleapi.ContentType(req.MimeType)).
		Fields("id, name, webViewLink").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return model.RemoteFile{}, classify(fmt.Errorf("create %s: %w", req.Name, err))
	}
	return model.RemoteFile{ID: f.Id, Name: f.Name, Link: f.WebViewLink}, nil
}

// Name resolves a file's display name.
func (s *Store) Name(ctx context.Context, fileID string) (string, error) {
	f, err := s.svc.Files.Get(fileID).Fields("name").SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return "", classify(fmt.Errorf("get %s: %w", fileID, err))
	}
	return f.Name, nil
}

func childrenQuery(folderID string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(folderID)
	return fmt.Sprintf("'%s' in parents and trashed=false", escaped)
}

// classify marks API and network failures as transient.
func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return retry.MarkTransient(err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return retry.MarkTransient(err)
	}
	return err
}
