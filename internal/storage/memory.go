// Package storage contains an in-memory remote store and ledger. The run
// command never uses them; they stand in for Drive and Sheets in tests and
// behave like them: paginated listings, shareable links, append-only rows.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/dharsanguruparan/framegrab/internal/model"
)

var (
	// ErrNotFound is returned for unknown file or folder ids.
	ErrNotFound = errors.New("file not found")
)

type memFile struct {
	id       string
	name     string
	mimeType string
	parent   string
	data     []byte
}

// MemoryStore is a folder tree held in a map keyed by id.
type MemoryStore struct {
	mu       sync.RWMutex
	files    map[string]*memFile
	children map[string][]string
	nextID   int

	// PageSize limits listing pages; zero means everything in one page.
	PageSize int

	// Failure injection, keyed by file or folder id.
	ListErr     map[string]error
	DownloadErr map[string]error
	UploadErr   error

	listCalls map[string]int
	uploads   []model.UploadRequest
}

// NewMemoryStore constructs a MemoryStore with one root folder.
func NewMemoryStore(rootID, rootName string) *MemoryStore {
	m := &MemoryStore{
		files:       make(map[string]*memFile),
		children:    make(map[string][]string),
		ListErr:     make(map[string]error),
		DownloadErr: make(map[string]error),
		listCalls:   make(map[string]int),
	}
	m.files[rootID] = &memFile{id: rootID, name: rootName, mimeType: model.FolderMimeType}
	return m
}

// AddFolder creates a folder under parent and returns its id.
func (m *MemoryStore) AddFolder(parent, name string) string {
	return m.add(parent, name, model.FolderMimeType, nil)
}

// AddFile creates a file under parent and returns its id.
func (m *MemoryStore) AddFile(parent, name, mimeType string, data []byte) string {
	return m.add(parent, name, mimeType, data)
}

func (m *MemoryStore) add(parent, name, mimeType string, data []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := "f" + strconv.Itoa(m.nextID)
	m.files[id] = &memFile{id: id, name: name, mimeType: mimeType, parent: parent, data: append([]byte(nil), data...)}
	m.children[parent] = append(m.children[parent], id)
	return id
}

// ListChildren returns one page of children. Page tokens are offsets.
func (m *MemoryStore) ListChildren(_ context.Context, folderID, pageToken string) (model.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls[folderID]++
	if err := m.ListErr[folderID]; err != nil {
		return model.Page{}, err
	}
	if _, ok := m.files[folderID]; !ok {
		return model.Page{}, ErrNotFound
	}
	start := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil {
			return model.Page{}, fmt.Errorf("bad page token %q", pageToken)
		}
		start = n
	}
	ids := m.children[folderID]
	end := len(ids)
	if m.PageSize > 0 && start+m.PageSize < end {
		end = start + m.PageSize
	}
	page := model.Page{}
	for _, id := range ids[start:end] {
		f := m.files[id]
		page.Entries = append(page.Entries, model.DirectoryEntry{
			ID:       f.id,
			Name:     f.name,
			MimeType: f.mimeType,
			Size:     int64(len(f.data)),
		})
	}
	if end < len(ids) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

// Download copies a file's bytes into w.
func (m *MemoryStore) Download(_ context.Context, fileID string, w io.Writer) (int64, error) {
	m.mu.RLock()
	err := m.DownloadErr[fileID]
	f, ok := m.files[fileID]
	m.mu.RUnlock()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNotFound
	}
	return io.Copy(w, bytes.NewReader(f.data))
}

// Upload stores a new file and returns a fake shareable link.
func (m *MemoryStore) Upload(_ context.Context, req model.UploadRequest) (model.RemoteFile, error) {
	if m.UploadErr != nil {
		return model.RemoteFile{}, m.UploadErr
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return model.RemoteFile{}, err
	}
	id := m.add(req.FolderID, req.Name, req.MimeType, data)
	m.mu.Lock()
	m.uploads = append(m.uploads, model.UploadRequest{FolderID: req.FolderID, Name: req.Name, MimeType: req.MimeType, Size: int64(len(data))})
	m.mu.Unlock()
	return model.RemoteFile{ID: id, Name: req.Name, Link: "https://memory.invalid/file/" + id + "/view"}, nil
}

// Name returns the display name of a file or folder.
func (m *MemoryStore) Name(_ context.Context, fileID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[fileID]
	if !ok {
		return "", ErrNotFound
	}
	return f.name, nil
}

// Uploads returns the uploads made so far (bodies are not retained).
func (m *MemoryStore) Uploads() []model.UploadRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.UploadRequest(nil), m.uploads...)
}

// ListCalls reports how many listing calls hit folderID.
func (m *MemoryStore) ListCalls(folderID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listCalls[folderID]
}

// MemoryLedger is an append-only table of string rows.
type MemoryLedger struct {
	mu   sync.Mutex
	rows [][]string

	// ReadErr fails every ReadRange call.
	ReadErr error
	// FailAppends makes the next N AppendRow calls fail with AppendErr.
	FailAppends int
	AppendErr   error

	appendCalls int
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

// ReadRange returns every row including the header.
func (l *MemoryLedger) ReadRange(context.Context) ([][]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ReadErr != nil {
		return nil, l.ReadErr
	}
	out := make([][]string, len(l.rows))
	for i, r := range l.rows {
		out[i] = append([]string(nil), r...)
	}
	return out, nil
}

// AppendRow adds one row at the end.
func (l *MemoryLedger) AppendRow(_ context.Context, row []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appendCalls++
	if l.FailAppends > 0 {
		l.FailAppends--
		if l.AppendErr != nil {
			return l.AppendErr
		}
		return errors.New("append failed")
	}
	l.rows = append(l.rows, append([]string(nil), row...))
	return nil
}

// Rows is ReadRange without failure injection.
func (l *MemoryLedger) Rows() [][]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]string, len(l.rows))
	copy(out, l.rows)
	return out
}

// AppendCalls counts AppendRow calls, failed ones included.
func (l *MemoryLedger) AppendCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendCalls
}
