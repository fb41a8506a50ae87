// Package model contains simple struct definitions shared across packages.
package model

import (
	"io"
	"strings"
)

// FolderMimeType marks folder entries in a listing.
const FolderMimeType = "application/vnd.google-apps.folder"

// EntryKind classifies a listed entry.
type EntryKind string

const (
	KindFolder EntryKind = "folder"
	KindVideo  EntryKind = "video"
	KindOther  EntryKind = "other"
)

// DirectoryEntry is one child returned by listing a folder. Entries are
// consumed right after listing and never stored.
type DirectoryEntry struct {
	ID       string
	Name     string
	MimeType string
	// Size is zero when the store does not report it.
	Size int64
}

// Kind derives the entry type from its content type.
func (e DirectoryEntry) Kind() EntryKind {
	switch {
	case e.MimeType == FolderMimeType:
		return KindFolder
	case strings.HasPrefix(e.MimeType, "video/"):
		return KindVideo
	default:
		return KindOther
	}
}

// Page is the result of one listing call.
type Page struct {
	Entries       []DirectoryEntry
	NextPageToken string
}

// UploadRequest describes a new file to create in a folder.
type UploadRequest struct {
	FolderID string
	Name     string
	MimeType string
	Body     io.Reader
	Size     int64
}

// RemoteFile is what a store reports back after an upload.
type RemoteFile struct {
	ID   string
	Name string
	Link string
}
