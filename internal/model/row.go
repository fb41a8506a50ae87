package model

import "time"

// LedgerHeader is written once when the ledger is empty.
var LedgerHeader = []string{"Thumbnail Name", "Original Video Path", "Link to Thumbnail"}

// LedgerRow is one entry per processed video. Rows are appended and never
// read back.
type LedgerRow struct {
	ThumbnailName string
	OriginalPath  string
	ThumbnailLink string
}

// Values returns the row in column order.
func (r LedgerRow) Values() []string {
	return []string{r.ThumbnailName, r.OriginalPath, r.ThumbnailLink}
}

// IsZero reports whether the row carries no data.
func (r LedgerRow) IsZero() bool {
	return r == LedgerRow{}
}

// Summary counts what a run did.
type Summary struct {
	Folders        int       `json:"folders"`
	Videos         int       `json:"videos"`
	Processed      int       `json:"processed"`
	Skipped        int       `json:"skipped"`
	Failed         int       `json:"failed"`
	FolderErrors   int       `json:"folderErrors"`
	LedgerFailures int       `json:"ledgerFailures"`
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
}
