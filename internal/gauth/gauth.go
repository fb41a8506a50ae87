// Package gauth turns a service account key into a client option shared by
// the Drive and Sheets clients.
package gauth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

// Scopes requested for the run: full Drive access (list, download, upload)
// and spreadsheets.
var Scopes = []string{
	"https://www.googleapis.com/auth/drive",
	"https://www.googleapis.com/auth/spreadsheets",
}

// ClientOption authenticates once from a JSON key.
func ClientOption(ctx context.Context, key []byte) (option.ClientOption, error) {
	creds, err := google.CredentialsFromJSON(ctx, key, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("load service account credentials: %w", err)
	}
	return option.WithCredentials(creds), nil
}
