// Package drive lists and downloads archive files from Google Drive.
package drive

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/starford/ansuz/internal/models"
)

// Client wraps the Drive v3 API for read-only archive access.
type Client struct {
	srv      *drive.Service
	pageSize int64
}

// NewClient builds a Client from a credentials file (API key, OAuth client
// or service account, as the Google SDK resolves it).
func NewClient(ctx context.Context, credentialsFile string, pageSize int64) (*Client, error) {
	srv, err := drive.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(drive.DriveReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("drive: new service: %w", err)
	}
	if pageSize <= 0 || pageSize > 1000 {
		pageSize = 1000
	}
	return &Client{srv: srv, pageSize: pageSize}, nil
}

// ListFiles returns the first listing page of candidate files. Only a
// single page is consumed; drives with more files than the page size are
// a documented limitation.
func (c *Client) ListFiles(ctx context.Context) ([]models.RemoteFile, error) {
	resp, err := c.srv.Files.List().
		PageSize(c.pageSize).
		Fields("nextPageToken, files(id, name, trashed)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("drive: list files: %w", err)
	}

	out := make([]models.RemoteFile, 0, len(resp.Files))
	for _, f := range resp.Files {
		out = append(out, models.RemoteFile{
			ID:      f.Id,
			Name:    f.Name,
			Trashed: f.Trashed,
		})
	}
	return out, nil
}

// Download opens a byte stream for a file's content. The caller owns the
// returned reader.
func (c *Client) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	resp, err := c.srv.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("drive: download %s: %w", fileID, err)
	}
	return resp.Body, nil
}
