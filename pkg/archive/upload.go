package archive

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/rescp17/preservicaUploader/pkg/transfer"
)

const uploadPath = "/api/upload"

var _ transfer.Archive = (*Client)(nil)

// DirectUpload streams one file into a folder through the ingest endpoint.
// The body is replayed after a 401 only if it can seek.
func (c *Client) DirectUpload(ctx context.Context, ur transfer.DirectUploadRequest) (*transfer.Receipt, error) {
	q := url.Values{}
	q.Set("parent", ur.FolderID)
	q.Set("filename", ur.Name)
	target := c.baseURL + uploadPath + "?" + q.Encode()

	resp, err := c.do(ctx, "direct upload", c.upload, func(try int) (*http.Request, error) {
		if try > 0 {
			s, ok := ur.Body.(io.Seeker)
			if !ok {
				return nil, &APIError{Op: "direct upload", StatusCode: http.StatusUnauthorized, Message: "session expired during upload"}
			}
			if _, err := s.Seek(0, io.SeekStart); err != nil {
				return nil, fmt.Errorf("failed to rewind upload body: %w", err)
			}
		}
		var body io.Reader = http.NoBody
		if ur.Size > 0 {
			body = io.NopCloser(ur.Body)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
		if err != nil {
			return nil, fmt.Errorf("failed to create upload request: %w", err)
		}
		req.ContentLength = ur.Size
		contentType := ur.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/xml")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	receipt := &transfer.Receipt{
		Pathway:   transfer.Direct,
		Reference: ur.Name,
		Location:  resp.Header.Get("Location"),
		At:        time.Now(),
	}

	var ack uploadResponse
	err = xml.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&ack)
	switch {
	case err == nil:
		if ack.Reference != "" {
			receipt.Reference = ack.Reference
		}
		if ack.Location != "" {
			receipt.Location = ack.Location
		}
	case errors.Is(err, io.EOF):
		// empty acknowledgement
	default:
		// the file is already placed; a garbled acknowledgement must not trigger a re-upload
		slog.Warn("Unreadable upload acknowledgement", "file", ur.Name, "error", err)
	}
	return receipt, nil
}
