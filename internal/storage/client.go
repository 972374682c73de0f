package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/programisto-labs/edrm-mailer/internal/config"
	"github.com/programisto-labs/edrm-mailer/internal/mailer/domain"
)

// Ensure Client implements domain.FileStore
var _ domain.FileStore = (*Client)(nil)

// Client talks to the remote document store. Downloading a file takes two
// round trips: one for the download descriptor (signed URL plus metadata),
// one for the content itself.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(cfg config.Config) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.FileStoreBaseURL, "/"),
		token:   cfg.FileStoreToken,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type downloadDescriptor struct {
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

func (c *Client) Download(ctx context.Context, fileID string) (domain.FileDownload, error) {
	if c.baseURL == "" {
		return domain.FileDownload{}, fmt.Errorf("file store is not configured")
	}

	desc, err := c.fetchDescriptor(ctx, fileID)
	if err != nil {
		return domain.FileDownload{}, err
	}
	if desc.URL == "" {
		return domain.FileDownload{}, fmt.Errorf("file store returned no download url for %q", fileID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, desc.URL, nil)
	if err != nil {
		return domain.FileDownload{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return domain.FileDownload{}, fmt.Errorf("fetch content for %q: %w", fileID, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return domain.FileDownload{}, fmt.Errorf("fetch content for %q: %s", fileID, resp.Status)
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.FileDownload{}, fmt.Errorf("read content for %q: %w", fileID, err)
	}

	contentType := desc.ContentType
	if contentType == "" {
		contentType = resp.Header.Get("Content-Type")
	}
	filename := desc.Filename
	if filename == "" {
		filename = fileID
	}
	return domain.FileDownload{Filename: filename, ContentType: contentType, Content: content}, nil
}

func (c *Client) fetchDescriptor(ctx context.Context, fileID string) (downloadDescriptor, error) {
	endpoint := c.baseURL + "/files/" + url.PathEscape(fileID) + "/download"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return downloadDescriptor{}, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return downloadDescriptor{}, fmt.Errorf("fetch descriptor for %q: %w", fileID, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return downloadDescriptor{}, fmt.Errorf("fetch descriptor for %q: %s", fileID, resp.Status)
	}
	var desc downloadDescriptor
	if err := json.NewDecoder(resp.Body).Decode(&desc); err != nil {
		return downloadDescriptor{}, fmt.Errorf("decode descriptor for %q: %w", fileID, err)
	}
	return desc, nil
}
