// Package docstore reads a document collection over the Firestore REST API.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aquintel/spillwatch/internal/fleet"
	"github.com/aquintel/spillwatch/pkg/core"
)

// DefaultEndpoint is the public Firestore REST root.
const DefaultEndpoint = "https://firestore.googleapis.com/v1"

// ErrNotConfigured is returned when no project or collection is set.
var ErrNotConfigured = errors.New("docstore not configured")

// Config holds the document store connection settings.
type Config struct {
	Endpoint   string
	ProjectID  string
	Database   string
	Collection string
	APIKey     string
	AuthToken  string
	PageSize   int
	Timeout    time.Duration
}

// Document is one decoded document.
type Document struct {
	ID         string
	Fields     map[string]any
	UpdateTime time.Time
}

// Client lists documents of one collection.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a client. Missing optional settings get defaults.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Database == "" {
		cfg.Database = "(default)"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 300
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Configured reports whether the client has enough settings to fetch.
func (c *Client) Configured() bool {
	return c.cfg.ProjectID != "" && c.cfg.Collection != ""
}

type listResponse struct {
	Documents     []rawDocument `json:"documents"`
	NextPageToken string        `json:"nextPageToken"`
}

type rawDocument struct {
	Name       string           `json:"name"`
	Fields     map[string]Value `json:"fields"`
	UpdateTime string           `json:"updateTime"`
}

// ListDocuments fetches every document of the collection, following pages.
func (c *Client) ListDocuments(ctx context.Context) ([]Document, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	var docs []Document
	pageToken := ""
	for {
		page, err := c.listPage(ctx, pageToken)
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Documents {
			docs = append(docs, raw.decode())
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	c.logger.Debug("Listed documents", "collection", c.cfg.Collection, "count", len(docs))
	return docs, nil
}

// FetchReports lists the collection and decodes each document into a vessel
// report keyed by document ID.
func (c *Client) FetchReports(ctx context.Context) ([]core.VesselReport, error) {
	docs, err := c.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]core.VesselReport, 0, len(docs))
	for _, d := range docs {
		reports = append(reports, fleet.Decode(d.ID, d.Fields))
	}
	return reports, nil
}

func (c *Client) listPage(ctx context.Context, pageToken string) (*listResponse, error) {
	u, err := url.Parse(strings.TrimRight(c.cfg.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	u.Path = path.Join(u.Path, "projects", c.cfg.ProjectID, "databases", c.cfg.Database, "documents", c.cfg.Collection)

	q := u.Query()
	q.Set("pageSize", strconv.Itoa(c.cfg.PageSize))
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	if c.cfg.APIKey != "" {
		q.Set("key", c.cfg.APIKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("list returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var page listResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode list response: %w", err)
	}
	return &page, nil
}

func (r rawDocument) decode() Document {
	d := Document{
		ID:     path.Base(r.Name),
		Fields: make(map[string]any, len(r.Fields)),
	}
	for k, v := range r.Fields {
		d.Fields[k] = v.Decode()
	}
	if ts, err := time.Parse(time.RFC3339Nano, r.UpdateTime); err == nil {
		d.UpdateTime = ts
	}
	return d
}
