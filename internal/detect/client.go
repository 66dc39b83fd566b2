// internal/detect/client.go
package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrUnknownClassification is returned when the SAR service answers with
// something other than "0" or "1".
var ErrUnknownClassification = errors.New("unknown SAR classification")

// ErrNotConfigured is returned when the endpoint for a call is empty.
var ErrNotConfigured = errors.New("detection endpoint not configured")

// Config holds the external model endpoints.
type Config struct {
	AnomalyURL       string
	SARUploadURL     string
	SARUploadFromURL string
	SARImageURL      string
	Timeout          time.Duration
	// ReferenceImages maps ship names to local SAR images uploaded instead
	// of a generated image.
	ReferenceImages map[string]string
}

// DefaultAnomalyFeatures are the aggregated fields fed to the isolation forest.
var DefaultAnomalyFeatures = []string{
	"isSpecialManeuver",
	"uturns",
	"MaxSpeed",
	"isTankerOrCargo",
	"ProximityToPort",
	"ProximityToReef",
	"stallDuration",
}

// AnomalyRequest is the isolation-forest request body.
type AnomalyRequest struct {
	Contamination float64  `json:"contamination"`
	NEstimators   int      `json:"n_estimators"`
	Features      []string `json:"features_for_if"`
}

// DefaultAnomalyRequest returns the standard model parameters.
func DefaultAnomalyRequest() AnomalyRequest {
	features := make([]string, len(DefaultAnomalyFeatures))
	copy(features, DefaultAnomalyFeatures)
	return AnomalyRequest{
		Contamination: 0.05,
		NEstimators:   500,
		Features:      features,
	}
}

// AnomalyResult is what the anomaly service answered.
type AnomalyResult struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body,omitempty"`
}

// Vessel identifies the ship a SAR classification is for.
type Vessel struct {
	MMSI     string
	ShipName string
	Lat      float64
	Lon      float64
}

// SARResult is one SAR classification.
type SARResult struct {
	SpillDetected bool   `json:"spillDetected"`
	Method        string `json:"method"`
	Source        string `json:"source"`
}

const (
	MethodUpload  = "upload"
	MethodFromURL = "upload_from_url"

	maxBodyBytes = 64 * 1024
)

// Client talks to the anomaly and SAR model services.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New creates a new detection client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// RunAnomaly posts the isolation-forest request. Any non-2xx status is an error.
func (c *Client) RunAnomaly(ctx context.Context, req AnomalyRequest) (AnomalyResult, error) {
	if c.cfg.AnomalyURL == "" {
		return AnomalyResult{}, ErrNotConfigured
	}
	status, body, err := c.postJSON(ctx, c.cfg.AnomalyURL, req)
	if err != nil {
		return AnomalyResult{}, fmt.Errorf("anomaly request failed: %w", err)
	}
	if status < 200 || status > 299 {
		return AnomalyResult{StatusCode: status, Body: body}, fmt.Errorf("anomaly service returned status %d", status)
	}
	return AnomalyResult{StatusCode: status, Body: body}, nil
}

// SARImageURL returns the generated SAR image URL for a position.
func (c *Client) SARImageURL(lat, lon float64) string {
	if c.cfg.SARImageURL == "" {
		return ""
	}
	u, err := url.Parse(c.cfg.SARImageURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	u.RawQuery = q.Encode()
	return u.String()
}

// ReferenceImage returns the local image configured for a ship name. Names
// match case-insensitively since config keys arrive lowercased.
func (c *Client) ReferenceImage(shipName string) (string, bool) {
	if p, ok := c.cfg.ReferenceImages[shipName]; ok && p != "" {
		return p, true
	}
	for name, p := range c.cfg.ReferenceImages {
		if p != "" && strings.EqualFold(name, shipName) {
			return p, true
		}
	}
	return "", false
}

// ClassifySAR asks the SAR service whether there is a spill around the
// vessel. Ships with a reference image upload that file; others send the
// generated image URL for their last position.
func (c *Client) ClassifySAR(ctx context.Context, v Vessel) (SARResult, error) {
	var (
		status int
		body   string
		err    error
		result SARResult
	)

	if img, ok := c.ReferenceImage(v.ShipName); ok {
		if c.cfg.SARUploadURL == "" {
			return SARResult{}, ErrNotConfigured
		}
		result.Method, result.Source = MethodUpload, filepath.Base(img)
		status, body, err = c.uploadFile(ctx, c.cfg.SARUploadURL, img)
	} else {
		imageURL := c.SARImageURL(v.Lat, v.Lon)
		if c.cfg.SARUploadFromURL == "" || imageURL == "" {
			return SARResult{}, ErrNotConfigured
		}
		result.Method, result.Source = MethodFromURL, imageURL
		status, body, err = c.postJSON(ctx, c.cfg.SARUploadFromURL, map[string]string{"url": imageURL})
	}
	if err != nil {
		return SARResult{}, fmt.Errorf("SAR request failed: %w", err)
	}
	if status < 200 || status > 299 {
		return SARResult{}, fmt.Errorf("SAR service returned status %d", status)
	}

	spill, err := ParseClassification(body)
	if err != nil {
		return SARResult{}, err
	}
	result.SpillDetected = spill
	return result, nil
}

// ParseClassification reads the SAR answer: "0" no spill, "1" spill.
// Surrounding whitespace and JSON string quotes are tolerated.
func ParseClassification(body string) (bool, error) {
	s := strings.Trim(strings.TrimSpace(body), `"`)
	switch s {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownClassification, s)
	}
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any) (int, string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, "", fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return 0, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// uploadFile streams a multipart form with the image as field "file".
func (c *Client) uploadFile(ctx context.Context, endpoint, filePath string) (int, string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return 0, "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	errCh := make(chan error, 1)
	go func() {
		part, err := writer.CreateFormFile("file", filepath.Base(filePath))
		if err != nil {
			errCh <- fmt.Errorf("failed to create form file: %w", err)
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			errCh <- fmt.Errorf("failed to copy file: %w", err)
			pw.CloseWithError(err)
			return
		}
		if err := writer.Close(); err != nil {
			errCh <- fmt.Errorf("failed to finish form: %w", err)
			pw.CloseWithError(err)
			return
		}
		errCh <- nil
		pw.Close()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		pr.Close()
		return 0, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	status, body, err := c.do(req)
	// unblocks the writer if the request ended before reading the body
	pr.Close()
	writeErr := <-errCh
	if err != nil {
		return 0, "", err
	}
	if writeErr != nil {
		return 0, "", writeErr
	}
	return status, body, nil
}

func (c *Client) do(req *http.Request) (int, string, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, string(body), nil
}
