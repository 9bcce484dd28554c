package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bootcforge/bootcforge/pkg/types"
)

// Client is an HTTP client for the bootcforge API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new bootcforge API client. Requests are bounded by the
// context passed to each call.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

// APIError is a non-success response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// IsConflict reports whether err is a 409 response, which the server sends
// when a build would overwrite existing output.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// doRequest performs an HTTP request with API key authentication.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	return resp, nil
}

// call sends a request and decodes a 2xx response into out, which may be nil.
func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		var payload struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Prereqs checks whether the server host can build disk images.
func (c *Client) Prereqs(ctx context.Context) (*types.PrereqStatus, error) {
	var st types.PrereqStatus
	if err := c.call(ctx, http.MethodGet, "/api/prereqs", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// CreateBuild starts a build. A 409 response (see IsConflict) means the
// output exists and the request must be resent with Overwrite set.
func (c *Client) CreateBuild(ctx context.Context, req types.BuildRequest) (*types.BuildAccepted, error) {
	var accepted types.BuildAccepted
	if err := c.call(ctx, http.MethodPost, "/api/builds", req, &accepted); err != nil {
		return nil, err
	}
	return &accepted, nil
}

// Progress returns the progress of builds started on the server.
func (c *Client) Progress(ctx context.Context) ([]types.BuildProgress, error) {
	var progress []types.BuildProgress
	if err := c.call(ctx, http.MethodGet, "/api/builds/progress", nil, &progress); err != nil {
		return nil, err
	}
	return progress, nil
}

// BuildProgress returns the progress of one build.
func (c *Client) BuildProgress(ctx context.Context, id string) (*types.BuildProgress, error) {
	all, err := c.Progress(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, fmt.Errorf("build %s is not tracked by the server", id)
}

// CancelBuild cancels a running build.
func (c *Client) CancelBuild(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/api/builds/"+url.PathEscape(id), nil, nil)
}

// History lists recorded builds, newest first.
func (c *Client) History(ctx context.Context) ([]types.BuildRecord, error) {
	var records []types.BuildRecord
	if err := c.call(ctx, http.MethodGet, "/api/history", nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// DeleteBuilds removes builds from history along with their builder
// containers.
func (c *Client) DeleteBuilds(ctx context.Context, records []types.BuildRecord) error {
	return c.call(ctx, http.MethodDelete, "/api/history", types.DeleteBuildsRequest{Builds: records}, nil)
}

// LastFolder returns the output folder of the newest build.
func (c *Client) LastFolder(ctx context.Context) (string, error) {
	var out struct {
		Folder string `json:"folder"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/history/last-folder", nil, &out); err != nil {
		return "", err
	}
	return out.Folder, nil
}

// UniqueBuildID returns name, or name with the first free numeric suffix.
func (c *Client) UniqueBuildID(ctx context.Context, name string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	path := "/api/history/unique-id?name=" + url.QueryEscape(name)
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func engineQuery(engineID string) string {
	if engineID == "" {
		return ""
	}
	return "engineId=" + url.QueryEscape(engineID)
}

// Images lists local bootc images.
func (c *Client) Images(ctx context.Context, engineID string) ([]types.BootcImage, error) {
	path := "/api/images"
	if q := engineQuery(engineID); q != "" {
		path += "?" + q
	}
	var images []types.BootcImage
	if err := c.call(ctx, http.MethodGet, path, nil, &images); err != nil {
		return nil, err
	}
	return images, nil
}

// PullImage pulls an image on the server's engine.
func (c *Client) PullImage(ctx context.Context, req types.PullRequest) error {
	return c.call(ctx, http.MethodPost, "/api/images/pull", req, nil)
}

// PruneImages removes older tags of req.Image.
func (c *Client) PruneImages(ctx context.Context, req types.PruneRequest) (*types.PruneResult, error) {
	var res types.PruneResult
	if err := c.call(ctx, http.MethodPost, "/api/images/prune", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Manifest lists the platforms an image is published for.
func (c *Client) Manifest(ctx context.Context, ref, engineID string) ([]types.ManifestPlatform, error) {
	path := "/api/images/manifest?ref=" + url.QueryEscape(ref)
	if q := engineQuery(engineID); q != "" {
		path += "&" + q
	}
	var platforms []types.ManifestPlatform
	if err := c.call(ctx, http.MethodGet, path, nil, &platforms); err != nil {
		return nil, err
	}
	return platforms, nil
}

// LaunchVM boots a built raw disk.
func (c *Client) LaunchVM(ctx context.Context, req types.VMLaunchRequest) (*types.VMLaunchResult, error) {
	var res types.VMLaunchResult
	if err := c.call(ctx, http.MethodPost, "/api/vm/launch", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// StopVM stops the running VM.
func (c *Client) StopVM(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "/api/vm/stop", nil, nil)
}

// Export writes a sparse archive of a built raw disk.
func (c *Client) Export(ctx context.Context, req types.ExportRequest) (*types.ExportResult, error) {
	var res types.ExportResult
	if err := c.call(ctx, http.MethodPost, "/api/exports", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
