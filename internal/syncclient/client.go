package syncclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"insp/internal/models"
)

// Sentinel errors for common HTTP error classes.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

// Client is an HTTP client for the insp-sync daemon.
type Client struct {
	BaseURL  string
	Token    string
	UserID   string
	DeviceID string
	HTTP     *http.Client
}

// New creates a new sync client.
func New(baseURL, token, userID, deviceID string) *Client {
	return &Client{
		BaseURL:  baseURL,
		Token:    token,
		UserID:   userID,
		DeviceID: deviceID,
		HTTP:     &http.Client{Timeout: 3 * time.Minute},
	}
}

// --- Response types (mirror internal/api, independently defined) ---

// HealthResponse is the response from GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse is the response from GET /v1/sync/status.
type StatusResponse struct {
	Active           *models.SyncProgress `json:"active,omitempty"`
	QueueDepth       int                  `json:"queue_depth"`
	LastSyncAt       *time.Time           `json:"last_sync_at,omitempty"`
	PendingConflicts int                  `json:"pending_conflicts"`
}

// QueueResponse is the response from GET /v1/sync/queue.
type QueueResponse struct {
	Operations []models.Change `json:"operations"`
	Depth      int             `json:"depth"`
}

// ConflictsResponse is the response from GET /v1/conflicts.
type ConflictsResponse struct {
	Conflicts []models.SyncConflict `json:"conflicts"`
}

// BatchesResponse is the response from GET /v1/sync/batches.
type BatchesResponse struct {
	Batches []models.SyncBatch `json:"batches"`
}

// MetricsResponse is the response from GET /metricz.
type MetricsResponse struct {
	UptimeSeconds     float64 `json:"uptime_seconds"`
	Requests          int64   `json:"requests"`
	SyncsStarted      int64   `json:"syncs_started"`
	SyncsCompleted    int64   `json:"syncs_completed"`
	SyncsFailed       int64   `json:"syncs_failed"`
	OpsApplied        int64   `json:"ops_applied"`
	ConflictsDetected int64   `json:"conflicts_detected"`
	ConflictsResolved int64   `json:"conflicts_resolved"`
}

// --- Methods ---

// HealthCheck hits the /healthz endpoint to verify daemon reachability.
func (c *Client) HealthCheck() (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do("GET", "/healthz", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Metrics fetches the daemon metrics snapshot.
func (c *Client) Metrics() (*MetricsResponse, error) {
	var resp MetricsResponse
	if err := c.do("GET", "/metricz", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Synchronize runs a sync session with the given client changes.
func (c *Client) Synchronize(changes []models.Change, opts models.SyncOptions) (*models.SyncResult, error) {
	body := map[string]any{
		"user_id":   c.UserID,
		"device_id": c.DeviceID,
		"changes":   changes,
		"options":   opts,
	}
	var resp models.SyncResult
	if err := c.do("POST", "/v1/sync", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ForceSync drains the offline queue through a sync session.
func (c *Client) ForceSync(opts models.SyncOptions) (*models.SyncResult, error) {
	body := map[string]any{
		"user_id":   c.UserID,
		"device_id": c.DeviceID,
		"options":   opts,
	}
	var resp models.SyncResult
	if err := c.do("POST", "/v1/sync/force", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueOperation appends a change to the offline queue.
func (c *Client) QueueOperation(change models.Change) error {
	body := map[string]any{
		"user_id":   c.UserID,
		"device_id": c.DeviceID,
		"change":    change,
	}
	return c.do("POST", "/v1/sync/queue", body, nil)
}

// GetQueue returns the pending offline queue.
func (c *Client) GetQueue() (*QueueResponse, error) {
	var resp QueueResponse
	if err := c.do("GET", "/v1/sync/queue?"+c.pairQuery(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status returns the sync state for this client's (user, device) pair.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do("GET", "/v1/sync/status?"+c.pairQuery(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListBatches returns the most recent sync batches.
func (c *Client) ListBatches(limit int) (*BatchesResponse, error) {
	params := url.Values{}
	params.Set("user_id", c.UserID)
	params.Set("device_id", c.DeviceID)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var resp BatchesResponse
	if err := c.do("GET", "/v1/sync/batches?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListConflicts returns the user's pending conflicts.
func (c *Client) ListConflicts() (*ConflictsResponse, error) {
	params := url.Values{}
	params.Set("user_id", c.UserID)
	var resp ConflictsResponse
	if err := c.do("GET", "/v1/conflicts?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResolveConflict resolves one pending conflict with the given strategy.
func (c *Client) ResolveConflict(conflictID string, strategy models.Strategy, mergedData json.RawMessage) (*models.ResolveResult, error) {
	body := map[string]any{
		"strategy":    strategy,
		"resolved_by": c.UserID,
	}
	if mergedData != nil {
		body["merged_data"] = mergedData
	}
	var resp models.ResolveResult
	if err := c.do("POST", fmt.Sprintf("/v1/conflicts/%s/resolve", conflictID), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) pairQuery() string {
	params := url.Values{}
	params.Set("user_id", c.UserID)
	params.Set("device_id", c.DeviceID)
	return params.Encode()
}

// --- HTTP helpers ---

// apiError is the standard error body from the daemon.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

func (c *Client) do(method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var wrapped struct {
			Error apiError `json:"error"`
		}
		if json.Unmarshal(respBody, &wrapped) == nil && wrapped.Error.Code != "" {
			switch resp.StatusCode {
			case http.StatusUnauthorized:
				return fmt.Errorf("%w: %s", ErrUnauthorized, wrapped.Error.Message)
			case http.StatusNotFound:
				return fmt.Errorf("%w: %s", ErrNotFound, wrapped.Error.Message)
			case http.StatusConflict:
				return fmt.Errorf("%w: %s", ErrConflict, wrapped.Error.Message)
			default:
				return &wrapped.Error
			}
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
