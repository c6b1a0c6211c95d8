package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"reeler/internal/coordinator"
	"reeler/internal/records"
	"reeler/internal/services"
)

// Client talks to a remote coordinator service. Its methods mirror the
// Coordinator so workers can use either interchangeably.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for baseURL (scheme and host, optional path prefix).
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the service address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if _, err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Entries calls GET /entries.
func (c *Client) Entries(ctx context.Context) (map[int64]records.Record, error) {
	var raw map[string]records.Record
	if _, err := c.do(ctx, http.MethodGet, "/entries", nil, &raw); err != nil {
		return nil, err
	}
	out := make(map[int64]records.Record, len(raw))
	for key, rec := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "api", "entries", fmt.Sprintf("invalid key %q", key), err)
		}
		out[id] = rec
	}
	return out, nil
}

// Entry calls GET /entries/{id}.
func (c *Client) Entry(ctx context.Context, id int64) (*records.Record, error) {
	var rec records.Record
	if _, err := c.do(ctx, http.MethodGet, entryPath("/entries", id), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateEntry calls POST /entries.
func (c *Client) CreateEntry(ctx context.Context, rec records.Record) (*records.Record, error) {
	var out records.Record
	if _, err := c.do(ctx, http.MethodPost, "/entries", rec, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MergeEntry calls PUT /entries/{id}.
func (c *Client) MergeEntry(ctx context.Context, id int64, patch map[string]any) (*records.Record, error) {
	var out records.Record
	if _, err := c.do(ctx, http.MethodPut, entryPath("/entries", id), patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdatePath sets the artifact path of a record.
func (c *Client) UpdatePath(ctx context.Context, id int64, path string) error {
	_, err := c.MergeEntry(ctx, id, map[string]any{"path": path})
	return err
}

// ClaimNextDownload calls GET /next2download. It returns nil when nothing is eligible.
func (c *Client) ClaimNextDownload(ctx context.Context, host string) (*records.Record, error) {
	return c.claim(ctx, "/next2download", host)
}

// ClaimNextConversion calls GET /next2convert. It returns nil when nothing is eligible.
func (c *Client) ClaimNextConversion(ctx context.Context, host string) (*records.Record, error) {
	return c.claim(ctx, "/next2convert", host)
}

func (c *Client) claim(ctx context.Context, path, host string) (*records.Record, error) {
	var rec records.Record
	status, err := c.do(ctx, http.MethodGet, path+"?host="+url.QueryEscape(host), nil, &rec)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	return &rec, nil
}

// UpdateDownload calls PUT /downloading/{id}.
func (c *Client) UpdateDownload(ctx context.Context, id int64, update coordinator.DownloadUpdate) (*records.Record, error) {
	var out records.Record
	if _, err := c.do(ctx, http.MethodPut, entryPath("/downloading", id), update, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReportConversion calls PUT /converting/{id}; a nil status is a heartbeat.
func (c *Client) ReportConversion(ctx context.Context, id int64, host string, status *records.ConverterStatus) (*records.Record, error) {
	var out records.Record
	if _, err := c.do(ctx, http.MethodPut, entryPath("/converting", id), ConversionReport{Status: status, Host: host}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AbandonDownload reports a held download as broken.
func (c *Client) AbandonDownload(ctx context.Context, id int64) error {
	broken := records.DownloadBroken
	_, err := c.UpdateDownload(ctx, id, coordinator.DownloadUpdate{Status: &broken})
	return err
}

func entryPath(prefix string, id int64) string {
	return prefix + "/" + strconv.FormatInt(id, 10)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, services.Wrap(services.ErrValidation, "api", "encode request", path, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "api", "build request", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		req.Header.Set(headerRequestID, rid)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, services.Wrap(services.ErrNetwork, "api", method+" "+path, c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr ErrorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		message := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			message = apiErr.Error
		}
		if message == "" {
			message = resp.Status
		}
		return resp.StatusCode, errorFor(resp.StatusCode, fmt.Sprintf("%s %s: %s", method, path, message))
	}
	if resp.StatusCode == http.StatusNoContent || out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, services.Wrap(services.ErrIO, "api", "decode response", path, err)
	}
	return resp.StatusCode, nil
}
