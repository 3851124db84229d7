// internal/api/client.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/user/boxwatch/internal/history"
	"github.com/user/boxwatch/internal/types"
)

// ErrNotFound matches responses for unknown devices.
var ErrNotFound = errors.New("not found")

// Client talks to a running boxwatch daemon.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the daemon listening at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// ResponseError carries a non-2xx answer from the daemon.
type ResponseError struct {
	Code    int
	Message string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.Code, e.Message)
}

func (e *ResponseError) Is(target error) bool {
	return target == ErrNotFound && e.Code == http.StatusNotFound
}

func devicePath(id types.PeerID, suffix string) string {
	return "/api/devices/" + url.PathEscape(string(id)) + suffix
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &ResponseError{Code: resp.StatusCode, Message: msg}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) Devices(ctx context.Context) ([]DeviceView, error) {
	var out []DeviceView
	err := c.do(ctx, http.MethodGet, "/api/devices", nil, &out)
	return out, err
}

func (c *Client) Device(ctx context.Context, id types.PeerID) (DeviceView, error) {
	var out DeviceView
	err := c.do(ctx, http.MethodGet, devicePath(id, ""), nil, &out)
	return out, err
}

func (c *Client) AddDevice(ctx context.Context, d types.Device) (DeviceView, error) {
	var out DeviceView
	err := c.do(ctx, http.MethodPost, "/api/devices", d, &out)
	return out, err
}

func (c *Client) UpdateDevice(ctx context.Context, id types.PeerID, req UpdateRequest) (DeviceView, error) {
	var out DeviceView
	err := c.do(ctx, http.MethodPatch, devicePath(id, ""), req, &out)
	return out, err
}

func (c *Client) RemoveDevice(ctx context.Context, id types.PeerID) error {
	return c.do(ctx, http.MethodDelete, devicePath(id, ""), nil, nil)
}

func (c *Client) SelectDevice(ctx context.Context, id types.PeerID) (DeviceView, error) {
	var out DeviceView
	err := c.do(ctx, http.MethodPost, devicePath(id, "/select"), nil, &out)
	return out, err
}

// Check asks the daemon to run a connection check. A failed probe comes back
// as a *ResponseError with code 502 carrying the probe error.
func (c *Client) Check(ctx context.Context, id types.PeerID) (CheckResult, error) {
	var out CheckResult
	err := c.do(ctx, http.MethodPost, devicePath(id, "/check"), nil, &out)
	return out, err
}

func (c *Client) FreeSpace(ctx context.Context, id types.PeerID, store bool) (*types.FreeSpace, error) {
	var out types.FreeSpace
	path := devicePath(id, "/space?store="+strconv.FormatBool(store))
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) History(ctx context.Context, id types.PeerID, limit int) ([]*history.Entry, error) {
	var out []*history.Entry
	path := devicePath(id, "/history?limit="+strconv.Itoa(limit))
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) Reset(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/reset", nil, nil)
}

// Health reports whether the daemon is up, has loaded its persisted state
// and how many state writes are still running.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
