// Package probe talks to the box that is currently reachable from this host.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/user/boxwatch/internal/types"
)

var (
	_ types.Probe = (*HTTPProbe)(nil)
	_ types.Probe = Funcs{}
)

// StatusError is returned when the box answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("box returned status %d", e.Code)
	}
	return fmt.Sprintf("box returned status %d: %s", e.Code, e.Body)
}

// HTTPProbe queries the box's local HTTP API:
//
//	GET {base}/free-space -> FreeSpace JSON
//	GET {base}/connection -> {"connected": bool}
type HTTPProbe struct {
	baseURL string
	client  *http.Client
	retry   *RetryPolicy
}

// NewHTTP creates an HTTP probe. A nil retry policy means a single attempt.
func NewHTTP(baseURL string, timeout time.Duration, retry *RetryPolicy) *HTTPProbe {
	if retry == nil {
		retry = &RetryPolicy{MaxAttempts: 1, Multiplier: 1}
	}
	return &HTTPProbe{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		retry:   retry,
	}
}

func (p *HTTPProbe) getJSON(ctx context.Context, path string, out any) error {
	return p.retry.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
		return nil
	})
}

func (p *HTTPProbe) FetchFreeSpace(ctx context.Context) (*types.FreeSpace, error) {
	var fs types.FreeSpace
	if err := p.getJSON(ctx, "/free-space", &fs); err != nil {
		return nil, fmt.Errorf("fetch free space: %w", err)
	}
	return &fs, nil
}

func (p *HTTPProbe) CheckConnectivity(ctx context.Context) (bool, error) {
	var body struct {
		Connected *bool `json:"connected"`
	}
	if err := p.getJSON(ctx, "/connection", &body); err != nil {
		return false, fmt.Errorf("check connection: %w", err)
	}
	if body.Connected == nil {
		return false, fmt.Errorf("check connection: response missing connected field")
	}
	return *body.Connected, nil
}

// Funcs adapts plain functions to the probe interface. A nil function fails
// with ErrNotSupported.
type Funcs struct {
	FreeSpace    func(ctx context.Context) (*types.FreeSpace, error)
	Connectivity func(ctx context.Context) (bool, error)
}

// ErrNotSupported is returned by Funcs when the corresponding function is nil.
var ErrNotSupported = errors.New("probe operation not supported")

func (f Funcs) FetchFreeSpace(ctx context.Context) (*types.FreeSpace, error) {
	if f.FreeSpace == nil {
		return nil, ErrNotSupported
	}
	return f.FreeSpace(ctx)
}

func (f Funcs) CheckConnectivity(ctx context.Context) (bool, error) {
	if f.Connectivity == nil {
		return false, ErrNotSupported
	}
	return f.Connectivity(ctx)
}
