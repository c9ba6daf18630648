// Package device is the HTTP session against the antenna tracker: trajectory
// upload, discrete motion commands, and a short-timeout status poll. Every
// call is a single attempt; retry policy belongs to callers, who know how
// stale a result they can tolerate.
package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Commands the tracker firmware accepts. Anything else is rejected here,
// before a request is built.
const (
	CommandHome = "HOME"
	CommandStop = "STOP"
)

// DeviceError kinds. Rejected means the device answered and said no;
// Unreachable means the request never completed.
const (
	KindRejected    = "rejected"
	KindUnreachable = "unreachable"
)

// ErrOffline is the single liveness outcome for status polls: connection
// refused, timeout, HTTP error, and undecodable body all normalize to it.
// Callers needing the cause can unwrap.
var ErrOffline = errors.New("device offline")

// DeviceError reports a failed upload or command.
type DeviceError struct {
	Kind       string
	Op         string
	StatusCode int // set when Kind is KindRejected
	Detail     string
}

func (e *DeviceError) Error() string {
	if e.Kind == KindRejected {
		return fmt.Sprintf("device %s rejected: status %d: %s", e.Op, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("device %s unreachable: %s", e.Op, e.Detail)
}

// Ack is a successful device response, passed through verbatim.
type Ack struct {
	StatusCode int
	Body       string
}

// StatusReport is the device-owned status JSON. Azimuth and elevation are
// pointers: the firmware omits them when the mount is not tracking, and
// absent is not the same as zero.
type StatusReport struct {
	State     string   `json:"status"`
	EpochTime int64    `json:"epoch_time"`
	Azimuth   *float64 `json:"az,omitempty"`
	Elevation *float64 `json:"el,omitempty"`
}

// Default per-operation timeouts. Status polls run on a shorter timeout
// because the UI issues them continuously for liveness.
const (
	DefaultUploadTimeout = 5 * time.Second
	DefaultStatusTimeout = 2 * time.Second
)

// maxResponseBytes bounds device replies. The firmware answers with a short
// line or a small JSON object; anything larger is not our device.
const maxResponseBytes = 64 * 1024

type commandPayload struct {
	Cmd string `json:"cmd"`
}

// Client talks to one tracker device. Safe for concurrent use; overlapping
// uploads are last-write-wins because the device is the authority on what
// it is doing.
type Client struct {
	baseURL       string
	uploadTimeout time.Duration
	statusTimeout time.Duration
	httpClient    *http.Client
}

// NewClient creates a Client for the device at baseURL. Non-positive
// timeouts select the defaults.
func NewClient(baseURL string, uploadTimeout, statusTimeout time.Duration) *Client {
	if uploadTimeout <= 0 {
		uploadTimeout = DefaultUploadTimeout
	}
	if statusTimeout <= 0 {
		statusTimeout = DefaultStatusTimeout
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		uploadTimeout: uploadTimeout,
		statusTimeout: statusTimeout,
		httpClient:    &http.Client{},
	}
}

// BaseURL returns the configured device base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Upload sends an encoded trajectory to the device as a text/plain body.
// A 2xx answer is an Ack; anything else is a *DeviceError.
func (c *Client) Upload(ctx context.Context, wire string) (*Ack, error) {
	if wire == "" {
		return nil, fmt.Errorf("refusing to upload an empty trajectory")
	}

	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload_trajectory", strings.NewReader(wire))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	return c.do(req, "upload")
}

// Command sends a discrete command from the closed HOME/STOP set. Unknown
// commands are rejected without any network I/O.
func (c *Client) Command(ctx context.Context, cmd string) (*Ack, error) {
	if cmd != CommandHome && cmd != CommandStop {
		return nil, fmt.Errorf("invalid device command %q", cmd)
	}

	body, err := json.Marshal(commandPayload{Cmd: cmd})
	if err != nil {
		return nil, fmt.Errorf("encoding command: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/command", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, "command")
}

// Status polls the device on the short timeout. Every failure mode wraps
// ErrOffline; a decoded report is passed through unmodified.
func (c *Client) Status(ctx context.Context) (*StatusReport, error) {
	ctx, cancel := context.WithTimeout(ctx, c.statusTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOffline, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOffline, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrOffline, resp.StatusCode)
	}

	var report StatusReport
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&report); err != nil {
		return nil, fmt.Errorf("%w: undecodable status body: %v", ErrOffline, err)
	}
	return &report, nil
}

// do executes an upload or command request and applies the shared error
// taxonomy: transport failure → Unreachable, non-2xx → Rejected.
func (c *Client) do(req *http.Request, op string) (*Ack, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &DeviceError{Kind: KindUnreachable, Op: op, Detail: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &DeviceError{Kind: KindUnreachable, Op: op, Detail: fmt.Sprintf("reading response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &DeviceError{
			Kind:       KindRejected,
			Op:         op,
			StatusCode: resp.StatusCode,
			Detail:     strings.TrimSpace(string(body)),
		}
	}

	return &Ack{StatusCode: resp.StatusCode, Body: string(body)}, nil
}
