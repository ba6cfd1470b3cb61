// Package client talks to the research backend over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mikeboe/research-console/pkg/stream"
)

// maxErrorBody caps how much of a failed response is kept for the message.
const maxErrorBody = 64 << 10

type Client struct {
	BaseURL  string
	HTTP     *http.Client
	Logger   *slog.Logger
	ReadSize int
}

// ResearchRequest is the body of POST /research.
type ResearchRequest struct {
	Topic string `json:"topic"`
	Model string `json:"model"`
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// New builds a client. The connect timeout bounds dialing only; the
// stream itself may stay open for as long as the backend works.
func New(baseURL string, connectTimeout time.Duration) *Client {
	dialer := &net.Dialer{Timeout: connectTimeout}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext

	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Transport: transport},
		Logger:  slog.Default(),
	}
}

// Research submits a topic and feeds every decoded event to fn until the
// stream closes or fn returns stream.ErrStop.
func (c *Client) Research(ctx context.Context, req ResearchRequest, fn func(stream.Event) error) (stream.Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return stream.Result{}, fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/research", bytes.NewReader(body))
	if err != nil {
		return stream.Result{}, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	c.logger().Info("Submitting research", "url", httpReq.URL.String(), "topic", req.Topic, "model", req.Model)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return stream.Result{}, &TransportError{Op: "connect", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger().Error("Backend rejected research request", "status", resp.StatusCode, "body", string(data))
		return stream.Result{}, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	res, err := stream.ReadSize(ctx, resp.Body, c.ReadSize, c.logger(), fn)
	if err != nil {
		return res, &TransportError{Op: "read", Err: err}
	}
	if res.Bytes == 0 {
		return res, ErrStreamEmpty
	}

	c.logger().Info("Research stream closed", "bytes", res.Bytes, "events", res.Events, "skipped", res.Skipped, "terminal", res.Terminal)
	return res, nil
}

// Health queries the backend liveness endpoint.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: "connect", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var status HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	return &status, nil
}

func (c *Client) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}
