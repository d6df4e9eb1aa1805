package cluster

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"time"
)

// StatusSource reports the cluster's current ring ownership.
type StatusSource interface {
	RingStatus(ctx context.Context) (RingSnapshot, error)
}

// HTTPStatus reads ring stats from a node's HTTP stats endpoint, e.g.
// http://localhost:8098/stats.
type HTTPStatus struct {
	URL    string
	Client *http.Client
}

// NewHTTPStatus creates an HTTP status source with a bounded request timeout.
func NewHTTPStatus(url string, timeout time.Duration) *HTTPStatus {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPStatus{URL: url, Client: &http.Client{Timeout: timeout}}
}

// RingStatus fetches and parses the stats document.
func (h *HTTPStatus) RingStatus(ctx context.Context) (RingSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return RingSnapshot{}, statusError("http_status", err)
	}
	req.Header.Set("Accept", "application/json")

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return RingSnapshot{}, statusError("http_status", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return RingSnapshot{}, statusError("http_status", err)
	}
	if resp.StatusCode != http.StatusOK {
		return RingSnapshot{}, statusError("http_status",
			fmt.Errorf("GET %s: %s: %s", h.URL, resp.Status, bytes.TrimSpace(body)))
	}
	return ParseStats(body)
}

// CommandStatus runs a helper command, such as bin/get_stats.sh, that prints
// the stats document on stdout.
type CommandStatus struct {
	Path string
	Args []string
	Dir  string
}

// RingStatus runs the command and parses its output.
func (c *CommandStatus) RingStatus(ctx context.Context) (RingSnapshot, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return RingSnapshot{}, statusError("command_status",
			fmt.Errorf("%s: %w: %s", c.Path, err, bytes.TrimSpace(stderr.Bytes())))
	}
	return ParseStats(out)
}
