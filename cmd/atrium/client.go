// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	atriumerr "github.com/atrium-host/atrium/pkg/errors"
)

// defaultHTTPClient is the package-level HTTP client used by host
// commands. Overridden in tests via httptest.
var defaultHTTPClient = &http.Client{
	Timeout: 5 * time.Second,
}

// hostClient provides HTTP access to a running atrium host.
type hostClient struct {
	baseURL string
	http    *http.Client
}

// newHostClient creates a client targeting the given host:port address.
func newHostClient(addr string) *hostClient {
	return &hostClient{
		baseURL: "http://" + addr,
		http:    defaultHTTPClient,
	}
}

// getJSON fetches path from the host and decodes the JSON body into out.
// A refused connection maps to CodeCLIHostNotRunning so callers can
// print a hint instead of a transport trace.
func (c *hostClient) getJSON(path string, out any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return atriumerr.New(atriumerr.CodeCLIHostNotRunning, "host is not running (connection refused)")
		}
		return fmt.Errorf("contacting host: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("host answered %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding host response: %w", err)
	}
	return nil
}
