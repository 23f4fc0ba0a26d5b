/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package proxycheck

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kentakayama/role-verifier/internal/config"
	"github.com/kentakayama/role-verifier/internal/domain/model"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultBaseURL   = "https://proxycheck.io/v2/"
	defaultUserAgent = "role-verifier/proxycheck-client"
	maxResponseBytes = 1 << 20
	providerName     = "proxycheck.io"
)

// Client asks proxycheck.io whether an address is a VPN or proxy exit.
// Without an API key it is disabled and reports every address as clean.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	key        string
	timeout    time.Duration
	logger     *log.Logger
}

type addressInfo struct {
	Proxy    string `json:"proxy"`
	Type     string `json:"type"`
	Provider string `json:"provider"`
}

func NewClient(cfg config.ProxyCheckConfig) (*Client, error) {
	raw := cfg.BaseURL
	if raw == "" {
		raw = defaultBaseURL
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse proxycheck URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 || timeout > config.MaxProxyCheckTimeout {
		timeout = config.MaxProxyCheckTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Key == "" {
		logger.Printf("proxycheck: no API key configured, anonymizing-network detection disabled")
	}

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		key:     cfg.Key,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Enabled reports whether lookups are performed at all.
func (c *Client) Enabled() bool {
	return c.key != ""
}

// Detect looks address up. Any returned error means the signal is unavailable;
// the result then reports Detected == false.
func (c *Client) Detect(ctx context.Context, address string) (model.ProxyResult, error) {
	result := model.ProxyResult{Address: address, Provider: providerName}
	if !c.Enabled() || address == "" {
		return result, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// "./" keeps IPv6 literals such as fe80::1 from parsing as a scheme
	target, err := c.baseURL.Parse("./" + url.PathEscape(address))
	if err != nil {
		return result, fmt.Errorf("build proxycheck URL: %w", err)
	}
	query := target.Query()
	query.Set("key", c.key)
	query.Set("vpn", "1")
	query.Set("asn", "1")
	target.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return result, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return result, fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return result, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result, fmt.Errorf("unexpected status %s: %s", resp.Status, bytes.TrimSpace(body))
	}

	info, err := decode(body, address)
	if err != nil {
		return result, err
	}

	result.Detected = strings.EqualFold(info.Proxy, "yes")
	result.Type = info.Type
	return result, nil
}

// decode extracts the entry for address from a response shaped like
// {"status": "ok", "<address>": {"proxy": "yes", "type": "VPN"}}.
func decode(body []byte, address string) (*addressInfo, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var status string
	if raw, ok := envelope["status"]; ok {
		if err := json.Unmarshal(raw, &status); err != nil {
			return nil, fmt.Errorf("decode status: %w", err)
		}
	}
	if status != "ok" && status != "warning" {
		var message string
		if raw, ok := envelope["message"]; ok {
			_ = json.Unmarshal(raw, &message)
		}
		return nil, fmt.Errorf("proxycheck status %q: %s", status, message)
	}

	raw, ok := envelope[address]
	if !ok {
		return nil, fmt.Errorf("response has no entry for %s", address)
	}
	var info addressInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("decode address entry: %w", err)
	}
	return &info, nil
}
