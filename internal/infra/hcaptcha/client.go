/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package hcaptcha

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
	"github.com/kentakayama/role-verifier/internal/domain"
	"github.com/kentakayama/role-verifier/internal/domain/model"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultVerifyURL = "https://api.hcaptcha.com/siteverify"
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "role-verifier/hcaptcha-client"
	maxResponseBytes = 1 << 20

	// FormField is the form key the challenge widget submits its response under.
	FormField = "h-captcha-response"
)

// Client validates challenge responses against the hCaptcha siteverify API.
type Client struct {
	endpoint   *url.URL
	httpClient *http.Client
	secret     string
	siteKey    string
	timeout    time.Duration
	logger     *log.Logger
}

type siteVerifyResponse struct {
	Success     bool     `json:"success"`
	ChallengeTS string   `json:"challenge_ts"`
	Hostname    string   `json:"hostname"`
	ErrorCodes  []string `json:"error-codes"`
}

func NewClient(cfg config.ChallengeConfig) (*Client, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("hcaptcha secret key is required")
	}

	raw := cfg.VerifyURL
	if raw == "" {
		raw = defaultVerifyURL
	}
	endpoint, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse hcaptcha verify URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
		secret:     cfg.SecretKey,
		siteKey:    cfg.SiteKey,
		timeout:    timeout,
		logger:     logger,
	}, nil
}

// Validate submits response to the challenge service. A missing response is
// rejected without a network call. Transport failures, non-2xx statuses and
// undecodable bodies wrap domain.ErrValidatorUnavailable.
func (c *Client) Validate(ctx context.Context, response string, remoteAddress string) (model.ChallengeResult, error) {
	result := model.ChallengeResult{Response: response}
	if strings.TrimSpace(response) == "" {
		result.ErrorCodes = []string{"missing-input-response"}
		return result, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	form := url.Values{}
	form.Set("secret", c.secret)
	form.Set("response", response)
	if c.siteKey != "" {
		form.Set("sitekey", c.siteKey)
	}
	if remoteAddress != "" {
		form.Set("remoteip", remoteAddress)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return result, fmt.Errorf("%w: create request: %v", domain.ErrValidatorUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return result, fmt.Errorf("%w: perform request: %v", domain.ErrValidatorUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return result, fmt.Errorf("%w: read response body: %v", domain.ErrValidatorUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result, fmt.Errorf("%w: unexpected status %s: %s", domain.ErrValidatorUnavailable, resp.Status, bytes.TrimSpace(body))
	}

	var decoded siteVerifyResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return result, fmt.Errorf("%w: decode response: %v", domain.ErrValidatorUnavailable, err)
	}

	result.Verified = decoded.Success
	result.Hostname = decoded.Hostname
	result.ErrorCodes = decoded.ErrorCodes
	return result, nil
}
