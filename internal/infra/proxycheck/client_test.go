/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package proxycheck

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kentakayama/role-verifier/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClientForTest(t *testing.T, baseURL, key string, timeout time.Duration) *Client {
	t.Helper()
	c, err := NewClient(config.ProxyCheckConfig{
		Key:     key,
		BaseURL: baseURL,
		Timeout: timeout,
		Logger:  log.New(io.Discard, "", 0),
	})
	require.NoError(t, err)
	return c
}

func TestDetect_Proxy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/203.0.113.7", r.URL.Path)
		assert.Equal(t, "api-key", r.URL.Query().Get("key"))
		assert.Equal(t, "1", r.URL.Query().Get("vpn"))
		assert.Equal(t, "1", r.URL.Query().Get("asn"))
		_, _ = w.Write([]byte(`{"status":"ok","203.0.113.7":{"proxy":"yes","type":"VPN"}}`))
	}))
	defer srv.Close()

	res, err := newClientForTest(t, srv.URL+"/v2", "api-key", time.Second).Detect(context.Background(), "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, res.Detected)
	assert.Equal(t, "VPN", res.Type)
	assert.Equal(t, "203.0.113.7", res.Address)
}

func TestDetect_Clean(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"warning","message":"near quota","2001:db8::1":{"proxy":"no","type":"Residential"}}`))
	}))
	defer srv.Close()

	res, err := newClientForTest(t, srv.URL+"/v2/", "api-key", time.Second).Detect(context.Background(), "2001:db8::1")
	require.NoError(t, err)
	assert.False(t, res.Detected)
}

func TestDetect_DisabledWithoutKey(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := newClientForTest(t, srv.URL, "", time.Second)
	assert.False(t, c.Enabled())

	res, err := c.Detect(context.Background(), "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, res.Detected)
	assert.Equal(t, int32(0), hits.Load())
}

func TestDetect_FailsOpen(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"denied": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"denied","message":"bad key"}`))
		},
		"malformed": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		},
		"missing entry": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		},
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()

			res, err := newClientForTest(t, srv.URL, "api-key", time.Second).Detect(context.Background(), "203.0.113.7")
			assert.Error(t, err)
			assert.False(t, res.Detected)
		})
	}
}

func TestDetect_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	res, err := newClientForTest(t, srv.URL, "api-key", 50*time.Millisecond).Detect(context.Background(), "203.0.113.7")
	assert.Error(t, err)
	assert.False(t, res.Detected)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNewClient_ClampsTimeout(t *testing.T) {
	c := newClientForTest(t, "", "api-key", time.Minute)
	assert.Equal(t, config.MaxProxyCheckTimeout, c.timeout)
}
