/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package hcaptcha

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
	"github.com/kentakayama/role-verifier/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClientForTest(t *testing.T, url string, timeout time.Duration) *Client {
	t.Helper()
	c, err := NewClient(config.ChallengeConfig{
		SiteKey:   "site-key",
		SecretKey: "secret-key",
		VerifyURL: url,
		Timeout:   timeout,
		Logger:    log.New(io.Discard, "", 0),
	})
	require.NoError(t, err)
	return c
}

func TestValidate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "secret-key", r.PostForm.Get("secret"))
		assert.Equal(t, "resp-token", r.PostForm.Get("response"))
		assert.Equal(t, "site-key", r.PostForm.Get("sitekey"))
		assert.Equal(t, "203.0.113.7", r.PostForm.Get("remoteip"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"hostname":"verify.example.com"}`))
	}))
	defer srv.Close()

	res, err := newClientForTest(t, srv.URL, time.Second).Validate(context.Background(), "resp-token", "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Equal(t, "verify.example.com", res.Hostname)
	assert.Equal(t, "resp-token", res.Response)
}

func TestValidate_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error-codes":["invalid-input-response"]}`))
	}))
	defer srv.Close()

	res, err := newClientForTest(t, srv.URL, time.Second).Validate(context.Background(), "bad", "")
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.Equal(t, []string{"invalid-input-response"}, res.ErrorCodes)
}

func TestValidate_EmptyResponseSkipsNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	res, err := newClientForTest(t, srv.URL, time.Second).Validate(context.Background(), "  ", "")
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.Equal(t, int32(0), hits.Load())
}

func TestValidate_Unavailable(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusBadGateway)
		}))
		defer srv.Close()

		res, err := newClientForTest(t, srv.URL, time.Second).Validate(context.Background(), "tok", "")
		assert.ErrorIs(t, err, domain.ErrValidatorUnavailable)
		assert.False(t, res.Verified)
	})

	t.Run("malformed body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		}))
		defer srv.Close()

		_, err := newClientForTest(t, srv.URL, time.Second).Validate(context.Background(), "tok", "")
		assert.ErrorIs(t, err, domain.ErrValidatorUnavailable)
	})

	t.Run("timeout", func(t *testing.T) {
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
		_, err := newClientForTest(t, srv.URL, 50*time.Millisecond).Validate(context.Background(), "tok", "")
		assert.ErrorIs(t, err, domain.ErrValidatorUnavailable)
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := newClientForTest(t, url, time.Second).Validate(context.Background(), "tok", "")
		assert.ErrorIs(t, err, domain.ErrValidatorUnavailable)
	})
}

func TestNewClient_RequiresSecret(t *testing.T) {
	_, err := NewClient(config.ChallengeConfig{})
	assert.Error(t, err)
}
