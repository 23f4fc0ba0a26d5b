/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package server

import (
	"bytes"
	"errors"
	"log"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kentakayama/role-verifier/internal/domain"
	"github.com/kentakayama/role-verifier/internal/infra/hcaptcha"
	"github.com/kentakayama/role-verifier/internal/server/views"
	"github.com/kentakayama/role-verifier/internal/session"
	"github.com/kentakayama/role-verifier/internal/verification"
	"github.com/kentakayama/role-verifier/resources"
)

const (
	maxRequestBodyBytes = 64 << 10 // a challenge response is a few KiB at most

	msgInvalidLink     = "Invalid or expired link."
	msgChallengeFailed = "Captcha failed. Please request a new verification link and try again."
	msgAddressConflict = "Verification Failed: This IP address is already linked to another account."
	msgAnonymizer      = "VPN/Proxy Detected. Please disable it and try again."
	msgSystemError     = "System Error: Could not assign role."
)

type handler struct {
	verifier       Verifier
	siteKey        string
	trustForwarded bool
	logger         *log.Logger
}

type responseSpec struct {
	status      int
	body        []byte
	contentType string
}

func newHandler(verifier Verifier, siteKey string, trustForwarded bool, logger *log.Logger) *handler {
	return &handler{
		verifier:       verifier,
		siteKey:        siteKey,
		trustForwarded: trustForwarded,
		logger:         logger,
	}
}

func (h *handler) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.healthz)
	r.Get(views.StylesheetPath, h.stylesheet)
	r.Get("/verify/{token}", h.showChallenge)
	r.Post("/verify/{token}", h.submitChallenge)
	return r
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	h.writeResponse(w, responseSpec{
		status:      http.StatusOK,
		body:        []byte("ok"),
		contentType: "text/plain; charset=utf-8",
	})
}

func (h *handler) stylesheet(w http.ResponseWriter, r *http.Request) {
	h.writeResponse(w, responseSpec{
		status:      http.StatusOK,
		body:        resources.Stylesheet,
		contentType: "text/css; charset=utf-8",
	})
}

func (h *handler) showChallenge(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if !h.verifier.Peek(token) {
		h.writeNotFound(w)
		return
	}
	h.renderPage(w, r, views.PageData{SiteKey: h.siteKey})
}

func (h *handler) submitChallenge(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	reqID := chimiddleware.GetReqID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := r.ParseForm(); err != nil {
		// the attempt still proceeds and fails the challenge
		h.logger.Printf("[%s] failed parsing form for %s: %v", reqID, session.Abbrev(token), err)
	}

	out := h.verifier.Redeem(r.Context(), verification.RedeemRequest{
		Token:             token,
		ChallengeResponse: r.PostFormValue(hcaptcha.FormField),
		Address:           ClientAddress(r, h.trustForwarded),
	})

	if out.State == verification.StateExpired {
		h.writeNotFound(w)
		return
	}
	if out.Granted() {
		h.renderPage(w, r, views.PageData{Success: true})
		return
	}
	h.renderPage(w, r, views.PageData{Error: userMessage(out.Err)})
}

// userMessage maps a redemption error to the text shown in the browser.
func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrExpiredOrUnknownToken):
		return msgInvalidLink
	case errors.Is(err, domain.ErrChallengeRejected):
		return msgChallengeFailed
	case errors.Is(err, domain.ErrAddressConflict):
		return msgAddressConflict
	case errors.Is(err, domain.ErrAnonymizingNetwork):
		return msgAnonymizer
	default:
		return msgSystemError
	}
}

func (h *handler) renderPage(w http.ResponseWriter, r *http.Request, data views.PageData) {
	var buf bytes.Buffer
	if err := views.Page(data).Render(r.Context(), &buf); err != nil {
		h.logger.Printf("[%s] failed rendering page: %v", chimiddleware.GetReqID(r.Context()), err)
		h.writeResponse(w, responseSpec{status: http.StatusInternalServerError})
		return
	}
	h.writeResponse(w, responseSpec{
		status:      http.StatusOK,
		body:        buf.Bytes(),
		contentType: "text/html; charset=utf-8",
	})
}

func (h *handler) writeNotFound(w http.ResponseWriter) {
	h.writeResponse(w, responseSpec{
		status:      http.StatusNotFound,
		body:        []byte(msgInvalidLink),
		contentType: "text/plain; charset=utf-8",
	})
}

func (h *handler) writeResponse(w http.ResponseWriter, spec responseSpec) {
	w.Header().Set("Server", "role-verifier")

	if len(spec.body) > 0 {
		for k, v := range defaultHeaders {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", spec.contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(spec.body)))
		w.WriteHeader(spec.status)
		if _, err := w.Write(spec.body); err != nil {
			h.logger.Printf("failed writing response body: %v", err)
		}
		return
	}

	w.WriteHeader(spec.status)
}

const contentSecurityPolicy = "default-src 'none'; style-src 'self' https://hcaptcha.com https://*.hcaptcha.com; " +
	"script-src https://hcaptcha.com https://*.hcaptcha.com; frame-src https://hcaptcha.com https://*.hcaptcha.com; " +
	"connect-src https://hcaptcha.com https://*.hcaptcha.com; img-src 'self' data:; form-action 'self'; base-uri 'none'"

var defaultHeaders = map[string]string{
	"Cache-Control":           "no-store",
	"X-Content-Type-Options":  "nosniff",
	"X-Frame-Options":         "DENY",
	"Content-Security-Policy": contentSecurityPolicy,
	"Referrer-Policy":         "no-referrer",
}

// ClientAddress resolves the caller's network address. With trustForwarded
// the first X-Forwarded-For entry wins over the transport peer.
func ClientAddress(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if addr, ok := normalizeAddress(strings.TrimSpace(first)); ok {
				return addr
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if addr, ok := normalizeAddress(host); ok {
		return addr
	}
	return host
}

// normalizeAddress accepts a bare address or address:port and returns the
// canonical text form, with IPv4-mapped IPv6 unmapped.
func normalizeAddress(s string) (string, bool) {
	if ip, err := netip.ParseAddr(s); err == nil {
		return ip.Unmap().WithZone("").String(), true
	}
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap().WithZone("").String(), true
	}
	return "", false
}
