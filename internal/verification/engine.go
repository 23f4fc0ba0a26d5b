/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package verification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kentakayama/role-verifier/internal/audit"
	"github.com/kentakayama/role-verifier/internal/domain"
	"github.com/kentakayama/role-verifier/internal/domain/model"
	"github.com/kentakayama/role-verifier/internal/domain/service"
	"github.com/kentakayama/role-verifier/internal/session"
)

const (
	DefaultPlatformTimeout = 10 * time.Second

	tracerName = "github.com/kentakayama/role-verifier/internal/verification"
)

// Audit event titles as they appear in the operator channel.
const (
	TitleAltBlocked   = "Alt Account Blocked"
	TitleProxyBlocked = "VPN/Proxy Blocked"
	TitleGranted      = "Verification Successful"
	TitleGrantError   = "Verification Error"
)

// Options wires an Engine. Every collaborator except Detector is required.
type Options struct {
	Sessions        *session.Table
	Reputation      service.ReputationRepository
	Validator       service.ChallengeValidator
	Detector        service.ProxyDetector
	Platform        service.Platform
	Audit           service.AuditSink
	RoleID          string
	Link            func(token string) string
	PlatformTimeout time.Duration
	HashSalt        []byte
	Logger          *log.Logger
}

// Engine drives verification sessions from issue to a terminal state.
type Engine struct {
	sessions        *session.Table
	reputation      service.ReputationRepository
	validator       service.ChallengeValidator
	detector        service.ProxyDetector
	platform        service.Platform
	audit           service.AuditSink
	roleID          string
	link            func(token string) string
	platformTimeout time.Duration
	hashSalt        []byte
	tracer          trace.Tracer
	logger          *log.Logger
}

func New(opts Options) (*Engine, error) {
	var errs []error
	if opts.Sessions == nil {
		errs = append(errs, errors.New("session table is required"))
	}
	if opts.Reputation == nil {
		errs = append(errs, errors.New("reputation repository is required"))
	}
	if opts.Validator == nil {
		errs = append(errs, errors.New("challenge validator is required"))
	}
	if opts.Platform == nil {
		errs = append(errs, errors.New("platform is required"))
	}
	if opts.Audit == nil {
		errs = append(errs, errors.New("audit sink is required"))
	}
	if opts.RoleID == "" {
		errs = append(errs, errors.New("role ID is required"))
	}
	if opts.Link == nil {
		errs = append(errs, errors.New("link builder is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("verification engine: %w", err)
	}

	timeout := opts.PlatformTimeout
	if timeout <= 0 {
		timeout = DefaultPlatformTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Engine{
		sessions:        opts.Sessions,
		reputation:      opts.Reputation,
		validator:       opts.Validator,
		detector:        opts.Detector,
		platform:        opts.Platform,
		audit:           opts.Audit,
		roleID:          opts.RoleID,
		link:            opts.Link,
		platformTimeout: timeout,
		hashSalt:        opts.HashSalt,
		tracer:          otel.Tracer(tracerName),
		logger:          logger,
	}, nil
}

// Issue creates a session for identityID and delivers its link privately.
// An identity that already holds the role gets domain.ErrAlreadyVerified and
// no session. When the link cannot be delivered the session is revoked.
func (e *Engine) Issue(ctx context.Context, identityID, communityID string) (*Issued, error) {
	ctx, span := e.tracer.Start(ctx, "verification.Issue")
	defer span.End()

	pctx, cancel := context.WithTimeout(ctx, e.platformTimeout)
	defer cancel()

	has, err := e.platform.HasRole(pctx, communityID, identityID, e.roleID)
	if err != nil {
		span.SetStatus(codes.Error, "role lookup failed")
		return nil, fmt.Errorf("%w: role lookup: %v", domain.ErrUpstreamUnavailable, err)
	}
	if has {
		return nil, domain.ErrAlreadyVerified
	}

	s, err := e.sessions.Issue(identityID, communityID)
	if err != nil {
		span.SetStatus(codes.Error, "issue failed")
		return nil, fmt.Errorf("issue session: %w", err)
	}
	link := e.link(s.Token)

	desc := fmt.Sprintf("Click the link below to verify.\n\nThis link expires in %d minutes.", int(e.sessions.TTL().Minutes()))
	msg := model.DirectMessage{Title: "Verification Link", Description: desc, Link: link}
	if err := e.platform.SendDirect(pctx, identityID, msg); err != nil {
		e.sessions.Revoke(s.Token)
		e.logger.Printf("issue: direct message to %s failed, session %s revoked: %v",
			identityID, session.Abbrev(s.Token), err)
		span.SetStatus(codes.Error, "direct message failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrDirectMessageFailed, err)
	}

	e.logger.Printf("issue: session %s for identity %s expires at %s",
		session.Abbrev(s.Token), identityID, s.ExpiresAt.Format(time.RFC3339))
	return &Issued{Token: s.Token, Link: link, ExpiresAt: s.ExpiresAt}, nil
}

// Peek reports whether token names a live session without consuming it.
func (e *Engine) Peek(token string) bool {
	_, ok := e.sessions.Peek(token)
	return ok
}

// attempt is the working state of one redemption.
type attempt struct {
	session  *model.VerificationSession
	address  string
	response string
	masked   string
	evidence model.AbuseCheckResult
}

type stage struct {
	name string
	run  func(context.Context, *attempt) *Outcome
}

// Redeem runs the redemption pipeline for req. The token is consumed before
// any check runs, so whatever the outcome it cannot be redeemed again.
func (e *Engine) Redeem(ctx context.Context, req RedeemRequest) Outcome {
	ctx, span := e.tracer.Start(ctx, "verification.Redeem")
	defer span.End()

	s, ok := e.sessions.Redeem(req.Token)
	if !ok {
		span.SetAttributes(attribute.String("verification.state", string(StateExpired)))
		e.logger.Printf("redeem: token %s invalid or expired", session.Abbrev(req.Token))
		return Outcome{State: StateExpired, Err: domain.ErrExpiredOrUnknownToken, Address: req.Address}
	}

	a := &attempt{
		session:  s,
		address:  req.Address,
		response: req.ChallengeResponse,
		masked:   audit.MaskAddress(req.Address),
	}

	stages := []stage{
		{"challenge", e.checkChallenge},
		{"address-conflict", e.checkConflict},
		{"anonymizing-network", e.checkNetwork},
		{"grant", e.grant},
	}
	for _, st := range stages {
		sctx, sspan := e.tracer.Start(ctx, "verification."+st.name)
		out := st.run(sctx, a)
		if out != nil {
			sspan.SetStatus(codes.Error, string(out.State))
			sspan.End()
			return e.finish(span, a, *out)
		}
		sspan.End()
	}

	e.complete(ctx, a)
	return e.finish(span, a, Outcome{State: StateGranted})
}

func (e *Engine) checkChallenge(ctx context.Context, a *attempt) *Outcome {
	res, err := e.validator.Validate(ctx, a.response, a.address)
	a.evidence.Challenge = res
	if err != nil {
		return &Outcome{State: StateChallengeFailed, Err: domain.ErrChallengeRejected, Cause: err}
	}
	if !res.Verified {
		return &Outcome{
			State: StateChallengeFailed,
			Err:   domain.ErrChallengeRejected,
			Cause: fmt.Errorf("challenge rejected: error-codes=%v", res.ErrorCodes),
		}
	}
	return nil
}

func (e *Engine) checkConflict(ctx context.Context, a *attempt) *Outcome {
	rec, err := e.reputation.Lookup(ctx, a.address)
	if err != nil {
		return &Outcome{
			State: StateSystemError,
			Err:   domain.ErrUpstreamUnavailable,
			Cause: fmt.Errorf("reputation lookup: %w", err),
		}
	}
	if rec == nil || rec.IdentityID == a.session.IdentityID {
		return nil
	}

	e.audit.Emit(TitleAltBlocked, "Address matched an identity that is already verified.", model.SeverityBlock,
		model.AuditField{Name: "User", Value: a.session.IdentityID, Inline: true, Identity: true},
		model.AuditField{Name: "Linked To", Value: rec.IdentityID, Inline: true, Identity: true},
		e.addressField(a),
		e.fingerprintField(a),
	)
	return &Outcome{
		State: StateConflictRejected,
		Err:   domain.ErrAddressConflict,
		Cause: fmt.Errorf("address bound to identity %s", rec.IdentityID),
	}
}

// checkNetwork fails open: a detector error lets the attempt continue.
func (e *Engine) checkNetwork(ctx context.Context, a *attempt) *Outcome {
	if e.detector == nil {
		return nil
	}
	res, err := e.detector.Detect(ctx, a.address)
	if err != nil {
		e.logger.Printf("redeem: anonymizing-network check unavailable for %s, continuing: %v", a.masked, err)
		return nil
	}
	a.evidence.Proxy = res
	if !res.Detected {
		return nil
	}

	fields := []model.AuditField{
		{Name: "User", Value: a.session.IdentityID, Inline: true, Identity: true},
		e.addressField(a),
		e.fingerprintField(a),
	}
	if res.Type != "" {
		fields = append(fields, model.AuditField{Name: "Type", Value: res.Type, Inline: true})
	}
	if res.Provider != "" {
		fields = append(fields, model.AuditField{Name: "Detected By", Value: res.Provider, Inline: true})
	}
	e.audit.Emit(TitleProxyBlocked, "Verification attempted through an anonymizing network.", model.SeverityWarn, fields...)
	return &Outcome{
		State: StateProxyRejected,
		Err:   domain.ErrAnonymizingNetwork,
		Cause: fmt.Errorf("anonymizing network detected: type=%q", res.Type),
	}
}

func (e *Engine) grant(ctx context.Context, a *attempt) *Outcome {
	pctx, cancel := context.WithTimeout(ctx, e.platformTimeout)
	defer cancel()

	if err := e.platform.AddRole(pctx, a.session.CommunityID, a.session.IdentityID, e.roleID); err != nil {
		e.audit.Emit(TitleGrantError, "The verified role could not be assigned.", model.SeverityError,
			model.AuditField{Name: "User", Value: a.session.IdentityID, Inline: true, Identity: true},
			model.AuditField{Name: "Error", Value: err.Error()},
		)
		return &Outcome{
			State: StateSystemError,
			Err:   domain.ErrUpstreamUnavailable,
			Cause: fmt.Errorf("add role: %w", err),
		}
	}
	return nil
}

// complete runs after the role is attached. Nothing here changes the outcome.
func (e *Engine) complete(ctx context.Context, a *attempt) {
	persisted := "yes"
	if err := e.reputation.Record(ctx, a.address, a.session.IdentityID); err != nil {
		persisted = "no"
		e.logger.Printf("redeem: ERROR role granted to %s but address binding was not persisted: %v",
			a.session.IdentityID, err)
	}

	e.audit.Emit(TitleGranted, "Role assigned.", model.SeverityInfo,
		model.AuditField{Name: "User", Value: a.session.IdentityID, Inline: true, Identity: true},
		e.addressField(a),
		e.fingerprintField(a),
		model.AuditField{Name: "Binding Persisted", Value: persisted, Inline: true},
	)

	pctx, cancel := context.WithTimeout(ctx, e.platformTimeout)
	defer cancel()
	msg := model.DirectMessage{Text: "You have been successfully verified!"}
	if err := e.platform.SendDirect(pctx, a.session.IdentityID, msg); err != nil {
		e.logger.Printf("redeem: success notice to %s not delivered: %v", a.session.IdentityID, err)
	}
}

func (e *Engine) finish(span trace.Span, a *attempt, out Outcome) Outcome {
	out.Session = a.session
	out.Address = a.address
	out.Evidence = a.evidence

	span.SetAttributes(attribute.String("verification.state", string(out.State)))
	if out.Cause != nil {
		e.logger.Printf("redeem: session %s identity %s from %s -> %s: %v",
			session.Abbrev(a.session.Token), a.session.IdentityID, a.masked, out.State, out.Cause)
	} else {
		e.logger.Printf("redeem: session %s identity %s from %s -> %s",
			session.Abbrev(a.session.Token), a.session.IdentityID, a.masked, out.State)
	}
	return out
}

func (e *Engine) addressField(a *attempt) model.AuditField {
	return model.AuditField{Name: "IP Address", Value: a.masked, Inline: true, Sensitive: true}
}

func (e *Engine) fingerprintField(a *attempt) model.AuditField {
	return model.AuditField{Name: "Fingerprint", Value: audit.Fingerprint(a.address, e.hashSalt), Inline: true}
}
