package domain

import "errors"

// Redemption and issue outcomes. The first four are shown to the browser in plain words.
var (
	ErrExpiredOrUnknownToken = errors.New("verification link invalid or expired")
	ErrChallengeRejected     = errors.New("human challenge rejected")
	ErrAddressConflict       = errors.New("address already linked to another identity")
	ErrAnonymizingNetwork    = errors.New("anonymizing network detected")
	ErrUpstreamUnavailable   = errors.New("upstream platform unavailable")
	ErrNotificationFailure   = errors.New("notification failed")
	ErrValidatorUnavailable  = errors.New("challenge validator unreachable")
	ErrAlreadyVerified       = errors.New("identity already holds the verified role")
	ErrDirectMessageFailed   = errors.New("direct message could not be delivered")
)
