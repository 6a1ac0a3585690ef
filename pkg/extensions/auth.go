// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"crypto/subtle"
	"errors"
)

// ErrUnauthorized is returned when authentication fails.
// Implementations should wrap this error with additional context.
//
// Example:
//
//	if !validToken {
//	    return nil, fmt.Errorf("invalid token format: %w", extensions.ErrUnauthorized)
//	}
var ErrUnauthorized = errors.New("unauthorized")

// Well-known role names used by the gateway.
//
// RoleReviewer gates access to quarantined review content: the full text of
// a PENDING review item is only served to identities carrying this role.
const (
	RoleReviewer = "reviewer"
	RoleAdmin    = "admin"
)

// AuthInfo contains identity information returned after successful
// authentication.
//
// Required fields (always populated):
//   - UserID: Unique identifier for the user
//
// Optional fields (may be empty):
//   - Email: User's email address
//   - Roles: List of roles the user holds
//
// Example:
//
//	info := &AuthInfo{
//	    UserID: "user-123",
//	    Email:  "user@example.com",
//	    Roles:  []string{extensions.RoleReviewer},
//	}
type AuthInfo struct {
	// UserID is the unique identifier for the authenticated user.
	// This is the only required field and must never be empty.
	UserID string

	// Email is the user's email address.
	// May be empty if not provided by the auth provider.
	Email string

	// Roles contains the user's role memberships.
	// The gateway checks RoleReviewer before serving review content.
	Roles []string
}

// HasRole checks if the user has a specific role.
//
//	if !authInfo.HasRole(extensions.RoleReviewer) {
//	    return ErrUnauthorized
//	}
func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates authentication tokens and returns user identity.
//
// Implementations must be safe for concurrent use by multiple goroutines.
//
// # Local Behavior
//
// The default NopAuthProvider accepts every request as "local-user" with
// the reviewer role. This lets a single-operator deployment review its own
// queue without any authentication infrastructure.
//
// # Hosted Behavior
//
// Hosted deployments configure StaticTokenProvider (shared secret) or an
// identity-provider-backed implementation of this interface.
type AuthProvider interface {
	// Validate checks if the token is valid and returns the user's identity.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - token: The presented credential. Empty when the request carried
	//     no Authorization header.
	//
	// Returns:
	//   - *AuthInfo: User identity information if valid
	//   - error: ErrUnauthorized (or wrapped) if invalid, other errors for
	//     provider failures
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// NopAuthProvider accepts every request as a local user with full access.
//
// This is the open source default. It requires no configuration and never
// fails, which keeps the CLI and single-operator deployments friction-free.
//
// Thread-safe: This implementation has no mutable state.
type NopAuthProvider struct{}

// Validate always returns a valid local user with reviewer and admin roles.
//
// The token parameter is ignored. Any value, including the empty string,
// results in successful authentication.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{
		UserID: "local-user",
		Roles:  []string{RoleReviewer, RoleAdmin},
	}, nil
}

// StaticTokenProvider authenticates requests against a single shared secret.
//
// Comparison is constant-time. Every successful validation returns a copy
// of the same identity, so a deployment that needs to distinguish reviewers
// from one another needs a real identity provider instead.
//
// Thread-safe: All state is read-only after construction.
type StaticTokenProvider struct {
	token []byte
	info  AuthInfo
}

// NewStaticTokenProvider builds a provider for the given secret.
//
// Parameters:
//   - token: The shared secret. Must not be empty.
//   - info: Identity returned on successful validation. An empty UserID is
//     replaced with "token-user".
func NewStaticTokenProvider(token string, info AuthInfo) (*StaticTokenProvider, error) {
	if token == "" {
		return nil, errors.New("static token must not be empty")
	}
	if info.UserID == "" {
		info.UserID = "token-user"
	}
	return &StaticTokenProvider{token: []byte(token), info: info}, nil
}

// Validate compares the presented token against the configured secret.
func (p *StaticTokenProvider) Validate(_ context.Context, token string) (*AuthInfo, error) {
	if subtle.ConstantTimeCompare([]byte(token), p.token) != 1 {
		return nil, ErrUnauthorized
	}
	out := p.info
	out.Roles = append([]string(nil), p.info.Roles...)
	return &out, nil
}

// Compile-time interface compliance checks.
var (
	_ AuthProvider = (*NopAuthProvider)(nil)
	_ AuthProvider = (*StaticTokenProvider)(nil)
)
