// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines injection points for deployment-specific
// functionality.
//
// AleutianScribe is designed as a fully functional local utility that works
// without any external identity infrastructure. Deployments that need real
// authentication provide concrete implementations of these interfaces and
// inject them via ServiceOptions.
//
// # Usage (local, no auth infrastructure)
//
//	opts := extensions.DefaultOptions()
//	svc, err := gateway.New(cfg, &opts)
//
// # Usage (shared-secret deployment)
//
//	provider, err := extensions.NewStaticTokenProvider(secret, extensions.AuthInfo{
//	    UserID: "ops-reviewer",
//	    Roles:  []string{extensions.RoleReviewer},
//	})
//	opts := extensions.DefaultOptions().WithAuth(provider)
//
// # Thread Safety
//
// All interface implementations must be safe for concurrent use.
// Multiple goroutines may call methods simultaneously.
package extensions

// ServiceOptions groups the extension points for service configuration.
//
// Pass this to service constructors. Nil fields are replaced with no-op
// defaults when DefaultOptions() is called or when services check for nil.
type ServiceOptions struct {
	// AuthProvider validates authentication tokens.
	// Default: NopAuthProvider (always returns a valid local user)
	AuthProvider AuthProvider
}

// DefaultOptions returns ServiceOptions with no-op defaults.
//
// This is the configuration used by single-operator deployments:
// every request authenticates as the local user with the reviewer role.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuthProvider: &NopAuthProvider{},
	}
}

// WithAuth returns a copy of opts with the given AuthProvider.
// Useful for fluent configuration.
func (opts ServiceOptions) WithAuth(provider AuthProvider) ServiceOptions {
	opts.AuthProvider = provider
	return opts
}
