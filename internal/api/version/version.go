// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package version carries the date-based API version a client asked for.
// Clients send it in the InstanceHub-Version header; requests without the
// header get the latest version, which is echoed back on every response.
package version

import "context"

const (
	// Version20261001 is the initial API version.
	Version20261001 = "2026-10-01"

	// Latest is the version used when a request does not name one.
	Latest = Version20261001

	// Header carries the API version on requests and responses.
	Header = "InstanceHub-Version"
)

var supported = map[string]bool{
	Version20261001: true,
}

// Supported reports whether v is a known API version.
func Supported(v string) bool {
	return supported[v]
}

type contextKey struct{}

// FromContext returns the API version stored in ctx, or Latest.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(contextKey{}).(string); ok && v != "" {
		return v
	}
	return Latest
}

// WithContext returns a copy of ctx carrying version v.
func WithContext(ctx context.Context, v string) context.Context {
	return context.WithValue(ctx, contextKey{}, v)
}
