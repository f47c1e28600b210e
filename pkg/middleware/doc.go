// Package middleware provides the HTTP middleware stack: request IDs,
// structured request logging, panic recovery, organization context, and
// metrics instrumentation.
package middleware
