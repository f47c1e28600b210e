// Package httputil provides HTTP handler utilities: JSON encoding/decoding,
// request parsing, and the mapping from service errors to status codes.
package httputil
