// Package errdefs holds the error taxonomy shared by the services: not
// found, unauthorized, validation, transaction failure, and timeout. Quota
// denial lives in pkg/orgs and dispatch failure in pkg/tasks next to the
// logic that raises them. Every failure surfaces to the caller with a
// distinguishable kind; pkg/httputil maps kinds to status codes.
package errdefs
