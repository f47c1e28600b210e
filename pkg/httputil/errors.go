package httputil

import (
	"net/http"

	"github.com/corpushq/corpus/pkg/errdefs"
	"github.com/corpushq/corpus/pkg/lease"
	"github.com/corpushq/corpus/pkg/orgs"
	"github.com/corpushq/corpus/pkg/tasks"
)

// WriteServiceError maps a service-layer error to its HTTP status.
//
// Every distinguishable error kind gets its own status so callers can react
// without parsing messages: quota denial is retryable later (429), lease
// contention is retryable now (409), dispatch failure left the datasource
// pending and the trigger may simply be retried (502).
func WriteServiceError(w http.ResponseWriter, err error) {
	switch {
	case errdefs.IsValidation(err):
		WriteErrorMessage(w, http.StatusBadRequest, err.Error())
	case errdefs.IsUnauthorized(err):
		WriteErrorMessage(w, http.StatusForbidden, err.Error())
	case errdefs.IsNotFound(err):
		WriteErrorMessage(w, http.StatusNotFound, err.Error())
	case orgs.IsQuotaExceeded(err):
		WriteErrorMessage(w, http.StatusTooManyRequests, err.Error())
	case lease.IsAlreadyHeld(err):
		WriteErrorMessage(w, http.StatusConflict, err.Error())
	case errdefs.IsTimeout(err):
		WriteErrorMessage(w, http.StatusGatewayTimeout, err.Error())
	case tasks.IsDispatchFailed(err):
		WriteErrorMessage(w, http.StatusBadGateway, err.Error())
	case errdefs.IsTransactionFailed(err):
		WriteErrorMessage(w, http.StatusInternalServerError, err.Error())
	default:
		WriteErrorMessage(w, http.StatusInternalServerError, err.Error())
	}
}
