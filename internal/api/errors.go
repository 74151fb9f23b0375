package api

import (
	"net/http"

	"github.com/user/procengine/apperr"
)

// writeEngineError maps an apperr.Code to the HTTP status a REST caller
// expects, grounded on the code taxonomy in apperr/apperr.go.
func writeEngineError(w http.ResponseWriter, err error) {
	code, ok := apperr.CodeOf(err)
	if !ok {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	status := http.StatusInternalServerError
	switch code {
	case apperr.InvalidInput, apperr.ParseError:
		status = http.StatusBadRequest
	case apperr.NotFound:
		status = http.StatusNotFound
	case apperr.NotAuthorized:
		status = http.StatusForbidden
	case apperr.NotSupportError:
		status = http.StatusConflict
	case apperr.InternalError, apperr.UnexpectedError:
		status = http.StatusInternalServerError
	}
	writeError(w, err.Error(), status)
}
