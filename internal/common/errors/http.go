package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
)

// Response is the JSON body written for a failed request.
type Response struct {
	Error *AppError `json:"error"`
}

// WriteHTTP renders err as a JSON error response. Errors that are not an
// AppError are reported as a generic internal error so their text is never
// sent to the caller.
func WriteHTTP(w http.ResponseWriter, err error) {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		appErr = InternalError("internal server error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(appErr.Type))
	json.NewEncoder(w).Encode(Response{Error: appErr})
}
