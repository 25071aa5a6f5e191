package api

import (
	"encoding/json"
	"errors"
	"net/http"

	ensoerr "github.com/lwt-sadais/EnsoAI/internal/errors"
)

// APIError is the standard error response format.
type APIError struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// JSONResponse writes a successful JSON response.
func JSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// JSONResponseStatus writes a JSON response with a specific status code.
func JSONResponseStatus(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// JSONError writes a simple error response.
func JSONError(w http.ResponseWriter, message string, status int) {
	JSONResponseStatus(w, APIError{Error: message}, status)
}

// NoContent writes a 204 No Content response.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// HandleError inspects the error type and writes the appropriate response.
// Structured errors carry their code and status; the why/fix hints travel
// in the details so the shell can render recovery guidance.
func HandleError(w http.ResponseWriter, err error) {
	var ee *ensoerr.EnsoError
	if errors.As(err, &ee) {
		var details any
		if ee.Why != "" || ee.Fix != "" {
			d := map[string]string{}
			if ee.Why != "" {
				d["why"] = ee.Why
			}
			if ee.Fix != "" {
				d["fix"] = ee.Fix
			}
			details = d
		}
		JSONResponseStatus(w, APIError{
			Error:   ee.What,
			Code:    string(ee.Code),
			Details: details,
		}, ee.HTTPStatus())
		return
	}
	// Fallback for unknown errors
	JSONError(w, err.Error(), http.StatusInternalServerError)
}
