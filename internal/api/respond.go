package api

import (
	"encoding/json"
	"io"
	"net/http"

	"hedgehog-learn/internal/validation"
)

type errorDetails struct {
	Code    validation.Code `json:"code"`
	Details []string        `json:"details,omitempty"`
}

type errorBody struct {
	Error   string        `json:"error"`
	Details *errorDetails `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error": msg} plus the code and details of verr, if any.
func writeError(w http.ResponseWriter, status int, msg string, verr *validation.Error) {
	body := errorBody{Error: msg}
	if verr != nil {
		body.Details = &errorDetails{Code: verr.Code, Details: verr.Details}
	}
	writeJSON(w, status, body)
}

func writeCode(w http.ResponseWriter, status int, msg string, code validation.Code) {
	writeJSON(w, status, errorBody{Error: msg, Details: &errorDetails{Code: code}})
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="Hedgehog Learn"`)
	writeError(w, http.StatusUnauthorized, msg, nil)
}

// readBody reads at most one byte past the payload limit so oversize bodies
// are still reported as too large.
func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, validation.MaxPayloadSizeBytes+1))
}

// decode reads and validates a JSON body, writing the 400 itself on failure.
func decode(w http.ResponseWriter, r *http.Request, v any, what string) bool {
	raw, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read request body", nil)
		return false
	}
	if verr := validation.Decode(raw, v, what); verr != nil {
		writeError(w, http.StatusBadRequest, verr.Message, verr)
		return false
	}
	return true
}

func query(w http.ResponseWriter, r *http.Request, v any, what string) bool {
	validation.QueryValues(r.URL.Query().Get, v)
	if verr := validation.Validate(v, what); verr != nil {
		writeError(w, http.StatusBadRequest, verr.Message, verr)
		return false
	}
	return true
}
