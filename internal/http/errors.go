// Package httpapi exposes the HTTP API layer of the service.
package httpapi

import (
	"encoding/json"
	"net/http"
)

// jsonError is the error payload of the product endpoints.
type jsonError struct {
	Error string `json:"error"`
}

// jsonMessage is the payload of the import endpoints, which report through a
// message field.
type jsonMessage struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteJSONError writes an error payload with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, jsonError{Error: message})
}

// WriteJSONMessage writes a message payload with the given status code.
func WriteJSONMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, jsonMessage{Message: message})
}
