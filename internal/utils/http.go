package utils

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorBody is the payload of every non-2xx admin API response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Beacon  string `json:"beacon,omitempty"`
}

// encodeFailure is sent when a response value cannot be marshalled.
var encodeFailure = []byte(`{"error":"Internal Server Error","message":"response encoding failed"}` + "\n")

// WriteJSON marshals v before touching the header, so an unencodable
// value turns into a 500 instead of a truncated 200.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("encode admin response", "status", status, "error", err)
		status, body = http.StatusInternalServerError, encodeFailure
	} else {
		body = append(body, '\n')
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		slog.Debug("write admin response", "error", err)
	}
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorBody{Error: http.StatusText(status), Message: msg})
}

// WriteBeaconError reports a failed operation on one beacon. Server side
// failures are logged with the address since the client only sees the text.
func WriteBeaconError(w http.ResponseWriter, status int, addr string, err error) {
	if status >= http.StatusInternalServerError {
		slog.Error("beacon admin operation failed", "beacon", addr, "error", err)
	}
	WriteJSON(w, status, ErrorBody{Error: http.StatusText(status), Message: err.Error(), Beacon: addr})
}
