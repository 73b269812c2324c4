package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSON_UnencodableValue(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusOK, map[string]any{"bad": make(chan int)})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d want=%d", rec.Code, http.StatusInternalServerError)
	}
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	if body.Message != "response encoding failed" {
		t.Fatalf("message=%q", body.Message)
	}
}

func TestWriteBeaconError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteBeaconError(rec, http.StatusConflict, "AA:AA:AA:AA:AA:01", errors.New("blocked"))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status=%d want=%d", rec.Code, http.StatusConflict)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("Cache-Control=%q", got)
	}
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	want := ErrorBody{Error: "Conflict", Message: "blocked", Beacon: "AA:AA:AA:AA:AA:01"}
	if body != want {
		t.Fatalf("body=%+v want=%+v", body, want)
	}
}
