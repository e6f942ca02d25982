// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

// captureLogger returns a JSON logger writing into buf.
func captureLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestLogger(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		handler   http.HandlerFunc
		wantCode  int
		wantLevel string
		wantBytes float64
	}{
		{
			name:   "explicit status",
			method: http.MethodGet,
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			wantCode: http.StatusNotFound, wantLevel: "INFO",
		},
		{
			name:   "implicit 200 on write",
			method: http.MethodGet,
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("hello"))
			},
			wantCode: http.StatusOK, wantLevel: "INFO", wantBytes: 5,
		},
		{
			name:   "server error logs at error level",
			method: http.MethodPost,
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			wantCode: http.StatusServiceUnavailable, wantLevel: "ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			handler := Logger(captureLogger(&buf))(tt.handler)

			req := httptest.NewRequest(tt.method, "/health", nil)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantCode {
				t.Errorf("status: got %d, want %d", rr.Code, tt.wantCode)
			}

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("decode log line %q: %v", buf.String(), err)
			}
			if entry["level"] != tt.wantLevel {
				t.Errorf("level: got %v, want %s", entry["level"], tt.wantLevel)
			}
			if entry["status"] != float64(tt.wantCode) {
				t.Errorf("logged status: got %v, want %d", entry["status"], tt.wantCode)
			}
			if entry["method"] != tt.method || entry["path"] != "/health" {
				t.Errorf("logged request: %v %v", entry["method"], entry["path"])
			}
			if entry["bytes"] != tt.wantBytes {
				t.Errorf("logged bytes: got %v, want %v", entry["bytes"], tt.wantBytes)
			}
		})
	}
}

func TestStatusRecorder(t *testing.T) {
	t.Run("first WriteHeader wins", func(t *testing.T) {
		rw := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
		rw.WriteHeader(http.StatusNotFound)
		rw.WriteHeader(http.StatusInternalServerError)
		if rw.status != http.StatusNotFound {
			t.Errorf("status: got %d, want 404", rw.status)
		}
	})

	t.Run("Write does not override explicit status", func(t *testing.T) {
		rw := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
		rw.WriteHeader(http.StatusCreated)
		n, err := rw.Write([]byte("created"))
		if err != nil || n != 7 {
			t.Fatalf("Write = %d, %v", n, err)
		}
		if rw.status != http.StatusCreated || rw.bytes != 7 {
			t.Errorf("status %d bytes %d", rw.status, rw.bytes)
		}
	})
}
