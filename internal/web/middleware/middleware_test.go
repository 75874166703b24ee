package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// ============================================================
// Loopback guard
// ============================================================

func TestLoopbackOnly(t *testing.T) {
	h := LoopbackOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	tests := []struct {
		name       string
		remoteAddr string
		wantStatus int
	}{
		{"ipv4 loopback", "127.0.0.1:50000", http.StatusOK},
		{"ipv6 loopback", "[::1]:50000", http.StatusOK},
		{"loopback without port", "127.0.0.1", http.StatusOK},
		{"routable address", "203.0.113.9:4444", http.StatusForbidden},
		{"private address", "192.168.1.20:4444", http.StatusForbidden},
		{"garbage address", "not-an-ip", http.StatusForbidden},
		{"empty address", "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}

// ============================================================
// Request logger
// ============================================================

func TestLoggerPassesStatusAndBody(t *testing.T) {
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusTeapot)
	}
	if rr.Body.String() != "short and stout" {
		t.Errorf("body = %q", rr.Body.String())
	}
}

func TestStatusWriter_FirstHeaderWins(t *testing.T) {
	rr := httptest.NewRecorder()
	w := &statusWriter{ResponseWriter: rr, status: http.StatusOK}

	w.WriteHeader(http.StatusNotFound)
	w.WriteHeader(http.StatusInternalServerError)

	if w.status != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.status, http.StatusNotFound)
	}
	if rr.Code != http.StatusNotFound {
		t.Errorf("recorded status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestStatusWriter_ImplicitOKOnWrite(t *testing.T) {
	rr := httptest.NewRecorder()
	w := &statusWriter{ResponseWriter: rr, status: http.StatusOK}

	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if !w.wroteHeader || w.status != http.StatusOK {
		t.Errorf("wroteHeader = %v, status = %d", w.wroteHeader, w.status)
	}
}

func TestStatusWriter_FlushForwards(t *testing.T) {
	rr := httptest.NewRecorder()
	w := &statusWriter{ResponseWriter: rr, status: http.StatusOK}

	w.Flush()

	if !rr.Flushed {
		t.Error("flush not forwarded to the wrapped writer")
	}
	if !w.wroteHeader {
		t.Error("flush must commit the header first")
	}
}
