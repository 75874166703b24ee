package web

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/elabsync/elabsync/internal/core"
	"github.com/elabsync/elabsync/internal/logging"
)

// errorResponse is the JSON body for failed API calls. Message and
// Action are safe to show to the user as-is; Code identifies the error
// class for support.
type errorResponse struct {
	Error  string `json:"error"`
	Action string `json:"action,omitempty"`
	Code   string `json:"code"`
}

// respondError maps err to its user-facing message and writes it with
// the given status. The raw error goes to the log, never to the client.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := core.MapError(err)

	logging.FromContext(r.Context()).Error("request failed",
		"status", status,
		"code", msg.Code,
		"error", err,
		"request_id", middleware.GetReqID(r.Context()),
		"path", r.URL.Path,
	)

	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(errorResponse{
			Error:  msg.Message,
			Action: msg.Action,
			Code:   msg.Code,
		})
		return
	}

	http.Error(w, msg.Message+" ("+msg.Code+"). "+msg.Action, status)
}

// wantsJSON reports whether the client expects a JSON body. All /api
// routes do; so does anything that asks for it explicitly.
func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
