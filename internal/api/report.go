package api

import (
	"bytes"
	"log/slog"
	"net/http"
	"time"

	"github.com/p-n-ai/eznannya/internal/report"
)

// handleReport streams the progress workbook as a download.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	p, err := s.Reports.Load(r.Context(), sessionFrom(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	if p == nil {
		fail(w, r, &apiError{Status: http.StatusUnauthorized, Code: "unauthorized", Err: errSignedOut})
		return
	}
	var buf bytes.Buffer
	if err := report.Write(&buf, *p); err != nil {
		fail(w, r, err)
		return
	}
	name := "progress-" + time.Now().Format(time.DateOnly) + ".xlsx"
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("failed to send report", "user_id", p.User.ID, "error", err)
	}
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	s.Presence.ServeWS(w, r, sessionFrom(r))
}
