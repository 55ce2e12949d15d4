package api

import (
	"net/http"
	"time"

	"robustroute/internal/buildinfo"
)

// DebugJSON handles GET /debug/info. Secrets are reported only as present or absent.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	c := s.Cfg
	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"port":              c.Server.Port,
			"solve_timeout":     c.Server.SolveTimeout.String(),
			"log_level":         c.Log.Level,
			"rate_rps":          c.Rate.RPS,
			"rate_burst":        c.Rate.Burst,
			"notify_enabled":    c.Notify.Enabled(),
			"auth_mode":         c.Auth.Mode,
			"has_database_url":  c.Database.URL != "",
			"has_redis_url":     c.Redis.URL != "",
			"insertion_workers": c.Insertion.Workers,
		},
	})
}
