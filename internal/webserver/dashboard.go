package webserver

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/marigold-hq/marigold/internal/dashboard"
)

//go:embed templates
var templateFS embed.FS

var pageTemplates = template.Must(template.New("").Funcs(template.FuncMap{
	"attr": func(info dashboard.Info, name string) any {
		if v, ok := info[name]; ok {
			return v
		}
		return ""
	},
	"reltime": func(info dashboard.Info) string {
		last := dashboard.LastHeartbeat(info)
		if last.IsZero() {
			return "never"
		}
		return humanize.Time(last)
	},
}).ParseFS(templateFS, "templates/*.html"))

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if boolArg(r, "refresh") && s.refresher != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		// Stale data beats an error page: log and carry on.
		if err := s.refresher.RefreshWorkers(ctx); err != nil {
			s.logger.Error("failed to update workers", "error", err)
		}
		cancel()
	}

	workers := dashboard.BuildSnapshot(s.st)
	dashboard.PurgeOffline(workers, s.cfg.PurgeOffline, time.Now())

	if boolArg(r, "json") {
		data := make([]dashboard.Info, 0, len(workers))
		for _, info := range workers {
			data = append(data, info)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"data": data})
		return
	}

	autorefresh := 0
	if s.cfg.AutoRefresh {
		autorefresh = 1
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := pageTemplates.ExecuteTemplate(w, "dashboard.html", map[string]any{
		"Workers":     workers,
		"Broker":      s.cfg.BrokerURL,
		"Autorefresh": autorefresh,
	})
	if err != nil {
		s.logger.Error("render dashboard", "error", err)
	}
}

func boolArg(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}
