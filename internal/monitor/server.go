// Package monitor 本地只读观察面：状态快照、日志历史、历史购票记录，
// 外加一条 WS 实时流。只暴露查询，不接受任何控制指令。
package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tixbot/internal/logbus"
	"tixbot/internal/model"
	"tixbot/internal/store/sqlite"
)

type Options struct {
	Bus *logbus.Bus
	// Report 返回编排器当前的状态快照。
	Report func() model.StatusReport
	// Store 可选：nil 时 /api/runs 返回空列表。
	Store        *sqlite.Store
	AllowOrigins []string
}

type Server struct {
	bus          *logbus.Bus
	report       func() model.StatusReport
	store        *sqlite.Store
	allowOrigins []string
	ws           *wsHandler

	httpSrv *http.Server
}

func New(opts Options) *Server {
	return &Server{
		bus:          opts.Bus,
		report:       opts.Report,
		store:        opts.Store,
		allowOrigins: opts.AllowOrigins,
		ws:           newWSHandler(opts.Bus, opts.AllowOrigins),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/ws", s.ws)

	api := http.NewServeMux()
	api.HandleFunc("/api/status", s.handleStatus)
	api.HandleFunc("/api/logs", s.handleLogs)
	api.HandleFunc("/api/runs", s.handleRuns)

	mux.Handle("/api/", corsMiddleware(s.allowOrigins, api))
	return mux
}

// Start 在 addr 上起服务，立即返回；出错只能通过总线日志观察。
func (s *Server) Start(addr string) {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.bus != nil {
				s.bus.Log("warn", "监控服务退出", map[string]any{"error": err.Error()})
			}
		}
	}()
	if s.bus != nil {
		s.bus.Log("info", "监控服务已启动", map[string]any{"addr": addr})
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.report == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "orchestrator unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": s.report()})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": s.bus.Snapshot()})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		writeJSON(w, http.StatusOK, map[string]any{"data": []model.RunRecord{}})
		return
	}

	limit := 20
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid limit"})
			return
		}
		limit = n
	}

	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []model.RunRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": runs})
}

func corsMiddleware(allowOrigins []string, next http.Handler) http.Handler {
	allowHeaders := []string{"Content-Type", "Authorization"}
	allowMethods := []string{"GET", "OPTIONS"}
	maxAge := 600

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigin := ""
		for _, o := range allowOrigins {
			if o == "*" {
				allowedOrigin = "*"
				break
			}
			if strings.EqualFold(o, origin) {
				allowedOrigin = origin
				break
			}
		}

		if allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Headers", strings.Join(allowHeaders, ", "))
			w.Header().Set("Access-Control-Allow-Methods", strings.Join(allowMethods, ", "))
			w.Header().Set("Access-Control-Max-Age", strconv.Itoa(maxAge))
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
