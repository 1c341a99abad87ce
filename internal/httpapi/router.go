package httpapi

import (
	"net/http"
	"time"

	"wisefido-sos/internal/metrics"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux
type Router struct {
	mux     *http.ServeMux
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewRouter(m *metrics.Metrics, logger *zap.Logger) *Router {
	return &Router{
		mux:     http.NewServeMux(),
		metrics: m,
		logger:  logger,
	}
}

// Handle 注册路由；以注册的 pattern 作为指标的 path 标签
func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.Handle(pattern, r.instrument(pattern, h))
}

// HandleHandler 支持 http.Handler 接口（用于 /metrics）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (r *Router) instrument(pattern string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, req)
		r.metrics.RecordHTTPRequest(req.Method, pattern, rec.status, time.Since(start))
		if rec.status >= http.StatusInternalServerError {
			r.logger.Warn("HTTP request failed",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int("status", rec.status),
			)
		}
	})
}

// RegisterHealthRoutes /health 与 /metrics
func (r *Router) RegisterHealthRoutes() {
	r.Handle("/health", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		writeJSON(w, http.StatusOK, Ok(map[string]any{"status": "ok"}))
	})
	if r.metrics != nil {
		r.HandleHandler("/metrics", r.metrics.Handler())
	}
}

// RegisterContactRoutes 联系人管理
func (r *Router) RegisterContactRoutes(h *ContactsHandler) {
	r.Handle("/api/v1/contacts", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.List(w, req)
		case http.MethodPost:
			h.Create(w, req)
		default:
			methodNotAllowed(w)
		}
	})
	r.Handle("/api/v1/contacts/stats", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.Stats(w, req)
	})
	// /api/v1/contacts/{id}[/active|/test]
	r.Handle("/api/v1/contacts/", h.ServeContact)
}

// RegisterEmergencyRoutes 紧急流程与位置
func (r *Router) RegisterEmergencyRoutes(h *EmergencyHandler) {
	post := func(fn http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, req *http.Request) {
			if req.Method != http.MethodPost {
				methodNotAllowed(w)
				return
			}
			fn(w, req)
		}
	}
	get := func(fn http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, req *http.Request) {
			if req.Method != http.MethodGet {
				methodNotAllowed(w)
				return
			}
			fn(w, req)
		}
	}

	r.Handle("/api/v1/emergency/activate", post(h.Activate))
	r.Handle("/api/v1/emergency/cancel", post(h.Cancel))
	r.Handle("/api/v1/emergency/reset", post(h.Reset))
	r.Handle("/api/v1/emergency/retry", post(h.Retry))
	r.Handle("/api/v1/emergency/status", get(h.Status))
	r.Handle("/api/v1/location/current", get(h.CurrentLocation))
	r.Handle("/api/v1/location/share", post(h.ShareLocation))
}

// RegisterHistoryRoutes 告警历史
func (r *Router) RegisterHistoryRoutes(h *HistoryHandler) {
	r.Handle("/api/v1/history", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.List(w, req)
	})
	r.Handle("/api/v1/history/export", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.Export(w, req)
	})
}

// RegisterLedgerRoutes 链上账本查询
func (r *Router) RegisterLedgerRoutes(h *LedgerHandler) {
	r.Handle("/api/v1/ledger/status", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.Status(w, req)
	})
	r.Handle("/api/v1/ledger/alerts/total", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.Total(w, req)
	})
	r.Handle("/api/v1/ledger/alerts/", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.Alert(w, req)
	})
}

// RegisterProfileRoutes 用户名与设置
func (r *Router) RegisterProfileRoutes(h *ProfileHandler) {
	r.Handle("/api/v1/profile", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.GetProfile(w, req)
		case http.MethodPut:
			h.UpdateProfile(w, req)
		default:
			methodNotAllowed(w)
		}
	})
	r.Handle("/api/v1/settings", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.GetSettings(w, req)
		case http.MethodPut:
			h.UpdateSettings(w, req)
		default:
			methodNotAllowed(w)
		}
	})
}
