package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/vantico/pulse/internal/channels"
	"github.com/vantico/pulse/internal/config"
	"github.com/vantico/pulse/internal/database"
	"github.com/vantico/pulse/internal/kpi"
	"github.com/vantico/pulse/internal/metrics"
	"github.com/vantico/pulse/internal/middleware"
	"github.com/vantico/pulse/internal/models"
	"github.com/vantico/pulse/internal/registry"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	DB      *database.PostgresDB
	Redis   *database.RedisDB
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Server wraps HTTP handlers and the KPI services.
type Server struct {
	registry   *registry.Cache
	kpiService *kpi.Service
	snapshots  *kpi.SnapshotCache
	db         *database.PostgresDB
	redis      *database.RedisDB
	logger     *zap.Logger
	config     *config.Config
	metrics    *metrics.Metrics
}

// NewServer constructs a new http.Handler with all routes registered.
func NewServer(deps *Dependencies) http.Handler {
	cfg := deps.Config
	timeout := cfg.Fetch.ChannelTimeout

	store := registry.NewPostgresStore(deps.DB.Pool)
	reg := registry.NewCache(store, deps.Logger, deps.Metrics)

	pool := deps.DB.Pool
	google := channels.NewGoogleAdsRepo(pool, reg, deps.Logger, deps.Metrics, timeout)
	meta := channels.NewMetaAdsRepo(pool, reg, deps.Logger, deps.Metrics, timeout)
	rd := channels.NewRDStationRepo(pool, reg, deps.Logger, deps.Metrics, timeout)
	eduzz := channels.NewEduzzRepo(pool, reg, deps.Logger, deps.Metrics, timeout)
	crm := channels.NewCRMRepo(pool, reg, deps.Logger, deps.Metrics, timeout)

	kpiSvc := kpi.NewService(google, meta, rd, eduzz, crm, deps.Logger, deps.Metrics)

	var snapshots *kpi.SnapshotCache
	if deps.Redis != nil && cfg.Cache.Enabled {
		snapshots = kpi.NewSnapshotCache(deps.Redis.Client, cfg.Cache.TTL, deps.Logger, deps.Metrics)
	}

	s := &Server{
		registry:   reg,
		kpiService: kpiSvc,
		snapshots:  snapshots,
		db:         deps.DB,
		redis:      deps.Redis,
		logger:     deps.Logger,
		config:     cfg,
		metrics:    deps.Metrics,
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
	}

	// KPI aggregation
	mux.HandleFunc("/kpis", s.handleKpis)
	mux.HandleFunc("/kpis/monthly", s.handleMonthlyKpis)
	mux.HandleFunc("/kpis/weekly", s.handleWeeklyKpis)

	// Registry
	mux.HandleFunc("/registry/tables", s.handleRegistryTables)
	mux.HandleFunc("/registry/integrations", s.handleRegistryIntegrations)
	mux.HandleFunc("/registry/invalidate", s.handleRegistryInvalidate)

	// Middleware chain, outermost first.
	var handler http.Handler = mux
	handler = middleware.NewAuthMiddleware(cfg.Auth, deps.Logger).Handler(handler)
	handler = middleware.NewRateLimitMiddleware(cfg.RateLimit, deps.Logger, deps.Metrics).Handler(handler)
	handler = middleware.NewLoggingMiddleware(deps.Logger, deps.Metrics).Handler(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.NewRecoveryMiddleware(deps.Logger).Handler(handler)

	return handler
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok", "database": "ok", "redis": "disabled"}
	code := http.StatusOK

	if err := s.db.Health(ctx); err != nil {
		status["status"] = "degraded"
		status["database"] = "unreachable"
		code = http.StatusServiceUnavailable
	}
	if s.redis != nil {
		status["redis"] = "ok"
		if err := s.redis.Health(ctx); err != nil {
			status["redis"] = "unreachable"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

// ---- KPI Aggregation ----

func (s *Server) handleKpis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		s.errorResponse(w, "tenant_id is required", http.StatusBadRequest)
		return
	}
	rng, err := parseRange(r)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	if res, hit := s.snapshots.Get(r.Context(), tenantID, rng); hit {
		s.jsonResponse(w, res)
		return
	}

	res, err := s.kpiService.Aggregate(r.Context(), tenantID, rng)
	if err != nil {
		s.logger.Error("failed to aggregate kpis", zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}

	// A degraded result reflects a transient failure; caching it
	// would pin the zeros for the snapshot TTL.
	if !res.Degraded() {
		s.snapshots.Set(r.Context(), tenantID, rng, res)
	}
	s.jsonResponse(w, res)
}

func (s *Server) handleMonthlyKpis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	tenantID := q.Get("tenant_id")
	if tenantID == "" {
		s.errorResponse(w, "tenant_id is required", http.StatusBadRequest)
		return
	}
	year, err := strconv.Atoi(q.Get("year"))
	if err != nil || year < 2000 || year > 2100 {
		s.errorResponse(w, "valid year is required", http.StatusBadRequest)
		return
	}

	series, err := s.kpiService.MonthlySeries(r.Context(), tenantID, year)
	if err != nil {
		s.logger.Error("failed to build monthly series", zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}

	if cumulative, _ := strconv.ParseBool(q.Get("cumulative")); cumulative {
		series = kpi.WithRunningTotals(series)
	}

	s.jsonResponse(w, series)
}

func (s *Server) handleWeeklyKpis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		s.errorResponse(w, "tenant_id is required", http.StatusBadRequest)
		return
	}
	rng, err := parseRange(r)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	series, err := s.kpiService.WeeklySeries(r.Context(), tenantID, rng)
	if err != nil {
		s.logger.Error("failed to build weekly series", zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}

	if cumulative, _ := strconv.ParseBool(r.URL.Query().Get("cumulative")); cumulative {
		series = kpi.WithRunningTotals(series)
	}

	s.jsonResponse(w, series)
}

// ---- Registry ----

func (s *Server) handleRegistryTables(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	tenantID := q.Get("tenant_id")
	if tenantID == "" {
		s.errorResponse(w, "tenant_id is required", http.StatusBadRequest)
		return
	}

	if ch := q.Get("channel"); ch != "" {
		channel := models.Channel(ch)
		if !channel.Valid() {
			s.errorResponse(w, "unknown channel: "+ch, http.StatusBadRequest)
			return
		}
		tables, err := s.registry.ListChannelTables(r.Context(), tenantID, channel)
		if err != nil {
			s.logger.Error("failed to list channel tables", zap.Error(err))
			s.errorResponse(w, "internal error", http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, map[models.Channel]map[string]string{channel: tables})
		return
	}

	result := make(map[models.Channel]map[string]string, len(models.AllChannels))
	for _, channel := range models.AllChannels {
		tables, err := s.registry.ListChannelTables(r.Context(), tenantID, channel)
		if err != nil {
			s.logger.Error("failed to list channel tables", zap.Error(err))
			s.errorResponse(w, "internal error", http.StatusInternalServerError)
			return
		}
		if len(tables) > 0 {
			result[channel] = tables
		}
	}
	s.jsonResponse(w, result)
}

func (s *Server) handleRegistryIntegrations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		s.errorResponse(w, "tenant_id is required", http.StatusBadRequest)
		return
	}

	result := make(map[models.Channel]bool, len(models.AllChannels))
	for _, channel := range models.AllChannels {
		ok, err := s.registry.HasIntegration(r.Context(), tenantID, channel)
		if err != nil {
			s.logger.Error("failed to check integration", zap.Error(err))
			s.errorResponse(w, "internal error", http.StatusInternalServerError)
			return
		}
		result[channel] = ok
	}
	s.jsonResponse(w, result)
}

func (s *Server) handleRegistryInvalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		s.registry.Invalidate()
		s.snapshots.InvalidateAll(r.Context())
		s.logger.Info("registry cache invalidated")
	} else {
		s.registry.InvalidateTenant(tenantID)
		s.snapshots.InvalidateTenant(r.Context(), tenantID)
		s.logger.Info("registry cache invalidated", zap.String("tenant_id", tenantID))
	}

	s.jsonResponse(w, map[string]string{"status": "ok"})
}

// ---- Helpers ----

func parseRange(r *http.Request) (channels.Range, error) {
	q := r.URL.Query()
	start, err := time.Parse(dateLayout, q.Get("start"))
	if err != nil {
		return channels.Range{}, errBadDate("start")
	}
	end, err := time.Parse(dateLayout, q.Get("end"))
	if err != nil {
		return channels.Range{}, errBadDate("end")
	}
	if end.Before(start) {
		return channels.Range{}, errRange
	}
	return channels.Range{Start: start, End: end}, nil
}

type rangeError string

func (e rangeError) Error() string { return string(e) }

var errRange = rangeError("end must not precede start")

func errBadDate(field string) error {
	return rangeError(field + " must be an ISO date (YYYY-MM-DD)")
}

func (s *Server) jsonResponse(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
