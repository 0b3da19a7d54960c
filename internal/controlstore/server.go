// Package controlstore implements the Control Store HTTP surface (§6): the
// single process that owns the SQLite database directly and exposes trader
// admin controls, credential decryption, regime/bandit queries, trade and
// safety ledgering, model lifecycle transitions and trainer triggers to
// every other process in the fleet.
package controlstore

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/ats/internal/bandit"
	"github.com/aristath/ats/internal/config"
	"github.com/aristath/ats/internal/crypto"
	"github.com/aristath/ats/internal/lifecycle"
	"github.com/aristath/ats/internal/regimeengine"
	"github.com/aristath/ats/internal/safety"
	"github.com/aristath/ats/internal/store"
	"github.com/aristath/ats/internal/trainer"
)

// Config wires every dependency the Control Store's handlers need.
type Config struct {
	Log     zerolog.Logger
	Port    int
	DevMode bool
	Safety  config.SafetyLimits

	Traders     *store.TraderRepository
	Credentials *store.CredentialRepository
	Regimes     *store.RegimeRepository
	Bandits     *store.BanditRepository
	Trades      *store.TradeRepository
	Holdings    *store.HoldingsRepository
	SafetyRepo  *store.SafetyRepository
	Models      *store.ModelRepository
	Configs     *store.ConfigRepository
	Scan        *store.ScanRepository
	Events      *store.EventRepository

	CryptoBox *crypto.Box
	Guard     *safety.Guard
	Sampler   *bandit.Sampler
	Lifecycle *lifecycle.Lifecycle
	Scanner   *trainer.Scanner
	Tuner     *trainer.Tuner
}

// Server is the Control Store's HTTP server.
type Server struct {
	router      *chi.Mux
	server      *http.Server
	log         zerolog.Logger
	cfg         Config
	startupTime time.Time
}

// New builds a Server with routes and middleware configured but not started.
func New(cfg Config) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		log:         cfg.Log.With().Str("component", "controlstore").Logger(),
		cfg:         cfg,
		startupTime: time.Now(),
	}
	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         ":" + itoa(cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealthz)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/traders", func(r chi.Router) {
			r.Get("/{name}", s.handleGetTrader)
			r.Post("/{name}/arm", s.handleArmTrader)
			r.Post("/{name}/run", s.handleSetRunMode)
			r.Post("/{name}/heartbeat", s.handleHeartbeat)
		})

		r.Route("/credentials", func(r chi.Router) {
			r.Get("/{name}/decrypt", s.handleDecryptCredential)
		})

		r.Route("/regimes", func(r chi.Router) {
			r.Post("/snapshot", s.handleCreateRegimeSnapshot)
			r.Get("/snapshots", s.handleListRegimeSnapshots)
			r.Get("/regime-weight/{label}", s.handleRegimeWeight)
			r.Get("/weight/{label}/{strategy}", s.handleBanditWeight)
			r.Post("/bandit/{label}/{strategy}/update", s.handleUpdateBanditWeight)
		})

		r.Route("/trades", func(r chi.Router) {
			r.Post("/signal", s.handleCreateSignal)
			r.Post("/order", s.handleCreateOrder)
			r.Get("/holdings", s.handleHoldings)
		})

		r.Route("/safety", func(r chi.Router) {
			r.Post("/{name}/update_pnl", s.handleUpdatePnL)
			r.Post("/{name}/reset", s.handleResetSafety)
			r.Post("/{name}/slippage", s.handleReportSlippage)
			r.Post("/{name}/api_error", s.handleReportAPIError)
			r.Post("/{name}/db_error", s.handleReportDBError)
			r.Post("/{name}/panic", s.handleReportPanic)
			r.Get("/{name}/check_entry", s.handleCheckEntry)
		})

		r.Route("/models", func(r chi.Router) {
			r.Post("/{id}/validate", s.handleValidateModel)
			r.Post("/{id}/deploy", s.handleDeployModel)
			r.Post("/{id}/check_eligible", s.handleCheckEligibleModel)
			r.Post("/{id}/arm", s.handleArmModel)
			r.Post("/{id}/rollback", s.handleRollbackModel)
		})

		r.Route("/configs", func(r chi.Router) {
			r.Post("/", s.handleCreateConfig)
			r.Get("/active", s.handleActiveConfig)
			r.Post("/{id}/activate", s.handleActivateConfig)
		})

		r.Route("/events", func(r chi.Router) {
			r.Post("/", s.handleCreateEvent)
			r.Get("/", s.handleListEvents)
		})

		r.Route("/trainer", func(r chi.Router) {
			r.Post("/scan", s.handleTrainerScan)
			r.Post("/update-labels", s.handleTrainerUpdateLabels)
			r.Post("/evaluate", s.handleTrainerEvaluate)
			r.Post("/tune", s.handleTrainerTune)
		})
	})
}

// handleHealthz reports process uptime plus host CPU/memory load, the same
// shape the teacher's system_handlers.go surfaces for its STATS display mode
// (cheap, non-blocking host stats next to the liveness check).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to sample cpu percent")
		cpuPercent = []float64{0}
	}
	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	ramPercent := 0.0
	if memStat, err := mem.VirtualMemory(); err != nil {
		s.log.Warn().Err(err).Msg("failed to sample memory stats")
	} else {
		ramPercent = memStat.UsedPercent
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"uptime_hours": time.Since(s.startupTime).Hours(),
		"cpu_percent":  cpuAvg,
		"ram_percent":  ramPercent,
	})
}

// Start begins serving; blocks until the listener stops.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("starting control store HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down control store HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

// loggingMiddleware records method/path/status/duration for every request,
// matching the reference server's request-id-tagged access log.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
