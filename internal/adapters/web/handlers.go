// Package web is the JSON HTTP adapter of the print ledger.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"chequebook/internal/app"
	"chequebook/internal/logger"
	"chequebook/internal/metrics"
)

const defaultMaxBodySize = 1 << 20 // 1 MB

// Options configures NewHandler. Zero values are usable in tests.
type Options struct {
	AllowedOrigins []string
	JWTSecret      string
	JWTIssuer      string
	MaxBodySize    int64
	RequestTimeout time.Duration
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
}

// Handler holds the ApplicationService and the request validator.
type Handler struct {
	svc       app.ApplicationService
	validate  *validator.Validate
	jwtSecret string
	jwtIssuer string
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	maxBody := opts.MaxBodySize
	if maxBody <= 0 {
		maxBody = defaultMaxBodySize
	}

	h := &Handler{
		svc:       svc,
		validate:  newValidator(),
		jwtSecret: opts.JWTSecret,
		jwtIssuer: opts.JWTIssuer,
		logger:    log.Named("http"),
		metrics:   opts.Metrics,
	}

	r := chi.NewRouter()
	r.Use(RequestID(h.logger))
	r.Use(Logger(h.metrics))
	r.Use(Recoverer)
	r.Use(CORS(opts.AllowedOrigins))

	// ── Public ────────────────────────────────────────────────────────────────
	r.Get("/api/health", h.health)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler())
	}

	// ── Protected API routes (return 401 JSON if unauthenticated) ────────────
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Use(RequestBodyLimit(maxBody))
		r.Use(Timeout(opts.RequestTimeout))

		// Print ledger
		r.Post("/api/prints", h.apiPrintBatch)
		r.Post("/api/prints/preview", h.apiPreviewBatch)
		r.Post("/api/prints/validate-range", h.apiValidateRange)
		r.Get("/api/prints", h.apiListEntries)
		r.Get("/api/prints/{id}", h.apiGetEntry)
		r.Post("/api/prints/{id}/reprints", h.apiReprintBatch)
		r.Get("/api/prints/{id}/units", h.apiExpandEntry)
		r.Get("/api/prints/{id}/tracked-units", h.apiTrackedUnits)
		r.Post("/api/units/allow-reprint", h.apiAllowUnitReprint)
		r.Get("/api/branches/{id}/counter", h.apiGetCounter)

		// Paper stock
		r.Get("/api/stock", h.apiListStock)
		r.Post("/api/stock/{category}/add", h.apiAddStock)
		r.Get("/api/stock/{category}/transactions", h.apiStockTransactions)
		r.Get("/api/stock/{category}/conservation", h.apiConservation)
	})

	return r
}

// health reports liveness only; it never touches the store.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requestID(r *http.Request) string {
	return logger.GetRequestID(r.Context())
}

// pathID parses a positive integer URL parameter. It writes a 400 and returns
// false when the parameter is malformed.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, name+" must be a positive integer", "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// queryInt parses an optional integer query parameter; absent means 0.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		writeError(w, r, name+" must be a non-negative integer", "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return v, true
}
