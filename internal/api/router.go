package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/veridata/surveyguard/internal/aggregate"
	"github.com/veridata/surveyguard/internal/config"
	"github.com/veridata/surveyguard/internal/fraud"
	"github.com/veridata/surveyguard/internal/metrics"
	"github.com/veridata/surveyguard/internal/scoring"
	"github.com/veridata/surveyguard/internal/settings"
	"github.com/veridata/surveyguard/internal/store"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Cfg           *config.Store
	DB            *store.DB
	Scorer        *scoring.Service
	Aggregator    *aggregate.Service
	Settings      *settings.Service
	Fingerprinter *fraud.Fingerprinter
	Metrics       *metrics.Metrics
	Log           *zap.Logger
}

// NewRouter builds the HTTP surface.
func NewRouter(d Deps) http.Handler {
	h := &Handlers{
		cfg:           d.Cfg,
		db:            d.DB,
		scorer:        d.Scorer,
		agg:           d.Aggregator,
		settings:      d.Settings,
		fingerprinter: d.Fingerprinter,
		metrics:       d.Metrics,
		log:           d.Log,
	}

	// CORS origins and the rate budget are not runtime-tunable; read them once.
	boot := d.Cfg.Current()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Compress(5))
	r.Use(statusMetrics(d.Metrics))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: boot.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	r.Get("/api/version", h.GetVersion)
	r.Handle("/metrics", promhttp.Handler())

	// Capture surface: session lifecycle and ingest, rate limited per IP.
	r.Group(func(r chi.Router) {
		r.Use(RateLimit(boot.IngestRatePerMin, time.Minute))

		r.Post("/sessions", h.CreateSession)
		r.Route("/sessions/{session_id}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Put("/status", h.UpdateSessionStatus)
			r.Delete("/", h.DeleteSession)

			r.Post("/events", h.IngestEvents)
			r.Get("/events", h.ListEvents)
			r.Post("/questions", h.CreateQuestion)
			r.Post("/responses", h.CreateResponse)
			r.Post("/grid-responses", h.CreateGridRows)

			r.Post("/analyze", h.AnalyzeSession)
			r.Get("/detection", h.GetDetection)
			r.Get("/fraud", h.GetFraudIndicator)
		})
	})

	// Hierarchical read surface.
	r.Route("/surveys", func(r chi.Router) {
		r.Get("/", h.ListSurveys)
		r.Route("/{survey_id}", func(r chi.Router) {
			r.Get("/", h.GetSurvey)
			r.Get("/summary", h.GetSummary)
			r.Route("/platforms", func(r chi.Router) {
				r.Get("/", h.ListPlatforms)
				r.Route("/{platform_id}", func(r chi.Router) {
					r.Get("/", h.GetPlatform)
					r.Get("/summary", h.GetSummary)
					r.Route("/respondents", func(r chi.Router) {
						r.Get("/", h.ListRespondents)
						r.Route("/{respondent_id}", func(r chi.Router) {
							r.Get("/", h.GetRespondent)
							r.Get("/summary", h.GetSummary)
							r.Get("/sessions", h.ListSessions)
							r.Get("/sessions/{session_id}", h.GetSession)
						})
					})
				})
			})
		})
	})

	// Parallel analysis trees; hierarchy filters arrive as query parameters.
	r.Route("/fraud", func(r chi.Router) {
		r.Get("/summary", h.GetFraudSummary)
		r.Get("/sessions/{session_id}", h.GetFraudIndicator)
	})
	r.Route("/grid-analysis", func(r chi.Router) {
		r.Get("/summary", h.GetGridSummary)
		r.Get("/sessions/{session_id}", h.GetGridAnalyses)
	})
	r.Route("/timing-analysis", func(r chi.Router) {
		r.Get("/summary", h.GetTimingSummary)
		r.Get("/sessions/{session_id}", h.GetTimingAnalyses)
	})
	r.Route("/text-analysis", func(r chi.Router) {
		r.Get("/summary", h.GetTextSummary)
		r.Get("/sessions/{session_id}", h.GetTextAnalyses)
	})

	// Operator surface.
	r.Route("/api/settings", func(r chi.Router) {
		r.Get("/", h.GetSettings)
		r.Put("/", h.UpdateSettings)
	})

	return r
}

// statusMetrics counts served requests by status class.
func statusMetrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			switch {
			case ww.Status() >= 500:
				m.RecordHTTP("5xx")
			case ww.Status() >= 400:
				m.RecordHTTP("4xx")
			default:
				m.RecordHTTP("2xx")
			}
		})
	}
}
