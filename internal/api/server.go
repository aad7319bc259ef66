package api

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/smukkama/weather-pipeline/internal/ingestion"
	"github.com/smukkama/weather-pipeline/internal/notification"
	"github.com/smukkama/weather-pipeline/internal/weather"
	"go.uber.org/zap"
)

// DefaultPageSize is the number of rollups per city on one page
const DefaultPageSize = 6

var validate = validator.New()

// Ingestor runs ingestion cycles on demand
type Ingestor interface {
	RunCycle(ctx context.Context) (*ingestion.CycleResult, error)
	State() *ingestion.ConnectionState
	Cities() []weather.City
}

// IntervalController reads and changes the ingestion interval
type IntervalController interface {
	Interval() int
	SetInterval(ctx context.Context, minutes int) error
}

// Config holds the HTTP surface settings
type Config struct {
	Topic          string
	AllowedOrigins []string
	PageSize       int
}

// Server exposes the query and admin endpoints plus the websocket feed
type Server struct {
	cfg       Config
	store     weather.Store
	ingestor  Ingestor
	intervals IntervalController
	hub       *notification.Hub
	upgrader  websocket.Upgrader
	logger    *zap.Logger
}

// NewServer creates a new API server
func NewServer(cfg Config, store weather.Store, ingestor Ingestor, intervals IntervalController, hub *notification.Hub, logger *zap.Logger) *Server {
	if cfg.PageSize < 1 {
		cfg.PageSize = DefaultPageSize
	}
	return &Server{
		cfg:       cfg,
		store:     store,
		ingestor:  ingestor,
		intervals: intervals,
		hub:       hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// origins are enforced by the CORS layer
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.Named("api"),
	}
}

// Handler builds the router wrapped in CORS and panic recovery
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter().StrictSlash(true)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ws/notifications/", s.handleNotifications).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/get-rollups/", s.handleGetRollups).Methods(http.MethodGet)
	api.HandleFunc("/current-weather/", s.handleCurrentWeather).Methods(http.MethodGet)
	api.HandleFunc("/get-cities/", s.handleGetCities).Methods(http.MethodGet)
	api.HandleFunc("/check-connection-status/", s.handleConnectionStatus).Methods(http.MethodGet)
	api.HandleFunc("/get-interval/", s.handleGetInterval).Methods(http.MethodGet)
	api.HandleFunc("/set-interval/", s.handleSetInterval).Methods(http.MethodPost)
	api.HandleFunc("/get-thresholds/", s.handleGetThresholds).Methods(http.MethodGet)
	api.HandleFunc("/set-thresholds/", s.handleSetThresholds).Methods(http.MethodPost)
	api.HandleFunc("/delete-threshold/", s.handleDeleteThreshold).Methods(http.MethodDelete)

	r.Use(s.logRequests)

	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return s.recoverPanics(c.Handler(r))
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("Handler panicked",
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()))
				respondError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("Request served",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"hub":    s.hub.Stats(),
	})
}
