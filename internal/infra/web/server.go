package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"voiceforge/internal/config"
	"voiceforge/internal/domain/ports/adapter"
	"voiceforge/internal/infra/redis"
	"voiceforge/internal/usecase"
)

type Server struct {
	jobUC     usecase.JobUseCase
	userUC    usecase.UserUseCase
	statsUC   usecase.StatsUseCase
	auth      *AuthManager
	artifacts adapter.ArtifactStore
	limiter   *redis.RateLimiter
	limits    config.LimitsConfig
	log       *zerolog.Logger
}

func NewServer(
	jobUC usecase.JobUseCase,
	userUC usecase.UserUseCase,
	statsUC usecase.StatsUseCase,
	auth *AuthManager,
	artifacts adapter.ArtifactStore,
	limiter *redis.RateLimiter,
	limits config.LimitsConfig,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		jobUC:     jobUC,
		userUC:    userUC,
		statsUC:   statsUC,
		auth:      auth,
		artifacts: artifacts,
		limiter:   limiter,
		limits:    limits,
		log:       &l,
	}
}

// Routes builds the public API router. /metrics is mounted by the caller
// so the prometheus handler stays outside the authenticated surface.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/auth/me", s.handleMe)

			r.Route("/tts/jobs", func(r chi.Router) {
				r.Post("/", s.handleSubmit)
				r.Get("/", s.handleList)
				r.Get("/{jobID}", s.handleStatus)
				r.Delete("/{jobID}", s.handleDelete)
				r.Get("/{jobID}/audio", s.handleAudio)
			})

			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/admin/stats", s.handleStats)
			})
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
