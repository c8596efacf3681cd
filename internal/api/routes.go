package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/bmstu-itstech/matchorch/internal/api/handlers"
	"github.com/bmstu-itstech/matchorch/internal/api/middleware"
	"github.com/bmstu-itstech/matchorch/internal/config"
	"github.com/bmstu-itstech/matchorch/pkg/logger"
)

// Server is the orchestration service's HTTP server. There is no auth layer:
// every route here is reachable by any caller who can reach the host, same
// as the service it replaces.
type Server struct {
	router *chi.Mux

	engineHandler      *handlers.EngineHandler
	matchHandler       *handlers.MatchHandler
	scrimmageHandler   *handlers.ScrimmageHandler
	tournamentHandler  *handlers.TournamentHandler
	systemHandler      *handlers.SystemHandler
	leaderboardHandler *handlers.LeaderboardHandler

	rateLimiter     middleware.RateLimiter
	corsConfig      config.CORSConfig
	rateLimitConfig config.RateLimitConfig
	log             *logger.Logger
}

// NewServer wires the router around the handler set.
func NewServer(
	engineHandler *handlers.EngineHandler,
	matchHandler *handlers.MatchHandler,
	scrimmageHandler *handlers.ScrimmageHandler,
	tournamentHandler *handlers.TournamentHandler,
	systemHandler *handlers.SystemHandler,
	leaderboardHandler *handlers.LeaderboardHandler,
	rateLimiter middleware.RateLimiter,
	corsConfig config.CORSConfig,
	rateLimitConfig config.RateLimitConfig,
	log *logger.Logger,
) *Server {
	s := &Server{
		router:             chi.NewRouter(),
		engineHandler:      engineHandler,
		matchHandler:       matchHandler,
		scrimmageHandler:   scrimmageHandler,
		tournamentHandler:  tournamentHandler,
		systemHandler:      systemHandler,
		leaderboardHandler: leaderboardHandler,
		rateLimiter:        rateLimiter,
		corsConfig:         corsConfig,
		rateLimitConfig:    rateLimitConfig,
		log:                log,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chiMiddleware.RequestID)
	s.router.Use(chiMiddleware.RealIP)
	s.router.Use(chiMiddleware.Logger)
	s.router.Use(chiMiddleware.Recoverer)

	s.router.Use(middleware.SecureHeaders())
	s.router.Use(middleware.Compress())

	// Callback routes get a much longer budget than ordinary requests: see
	// getTimeoutForRequest in middleware/timeout.go.
	s.router.Use(middleware.SmartTimeout(middleware.DefaultTimeoutConfig()))

	if s.rateLimitConfig.Enabled {
		s.router.Use(middleware.RateLimit(
			s.rateLimiter,
			s.rateLimitConfig.RequestsPerMinute,
			time.Minute,
			s.log,
		))
	}

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsConfig.AllowedOrigins,
		AllowedMethods:   s.corsConfig.AllowedMethods,
		AllowedHeaders:   s.corsConfig.AllowedHeaders,
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           s.corsConfig.MaxAge,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	s.router.Post("/game_engine", s.engineHandler.SetEngine)
	s.router.Post("/game_engine_reload", s.engineHandler.ReloadEngine)

	s.router.Post("/match", s.matchHandler.RunMatch)
	s.router.Post("/single_match_callback/{match_id}", s.matchHandler.SingleMatchCallback)

	s.router.Post("/scrimmage", s.scrimmageHandler.RunScrimmage)
	s.router.Post("/scrimmage_callback/{scrimmage_id}/{match_id}", s.scrimmageHandler.ScrimmageCallback)

	s.router.Post("/tournament", s.tournamentHandler.RunTournament)
	s.router.Post("/tournament_callback/{tournament_id}/{match_id}", s.tournamentHandler.TournamentCallback)

	s.router.Route("/system", func(r chi.Router) {
		r.Get("/metrics", s.systemHandler.GetMetrics)
		r.Get("/health", s.systemHandler.GetHealth)
	})

	s.router.Get("/leaderboard", s.leaderboardHandler.GetLeaderboard)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
