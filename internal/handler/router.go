package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	sessionHandler "github.com/zhouzirui/survey-runner/backend/internal/handler/session"
	surveyHandler "github.com/zhouzirui/survey-runner/backend/internal/handler/survey"
	middlewarePkg "github.com/zhouzirui/survey-runner/backend/internal/middleware"
	sessionService "github.com/zhouzirui/survey-runner/backend/internal/service/session"
	surveyService "github.com/zhouzirui/survey-runner/backend/internal/service/survey"
)

// Dependencies are the services the HTTP layer serves.
type Dependencies struct {
	Survey      *surveyService.Service
	Sessions    *sessionService.Service
	Session     sessionHandler.Config
	CORSOrigins []string
	Checks      map[string]Checker
	Logger      *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Session.Logger == nil {
		deps.Session.Logger = logger
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.NewCORS(deps.CORSOrigins))

	checks := deps.Checks
	if checks == nil {
		checks = map[string]Checker{"store": deps.Survey.Ping}
	}
	r.Get("/healthcheck", healthcheckHandler(checks, logger))

	surveyH := surveyHandler.New(deps.Survey, logger)
	sessionH := sessionHandler.New(deps.Sessions, deps.Survey, deps.Survey, deps.Session)

	// jsPsych pages post to these names relative to the page.
	surveyH.RegisterLegacyRoutes(r)

	r.Route("/api", func(api chi.Router) {
		surveyH.RegisterRoutes(api)
		sessionH.RegisterRoutes(api)
	})

	return r
}
