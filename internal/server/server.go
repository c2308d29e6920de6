package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/kidquest/internal/auth"
	"github.com/dukerupert/kidquest/internal/engine"
	"github.com/dukerupert/kidquest/internal/handler"
	"github.com/dukerupert/kidquest/internal/middleware"
	"github.com/dukerupert/kidquest/internal/seed"
	"github.com/dukerupert/kidquest/internal/session"
	ws "github.com/dukerupert/kidquest/internal/websocket"
)

// RateLimits bounds attempts on the credential and PIN endpoints.
type RateLimits struct {
	AuthAttempts int
	PINAttempts  int
	Window       time.Duration
}

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	Engine    *engine.Engine
	Hub       *ws.Hub
	Registry  *session.Registry
	Local     *auth.Local // nil with an external identity provider
	Verifier  auth.Verifier
	Tokens    *auth.JWTManager
	Catalogue seed.Catalogue
	Limits    RateLimits
	Origins   []string
}

type Server struct {
	hub         *ws.Hub
	registry    *session.Registry
	verifier    auth.Verifier
	tokens      *auth.JWTManager
	limits      RateLimits
	origins     []string
	authH       *handler.AuthHandler
	familyH     *handler.FamilyHandler
	sessionH    *handler.SessionHandler
	kidH        *handler.KidHandler
	parentH     *handler.ParentHandler
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(d Deps, logger *slog.Logger) *Server {
	return &Server{
		hub:         d.Hub,
		registry:    d.Registry,
		verifier:    d.Verifier,
		tokens:      d.Tokens,
		limits:      d.Limits,
		origins:     d.Origins,
		authH:       handler.NewAuthHandler(d.Local, d.Engine, logger.With("component", "auth")),
		familyH:     handler.NewFamilyHandler(d.Engine, d.Catalogue, logger.With("component", "family")),
		sessionH:    handler.NewSessionHandler(d.Engine, d.Registry, logger.With("component", "session")),
		kidH:        handler.NewKidHandler(d.Engine, d.Registry, logger.With("component", "kid")),
		parentH:     handler.NewParentHandler(d.Engine, d.Tokens, d.Registry, logger.With("component", "parent")),
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.Handle("POST /api/auth/signup", s.limited("signup", middleware.ByIP, s.limits.AuthAttempts, http.HandlerFunc(s.authH.SignUp)))
	outerMux.Handle("POST /api/auth/signin", s.limited("signin", middleware.ByIP, s.limits.AuthAttempts, http.HandlerFunc(s.authH.SignIn)))

	// Account routes
	protectedMux := http.NewServeMux()
	s.registerAccountRoutes(protectedMux)

	// Parent routes need an unlocked panel on top of the account token
	parentMux := http.NewServeMux()
	s.registerParentRoutes(parentMux)
	protectedMux.Handle("/api/parent/", middleware.RequireParent(s.tokens)(parentMux))

	outerMux.Handle("/", middleware.RequireAccount(s.verifier)(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}

// limited rate-limits h with its own bucket per route.
func (s *Server) limited(route string, key func(*http.Request) string, limit int, h http.Handler) http.Handler {
	scoped := func(r *http.Request) string { return route + "|" + key(r) }
	return middleware.RateLimit(s.rateLimiter, scoped, limit, s.limits.Window)(h)
}

func (s *Server) registerAccountRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/auth/me", s.authH.Me)

	mux.HandleFunc("POST /api/family", s.familyH.Create)
	mux.HandleFunc("GET /api/family", s.familyH.Get)

	// Device sessions
	mux.Handle("POST /api/session/profile", s.limited("profile-pin", middleware.ByFamily, s.limits.PINAttempts, http.HandlerFunc(s.sessionH.SwitchProfile)))
	mux.HandleFunc("GET /api/session", s.sessionH.Get)
	mux.HandleFunc("DELETE /api/session", s.sessionH.Logout)
	mux.HandleFunc("DELETE /api/session/summary", s.sessionH.DismissSummary)

	// Child actions
	mux.HandleFunc("GET /api/profiles/{id}/dashboard", s.kidH.Dashboard)
	mux.HandleFunc("POST /api/tasks/{id}/tap", s.kidH.Tap)
	mux.HandleFunc("POST /api/tasks/{id}/toggle", s.kidH.Toggle)
	mux.HandleFunc("DELETE /api/tasks/{id}/pending", s.kidH.CancelRequest)
	mux.HandleFunc("POST /api/rewards/{id}/redeem", s.kidH.Redeem)
	mux.HandleFunc("POST /api/savings/deposit", s.kidH.Deposit)
	mux.HandleFunc("DELETE /api/notifications/{id}", s.kidH.DismissNotification)

	// Unlock sits outside the parent gate; it is how the gate is opened.
	mux.Handle("POST /api/parent/unlock", s.limited("parent-pin", middleware.ByFamily, s.limits.PINAttempts, http.HandlerFunc(s.parentH.Unlock)))

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.origins))
}

func (s *Server) registerParentRoutes(mux *http.ServeMux) {
	mux.HandleFunc("PUT /api/parent/pin", s.parentH.UpdatePIN)

	mux.HandleFunc("GET /api/parent/approvals", s.parentH.Approvals)
	mux.HandleFunc("POST /api/parent/approvals/approve", s.parentH.Approve)
	mux.HandleFunc("POST /api/parent/approvals/reject", s.parentH.Reject)
	mux.HandleFunc("GET /api/parent/logs", s.parentH.Logs)

	mux.HandleFunc("POST /api/parent/tasks", s.parentH.CreateTask)
	mux.HandleFunc("PUT /api/parent/tasks/{id}", s.parentH.UpdateTask)
	mux.HandleFunc("DELETE /api/parent/tasks/{id}", s.parentH.DeleteTask)

	mux.HandleFunc("POST /api/parent/rewards", s.parentH.CreateReward)
	mux.HandleFunc("PUT /api/parent/rewards/{id}", s.parentH.UpdateReward)
	mux.HandleFunc("DELETE /api/parent/rewards/{id}", s.parentH.DeleteReward)

	mux.HandleFunc("POST /api/parent/profiles", s.parentH.CreateProfile)
	mux.HandleFunc("PUT /api/parent/profiles/{id}", s.parentH.UpdateProfile)
	mux.HandleFunc("DELETE /api/parent/profiles/{id}", s.parentH.DeleteProfile)
}
