// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects stores, services, handlers
// and middleware, and decides:
// - Which backing services are used (sqlite or mongo, Redis or nothing, SMTP or nothing)
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config ──► New()
//	                   ├─ store:     sqlite.DB | mongo.Store  (wrapped by cached.UserRepository)
//	                   ├─ revoked:   revocation.Redis | revocation.Noop
//	                   ├─ mailer:    mail.Mailer | mail.Disabled
//	                   ├─ services:  AuthService, UserService, WishlistService
//	                   └─ handlers:  AuthHandler, OAuthHandler, UserHandler, WishlistHandler, HealthHandler
//
// This is the "composition root" pattern: all dependencies are wired in one
// place, and every other package only sees interfaces or concrete values it
// was handed.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/danigit7/E-commerce/internal/auth"
	"github.com/danigit7/E-commerce/internal/config"
	"github.com/danigit7/E-commerce/internal/handler"
	"github.com/danigit7/E-commerce/internal/mail"
	"github.com/danigit7/E-commerce/internal/middleware"
	"github.com/danigit7/E-commerce/internal/repository"
	"github.com/danigit7/E-commerce/internal/repository/cached"
	mongoRepo "github.com/danigit7/E-commerce/internal/repository/mongo"
	sqliteRepo "github.com/danigit7/E-commerce/internal/repository/sqlite"
	"github.com/danigit7/E-commerce/internal/revocation"
	"github.com/danigit7/E-commerce/internal/service"
)

const (
	shutdownTimeout = 30 * time.Second
	maxCachedUsers  = 10_000
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store connection, the Redis client and the cache.
// Each is registered in closers as it is opened and closed in reverse order
// on shutdown (or by New itself if a later step fails).
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	users   repository.UserRepository
	closers []closer
}

type closer struct {
	name  string
	close func(context.Context) error
}

// deps is everything the routes need, assembled by New.
type deps struct {
	users    repository.UserRepository
	tokens   *auth.TokenService
	auth     *handler.AuthHandler
	oauth    *handler.OAuthHandler // nil when Google is not configured
	user     *handler.UserHandler
	wishlist *handler.WishlistHandler
	health   *handler.HealthHandler
}

// New opens every backing service named by cfg and wires the router.
//
// Nothing is served until Start is called, so a misconfigured store or an
// unreachable Redis fails here, before the port is bound.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
	}

	d, err := s.wire(ctx)
	if err != nil {
		s.Close(context.Background())
		return nil, err
	}

	s.users = d.users
	s.setupRoutes(d)
	return s, nil
}

func (s *Server) onClose(name string, fn func(context.Context) error) {
	s.closers = append(s.closers, closer{name: name, close: fn})
}

// wire builds the dependency graph.
func (s *Server) wire(ctx context.Context) (*deps, error) {
	cfg := s.config

	// === STORE ===
	users, err := s.openStore(ctx)
	if err != nil {
		return nil, err
	}

	// The cache sits in front of the store for the per-request user load in
	// RequireAuth. Writes through it evict, so it stays coherent within this
	// process; USER_CACHE_TTL bounds staleness across processes.
	if cfg.UserCacheTTL > 0 {
		c, err := cached.New(users, cfg.UserCacheTTL, maxCachedUsers)
		if err != nil {
			return nil, err
		}
		s.onClose("user cache", func(context.Context) error { c.Close(); return nil })
		users = c
	}

	// === REVOCATION LIST ===
	var revoked revocation.List = revocation.Noop{}
	if cfg.RedisURL != "" {
		client, err := revocation.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		s.onClose("redis", func(context.Context) error { return client.Close() })
		revoked = revocation.NewRedis(client)
		s.logger.Info("refresh token revocation enabled")
	} else {
		s.logger.Info("REDIS_URL not set; logout clears the cookie without revoking the refresh token")
	}

	// === MAIL ===
	var mailer mail.Sender = mail.Disabled{}
	if cfg.MailEnabled() {
		mailer = mail.New(mail.Config{
			Host:     cfg.EmailHost,
			Port:     cfg.EmailPort,
			Username: cfg.EmailUser,
			Password: cfg.EmailPassword,
			From:     cfg.EmailFrom,
			Timeout:  cfg.SMTPTimeout,
		}, s.logger)
	} else {
		s.logger.Warn("EMAIL_HOST/EMAIL_FROM not set; forgot-password will fail")
	}

	// === AUTH PRIMITIVES ===
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordServiceWithCost(cfg.BcryptCost)
	cookies := auth.NewCookieWriter(cfg.IsProduction(), tokens.RefreshTTL())

	// === SERVICES AND HANDLERS ===
	authSvc := service.NewAuthService(service.AuthDeps{
		Users:     users,
		Tokens:    tokens,
		Passwords: passwords,
		Revoked:   revoked,
		Mailer:    mailer,
		ClientURL: cfg.ClientURL,
		Logger:    s.logger,
	})

	d := &deps{
		users:    users,
		tokens:   tokens,
		auth:     handler.NewAuthHandler(authSvc, cookies, s.logger),
		user:     handler.NewUserHandler(service.NewUserService(users, passwords, s.logger), s.logger),
		wishlist: handler.NewWishlistHandler(service.NewWishlistService(users)),
		health:   handler.NewHealthHandler(),
	}

	if cfg.GoogleEnabled() {
		google := auth.NewGoogleProvider(auth.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			CallbackURL:  cfg.GoogleCallbackURL,
		})
		d.oauth = handler.NewOAuthHandler(google, authSvc, cookies, cfg.ClientURL, cfg.IsProduction(), s.logger)
	} else {
		s.logger.Warn("GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET not set; Google sign-in is disabled")
	}

	return d, nil
}

// openStore picks the backend: mongo when a URI is configured, sqlite
// otherwise.
//
// IMPORT ALIAS:
// repository/sqlite and repository/mongo are imported as sqliteRepo and
// mongoRepo so they are not confused with the driver packages.
func (s *Server) openStore(ctx context.Context) (repository.UserRepository, error) {
	if s.config.MongoURI != "" {
		store, err := mongoRepo.New(ctx, s.config.MongoURI, s.config.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("opening mongo store: %w", err)
		}
		s.onClose("mongo", store.Close)
		s.logger.Info("using mongo store", slog.String("database", s.config.MongoDB))
		return store, nil
	}

	db, err := sqliteRepo.New(s.config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s.onClose("sqlite", func(context.Context) error { return db.Close() })
	s.logger.Info("using sqlite store", slog.String("path", s.config.DBPath))
	return db, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /api/health                          → liveness
// POST   /api/auth/register                   → create account
// POST   /api/auth/login                      → email + password
// POST   /api/auth/refresh                    → new access token from cookie
// POST   /api/auth/forgot-password            → email a reset link
// POST   /api/auth/reset-password/{token}     → set a new password
// GET    /api/auth/google                     → start Google sign-in   (if configured)
// GET    /api/auth/google/callback            → finish Google sign-in  (if configured)
// POST   /api/auth/logout                     → [bearer] clear cookie, revoke
// GET    /api/auth/me                         → [bearer] current user
// GET    /api/auth/verify                     → [bearer] token check
// GET    /api/users/profile                   → [bearer] profile
// PUT    /api/users/profile                   → [bearer] update profile
// GET    /api/wishlist                        → [bearer] list
// DELETE /api/wishlist                        → [bearer] clear
// POST   /api/wishlist/{productId}            → [bearer] add
// DELETE /api/wishlist/{productId}            → [bearer] remove
// GET    /api/admin/users                     → [bearer+admin] page of users
// PUT    /api/admin/users/{id}/toggle-status  → [bearer+admin] (de)activate
// DELETE /api/admin/users/{id}                → [bearer+admin] delete
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns a unique ID to each request (for tracing)
// 2. RealIP: extracts real client IP from proxy headers
// 3. Logger: logs each request with timing info (needs 1 and 2)
// 4. Recoverer: catches panics and returns 500 instead of crashing
// 5. CORS: answers preflights for the SPA origin(s), with credentials so
//    the refresh cookie is sent cross-origin
func (s *Server) setupRoutes(d *deps) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	requireAuth := auth.RequireAuth(d.tokens, d.users)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", d.health.HandleHealth)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", d.auth.HandleRegister)
			r.Post("/login", d.auth.HandleLogin)
			r.Post("/refresh", d.auth.HandleRefresh)
			r.Post("/forgot-password", d.auth.HandleForgotPassword)
			r.Post("/reset-password/{token}", d.auth.HandleResetPassword)

			if d.oauth != nil {
				r.Get("/google", d.oauth.HandleGoogleLogin)
				r.Get("/google/callback", d.oauth.HandleGoogleCallback)
			}

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/logout", d.auth.HandleLogout)
				r.Get("/me", d.auth.HandleMe)
				r.Get("/verify", d.auth.HandleVerify)
			})
		})

		r.With(requireAuth).Route("/users", func(r chi.Router) {
			r.Get("/profile", d.user.HandleGetProfile)
			r.Put("/profile", d.user.HandleUpdateProfile)
		})

		r.With(requireAuth).Route("/wishlist", func(r chi.Router) {
			r.Get("/", d.wishlist.HandleGet)
			r.Delete("/", d.wishlist.HandleClear)
			r.Post("/{productId}", d.wishlist.HandleAdd)
			r.Delete("/{productId}", d.wishlist.HandleRemove)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(auth.RequireAdmin)
			r.Get("/users", d.user.HandleList)
			r.Put("/users/{id}/toggle-status", d.user.HandleToggleStatus)
			r.Delete("/users/{id}", d.user.HandleDelete)
		})
	})
}

// Handler returns the fully wired router. Tests serve it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the store, Redis client and cache, newest first.
// Errors are logged; Close itself never fails.
func (s *Server) Close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		c := s.closers[i]
		if err := c.close(ctx); err != nil {
			s.logger.Error("closing resource failed",
				slog.String("resource", c.name),
				slog.String("error", err.Error()),
			)
		}
	}
	s.closers = nil
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the store, Redis and cache (flushes WAL, releases file lock)
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("env", s.config.Env),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	var runErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			runErr = fmt.Errorf("graceful shutdown failed: %w", err)
		} else {
			s.logger.Info("server stopped gracefully")
		}
	}

	// Resources are closed only after in-flight requests are done with them.
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Close(closeCtx)

	return runErr
}
