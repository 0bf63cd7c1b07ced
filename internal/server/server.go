// Package server is the composition root: it builds the storage, session,
// service and handler layers from a config.Config, mounts the routes and runs
// the HTTP server with graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/product-catalog/internal/auth"
	"github.com/sakif/product-catalog/internal/config"
	"github.com/sakif/product-catalog/internal/handler"
	"github.com/sakif/product-catalog/internal/middleware"
	sqliteRepo "github.com/sakif/product-catalog/internal/repository/sqlite"
	"github.com/sakif/product-catalog/internal/service"
	"github.com/sakif/product-catalog/internal/session"
	"github.com/sakif/product-catalog/internal/web"
)

const shutdownTimeout = 30 * time.Second

// pinger is a backing store that /healthz checks.
type pinger interface {
	Ping(ctx context.Context) error
}

// Server owns the database and the session store; Close releases both.
type Server struct {
	router   *chi.Mux
	config   config.Config
	logger   *slog.Logger
	db       *sqliteRepo.DB
	sessions *session.Manager
	metrics  *middleware.Metrics

	// pingers are checked by /healthz: the database, then the session store
	// when it is a separate service.
	pingers []pinger

	// closers run in order on Close, after the HTTP server has drained.
	closers []io.Closer
}

// New wires every dependency. cfg must already be validated and carry a
// session secret.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		pingers: []pinger{db},
		closers: []io.Closer{db},
	}

	if err := s.setup(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) setup() error {
	store, err := s.sessionStore()
	if err != nil {
		return err
	}

	tokens, err := auth.NewTokenService(s.config.SessionSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	s.sessions = session.NewManager(store, tokens, session.Options{
		CookieName: session.DefaultCookieName,
		TTL:        s.config.SessionTTL,
		Secure:     s.config.CookieSecure,
	}, s.logger)

	if s.config.MetricsEnabled {
		s.metrics = middleware.NewMetrics()
	}

	pages, err := handler.NewRenderer(s.logger)
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	passwords := auth.NewPasswordService(s.config.BcryptCost)
	s.logger.Debug("password hashing ready", slog.Int("bcryptCost", passwords.Cost()))
	authService := service.NewAuthService(s.db, passwords, s.logger)
	productService := service.NewProductService(s.db, s.logger)

	s.routes(
		pages,
		auth.RequireUser(authService, s.logger),
		handler.NewAuthHandler(authService, pages, s.metrics, s.logger),
		handler.NewProductHandler(productService, pages, s.logger),
	)
	return nil
}

// sessionStore picks SQLite (the default) or Redis.
func (s *Server) sessionStore() (session.Store, error) {
	if s.config.SessionStore != config.StoreRedis {
		return s.db, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rs, err := session.NewRedisStore(ctx, session.RedisOptions{
		Addr:     s.config.RedisAddr,
		Password: s.config.RedisPassword,
		DB:       s.config.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting session store: %w", err)
	}
	s.closers = append([]io.Closer{rs}, s.closers...)
	s.pingers = append(s.pingers, rs)
	s.logger.Info("using redis session store", slog.String("addr", s.config.RedisAddr))
	return rs, nil
}

// routes mounts every endpoint.
//
//	GET       /                     landing page
//	GET/POST  /signup, /login       auth forms
//	GET       /logout               end session
//	GET       /dashboard            own products          (login required)
//	GET/POST  /product/create                             (login required)
//	GET/POST  /product/update/{id}                        (login required, owner only)
//	POST      /product/delete/{id}                        (login required, owner only)
//	GET       /static/*, /healthz, /metrics
//
// A non-numeric {id} does not match and falls through to the 404 page before
// any login check.
func (s *Server) routes(
	pages *handler.Renderer,
	requireUser func(http.Handler) http.Handler,
	authH *handler.AuthHandler,
	productH *handler.ProductHandler,
) {
	r := s.router

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}

	r.NotFound(pages.NotFound)

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(web.Static())))
	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(s.sessions.Middleware)

		r.Get("/", pages.HandleHome)
		r.Get("/signup", authH.HandleSignupForm)
		r.Post("/signup", authH.HandleSignup)
		r.Get("/login", authH.HandleLoginForm)
		r.Post("/login", authH.HandleLogin)
		r.Get("/logout", authH.HandleLogout)

		r.Group(func(r chi.Router) {
			r.Use(requireUser)

			r.Get("/dashboard", productH.HandleDashboard)
			r.Get("/product/create", productH.HandleCreateForm)
			r.Post("/product/create", productH.HandleCreate)
			r.Get("/product/update/{id:[0-9]+}", productH.HandleUpdateForm)
			r.Post("/product/update/{id:[0-9]+}", productH.HandleUpdate)
			r.Post("/product/delete/{id:[0-9]+}", productH.HandleDelete)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, p := range s.pingers {
		if err := p.Ping(ctx); err != nil {
			s.logger.Error("health check failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("unavailable\n"))
			return
		}
	}
	_, _ = w.Write([]byte("ok\n"))
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the session store and the database.
func (s *Server) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests for up
// to 30 seconds and closes the server's resources.
func (s *Server) Start() error {
	defer s.Close()

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
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.String("sessionStore", s.config.SessionStore),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// PruneSessions deletes expired session records from the configured store.
func (s *Server) PruneSessions(ctx context.Context) (int64, error) {
	return s.sessions.Prune(ctx)
}
