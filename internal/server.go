package internal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"appshell/internal/auth"
	"appshell/internal/config"
	"appshell/internal/dataaccess"
	"appshell/internal/handlers"
	"appshell/internal/querycache"
	"appshell/internal/store"
	"appshell/internal/web"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// APIPrefix is where the API sub-router is mounted on the root router.
const APIPrefix = "/api"

// ProfileEnsurer keeps a profile row per signed-in user.
type ProfileEnsurer interface {
	Ensure(ctx context.Context, id uuid.UUID, email string) error
}

// Deps are the collaborators of a Server. Open builds them from the
// configuration; tests pass fakes.
type Deps struct {
	Config    *config.Config
	Logger    *zap.Logger
	DB        *sql.DB
	Pool      *pgxpool.Pool
	Provider  auth.Provider
	Passwords auth.PasswordAuthenticator
	Projects  dataaccess.ProjectBackend
	Profiles  ProfileEnsurer
	Cache     querycache.Cache
	Metrics   *Metrics
}

type Server struct {
	DB       *sql.DB
	Pool     *pgxpool.Pool
	Router   *chi.Mux
	Provider auth.Provider
	Projects *dataaccess.Projects
	Profiles ProfileEnsurer
	Cache    querycache.Cache
	Metrics  *Metrics
	Logger   *zap.Logger

	rls      bool
	profiles profileMemo
	closers  []func() error
}

// NewServer wires the root router: public pages and the gated shell at the
// root, the API sub-router under APIPrefix.
func NewServer(deps Deps) (*Server, error) {
	if deps.Config == nil {
		return nil, errors.New("config is required")
	}
	if deps.Provider == nil {
		return nil, errors.New("auth provider is required")
	}
	if deps.Projects == nil {
		return nil, errors.New("projects backend is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Cache == nil {
		deps.Cache = querycache.NewMemory()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}

	s := &Server{
		DB:       deps.DB,
		Pool:     deps.Pool,
		Router:   chi.NewRouter(),
		Provider: deps.Provider,
		Profiles: deps.Profiles,
		Cache:    deps.Cache,
		Metrics:  deps.Metrics,
		Logger:   deps.Logger,
		rls:      deps.Config.RLSEnabled,
	}
	s.Projects = dataaccess.NewProjects(deps.Projects, deps.Cache,
		dataaccess.WithTTL(deps.Config.CacheTTL),
		dataaccess.WithLogger(deps.Logger),
		dataaccess.WithObserver(deps.Metrics),
	)

	pages, err := web.New(web.Config{
		Provider:     deps.Provider,
		Passwords:    deps.Passwords,
		Projects:     s.Projects,
		LoginPath:    deps.Config.LoginPath,
		SecureCookie: deps.Config.IsProduction(),
		Logger:       deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("load pages: %w", err)
	}

	s.Router.Use(middleware.RequestID)
	s.Router.Use(middleware.RealIP)
	s.Router.Use(requestLogger(s.Logger))
	s.Router.Use(middleware.Recoverer)
	if deps.Config.EnableMetrics {
		s.Router.Use(s.Metrics.Middleware())
		s.Router.Get("/metrics", s.Metrics.Handler().ServeHTTP)
	}

	s.Router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	pages.Routes(s.Router, s.withRLSSession)
	s.Router.Mount(APIPrefix, s.apiRouter())

	return s, nil
}

// apiRouter is the API sub-router. Its root answers a fixed greeting; entity
// sub-routers hang below it.
func (s *Server) apiRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if _, err := w.Write([]byte("Hello World")); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAPISession(s.Provider))
		r.Use(s.withRLSSession)
		r.Use(s.ensureProfile)

		r.Get("/profile", s.getProfile)
		r.Route("/projects", s.mountProjectRoutes)
	})
	return r
}

func (s *Server) mountProjectRoutes(r chi.Router) {
	r.Get("/", s.listProjects)
	r.Post("/", s.createProject)
	r.Get("/{id}", s.getProject)
	r.Patch("/{id}", s.updateProject)
	r.Delete("/{id}", s.deleteProject)

	if s.Pool != nil {
		imports := handlers.NewImportsHandler(s.Pool, s.Projects, s.Logger)
		r.Post("/import", imports.UploadExcel)
	}
}

// Open connects to the database, the query cache and the auth provider
// described by cfg and returns a ready Server.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if cfg.DatabaseURL == config.MemoryDatabaseURL {
		return openInMemory(ctx, cfg, logger)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	closers := []func() error{db.Close}
	fail := func(err error) (*Server, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fail(fmt.Errorf("database ping: %w", err))
	}

	// The importer works on pgx transactions directly.
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fail(fmt.Errorf("create pgxpool: %w", err))
	}
	closers = append(closers, func() error { pool.Close(); return nil })

	var cache querycache.Cache = querycache.NewMemory()
	if cfg.RedisURL != "" {
		rc, err := querycache.DialRedis(ctx, cfg.RedisURL, "")
		if err != nil {
			return fail(err)
		}
		closers = append(closers, rc.Close)
		cache = rc
	}

	provider, passwords, err := NewProvider(ctx, cfg)
	if err != nil {
		return fail(err)
	}

	s, err := NewServer(Deps{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Pool:      pool,
		Provider:  provider,
		Passwords: passwords,
		Projects:  store.NewProjectStore(db),
		Profiles:  store.NewProfileStore(db),
		Cache:     cache,
	})
	if err != nil {
		return fail(err)
	}
	s.closers = closers
	return s, nil
}

// openInMemory runs without Postgres: projects live in process and the
// import endpoint is not mounted.
func openInMemory(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	provider, passwords, err := NewProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewServer(Deps{
		Config:    cfg,
		Logger:    logger,
		Provider:  provider,
		Passwords: passwords,
		Projects:  store.NewMemoryProjectStore(),
	})
}

// NewProvider builds the session provider selected by cfg.AuthProvider. The
// password authenticator is nil for providers that cannot sign users in.
func NewProvider(ctx context.Context, cfg *config.Config) (auth.Provider, auth.PasswordAuthenticator, error) {
	switch cfg.AuthProvider {
	case config.ProviderHosted, "":
		p := auth.NewHostedProvider(cfg.BaaSURL, cfg.BaaSAnonKey, nil)
		return p, p, nil
	case config.ProviderJWT:
		p := auth.NewJWTProvider(cfg.JWTSecret, cfg.JWTAudience, time.Hour)
		if err := p.ValidateConfig(); err != nil {
			return nil, nil, fmt.Errorf("jwt provider: %w", err)
		}
		return p, nil, nil
	case config.ProviderFirebase:
		p, err := auth.NewFirebaseProvider(ctx, cfg.FirebaseCredentialsPath)
		if err != nil {
			return nil, nil, err
		}
		return p, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown auth provider %q", cfg.AuthProvider)
	}
}

// RunCacheSweeper drops expired entries of the in-process cache every
// interval until ctx is done. Redis expires keys itself, so it returns at
// once for any other cache.
func (s *Server) RunCacheSweeper(ctx context.Context, interval time.Duration) {
	m, ok := s.Cache.(*querycache.Memory)
	if !ok {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				s.Logger.Debug("query cache swept", zap.Int("entries", n))
			}
		}
	}
}

// Close releases everything Open acquired, in reverse order.
func (s *Server) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
