package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/examprep/internal/api"
	"github.com/victornm/examprep/internal/attempt"
	"github.com/victornm/examprep/internal/auth"
	"github.com/victornm/examprep/internal/catalog"
	"github.com/victornm/examprep/internal/event"
	"github.com/victornm/examprep/internal/questionbank"
	"github.com/victornm/examprep/internal/store/postgres"
	"github.com/victornm/examprep/internal/store/sqlite"
	"github.com/victornm/examprep/internal/telemetry"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Log struct {
		Level string
	}

	Catalog struct {
		// File is an optional fixture loaded into the store at startup.
		File string
	}

	Store struct {
		Driver string

		Postgres struct {
			Addr string
			User string
			Pass string
			Name string
		}

		SQLite struct {
			DSN string
		}
	}

	Redis struct {
		Cache struct {
			Addrs  []string
			Pass   string
			Prefix string
			TTL    time.Duration
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Auth struct {
		Secret string
		Issuer string
	}

	Attempt struct {
		StoreTimeout time.Duration `mapstructure:"store_timeout"`
	}

	CORS struct {
		AllowOrigins []string `mapstructure:"allow_origins"`
	}
}

// DefaultConfig is overridden by the config file and the environment.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.GRPC.Port = 9090
	c.Log.Level = "info"
	c.Store.Driver = DriverSQLite
	c.Store.SQLite.DSN = "file:examprep.db?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	c.Redis.Cache.Prefix = "examprep"
	c.Redis.Cache.TTL = time.Minute
	c.Redis.Pubsub.Prefix = "examprep"
	c.Attempt.StoreTimeout = 5 * time.Second
	return c
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.Postgres.Addr == "" {
			return fmt.Errorf("store.postgres.addr is required")
		}
	case DriverSQLite:
		if c.Store.SQLite.DSN == "" {
			return fmt.Errorf("store.sqlite.dsn is required")
		}
	default:
		return fmt.Errorf("store.driver must be %s or %s, got %q", DriverPostgres, DriverSQLite, c.Store.Driver)
	}

	if c.HTTP.Port <= 0 || c.GRPC.Port <= 0 {
		return fmt.Errorf("http.port and grpc.port must be positive")
	}

	return nil
}

// store is what both store drivers provide.
type store interface {
	attempt.QuestionBank
	attempt.Roster
	attempt.AttemptStore
	attempt.AnswerStore
	catalog.Writer
	api.Pinger
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			cache  redis.UniversalClient
			pubsub redis.UniversalClient
		}

		store   store
		cache   *questionbank.Cache
		closers []io.Closer
	}

	service struct {
		attempt *attempt.Service
	}

	http *http.Server
	grpc *grpc.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus(event.WithObserver(telemetry.EventObserver()))
	telemetry.ObserveAttempts(s.eb)

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initStore(); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	if s.infra.redis.cache != nil {
		s.infra.cache = questionbank.NewCache(questionbank.Config{
			Bank:   s.infra.store,
			Redis:  s.infra.redis.cache,
			Prefix: s.c.Redis.Cache.Prefix,
			TTL:    s.c.Redis.Cache.TTL,
		})
	}

	if err := s.loadCatalog(); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(name string, addrs []string, pass string) (redis.UniversalClient, error) {
		if len(addrs) == 0 {
			slog.Warn(fmt.Sprintf("redis %s: no addresses configured, disabled", name))
			return nil, nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r, name); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		s.infra.closers = append(s.infra.closers, r)
		return r, nil
	}

	var err error
	s.infra.redis.cache, err = connect("cache", s.c.Redis.Cache.Addrs, s.c.Redis.Cache.Pass)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	s.infra.redis.pubsub, err = connect("pubsub", s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initStore() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch s.c.Store.Driver {
	case DriverPostgres:
		pg := s.c.Store.Postgres
		cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", pg.User, pg.Pass, pg.Addr, pg.Name))
		if err != nil {
			return err
		}

		db, err := pgxpool.NewWithConfig(ctx, cc)
		if err != nil {
			return err
		}

		if err := db.Ping(ctx); err != nil {
			db.Close()
			return err
		}

		st := postgres.New(postgres.Config{DB: db})
		if err := st.Migrate(ctx); err != nil {
			db.Close()
			return err
		}

		s.infra.store = st
		s.infra.closers = append(s.infra.closers, closerFunc(func() error {
			db.Close()
			return nil
		}))

	case DriverSQLite:
		st, err := sqlite.Open(ctx, sqlite.Config{DSN: s.c.Store.SQLite.DSN, MaxOpenConns: 1})
		if err != nil {
			return err
		}

		s.infra.store = st
		s.infra.closers = append(s.infra.closers, st)
	}

	slog.Info(fmt.Sprintf("server: using %s store", s.c.Store.Driver))
	return nil
}

// loadCatalog writes the configured fixture and clears what the cache holds of it.
func (s *Server) loadCatalog() error {
	if s.c.Catalog.File == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var opts []catalog.Option
	if s.infra.cache != nil {
		opts = append(opts, catalog.WithInvalidator(s.infra.cache))
	}

	return catalog.LoadFile(ctx, s.c.Catalog.File, s.infra.store, opts...)
}

func (s *Server) initService() {
	var bank attempt.QuestionBank = s.infra.store
	if s.infra.cache != nil {
		bank = s.infra.cache
	}

	s.service.attempt = attempt.NewService(attempt.Config{
		Bank:         bank,
		Source:       s.infra.store,
		Roster:       s.infra.store,
		Attempts:     s.infra.store,
		Answers:      s.infra.store,
		EventBus:     s.eb,
		StoreTimeout: s.c.Attempt.StoreTimeout,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.Use(gin.Recovery(), telemetry.GinMiddleware())
	if len(s.c.CORS.AllowOrigins) > 0 {
		e.Use(cors.New(cors.Config{
			AllowOrigins: s.c.CORS.AllowOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")

	var (
		interceptors []grpc.UnaryServerInterceptor
		middlewares  []gin.HandlerFunc
	)
	if s.c.Auth.Secret != "" {
		v := auth.NewVerifier(auth.Config{Secret: s.c.Auth.Secret, Issuer: s.c.Auth.Issuer})
		interceptors = append(interceptors, auth.UnaryServerInterceptor(v, "/grpc.health.v1.Health/"))
		middlewares = append(middlewares, auth.GinMiddleware(v))
	} else {
		slog.Warn("server: auth.secret not set, requests are not authenticated")
	}

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor(interceptors...))

	hs := health.NewServer()
	hs.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s.grpc, hs)

	c := api.Config{
		Attempts:     s.service.attempt,
		GRPC:         s.grpc,
		EventBus:     s.eb,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	}
	if s.infra.redis.pubsub != nil {
		c.Redis = s.infra.redis.pubsub
	}
	api.New(c).RegisterRoutes(e, s.infra.store, middlewares...)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	for i := len(s.infra.closers) - 1; i >= 0; i-- {
		if err := s.infra.closers[i].Close(); err != nil {
			slog.ErrorContext(ctx, "server: close infra failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
