package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go-market/internal/chat"
	"go-market/internal/cipher"
	"go-market/internal/config"
	"go-market/internal/db"
	"go-market/internal/events"
	"go-market/internal/listing"
	"go-market/internal/logging"
	myMiddleware "go-market/internal/middleware"
	"go-market/internal/subscription"
	"go-market/internal/user"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

var addrFlag string

func main() {
	root := &cobra.Command{
		Use:           "market",
		Short:         "Username and account marketplace server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), serve)
		},
	}
	root.PersistentFlags().StringVar(&addrFlag, "addr", "", "http service address (overrides ADDR)")

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if err := a.db.AutoMigrate(ctx); err != nil {
					return err
				}
				a.log.Info("database schema applied")
				return nil
			})
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type app struct {
	cfg *config.Config
	log *zap.Logger
	db  *db.Database
}

// withApp loads config, builds the logger and opens the database around fn.
func withApp(ctx context.Context, fn func(context.Context, *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if addrFlag != "" {
		cfg.Addr = addrFlag
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	database, err := db.NewDatabase(ctx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer database.Close()
	log.Info("connected to postgres")

	return fn(ctx, &app{cfg: cfg, log: log, db: database})
}

func serve(ctx context.Context, a *app) error {
	cfg, log := a.cfg, a.log

	if err := a.db.AutoMigrate(ctx); err != nil {
		return err
	}
	log.Info("database schema initialized")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	log.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

	var keyCache cipher.KeyCache = cipher.NewMemoryCache()
	if cfg.KeyCache == config.KeyCacheRedis {
		keyCache = cipher.NewRedisCache(redisClient)
	}
	keys := cipher.NewDeriver(keyCache, log.Named("cipher"))

	var publisher events.Publisher = events.Nop{}
	if cfg.NATSURL != "" {
		p, err := events.NewNATSPublisher(ctx, cfg.NATSURL, log.Named("events"))
		if err != nil {
			return err
		}
		publisher = p
		log.Info("publishing marketplace events", zap.String("stream", events.StreamName))
	}
	defer publisher.Close()

	// Users
	userService := user.NewService(user.NewRepository(a.db.Conn), cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL)
	userHandler := user.NewHandler(userService, log.Named("user"))

	// Listings
	listingService := listing.NewService(listing.NewRepository(a.db.Conn), publisher, log.Named("listing"))
	listingHandler := listing.NewHandler(listingService, log.Named("listing"))

	// Chat
	hub := chat.NewHub(redisClient, log.Named("hub"))
	chatService := chat.NewService(chat.NewRepository(a.db.Conn), userService, keys, hub, log.Named("chat"))
	chatHandler := chat.NewHandler(hub, chatService, cfg.CORSOrigins, log.Named("chat"))

	hubCtx, stopHub := context.WithCancel(context.Background())
	subErr := make(chan error, 1)
	var hubWG sync.WaitGroup
	hubWG.Add(2)
	go func() { defer hubWG.Done(); hub.Run(hubCtx) }()
	go func() { defer hubWG.Done(); subErr <- hub.Subscribe(hubCtx) }()
	defer func() {
		stopHub()
		hubWG.Wait()
	}()

	// Serve only once this instance is receiving chat deliveries.
	select {
	case <-hub.Ready():
	case err := <-subErr:
		return fmt.Errorf("chat subscription: %w", err)
	case <-ctx.Done():
		return nil
	}

	authMiddleware := myMiddleware.NewAuthMiddleware(userService)
	gate := func(action subscription.Action) func(http.Handler) http.Handler {
		return myMiddleware.RequireAction(userService, action, log.Named("gate"))
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(myMiddleware.RequestLogger(log.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(myMiddleware.CORS(cfg.CORSOrigins))

	// Public routes
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)
	r.Get("/api/subscription/plans", userHandler.Plans)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.db.Conn.PingContext(pingCtx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})

	// Protected routes (require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/api/me", userHandler.Me)
		r.Get("/api/users/search", userHandler.SearchUsers)
		r.Post("/api/subscription", userHandler.Subscribe)

		listingHandler.Mount(r, gate)
		chatHandler.Mount(r)
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case err := <-subErr:
		log.Error("chat subscription lost", zap.Error(err))
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
