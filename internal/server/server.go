package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"momo-payments/internal/config"
	"momo-payments/internal/domain"
	"momo-payments/internal/handler"
	"momo-payments/internal/idempotency"
	"momo-payments/internal/notification"
	"momo-payments/internal/provider"
	"momo-payments/internal/repository"
	"momo-payments/internal/service"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const connectTimeout = 10 * time.Second

// Server represents the HTTP server
type Server struct {
	router   *mux.Router
	server   *http.Server
	payments *service.PaymentService
	closers  []func(context.Context) error
	logger   *slog.Logger
	port     string
}

// NewServer wires the configured store, provider, notifier and idempotency
// backends into the payment service and builds the router.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	s := &Server{logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	repo, err := s.openStore(ctx, cfg)
	if err != nil {
		s.closeAll(context.Background())
		return nil, err
	}

	idem, err := s.openIdempotency(ctx, cfg)
	if err != nil {
		s.closeAll(context.Background())
		return nil, err
	}

	s.payments = service.NewPaymentService(
		repo,
		newGateway(cfg, logger),
		newNotifier(cfg, logger),
		idem,
		service.Options{MinAmount: cfg.MinAmount},
		logger,
	)

	paymentHandler := handler.NewPaymentHandler(s.payments, !cfg.IsProduction())

	// Setup router
	router := mux.NewRouter()

	// Add middleware for logging
	router.Use(loggingMiddleware(logger))

	// Payment routes
	router.HandleFunc("/payments", paymentHandler.Initiate).Methods("POST")
	router.HandleFunc("/payments/{reference}", paymentHandler.Status).Methods("GET")
	router.HandleFunc("/merchants/{merchant_id}/transactions", paymentHandler.MerchantHistory).Methods("GET")

	// Health check
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		// Check store connectivity in health check
		if err := repo.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": "store unavailable"})
			return
		}

		json.NewEncoder(w).Encode(map[string]string{
			"status":    "healthy",
			"store":     cfg.StoreDriver,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}).Methods("GET")

	s.router = router
	return s, nil
}

func (s *Server) openStore(ctx context.Context, cfg *config.Config) (domain.TransactionRepository, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		s.logger.Warn("Using in-memory transaction store, data is lost on restart")
		return repository.NewMemoryTransactionRepository(s.logger), nil

	case config.StoreDriverMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		s.closers = append(s.closers, client.Disconnect)
		if err := client.Ping(ctx, nil); err != nil {
			return nil, fmt.Errorf("mongo ping: %w", err)
		}

		db := client.Database(cfg.MongoDatabase)
		if err := repository.EnsureMongoIndexes(ctx, db); err != nil {
			return nil, err
		}
		s.logger.Info("Successfully connected to MongoDB", "database", cfg.MongoDatabase)
		return repository.NewMongoTransactionRepository(db, s.logger), nil

	case config.StoreDriverPostgres:
		db, err := sql.Open("postgres", cfg.GetDBConnectionString())
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func(context.Context) error { return db.Close() })

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			return nil, err
		}
		s.logger.Info("Successfully connected to database")
		return repository.NewStore(db, s.logger).Transaction(), nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func (s *Server) openIdempotency(ctx context.Context, cfg *config.Config) (domain.IdempotencyStore, error) {
	if cfg.IdempotencyTTL <= 0 {
		s.logger.Warn("Idempotency keys disabled")
		return idempotency.Disabled{}, nil
	}
	if cfg.RedisAddr == "" {
		s.logger.Info("Idempotency keys held in process memory")
		return idempotency.NewMemoryStore(), nil
	}

	client, err := idempotency.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func(context.Context) error { return client.Close() })
	s.logger.Info("Successfully connected to Redis", "addr", cfg.RedisAddr)
	return idempotency.NewRedisStore(client, cfg.IdempotencyTTL, s.logger), nil
}

func newGateway(cfg *config.Config, logger *slog.Logger) domain.PaymentGateway {
	if cfg.ProviderMode == config.ProviderModeSandbox {
		logger.Warn("Using sandbox payment provider, no money moves")
		return provider.NewSandboxGateway(logger)
	}
	return provider.NewHTTPGateway(provider.HTTPConfig{
		BaseURL:   cfg.ProviderBaseURL,
		AppKey:    cfg.ProviderAppKey,
		AccessKey: cfg.ProviderAccessKey,
		SecretKey: cfg.ProviderSecretKey,
		Country:   cfg.ProviderCountry,
		Timeout:   cfg.ProviderTimeout,
	}, logger)
}

func newNotifier(cfg *config.Config, logger *slog.Logger) domain.Notifier {
	if cfg.SMSWebhookURL == "" {
		return notification.NewLogNotifier(logger)
	}
	return notification.NewSMSNotifier(cfg.SMSWebhookURL, cfg.SMSAPIToken, logger)
}

// loggingMiddleware adds request logging
func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Create response wrapper to capture status code
			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.statusCode,
				"duration", time.Since(start),
				"user_agent", r.UserAgent(),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server on the specified port
func (s *Server) Start(port string) (string, error) {
	// Create listener first to get actual port
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return "", err
	}

	addr := listener.Addr().(*net.TCPAddr)
	s.port = strconv.Itoa(addr.Port)

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting server", "port", s.port)

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server failed to start", "error", err)
		}
	}()

	return s.port, nil
}

// Stop drains in-flight requests and notifications, then closes backends.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	var shutdownErr error
	if s.server != nil {
		shutdownErr = s.server.Shutdown(ctx)
	}

	if s.payments != nil {
		drained := make(chan struct{})
		go func() {
			s.payments.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-ctx.Done():
			s.logger.Warn("Pending notifications abandoned at shutdown")
		}
	}

	s.closeAll(ctx)
	return shutdownErr
}

func (s *Server) closeAll(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil && err != redis.ErrClosed {
			s.logger.Error("Failed to close backend", "error", err)
		}
	}
	s.closers = nil
}

// GetPort returns the port the server is listening on
func (s *Server) GetPort() string {
	return s.port
}

// GetBaseURL returns the base URL for the server
func (s *Server) GetBaseURL() string {
	return "http://localhost:" + s.port
}

// GetRouter returns the router for testing purposes
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// StartServer starts the server with the given configuration
func StartServer(cfg *config.Config) (*Server, string, error) {
	var logger *slog.Logger
	if cfg.ServerPort == "0" {
		// Test environment - use discard logger
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}

	server, err := NewServer(cfg, logger)
	if err != nil {
		return nil, "", err
	}

	port, err := server.Start(cfg.ServerPort)
	if err != nil {
		server.Stop(context.Background())
		return nil, "", err
	}

	return server, port, nil
}
