package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"thinqscribe-payments/internal/clients"
	"thinqscribe-payments/internal/config"
	"thinqscribe-payments/internal/domain"
	"thinqscribe-payments/internal/logging"
	"thinqscribe-payments/internal/repository"
	"thinqscribe-payments/internal/service"
	"thinqscribe-payments/internal/transport/auth"
	"thinqscribe-payments/internal/transport/rest"
	"thinqscribe-payments/internal/transport/websocket"
	"thinqscribe-payments/pkg/database/postgres"
)

const (
	cleanupEvery = 5 * time.Minute
	fileMaxAge   = 30 * time.Minute
)

func main() {
	backfill := flag.Bool("backfill-currency", false, "stamp inferred currencies onto legacy agreements and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using system env or defaults")
	}

	cfg := config.Load()

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	// top-level context, cancelled on shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := mustInitPostgres(ctx, cfg.Postgres, logger)
	defer postgres.Close(db)

	engine := service.NewPolicyEngine(cfg.Policy)
	agreementRepo := repository.NewAgreementRepository(db)

	if *backfill {
		n, err := service.NewCurrencyBackfiller(agreementRepo, engine, logger).Run(ctx, 500)
		if err != nil {
			logger.Fatal("currency backfill failed", zap.Int("stamped", n), zap.Error(err))
		}
		logger.Info("currency backfill complete", zap.Int("stamped", n))
		return
	}

	redisClient := mustInitRedis(ctx, cfg.Redis, logger)
	defer redisClient.Close()

	storageClient, err := clients.NewLocalStorage(cfg.Storage.Dir, cfg.Storage.PublicPrefix, cfg.Storage.ExternalURL)
	if err != nil {
		logger.Fatal("storage init error", zap.Error(err))
	}
	var store service.ObjectStore = storageClient
	if cfg.S3.Enabled {
		s3Client, err := clients.NewS3Client(ctx, clients.S3Config{
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Bucket:          cfg.S3.Bucket,
			UseSSL:          cfg.S3.UseSSL,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			URLTTL:          cfg.S3.URLTTL,
		})
		if err != nil {
			logger.Fatal("s3 init error", zap.Error(err))
		}
		store = s3Client
	}

	wsHub := websocket.NewHub(logger.Named("ws"))
	go wsHub.Run(ctx)
	notifier := clients.NewWebSocketClient(wsHub)

	paymentRepo := repository.NewPaymentRepository(db)
	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewAPITokenRepository(db)

	gateways := map[domain.Gateway]service.PaymentGateway{}
	if cfg.Paystack.SecretKey != "" {
		gateways[domain.GatewayPaystack] = clients.NewPaystackClient(cfg.Paystack.BaseURL, cfg.Paystack.SecretKey, cfg.Paystack.CallbackURL)
	}
	if cfg.Stripe.SecretKey != "" {
		gateways[domain.GatewayStripe] = clients.NewStripeClient(cfg.Stripe.BaseURL, cfg.Stripe.SecretKey, cfg.Stripe.SuccessURL, cfg.Stripe.CancelURL)
	}

	geo := clients.NewGeolocationClient(cfg.Geolocation.Providers, cfg.Geolocation.Timeout)
	locationSvc := service.NewLocationService(geo, redisClient, cfg.Geolocation.CacheTTL, cfg.Policy, logger.Named("location"))
	agreementSvc := service.NewAgreementService(agreementRepo, engine, notifier, logger.Named("agreements"))
	checkoutSvc := service.NewCheckoutService(agreementRepo, paymentRepo, userRepo, locationSvc, gateways, engine, service.NewQuoteBook(), logger.Named("checkout"))
	verifySvc := service.NewVerificationService(paymentRepo, agreementRepo, gateways, redisClient, notifier, cfg.Policy, logger.Named("verification"))
	webhook := service.NewPaystackWebhook(cfg.Paystack.SecretKey, verifySvc, logger.Named("webhook"))
	dashboardSvc := service.NewDashboardService(agreementRepo, locationSvc, engine, redisClient, notifier, logger.Named("dashboard"))
	statementSvc := service.NewStatementService(agreementRepo, engine, redisClient, store, notifier, logger.Named("statements"))

	handler := rest.NewHandler(rest.Services{
		Agreements:   agreementSvc,
		Checkout:     checkoutSvc,
		Verification: verifySvc,
		Webhook:      webhook,
		Dashboard:    dashboardSvc,
		Statements:   statementSvc,
		Locations:    locationSvc,
		Policy:       cfg.Policy,
	}, logger.Named("http"))

	tokenMiddleware := auth.TokenMiddleware(tokenRepo, logger.Named("auth"))
	router := handler.InitRouterWithAuth(tokenMiddleware)

	// /files stays public; links are unguessable and short lived
	root := chi.NewRouter()
	root.Get("/files/{file}", func(w http.ResponseWriter, r *http.Request) {
		file := chi.URLParam(r, "file")
		path, err := storageClient.Open(file)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, "failed to access file", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", clients.OriginalName(file)))
		http.ServeFile(w, r, path)
	})

	root.With(tokenMiddleware).Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		userID, err := auth.GetUserID(r.Context())
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		logger.Debug("websocket connected", zap.Int64("user_id", userID))
		wsHub.HandleWebSocket(w, r, userID)
	})

	root.Mount("/", router)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      withCORS(root),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
			return
		}
		srvErr <- nil
	}()

	go dashboardSvc.RunRefresher(ctx, cfg.Policy.DashboardRefreshInterval)

	go func() {
		ticker := time.NewTicker(cleanupEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := storageClient.CleanupOlderThan(fileMaxAge); err != nil {
					logger.Warn("storage cleanup error", zap.Error(err))
				}
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-srvErr:
		if err != nil {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	case sig := <-stop:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown error", zap.Error(err))
		}

		// stops the hub and the background jobs
		cancel()

		logger.Info("shutdown complete")
	}
}

func mustInitPostgres(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) *sql.DB {
	db, err := postgres.NewPostgresConnection(ctx, postgres.ConnectionInfo{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.User,
		DBName:   cfg.DBName,
		SSLMode:  cfg.SSLMode,
		Password: cfg.Password,
	})
	if err != nil {
		logger.Fatal("postgres init error", zap.Error(err))
	}
	return db
}

func mustInitRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *clients.RedisClient {
	client, err := clients.NewRedisClient(ctx, clients.RedisConfig{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: time.Duration(cfg.DialTimeout) * time.Second,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
		Prefix:      cfg.Prefix,
	})
	if err != nil {
		logger.Fatal("redis init error", zap.Error(err))
	}
	return client
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")

			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, X-Paystack-Signature")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
