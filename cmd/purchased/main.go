// Command purchased serves the purchase manager over HTTP.
//
// Environment:
//
//	PURCHASE_PRODUCTS      comma separated product identifiers (required)
//	STRIPE_API_KEY         Stripe secret key; without it an in-memory platform is used
//	STRIPE_WEBHOOK_SECRET  Stripe webhook signing secret
//	STRIPE_CUSTOMER_ID     Stripe customer whose entitlements are tracked
//	STRIPE_SUCCESS_URL     Checkout success redirect
//	STRIPE_CANCEL_URL      Checkout cancel redirect
//	REDIS_ADDR             optional Redis address for notification fan-out
//	LISTEN_ADDR            listen address (default ":8080")
//	LOG_LEVEL              zerolog level (default "info")
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mihaimyh/gopurchase/pkg/api"
	redisnotify "github.com/mihaimyh/gopurchase/pkg/notify/redis"
	"github.com/mihaimyh/gopurchase/pkg/platform/memory"
	platformmetrics "github.com/mihaimyh/gopurchase/pkg/platform/metrics/prometheus"
	"github.com/mihaimyh/gopurchase/pkg/platform/stripe"
	"github.com/mihaimyh/gopurchase/pkg/purchase"
	zerologadapter "github.com/mihaimyh/gopurchase/pkg/purchase/logger/zerolog"
	purchasemetrics "github.com/mihaimyh/gopurchase/pkg/purchase/metrics/prometheus"
)

const (
	metricsNamespace = "gopurchase"
	shutdownTimeout  = 10 * time.Second
	initTimeout      = 30 * time.Second
)

type settings struct {
	products            []string
	stripeAPIKey        string
	stripeWebhookSecret string
	stripeCustomerID    string
	stripeSuccessURL    string
	stripeCancelURL     string
	redisAddr           string
	listenAddr          string
	logLevel            string
}

func loadSettings() settings {
	s := settings{
		stripeAPIKey:        os.Getenv("STRIPE_API_KEY"),
		stripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		stripeCustomerID:    os.Getenv("STRIPE_CUSTOMER_ID"),
		stripeSuccessURL:    os.Getenv("STRIPE_SUCCESS_URL"),
		stripeCancelURL:     os.Getenv("STRIPE_CANCEL_URL"),
		redisAddr:           os.Getenv("REDIS_ADDR"),
		listenAddr:          os.Getenv("LISTEN_ADDR"),
		logLevel:            os.Getenv("LOG_LEVEL"),
	}
	for _, id := range strings.Split(os.Getenv("PURCHASE_PRODUCTS"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			s.products = append(s.products, id)
		}
	}
	if s.listenAddr == "" {
		s.listenAddr = ":8080"
	}
	return s
}

func main() {
	cfg := loadSettings()

	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if level, err := zerolog.ParseLevel(cfg.logLevel); err == nil && cfg.logLevel != "" {
		zlog = zlog.Level(level)
	} else {
		zlog = zlog.Level(zerolog.InfoLevel)
	}
	logger := zerologadapter.NewLogger(zlog)

	if len(cfg.products) == 0 {
		zlog.Fatal().Msg("PURCHASE_PRODUCTS is required")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	var platform purchase.Platform
	var closePlatform func()
	if cfg.stripeAPIKey != "" {
		sp, err := stripe.New(stripe.Config{
			APIKey:        cfg.stripeAPIKey,
			WebhookSecret: cfg.stripeWebhookSecret,
			CustomerID:    cfg.stripeCustomerID,
			SuccessURL:    cfg.stripeSuccessURL,
			CancelURL:     cfg.stripeCancelURL,
			Metrics:       platformmetrics.NewMetrics(reg, metricsNamespace),
			Logger:        logger,
		})
		if err != nil {
			zlog.Fatal().Err(err).Msg("failed to create stripe platform")
		}
		r.Method(http.MethodPost, "/webhooks/stripe", sp.WebhookHandler())
		platform, closePlatform = sp, sp.Close
	} else {
		zlog.Warn().Msg("STRIPE_API_KEY not set, using in-memory platform")
		mp := memory.New()
		for _, id := range cfg.products {
			mp.AddProduct(purchase.ProductDescriptor{
				Identifier:  id,
				DisplayName: id,
				Kind:        purchase.KindNonConsumable,
			})
		}
		platform, closePlatform = mp, mp.Close
	}

	manager, err := purchase.NewManager(platform, purchase.Config{
		ProductIdentifiers: cfg.products,
		Logger:             logger,
		Metrics:            purchasemetrics.NewMetrics(reg, metricsNamespace),
		CircuitBreakerConfig: &purchase.CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		},
	})
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to create purchase manager")
	}

	var redisClient *goredis.Client
	if cfg.redisAddr != "" {
		redisClient = goredis.NewClient(&goredis.Options{Addr: cfg.redisAddr})
		publisher, err := redisnotify.New(redisClient, redisnotify.Config{Logger: logger})
		if err != nil {
			zlog.Fatal().Err(err).Msg("failed to create redis publisher")
		}
		manager.Subscribe(publisher.Observe)
		zlog.Info().Str("channel", publisher.Channel()).Msg("publishing notifications to redis")
	}

	initCtx, cancelInit := context.WithTimeout(context.Background(), initTimeout)
	if err := manager.Initialize(initCtx); err != nil {
		// Partial initialization still serves: the listener is running and
		// products can be resolved again through /v1/products.
		zlog.Error().Err(err).Msg("purchase manager initialized with errors")
	}
	cancelInit()

	handler, err := api.NewHandler(api.Config{Manager: manager, Logger: logger})
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to create api handler")
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		select {
		case <-manager.ListenerDone():
			http.Error(w, "transaction listener stopped", http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusOK)
		}
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Route("/v1", func(r chi.Router) {
		r.Get("/products", handler.GetProducts)
		r.Post("/purchases", handler.Purchase)
		r.Get("/entitlements", func(w http.ResponseWriter, req *http.Request) {
			if req.URL.Query().Has("product_id") {
				handler.GetEntitlement(w, req)
				return
			}
			handler.ListEntitlements(w, req)
		})
		r.Post("/restore", handler.Restore)
	})

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		zlog.Info().Str("addr", cfg.listenAddr).Msg("purchased listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	zlog.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("server shutdown failed")
	}

	_ = manager.Close()
	closePlatform()
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			zlog.Error().Err(err).Msg("redis close failed")
		}
	}
}
