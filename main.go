package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"waterFastAPI/handlers"
	"waterFastAPI/internal/clock"
	"waterFastAPI/internal/config"
	"waterFastAPI/internal/firebaseapp"
	"waterFastAPI/internal/logger"
	"waterFastAPI/internal/notification"
	"waterFastAPI/internal/store"
	"waterFastAPI/internal/store/backend"
	"waterFastAPI/middleware"
	"waterFastAPI/services"

	_ "net/http/pprof"
)

// liveTick is how often the websocket stream pushes a progress frame.
const liveTick = time.Second

// app holds everything the router needs.
type app struct {
	cfg      config.Config
	store    store.Store
	verifier middleware.TokenVerifier
	limiter  *middleware.RateLimiter

	fastService         *services.FastService
	userService         *services.UserService
	notificationService *services.NotificationService
	hub                 *services.LiveHub
	clock               clock.Clock
}

func newApp(cfg config.Config, st store.Store, verifier middleware.TokenVerifier, c clock.Clock) *app {
	fastService := services.NewFastService(st, c, cfg.StreakTimezone, cfg.ShareBaseURL)
	return &app{
		cfg:                 cfg,
		store:               st,
		verifier:            verifier,
		limiter:             middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.TrustProxy),
		fastService:         fastService,
		userService:         services.NewUserService(st),
		notificationService: services.NewNotificationService(st, c),
		hub:                 services.NewLiveHub(st, fastService, c, liveTick),
		clock:               c,
	}
}

func newRouter(a *app) http.Handler {
	fastHandler := handlers.NewFastHandler(a.fastService)
	docHandler := handlers.NewDocHandler(a.fastService, a.store, a.cfg.MinAppVersion)
	notificationHandler := handlers.NewNotificationHandler(a.notificationService)
	webhookHandler := handlers.NewWebhookHandler(a.userService, a.cfg.ClerkWebhookSecret)
	liveHandler := handlers.NewLiveHandler(a.hub)

	auth := middleware.AuthMiddleware(a.verifier)

	r := mux.NewRouter()

	// The websocket route stays outside the monitored subrouter: the
	// monitoring ResponseWriter cannot be hijacked.
	r.Handle("/api/v1/fasts/current/live", auth(http.HandlerFunc(liveHandler.StreamCurrentFast))).Methods("GET")

	standardRouter := r.PathPrefix("/").Subrouter()

	standardRouter.Use(a.limiter.Middleware)
	standardRouter.Use(middleware.MonitorMiddleware)

	standardRouter.Handle("/metrics", middleware.BasicAuthMiddleware(a.cfg.MetricsUser, a.cfg.MetricsPass)(promhttp.Handler()))
	if a.cfg.PprofSecret != "" {
		standardRouter.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(a.cfg.PprofSecret)(http.DefaultServeMux))
	}

	standardRouter.HandleFunc("/health", docHandler.Health).Methods("GET")
	standardRouter.HandleFunc("/webhooks/clerk", webhookHandler.HandleClerkWebhook).Methods("POST")

	api := standardRouter.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/phases", docHandler.GetPhases).Methods("GET")
	api.HandleFunc("/min-version", docHandler.GetAppMinVersion).Methods("GET")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(auth)

	protected.HandleFunc("/fasts", fastHandler.StartFast).Methods("POST")
	protected.HandleFunc("/fasts", fastHandler.GetHistory).Methods("GET")
	protected.HandleFunc("/fasts/current", fastHandler.GetCurrentFast).Methods("GET")
	protected.HandleFunc("/fasts/{id}/pause", fastHandler.PauseFast).Methods("POST")
	protected.HandleFunc("/fasts/{id}/resume", fastHandler.ResumeFast).Methods("POST")
	protected.HandleFunc("/fasts/{id}/end", fastHandler.EndFast).Methods("POST")
	protected.HandleFunc("/fasts/{id}/water", fastHandler.AddWater).Methods("POST")
	protected.HandleFunc("/fasts/{id}/duration", fastHandler.CorrectDuration).Methods("PUT")
	protected.HandleFunc("/fasts/{id}", fastHandler.DeleteFast).Methods("DELETE")

	protected.HandleFunc("/streak", fastHandler.GetStreak).Methods("GET")
	protected.HandleFunc("/streak/share", fastHandler.ShareStreak).Methods("GET")

	protected.HandleFunc("/notifications/register-device", notificationHandler.RegisterDevice).Methods("POST")

	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Pprof-Secret"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	return corsHandler(r)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", "err", err)
	}

	if err := logger.Init(logger.Config{Debug: cfg.Debug, Dir: cfg.LogDir}); err != nil {
		logger.Fatal("failed to initialize logger", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var fbApp *firebase.App
	if cfg.HasFirebaseCredentials() || cfg.FirebaseProjectID != "" {
		fbApp, err = firebaseapp.New(ctx, cfg)
		if err != nil {
			logger.Fatal("failed to initialize firebase", "err", err)
		}
	}

	var verifier middleware.TokenVerifier
	switch cfg.AuthProvider {
	case config.AuthFirebase:
		if fbApp == nil {
			logger.Fatal("firebase auth requires firebase credentials")
		}
		verifier, err = middleware.NewFirebaseVerifier(ctx, fbApp)
		if err != nil {
			logger.Fatal("failed to initialize firebase auth", "err", err)
		}
	default:
		clerk.SetKey(cfg.ClerkSecretKey)
		verifier = middleware.ClerkVerifier{}
	}
	logger.Info("auth initialized", "provider", cfg.AuthProvider)

	c := clock.System{}

	openCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	st, err := backend.Open(openCtx, cfg, fbApp, c)
	cancel()
	if err != nil {
		logger.Fatal("failed to open store", "backend", cfg.StoreBackend, "err", err)
	}
	defer func() {
		logger.Info("closing store")
		if err := st.Close(); err != nil {
			logger.Error("store close failed", "err", err)
		}
	}()
	logger.Info("store opened", "backend", cfg.StoreBackend)

	middleware.InitPrometheus(prometheus.DefaultRegisterer)
	services.RegisterMetrics(prometheus.DefaultRegisterer)

	var pushProvider services.PushNotificationProvider = services.LogPushProvider{}
	if fbApp != nil {
		fcmService, err := notification.NewFCMService(ctx, fbApp)
		if err != nil {
			logger.Warn("could not initialize FCM, pushes will only be logged", "err", err)
		} else {
			pushProvider = fcmService
			logger.Info("FCM push provider initialized")
		}
	}
	dispatcher := services.NewNotificationDispatcher(st, pushProvider)
	defer dispatcher.Stop()

	a := newApp(cfg, st, verifier, c)
	defer a.hub.Stop()

	watcher := services.NewMilestoneWatcher(st, a.fastService, dispatcher, c, cfg.WatchInterval)
	watcher.Start()
	defer watcher.Stop()

	go a.limiter.CleanupVisitors(ctx)

	server := http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(a),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("error starting server", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "err", err)
	}

	logger.Info("server shutdown complete")
}
