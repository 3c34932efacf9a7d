package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/shubham07069/chatgod/internal/assistant"
	"github.com/shubham07069/chatgod/internal/auth"
	"github.com/shubham07069/chatgod/internal/cipher"
	"github.com/shubham07069/chatgod/internal/config"
	"github.com/shubham07069/chatgod/internal/conversation"
	"github.com/shubham07069/chatgod/internal/email"
	"github.com/shubham07069/chatgod/internal/handlers"
	"github.com/shubham07069/chatgod/internal/kafka"
	"github.com/shubham07069/chatgod/internal/logging"
	"github.com/shubham07069/chatgod/internal/middleware"
	"github.com/shubham07069/chatgod/internal/openrouter"
	"github.com/shubham07069/chatgod/internal/redisx"
	"github.com/shubham07069/chatgod/internal/store/sqlstore"
	"github.com/shubham07069/chatgod/internal/telemetry"
	"github.com/shubham07069/chatgod/internal/ws"
)

var configPath = flag.String("config", "", "path to a TOML config file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		zap.NewExample().Fatal("Failed to load config", zap.Error(err))
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		zap.NewExample().Fatal("Failed to build logger", zap.Error(err))
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		return err
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(c); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}()

	store, err := sqlstore.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("Database ready", zap.String("driver", cfg.Database.Driver))

	msgCipher, err := messageCipher(cfg.Crypto, logger)
	if err != nil {
		return err
	}

	var bridge ws.Bridge
	if cfg.Redis.Addr != "" {
		rdb, err := redisx.Open(ctx, redisx.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		bridge = redisx.NewBridge(rdb, cfg.Redis.Channel, logger)
		logger.Info("Fan-out bridge enabled", zap.String("addr", cfg.Redis.Addr), zap.String("channel", cfg.Redis.Channel))
	}

	hub := ws.NewHub(bridge, logger)
	go hub.Run(ctx)

	convOpts := []conversation.Option{
		conversation.WithLogger(logger),
		conversation.WithDisappearEnforcement(cfg.Messaging.EnforceDisappear),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		writer := kafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer writer.Close()
		convOpts = append(convOpts, conversation.WithSink(writer))
		logger.Info("Message events enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	conversations := conversation.NewService(store, msgCipher, hub, convOpts...)

	llm := openrouter.New(cfg.Assistant.APIKey,
		openrouter.WithBaseURL(cfg.Assistant.APIURL),
		openrouter.WithTimeout(cfg.AssistantTimeout()),
		openrouter.WithAttribution(cfg.Assistant.Referer, cfg.Assistant.Title),
		openrouter.WithLogger(logger),
	)
	if cfg.Assistant.APIKey == "" {
		logger.Warn("OPENROUTER_API_KEY is not set, assistant requests will fail")
	}
	bot := assistant.NewService(store, llm, assistant.Config{
		DefaultModel:  cfg.Assistant.DefaultModel,
		FallbackModel: cfg.Assistant.FallbackModel,
		Temperature:   cfg.Assistant.Temperature,
		MaxTokens:     cfg.Assistant.MaxTokens,
	}, assistant.WithLogger(logger))

	secret, err := sessionSecret(cfg.Session.Secret, logger)
	if err != nil {
		return err
	}
	sessions := auth.NewSessions(secret, auth.Options{
		Name:   cfg.Session.Name,
		MaxAge: cfg.Session.MaxAge,
		Secure: cfg.Session.Secure,
	})
	mailer := email.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From, logger)

	authHandler := &handlers.AuthHandler{
		Store:    store,
		Sessions: sessions,
		Mail:     mailer,
		Presence: conversations,
		Logger:   logger,
	}
	chatHandler := &handlers.ChatHandler{Conversations: conversations, Users: store, Logger: logger}
	aiHandler := &handlers.AssistantHandler{Assistant: bot, Sessions: sessions, Logger: logger}
	wsHandler := ws.NewHandler(hub, conversations, store, func(r *http.Request) (ws.Identity, bool) {
		ac, err := sessions.Load(r)
		if err != nil || !ac.Authenticated() {
			return ws.Identity{}, false
		}
		return ws.Identity{UserID: ac.UserID, Username: ac.Username}, true
	}, cfg.Server.AllowedOrigins, logger)

	r := mux.NewRouter()
	r.Use(middleware.RequestID, middleware.Recovery(logger), middleware.LoggingMiddleware(logger))

	// Public endpoints
	r.HandleFunc("/register/code", authHandler.RequestRegistrationCode).Methods("POST")
	r.HandleFunc("/register", authHandler.Register).Methods("POST")
	r.HandleFunc("/login", authHandler.Login).Methods("POST")
	r.HandleFunc("/logout", authHandler.Logout).Methods("POST")
	r.HandleFunc("/forgot_username", authHandler.ForgotUsername).Methods("POST")
	r.HandleFunc("/reset_password/code", authHandler.RequestPasswordReset).Methods("POST")
	r.HandleFunc("/reset_password", authHandler.ResetPassword).Methods("POST")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/healthz", handlers.Healthz(store)).Methods("GET")

	// The socket authenticates from the session itself; anonymous
	// connections only receive broadcasts.
	r.Handle("/ws", wsHandler)

	api := r.NewRoute().Subrouter()
	api.Use(middleware.AuthMiddleware(sessions, logger))
	api.HandleFunc("/me", authHandler.Me).Methods("GET")
	api.HandleFunc("/profile", authHandler.UpdateProfile).Methods("POST")
	api.HandleFunc("/users", authHandler.ListUsers).Methods("GET")
	api.HandleFunc("/users/search", authHandler.SearchUsers).Methods("GET")

	api.HandleFunc("/messaging", chatHandler.Messaging).Methods("GET")
	api.HandleFunc("/groups", chatHandler.CreateGroup).Methods("POST")
	api.HandleFunc("/groups", chatHandler.ListGroups).Methods("GET")
	api.HandleFunc("/status", chatHandler.ListStatuses).Methods("GET")
	api.HandleFunc("/status", chatHandler.PostStatus).Methods("POST")
	api.HandleFunc("/edit_message/{id}", chatHandler.EditMessage).Methods("POST")
	api.HandleFunc("/set_disappear_timer/{id}", chatHandler.SetDisappearTimer).Methods("POST")

	api.HandleFunc("/ai_chat", aiHandler.Chat).Methods("GET")
	api.HandleFunc("/get_chat_history", aiHandler.ChatHistory).Methods("GET")
	api.HandleFunc("/load_chat/{name}", aiHandler.LoadChat).Methods("GET")
	api.HandleFunc("/start_new_chat/{name}", aiHandler.StartNewChat).Methods("GET")
	api.HandleFunc("/start_new_chat", aiHandler.StartNewChat).Methods("POST")
	api.HandleFunc("/delete_history", aiHandler.DeleteHistory).Methods("POST")

	limiter := middleware.NewRateLimiter(cfg.Assistant.RequestsPerMinute, cfg.Assistant.Burst)
	api.Handle("/ask", middleware.RateLimit(limiter)(http.HandlerFunc(aiHandler.Ask))).Methods("POST")

	staticDir := cfg.Server.StaticDir
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
	})

	// Serve static files with cache-busting headers for development
	r.PathPrefix("/").Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".css") || strings.HasSuffix(r.URL.Path, ".js") {
			w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
			w.Header().Set("Pragma", "no-cache")
			w.Header().Set("Expires", "0")
		}
		http.FileServer(http.Dir(staticDir)).ServeHTTP(w, r)
	}))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           otelhttp.NewHandler(r, "http.server"),
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:       time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// messageCipher picks the at-rest key: an explicit key, then a passphrase,
// then a random key that does not survive restarts.
func messageCipher(cfg config.CryptoConfig, logger *zap.Logger) (*cipher.Cipher, error) {
	switch {
	case cfg.MessageKey != "":
		return cipher.FromBase64Key(cfg.MessageKey)
	case cfg.KeyPassphrase != "":
		return cipher.FromPassphrase(cfg.KeyPassphrase, []byte(cfg.KeySalt))
	default:
		logger.Warn("No message key configured, using a random key; stored messages will not decrypt after restart")
		return cipher.NewRandom()
	}
}

// sessionSecret returns the configured secret, or a random one in
// development when none is set.
func sessionSecret(configured string, logger *zap.Logger) ([]byte, error) {
	if len(configured) >= 32 {
		return []byte(configured), nil
	}
	logger.Warn("SECRET_KEY is short or unset, using a random session secret")
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	return secret, nil
}
