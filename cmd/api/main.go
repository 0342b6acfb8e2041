package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/dataground/dataground-go/internal/agent"
	"github.com/dataground/dataground-go/internal/config"
	"github.com/dataground/dataground-go/internal/handler"
	"github.com/dataground/dataground-go/internal/middleware"
	"github.com/dataground/dataground-go/internal/repository"
	"github.com/dataground/dataground-go/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}

	cfg := config.Load()

	db, err := repository.NewDB(cfg.DatabaseDSN)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// A failed gateway build must not take down auth and chat CRUD; replies
	// degrade to stored error messages instead.
	var gateway agent.Gateway
	if gemini, err := agent.NewGeminiGateway(context.Background(), cfg.GeminiAPIKey, cfg.AgentModel); err != nil {
		slog.Warn("agent gateway unavailable — replies will store an error message", "error", err)
		gateway = agent.UnavailableGateway{Err: err}
	} else {
		defer gemini.Close()
		gateway = gemini
	}

	userRepo := repository.NewUserRepository(db)
	chatRepo := repository.NewChatRepository(db)

	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTExpiry)
	chatService := service.NewChatService(chatRepo, gateway, cfg.AgentTimeout)
	uploadService, err := service.NewUploadService(cfg.UploadDir)
	if err != nil {
		slog.Error("upload directory initialization failed", "error", err)
		os.Exit(1)
	}

	authHandler := handler.NewAuthHandler(authService)
	chatHandler := handler.NewChatHandler(chatService)
	uploadHandler := handler.NewUploadHandler(uploadService)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.StripSlashes)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(5, 10))
		r.Post("/auth/signup", authHandler.HandleSignup)
		r.Post("/auth/login", authHandler.HandleLogin)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret, userRepo))

		r.Get("/auth/me", authHandler.HandleMe)

		r.Route("/chat/chats", func(r chi.Router) {
			r.Get("/", chatHandler.HandleListChats)
			r.Post("/", chatHandler.HandleCreateChat)
			r.Post("/first", chatHandler.HandleCreateChatWithFirstMessage)
			r.Get("/{id}/messages", chatHandler.HandleGetMessages)
			r.Post("/{id}/messages", chatHandler.HandleSendMessage)
			r.Post("/{id}/ai_response", chatHandler.HandleRegenerateReply)
			r.Patch("/{id}/title", chatHandler.HandleRenameChat)
		})

		r.Post("/files/upload", uploadHandler.HandleUpload)
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
		// Writes may wait on the AI agent, so the write timeout must exceed
		// the agent timeout.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.AgentTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
