package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/phroun/faderbank/internal/auth"
	"github.com/phroun/faderbank/internal/config"
	"github.com/phroun/faderbank/internal/db"
	"github.com/phroun/faderbank/internal/store"
	"github.com/phroun/faderbank/server"
)

func main() {
	cfg, err := config.ParseServer()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	database, err := db.NewServerDB(cfg.DBPath)
	if err != nil {
		logger.Fatal("open database", zap.String("path", cfg.DBPath), zap.Error(err))
	}
	defer database.Close()

	st := store.New(database, logger)
	authenticator := auth.NewAuthenticator()
	hub := server.NewHub(logger)
	go hub.Run()

	srv := server.NewServer(hub, st, authenticator, logger, cfg.PresenceWindow)
	api := server.NewAPIHandler(srv)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.HandleWebSocket)

	mux.HandleFunc("/api/profiles", api.HandleProfiles)
	mux.HandleFunc("/api/profiles/{id}", api.HandleProfile)
	mux.HandleFunc("/api/profiles/{id}/transfer", api.HandleTransfer)
	mux.HandleFunc("/api/profiles/{id}/snapshot", api.HandleSnapshot)
	mux.HandleFunc("/api/profiles/{id}/channels", api.HandleChannels)
	mux.HandleFunc("/api/profiles/{id}/channels/reorder", api.HandleReorder)
	mux.HandleFunc("/api/profiles/{id}/buttons", api.HandleButtons)
	mux.HandleFunc("/api/profiles/{id}/take", api.HandleTake)
	mux.HandleFunc("/api/profiles/{id}/drop", api.HandleDrop)
	mux.HandleFunc("/api/profiles/{id}/vu", api.HandleVUReport)
	mux.HandleFunc("/api/profiles/{id}/members", api.HandleMembers)
	mux.HandleFunc("/api/profiles/{id}/members/{user_id}", api.HandleMember)
	mux.HandleFunc("/api/channels/{id}", api.HandleChannel)
	mux.HandleFunc("/api/channels/{id}/level", api.HandleSetLevel)
	mux.HandleFunc("/api/channels/{id}/mute", api.HandleSetMute)
	mux.HandleFunc("/api/channels/{id}/solo", api.HandleSetSolo)
	mux.HandleFunc("/api/buttons/{id}", api.HandleButton)
	mux.HandleFunc("/api/buttons/{id}/press", api.HandlePressButton)

	handler := authenticator.Middleware(mux)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: handler,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Activity records outlive sessions; prune the stale ones.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st.PruneActivity(cfg.ActivityMaxAge)
			}
		}
	}()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("faderbank server listening", zap.String("addr", cfg.Addr))
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
