package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/callboard/callboard/internal/database"
	"github.com/callboard/callboard/internal/handler"
	"github.com/callboard/callboard/internal/logging"
	"github.com/callboard/callboard/internal/model"
	"github.com/callboard/callboard/internal/server"
	"github.com/callboard/callboard/internal/storage"
)

func main() {
	port := os.Getenv("CALLBOARD_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("CALLBOARD_DB_PATH")
	if dbPath == "" {
		dbPath = "callboard.db"
	}

	logger := logging.Setup(os.Stdout, os.Getenv("CALLBOARD_LOG_LEVEL"))

	db, err := database.Open(dbPath)
	if err != nil {
		logger.Error("failed to open database", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	cfg := server.Config{
		Storage: storage.Config{
			Endpoint:  os.Getenv("CALLBOARD_S3_ENDPOINT"),
			Bucket:    os.Getenv("CALLBOARD_S3_BUCKET"),
			Region:    os.Getenv("CALLBOARD_S3_REGION"),
			AccessKey: os.Getenv("CALLBOARD_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("CALLBOARD_S3_SECRET_KEY"),
		},
		VAPIDPublicKey:  os.Getenv("CALLBOARD_VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("CALLBOARD_VAPID_PRIVATE_KEY"),
	}

	srv := server.New(db, cfg, logger)

	if err := bootstrapAdmin(srv, logger); err != nil {
		logger.Error("admin bootstrap failed", "error", err)
		os.Exit(1)
	}

	// Expired sessions and stale rate-limit entries accumulate otherwise.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if n, err := srv.SessionStore().DeleteExpired(); err != nil {
				logger.Warn("session cleanup failed", "error", err)
			} else if n > 0 {
				logger.Info("expired sessions removed", "count", n)
			}
			srv.RateLimiter().Cleanup()
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("callboard listening", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	if d := srv.Dispatcher(); d != nil {
		d.Wait()
	}
}

// bootstrapAdmin creates the first administrator when the database is empty,
// so a fresh install has someone who can log in.
func bootstrapAdmin(srv *server.Server, logger *slog.Logger) error {
	members := srv.MemberStore()
	count, err := members.Count(1)
	if err != nil {
		return fmt.Errorf("count members: %w", err)
	}
	if count > 0 {
		return nil
	}

	name := os.Getenv("CALLBOARD_ADMIN_NAME")
	if name == "" {
		name = "admin"
	}
	pin := os.Getenv("CALLBOARD_ADMIN_PIN")
	if pin == "" {
		pin = "0000"
		logger.Warn("no CALLBOARD_ADMIN_PIN set, using default", "pin", pin)
	}

	admin, err := members.Create(1, name, model.RoleAdministrator)
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	hash, err := handler.HashPIN(pin)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}
	if err := members.SetPIN(admin.ID, hash); err != nil {
		return fmt.Errorf("set admin pin: %w", err)
	}
	logger.Info("bootstrap admin created", "name", name)
	return nil
}
