package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"freefall/internal/server"
	"freefall/pkg/logger"
)

func main() {
	log := logger.New(getEnv("LOG_LEVEL", "info"), os.Getenv("LOG_PRETTY") == "true")

	srv := server.New(log)
	srv.RegisterFiberRoutes()

	port := getEnv("PORT", "8080")
	go func() {
		if err := srv.Listen(":" + port); err != nil {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()
	log.Info().Str("port", port).Msg("freefall listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("signal received, shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.ShutdownWithContext(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	if err := srv.Shutdown(); err != nil {
		log.Error().Err(err).Msg("component shutdown failed")
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
