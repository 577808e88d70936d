package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/fretefacil/mdfe-backend/internal/config"
	"github.com/fretefacil/mdfe-backend/internal/db"
	"github.com/fretefacil/mdfe-backend/internal/sefaz"
	"github.com/fretefacil/mdfe-backend/internal/server"
)

func main() {
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()

	var log *zap.Logger
	var err error
	if cfg.Env == "production" {
		log, err = zap.NewProduction()
	} else {
		log, err = zap.NewDevelopment()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET não configurado")
	}

	database, err := db.ConnectAndMigrate(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal("banco de dados indisponível", zap.Error(err))
	}
	if *migrateOnly {
		log.Info("migrações aplicadas, encerrando")
		return
	}

	engine := sefaz.NewHTTPEngine(cfg.EngineURL, cfg.EngineTimeout)
	// DAMDFE rendering stays off until a renderer service is wired in.
	var renderer sefaz.Renderer

	router := server.New(database, cfg, engine, renderer, log)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("servidor iniciado", zap.String("porta", cfg.Port), zap.String("ambiente", cfg.Env))
		if serveErr := srv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			log.Fatal("servidor encerrou com erro", zap.Error(serveErr))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("encerrando servidor")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown forçado", zap.Error(err))
	}
}
