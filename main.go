package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/marigold-hq/marigold/internal/applog"
	"github.com/marigold-hq/marigold/internal/broadcast"
	"github.com/marigold-hq/marigold/internal/config"
	"github.com/marigold-hq/marigold/internal/dashboard"
	"github.com/marigold-hq/marigold/internal/db"
	"github.com/marigold-hq/marigold/internal/events"
	"github.com/marigold-hq/marigold/internal/state"
	"github.com/marigold-hq/marigold/internal/webserver"
)

func main() {
	if len(os.Args) >= 3 {
		switch os.Args[1] {
		case "adduser":
			if err := addUser(os.Args[2]); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			return
		case "passwd":
			if err := setPassword(os.Args[2]); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret must be set")
	}

	logger, closer, err := applog.Init(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer closer.Close()

	store, err := openStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	if has, err := store.HasAnyAccount(); err == nil && !has {
		logger.Warn("no accounts exist; create one with 'marigold adduser <name>'")
	}

	nc, err := nats.Connect(cfg.NATSURL, nats.Name("marigold"))
	if err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.NATSURL, err)
	}
	defer nc.Close()

	st := state.New()
	consumer := events.New(nc, st, events.Config{
		Subject:     cfg.EventsSubject,
		PingSubject: cfg.PingSubject,
	}, logger)
	if err := consumer.Start(); err != nil {
		return err
	}
	defer consumer.Stop()

	bc := broadcast.New(func() []byte { return dashboard.UpdatePayload(st) },
		cfg.UpdateInterval, logger)

	srv := webserver.New(st, bc, store, consumer, webserver.Config{
		BrokerURL:    cfg.NATSURL,
		AutoRefresh:  cfg.AutoRefresh,
		PurgeOffline: cfg.PurgeOfflineWorkers,
		Auth: webserver.AuthConfig{
			JWTSecret: cfg.Auth.JWTSecret,
			TokenTTL:  cfg.Auth.TokenTTL,
		},
	}, logger)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTPHost, cfg.HTTPPort),
		Handler: srv.Handler(),
	}
	go func() {
		logger.Info("dashboard listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func openStore(path string) (*db.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	store, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func promptPassword(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	return pw, err
}

func addUser(username string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pw, err := promptPassword(fmt.Sprintf("Password for %s: ", username))
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword(pw, bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	store, err := openStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	if _, err := store.CreateAccount(username, string(hash)); err != nil {
		return err
	}
	fmt.Printf("Account created: %s\n", username)
	return nil
}

func setPassword(username string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pw, err := promptPassword(fmt.Sprintf("New password for %s: ", username))
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword(pw, bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	store, err := openStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	acc, err := store.AccountByUsername(username)
	if err != nil {
		return fmt.Errorf("user not found: %w", err)
	}
	if err := store.UpdateAccountPassword(acc.ID, string(hash)); err != nil {
		return err
	}
	fmt.Printf("Password updated: %s\n", username)
	return nil
}
