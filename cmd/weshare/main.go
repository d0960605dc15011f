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

	"github.com/kohrachel/weshare-sub000/internal/auth"
	"github.com/kohrachel/weshare-sub000/internal/backup"
	"github.com/kohrachel/weshare-sub000/internal/config"
	"github.com/kohrachel/weshare-sub000/internal/database"
	"github.com/kohrachel/weshare-sub000/internal/logging"
	"github.com/kohrachel/weshare-sub000/internal/push"
	"github.com/kohrachel/weshare-sub000/internal/server"
)

func main() {
	tokenFor := flag.String("token", "", "print a bearer token for the given user id and exit")
	genKeys := flag.Bool("gen-vapid", false, "print a new VAPID key pair and exit")
	restoreKey := flag.String("restore", "", "restore the backup object with this key over the database and exit")
	flag.Parse()

	if *genKeys {
		pub, priv, err := push.GenerateVAPIDKeys()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("WESHARE_VAPID_PUBLIC_KEY=%s\nWESHARE_VAPID_PRIVATE_KEY=%s\n", pub, priv)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	if *tokenFor != "" {
		token, err := auth.IssueToken(cfg.Auth.JWTSecret, *tokenFor, 30*24*time.Hour)
		if err != nil {
			logger.Error("issue token", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	backupCfg := backup.Config{
		S3: backup.S3Config{
			Endpoint:  cfg.Backup.Endpoint,
			Bucket:    cfg.Backup.Bucket,
			Region:    cfg.Backup.Region,
			AccessKey: cfg.Backup.AccessKey,
			SecretKey: cfg.Backup.SecretKey,
		},
		Passphrase: cfg.Backup.Passphrase,
		Interval:   cfg.Backup.Interval,
		Retention:  cfg.Backup.Retention,
	}

	if *restoreKey != "" {
		m := backup.NewManager(backupCfg, nil, nil, nil, logger.With("component", "backup"))
		if err := m.Restore(context.Background(), *restoreKey, cfg.Database.Path); err != nil {
			logger.Error("restore failed", "key", *restoreKey, "error", err)
			os.Exit(1)
		}
		return
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.Database.Path, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	pushCfg := push.Config{
		VAPIDPublicKey:  cfg.Push.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.Push.VAPIDPrivateKey,
		Subscriber:      cfg.Push.Subscriber,
	}
	if !pushCfg.Configured() {
		logger.Warn("VAPID keys not set, ride reminders are disabled")
	}

	srv := server.New(db, server.Config{
		JWTSecret:         cfg.Auth.JWTSecret,
		Push:              pushCfg,
		ReminderTolerance: cfg.Reminder.Tolerance,
		DispatchInterval:  cfg.Reminder.DispatchInterval,
		RSVPPerMinute:     cfg.Server.RSVPPerMinute,
		Backup:            backupCfg,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if d := srv.Dispatcher(); d != nil {
		d.Start(ctx)
		defer d.Stop()
	}

	srv.Backups().Start(ctx)
	defer srv.Backups().Stop()

	// Rate limiter cleanup
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				srv.RateLimiter().Cleanup(30 * time.Minute)
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("weshare listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

