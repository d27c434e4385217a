// cmd/storedash/serve.go
//
// Service boot.
//
// Life-cycle
// ----------
//
//  1. Load configuration (conf/.env → conf/storedash.yaml → STOREDASH_ env).
//
//  2. Start daily rotating logger (tees to console when running in a TTY).
//
//  3. Resolve vault: references when Vault is enabled.
//
//  4. Open the MySQL pool used for roles, permissions, and audit rows.
//
//  5. Register YAML form definitions.
//
//  6. Build the backend REST client and the webhook HTTP client.
//
//  7. Serve until SIGINT/SIGTERM, then drain for up to 15 s.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yanizio/storedash/internal/apiclient"
	"github.com/yanizio/storedash/internal/config"
	"github.com/yanizio/storedash/internal/database"
	"github.com/yanizio/storedash/internal/form"
	"github.com/yanizio/storedash/internal/logger"
	"github.com/yanizio/storedash/internal/requestinfo"
	"github.com/yanizio/storedash/internal/server"
	"github.com/yanizio/storedash/internal/vault"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard HTTP service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logOut, err := logger.New(cfg.Paths.Root, cfg.Log.Console && runningInTTY(), cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("start logger: %w", err)
	}
	defer func() { _ = logOut.Sync() }()
	log := logOut.Desugar()

	//
	// ── 1.  Secrets ─────────────────────────────────────────────────────
	//
	if cfg.Vault.Enabled {
		vc, err := vault.New(ctx, logOut.Infof)
		if err != nil {
			return fmt.Errorf("vault: %w", err)
		}
		if err := cfg.ResolveSecrets(ctx, vc); err != nil {
			return err
		}
		logOut.Info("vault secrets resolved")
	}

	//
	// ── 2.  Database ────────────────────────────────────────────────────
	//
	logOut.Info("connecting to database …")
	db, err := database.OpenWithOptions(ctx, cfg.Database.DSN, database.Options{
		MaxOpen:     cfg.Database.MaxOpenConns,
		MaxIdle:     cfg.Database.MaxIdleConns,
		MaxLifetime: cfg.Database.ConnMaxLife,
		PingRetries: cfg.Database.PingRetries,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	logOut.Info("database online")

	//
	// ── 3.  Forms ───────────────────────────────────────────────────────
	//
	if err := form.RegisterForms(cfg.Forms.Dir); err != nil {
		return fmt.Errorf("register forms: %w", err)
	}
	logOut.Infow("forms registered", "dir", cfg.Forms.Dir, "count", len(form.FormIDs()))

	//
	// ── 4.  Backend clients ─────────────────────────────────────────────
	//
	api, err := apiclient.New(apiclient.Config{
		BaseURL:   cfg.Backend.BaseURL,
		Token:     cfg.Backend.Token,
		Timeout:   cfg.Backend.Timeout,
		Retries:   cfg.Backend.Retries,
		CacheSize: cfg.Backend.CacheSize,
		CacheTTL:  cfg.Backend.CacheTTL,
	}, log)
	if err != nil {
		return fmt.Errorf("backend client: %w", err)
	}
	hooks := apiclient.NewHTTP(2, 10*time.Second, log)

	geo, err := requestinfo.OpenGeo(cfg.HTTP.GeoIPDB)
	if err != nil {
		return fmt.Errorf("open geoip db: %w", err)
	}
	if geo != nil {
		defer geo.Close()
	}

	//
	// ── 5.  HTTP ────────────────────────────────────────────────────────
	//
	srv := server.New(cfg.HTTP.ListenAddr, server.Routes(server.Deps{
		API:        api,
		DB:         db,
		Hooks:      hooks,
		Log:        log,
		UserHeader: cfg.HTTP.UserHeader,
		ForceHTTPS: cfg.HTTP.ForceHTTPS,
		Geo:        geo,
	}))

	errCh := make(chan error, 1)
	go func() {
		logOut.Infow("listening", "addr", cfg.HTTP.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logOut.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
		return err
	}
	return nil
}
