package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tutorhub/server/internal/auth"
	"github.com/tutorhub/server/internal/config"
	"github.com/tutorhub/server/internal/db"
	httphandler "github.com/tutorhub/server/internal/http"
	"github.com/tutorhub/server/internal/http/handlers"
	"github.com/tutorhub/server/internal/media"
	"github.com/tutorhub/server/internal/repo"
	"github.com/tutorhub/server/internal/repo/memory"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		accounts, closeStore, err := openAccounts(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		photos, err := media.NewLocalStore(cfg.MediaDir, cfg.MediaBaseURL)
		if err != nil {
			return err
		}

		credentials := auth.NewCredentialStore(accounts, auth.BcryptHasher{})
		jwtService := auth.NewJWTService(auth.TokenConfig{
			AccessSecret:  cfg.AccessTokenSecret,
			AccessTTL:     cfg.AccessTokenTTL,
			RefreshSecret: cfg.RefreshTokenSecret,
			RefreshTTL:    cfg.RefreshTokenTTL,
		})
		authService := auth.NewAuthService(credentials, jwtService, photos)

		router := httphandler.NewRouter(authService, httphandler.RouterConfig{
			CORSOrigins: cfg.CORSOrigins,
			Cookies: handlers.CookieConfig{
				Secure:   cfg.CookieSecure,
				SameSite: cfg.CookieSameSite,
			},
			MediaDir:     photos.Dir(),
			MediaBaseURL: cfg.MediaBaseURL,
		})

		// Create HTTP server with timeouts
		srv := &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("port", cfg.Port).Str("store", cfg.Store).Msg("server starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		// Wait for interrupt signal to gracefully shutdown the server
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case err, ok := <-errCh:
			if ok {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		case <-quit:
		}

		log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		log.Info().Msg("server exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// openAccounts builds the account repository selected by STORE.
// PostgreSQL is migrated on startup.
func openAccounts(ctx context.Context, cfg *config.Config) (repo.AccountRepo, func(), error) {
	if cfg.Store == config.StoreMemory {
		log.Warn().Msg("using in-memory account store; data is lost on restart")
		return memory.NewAccountRepo(), func() {}, nil
	}

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(database); err != nil {
		_ = database.Close()
		return nil, nil, err
	}
	return repo.NewAccountRepo(database), func() { _ = database.Close() }, nil
}
