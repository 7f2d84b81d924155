package tests

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/tutorhub/server/internal/auth"
	"github.com/tutorhub/server/internal/db"
	httphandler "github.com/tutorhub/server/internal/http"
	"github.com/tutorhub/server/internal/http/handlers"
	"github.com/tutorhub/server/internal/media"
	"github.com/tutorhub/server/internal/repo"
)

const (
	testAccessSecret  = "test-access-secret-at-least-32-characters"
	testRefreshSecret = "test-refresh-secret-at-least-32-characters"
)

// NewHandler wires the full HTTP stack over accounts, storing photos under mediaDir.
// Cookies are not marked Secure so a cookie jar sends them over plain-HTTP test servers.
func NewHandler(accounts repo.AccountRepo, mediaDir string) (http.Handler, error) {
	photos, err := media.NewLocalStore(mediaDir, "/media")
	if err != nil {
		return nil, err
	}
	jwtService := auth.NewJWTService(auth.TokenConfig{
		AccessSecret:  testAccessSecret,
		AccessTTL:     15 * time.Minute,
		RefreshSecret: testRefreshSecret,
		RefreshTTL:    24 * time.Hour,
	})
	authService := auth.NewAuthService(auth.NewCredentialStore(accounts, auth.BcryptHasher{}), jwtService, photos)
	return httphandler.NewRouter(authService, httphandler.RouterConfig{
		CORSOrigins:  []string{"*"},
		Cookies:      handlers.CookieConfig{Secure: false, SameSite: "lax"},
		MediaDir:     photos.Dir(),
		MediaBaseURL: "/media",
	}), nil
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(database *sql.DB) error {
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// TruncateAccounts empties the accounts table for a clean test state.
func TruncateAccounts(ctx context.Context, database *sql.DB) error {
	_, err := database.ExecContext(ctx, "TRUNCATE TABLE accounts")
	if err != nil {
		return fmt.Errorf("truncate accounts: %w", err)
	}
	return nil
}
