package http

import (
	"net/http"
	"os"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/tutorhub/server/internal/auth"
	"github.com/tutorhub/server/internal/http/handlers"
	"github.com/tutorhub/server/internal/middleware"
	"github.com/tutorhub/server/internal/model"
)

// RouterConfig carries what the router needs beyond the auth service.
type RouterConfig struct {
	CORSOrigins  []string
	Cookies      handlers.CookieConfig
	MediaDir     string
	MediaBaseURL string
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(authService *auth.AuthService, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Browsers refuse credentialed responses for a wildcard origin.
	wildcard := slices.Contains(cfg.CORSOrigins, "*")
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: !wildcard,
		MaxAge:           300,
	}))
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimw.Recoverer)

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)

	if cfg.MediaDir != "" && strings.HasPrefix(cfg.MediaBaseURL, "/") {
		prefix := strings.TrimRight(cfg.MediaBaseURL, "/")
		r.Handle(prefix+"/*", http.StripPrefix(prefix+"/", http.FileServer(fileOnlyFS{http.Dir(cfg.MediaDir)})))
	}

	cookies := handlers.NewCookieManager(cfg.Cookies)
	r.Route("/api/v1", func(r chi.Router) {
		for _, role := range model.Roles {
			mountRole(r, handlers.NewAccountHandler(role, authService, cookies), authService)
		}
	})

	return r
}

// mountRole registers one role's route group under /{role}s.
func mountRole(r chi.Router, h *handlers.AccountHandler, authenticator middleware.Authenticator) {
	role := h.Role()
	r.Route("/"+role.Plural(), func(r chi.Router) {
		r.Post("/register-"+string(role), h.HandleRegister)
		r.Post("/login-"+string(role), h.HandleLogin)
		r.Post("/refresh-accessToken", h.HandleRefresh)

		// Protected routes (require valid access token)
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(authenticator, role))
			r.Get("/get-"+string(role), h.HandleGet)
			r.Post("/logout-"+string(role), h.HandleLogout)
			r.Post("/change-password", h.HandleChangePassword)
			r.Patch("/update-"+string(role)+"Profile", h.HandleUpdateProfile)
			r.Patch("/avatar-"+string(role), h.HandleAvatar)
			r.Put("/link/{id}", h.HandleLink)
		})
	})
}

// fileOnlyFS serves regular files only; directories are reported missing so
// the media tree cannot be listed.
type fileOnlyFS struct {
	fs http.FileSystem
}

func (f fileOnlyFS) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}
