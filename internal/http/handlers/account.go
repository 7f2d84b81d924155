package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tutorhub/server/internal/auth"
	"github.com/tutorhub/server/internal/media"
	"github.com/tutorhub/server/internal/middleware"
	"github.com/tutorhub/server/internal/model"
)

// multipartMemory is how much of a multipart upload is buffered in memory before spilling to disk.
const multipartMemory = 1 << 20

// AccountHandler serves the routes of one role's route group
type AccountHandler struct {
	role        model.Role
	authService *auth.AuthService
	cookies     *CookieManager
}

// NewAccountHandler creates a handler for role
func NewAccountHandler(role model.Role, authService *auth.AuthService, cookies *CookieManager) *AccountHandler {
	return &AccountHandler{
		role:        role,
		authService: authService,
		cookies:     cookies,
	}
}

// Role is the account role this handler serves.
func (h *AccountHandler) Role() model.Role { return h.role }

// title is the capitalized role used in response messages.
func (h *AccountHandler) title() string {
	r := string(h.role)
	return strings.ToUpper(r[:1]) + r[1:]
}

// HandleRegister handles POST /register-{role}
func (h *AccountHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	account, err := h.authService.Register(r.Context(), h.role, body)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, account, h.title()+" registered successfully")
}

// loginRequest is the request body for POST /login-{role}
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin handles POST /login-{role}
func (h *AccountHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	account, pair, err := h.authService.Login(r.Context(), h.role, req.Username, req.Password)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}

	tokens := h.authService.Tokens()
	h.cookies.SetTokens(w, pair, tokens.AccessTTL(), tokens.RefreshTTL())
	respond(w, r, http.StatusOK, map[string]any{
		string(h.role): account,
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	}, h.title()+" logged in successfully")
}

// HandleLogout handles POST /logout-{role} (protected)
func (h *AccountHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	account, ok := h.account(w, r)
	if !ok {
		return
	}
	if err := h.authService.Logout(r.Context(), account.ID); err != nil {
		respondWithErr(w, r, err)
		return
	}
	h.cookies.ClearTokens(w)
	respond(w, r, http.StatusOK, struct{}{}, h.title()+" logged out successfully")
}

// refreshRequest is the request body for POST /refresh-accessToken
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// HandleRefresh handles POST /refresh-accessToken. The cookie wins over the body.
func (h *AccountHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	token := ""
	if c, err := r.Cookie(RefreshTokenCookie); err == nil {
		token = c.Value
	}
	if token == "" {
		var req refreshRequest
		body, err := readBody(w, r)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		if len(body) > 0 {
			if err := decodeJSON(body, &req); err != nil {
				respondWithError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
		token = strings.TrimSpace(req.RefreshToken)
	}

	pair, err := h.authService.Refresh(r.Context(), h.role, token)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}

	tokens := h.authService.Tokens()
	h.cookies.SetTokens(w, pair, tokens.AccessTTL(), tokens.RefreshTTL())
	respond(w, r, http.StatusOK, pair, "access token refreshed")
}

// HandleGet handles GET /get-{role} (protected)
func (h *AccountHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	account, ok := h.account(w, r)
	if !ok {
		return
	}
	respond(w, r, http.StatusOK, account, h.title()+" data fetched")
}

// changePasswordRequest is the request body for POST /change-password
type changePasswordRequest struct {
	Password    string `json:"password"`
	NewPassword string `json:"newPassword"`
}

// HandleChangePassword handles POST /change-password (protected)
func (h *AccountHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	account, ok := h.account(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.authService.ChangePassword(r.Context(), account.ID, req.Password, req.NewPassword); err != nil {
		respondWithErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, struct{}{}, "password changed successfully")
}

// HandleUpdateProfile handles PATCH /update-{role}Profile (protected)
func (h *AccountHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	account, ok := h.account(w, r)
	if !ok {
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := h.authService.UpdateProfile(r.Context(), account.ID, body)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, updated, h.title()+" profile updated successfully")
}

// HandleAvatar handles PATCH /avatar-{role} (protected, multipart)
func (h *AccountHandler) HandleAvatar(w http.ResponseWriter, r *http.Request) {
	account, ok := h.account(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, media.MaxPhotoBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, http.StatusBadRequest, media.ErrTooLarge.Error())
			return
		}
		respondWithError(w, http.StatusBadRequest, "multipart form with a photo file is required")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, _, err := r.FormFile(h.role.PhotoField())
	if errors.Is(err, http.ErrMissingFile) {
		file, _, err = r.FormFile("photo")
	}
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("%s file is required", h.role.PhotoField()))
		return
	}
	defer file.Close()

	updated, err := h.authService.UpdatePhoto(r.Context(), account.ID, file)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, updated, h.title()+" photo updated successfully")
}

// HandleLink handles PUT /link/{id} (protected)
func (h *AccountHandler) HandleLink(w http.ResponseWriter, r *http.Request) {
	account, ok := h.account(w, r)
	if !ok {
		return
	}
	otherID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusNotFound, fmt.Sprintf("%s not found", h.role.Other()))
		return
	}
	updated, err := h.authService.Link(r.Context(), account.ID, otherID)
	if err != nil {
		respondWithErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, updated, fmt.Sprintf("%s linked", h.role.Other()))
}

// account returns the authenticated account or writes a 401.
func (h *AccountHandler) account(w http.ResponseWriter, r *http.Request) (*model.Account, bool) {
	account, ok := middleware.GetAccount(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized request")
		return nil, false
	}
	return account, true
}
