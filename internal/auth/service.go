package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/tutorhub/server/internal/media"
	"github.com/tutorhub/server/internal/model"
	"github.com/tutorhub/server/internal/repo"
)

// AuthService orchestrates account and session operations
type AuthService struct {
	store  *CredentialStore
	tokens *JWTService
	photos media.Store
}

// NewAuthService creates a new auth service
func NewAuthService(store *CredentialStore, tokens *JWTService, photos media.Store) *AuthService {
	return &AuthService{
		store:  store,
		tokens: tokens,
		photos: photos,
	}
}

// Tokens exposes the token service (cookie lifetimes, middleware).
func (s *AuthService) Tokens() *JWTService { return s.tokens }

// Register creates an account of role from a flat JSON registration body.
func (s *AuthService) Register(ctx context.Context, role model.Role, body []byte) (*model.Account, error) {
	var in struct {
		NewAccount
		Role string `json:"role"`
	}
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, validationError("invalid request body")
	}
	if strings.TrimSpace(in.Role) == "" {
		return nil, validationError("role is required")
	}
	claimed, err := model.ParseRole(in.Role)
	if err != nil || claimed != role {
		return nil, validationError("role must be %q", role)
	}
	profile, err := model.DecodeProfile(role, body)
	if err != nil {
		return nil, validationError("invalid %s profile", role)
	}

	in.NewAccount.Role = role
	in.NewAccount.Profile = profile
	account, err := s.store.Create(ctx, in.NewAccount)
	if err != nil {
		return nil, err
	}
	return account.Sanitized(), nil
}

// Login verifies credentials, mints a token pair and stores the refresh token.
func (s *AuthService) Login(ctx context.Context, role model.Role, username, password string) (*model.Account, TokenPair, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, TokenPair{}, validationError("username and password are required")
	}
	account, err := s.store.FindByUsername(ctx, role, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, TokenPair{}, unauthorized
		}
		return nil, TokenPair{}, err
	}
	if !s.store.VerifyPassword(account, password) {
		return nil, TokenPair{}, unauthorized
	}

	pair, account, err := s.rotate(ctx, account)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return account.Sanitized(), pair, nil
}

// Logout clears the stored refresh token. Access tokens already issued stay valid until they expire.
func (s *AuthService) Logout(ctx context.Context, accountID uuid.UUID) error {
	_, err := s.store.Update(ctx, accountID, AccountUpdate{
		AccountPatch: repo.AccountPatch{ClearRefreshToken: true},
	})
	return err
}

// Refresh validates a refresh token against its signature and the stored copy, then rotates the pair.
// Every rejection is the same unauthorized error.
func (s *AuthService) Refresh(ctx context.Context, role model.Role, refreshToken string) (TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return TokenPair{}, unauthorized
	}
	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, unauthorized
	}
	id, err := subjectID(claims.RegisteredClaims)
	if err != nil {
		return TokenPair{}, unauthorized
	}
	account, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, unauthorized
		}
		return TokenPair{}, err
	}
	if account.Role != role || !refreshTokenMatches(account.RefreshToken, refreshToken) {
		return TokenPair{}, unauthorized
	}

	pair, _, err := s.rotate(ctx, account)
	if err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// rotate issues a new pair and overwrites the stored refresh token digest.
func (s *AuthService) rotate(ctx context.Context, account *model.Account) (TokenPair, *model.Account, error) {
	pair, err := s.tokens.IssuePair(account)
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("failed to issue tokens: %w", err)
	}
	digest := HashRefreshToken(pair.RefreshToken)
	updated, err := s.store.Update(ctx, account.ID, AccountUpdate{
		AccountPatch: repo.AccountPatch{RefreshToken: &digest},
	})
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, updated, nil
}

// Authenticate resolves an access token to the sanitized account it names.
func (s *AuthService) Authenticate(ctx context.Context, role model.Role, accessToken string) (*model.Account, error) {
	if accessToken == "" {
		return nil, unauthorized
	}
	claims, err := s.tokens.VerifyAccessToken(accessToken)
	if err != nil {
		return nil, unauthorized
	}
	id, err := subjectID(claims.RegisteredClaims)
	if err != nil {
		return nil, unauthorized
	}
	account, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, unauthorized
		}
		return nil, err
	}
	if account.Role != role {
		return nil, unauthorized
	}
	return account.Sanitized(), nil
}

// Get returns the sanitized account.
func (s *AuthService) Get(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	account, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return account.Sanitized(), nil
}

// ChangePassword checks the current password and stores the new one.
func (s *AuthService) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error {
	if current == "" || strings.TrimSpace(next) == "" {
		return validationError("password and newPassword are required")
	}
	account, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !s.store.VerifyPassword(account, current) {
		return newError(ErrUnauthorized, "invalid password")
	}
	_, err = s.store.Update(ctx, id, AccountUpdate{Password: &next})
	return err
}

// UpdateProfile merges the fields present in body into the account's name and profile.
// At least one editable field must be present; the merged profile must still validate.
func (s *AuthService) UpdateProfile(ctx context.Context, id uuid.UUID, body []byte) (*model.Account, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, validationError("invalid request body")
	}
	account, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	editable, err := profileKeys(account.Profile)
	if err != nil {
		return nil, err
	}
	editable["fullName"] = true
	touched := false
	for key := range fields {
		if editable[key] {
			touched = true
			break
		}
	}
	if !touched {
		return nil, validationError("at least one profile field is required")
	}

	var patch repo.AccountPatch
	if raw, ok := fields["fullName"]; ok {
		var fullName string
		if err := json.Unmarshal(raw, &fullName); err != nil || strings.TrimSpace(fullName) == "" {
			return nil, validationError("fullName must be a non-empty string")
		}
		fullName = strings.TrimSpace(fullName)
		patch.FullName = &fullName
	}

	profile := account.Profile.Clone()
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(profile); err != nil {
		return nil, validationError("invalid %s profile", account.Role)
	}
	if err := validateStruct(profile); err != nil {
		return nil, err
	}
	patch.Profile = profile

	updated, err := s.store.Update(ctx, id, AccountUpdate{AccountPatch: patch})
	if err != nil {
		return nil, err
	}
	return updated.Sanitized(), nil
}

// profileKeys lists the JSON field names of a profile document.
func profileKeys(p model.Profile) (map[string]bool, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode profile: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	keys := make(map[string]bool, len(fields))
	for k := range fields {
		keys[k] = true
	}
	return keys, nil
}

// UpdatePhoto stores the uploaded photo and records its URL on the account.
func (s *AuthService) UpdatePhoto(ctx context.Context, id uuid.UUID, photo io.Reader) (*model.Account, error) {
	url, err := s.photos.Save(ctx, id.String(), photo)
	if err != nil {
		switch {
		case errors.Is(err, media.ErrEmpty):
			return nil, validationError("photo file is required")
		case errors.Is(err, media.ErrTooLarge), errors.Is(err, media.ErrUnsupportedType):
			return nil, validationError("%s", err.Error())
		}
		return nil, fmt.Errorf("failed to store photo: %w", err)
	}
	updated, err := s.store.Update(ctx, id, AccountUpdate{
		AccountPatch: repo.AccountPatch{Photo: &url},
	})
	if err != nil {
		return nil, err
	}
	return updated.Sanitized(), nil
}

// Link associates the account with an account of the other role, on both sides.
func (s *AuthService) Link(ctx context.Context, id, otherID uuid.UUID) (*model.Account, error) {
	account, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	other, err := s.store.FindByID(ctx, otherID)
	if err != nil {
		return nil, err
	}
	if other.Role != account.Role.Other() {
		return nil, newError(ErrNotFound, "%s not found", account.Role.Other())
	}

	if _, err := s.store.Update(ctx, other.ID, AccountUpdate{
		AccountPatch: repo.AccountPatch{AddLink: &account.ID},
	}); err != nil {
		return nil, err
	}
	updated, err := s.store.Update(ctx, account.ID, AccountUpdate{
		AccountPatch: repo.AccountPatch{AddLink: &other.ID},
	})
	if err != nil {
		return nil, err
	}
	return updated.Sanitized(), nil
}
