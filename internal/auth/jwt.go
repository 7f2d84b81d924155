package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tutorhub/server/internal/model"
)

// AccessClaims is the claim set of an access token. Subject holds the account ID.
type AccessClaims struct {
	Username   string     `json:"username"`
	FullName   string     `json:"fullName"`
	Role       model.Role `json:"role"`
	StudentStd string     `json:"studentStd,omitempty"`
	ParentName string     `json:"parentName,omitempty"`
	TeacherAge int        `json:"teacherAge,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims carries identity only, so profile edits never invalidate a refresh token.
type RefreshClaims struct {
	jwt.RegisteredClaims
}

// TokenPair is what login and refresh hand back to the client.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenConfig holds the signing secrets and lifetimes for both token kinds.
type TokenConfig struct {
	AccessSecret  string
	AccessTTL     time.Duration
	RefreshSecret string
	RefreshTTL    time.Duration
}

// JWTService signs and verifies access and refresh tokens
type JWTService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
	parser        *jwt.Parser
}

// NewJWTService creates a new JWT service
func NewJWTService(cfg TokenConfig) *JWTService {
	s := &JWTService{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	return s
}

// AccessTTL is the lifetime of access tokens (used for cookie Max-Age).
func (s *JWTService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL is the lifetime of refresh tokens (used for cookie Max-Age).
func (s *JWTService) RefreshTTL() time.Duration { return s.refreshTTL }

// SignAccessToken creates an access token carrying the account's profile claims
func (s *JWTService) SignAccessToken(account *model.Account) (string, error) {
	now := s.now()
	claims := &AccessClaims{
		Username: account.Username,
		FullName: account.FullName,
		Role:     account.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	switch p := account.Profile.(type) {
	case *model.StudentProfile:
		claims.StudentStd = p.Std
		claims.ParentName = p.ParentName
	case *model.TeacherProfile:
		claims.TeacherAge = p.Age
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.accessSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return tokenString, nil
}

// SignRefreshToken creates a refresh token carrying only the account ID
func (s *JWTService) SignRefreshToken(account *model.Account) (string, error) {
	now := s.now()
	claims := &RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.refreshSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return tokenString, nil
}

// IssuePair mints a fresh access/refresh pair for account.
func (s *JWTService) IssuePair(account *model.Account) (TokenPair, error) {
	access, err := s.SignAccessToken(account)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.SignRefreshToken(account)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyAccessToken verifies signature and expiry and returns the claims
func (s *JWTService) VerifyAccessToken(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := s.verify(tokenString, claims, s.accessSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefreshToken verifies signature and expiry and returns the claims
func (s *JWTService) VerifyRefreshToken(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := s.verify(tokenString, claims, s.refreshSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *JWTService) verify(tokenString string, claims jwt.Claims, secret []byte) error {
	token, err := s.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("invalid token")
	}
	return nil
}

// subjectID extracts the account ID from a token's registered claims.
func subjectID(claims jwt.RegisteredClaims) (uuid.UUID, error) {
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid subject claim: %w", err)
	}
	return id, nil
}
