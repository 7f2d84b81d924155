package auth

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/tutorhub/server/internal/model"
	"github.com/tutorhub/server/internal/repo"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their JSON names so messages match what clients send.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// validateStruct runs the struct's validate tags and turns failures into an ErrValidation.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "email":
			msgs = append(msgs, fe.Field()+" must be a valid email")
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		}
	}
	return validationError("%s", strings.Join(msgs, "; "))
}

// NewAccount is the input of CredentialStore.Create. Password is plaintext.
type NewAccount struct {
	Role     model.Role    `json:"-"`
	Username string        `json:"username" validate:"required"`
	Password string        `json:"password" validate:"required"`
	FullName string        `json:"fullName" validate:"required"`
	Profile  model.Profile `json:"-" validate:"-"`
}

// AccountUpdate is a repository patch plus an optional plaintext password.
type AccountUpdate struct {
	repo.AccountPatch
	// Password is hashed before the write; nil leaves the stored hash alone.
	Password *string
}

// CredentialStore persists accounts and owns password hashing.
type CredentialStore struct {
	repo   repo.AccountRepo
	hasher PasswordHasher
}

// NewCredentialStore creates a credential store over repo.
func NewCredentialStore(accounts repo.AccountRepo, hasher PasswordHasher) *CredentialStore {
	return &CredentialStore{repo: accounts, hasher: hasher}
}

// Create validates, normalizes the username, hashes the password and stores the account.
func (s *CredentialStore) Create(ctx context.Context, in NewAccount) (*model.Account, error) {
	in.Username = model.NormalizeUsername(in.Username)
	in.FullName = strings.TrimSpace(in.FullName)
	if strings.TrimSpace(in.Password) == "" {
		in.Password = ""
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if err := checkPasswordLength(in.Password); err != nil {
		return nil, err
	}
	if in.Profile == nil || in.Profile.Role() != in.Role {
		return nil, validationError("profile does not match role %q", in.Role)
	}
	if err := validateStruct(in.Profile); err != nil {
		return nil, err
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	created, err := s.repo.Create(ctx, model.Account{
		ID:           uuid.New(),
		Role:         in.Role,
		Username:     in.Username,
		PasswordHash: digest,
		FullName:     in.FullName,
		Links:        []uuid.UUID{},
		Profile:      in.Profile,
	})
	if err != nil {
		if errors.Is(err, repo.ErrDuplicateUsername) {
			return nil, newError(ErrConflict, "%s with username %q already exists", in.Role, in.Username)
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return &created, nil
}

// FindByUsername looks up an account of role by username (case-insensitive).
func (s *CredentialStore) FindByUsername(ctx context.Context, role model.Role, username string) (*model.Account, error) {
	account, err := s.repo.GetByUsername(ctx, role, model.NormalizeUsername(username))
	if err != nil {
		return nil, translateRepoErr(err)
	}
	return &account, nil
}

// FindByID looks up an account by ID.
func (s *CredentialStore) FindByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	return &account, nil
}

// Update applies the change in one write. The password is re-hashed only when it is part of the update.
func (s *CredentialStore) Update(ctx context.Context, id uuid.UUID, update AccountUpdate) (*model.Account, error) {
	patch := update.AccountPatch
	if update.Password != nil {
		if strings.TrimSpace(*update.Password) == "" {
			return nil, validationError("password is required")
		}
		if err := checkPasswordLength(*update.Password); err != nil {
			return nil, err
		}
		digest, err := s.hasher.Hash(*update.Password)
		if err != nil {
			return nil, err
		}
		patch.PasswordHash = &digest
	}
	account, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	return &account, nil
}

// VerifyPassword checks plain against the account's stored digest.
func (s *CredentialStore) VerifyPassword(account *model.Account, plain string) bool {
	return s.hasher.Verify(plain, account.PasswordHash)
}

// checkPasswordLength rejects passwords bcrypt cannot hash.
func checkPasswordLength(plain string) error {
	if len(plain) > MaxPasswordBytes {
		return validationError("password must be at most %d bytes", MaxPasswordBytes)
	}
	return nil
}

func translateRepoErr(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return newError(ErrNotFound, "account not found")
	}
	return fmt.Errorf("account store: %w", err)
}
