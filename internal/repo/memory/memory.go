// Package memory provides a thread-safe in-memory implementation of repo.AccountRepo.
// Suitable for tests and local development without PostgreSQL.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tutorhub/server/internal/model"
	"github.com/tutorhub/server/internal/repo"
)

// AccountRepo is a thread-safe in-memory implementation of repo.AccountRepo.
type AccountRepo struct {
	mu         sync.RWMutex
	byID       map[uuid.UUID]*model.Account
	byUsername map[string]uuid.UUID
	now        func() time.Time
}

var _ repo.AccountRepo = (*AccountRepo)(nil)

// NewAccountRepo creates a new empty in-memory AccountRepo.
func NewAccountRepo() *AccountRepo {
	return &AccountRepo{
		byID:       make(map[uuid.UUID]*model.Account),
		byUsername: make(map[string]uuid.UUID),
		now:        time.Now,
	}
}

func usernameKey(role model.Role, username string) string {
	return string(role) + ":" + model.NormalizeUsername(username)
}

func (r *AccountRepo) Create(ctx context.Context, account model.Account) (model.Account, error) {
	if err := ctx.Err(); err != nil {
		return model.Account{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := usernameKey(account.Role, account.Username)
	if _, exists := r.byUsername[key]; exists {
		return model.Account{}, repo.ErrDuplicateUsername
	}
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	now := r.now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	account.RefreshToken = nil
	if account.Links == nil {
		account.Links = []uuid.UUID{}
	}

	stored := account.Clone()
	r.byID[stored.ID] = stored
	r.byUsername[key] = stored.ID
	return *stored.Clone(), nil
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Account, error) {
	if err := ctx.Err(); err != nil {
		return model.Account{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.byID[id]
	if !ok {
		return model.Account{}, repo.ErrNotFound
	}
	return *stored.Clone(), nil
}

func (r *AccountRepo) GetByUsername(ctx context.Context, role model.Role, username string) (model.Account, error) {
	if err := ctx.Err(); err != nil {
		return model.Account{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[usernameKey(role, username)]
	if !ok {
		return model.Account{}, repo.ErrNotFound
	}
	return *r.byID[id].Clone(), nil
}

func (r *AccountRepo) Update(ctx context.Context, id uuid.UUID, patch repo.AccountPatch) (model.Account, error) {
	if err := ctx.Err(); err != nil {
		return model.Account{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[id]
	if !ok {
		return model.Account{}, repo.ErrNotFound
	}
	next := stored.Clone()
	if patch.FullName != nil {
		next.FullName = *patch.FullName
	}
	if patch.Profile != nil {
		next.Profile = patch.Profile.Clone()
	}
	if patch.PasswordHash != nil {
		next.PasswordHash = *patch.PasswordHash
	}
	if patch.Photo != nil {
		photo := *patch.Photo
		next.Photo = &photo
	}
	if patch.ClearRefreshToken {
		next.RefreshToken = nil
	} else if patch.RefreshToken != nil {
		token := *patch.RefreshToken
		next.RefreshToken = &token
	}
	if patch.AddLink != nil && !next.HasLink(*patch.AddLink) {
		next.Links = append(next.Links, *patch.AddLink)
	}
	next.UpdatedAt = r.now().UTC()

	r.byID[id] = next
	return *next.Clone(), nil
}
