package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/tutorhub/server/internal/model"
)

var (
	// ErrNotFound is returned when no account matches the lookup.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicateUsername is returned when the role already has an account with the username.
	ErrDuplicateUsername = errors.New("username already taken")
)

// AccountPatch describes a single-write update of an account. Nil fields are left untouched.
type AccountPatch struct {
	FullName     *string
	Profile      model.Profile
	PasswordHash *string
	Photo        *string
	RefreshToken *string
	// ClearRefreshToken unsets the stored refresh token; it wins over RefreshToken.
	ClearRefreshToken bool
	AddLink           *uuid.UUID
}

// AccountRepo defines the interface for account repository operations
type AccountRepo interface {
	Create(ctx context.Context, account model.Account) (model.Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.Account, error)
	GetByUsername(ctx context.Context, role model.Role, username string) (model.Account, error)
	Update(ctx context.Context, id uuid.UUID, patch AccountPatch) (model.Account, error)
}

const accountColumns = `id, role, username, password_hash, full_name, photo, refresh_token, links, profile, created_at, updated_at`

type accountRepo struct {
	db *sql.DB
}

// NewAccountRepo creates a new PostgreSQL-backed AccountRepo
func NewAccountRepo(db *sql.DB) AccountRepo {
	return &accountRepo{db: db}
}

// Create inserts a new account. The username is expected to be normalized already.
func (r *accountRepo) Create(ctx context.Context, account model.Account) (model.Account, error) {
	profile, err := json.Marshal(account.Profile)
	if err != nil {
		return model.Account{}, fmt.Errorf("failed to encode profile: %w", err)
	}
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}

	query := `
		INSERT INTO accounts (id, role, username, password_hash, full_name, photo, links, profile)
		VALUES ($1, $2, $3, $4, $5, $6, $7::uuid[], $8::jsonb)
		RETURNING ` + accountColumns

	row := r.db.QueryRowContext(ctx, query,
		account.ID,
		string(account.Role),
		account.Username,
		account.PasswordHash,
		account.FullName,
		account.Photo,
		pq.Array(linkStrings(account.Links)),
		string(profile),
	)
	created, err := scanAccount(row)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Account{}, ErrDuplicateUsername
		}
		return model.Account{}, fmt.Errorf("failed to insert account: %w", err)
	}
	return created, nil
}

// GetByID retrieves an account by ID
func (r *accountRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, ErrNotFound
		}
		return model.Account{}, fmt.Errorf("failed to query account: %w", err)
	}
	return account, nil
}

// GetByUsername retrieves an account of the given role by normalized username
func (r *accountRepo) GetByUsername(ctx context.Context, role model.Role, username string) (model.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE role = $1 AND username = $2`,
		string(role), model.NormalizeUsername(username),
	)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, ErrNotFound
		}
		return model.Account{}, fmt.Errorf("failed to query account: %w", err)
	}
	return account, nil
}

// Update applies patch in a single UPDATE statement and returns the stored row.
func (r *accountRepo) Update(ctx context.Context, id uuid.UUID, patch AccountPatch) (model.Account, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id}
	set := func(expr string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}

	if patch.FullName != nil {
		set("full_name = $%d", *patch.FullName)
	}
	if patch.Profile != nil {
		profile, err := json.Marshal(patch.Profile)
		if err != nil {
			return model.Account{}, fmt.Errorf("failed to encode profile: %w", err)
		}
		set("profile = $%d::jsonb", string(profile))
	}
	if patch.PasswordHash != nil {
		set("password_hash = $%d", *patch.PasswordHash)
	}
	if patch.Photo != nil {
		set("photo = $%d", *patch.Photo)
	}
	if patch.ClearRefreshToken {
		sets = append(sets, "refresh_token = NULL")
	} else if patch.RefreshToken != nil {
		set("refresh_token = $%d", *patch.RefreshToken)
	}
	if patch.AddLink != nil {
		args = append(args, patch.AddLink.String())
		n := len(args)
		sets = append(sets, fmt.Sprintf(
			"links = CASE WHEN $%d::uuid = ANY(links) THEN links ELSE array_append(links, $%d::uuid) END", n, n))
	}

	query := `UPDATE accounts SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + accountColumns
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, ErrNotFound
		}
		return model.Account{}, fmt.Errorf("failed to update account: %w", err)
	}
	return account, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (model.Account, error) {
	var (
		account model.Account
		role    string
		links   []string
		profile []byte
	)
	err := row.Scan(
		&account.ID,
		&role,
		&account.Username,
		&account.PasswordHash,
		&account.FullName,
		&account.Photo,
		&account.RefreshToken,
		pq.Array(&links),
		&profile,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return model.Account{}, err
	}

	account.Role, err = model.ParseRole(role)
	if err != nil {
		return model.Account{}, err
	}
	account.Profile, err = model.DecodeProfile(account.Role, profile)
	if err != nil {
		return model.Account{}, err
	}
	account.Links = make([]uuid.UUID, 0, len(links))
	for _, l := range links {
		id, err := uuid.Parse(l)
		if err != nil {
			return model.Account{}, fmt.Errorf("failed to parse link ID: %w", err)
		}
		account.Links = append(account.Links, id)
	}
	return account, nil
}

func linkStrings(links []uuid.UUID) []string {
	out := make([]string, 0, len(links))
	for _, l := range links {
		out = append(out, l.String())
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
