package users

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/phucldh3004/crm-auth/internal/shared"
)

// Pool is the subset of pgxpool.Pool used by the directory.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresDirectory implements Directory on PostgreSQL.
type PostgresDirectory struct {
	pool Pool
}

// NewPostgresDirectory constructs a PostgresDirectory.
func NewPostgresDirectory(pool Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

const userColumns = `id, name, email, password_hash, phone, address, image, role, account_type,
	is_active, reset_token_hash, reset_token_expiry, created_at, updated_at`

// FindByID fetches a user by id.
func (r *PostgresDirectory) FindByID(ctx context.Context, id string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id).Wrap(shared.ErrUserNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id).
			Wrap(err)
	}
	return u, nil
}

// FindByEmail fetches a user by email as stored.
func (r *PostgresDirectory) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(shared.ErrUserNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			With("email", email).
			Wrap(err)
	}
	return u, nil
}

// List returns all users ordered by creation time.
func (r *PostgresDirectory) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, oops.Code("USER_LIST_FAILED").With("operation", "list users").Wrap(err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, oops.Code("USER_LIST_FAILED").With("operation", "scan user").Wrap(err)
		}
		out = append(out, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("USER_LIST_FAILED").With("operation", "iterate users").Wrap(err)
	}
	return out, nil
}

// Create inserts a user. A unique violation on email maps to shared.ErrDuplicateEmail.
func (r *PostgresDirectory) Create(ctx context.Context, in NewUser) (*User, error) {
	u := &User{
		ID:           ulid.Make().String(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		Phone:        in.Phone,
		Address:      in.Address,
		Image:        in.Image,
		Role:         in.Role,
		AccountType:  in.AccountType,
		IsActive:     in.IsActive,
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, name, email, password_hash, phone, address, image, role, account_type, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Phone, u.Address, u.Image,
		string(u.Role), string(u.AccountType), u.IsActive,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, oops.Code("USER_DUPLICATE_EMAIL").With("email", in.Email).Wrap(shared.ErrDuplicateEmail)
		}
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("email", in.Email).
			Wrap(err)
	}
	return u, nil
}

// UpdatePassword replaces the password hash.
func (r *PostgresDirectory) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.exec(ctx, "update password", id,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)
}

// UpdateResetToken stores the token hash and expiry, replacing any outstanding token.
func (r *PostgresDirectory) UpdateResetToken(ctx context.Context, id, tokenHash string, expiry time.Time) error {
	return r.exec(ctx, "update reset token", id,
		`UPDATE users SET reset_token_hash = $2, reset_token_expiry = $3, updated_at = NOW() WHERE id = $1`,
		id, tokenHash, expiry)
}

// ConsumeResetToken is a compare-and-swap on the stored token hash.
func (r *PostgresDirectory) ConsumeResetToken(ctx context.Context, id, tokenHash string, now time.Time, passwordHash string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET password_hash = $4, reset_token_hash = NULL, reset_token_expiry = NULL, updated_at = NOW()
		WHERE id = $1 AND reset_token_hash = $2 AND reset_token_expiry >= $3
	`, id, tokenHash, now, passwordHash)
	if err != nil {
		return false, oops.Code("USER_CONSUME_RESET_FAILED").
			With("operation", "consume reset token").
			With("id", id).
			Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateRole assigns role.
func (r *PostgresDirectory) UpdateRole(ctx context.Context, id string, role Role) error {
	return r.exec(ctx, "update role", id,
		`UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`, id, string(role))
}

// SetActive locks or unlocks the user.
func (r *PostgresDirectory) SetActive(ctx context.Context, id string, active bool) error {
	return r.exec(ctx, "set active", id,
		`UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
}

func (r *PostgresDirectory) exec(ctx context.Context, operation, id, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", operation).
			With("id", id).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id).Wrap(shared.ErrUserNotFound)
	}
	return nil
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		u           User
		role        string
		accountType string
	)
	if err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&u.Phone,
		&u.Address,
		&u.Image,
		&role,
		&accountType,
		&u.IsActive,
		&u.ResetTokenHash,
		&u.ResetTokenExpiry,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	u.Role = Role(role)
	u.AccountType = AccountType(accountType)
	return &u, nil
}

var _ Directory = (*PostgresDirectory)(nil)
