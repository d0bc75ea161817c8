package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"voiceforge/internal/domain"
	"voiceforge/internal/domain/model"
	"voiceforge/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*PostgresUserRepo)(nil)

const uniqueViolation = "23505"

type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{pool: pool}
}

const userColumns = `id, email, password_hash, display_name, is_active, is_admin, total_generations, created_at, last_login_at`

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName,
		&u.IsActive, &u.IsAdmin, &u.TotalGenerations, &u.CreatedAt, &u.LastLoginAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return &u, nil
}

func (r *PostgresUserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, email, password_hash, display_name, is_active, is_admin, total_generations, created_at, last_login_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`

	_, err := r.pool.Exec(ctx, q,
		u.ID, u.Email, u.PasswordHash, u.DisplayName, u.IsActive, u.IsAdmin,
		u.TotalGenerations, u.CreatedAt, u.LastLoginAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id = $1;`
	return scanUser(r.pool.QueryRow(ctx, q, id))
}

func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE email = $1;`
	return scanUser(r.pool.QueryRow(ctx, q, email))
}

func (r *PostgresUserRepo) UpdateLastLogin(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1;`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("postgres: update last login: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepo) IncrementGenerations(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, `UPDATE users SET total_generations = total_generations + 1 WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("postgres: increment generations: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count users: %w", err)
	}
	return n, nil
}
