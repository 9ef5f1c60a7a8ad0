package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odilabs/odi-auth/internal/domain"
)

// DB is the subset of pgxpool.Pool the repository uses, kept narrow so tests
// can substitute a mock connection.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresUserRepo implements UserRepository on Postgres.
type PostgresUserRepo struct {
	db DB
}

var _ UserRepository = (*PostgresUserRepo)(nil)

func NewPostgresUserRepo(db DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, odacc, nickname, email, password_hash, avatar_url, birthday, address, gender, role, created_at`

const findByIdentifierSQL = `SELECT ` + userColumns + ` FROM users WHERE email = $1 OR odacc = $1 LIMIT 1`

func (r *PostgresUserRepo) FindByIdentifier(ctx context.Context, identifier string) (domain.User, error) {
	return r.scanUser(r.db.QueryRow(ctx, findByIdentifierSQL, identifier), "find user")
}

const getByEmailSQL = `SELECT ` + userColumns + ` FROM users WHERE email = $1 LIMIT 1`

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.scanUser(r.db.QueryRow(ctx, getByEmailSQL, email), "get user by email")
}

const getByIDSQL = `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`

func (r *PostgresUserRepo) GetByID(ctx context.Context, id int64) (domain.User, error) {
	return r.scanUser(r.db.QueryRow(ctx, getByIDSQL, id), "get user by id")
}

const countByEmailSQL = `SELECT COUNT(*) FROM users WHERE email = $1`

func (r *PostgresUserRepo) CountByEmail(ctx context.Context, email string) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, countByEmailSQL, email).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users by email: %w", err)
	}
	return count, nil
}

const odaccExistsSQL = `SELECT EXISTS(SELECT 1 FROM users WHERE odacc = $1)`

func (r *PostgresUserRepo) OdaccExists(ctx context.Context, odacc string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, odaccExistsSQL, odacc).Scan(&exists); err != nil {
		return false, fmt.Errorf("check odacc: %w", err)
	}
	return exists, nil
}

const insertUserSQL = `INSERT INTO users (id, odacc, nickname, email, password_hash, avatar_url, birthday, address, gender, role)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + userColumns

func (r *PostgresUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	row := r.db.QueryRow(ctx, insertUserSQL,
		user.ID,
		user.Odacc,
		user.Nickname,
		user.Email,
		user.PasswordHash,
		user.AvatarURL,
		user.Birthday,
		user.Address,
		user.Gender,
		user.Role,
	)
	return r.scanUser(row, "create user")
}

func (r *PostgresUserRepo) scanUser(row pgx.Row, op string) (domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.Odacc,
		&user.Nickname,
		&user.Email,
		&user.PasswordHash,
		&user.AvatarURL,
		&user.Birthday,
		&user.Address,
		&user.Gender,
		&user.Role,
		&user.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, fmt.Errorf("%s: %w", op, domain.ErrUserNotFound)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}
