package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go-market/internal/db"
	"go-market/internal/subscription"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

var (
	ErrNotFound = errors.New("user not found")
	ErrConflict = errors.New("username already taken")
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateUser(ctx context.Context, u *User) (*User, error) {
	query := `INSERT INTO users (id, username, password, subscription_tier)
		VALUES ($1, $2, $3, $4) RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query, u.ID, u.Username, u.Password, string(u.Tier)).Scan(&u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return r.getUser(ctx, "SELECT id, username, password, subscription_tier, created_at FROM users WHERE username = $1", username)
}

func (r *Repository) GetUserByID(ctx context.Context, id string) (*User, error) {
	if !db.ValidID(id) {
		return nil, ErrNotFound
	}
	return r.getUser(ctx, "SELECT id, username, password, subscription_tier, created_at FROM users WHERE id = $1", id)
}

func (r *Repository) getUser(ctx context.Context, query string, arg string) (*User, error) {
	u := &User{}
	var tier string

	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Username, &u.Password, &tier, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Tier = subscription.Tier(tier)
	return u, nil
}

func (r *Repository) SearchUsers(ctx context.Context, query string) ([]User, error) {
	// We limit to 10 to keep it fast
	q := `SELECT id, username FROM users WHERE username ILIKE $1 ORDER BY username LIMIT 10`
	rows, err := r.db.QueryContext(ctx, q, db.ContainsPattern(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *Repository) UpdateTier(ctx context.Context, id string, tier subscription.Tier) error {
	if !db.ValidID(id) {
		return ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, "UPDATE users SET subscription_tier = $1 WHERE id = $2", string(tier), id)
	if err != nil {
		return fmt.Errorf("update tier: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
