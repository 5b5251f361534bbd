package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quickchat/internal/logger"
	"github.com/quickchat/internal/model"
)

// userCols — список колонок для SELECT (порядок соответствует scanUser).
const userCols = `id, full_name, email, password_hash, bio, profile_pic, created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(s interface{ Scan(dest ...any) error }, u *model.User) error {
	return s.Scan(&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &u.Bio, &u.ProfilePic, &u.CreatedAt, &u.UpdatedAt)
}

// Create сохраняет пользователя; занятый email → ErrConflict.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	defer logger.DeferLogDuration("user.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, full_name, email, password_hash, bio, profile_pic, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.FullName, u.Email, u.PasswordHash, u.Bio, u.ProfilePic, u.CreatedAt, u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("userRepo.Create: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByID", time.Now())()
	u := &model.User{}
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("userRepo.GetByID: %w", err)
	}
	return u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByEmail", time.Now())()
	u := &model.User{}
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email = $1`, email)
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("userRepo.GetByEmail: %w", err)
	}
	return u, nil
}

// ListExcept возвращает всех пользователей, кроме userID (список для сайдбара).
func (r *UserRepository) ListExcept(ctx context.Context, userID string, limit int) ([]model.User, error) {
	defer logger.DeferLogDuration("user.ListExcept", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+userCols+` FROM users WHERE id <> $1 ORDER BY full_name LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("userRepo.ListExcept: %w", err)
	}
	defer rows.Close()
	users := make([]model.User, 0, 32)
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("userRepo.ListExcept scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("userRepo.ListExcept rows: %w", err)
	}
	return users, nil
}

// UpdateProfile меняет имя, био и (если profilePic не пустой) аватар.
func (r *UserRepository) UpdateProfile(ctx context.Context, userID, fullName, bio, profilePic string) (*model.User, error) {
	defer logger.DeferLogDuration("user.UpdateProfile", time.Now())()
	u := &model.User{}
	row := r.pool.QueryRow(ctx,
		`UPDATE users
		 SET full_name = $1, bio = $2,
		     profile_pic = CASE WHEN $3::text = '' THEN profile_pic ELSE $3::text END,
		     updated_at = $4
		 WHERE id = $5
		 RETURNING `+userCols,
		fullName, bio, profilePic, time.Now().UTC(), userID,
	)
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("userRepo.UpdateProfile: %w", err)
	}
	return u, nil
}
