package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const selectUserColumns = `SELECT id, username, email, password_hash, password_salt, created_at FROM users`

type userRepository struct {
	db *sql.DB
}

// NewUserRepository создаёт PostgreSQL-реализацию UserRepository.
func NewUserRepository(store *Store) domain.UserRepository {
	return &userRepository{db: store.DB()}
}

func (r *userRepository) GetUser(ctx context.Context, id int64) (domain.User, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	user, err := scanUser(r.db.QueryRowContext(ctx, selectUserColumns+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("select user %d: %w", id, err)
	}
	return user, nil
}

// FindUserByUsernameOrEmail ищет совпадение по username или email;
// совпадение по username важнее совпадения по email.
func (r *userRepository) FindUserByUsernameOrEmail(ctx context.Context, username, email string) (domain.User, bool, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	user, err := scanUser(r.db.QueryRowContext(ctx, selectUserColumns+`
		WHERE username = $1 OR lower(email) = lower($2)
		ORDER BY (username = $1) DESC, id
		LIMIT 1
	`, username, email))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, fmt.Errorf("find user by username or email: %w", err)
	}
	return user, true, nil
}

func (r *userRepository) FindUserByLogin(ctx context.Context, login string) (domain.User, error) {
	user, found, err := r.FindUserByUsernameOrEmail(ctx, login, login)
	if err != nil {
		return domain.User{}, err
	}
	if !found {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (r *userRepository) InsertUser(ctx context.Context, user domain.User) (domain.User, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	user.Email = domain.NormalizeEmail(user.Email)
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, password_hash, password_salt, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))
		RETURNING id, created_at
	`,
		user.Username, user.Email, user.PasswordHash, user.PasswordSalt, nullTime(user.CreatedAt),
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, domain.ErrUniqueConstraintViolation
		}
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID, &user.Username, &user.Email,
		&user.PasswordHash, &user.PasswordSalt, &user.CreatedAt,
	); err != nil {
		return domain.User{}, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}

var _ domain.UserRepository = (*userRepository)(nil)
