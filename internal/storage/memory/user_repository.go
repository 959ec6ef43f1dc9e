package memory

import (
	"context"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// GetUser возвращает пользователя или ErrUserNotFound.
func (s *Store) GetUser(ctx context.Context, id int64) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return cloneUser(user), nil
}

// FindUserByUsernameOrEmail ищет совпадение по username или email без учёта регистра email.
func (s *Store) FindUserByUsernameOrEmail(ctx context.Context, username, email string) (domain.User, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, ok := s.byUsername[username]; ok {
		return cloneUser(s.users[id]), true, nil
	}
	if id, ok := s.byEmail[domain.NormalizeEmail(email)]; ok {
		return cloneUser(s.users[id]), true, nil
	}
	return domain.User{}, false, nil
}

// FindUserByLogin ищет пользователя по username, затем по email.
func (s *Store) FindUserByLogin(ctx context.Context, login string) (domain.User, error) {
	user, found, err := s.FindUserByUsernameOrEmail(ctx, login, login)
	if err != nil {
		return domain.User{}, err
	}
	if !found {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

// InsertUser сохраняет пользователя, проверяя уникальность под той же блокировкой.
func (s *Store) InsertUser(ctx context.Context, user domain.User) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	email := domain.NormalizeEmail(user.Email)
	if _, taken := s.byUsername[user.Username]; taken {
		return domain.User{}, domain.ErrUniqueConstraintViolation
	}
	if _, taken := s.byEmail[email]; taken {
		return domain.User{}, domain.ErrUniqueConstraintViolation
	}

	s.nextUser++
	user.ID = s.nextUser
	user.Email = email
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	user = cloneUser(user)

	s.users[user.ID] = user
	s.byUsername[user.Username] = user.ID
	s.byEmail[email] = user.ID
	return cloneUser(user), nil
}
