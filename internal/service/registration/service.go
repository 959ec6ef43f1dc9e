// Package registration создаёт учётные записи покупателей.
package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
)

// Store — часть хранилища пользователей, нужная для регистрации.
type Store interface {
	FindUserByUsernameOrEmail(ctx context.Context, username, email string) (domain.User, bool, error)
	InsertUser(ctx context.Context, user domain.User) (domain.User, error)
}

// Deriver выводит hash и salt из пароля.
type Deriver interface {
	Derive(password string) (hash, salt []byte)
}

// Recorder принимает метрики регистрации.
type Recorder interface {
	RecordRegistration(outcome string)
	RecordKDF(operation string, duration time.Duration)
}

// Request содержит данные регистрации.
type Request struct {
	Username string
	Email    string
	Password string
}

// Service регистрирует пользователей.
type Service struct {
	store   Store
	deriver Deriver
	metrics Recorder
	logger  *log.Entry
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics задаёт приёмник метрик.
func WithMetrics(recorder Recorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// NewService создаёт сервис регистрации.
func NewService(store Store, deriver Deriver, opts ...Option) *Service {
	s := &Service{
		store:   store,
		deriver: deriver,
		metrics: noopRecorder{},
		logger:  log.WithField("component", "registration"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register нормализует входные данные, проверяет уникальность и сохраняет пользователя.
//
// Предварительная проверка лишь ранний выход: при гонке двух одинаковых регистраций
// ErrUniqueConstraintViolation придёт из InsertUser.
func (s *Service) Register(ctx context.Context, req Request) (domain.User, error) {
	user, err := s.register(ctx, req)
	s.metrics.RecordRegistration(outcome(err))

	entry := s.logger.WithField("username", strings.TrimSpace(req.Username))
	switch {
	case err == nil:
		entry.WithField("user_id", user.ID).Info("user registered")
	case errors.Is(err, domain.ErrInternal):
		entry.WithError(err).Error("registration failed")
	default:
		entry.WithError(err).Debug("registration rejected")
	}
	return user, err
}

func (s *Service) register(ctx context.Context, req Request) (domain.User, error) {
	username := domain.NormalizeUsername(req.Username)
	email := domain.NormalizeEmail(req.Email)

	if username == "" {
		return domain.User{}, fmt.Errorf("%w: username is required", domain.ErrInvalidArgument)
	}
	if !validEmail(email) {
		return domain.User{}, fmt.Errorf("%w: email is invalid", domain.ErrInvalidArgument)
	}
	if req.Password == "" {
		return domain.User{}, fmt.Errorf("%w: password is required", domain.ErrInvalidArgument)
	}

	if _, found, err := s.store.FindUserByUsernameOrEmail(ctx, username, email); err != nil {
		return domain.User{}, fmt.Errorf("%w: lookup user: %w", domain.ErrInternal, err)
	} else if found {
		return domain.User{}, domain.ErrUniqueConstraintViolation
	}

	started := time.Now()
	hash, salt := s.deriver.Derive(req.Password)
	s.metrics.RecordKDF("derive", time.Since(started))

	user, err := s.store.InsertUser(ctx, domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		PasswordSalt: salt,
	})
	if err != nil {
		if errors.Is(err, domain.ErrUniqueConstraintViolation) {
			return domain.User{}, err
		}
		return domain.User{}, fmt.Errorf("%w: insert user: %w", domain.ErrInternal, err)
	}
	return user, nil
}

func validEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	return at > 0 && at < len(email)-1 && strings.Count(email, "@") == 1
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, domain.ErrUniqueConstraintViolation):
		return "unique_violation"
	default:
		return metrics.OutcomeInternal
	}
}

type noopRecorder struct{}

func (noopRecorder) RecordRegistration(string)       {}
func (noopRecorder) RecordKDF(string, time.Duration) {}

var _ Recorder = (*metrics.AuthMetrics)(nil)
