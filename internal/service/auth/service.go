// Package auth проверяет учётные данные и выпускает access-токены.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
)

// Store ищет пользователя по username или email.
type Store interface {
	FindUserByLogin(ctx context.Context, login string) (domain.User, error)
}

// Credentials выводит и сверяет хэши паролей.
type Credentials interface {
	Derive(password string) (hash, salt []byte)
	Verify(password string, storedHash, storedSalt []byte) bool
}

// Recorder принимает метрики входа.
type Recorder interface {
	RecordLogin(outcome string)
	RecordKDF(operation string, duration time.Duration)
}

// Result возвращается при успешном входе.
type Result struct {
	User      domain.User
	Token     string
	ExpiresAt time.Time
}

// Service выполняет вход пользователей.
type Service struct {
	store       Store
	credentials Credentials
	tokens      *TokenIssuer
	metrics     Recorder
	logger      *log.Entry

	dummyHash []byte
	dummySalt []byte
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

// NewService создаёт сервис входа. Один раз выводит фиктивный хэш,
// которым выравнивается время ответа для несуществующих логинов.
func NewService(store Store, credentials Credentials, tokens *TokenIssuer, opts ...Option) *Service {
	s := &Service{
		store:       store,
		credentials: credentials,
		tokens:      tokens,
		metrics:     noopRecorder{},
		logger:      log.WithField("component", "auth"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dummyHash, s.dummySalt = credentials.Derive(uuid.NewString())
	return s
}

// Login сверяет пароль и выпускает токен.
// Неизвестный логин и неверный пароль неразличимы: оба дают ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, login, password string) (Result, error) {
	result, err := s.login(ctx, login, password)
	s.metrics.RecordLogin(outcome(err))

	switch {
	case err == nil:
		s.logger.WithField("user_id", result.User.ID).Info("user logged in")
	case errors.Is(err, domain.ErrInternal):
		s.logger.WithError(err).Error("login failed")
	default:
		s.logger.Debug("login rejected")
	}
	return result, err
}

func (s *Service) login(ctx context.Context, login, password string) (Result, error) {
	user, err := s.store.FindUserByLogin(ctx, domain.NormalizeUsername(login))
	found := err == nil
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return Result{}, fmt.Errorf("%w: find user: %w", domain.ErrInternal, err)
	}

	hash, salt := s.dummyHash, s.dummySalt
	if found {
		hash, salt = user.PasswordHash, user.PasswordSalt
	}

	started := time.Now()
	ok := s.credentials.Verify(password, hash, salt)
	s.metrics.RecordKDF("verify", time.Since(started))

	if !found || !ok {
		return Result{}, domain.ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", domain.ErrInternal, err)
	}
	return Result{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

// Authenticate проверяет токен и возвращает идентификатор пользователя.
func (s *Service) Authenticate(token string) (int64, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return 0, err
	}
	return claims.UserID()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "invalid_credentials"
	default:
		return metrics.OutcomeInternal
	}
}

type noopRecorder struct{}

func (noopRecorder) RecordLogin(string)              {}
func (noopRecorder) RecordKDF(string, time.Duration) {}

var _ Recorder = (*metrics.AuthMetrics)(nil)
