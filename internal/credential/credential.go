// Package credential выводит и проверяет хэши паролей (PBKDF2-SHA256).
//
// Сервис не хранит состояния и безопасен для конкурентного использования:
// каждый вызов независим, блокировки не берутся.
package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// MinIterations — нижняя граница числа итераций PBKDF2.
	MinIterations = 100_000
	// SaltSize — длина соли в байтах (128 бит).
	SaltSize = 16
	// KeySize — длина выводимого ключа в байтах (256 бит).
	KeySize = 32
)

// placeholderSalt подставляется вместо пустой соли, чтобы проверка
// некорректной записи стоила столько же, сколько проверка корректной.
var placeholderSalt = make([]byte, SaltSize)

// Service выводит ключи из паролей и сверяет их за постоянное время.
type Service struct {
	iterations int
}

// Option настраивает Service.
type Option func(*Service)

// WithIterations задаёт число итераций; значения ниже MinIterations поднимаются до MinIterations.
func WithIterations(n int) Option {
	return func(s *Service) {
		if n > MinIterations {
			s.iterations = n
		}
	}
}

// NewService создаёт сервис с MinIterations итераций по умолчанию.
func NewService(opts ...Option) *Service {
	s := &Service{iterations: MinIterations}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Iterations возвращает действующее число итераций.
func (s *Service) Iterations() int {
	return s.iterations
}

// Derive генерирует случайную соль и выводит из пароля ключ KeySize байт.
// Пустой пароль допустим: политика сложности паролей живёт выше.
func (s *Service) Derive(password string) (hash, salt []byte) {
	salt = make([]byte, SaltSize)
	// crypto/rand.Read не возвращает ошибок начиная с Go 1.24.
	_, _ = rand.Read(salt)
	return s.derive(password, salt), salt
}

// Verify выводит ключ из password и storedSalt и сравнивает его со storedHash
// за постоянное время. Некорректные hash/salt дают false без паники и без
// сокращённого пути: объём работы тот же, что и при неверном пароле.
func (s *Service) Verify(password string, storedHash, storedSalt []byte) bool {
	wellFormed := 1
	salt := storedSalt
	if len(salt) == 0 {
		salt = placeholderSalt
		wellFormed = 0
	}

	expected := make([]byte, KeySize)
	if len(storedHash) != KeySize {
		wellFormed = 0
	}
	copy(expected, storedHash)

	derived := s.derive(password, salt)
	match := subtle.ConstantTimeCompare(derived, expected)
	return subtle.ConstantTimeEq(int32(match&wellFormed), 1) == 1
}

func (s *Service) derive(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, s.iterations, KeySize, sha256.New)
}
