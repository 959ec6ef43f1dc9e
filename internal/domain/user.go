package domain

import (
	"strings"
	"time"
)

// User — зарегистрированный покупатель.
// Идентичность неизменна после создания; hash/salt меняются только явной сменой пароля.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash []byte
	PasswordSalt []byte
	CreatedAt    time.Time
}

// NormalizeUsername убирает пробелы по краям.
func NormalizeUsername(username string) string {
	return strings.TrimSpace(username)
}

// NormalizeEmail приводит email к каноническому виду: без пробелов, в нижнем регистре.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
