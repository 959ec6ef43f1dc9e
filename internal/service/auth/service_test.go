package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/credential"
	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

// countingCredentials считает вызовы Verify поверх настоящего KDF.
type countingCredentials struct {
	*credential.Service
	mu       sync.Mutex
	verifies int
}

func (c *countingCredentials) Verify(password string, hash, salt []byte) bool {
	c.mu.Lock()
	c.verifies++
	c.mu.Unlock()
	return c.Service.Verify(password, hash, salt)
}

type loginStoreFunc func(ctx context.Context, login string) (domain.User, error)

func (f loginStoreFunc) FindUserByLogin(ctx context.Context, login string) (domain.User, error) {
	return f(ctx, login)
}

type loginSpy struct {
	mu       sync.Mutex
	outcomes []string
	kdf      []string
}

func (s *loginSpy) RecordLogin(outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, outcome)
}

func (s *loginSpy) RecordKDF(operation string, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kdf = append(s.kdf, operation)
}

func seedUser(t *testing.T, store *memory.Store, creds *credential.Service) domain.User {
	t.Helper()
	hash, salt := creds.Derive("correct horse")
	user, err := store.InsertUser(context.Background(), domain.User{
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: hash,
		PasswordSalt: salt,
	})
	require.NoError(t, err)
	return user
}

func TestLogin_ByUsernameOrEmail(t *testing.T) {
	store := memory.NewStore()
	creds := credential.NewService()
	user := seedUser(t, store, creds)
	svc := NewService(store, creds, newIssuer(t))

	for _, login := range []string{"alice", "alice@example.com", "ALICE@Example.com", " alice "} {
		t.Run(login, func(t *testing.T) {
			result, err := svc.Login(context.Background(), login, "correct horse")
			require.NoError(t, err)
			assert.Equal(t, user.ID, result.User.ID)
			assert.NotEmpty(t, result.Token)

			id, err := svc.Authenticate(result.Token)
			require.NoError(t, err)
			assert.Equal(t, user.ID, id)
		})
	}
}

func TestLogin_UnknownUserAndWrongPasswordAreIndistinguishable(t *testing.T) {
	store := memory.NewStore()
	creds := &countingCredentials{Service: credential.NewService()}
	seedUser(t, store, creds.Service)
	spy := &loginSpy{}
	svc := NewService(store, creds, newIssuer(t), WithMetrics(spy))

	_, wrongPassword := svc.Login(context.Background(), "alice", "battery staple")
	_, unknownUser := svc.Login(context.Background(), "mallory", "correct horse")

	require.ErrorIs(t, wrongPassword, domain.ErrInvalidCredentials)
	require.ErrorIs(t, unknownUser, domain.ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())

	assert.Equal(t, 2, creds.verifies, "unknown user must still run the KDF")
	assert.Equal(t, []string{"invalid_credentials", "invalid_credentials"}, spy.outcomes)
	assert.Equal(t, []string{"verify", "verify"}, spy.kdf)
}

func TestLogin_StoreFailureIsInternal(t *testing.T) {
	boom := errors.New("connection refused")
	store := loginStoreFunc(func(context.Context, string) (domain.User, error) {
		return domain.User{}, boom
	})
	svc := NewService(store, credential.NewService(), newIssuer(t))

	_, err := svc.Login(context.Background(), "alice", "pw")
	require.ErrorIs(t, err, domain.ErrInternal)
	require.ErrorIs(t, err, boom)
}

func TestAuthenticate_RejectsGarbage(t *testing.T) {
	svc := NewService(memory.NewStore(), credential.NewService(), newIssuer(t))
	_, err := svc.Authenticate("garbage")
	require.ErrorIs(t, err, ErrInvalidToken)
}
