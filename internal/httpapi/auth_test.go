package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"ventas/backend/internal/domain"
	"ventas/backend/internal/store"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.User
	updates int
}

func (s *userStoreStub) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, id int64, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for email, user := range s.users {
		if user.ID == id {
			user.PasswordHash = passwordHash
			s.users[email] = user
			s.updates++
			return nil
		}
	}
	return store.ErrNotFound
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	users := &userStoreStub{
		users: map[string]domain.User{
			"jony@ventas.local": {ID: 1, Email: "jony@ventas.local", PasswordHash: "supervisor123", Role: domain.RoleSupervisor, Active: true},
		},
	}

	manager := NewAuthManager("test-secret", time.Hour, users)
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Email: "Jony@Ventas.local ", Password: "supervisor123"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	stored := users.users["jony@ventas.local"].PasswordHash
	if users.updates != 1 || !strings.HasPrefix(stored, "$2") {
		t.Fatalf("expected bcrypt password hash after upgrade, got %q", stored)
	}

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Email: "jony@ventas.local", Password: "supervisor123"}); err != nil {
		t.Fatalf("login with upgraded hash failed: %v", err)
	}
}

func TestLoginRejectsWrongPasswordAndInactiveUsers(t *testing.T) {
	hash, err := hashPassword("cobrador123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	users := &userStoreStub{
		users: map[string]domain.User{
			"caja1@ventas.local": {ID: 2, Email: "caja1@ventas.local", PasswordHash: hash, Role: domain.RoleCollector, Active: true},
			"caja9@ventas.local": {ID: 9, Email: "caja9@ventas.local", PasswordHash: hash, Role: domain.RoleCollector},
		},
	}
	manager := NewAuthManager("test-secret", time.Hour, users)

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Email: "caja1@ventas.local", Password: "nope"}); !errors.Is(err, errInvalidCredentials) {
		t.Fatalf("expected errInvalidCredentials, got %v", err)
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Email: "nadie@ventas.local", Password: "x"}); !errors.Is(err, errInvalidCredentials) {
		t.Fatalf("expected errInvalidCredentials for unknown user, got %v", err)
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Email: "caja9@ventas.local", Password: "cobrador123"}); !errors.Is(err, errInactiveAccount) {
		t.Fatalf("expected errInactiveAccount, got %v", err)
	}
}

func TestTokenRoundTripCarriesActor(t *testing.T) {
	hash, _ := hashPassword("cobrador123")
	users := &userStoreStub{
		users: map[string]domain.User{
			"caja1@ventas.local": {ID: 2, Email: "caja1@ventas.local", PasswordHash: hash, Role: domain.RoleCollector, Active: true},
		},
	}
	manager := NewAuthManager("test-secret", time.Hour, users)

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Email: "caja1@ventas.local", Password: "cobrador123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Email != "caja1@ventas.local" || actor.Role != domain.RoleCollector {
		t.Fatalf("unexpected actor %+v", actor)
	}

	other := NewAuthManager("another-secret", time.Hour, users)
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}
