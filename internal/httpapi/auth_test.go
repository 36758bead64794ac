package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"kasirinaja/fulfillment/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func legacyAdminStore() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := legacyAdminStore()
	ctx := context.Background()

	manager := NewAuthManager(ctx, "test-secret", time.Hour, "123456", store)
	if _, err := manager.Login(ctx, domain.LoginRequest{Username: "admin", Password: "admin123"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := store.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
}

func TestCreateUserStoresPasswordHash(t *testing.T) {
	store := legacyAdminStore()
	ctx := context.Background()
	manager := NewAuthManager(ctx, "test-secret", time.Hour, "123456", store)

	user, err := manager.CreateUser(ctx, domain.UserCreateRequest{
		Username: "SpvToko",
		Password: "pass1234",
		Role:     domain.RoleSupervisor,
	})
	if err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	if user.Username != "spvtoko" || user.Role != domain.RoleSupervisor {
		t.Fatalf("unexpected user %+v", user)
	}

	saved := store.users["spvtoko"]
	if !strings.HasPrefix(saved.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", saved.Password)
	}

	resp, err := manager.Login(ctx, domain.LoginRequest{Username: "spvtoko", Password: "pass1234"})
	if err != nil {
		t.Fatalf("login with new supervisor failed: %v", err)
	}
	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "spvtoko" || actor.Role != domain.RoleSupervisor {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestCreateUserRejectsAdminRoleAndDuplicates(t *testing.T) {
	store := legacyAdminStore()
	ctx := context.Background()
	manager := NewAuthManager(ctx, "test-secret", time.Hour, "123456", store)

	if _, err := manager.CreateUser(ctx, domain.UserCreateRequest{Username: "boss1", Password: "pass1234", Role: domain.RoleAdmin}); err == nil {
		t.Fatalf("expected admin role to be rejected")
	}
	if _, err := manager.CreateUser(ctx, domain.UserCreateRequest{Username: "admin", Password: "pass1234", Role: domain.RoleCashier}); err == nil {
		t.Fatalf("expected duplicate username to be rejected")
	}
}

func TestManagerPINIsHashedAndStillValidates(t *testing.T) {
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, "654321", &userStoreStub{})

	if manager.managerPIN == "654321" {
		t.Fatalf("expected manager pin to be stored as hash, got plain-text")
	}
	if !manager.ValidateManagerPIN("654321") {
		t.Fatalf("expected manager pin validation to succeed")
	}
	if manager.ValidateManagerPIN("111111") {
		t.Fatalf("expected wrong manager pin to fail")
	}
}

func TestEmptyManagerPINDisablesOverride(t *testing.T) {
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, "", &userStoreStub{})
	if manager.ValidateManagerPIN("") || manager.ValidateManagerPIN("disabled") {
		t.Fatalf("expected overrides to be disabled without a configured pin")
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	ctx := context.Background()
	issuer := NewAuthManager(ctx, "secret-a", time.Hour, "", legacyAdminStore())
	verifier := NewAuthManager(ctx, "secret-b", time.Hour, "", legacyAdminStore())

	resp, err := issuer.Login(ctx, domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}
