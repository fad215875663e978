package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/lumiskin/internal/model"
	"github.com/hitoshi/lumiskin/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn    func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn func(ctx context.Context, email string) (*model.User, error)
	createFn      func(ctx context.Context, user *model.User) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

type mockSessionRepo struct {
	createFn         func(ctx context.Context, session *model.Session) error
	findByIDFn       func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn     func(ctx context.Context, id string) error
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if m.deleteByUserIDFn != nil {
		return m.deleteByUserIDFn(ctx, userID)
	}
	return nil
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)

func hashForTest(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	return string(hash)
}

// --- テスト ---

func TestLogin_ValidCredentials_CreatesSessionAndToken(t *testing.T) {
	ctx := context.Background()
	hash := hashForTest(t, "correct-password")

	var createdSession *model.Session
	userRepo := &mockUserRepo{
		findByEmailFn: func(_ context.Context, email string) (*model.User, error) {
			if email != "editor@example.com" {
				t.Errorf("FindByEmail called with %q, want trimmed email", email)
			}
			return &model.User{ID: "user-1", Email: email, PasswordHash: hash, Role: model.RoleEditor}, nil
		},
	}
	sessionRepo := &mockSessionRepo{
		createFn: func(_ context.Context, session *model.Session) error {
			createdSession = session
			return nil
		},
	}
	tokens := NewTokenIssuer("test-secret")
	svc := NewService(userRepo, sessionRepo, tokens, ServiceConfig{SessionMaxAge: 3600})

	result, err := svc.Login(ctx, "  editor@example.com ", "correct-password")
	if err != nil {
		t.Fatalf("Login returned unexpected error: %v", err)
	}

	if createdSession == nil {
		t.Fatal("expected session to be created")
	}
	if createdSession.UserID != "user-1" {
		t.Errorf("session.UserID = %q, want %q", createdSession.UserID, "user-1")
	}
	if len(createdSession.ID) != 64 {
		t.Errorf("session.ID length = %d, want 64", len(createdSession.ID))
	}
	if d := time.Until(createdSession.ExpiresAt); d < 59*time.Minute || d > time.Hour {
		t.Errorf("session expires in %v, want about 1h", d)
	}

	sid, err := tokens.Parse(result.Token)
	if err != nil {
		t.Fatalf("Parse(token) returned error: %v", err)
	}
	if sid != createdSession.ID {
		t.Errorf("token sid = %q, want %q", sid, createdSession.ID)
	}
}

func TestLogin_WrongPassword_ReturnsInvalidCredentials(t *testing.T) {
	hash := hashForTest(t, "correct-password")
	userRepo := &mockUserRepo{
		findByEmailFn: func(_ context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1", Email: email, PasswordHash: hash, Role: model.RoleUser}, nil
		},
	}
	sessionRepo := &mockSessionRepo{
		createFn: func(_ context.Context, _ *model.Session) error {
			t.Error("session must not be created on failed login")
			return nil
		},
	}
	svc := NewService(userRepo, sessionRepo, NewTokenIssuer("s"), ServiceConfig{SessionMaxAge: 3600})

	_, err := svc.Login(context.Background(), "user@example.com", "wrong")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidCredentials)
}

func TestLogin_UnknownUser_ReturnsInvalidCredentials(t *testing.T) {
	svc := NewService(&mockUserRepo{}, &mockSessionRepo{}, NewTokenIssuer("s"), ServiceConfig{SessionMaxAge: 3600})

	_, err := svc.Login(context.Background(), "nobody@example.com", "whatever")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidCredentials)
}

func TestLogin_RepoError_IsWrapped(t *testing.T) {
	dbErr := errors.New("connection refused")
	userRepo := &mockUserRepo{
		findByEmailFn: func(_ context.Context, _ string) (*model.User, error) {
			return nil, dbErr
		},
	}
	svc := NewService(userRepo, &mockSessionRepo{}, NewTokenIssuer("s"), ServiceConfig{SessionMaxAge: 3600})

	_, err := svc.Login(context.Background(), "a@example.com", "pw")
	if !errors.Is(err, dbErr) {
		t.Errorf("Login error = %v, want wrapped %v", err, dbErr)
	}
}

func TestCreateUser_HashesPassword(t *testing.T) {
	var created *model.User
	userRepo := &mockUserRepo{
		createFn: func(_ context.Context, user *model.User) error {
			created = user
			return nil
		},
	}
	svc := NewService(userRepo, &mockSessionRepo{}, NewTokenIssuer("s"), ServiceConfig{})

	user, err := svc.CreateUser(context.Background(), "admin@example.com", "管理者", "long-enough", model.RoleAdmin)
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	if created == nil || created.ID != user.ID {
		t.Fatal("expected user to be persisted")
	}
	if created.PasswordHash == "long-enough" {
		t.Error("password must not be stored in plain text")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("long-enough")); err != nil {
		t.Errorf("stored hash does not match password: %v", err)
	}
}

func TestCreateUser_RejectsInvalidInput(t *testing.T) {
	userRepo := &mockUserRepo{
		findByEmailFn: func(_ context.Context, email string) (*model.User, error) {
			if email == "taken@example.com" {
				return &model.User{ID: "u"}, nil
			}
			return nil, nil
		},
	}
	svc := NewService(userRepo, &mockSessionRepo{}, NewTokenIssuer("s"), ServiceConfig{})

	tests := []struct {
		name     string
		email    string
		password string
		role     model.Role
	}{
		{name: "不明なロール", email: "a@example.com", password: "long-enough", role: "owner"},
		{name: "短いパスワード", email: "a@example.com", password: "short", role: model.RoleUser},
		{name: "登録済みメール", email: "taken@example.com", password: "long-enough", role: model.RoleUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateUser(context.Background(), tt.email, "n", tt.password, tt.role)
			assertAPIErrorCode(t, err, model.ErrCodeInvalidRequest)
		})
	}
}

func TestLogout_DeletesSession(t *testing.T) {
	var deletedID string
	sessionRepo := &mockSessionRepo{
		deleteByIDFn: func(_ context.Context, id string) error {
			deletedID = id
			return nil
		},
	}
	svc := NewService(&mockUserRepo{}, sessionRepo, NewTokenIssuer("s"), ServiceConfig{})

	if err := svc.Logout(context.Background(), "session-123"); err != nil {
		t.Fatalf("Logout returned unexpected error: %v", err)
	}
	if deletedID != "session-123" {
		t.Errorf("deleted session ID = %q, want %q", deletedID, "session-123")
	}
}

func TestLogout_EmptySessionID_ReturnsError(t *testing.T) {
	svc := NewService(&mockUserRepo{}, &mockSessionRepo{}, NewTokenIssuer("s"), ServiceConfig{})

	if err := svc.Logout(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty session ID")
	}
}

func TestLogoutAll_DeletesUserSessions(t *testing.T) {
	var deletedUser string
	sessionRepo := &mockSessionRepo{
		deleteByUserIDFn: func(_ context.Context, userID string) error {
			deletedUser = userID
			return nil
		},
	}
	svc := NewService(&mockUserRepo{}, sessionRepo, NewTokenIssuer("s"), ServiceConfig{})

	if err := svc.LogoutAll(context.Background(), "user-1"); err != nil {
		t.Fatalf("LogoutAll returned unexpected error: %v", err)
	}
	if deletedUser != "user-1" {
		t.Errorf("deleted user = %q, want user-1", deletedUser)
	}
}

func TestLogoutAll_EmptyUserID_ReturnsUnauthorized(t *testing.T) {
	sessionRepo := &mockSessionRepo{
		deleteByUserIDFn: func(_ context.Context, userID string) error {
			t.Error("DeleteByUserID should not be called without a user")
			return nil
		},
	}
	svc := NewService(&mockUserRepo{}, sessionRepo, NewTokenIssuer("s"), ServiceConfig{})

	err := svc.LogoutAll(context.Background(), "")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUnauthorized {
		t.Fatalf("err = %v, want UNAUTHORIZED", err)
	}
}

func TestGetCurrentUser(t *testing.T) {
	userRepo := &mockUserRepo{
		findByIDFn: func(_ context.Context, id string) (*model.User, error) {
			if id == "user-1" {
				return &model.User{ID: "user-1", Role: model.RoleAdmin}, nil
			}
			return nil, nil
		},
	}
	svc := NewService(userRepo, &mockSessionRepo{}, NewTokenIssuer("s"), ServiceConfig{})

	user, err := svc.GetCurrentUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetCurrentUser returned error: %v", err)
	}
	if user.Role != model.RoleAdmin {
		t.Errorf("Role = %q, want admin", user.Role)
	}

	_, err = svc.GetCurrentUser(context.Background(), "missing")
	assertAPIErrorCode(t, err, model.ErrCodeUnauthorized)

	_, err = svc.GetCurrentUser(context.Background(), "")
	assertAPIErrorCode(t, err, model.ErrCodeUnauthorized)
}

func TestGenerateSessionID_IsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := generateSessionID()
		if err != nil {
			t.Fatalf("generateSessionID returned error: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate session ID: %s", id)
		}
		seen[id] = true
	}
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *model.APIError with code %s", err, code)
	}
	if apiErr.Code != code {
		t.Errorf("error code = %q, want %q", apiErr.Code, code)
	}
}
