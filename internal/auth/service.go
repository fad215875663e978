// Package auth はログイン、セッション管理、リクエストのIdentity判定を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/lumiskin/internal/model"
	"github.com/hitoshi/lumiskin/internal/repository"
)

// dummyPasswordHash は存在しないユーザーへのログイン試行でも
// bcrypt比較を行うためのハッシュ。
var dummyPasswordHash, _ = bcrypt.GenerateFromPassword([]byte("lumiskin-dummy-password"), bcrypt.DefaultCost)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// LoginResult はログイン成功時の結果を表す。
type LoginResult struct {
	User    *model.User
	Session *model.Session
	Token   string // Cookieを使わないクライアント向けのBearerトークン
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	tokens      *TokenIssuer
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	tokens *TokenIssuer,
	config ServiceConfig,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		tokens:      tokens,
		config:      config,
	}
}

// Login はメールアドレスとパスワードを検証し、セッションを発行する。
// ユーザーが存在しない場合とパスワード不一致の場合は同じエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	// 1. ユーザーを検索
	user, err := s.userRepo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	// 2. パスワードを検証
	if user == nil {
		_ = bcrypt.CompareHashAndPassword(dummyPasswordHash, []byte(password))
		return nil, model.NewInvalidCredentialsError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		slog.Warn("login failed", slog.String("user_id", user.ID))
		return nil, model.NewInvalidCredentialsError()
	}

	// 3. セッションを発行
	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	// 4. Bearerトークンを発行
	token, err := s.tokens.Issue(session)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)

	return &LoginResult{User: user, Session: session, Token: token}, nil
}

// CreateUser はパスワードをハッシュ化してユーザーを作成する。
func (s *Service) CreateUser(ctx context.Context, email, name, password string, role model.Role) (*model.User, error) {
	if _, err := model.ParseRole(string(role)); err != nil {
		return nil, model.NewInvalidRequestError("ロールが不正です。")
	}
	if len(password) < 8 {
		return nil, model.NewInvalidRequestError("パスワードは8文字以上で指定してください。")
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if existing != nil {
		return nil, model.NewInvalidRequestError("メールアドレスは既に登録されています。")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user created",
		slog.String("user_id", user.ID),
		slog.String("role", string(role)),
	)
	return user, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out")
	return nil
}

// LogoutAll は指定ユーザーの全セッションを破棄する。
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	if userID == "" {
		return model.NewUnauthorizedError()
	}

	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}

	slog.Info("user logged out from all sessions", slog.String("user_id", userID))
	return nil
}

// GetCurrentUser はユーザーIDから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, model.NewUnauthorizedError()
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUnauthorizedError()
	}

	return user, nil
}

// SessionIDFromToken はBearerトークンが参照するセッションIDを返す。
func (s *Service) SessionIDFromToken(token string) (string, error) {
	sessionID, err := s.tokens.Parse(token)
	if errors.Is(err, ErrInvalidToken) {
		return "", model.NewUnauthorizedError()
	}
	return sessionID, err
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
