package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/lumiskin/internal/model"
)

// SessionCookieName はセッションIDを保持するCookie名。
const SessionCookieName = "session_id"

// SessionFinder はセッションを検索するインターフェース。
// 期限切れのセッションはnilとして返す。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// UserFinder はユーザーを検索するインターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// TokenParser はBearerトークンからセッションIDを取り出すインターフェース。
type TokenParser interface {
	Parse(token string) (string, error)
}

// Resolver はリクエストから認証済みIdentityを判定する。
// 判定に失敗した場合は常に未認証として扱い、エラーは呼び出し元に返さない。
type Resolver struct {
	sessions SessionFinder
	users    UserFinder
	tokens   TokenParser
	logger   *slog.Logger
}

// NewResolver はResolverを生成する。tokensがnilの場合はBearerトークンを受け付けない。
func NewResolver(sessions SessionFinder, users UserFinder, tokens TokenParser, logger *slog.Logger) *Resolver {
	return &Resolver{
		sessions: sessions,
		users:    users,
		tokens:   tokens,
		logger:   logger,
	}
}

// Resolve はリクエストのIdentityを返す。
// 同一リクエストに対して繰り返し呼んでも毎回ストアを参照する。
func (r *Resolver) Resolve(req *http.Request) model.Identity {
	ctx := req.Context()

	// 1. CookieまたはBearerトークンからセッションIDを取り出す
	sessionID, ok := r.sessionIDFromRequest(req)
	if !ok {
		return model.Anonymous()
	}

	// 2. セッションを検索
	session, err := r.sessions.FindByID(ctx, sessionID)
	if err != nil {
		r.logger.Error("session lookup failed", slog.String("error", err.Error()))
		return model.Anonymous()
	}
	if session == nil {
		return model.Anonymous()
	}

	// 3. セッションのユーザーを検索
	user, err := r.users.FindByID(ctx, session.UserID)
	if err != nil {
		r.logger.Error("user lookup failed",
			slog.String("user_id", session.UserID),
			slog.String("error", err.Error()),
		)
		return model.Anonymous()
	}
	if user == nil {
		r.logger.Warn("session references missing user", slog.String("user_id", session.UserID))
		return model.Anonymous()
	}

	// 4. ロールを検証（未知のロールは未認証として扱う）
	role, err := model.ParseRole(string(user.Role))
	if err != nil {
		r.logger.Warn("user has unknown role",
			slog.String("user_id", user.ID),
			slog.String("role", string(user.Role)),
		)
		return model.Anonymous()
	}

	return model.Authenticated(user.ID, role)
}

// sessionIDFromRequest はCookieを優先してセッションIDを取り出す。
func (r *Resolver) sessionIDFromRequest(req *http.Request) (string, bool) {
	if cookie, err := req.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}

	if r.tokens == nil {
		return "", false
	}
	token, ok := bearerToken(req)
	if !ok {
		return "", false
	}
	sessionID, err := r.tokens.Parse(token)
	if err != nil {
		r.logger.Warn("rejected bearer token", slog.String("error", err.Error()))
		return "", false
	}
	return sessionID, true
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func bearerToken(req *http.Request) (string, bool) {
	header := req.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
