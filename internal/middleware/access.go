package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/lumiskin/internal/access"
	"github.com/hitoshi/lumiskin/internal/model"
)

// IdentityResolver はリクエストのIdentityを判定するインターフェース。
type IdentityResolver interface {
	Resolve(r *http.Request) model.Identity
}

// AccessDecider はパスとIdentityからアクセス可否を決定するインターフェース。
type AccessDecider interface {
	Decide(path string, identity model.Identity) access.Decision
}

// NewAccessMiddleware はリクエストごとにIdentityを判定し、アクセスポリシーを適用するミドルウェアを返す。
// リダイレクトと判定された場合は302を返し、後続のハンドラーは呼び出さない。
// 許可された場合はIdentityをリクエストコンテキストに注入する。
func NewAccessMiddleware(resolver IdentityResolver, policy AccessDecider) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Identityを判定
			identity := resolver.Resolve(r)
			recordUserID(r.Context(), identity)

			// 2. アクセスポリシーを適用
			decision := policy.Decide(r.URL.Path, identity)
			if decision.Action == access.ActionRedirect {
				slog.Info("access redirected",
					slog.String("path", r.URL.Path),
					slog.String("target", decision.Target),
					slog.Bool("authenticated", identity.Authenticated),
				)
				http.Redirect(w, r, decision.Target, http.StatusFound)
				return
			}

			// 3. Identityをコンテキストに注入
			ctx := ContextWithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRoles は指定ロールのいずれかを要求するAPI用ミドルウェアを返す。
// 未認証は401、ロール不足は403をJSONで返す。リダイレクトは行わない。
func RequireRoles(roles ...model.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := IdentityFromContext(r.Context())
			if !identity.Authenticated {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if !identity.HasRole(roles...) {
				slog.Warn("insufficient role",
					slog.String("user_id", identity.UserID),
					slog.String("role", string(identity.Role)),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
