// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"

	"github.com/hitoshi/lumiskin/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストにIdentityを格納するためのキー。
var identityContextKey = contextKey("identity")

// IdentityFromContext はリクエストコンテキストからIdentityを取得する。
// アクセスミドルウェアを通過していないコンテキストでは未認証を返す。
func IdentityFromContext(ctx context.Context) model.Identity {
	identity, ok := ctx.Value(identityContextKey).(model.Identity)
	if !ok {
		return model.Anonymous()
	}
	return identity
}

// ContextWithIdentity はコンテキストにIdentityを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// UserIDFromContext はリクエストコンテキストから認証済みユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	identity := IdentityFromContext(ctx)
	if !identity.Authenticated || identity.UserID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return identity.UserID, nil
}
