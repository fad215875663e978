package middleware

import (
	"net/http"

	"github.com/unrolled/secure"
)

// SecurityHeadersConfig はセキュリティヘッダーミドルウェアの設定を保持する。
type SecurityHeadersConfig struct {
	// HSTSSeconds が正の場合、HTTPS接続に対してStrict-Transport-Securityを付与する。
	HSTSSeconds int64
}

// NewSecurityHeadersMiddleware はセキュリティ関連のHTTPレスポンスヘッダーを付与するミドルウェアを返す。
func NewSecurityHeadersMiddleware(cfg SecurityHeadersConfig) func(next http.Handler) http.Handler {
	sm := secure.New(secure.Options{
		FrameDeny:            true,
		ContentTypeNosniff:   true,
		ReferrerPolicy:       "strict-origin-when-cross-origin",
		PermissionsPolicy:    "camera=(), microphone=(), geolocation=()",
		STSSeconds:           cfg.HSTSSeconds,
		STSIncludeSubdomains: cfg.HSTSSeconds > 0,
		SSLProxyHeaders:      map[string]string{"X-Forwarded-Proto": "https"},
	})
	return sm.Handler
}
