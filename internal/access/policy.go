// Package access はリクエストパスの保護レベル判定とアクセス可否の決定を提供する。
// 判定は純粋関数で、ストアへのアクセスを行わない。
package access

import (
	"net/url"
	"strings"

	"github.com/hitoshi/lumiskin/internal/model"
)

// Tier はパスの保護レベルを表す。
type Tier int

const (
	// TierPublic は誰でもアクセスできるパス。
	TierPublic Tier = iota
	// TierAuthenticated はログインが必要なパス。
	TierAuthenticated
	// TierAdmin は管理者・編集者ロールが必要なパス。
	TierAdmin
)

// String はTierの名前を返す。
func (t Tier) String() string {
	switch t {
	case TierAuthenticated:
		return "authenticated"
	case TierAdmin:
		return "admin"
	default:
		return "public"
	}
}

// Action はアクセス判定の結果種別を表す。
type Action int

const (
	// ActionAllow はリクエストを後続の処理へ通す。
	ActionAllow Action = iota
	// ActionRedirect はTargetへリダイレクトする。
	ActionRedirect
)

// Decision はアクセス判定の結果を表す。
// ActionがActionRedirectの場合のみTargetが設定される。
type Decision struct {
	Action Action
	Target string
}

// Config はアクセスポリシーの設定を保持する。
type Config struct {
	AdminPrefix        string   // 管理画面のパス接頭辞
	AuthenticatedPaths []string // ログインが必要なパス
	LoginPath          string   // 未認証時のリダイレクト先
	HomePath           string   // 権限不足時のリダイレクト先
	ReturnParam        string   // ログイン後の戻り先を渡すクエリパラメータ名
}

// DefaultConfig はストアフロントの標準設定を返す。
func DefaultConfig() Config {
	return Config{
		AdminPrefix:        "/admin",
		AuthenticatedPaths: []string{"/checkout", "/orders", "/wishlist"},
		LoginPath:          "/login",
		HomePath:           "/",
		ReturnParam:        "redirect",
	}
}

// Policy はパスとIdentityからアクセス可否を決定する。
type Policy struct {
	config Config
}

// NewPolicy はPolicyを生成する。
// パス末尾のスラッシュは正規化して保持する。
func NewPolicy(config Config) *Policy {
	config.AdminPrefix = trimTrailingSlash(config.AdminPrefix)
	paths := make([]string, 0, len(config.AuthenticatedPaths))
	for _, p := range config.AuthenticatedPaths {
		if p = trimTrailingSlash(strings.TrimSpace(p)); p != "" {
			paths = append(paths, p)
		}
	}
	config.AuthenticatedPaths = paths
	return &Policy{config: config}
}

// Classify はパスの保護レベルを返す。
// 接頭辞はパスセグメント単位で照合するため、/administrator は管理パスに含まれない。
func (p *Policy) Classify(path string) Tier {
	if p.config.AdminPrefix != "" && underPrefix(path, p.config.AdminPrefix) {
		return TierAdmin
	}
	for _, protected := range p.config.AuthenticatedPaths {
		if underPrefix(path, protected) {
			return TierAuthenticated
		}
	}
	return TierPublic
}

// Decide はパスとIdentityからアクセス可否を決定する。
func (p *Policy) Decide(path string, identity model.Identity) Decision {
	switch p.Classify(path) {
	case TierAdmin:
		// 1. 未認証はログインへ（戻り先を付与）
		if !identity.Authenticated {
			return redirect(p.loginWithReturn(path))
		}
		// 2. 権限不足はトップへ
		if !identity.Role.CanAccessAdmin() {
			return redirect(p.config.HomePath)
		}
	case TierAuthenticated:
		// 戻り先は付与しない
		if !identity.Authenticated {
			return redirect(p.config.LoginPath)
		}
	}
	return Decision{Action: ActionAllow}
}

// loginWithReturn は戻り先パスをパーセントエンコードしたログインURLを返す。
// 空白は decodeURIComponent で復元できるよう "+" ではなく "%20" にする。
func (p *Policy) loginWithReturn(path string) string {
	if p.config.ReturnParam == "" {
		return p.config.LoginPath
	}
	return p.config.LoginPath + "?" + p.config.ReturnParam + "=" + encodeReturnPath(path)
}

// encodeReturnPath はQueryEscapeの結果の "+" を "%20" に置き換える。
// 元の "+" は QueryEscape により "%2B" になっているため衝突しない。
func encodeReturnPath(path string) string {
	return strings.ReplaceAll(url.QueryEscape(path), "+", "%20")
}

func redirect(target string) Decision {
	return Decision{Action: ActionRedirect, Target: target}
}

// underPrefix はpathがprefixと一致するか、その配下にあるかを返す。
func underPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}

func trimTrailingSlash(p string) string {
	if len(p) > 1 {
		return strings.TrimRight(p, "/")
	}
	return p
}
