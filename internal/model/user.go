// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// Role はユーザーの権限ロールを表す。
// admin, editor, user の閉じた列挙で、未認証リクエストは RoleNone を持つ。
type Role string

const (
	// RoleNone は未認証リクエストのロール。
	RoleNone Role = ""
	// RoleAdmin は全管理機能を利用できるロール。
	RoleAdmin Role = "admin"
	// RoleEditor は記事の執筆・公開ができるロール。
	RoleEditor Role = "editor"
	// RoleUser は一般ユーザーのロール。
	RoleUser Role = "user"
)

// ParseRole は文字列をRoleに変換する。
// 未知の値はエラーを返す。
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleEditor, RoleUser:
		return Role(s), nil
	default:
		return RoleNone, fmt.Errorf("unknown role: %q", s)
	}
}

// CanAccessAdmin は管理画面へのアクセスが許可されたロールかどうかを返す。
func (r Role) CanAccessAdmin() bool {
	return r == RoleAdmin || r == RoleEditor
}

// User はサービス利用ユーザーを表す。
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Identity は1リクエスト分の認証・認可コンテキストを表す。
// リクエストごとに生成され、永続化されない。
type Identity struct {
	UserID        string
	Role          Role
	Authenticated bool
}

// Anonymous は未認証のIdentityを返す。
func Anonymous() Identity {
	return Identity{Role: RoleNone}
}

// Authenticated は認証済みのIdentityを返す。
func Authenticated(userID string, role Role) Identity {
	return Identity{UserID: userID, Role: role, Authenticated: true}
}

// HasRole はIdentityが認証済みかつ指定ロールのいずれかを持つかを返す。
func (id Identity) HasRole(roles ...Role) bool {
	if !id.Authenticated {
		return false
	}
	for _, r := range roles {
		if id.Role == r {
			return true
		}
	}
	return false
}
