// Package model はドメインモデルを定義する。
package model

import "time"

// PostStatus は記事の公開状態を表す。
type PostStatus string

const (
	// PostStatusDraft は下書き状態。公開ルートからは参照できない。
	PostStatusDraft PostStatus = "draft"
	// PostStatusPublished は公開状態。
	PostStatusPublished PostStatus = "published"
)

// Post はブログ記事を表す。
// Slugは一意かつ作成後に変更しない。ViewCountは単調非減少。
type Post struct {
	ID          int64
	Slug        string
	Title       string
	Excerpt     string
	Content     string // サニタイズ済みHTML
	CoverImage  string
	Status      PostStatus
	ViewCount   int64
	AuthorID    *int64
	CategoryID  *int64
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsPublished は記事が公開状態かどうかを返す。
func (p *Post) IsPublished() bool {
	return p.Status == PostStatusPublished
}

// SocialLinks は著者のSNSリンクを表す。全フィールド任意。
type SocialLinks struct {
	Twitter   *string `json:"twitter,omitempty"`
	Instagram *string `json:"instagram,omitempty"`
	Website   *string `json:"website,omitempty"`
}

// Author は記事の著者を表す。
type Author struct {
	ID          int64
	Name        string
	Slug        string
	Bio         string
	Avatar      string
	SocialLinks SocialLinks
}

// Category は記事カテゴリを表す。
type Category struct {
	ID          int64
	Name        string
	Slug        string
	Description string
}

// PostWithRelations は記事と著者・カテゴリを結合したモデル。
// authors、categoriesテーブルとLEFT JOINして取得される。
type PostWithRelations struct {
	Post
	Author   *Author
	Category *Category
}

// PostDetail は公開記事の詳細と関連記事を表す。
type PostDetail struct {
	PostWithRelations
	RelatedPosts []Post
}

// PostStats は管理ダッシュボード用の記事集計値を表す。
type PostStats struct {
	Total      int64
	Published  int64
	Drafts     int64
	TotalViews int64
}
