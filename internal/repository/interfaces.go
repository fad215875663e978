// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/lumiskin/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// PostRepository はブログ記事の永続化インターフェース。
type PostRepository interface {
	// FindPublishedBySlug は公開済み記事を著者・カテゴリと結合して取得する。
	// 存在しない場合と下書きの場合はどちらもnilを返す。
	FindPublishedBySlug(ctx context.Context, slug string) (*model.PostWithRelations, error)

	// IncrementViewCount は閲覧数を原子的に1増やし、増加後の値を返す。
	IncrementViewCount(ctx context.Context, postID int64) (int64, error)

	// ListRelated は同一カテゴリの公開記事をpublished_at降順（NULLは末尾）で最大limit件返す。
	// excludeIDの記事は含まない。
	ListRelated(ctx context.Context, categoryID, excludeID int64, limit int) ([]model.Post, error)

	// ListPublished は公開記事一覧をpublished_at降順で返す。
	// categorySlugが空でない場合はそのカテゴリに絞り込む。
	ListPublished(ctx context.Context, categorySlug string, limit, offset int) ([]model.PostWithRelations, error)

	// FindByID は公開状態に関わらず記事を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Post, error)

	// FindBySlug は公開状態に関わらず記事を取得する。見つからない場合はnilを返す。
	FindBySlug(ctx context.Context, slug string) (*model.Post, error)

	// Create は記事を作成し、採番されたIDをpostに設定する。
	Create(ctx context.Context, post *model.Post) error

	// Update は記事を更新する。slugとview_countは更新しない。
	Update(ctx context.Context, post *model.Post) error

	// Delete は指定IDの記事を削除する。
	Delete(ctx context.Context, id int64) error

	// Stats は記事の集計値を返す。
	Stats(ctx context.Context) (*model.PostStats, error)
}

// CategoryRepository は記事カテゴリの永続化インターフェース。
type CategoryRepository interface {
	// List は全カテゴリを名前順で返す。
	List(ctx context.Context) ([]model.Category, error)
	// FindByID は指定IDのカテゴリを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Category, error)
}

// AuthorRepository は著者の永続化インターフェース。
type AuthorRepository interface {
	// FindByID は指定IDの著者を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Author, error)
}

// AnalyticsEventRepository はエンゲージメントイベントの永続化インターフェース。
// 追記のみを提供し、更新・削除は持たない。
type AnalyticsEventRepository interface {
	// Append はイベントを1件追記する。
	Append(ctx context.Context, event *model.AnalyticsEvent) error

	// CountByType はsince以降のイベント件数を種別ごとに返す。
	CountByType(ctx context.Context, since time.Time) ([]model.EventTypeCount, error)
}
