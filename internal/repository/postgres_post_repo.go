package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/lumiskin/internal/model"
)

// ErrNotFound は更新・削除対象の行が存在しないことを示す。
var ErrNotFound = errors.New("record not found")

// ErrDuplicateSlug はslugの一意制約違反を示す。
var ErrDuplicateSlug = errors.New("duplicate slug")

// pgUniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const pgUniqueViolation = "23505"

// PostgresPostRepo はPostgreSQLを使用したブログ記事リポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

const postColumns = `p.id, p.slug, p.title, p.excerpt, p.content, p.cover_image, p.status,
	p.view_count, p.author_id, p.category_id, p.published_at, p.created_at, p.updated_at`

// postWithRelationsQuery は記事に著者とカテゴリをLEFT JOINするSELECT句。
const postWithRelationsQuery = `SELECT ` + postColumns + `,
	a.id, a.name, a.slug, a.bio, a.avatar, a.social_links,
	c.id, c.name, c.slug, c.description
	FROM posts p
	LEFT JOIN authors a ON a.id = p.author_id
	LEFT JOIN categories c ON c.id = p.category_id`

// FindPublishedBySlug は公開済み記事を著者・カテゴリと結合して取得する。
// 存在しない場合と下書きの場合はどちらもnilを返す。
func (r *PostgresPostRepo) FindPublishedBySlug(ctx context.Context, slug string) (*model.PostWithRelations, error) {
	row := r.db.QueryRowContext(ctx,
		postWithRelationsQuery+` WHERE p.slug = $1 AND p.status = 'published'`,
		slug,
	)

	post, err := scanPostWithRelations(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find published post: %w", err)
	}
	return post, nil
}

// IncrementViewCount は閲覧数を原子的に1増やし、増加後の値を返す。
// 単一のUPDATE文で加算するため、同時アクセスでも加算は失われない。
func (r *PostgresPostRepo) IncrementViewCount(ctx context.Context, postID int64) (int64, error) {
	var viewCount int64
	err := r.db.QueryRowContext(ctx,
		`UPDATE posts SET view_count = view_count + 1 WHERE id = $1 RETURNING view_count`,
		postID,
	).Scan(&viewCount)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment view count: %w", err)
	}
	return viewCount, nil
}

// ListRelated は同一カテゴリの公開記事をpublished_at降順（NULLは末尾）で最大limit件返す。
// 同時刻の記事はID降順で並べる。
func (r *PostgresPostRepo) ListRelated(ctx context.Context, categoryID, excludeID int64, limit int) ([]model.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postColumns+`
		 FROM posts p
		 WHERE p.category_id = $1 AND p.id <> $2 AND p.status = 'published'
		 ORDER BY p.published_at DESC NULLS LAST, p.id DESC
		 LIMIT $3`,
		categoryID, excludeID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list related posts: %w", err)
	}
	defer rows.Close()

	posts := []model.Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan related post: %w", err)
		}
		posts = append(posts, *post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate related posts: %w", err)
	}
	return posts, nil
}

// ListPublished は公開記事一覧をpublished_at降順で返す。
// categorySlugが空でない場合はそのカテゴリに絞り込む。
func (r *PostgresPostRepo) ListPublished(ctx context.Context, categorySlug string, limit, offset int) ([]model.PostWithRelations, error) {
	rows, err := r.db.QueryContext(ctx,
		postWithRelationsQuery+`
		 WHERE p.status = 'published' AND ($1 = '' OR c.slug = $1)
		 ORDER BY p.published_at DESC NULLS LAST, p.id DESC
		 LIMIT $2 OFFSET $3`,
		categorySlug, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list published posts: %w", err)
	}
	defer rows.Close()

	posts := []model.PostWithRelations{}
	for rows.Next() {
		post, err := scanPostWithRelations(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan published post: %w", err)
		}
		posts = append(posts, *post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate published posts: %w", err)
	}
	return posts, nil
}

// FindByID は公開状態に関わらず記事を取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindByID(ctx context.Context, id int64) (*model.Post, error) {
	post, err := scanPost(r.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts p WHERE p.id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find post by ID: %w", err)
	}
	return post, nil
}

// FindBySlug は公開状態に関わらず記事を取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindBySlug(ctx context.Context, slug string) (*model.Post, error) {
	post, err := scanPost(r.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts p WHERE p.slug = $1`,
		slug,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find post by slug: %w", err)
	}
	return post, nil
}

// Create は記事を作成し、採番されたIDと作成日時をpostに設定する。
// slugが重複する場合はErrDuplicateSlugを返す。
func (r *PostgresPostRepo) Create(ctx context.Context, post *model.Post) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO posts (slug, title, excerpt, content, cover_image, status, author_id, category_id, published_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, view_count, created_at, updated_at`,
		post.Slug, post.Title, post.Excerpt, post.Content, post.CoverImage, string(post.Status),
		post.AuthorID, post.CategoryID, post.PublishedAt,
	).Scan(&post.ID, &post.ViewCount, &post.CreatedAt, &post.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateSlug
	}
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

// Update は記事を更新する。slugとview_countは更新しない。
// 対象が存在しない場合はErrNotFoundを返す。
func (r *PostgresPostRepo) Update(ctx context.Context, post *model.Post) error {
	err := r.db.QueryRowContext(ctx,
		`UPDATE posts
		 SET title = $2, excerpt = $3, content = $4, cover_image = $5, status = $6,
		     author_id = $7, category_id = $8, published_at = $9, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		post.ID, post.Title, post.Excerpt, post.Content, post.CoverImage, string(post.Status),
		post.AuthorID, post.CategoryID, post.PublishedAt,
	).Scan(&post.UpdatedAt)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}
	return nil
}

// Delete は指定IDの記事を削除する。対象が存在しない場合はErrNotFoundを返す。
func (r *PostgresPostRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats は記事の集計値を返す。
func (r *PostgresPostRepo) Stats(ctx context.Context) (*model.PostStats, error) {
	stats := &model.PostStats{}
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = 'published'),
		        COUNT(*) FILTER (WHERE status = 'draft'),
		        COALESCE(SUM(view_count), 0)
		 FROM posts`,
	).Scan(&stats.Total, &stats.Published, &stats.Drafts, &stats.TotalViews)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate post stats: %w", err)
	}
	return stats, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanPost は記事列のみの行をPostに変換する。
func scanPost(s rowScanner) (*model.Post, error) {
	post := &model.Post{}
	var (
		status      string
		authorID    sql.NullInt64
		categoryID  sql.NullInt64
		publishedAt sql.NullTime
	)
	if err := s.Scan(
		&post.ID, &post.Slug, &post.Title, &post.Excerpt, &post.Content, &post.CoverImage, &status,
		&post.ViewCount, &authorID, &categoryID, &publishedAt, &post.CreatedAt, &post.UpdatedAt,
	); err != nil {
		return nil, err
	}

	post.Status = model.PostStatus(status)
	if authorID.Valid {
		post.AuthorID = &authorID.Int64
	}
	if categoryID.Valid {
		post.CategoryID = &categoryID.Int64
	}
	if publishedAt.Valid {
		post.PublishedAt = &publishedAt.Time
	}
	return post, nil
}

// scanPostWithRelations はLEFT JOIN結果の行をPostWithRelationsに変換する。
// 著者・カテゴリが存在しない場合は対応するフィールドをnilにする。
func scanPostWithRelations(s rowScanner) (*model.PostWithRelations, error) {
	var (
		post        model.PostWithRelations
		status      string
		authorID    sql.NullInt64
		categoryID  sql.NullInt64
		publishedAt sql.NullTime

		aID                         sql.NullInt64
		aName, aSlug, aBio, aAvatar sql.NullString
		aSocial                     []byte
		cID                         sql.NullInt64
		cName, cSlug, cDescription  sql.NullString
	)
	if err := s.Scan(
		&post.ID, &post.Slug, &post.Title, &post.Excerpt, &post.Content, &post.CoverImage, &status,
		&post.ViewCount, &authorID, &categoryID, &publishedAt, &post.CreatedAt, &post.UpdatedAt,
		&aID, &aName, &aSlug, &aBio, &aAvatar, &aSocial,
		&cID, &cName, &cSlug, &cDescription,
	); err != nil {
		return nil, err
	}

	post.Status = model.PostStatus(status)
	if authorID.Valid {
		post.AuthorID = &authorID.Int64
	}
	if categoryID.Valid {
		post.CategoryID = &categoryID.Int64
	}
	if publishedAt.Valid {
		post.PublishedAt = &publishedAt.Time
	}

	if aID.Valid {
		author := &model.Author{
			ID:     aID.Int64,
			Name:   aName.String,
			Slug:   aSlug.String,
			Bio:    aBio.String,
			Avatar: aAvatar.String,
		}
		if err := decodeSocialLinks(aSocial, &author.SocialLinks); err != nil {
			return nil, err
		}
		post.Author = author
	}

	if cID.Valid {
		post.Category = &model.Category{
			ID:          cID.Int64,
			Name:        cName.String,
			Slug:        cSlug.String,
			Description: cDescription.String,
		}
	}

	return &post, nil
}

// decodeSocialLinks はJSONBのsocial_links列をSocialLinksに変換する。
// 空の値は全フィールド未設定として扱う。
func decodeSocialLinks(raw []byte, dst *model.SocialLinks) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to decode social links: %w", err)
	}
	return nil
}

// isUniqueViolation はエラーがPostgreSQLの一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
