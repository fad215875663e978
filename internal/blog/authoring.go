package blog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/lumiskin/internal/model"
	"github.com/hitoshi/lumiskin/internal/repository"
	"github.com/hitoshi/lumiskin/internal/security"
)

// PostInput は記事の作成・更新の入力値。
// Slugは作成時のみ有効で、空の場合はTitleから生成する。
type PostInput struct {
	Title      string
	Slug       string
	Excerpt    string
	Content    string // 未サニタイズのHTML
	CoverImage string
	AuthorID   *int64
	CategoryID *int64
}

// ImageProber はカバー画像URLの実在確認を行う。
type ImageProber interface {
	Probe(ctx context.Context, imageURL string) error
}

// AuthorService は管理画面からの記事執筆を提供する。
// 呼び出し元のロール検証はルーティング層で行う。
type AuthorService struct {
	posts      repository.PostRepository
	categories repository.CategoryRepository
	authors    repository.AuthorRepository
	sanitizer  security.ContentSanitizer
	prober     ImageProber
	now        func() time.Time
}

// NewAuthorService はAuthorServiceを生成する。proberがnilの場合は画像の実在確認を省略する。
func NewAuthorService(
	posts repository.PostRepository,
	categories repository.CategoryRepository,
	authors repository.AuthorRepository,
	sanitizer security.ContentSanitizer,
	prober ImageProber,
) *AuthorService {
	return &AuthorService{
		posts:      posts,
		categories: categories,
		authors:    authors,
		sanitizer:  sanitizer,
		prober:     prober,
		now:        time.Now,
	}
}

// GetPost は公開状態に関わらず記事を取得する。
func (s *AuthorService) GetPost(ctx context.Context, id int64) (*model.Post, error) {
	post, err := s.posts.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find post: %w", err)
	}
	if post == nil {
		return nil, model.NewPostNotFoundError()
	}
	return post, nil
}

// CreatePost は下書き記事を作成する。
func (s *AuthorService) CreatePost(ctx context.Context, in PostInput) (*model.Post, error) {
	// 1. スラッグの決定
	slug := strings.TrimSpace(in.Slug)
	if slug == "" {
		slug = Slugify(in.Title)
		if slug == "" {
			return nil, model.NewInvalidRequestError("タイトルからスラッグを生成できません。slugを指定してください。")
		}
	} else if !ValidSlug(slug) {
		return nil, model.NewInvalidRequestError("slugには小文字英数字とハイフンのみ使用できます。")
	}

	// 2. スラッグの重複確認（同時作成時の競合は保存時の一意制約で検出する）
	existing, err := s.posts.FindBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to check slug: %w", err)
	}
	if existing != nil {
		return nil, model.NewSlugConflictError(slug)
	}

	post := &model.Post{
		Slug:   slug,
		Status: model.PostStatusDraft,
	}

	// 3. 入力の検証と反映
	if err := s.apply(ctx, post, in); err != nil {
		return nil, err
	}

	// 4. 保存
	if err := s.posts.Create(ctx, post); err != nil {
		if errors.Is(err, repository.ErrDuplicateSlug) {
			return nil, model.NewSlugConflictError(slug)
		}
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	slog.Info("post created", slog.Int64("post_id", post.ID), slog.String("slug", post.Slug))
	return post, nil
}

// UpdatePost は記事の内容を更新する。スラッグは変更できない。
func (s *AuthorService) UpdatePost(ctx context.Context, id int64, in PostInput) (*model.Post, error) {
	post, err := s.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}

	if slug := strings.TrimSpace(in.Slug); slug != "" && slug != post.Slug {
		return nil, model.NewInvalidRequestError("slugは作成後に変更できません。")
	}

	if err := s.apply(ctx, post, in); err != nil {
		return nil, err
	}

	return s.save(ctx, post)
}

// PublishPost は記事を公開する。初回公開時のみPublishedAtを設定する。
func (s *AuthorService) PublishPost(ctx context.Context, id int64) (*model.Post, error) {
	post, err := s.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}

	post.Status = model.PostStatusPublished
	if post.PublishedAt == nil {
		now := s.now().UTC()
		post.PublishedAt = &now
	}

	return s.save(ctx, post)
}

// UnpublishPost は記事を下書きに戻す。PublishedAtは保持する。
func (s *AuthorService) UnpublishPost(ctx context.Context, id int64) (*model.Post, error) {
	post, err := s.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}

	post.Status = model.PostStatusDraft
	return s.save(ctx, post)
}

// DeletePost は記事を削除する。
func (s *AuthorService) DeletePost(ctx context.Context, id int64) error {
	if err := s.posts.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewPostNotFoundError()
		}
		return fmt.Errorf("failed to delete post: %w", err)
	}
	slog.Info("post deleted", slog.Int64("post_id", id))
	return nil
}

// apply は入力値を検証してpostに反映する。スラッグとステータスは変更しない。
func (s *AuthorService) apply(ctx context.Context, post *model.Post, in PostInput) error {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return model.NewInvalidRequestError("titleは必須です。")
	}

	coverImage := strings.TrimSpace(in.CoverImage)
	if coverImage != "" {
		if err := security.ValidatePublicURL(coverImage); err != nil {
			return model.NewInvalidRequestError("coverImageのURLが不正です。")
		}
		if s.prober != nil {
			if err := s.prober.Probe(ctx, coverImage); err != nil {
				slog.Warn("cover image probe failed",
					slog.String("url", coverImage),
					slog.String("error", err.Error()),
				)
				return model.NewInvalidRequestError("coverImageが画像として取得できません。")
			}
		}
	}

	if in.CategoryID != nil {
		category, err := s.categories.FindByID(ctx, *in.CategoryID)
		if err != nil {
			return fmt.Errorf("failed to find category: %w", err)
		}
		if category == nil {
			return model.NewCategoryNotFoundError()
		}
	}

	if in.AuthorID != nil {
		author, err := s.authors.FindByID(ctx, *in.AuthorID)
		if err != nil {
			return fmt.Errorf("failed to find author: %w", err)
		}
		if author == nil {
			return model.NewInvalidRequestError("指定された著者が見つかりません。")
		}
	}

	post.Title = title
	post.Excerpt = strings.TrimSpace(in.Excerpt)
	post.Content = s.sanitizer.Sanitize(in.Content)
	post.CoverImage = coverImage
	post.AuthorID = in.AuthorID
	post.CategoryID = in.CategoryID
	return nil
}

func (s *AuthorService) save(ctx context.Context, post *model.Post) (*model.Post, error) {
	if err := s.posts.Update(ctx, post); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewPostNotFoundError()
		}
		return nil, fmt.Errorf("failed to update post: %w", err)
	}
	return post, nil
}
