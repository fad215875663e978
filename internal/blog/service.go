// Package blog は公開記事の参照と、管理画面からの記事執筆を提供する。
package blog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/hitoshi/lumiskin/internal/model"
	"github.com/hitoshi/lumiskin/internal/repository"
)

// MaxRelatedPosts は記事詳細に含める関連記事の上限。
const MaxRelatedPosts = 4

// 一覧のページングの既定値と上限。
const (
	DefaultPerPage = 12
	MaxPerPage     = 50
	MaxPage        = 1000
)

// NormalizePage はページ番号を1以上MaxPage以下に丸める。
func NormalizePage(page int) int {
	if page < 1 {
		return 1
	}
	if page > MaxPage {
		return MaxPage
	}
	return page
}

// ViewMetrics は閲覧数の加算結果を記録する。
type ViewMetrics interface {
	RecordPostView()
	RecordViewIncrementFailure()
}

type nopViewMetrics struct{}

func (nopViewMetrics) RecordPostView() {}
func (nopViewMetrics) RecordViewIncrementFailure() {}

// Service は公開記事の参照を提供する。
type Service struct {
	posts      repository.PostRepository
	categories repository.CategoryRepository
	metrics    ViewMetrics
	logger     *slog.Logger
}

// NewService はServiceを生成する。metricsがnilの場合は記録しない。
func NewService(
	posts repository.PostRepository,
	categories repository.CategoryRepository,
	metrics ViewMetrics,
	logger *slog.Logger,
) *Service {
	if metrics == nil {
		metrics = nopViewMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		posts:      posts,
		categories: categories,
		metrics:    metrics,
		logger:     logger,
	}
}

// ResolveBySlug は公開記事を取得し、閲覧数を1加算して関連記事とともに返す。
// 呼び出すたびに閲覧数が増えるため冪等ではない。
// 存在しない記事と下書き記事はどちらもPOST_NOT_FOUNDになる。
func (s *Service) ResolveBySlug(ctx context.Context, slug string) (*model.PostDetail, error) {
	// 1. スラッグの検証（ストレージには触れない）
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, model.NewMissingSlugError()
	}

	// 2. 公開記事の取得
	post, err := s.posts.FindPublishedBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to find post by slug: %w", err)
	}
	if post == nil {
		return nil, model.NewPostNotFoundError()
	}

	// 3. 閲覧数の加算。失敗しても記事は返す
	count, err := s.posts.IncrementViewCount(ctx, post.ID)
	if err != nil {
		s.metrics.RecordViewIncrementFailure()
		s.logger.Warn("failed to increment view count",
			slog.Int64("post_id", post.ID),
			slog.String("slug", slug),
			slog.String("error", err.Error()),
		)
	} else {
		s.metrics.RecordPostView()
		post.ViewCount = count
	}

	// 4. 関連記事
	detail := &model.PostDetail{
		PostWithRelations: *post,
		RelatedPosts:      []model.Post{},
	}
	if post.CategoryID != nil {
		related, err := s.posts.ListRelated(ctx, *post.CategoryID, post.ID, MaxRelatedPosts)
		if err != nil {
			s.logger.Warn("failed to list related posts",
				slog.Int64("post_id", post.ID),
				slog.String("error", err.Error()),
			)
		} else {
			detail.RelatedPosts = filterRelated(&post.Post, related)
		}
	}

	return detail, nil
}

// filterRelated は関連記事の条件（同一カテゴリ、公開済み、自身以外）を満たすものだけを残し、
// published_at降順（NULLは末尾、同時刻はID降順）に並べて上限件数に切り詰める。
func filterRelated(source *model.Post, candidates []model.Post) []model.Post {
	out := make([]model.Post, 0, len(candidates))
	for _, c := range candidates {
		if c.ID == source.ID || !c.IsPublished() {
			continue
		}
		if c.CategoryID == nil || source.CategoryID == nil || *c.CategoryID != *source.CategoryID {
			continue
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].PublishedAt, out[j].PublishedAt
		switch {
		case a == nil && b == nil:
			return out[i].ID > out[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.After(*b)
		default:
			return out[i].ID > out[j].ID
		}
	})

	if len(out) > MaxRelatedPosts {
		out = out[:MaxRelatedPosts]
	}
	return out
}

// ListPublished は公開記事の一覧を返す。pageは1始まり。
// categorySlugが空でない場合はそのカテゴリに絞り込む。
func (s *Service) ListPublished(ctx context.Context, categorySlug string, page, perPage int) ([]model.PostWithRelations, error) {
	page = NormalizePage(page)
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	posts, err := s.posts.ListPublished(ctx, strings.TrimSpace(categorySlug), perPage, (page-1)*perPage)
	if err != nil {
		return nil, fmt.Errorf("failed to list published posts: %w", err)
	}
	if posts == nil {
		posts = []model.PostWithRelations{}
	}
	return posts, nil
}

// ListCategories は全カテゴリを返す。
func (s *Service) ListCategories(ctx context.Context) ([]model.Category, error) {
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	if categories == nil {
		categories = []model.Category{}
	}
	return categories, nil
}
