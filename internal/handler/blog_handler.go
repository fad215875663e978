package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/lumiskin/internal/blog"
	"github.com/hitoshi/lumiskin/internal/model"
)

// BlogServiceInterface はブログハンドラーが必要とするサービスインターフェース。
type BlogServiceInterface interface {
	ResolveBySlug(ctx context.Context, slug string) (*model.PostDetail, error)
	ListPublished(ctx context.Context, categorySlug string, page, perPage int) ([]model.PostWithRelations, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
}

// BlogHandler は公開ブログのHTTPハンドラー。
type BlogHandler struct {
	service BlogServiceInterface
}

// NewBlogHandler はBlogHandlerを生成する。
func NewBlogHandler(service BlogServiceInterface) *BlogHandler {
	return &BlogHandler{service: service}
}

type socialLinksResponse struct {
	Twitter   *string `json:"twitter,omitempty"`
	Instagram *string `json:"instagram,omitempty"`
	Website   *string `json:"website,omitempty"`
}

type authorResponse struct {
	ID          int64               `json:"id"`
	Name        string              `json:"name"`
	Slug        string              `json:"slug"`
	Bio         string              `json:"bio"`
	Avatar      string              `json:"avatar"`
	SocialLinks socialLinksResponse `json:"socialLinks"`
}

type categoryResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

// postSummaryResponse は一覧・関連記事で使う記事の要約。
type postSummaryResponse struct {
	ID          int64      `json:"id"`
	Slug        string     `json:"slug"`
	Title       string     `json:"title"`
	Excerpt     string     `json:"excerpt"`
	CoverImage  string     `json:"coverImage"`
	ViewCount   int64      `json:"viewCount"`
	CategoryID  *int64     `json:"categoryId"`
	PublishedAt *time.Time `json:"publishedAt"`
}

type postListItemResponse struct {
	postSummaryResponse
	Author   *authorResponse   `json:"author"`
	Category *categoryResponse `json:"category"`
}

type postDetailResponse struct {
	postSummaryResponse
	Content      string                `json:"content"`
	Status       string                `json:"status"`
	AuthorID     *int64                `json:"authorId"`
	CreatedAt    time.Time             `json:"createdAt"`
	UpdatedAt    time.Time             `json:"updatedAt"`
	Author       *authorResponse       `json:"author"`
	Category     *categoryResponse     `json:"category"`
	RelatedPosts []postSummaryResponse `json:"relatedPosts"`
}

// GetPost は公開記事の詳細を返す。呼び出すたびに閲覧数が1増える。
// GET /api/blog/posts/{slug}
func (h *BlogHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.ResolveBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	related := make([]postSummaryResponse, len(detail.RelatedPosts))
	for i := range detail.RelatedPosts {
		related[i] = toPostSummary(&detail.RelatedPosts[i])
	}

	writeJSON(w, http.StatusOK, postDetailResponse{
		postSummaryResponse: toPostSummary(&detail.Post),
		Content:             detail.Content,
		Status:              string(detail.Status),
		AuthorID:            detail.AuthorID,
		CreatedAt:           detail.CreatedAt,
		UpdatedAt:           detail.UpdatedAt,
		Author:              toAuthorResponse(detail.Author),
		Category:            toCategoryResponse(detail.Category),
		RelatedPosts:        related,
	})
}

// ListPosts は公開記事の一覧を返す。
// GET /api/blog/posts?category=<slug>&page=<n>&perPage=<n>
func (h *BlogHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	page := blog.NormalizePage(intQuery(r, "page", 1))
	perPage := intQuery(r, "perPage", 0)

	posts, err := h.service.ListPublished(r.Context(), r.URL.Query().Get("category"), page, perPage)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	items := make([]postListItemResponse, len(posts))
	for i := range posts {
		items[i] = postListItemResponse{
			postSummaryResponse: toPostSummary(&posts[i].Post),
			Author:              toAuthorResponse(posts[i].Author),
			Category:            toCategoryResponse(posts[i].Category),
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"posts": items,
		"page":  page,
	})
}

// ListCategories はカテゴリ一覧を返す。
// GET /api/blog/categories
func (h *BlogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	items := make([]categoryResponse, len(categories))
	for i := range categories {
		items[i] = *toCategoryResponse(&categories[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": items})
}

// --- ヘルパー関数 ---

func toPostSummary(p *model.Post) postSummaryResponse {
	return postSummaryResponse{
		ID:          p.ID,
		Slug:        p.Slug,
		Title:       p.Title,
		Excerpt:     p.Excerpt,
		CoverImage:  p.CoverImage,
		ViewCount:   p.ViewCount,
		CategoryID:  p.CategoryID,
		PublishedAt: p.PublishedAt,
	}
}

func toAuthorResponse(a *model.Author) *authorResponse {
	if a == nil {
		return nil
	}
	return &authorResponse{
		ID:     a.ID,
		Name:   a.Name,
		Slug:   a.Slug,
		Bio:    a.Bio,
		Avatar: a.Avatar,
		SocialLinks: socialLinksResponse{
			Twitter:   a.SocialLinks.Twitter,
			Instagram: a.SocialLinks.Instagram,
			Website:   a.SocialLinks.Website,
		},
	}
}

func toCategoryResponse(c *model.Category) *categoryResponse {
	if c == nil {
		return nil
	}
	return &categoryResponse{
		ID:          c.ID,
		Name:        c.Name,
		Slug:        c.Slug,
		Description: c.Description,
	}
}
