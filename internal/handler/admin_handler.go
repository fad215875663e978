package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/lumiskin/internal/blog"
	"github.com/hitoshi/lumiskin/internal/middleware"
	"github.com/hitoshi/lumiskin/internal/model"
)

// AuthoringServiceInterface は記事執筆ハンドラーが必要とするサービスインターフェース。
type AuthoringServiceInterface interface {
	GetPost(ctx context.Context, id int64) (*model.Post, error)
	CreatePost(ctx context.Context, in blog.PostInput) (*model.Post, error)
	UpdatePost(ctx context.Context, id int64, in blog.PostInput) (*model.Post, error)
	PublishPost(ctx context.Context, id int64) (*model.Post, error)
	UnpublishPost(ctx context.Context, id int64) (*model.Post, error)
	DeletePost(ctx context.Context, id int64) error
}

// DashboardInterface は管理ダッシュボードの集計インターフェース。
type DashboardInterface interface {
	Summary(ctx context.Context) (*blog.DashboardSummary, error)
}

// AdminHandler は管理画面とAPIのHTTPハンドラー。
// ロールの検証はルーティング層のミドルウェアで行う。
type AdminHandler struct {
	authoring AuthoringServiceInterface
	dashboard DashboardInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(authoring AuthoringServiceInterface, dashboard DashboardInterface) *AdminHandler {
	return &AdminHandler{authoring: authoring, dashboard: dashboard}
}

// postRequest は記事の作成・更新リクエストのボディ。
type postRequest struct {
	Title      string `json:"title" validate:"required,max=200"`
	Slug       string `json:"slug" validate:"omitempty,max=120"`
	Excerpt    string `json:"excerpt" validate:"max=500"`
	Content    string `json:"content"`
	CoverImage string `json:"coverImage" validate:"omitempty,url"`
	AuthorID   *int64 `json:"authorId" validate:"omitempty,gt=0"`
	CategoryID *int64 `json:"categoryId" validate:"omitempty,gt=0"`
}

func (req postRequest) toInput() blog.PostInput {
	return blog.PostInput{
		Title:      req.Title,
		Slug:       req.Slug,
		Excerpt:    req.Excerpt,
		Content:    req.Content,
		CoverImage: req.CoverImage,
		AuthorID:   req.AuthorID,
		CategoryID: req.CategoryID,
	}
}

type adminPostResponse struct {
	postSummaryResponse
	Content   string    `json:"content"`
	Status    string    `json:"status"`
	AuthorID  *int64    `json:"authorId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type eventCountResponse struct {
	EventType string `json:"eventType"`
	Count     int64  `json:"count"`
}

type dashboardResponse struct {
	Viewer struct {
		UserID string `json:"userId"`
		Role   string `json:"role"`
	} `json:"viewer"`
	Posts struct {
		Total      int64 `json:"total"`
		Published  int64 `json:"published"`
		Drafts     int64 `json:"drafts"`
		TotalViews int64 `json:"totalViews"`
	} `json:"posts"`
	Events      []eventCountResponse `json:"events"`
	EventsSince time.Time            `json:"eventsSince"`
}

// Dashboard は管理ダッシュボードの集計を返す。
// GET /admin, GET /admin/*, GET /api/admin/dashboard
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := h.dashboard.Summary(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	identity := middleware.IdentityFromContext(r.Context())

	var resp dashboardResponse
	resp.Viewer.UserID = identity.UserID
	resp.Viewer.Role = string(identity.Role)
	resp.Posts.Total = summary.Posts.Total
	resp.Posts.Published = summary.Posts.Published
	resp.Posts.Drafts = summary.Posts.Drafts
	resp.Posts.TotalViews = summary.Posts.TotalViews
	resp.EventsSince = summary.Since
	resp.Events = make([]eventCountResponse, len(summary.Events))
	for i, e := range summary.Events {
		resp.Events[i] = eventCountResponse{EventType: string(e.EventType), Count: e.Count}
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetPost は公開状態に関わらず記事を返す。
// GET /api/admin/posts/{id}
func (h *AdminHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	id, err := int64URLParam(r, "id")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	post, err := h.authoring.GetPost(r.Context(), id)
	h.writePost(w, r, http.StatusOK, post, err)
}

// CreatePost は下書き記事を作成する。
// POST /api/admin/posts
func (h *AdminHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}
	post, err := h.authoring.CreatePost(r.Context(), req.toInput())
	h.writePost(w, r, http.StatusCreated, post, err)
}

// UpdatePost は記事を更新する。
// PUT /api/admin/posts/{id}
func (h *AdminHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	id, err := int64URLParam(r, "id")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	var req postRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}
	post, err := h.authoring.UpdatePost(r.Context(), id, req.toInput())
	h.writePost(w, r, http.StatusOK, post, err)
}

// PublishPost は記事を公開する。
// POST /api/admin/posts/{id}/publish
func (h *AdminHandler) PublishPost(w http.ResponseWriter, r *http.Request) {
	id, err := int64URLParam(r, "id")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	post, err := h.authoring.PublishPost(r.Context(), id)
	h.writePost(w, r, http.StatusOK, post, err)
}

// UnpublishPost は記事を下書きに戻す。
// POST /api/admin/posts/{id}/unpublish
func (h *AdminHandler) UnpublishPost(w http.ResponseWriter, r *http.Request) {
	id, err := int64URLParam(r, "id")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	post, err := h.authoring.UnpublishPost(r.Context(), id)
	h.writePost(w, r, http.StatusOK, post, err)
}

// DeletePost は記事を削除する。adminロールのみ。
// DELETE /api/admin/posts/{id}
func (h *AdminHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	id, err := int64URLParam(r, "id")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if err := h.authoring.DeletePost(r.Context(), id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) writePost(w http.ResponseWriter, r *http.Request, status int, post *model.Post, err error) {
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, status, adminPostResponse{
		postSummaryResponse: toPostSummary(post),
		Content:             post.Content,
		Status:              string(post.Status),
		AuthorID:            post.AuthorID,
		CreatedAt:           post.CreatedAt,
		UpdatedAt:           post.UpdatedAt,
	})
}
