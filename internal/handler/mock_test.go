package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/lumiskin/internal/auth"
	"github.com/hitoshi/lumiskin/internal/blog"
	"github.com/hitoshi/lumiskin/internal/middleware"
	"github.com/hitoshi/lumiskin/internal/model"
)

// --- モック定義 ---

type mockBlogService struct {
	resolveBySlugFn  func(ctx context.Context, slug string) (*model.PostDetail, error)
	listPublishedFn  func(ctx context.Context, categorySlug string, page, perPage int) ([]model.PostWithRelations, error)
	listCategoriesFn func(ctx context.Context) ([]model.Category, error)
}

func (m *mockBlogService) ResolveBySlug(ctx context.Context, slug string) (*model.PostDetail, error) {
	if m.resolveBySlugFn != nil {
		return m.resolveBySlugFn(ctx, slug)
	}
	return nil, model.NewPostNotFoundError()
}

func (m *mockBlogService) ListPublished(ctx context.Context, categorySlug string, page, perPage int) ([]model.PostWithRelations, error) {
	if m.listPublishedFn != nil {
		return m.listPublishedFn(ctx, categorySlug, page, perPage)
	}
	return []model.PostWithRelations{}, nil
}

func (m *mockBlogService) ListCategories(ctx context.Context) ([]model.Category, error) {
	if m.listCategoriesFn != nil {
		return m.listCategoriesFn(ctx)
	}
	return []model.Category{}, nil
}

type mockRecorder struct {
	recordFn func(ctx context.Context, postSlug, eventType string, eventData map[string]any) error
}

func (m *mockRecorder) Record(ctx context.Context, postSlug, eventType string, eventData map[string]any) error {
	if m.recordFn != nil {
		return m.recordFn(ctx, postSlug, eventType, eventData)
	}
	return nil
}

type mockAuthService struct {
	loginFn              func(ctx context.Context, email, password string) (*auth.LoginResult, error)
	logoutFn             func(ctx context.Context, sessionID string) error
	logoutAllFn          func(ctx context.Context, userID string) error
	getCurrentUserFn     func(ctx context.Context, userID string) (*model.User, error)
	sessionIDFromTokenFn func(token string) (string, error)
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.LoginResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, model.NewInvalidCredentialsError()
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) LogoutAll(ctx context.Context, userID string) error {
	if m.logoutAllFn != nil {
		return m.logoutAllFn(ctx, userID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, userID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, userID)
	}
	return nil, model.NewUnauthorizedError()
}

func (m *mockAuthService) SessionIDFromToken(token string) (string, error) {
	if m.sessionIDFromTokenFn != nil {
		return m.sessionIDFromTokenFn(token)
	}
	return "", model.NewUnauthorizedError()
}

type mockAuthoring struct {
	getPostFn       func(ctx context.Context, id int64) (*model.Post, error)
	createPostFn    func(ctx context.Context, in blog.PostInput) (*model.Post, error)
	updatePostFn    func(ctx context.Context, id int64, in blog.PostInput) (*model.Post, error)
	publishPostFn   func(ctx context.Context, id int64) (*model.Post, error)
	unpublishPostFn func(ctx context.Context, id int64) (*model.Post, error)
	deletePostFn    func(ctx context.Context, id int64) error
}

func (m *mockAuthoring) GetPost(ctx context.Context, id int64) (*model.Post, error) {
	if m.getPostFn != nil {
		return m.getPostFn(ctx, id)
	}
	return nil, model.NewPostNotFoundError()
}

func (m *mockAuthoring) CreatePost(ctx context.Context, in blog.PostInput) (*model.Post, error) {
	if m.createPostFn != nil {
		return m.createPostFn(ctx, in)
	}
	return &model.Post{ID: 1, Slug: "new", Status: model.PostStatusDraft}, nil
}

func (m *mockAuthoring) UpdatePost(ctx context.Context, id int64, in blog.PostInput) (*model.Post, error) {
	if m.updatePostFn != nil {
		return m.updatePostFn(ctx, id, in)
	}
	return &model.Post{ID: id}, nil
}

func (m *mockAuthoring) PublishPost(ctx context.Context, id int64) (*model.Post, error) {
	if m.publishPostFn != nil {
		return m.publishPostFn(ctx, id)
	}
	return &model.Post{ID: id, Status: model.PostStatusPublished}, nil
}

func (m *mockAuthoring) UnpublishPost(ctx context.Context, id int64) (*model.Post, error) {
	if m.unpublishPostFn != nil {
		return m.unpublishPostFn(ctx, id)
	}
	return &model.Post{ID: id, Status: model.PostStatusDraft}, nil
}

func (m *mockAuthoring) DeletePost(ctx context.Context, id int64) error {
	if m.deletePostFn != nil {
		return m.deletePostFn(ctx, id)
	}
	return nil
}

type mockDashboard struct {
	summaryFn func(ctx context.Context) (*blog.DashboardSummary, error)
}

func (m *mockDashboard) Summary(ctx context.Context) (*blog.DashboardSummary, error) {
	if m.summaryFn != nil {
		return m.summaryFn(ctx)
	}
	return &blog.DashboardSummary{}, nil
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

// --- compile-time interface checks ---
var _ BlogServiceInterface = (*mockBlogService)(nil)
var _ AnalyticsRecorder = (*mockRecorder)(nil)
var _ AuthServiceInterface = (*mockAuthService)(nil)
var _ AuthoringServiceInterface = (*mockAuthoring)(nil)
var _ DashboardInterface = (*mockDashboard)(nil)
var _ HealthChecker = (*mockHealthChecker)(nil)

// --- テストヘルパー ---

// withIdentity はテスト用にリクエストコンテキストにIdentityを注入するヘルパー。
func withIdentity(r *http.Request, identity model.Identity) *http.Request {
	return r.WithContext(middleware.ContextWithIdentity(r.Context(), identity))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseErrorBody はレスポンスボディから統一エラーフォーマットをパースするヘルパー。
func parseErrorBody(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(dst); err != nil {
		t.Fatalf("failed to decode response: %v (body=%s)", err, w.Body.String())
	}
}

func int64Ptr(v int64) *int64 { return &v }
