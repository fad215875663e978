package blog

import (
	"context"
	"time"

	"github.com/hitoshi/lumiskin/internal/model"
	"github.com/hitoshi/lumiskin/internal/repository"
)

// --- モック定義 ---

type mockPostRepo struct {
	findPublishedBySlugFn func(ctx context.Context, slug string) (*model.PostWithRelations, error)
	incrementViewCountFn  func(ctx context.Context, postID int64) (int64, error)
	listRelatedFn         func(ctx context.Context, categoryID, excludeID int64, limit int) ([]model.Post, error)
	listPublishedFn       func(ctx context.Context, categorySlug string, limit, offset int) ([]model.PostWithRelations, error)
	findByIDFn            func(ctx context.Context, id int64) (*model.Post, error)
	findBySlugFn          func(ctx context.Context, slug string) (*model.Post, error)
	createFn              func(ctx context.Context, post *model.Post) error
	updateFn              func(ctx context.Context, post *model.Post) error
	deleteFn              func(ctx context.Context, id int64) error
	statsFn               func(ctx context.Context) (*model.PostStats, error)
}

func (m *mockPostRepo) FindPublishedBySlug(ctx context.Context, slug string) (*model.PostWithRelations, error) {
	if m.findPublishedBySlugFn != nil {
		return m.findPublishedBySlugFn(ctx, slug)
	}
	return nil, nil
}

func (m *mockPostRepo) IncrementViewCount(ctx context.Context, postID int64) (int64, error) {
	if m.incrementViewCountFn != nil {
		return m.incrementViewCountFn(ctx, postID)
	}
	return 0, nil
}

func (m *mockPostRepo) ListRelated(ctx context.Context, categoryID, excludeID int64, limit int) ([]model.Post, error) {
	if m.listRelatedFn != nil {
		return m.listRelatedFn(ctx, categoryID, excludeID, limit)
	}
	return nil, nil
}

func (m *mockPostRepo) ListPublished(ctx context.Context, categorySlug string, limit, offset int) ([]model.PostWithRelations, error) {
	if m.listPublishedFn != nil {
		return m.listPublishedFn(ctx, categorySlug, limit, offset)
	}
	return nil, nil
}

func (m *mockPostRepo) FindByID(ctx context.Context, id int64) (*model.Post, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockPostRepo) FindBySlug(ctx context.Context, slug string) (*model.Post, error) {
	if m.findBySlugFn != nil {
		return m.findBySlugFn(ctx, slug)
	}
	return nil, nil
}

func (m *mockPostRepo) Create(ctx context.Context, post *model.Post) error {
	if m.createFn != nil {
		return m.createFn(ctx, post)
	}
	return nil
}

func (m *mockPostRepo) Update(ctx context.Context, post *model.Post) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, post)
	}
	return nil
}

func (m *mockPostRepo) Delete(ctx context.Context, id int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockPostRepo) Stats(ctx context.Context) (*model.PostStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx)
	}
	return &model.PostStats{}, nil
}

type mockCategoryRepo struct {
	listFn     func(ctx context.Context) ([]model.Category, error)
	findByIDFn func(ctx context.Context, id int64) (*model.Category, error)
}

func (m *mockCategoryRepo) List(ctx context.Context) ([]model.Category, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockCategoryRepo) FindByID(ctx context.Context, id int64) (*model.Category, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return &model.Category{ID: id}, nil
}

type mockAuthorRepo struct {
	findByIDFn func(ctx context.Context, id int64) (*model.Author, error)
}

func (m *mockAuthorRepo) FindByID(ctx context.Context, id int64) (*model.Author, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return &model.Author{ID: id}, nil
}

type mockEventRepo struct {
	appendFn      func(ctx context.Context, event *model.AnalyticsEvent) error
	countByTypeFn func(ctx context.Context, since time.Time) ([]model.EventTypeCount, error)
}

func (m *mockEventRepo) Append(ctx context.Context, event *model.AnalyticsEvent) error {
	if m.appendFn != nil {
		return m.appendFn(ctx, event)
	}
	return nil
}

func (m *mockEventRepo) CountByType(ctx context.Context, since time.Time) ([]model.EventTypeCount, error) {
	if m.countByTypeFn != nil {
		return m.countByTypeFn(ctx, since)
	}
	return nil, nil
}

type mockViewMetrics struct {
	views    int
	failures int
}

func (m *mockViewMetrics) RecordPostView() { m.views++ }
func (m *mockViewMetrics) RecordViewIncrementFailure() { m.failures++ }

// --- compile-time interface checks ---
var _ repository.PostRepository = (*mockPostRepo)(nil)
var _ repository.CategoryRepository = (*mockCategoryRepo)(nil)
var _ repository.AuthorRepository = (*mockAuthorRepo)(nil)
var _ repository.AnalyticsEventRepository = (*mockEventRepo)(nil)
var _ ViewMetrics = (*mockViewMetrics)(nil)

func int64Ptr(v int64) *int64 { return &v }

func timePtr(t time.Time) *time.Time { return &t }
