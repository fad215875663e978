package blog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/lumiskin/internal/model"
	"github.com/hitoshi/lumiskin/internal/repository"
	"github.com/hitoshi/lumiskin/internal/security"
)

type mockProber struct {
	probeFn func(ctx context.Context, imageURL string) error
}

func (m *mockProber) Probe(ctx context.Context, imageURL string) error {
	if m.probeFn != nil {
		return m.probeFn(ctx, imageURL)
	}
	return nil
}

func newAuthorService(posts *mockPostRepo) *AuthorService {
	return NewAuthorService(posts, &mockCategoryRepo{}, &mockAuthorRepo{}, security.NewPostSanitizer(), nil)
}

func TestCreatePost_GeneratesSlugAndSanitizes(t *testing.T) {
	var created *model.Post
	repo := &mockPostRepo{
		createFn: func(ctx context.Context, post *model.Post) error {
			post.ID = 9
			created = post
			return nil
		},
	}
	svc := newAuthorService(repo)

	post, err := svc.CreatePost(context.Background(), PostInput{
		Title:      "  Vitamin C Serum Guide ",
		Content:    `<p>朝に使う</p><script>alert(1)</script>`,
		CategoryID: int64Ptr(3),
		AuthorID:   int64Ptr(1),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created == nil || post.ID != 9 {
		t.Fatal("expected post to be stored")
	}
	if post.Slug != "vitamin-c-serum-guide" {
		t.Errorf("Slug = %q", post.Slug)
	}
	if post.Title != "Vitamin C Serum Guide" {
		t.Errorf("Title = %q", post.Title)
	}
	if post.Status != model.PostStatusDraft {
		t.Errorf("Status = %q, want draft", post.Status)
	}
	if post.PublishedAt != nil {
		t.Error("new post should not have PublishedAt")
	}
	if strings.Contains(post.Content, "<script") {
		t.Errorf("Content not sanitized: %q", post.Content)
	}
}

func TestCreatePost_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		input PostInput
		setup func(s *AuthorService)
		code  string
	}{
		{"タイトル未指定", PostInput{Title: "  ", Slug: "ok"}, nil, model.ErrCodeInvalidRequest},
		{"スラッグを生成できない", PostInput{Title: "保湿の基本"}, nil, model.ErrCodeInvalidRequest},
		{"不正なスラッグ", PostInput{Title: "x", Slug: "Bad Slug"}, nil, model.ErrCodeInvalidRequest},
		{"カバー画像が内部アドレス", PostInput{Title: "x", CoverImage: "http://169.254.169.254/a.png"}, nil, model.ErrCodeInvalidRequest},
		{"カテゴリが存在しない", PostInput{Title: "x", CategoryID: int64Ptr(99)}, func(s *AuthorService) {
			s.categories = &mockCategoryRepo{findByIDFn: func(ctx context.Context, id int64) (*model.Category, error) { return nil, nil }}
		}, model.ErrCodeCategoryNotFound},
		{"著者が存在しない", PostInput{Title: "x", AuthorID: int64Ptr(99)}, func(s *AuthorService) {
			s.authors = &mockAuthorRepo{findByIDFn: func(ctx context.Context, id int64) (*model.Author, error) { return nil, nil }}
		}, model.ErrCodeInvalidRequest},
		{"カバー画像が画像でない", PostInput{Title: "x", CoverImage: "https://cdn.example.com/page"}, func(s *AuthorService) {
			s.prober = &mockProber{probeFn: func(ctx context.Context, u string) error { return errors.New("not an image") }}
		}, model.ErrCodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			createCalled := false
			svc := newAuthorService(&mockPostRepo{
				createFn: func(ctx context.Context, post *model.Post) error {
					createCalled = true
					return nil
				},
			})
			if tt.setup != nil {
				tt.setup(svc)
			}

			_, err := svc.CreatePost(context.Background(), tt.input)
			assertAPIErrorCode(t, err, tt.code)
			if createCalled {
				t.Error("Create should not be called on validation failure")
			}
		})
	}
}

func TestCreatePost_SlugConflict(t *testing.T) {
	repo := &mockPostRepo{
		createFn: func(ctx context.Context, post *model.Post) error {
			return repository.ErrDuplicateSlug
		},
	}
	svc := newAuthorService(repo)

	_, err := svc.CreatePost(context.Background(), PostInput{Title: "Toner Basics"})
	assertAPIErrorCode(t, err, model.ErrCodeSlugConflict)
}

func TestCreatePost_ExistingSlug_RejectedBeforeProbeAndCreate(t *testing.T) {
	var lookedUp string
	repo := &mockPostRepo{
		findBySlugFn: func(ctx context.Context, slug string) (*model.Post, error) {
			lookedUp = slug
			return &model.Post{ID: 2, Slug: slug, Status: model.PostStatusDraft}, nil
		},
		createFn: func(ctx context.Context, post *model.Post) error {
			t.Error("Create should not be called for an existing slug")
			return nil
		},
	}
	svc := newAuthorService(repo)
	svc.prober = &mockProber{probeFn: func(ctx context.Context, u string) error {
		t.Error("cover image should not be probed for an existing slug")
		return nil
	}}

	_, err := svc.CreatePost(context.Background(), PostInput{Title: "Toner Basics", CoverImage: "https://cdn.example.com/t.jpg"})
	assertAPIErrorCode(t, err, model.ErrCodeSlugConflict)
	if lookedUp != "toner-basics" {
		t.Errorf("looked up slug = %q, want toner-basics", lookedUp)
	}
}

func TestCreatePost_SlugLookupError_IsInternal(t *testing.T) {
	repo := &mockPostRepo{
		findBySlugFn: func(ctx context.Context, slug string) (*model.Post, error) {
			return nil, errors.New("db down")
		},
	}
	svc := newAuthorService(repo)

	_, err := svc.CreatePost(context.Background(), PostInput{Title: "Toner Basics"})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("lookup failure should not be an API error, got %v", apiErr)
	}
}

func TestCreatePost_ProbesCoverImage(t *testing.T) {
	var probed string
	svc := newAuthorService(&mockPostRepo{})
	svc.prober = &mockProber{probeFn: func(ctx context.Context, u string) error {
		probed = u
		return nil
	}}

	post, err := svc.CreatePost(context.Background(), PostInput{Title: "Sunscreen", CoverImage: " https://cdn.example.com/sun.jpg "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if probed != "https://cdn.example.com/sun.jpg" {
		t.Errorf("probed = %q", probed)
	}
	if post.CoverImage != "https://cdn.example.com/sun.jpg" {
		t.Errorf("CoverImage = %q", post.CoverImage)
	}
}

func TestUpdatePost_KeepsSlugAndRejectsChange(t *testing.T) {
	existing := &model.Post{ID: 4, Slug: "toner-basics", Title: "Old", Status: model.PostStatusPublished, ViewCount: 30}
	var updated *model.Post
	repo := &mockPostRepo{
		findByIDFn: func(ctx context.Context, id int64) (*model.Post, error) {
			copied := *existing
			return &copied, nil
		},
		updateFn: func(ctx context.Context, post *model.Post) error {
			updated = post
			return nil
		},
	}
	svc := newAuthorService(repo)

	post, err := svc.UpdatePost(context.Background(), 4, PostInput{Title: "New Title", Slug: "toner-basics"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated == nil || post.Title != "New Title" || post.Slug != "toner-basics" {
		t.Errorf("post = %+v", post)
	}
	if post.Status != model.PostStatusPublished || post.ViewCount != 30 {
		t.Errorf("status/view_count changed: %+v", post)
	}

	_, err = svc.UpdatePost(context.Background(), 4, PostInput{Title: "x", Slug: "renamed"})
	assertAPIErrorCode(t, err, model.ErrCodeInvalidRequest)
}

func TestUpdatePost_NotFound(t *testing.T) {
	svc := newAuthorService(&mockPostRepo{})
	_, err := svc.UpdatePost(context.Background(), 1, PostInput{Title: "x"})
	assertAPIErrorCode(t, err, model.ErrCodePostNotFound)

	svc = newAuthorService(&mockPostRepo{
		findByIDFn: func(ctx context.Context, id int64) (*model.Post, error) { return &model.Post{ID: id}, nil },
		updateFn:   func(ctx context.Context, post *model.Post) error { return repository.ErrNotFound },
	})
	_, err = svc.UpdatePost(context.Background(), 1, PostInput{Title: "x"})
	assertAPIErrorCode(t, err, model.ErrCodePostNotFound)
}

func TestPublishPost_SetsPublishedAtOnce(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	stored := &model.Post{ID: 2, Slug: "spf", Status: model.PostStatusDraft}
	repo := &mockPostRepo{
		findByIDFn: func(ctx context.Context, id int64) (*model.Post, error) {
			copied := *stored
			return &copied, nil
		},
		updateFn: func(ctx context.Context, post *model.Post) error {
			*stored = *post
			return nil
		},
	}
	svc := newAuthorService(repo)
	svc.now = func() time.Time { return now }

	post, err := svc.PublishPost(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !post.IsPublished() || post.PublishedAt == nil || !post.PublishedAt.Equal(now) {
		t.Errorf("post = %+v", post)
	}

	if _, err := svc.UnpublishPost(context.Background(), 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Status != model.PostStatusDraft || stored.PublishedAt == nil {
		t.Errorf("unpublish should keep PublishedAt: %+v", stored)
	}

	svc.now = func() time.Time { return now.Add(48 * time.Hour) }
	post, err = svc.PublishPost(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !post.PublishedAt.Equal(now) {
		t.Errorf("PublishedAt = %v, want first publish time %v", post.PublishedAt, now)
	}
}

func TestDeletePost(t *testing.T) {
	var deleted int64
	svc := newAuthorService(&mockPostRepo{
		deleteFn: func(ctx context.Context, id int64) error {
			deleted = id
			return nil
		},
	})
	if err := svc.DeletePost(context.Background(), 8); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 8 {
		t.Errorf("deleted = %d, want 8", deleted)
	}

	svc = newAuthorService(&mockPostRepo{
		deleteFn: func(ctx context.Context, id int64) error { return repository.ErrNotFound },
	})
	assertAPIErrorCode(t, svc.DeletePost(context.Background(), 8), model.ErrCodePostNotFound)

	svc = newAuthorService(&mockPostRepo{
		deleteFn: func(ctx context.Context, id int64) error { return errors.New("db down") },
	})
	if err := svc.DeletePost(context.Background(), 8); err == nil {
		t.Error("expected error")
	}
}
