package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/lumiskin/internal/database"
	"github.com/hitoshi/lumiskin/internal/model"
)

// setupPostRepoDB はマイグレーション適用済みのテスト用DBを返す。
// TEST_DATABASE_URL が未設定、または接続できない場合はスキップする。
func setupPostRepoDB(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL が未設定のためスキップ")
	}

	db, err := database.Open(dbURL)
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Ping(); err != nil {
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}
	if err := database.RunMigrations(dbURL); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}
	if _, err := db.Exec(`TRUNCATE analytics_events, posts, categories, authors RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("テーブルの初期化に失敗: %v", err)
	}
	return db
}

func insertCategory(t *testing.T, db *sql.DB, name, slug string) int64 {
	t.Helper()
	var id int64
	if err := db.QueryRow(
		`INSERT INTO categories (name, slug) VALUES ($1, $2) RETURNING id`, name, slug,
	).Scan(&id); err != nil {
		t.Fatalf("カテゴリの作成に失敗: %v", err)
	}
	return id
}

func createPost(t *testing.T, repo *PostgresPostRepo, slug string, status model.PostStatus, categoryID *int64, publishedAt *time.Time) *model.Post {
	t.Helper()
	post := &model.Post{
		Slug:        slug,
		Title:       slug,
		Status:      status,
		CategoryID:  categoryID,
		PublishedAt: publishedAt,
	}
	if err := repo.Create(context.Background(), post); err != nil {
		t.Fatalf("記事の作成に失敗: %v", err)
	}
	return post
}

func TestPostgresPostRepo_FindPublishedBySlug_HidesDrafts(t *testing.T) {
	db := setupPostRepoDB(t)
	repo := NewPostgresPostRepo(db)
	ctx := context.Background()

	catID := insertCategory(t, db, "スキンケア", "skincare")
	now := time.Now().UTC()
	createPost(t, repo, "published-post", model.PostStatusPublished, &catID, &now)
	createPost(t, repo, "draft-post", model.PostStatusDraft, &catID, nil)

	got, err := repo.FindPublishedBySlug(ctx, "published-post")
	if err != nil {
		t.Fatalf("FindPublishedBySlug returned error: %v", err)
	}
	if got == nil {
		t.Fatal("expected published post")
	}
	if got.Category == nil || got.Category.Slug != "skincare" {
		t.Errorf("Category = %+v, want skincare", got.Category)
	}
	if got.Author != nil {
		t.Errorf("Author = %+v, want nil", got.Author)
	}

	for _, slug := range []string{"draft-post", "no-such-post"} {
		got, err := repo.FindPublishedBySlug(ctx, slug)
		if err != nil {
			t.Fatalf("FindPublishedBySlug(%q) returned error: %v", slug, err)
		}
		if got != nil {
			t.Errorf("FindPublishedBySlug(%q) = %+v, want nil", slug, got)
		}
	}
}

func TestPostgresPostRepo_IncrementViewCount_ConcurrentIsLossless(t *testing.T) {
	db := setupPostRepoDB(t)
	repo := NewPostgresPostRepo(db)
	ctx := context.Background()

	post := createPost(t, repo, "popular", model.PostStatusPublished, nil, nil)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.IncrementViewCount(ctx, post.ID); err != nil {
				t.Errorf("IncrementViewCount returned error: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := repo.FindByID(ctx, post.ID)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if got.ViewCount != n {
		t.Errorf("ViewCount = %d, want %d", got.ViewCount, n)
	}

	if _, err := repo.IncrementViewCount(ctx, post.ID+1000); !errors.Is(err, ErrNotFound) {
		t.Errorf("IncrementViewCount(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestPostgresPostRepo_ListRelated_OrdersNullsLast(t *testing.T) {
	db := setupPostRepoDB(t)
	repo := NewPostgresPostRepo(db)
	ctx := context.Background()

	catID := insertCategory(t, db, "スキンケア", "skincare")
	otherID := insertCategory(t, db, "メイク", "makeup")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	at := func(days int) *time.Time {
		ts := base.AddDate(0, 0, days)
		return &ts
	}

	current := createPost(t, repo, "current", model.PostStatusPublished, &catID, at(10))
	createPost(t, repo, "old", model.PostStatusPublished, &catID, at(1))
	createPost(t, repo, "undated", model.PostStatusPublished, &catID, nil)
	createPost(t, repo, "newest", model.PostStatusPublished, &catID, at(9))
	createPost(t, repo, "middle", model.PostStatusPublished, &catID, at(5))
	createPost(t, repo, "recent", model.PostStatusPublished, &catID, at(7))
	createPost(t, repo, "draft", model.PostStatusDraft, &catID, at(8))
	createPost(t, repo, "other-category", model.PostStatusPublished, &otherID, at(8))

	got, err := repo.ListRelated(ctx, catID, current.ID, 4)
	if err != nil {
		t.Fatalf("ListRelated returned error: %v", err)
	}

	want := []string{"newest", "recent", "middle", "old"}
	if len(got) != len(want) {
		t.Fatalf("len(ListRelated) = %d, want %d", len(got), len(want))
	}
	for i, slug := range want {
		if got[i].Slug != slug {
			t.Errorf("ListRelated[%d] = %q, want %q", i, got[i].Slug, slug)
		}
	}

	all, err := repo.ListRelated(ctx, catID, current.ID, 10)
	if err != nil {
		t.Fatalf("ListRelated returned error: %v", err)
	}
	if last := all[len(all)-1]; last.Slug != "undated" {
		t.Errorf("last related post = %q, want undated", last.Slug)
	}
}

func TestPostgresPostRepo_Create_DuplicateSlug(t *testing.T) {
	db := setupPostRepoDB(t)
	repo := NewPostgresPostRepo(db)

	createPost(t, repo, "same-slug", model.PostStatusDraft, nil, nil)

	err := repo.Create(context.Background(), &model.Post{Slug: "same-slug", Title: "dup", Status: model.PostStatusDraft})
	if !errors.Is(err, ErrDuplicateSlug) {
		t.Errorf("Create error = %v, want ErrDuplicateSlug", err)
	}
}

func TestPostgresPostRepo_UpdateAndDelete(t *testing.T) {
	db := setupPostRepoDB(t)
	repo := NewPostgresPostRepo(db)
	ctx := context.Background()

	post := createPost(t, repo, "editable", model.PostStatusDraft, nil, nil)
	if _, err := repo.IncrementViewCount(ctx, post.ID); err != nil {
		t.Fatalf("IncrementViewCount returned error: %v", err)
	}

	post.Title = "更新後"
	post.Status = model.PostStatusPublished
	post.ViewCount = 0
	if err := repo.Update(ctx, post); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	got, err := repo.FindBySlug(ctx, "editable")
	if err != nil {
		t.Fatalf("FindBySlug returned error: %v", err)
	}
	if got.Title != "更新後" || got.Status != model.PostStatusPublished {
		t.Errorf("updated post = %+v", got)
	}
	if got.ViewCount != 1 {
		t.Errorf("ViewCount = %d, want 1 (Update must not touch view_count)", got.ViewCount)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats.Total != 1 || stats.Published != 1 || stats.TotalViews != 1 {
		t.Errorf("Stats = %+v", stats)
	}

	if err := repo.Delete(ctx, post.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if err := repo.Delete(ctx, post.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
}

func TestPostgresAnalyticsRepo_AppendAndCount(t *testing.T) {
	db := setupPostRepoDB(t)
	repo := NewPostgresAnalyticsRepo(db)
	ctx := context.Background()
	since := time.Now().Add(-time.Minute)

	events := []model.AnalyticsEvent{
		{ID: "00000000-0000-0000-0000-000000000001", PostSlug: "a", EventType: model.EventTypePageview, OccurredAt: time.Now()},
		{ID: "00000000-0000-0000-0000-000000000002", PostSlug: "a", EventType: model.EventTypeScroll, EventData: map[string]any{"depth": 50}, OccurredAt: time.Now()},
		{ID: "00000000-0000-0000-0000-000000000003", PostSlug: "b", EventType: model.EventTypePageview, OccurredAt: time.Now()},
	}
	for i := range events {
		if err := repo.Append(ctx, &events[i]); err != nil {
			t.Fatalf("Append returned error: %v", err)
		}
	}

	counts, err := repo.CountByType(ctx, since)
	if err != nil {
		t.Fatalf("CountByType returned error: %v", err)
	}
	got := map[model.EventType]int64{}
	for _, c := range counts {
		got[c.EventType] = c.Count
	}
	if got[model.EventTypePageview] != 2 || got[model.EventTypeScroll] != 1 {
		t.Errorf("CountByType = %v", got)
	}
}
