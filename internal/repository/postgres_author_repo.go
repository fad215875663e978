package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/lumiskin/internal/model"
)

// PostgresAuthorRepo はPostgreSQLを使用した著者リポジトリ。
type PostgresAuthorRepo struct {
	db *sql.DB
}

// NewPostgresAuthorRepo はPostgresAuthorRepoを生成する。
func NewPostgresAuthorRepo(db *sql.DB) *PostgresAuthorRepo {
	return &PostgresAuthorRepo{db: db}
}

// FindByID は指定IDの著者を取得する。見つからない場合はnilを返す。
func (r *PostgresAuthorRepo) FindByID(ctx context.Context, id int64) (*model.Author, error) {
	a := &model.Author{}
	var social []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, slug, bio, avatar, social_links FROM authors WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.Name, &a.Slug, &a.Bio, &a.Avatar, &social)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find author: %w", err)
	}

	if err := decodeSocialLinks(social, &a.SocialLinks); err != nil {
		return nil, err
	}
	return a, nil
}

// compile-time interface check
var _ AuthorRepository = (*PostgresAuthorRepo)(nil)
