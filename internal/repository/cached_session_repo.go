package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/lumiskin/internal/model"
)

// CachedSessionRepo はSessionRepositoryの前段にRedisキャッシュを置くデコレータ。
// Redisが利用できない場合はキャッシュミスとして扱い、下位リポジトリに委譲する。
type CachedSessionRepo struct {
	inner  SessionRepository
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	loads  singleflight.Group
}

// NewCachedSessionRepo はCachedSessionRepoを生成する。
// 同一セッションIDのキャッシュミスは1回の下位リポジトリ呼び出しにまとめる。
// ttlはキャッシュ保持期間の上限で、セッションの残り有効期間を超えない。
func NewCachedSessionRepo(inner SessionRepository, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedSessionRepo {
	return &CachedSessionRepo{inner: inner, client: client, ttl: ttl, logger: logger}
}

func sessionKey(id string) string {
	return "session:" + id
}

// sessionLoadTimeout は共有される下位リポジトリ読み込みの上限時間。
const sessionLoadTimeout = 5 * time.Second

func userSessionsKey(userID string) string {
	return "user_sessions:" + userID
}

// Create はセッションを作成し、キャッシュに格納する。
func (r *CachedSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if err := r.inner.Create(ctx, session); err != nil {
		return err
	}
	r.store(ctx, session)
	return nil
}

// FindByID はキャッシュからセッションを取得し、なければ下位リポジトリから読み込む。
// キャッシュ上で期限切れのセッションはnilを返す。
func (r *CachedSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	raw, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	switch {
	case err == nil:
		var session model.Session
		jsonErr := json.Unmarshal(raw, &session)
		if jsonErr == nil {
			if !session.ExpiresAt.After(time.Now()) {
				return nil, nil
			}
			return &session, nil
		}
		r.logger.Warn("discarding undecodable cached session", slog.String("error", jsonErr.Error()))
	case errors.Is(err, redis.Nil):
	default:
		r.logger.Warn("session cache unavailable", slog.String("error", err.Error()))
	}

	// 読み込みは待機中の全呼び出し元で共有するため、先頭の呼び出し元のキャンセルから切り離す
	ch := r.loads.DoChan(id, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionLoadTimeout)
		defer cancel()

		session, err := r.inner.FindByID(loadCtx, id)
		if err != nil || session == nil {
			return session, err
		}
		r.store(loadCtx, session)
		return session, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		session, _ := res.Val.(*model.Session)
		return session, nil
	}
}

// DeleteByID はセッションを削除し、キャッシュも無効化する。
func (r *CachedSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if err := r.inner.DeleteByID(ctx, id); err != nil {
		return err
	}
	if err := r.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		r.logger.Warn("failed to evict cached session", slog.String("error", err.Error()))
	}
	return nil
}

// DeleteByUserID は指定ユーザーの全セッションを削除し、キャッシュも無効化する。
func (r *CachedSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if err := r.inner.DeleteByUserID(ctx, userID); err != nil {
		return err
	}

	ids, err := r.client.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		r.logger.Warn("failed to list cached sessions", slog.String("error", err.Error()))
		return nil
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKey(id))
	}
	keys = append(keys, userSessionsKey(userID))
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.logger.Warn("failed to evict cached sessions", slog.String("error", err.Error()))
	}
	return nil
}

// store はセッションをキャッシュに格納する。失敗してもエラーは返さない。
func (r *CachedSessionRepo) store(ctx context.Context, session *model.Session) {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return
	}
	if r.ttl > 0 && ttl > r.ttl {
		ttl = r.ttl
	}

	raw, err := json.Marshal(session)
	if err != nil {
		return
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKey(session.ID), raw, ttl)
	pipe.SAdd(ctx, userSessionsKey(session.UserID), session.ID)
	pipe.Expire(ctx, userSessionsKey(session.UserID), time.Until(session.ExpiresAt))
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn("failed to cache session", slog.String("error", err.Error()))
	}
}

// compile-time interface check
var _ SessionRepository = (*CachedSessionRepo)(nil)
