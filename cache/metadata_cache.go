package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"AzzKaraoke/logger"
	"AzzKaraoke/model"
)

const (
	metadataKey        = "karaoke:meta:%s:%s" // String: model:contentHash -> SongMetadata JSON
	defaultMetadataTTL = 7 * 24 * time.Hour
)

// ContentHash is the cache identity of a video: hex SHA-256 of its bytes.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MetadataCache 按视频内容哈希缓存 AI 处理结果
type MetadataCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewMetadataCache 创建元数据缓存；client 为 nil 时使用全局客户端
func NewMetadataCache(client *redis.Client, ttl time.Duration) *MetadataCache {
	if client == nil {
		client = RedisClient
	}
	if ttl <= 0 {
		ttl = defaultMetadataTTL
	}
	return &MetadataCache{client: client, ttl: ttl}
}

// Get returns the cached metadata, or nil on a miss.
func (c *MetadataCache) Get(ctx context.Context, aiModel, hash string) (*model.SongMetadata, error) {
	if c.client == nil {
		return nil, errNoClient
	}
	data, err := c.client.Get(ctx, fmt.Sprintf(metadataKey, aiModel, hash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached metadata: %w", err)
	}

	var meta model.SongMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode cached metadata: %w", err)
	}
	return &meta, nil
}

// Set stores meta under the video hash.
func (c *MetadataCache) Set(ctx context.Context, aiModel, hash string, meta *model.SongMetadata) error {
	if c.client == nil {
		return errNoClient
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return c.client.Set(ctx, fmt.Sprintf(metadataKey, aiModel, hash), data, c.ttl).Err()
}

// Transcriber is the AI collaborator being cached.
type Transcriber interface {
	ProcessMusicVideo(ctx context.Context, data []byte, mimeType string) (*model.SongMetadata, error)
}

// CachedTranscriber answers repeated uploads of the same video from Redis.
// Cache errors are logged and bypassed.
type CachedTranscriber struct {
	inner   Transcriber
	cache   *MetadataCache
	aiModel string
}

// NewCachedTranscriber wraps inner; aiModel is part of the cache key so a
// model change never serves stale answers.
func NewCachedTranscriber(inner Transcriber, cache *MetadataCache, aiModel string) *CachedTranscriber {
	return &CachedTranscriber{inner: inner, cache: cache, aiModel: aiModel}
}

// ProcessMusicVideo implements the transcriber contract.
func (t *CachedTranscriber) ProcessMusicVideo(ctx context.Context, data []byte, mimeType string) (*model.SongMetadata, error) {
	hash := ContentHash(data)

	meta, err := t.cache.Get(ctx, t.aiModel, hash)
	switch {
	case err != nil:
		logger.Warn("读取元数据缓存失败，直接调用 AI", logger.String("hash", hash), logger.ErrorField(err))
	case meta != nil:
		logger.Info("命中元数据缓存", logger.String("hash", hash), logger.String("title", meta.Title))
		return meta, nil
	}

	meta, err = t.inner.ProcessMusicVideo(ctx, data, mimeType)
	if err != nil {
		return nil, err
	}

	if err := t.cache.Set(ctx, t.aiModel, hash, meta); err != nil {
		logger.Warn("写入元数据缓存失败", logger.String("hash", hash), logger.ErrorField(err))
	}
	return meta, nil
}
