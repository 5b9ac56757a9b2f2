package cmd

import (
	"context"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"AzzKaraoke/cache"
	"AzzKaraoke/config"
	"AzzKaraoke/core/controller"
	"AzzKaraoke/core/gemini"
	"AzzKaraoke/db"
	"AzzKaraoke/logger"
	"AzzKaraoke/model"
	"AzzKaraoke/repository"
)

// openRepository returns the session store for cfg.DBDriver. "none" keeps
// sessions in memory for the life of the process.
func openRepository(cfg *config.Config) (repository.SessionRepository, func(), error) {
	if cfg.DBDriver == "none" {
		logger.Warn("未配置数据库，会话只保存在内存中")
		return repository.NewMemorySessionRepository(), func() {}, nil
	}
	gdb, err := db.ConnectGormDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewGormSessionRepository(gdb), func() { closeDB(gdb) }, nil
}

func closeDB(gdb *gorm.DB) {
	if err := db.CloseGormDB(gdb); err != nil {
		logger.Warn("关闭数据库失败", logger.ErrorField(err))
	}
}

// connectRedis returns nil when Redis is disabled or unreachable; every
// Redis-backed feature is optional.
func connectRedis(cfg *config.Config) *redis.Client {
	if !cfg.RedisEnabled {
		return nil
	}
	rdb, err := cache.ConnectRedis(cfg)
	if err != nil {
		logger.Warn("Redis 不可用，跳过缓存与在线状态", logger.ErrorField(err))
		return nil
	}
	logger.Info("Redis 连接成功", logger.String("addr", cfg.RedisHost+":"+cfg.RedisPort))
	return rdb
}

// unconfiguredTranscriber fails every request so a missing API key surfaces
// as the usual AI failure instead of refusing to start.
type unconfiguredTranscriber struct {
	err error
}

func (t unconfiguredTranscriber) ProcessMusicVideo(context.Context, []byte, string) (*model.SongMetadata, error) {
	return nil, t.err
}

// newTranscriber builds the Gemini client, wrapped with the metadata cache
// when rdb is non-nil.
func newTranscriber(ctx context.Context, cfg *config.Config, rdb *redis.Client) (controller.Transcriber, error) {
	if err := cfg.RequireGemini(); err != nil {
		logger.Warn("未配置 Gemini API Key，所有处理都会失败", logger.ErrorField(err))
		return unconfiguredTranscriber{err: err}, nil
	}
	client, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:      cfg.GeminiAPIKey,
		Model:       cfg.GeminiModel,
		BaseURL:     cfg.GeminiBaseURL,
		InlineLimit: cfg.InlineLimit(),
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Gemini 客户端已就绪", logger.String("model", client.Model()))

	if rdb == nil {
		return client, nil
	}
	return cache.NewCachedTranscriber(client, cache.NewMetadataCache(rdb, cfg.CacheTTL()), client.Model()), nil
}

func controllerOptions(cfg *config.Config) []controller.Option {
	return []controller.Option{
		controller.WithMessages(controller.Messages{
			ReadFailure: cfg.ReadFailureMessage,
			AIFailure:   cfg.AIFailureMessage,
		}),
		controller.WithProcessTimeout(cfg.ProcessTimeout()),
	}
}
