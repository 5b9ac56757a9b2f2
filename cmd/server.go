package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"AzzKaraoke/cache"
	"AzzKaraoke/core/auth"
	"AzzKaraoke/core/room"
	"AzzKaraoke/logger"
	"AzzKaraoke/server"
	"AzzKaraoke/storage"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 AzzKaraoke 服务器",
	Long:  `启动 HTTP + WebSocket 服务：上传视频、实时同步歌词、导出 SRT/JSON`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServer(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(ctx context.Context) error {
	if err := cfg.RequireJWT(); err != nil {
		return err
	}
	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL())
	if err != nil {
		return err
	}

	repo, closeRepo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}

	rdb := connectRedis(cfg)
	defer func() {
		if err := cache.CloseRedis(); err != nil {
			logger.Warn("关闭 Redis 失败", logger.ErrorField(err))
		}
	}()

	transcriber, err := newTranscriber(ctx, cfg, rdb)
	if err != nil {
		return err
	}

	// 接口只在非 nil 时赋值
	var (
		presence room.Presence
		playback room.PlaybackStore
		deps     = server.Deps{Config: cfg, Tokens: tokens}
	)
	if rdb != nil {
		rooms := cache.NewRoomCache(rdb)
		presence, playback = rooms, rooms
		deps.Viewers, deps.Playback = rooms, rooms
	}

	hub := room.NewHub(presence)
	go hub.Run()
	defer hub.Stop()

	manager := room.NewManager(room.Deps{
		Repo:        repo,
		Store:       store,
		Hub:         hub,
		Transcriber: transcriber,
		Playback:    playback,
		Options:     controllerOptions(cfg),
	})
	defer manager.Close()

	deps.Manager, deps.Hub = manager, hub
	return server.New(deps).Run(ctx)
}
