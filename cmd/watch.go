package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"AzzKaraoke/cache"
	"AzzKaraoke/core/inbox"
	"AzzKaraoke/logger"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "监听收件箱目录并自动处理新视频",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RequireGemini(); err != nil {
			return err
		}
		dir := cfg.InboxDir
		if len(args) == 1 {
			dir = args[0]
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		transcriber, err := newTranscriber(ctx, cfg, connectRedis(cfg))
		if err != nil {
			return err
		}
		defer func() {
			if err := cache.CloseRedis(); err != nil {
				logger.Warn("关闭 Redis 失败", logger.ErrorField(err))
			}
		}()

		proc := inbox.NewProcessor(transcriber, cfg.InboxOutputDir, controllerOptions(cfg)...)
		return inbox.NewWatcher(proc, inbox.WatchConfig{
			Dir:         dir,
			Concurrency: cfg.InboxConcurrency,
		}).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
