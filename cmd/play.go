package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"AzzKaraoke/core/controller"
	"AzzKaraoke/core/export"
	"AzzKaraoke/core/playback"
	"AzzKaraoke/logger"
	"AzzKaraoke/model"
)

var (
	playRate   float64
	playHeight int
	playLoop   bool
)

var playCmd = &cobra.Command{
	Use:   "play <lyrics.json>",
	Short: "在终端中播放导出的歌词",
	Long:  `读取 export json 文件，用虚拟时钟驱动歌词高亮和滚动`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		meta, err := export.ParseStructured(data)
		if err != nil {
			return err
		}
		if len(meta.Subtitles) == 0 {
			return fmt.Errorf("%s has no subtitle lines", args[0])
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return play(ctx, cmd.OutOrStdout(), filepath.Base(args[0]), meta)
	},
}

func init() {
	playCmd.Flags().Float64Var(&playRate, "rate", 1, "playback speed")
	playCmd.Flags().IntVar(&playHeight, "height", 12, "visible rows")
	playCmd.Flags().BoolVar(&playLoop, "loop", false, "replay when the song ends")
	rootCmd.AddCommand(playCmd)
}

// loopPause 循环播放前的停顿
var loopPause = time.Second

func songDuration(meta *model.SongMetadata) float64 {
	return meta.Duration() + 1
}

type replayer interface {
	Replay() error
}

// handleEnd reports whether playback should stop. With --loop it replays once
// and clears frame.Ended so later scroll updates do not replay again.
func handleEnd(ctl replayer, frame *controller.FrameUpdate, loop bool) (bool, error) {
	if !frame.Ended {
		return false, nil
	}
	if !loop {
		return true, nil
	}
	time.Sleep(loopPause)
	if err := ctl.Replay(); err != nil {
		return true, err
	}
	frame.Ended = false
	return false, nil
}

func play(ctx context.Context, out io.Writer, name string, meta *model.SongMetadata) error {
	ctl := controller.New(nil)
	ctl.LoadMetadata(meta, name, name)

	source := playback.NewTickerSource(songDuration(meta), playback.WithRate(playRate))
	source.Bind(ctl.Clock())
	ctl.Clock().Attach(source)

	// 回调在控制器锁内执行，只投递最新值
	frames := make(chan controller.FrameUpdate, 1)
	scrolls := make(chan float64, 1)
	ctl.Subscribe(controller.Listener{
		OnFrame:  func(f controller.FrameUpdate) { replaceLatest(frames, f) },
		OnScroll: func(top float64) { replaceLatest(scrolls, top) },
	})
	ctl.SetLayout(terminalLayout(meta, playHeight))

	view := lyricsView{meta: meta, height: playHeight, color: isTerminal(out)}
	tty := view.color

	if err := source.Play(); err != nil {
		return err
	}
	ctl.Clock().Play()
	go func() { _ = source.Run(ctx) }()

	logger.Debug("开始播放", logger.String("file", name), logger.Int("lines", len(meta.Subtitles)))

	var (
		frame   = ctl.Frame()
		top     float64
		lastRow = -2
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case top = <-scrolls:
		case frame = <-frames:
		}

		if tty {
			fmt.Fprint(out, "\033[H\033[2J")
			fmt.Fprintf(out, "%s  %s\n\n", meta.Title, meta.Artist)
			fmt.Fprintln(out, view.render(frame.Frame, top))
		} else if frame.ActiveLineIndex != lastRow && frame.HasActiveLine() {
			line := meta.Subtitles[frame.ActiveLineIndex]
			fmt.Fprintf(out, "[%s] %s\n", export.FormatTimecode(line.StartTime), line.OriginalLyrics)
		}
		lastRow = frame.ActiveLineIndex

		if stop, err := handleEnd(ctl, &frame, playLoop); stop {
			return err
		}
	}
}

func replaceLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
