package cmd

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"AzzKaraoke/core/inbox"
)

var (
	processOutput      string
	processConcurrency int
)

var processCmd = &cobra.Command{
	Use:   "process <video>...",
	Short: "离线处理视频文件并导出歌词",
	Long:  `把每个视频交给 AI 识别歌词，在输出目录写入 SRT 字幕和结构化 JSON`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RequireGemini(); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		transcriber, err := newTranscriber(ctx, cfg, connectRedis(cfg))
		if err != nil {
			return err
		}

		output := processOutput
		if output == "" {
			output = cfg.InboxOutputDir
		}
		concurrency := processConcurrency
		if concurrency <= 0 {
			concurrency = cfg.InboxConcurrency
		}

		proc := inbox.NewProcessor(transcriber, output, controllerOptions(cfg)...)
		results := proc.ProcessAll(ctx, args, concurrency)
		fmt.Fprintln(cmd.OutOrStdout(), resultTable(results))

		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(results))
		}
		return nil
	},
}

func init() {
	processCmd.Flags().StringVarP(&processOutput, "output", "o", "", "export directory (default inbox_output_dir)")
	processCmd.Flags().IntVarP(&processConcurrency, "jobs", "j", 0, "files processed at once (default inbox_concurrency)")
	rootCmd.AddCommand(processCmd)
}

func resultTable(results []inbox.Result) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status, detail := "ok", filepath.Base(r.SubtitlePath)
		if r.Err != nil {
			status, detail = "failed", r.Err.Error()
		}
		rows = append(rows, []string{
			filepath.Base(r.Source),
			status,
			r.Title,
			strconv.Itoa(r.Lines),
			r.Elapsed.Round(100 * time.Millisecond).String(),
			detail,
		})
	}
	return renderTable(
		[]string{"File", "Status", "Title", "Lines", "Elapsed", "Output"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}
