package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"AzzKaraoke/storage"
)

var (
	storagePrefix string
	storageStats  bool
	storageDelete bool
)

// prefixDeleter is implemented by stores with a bulk delete.
type prefixDeleter interface {
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

var storageCmd = &cobra.Command{
	Use:     "storage",
	Aliases: []string{"minio"},
	Short:   "视频存储管理",
	Long:    `查看和管理视频存储（MinIO 或本地目录）中的文件，支持列出文件、查看统计信息、按前缀删除。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := storage.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("打开存储失败: %w", err)
		}
		out := cmd.OutOrStdout()

		if storageDelete {
			if storagePrefix == "" {
				return errors.New("删除操作需要指定目录前缀")
			}
			n, err := deletePrefix(ctx, store, storagePrefix)
			fmt.Fprintf(out, "已删除 %d 个对象 (前缀: %s)\n", n, storagePrefix)
			return err
		}

		objects, stats, err := store.List(ctx, storagePrefix)
		if err != nil {
			return fmt.Errorf("列出文件失败: %w", err)
		}
		if !storageStats {
			rows := make([][]string, 0, len(objects))
			for _, o := range objects {
				rows = append(rows, []string{o.Key, storage.FormatSize(o.Size), o.ContentType, o.LastModified.Format("2006-01-02 15:04:05")})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Key", "Size", "Type", "Modified"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft},
			))
		}
		fmt.Fprintf(out, "共 %d 个文件, %s", stats.TotalObjects, storage.FormatSize(stats.TotalSize))
		if !stats.LastModified.IsZero() {
			fmt.Fprintf(out, ", 最后修改 %s", stats.LastModified.Format("2006-01-02 15:04:05"))
		}
		fmt.Fprintln(out)
		return nil
	},
}

func deletePrefix(ctx context.Context, store storage.VideoStore, prefix string) (int, error) {
	if d, ok := store.(prefixDeleter); ok {
		return d.DeletePrefix(ctx, prefix)
	}
	objects, _, err := store.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, o := range objects {
		if err := store.Delete(ctx, o.Key); err != nil {
			return deleted, fmt.Errorf("delete %s: %w", o.Key, err)
		}
		deleted++
	}
	return deleted, nil
}

func init() {
	rootCmd.AddCommand(storageCmd)

	storageCmd.Flags().StringVarP(&storagePrefix, "prefix", "p", "", "按前缀过滤文件或指定要删除的目录")
	storageCmd.Flags().BoolVarP(&storageStats, "stats", "s", false, "只显示统计信息")
	storageCmd.Flags().BoolVarP(&storageDelete, "delete", "d", false, "删除前缀下的所有文件")

	storageCmd.Example = `  # 列出所有视频
  azzkaraoke storage

  # 按会话过滤
  azzkaraoke storage -p "videos/<session-id>/"

  # 显示统计信息
  azzkaraoke storage -s

  # 删除目录及其下的所有文件
  azzkaraoke storage -d -p "videos/<session-id>/"`
}
